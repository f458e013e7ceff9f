// Package node 提供点对点网络节点的公共入口
//
// Node 是对内部组件的统一封装：
//   - 身份：Ed25519 密钥对，PeerID 从公钥派生
//   - 传输：QUIC（身份绑定 TLS）、内存传输（测试）
//   - 连接池：peer → 连接集合，惰性自修复
//   - 协议协商：multistream-select，流建立后先协商再交付
//
// 基本用法：
//
//	n, err := node.New(ctx,
//	    node.WithListenAddrs("/ip4/0.0.0.0/udp/4001/quic-v1"),
//	)
//	if err != nil { ... }
//	defer n.Close()
//
//	n.RegisterHandler("/echo/1.0.0", func(s interfaces.Stream) {
//	    defer s.Close()
//	    io.Copy(s, s)
//	})
//
//	stream, err := n.OpenStream(ctx, target, peerID, "/echo/1.0.0")
package node
