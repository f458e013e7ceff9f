// Package quic 实现基于 QUIC 的传输层
//
// 核心设计：
//   - 共享 UDP socket：监听和拨号复用同一个 quic.Transport，
//     保证出站连接使用与监听相同的本地端口
//   - 身份绑定：自签名 TLS 证书由节点私钥签发，
//     对端 PeerID 从证书公钥派生后与期望值比对
//   - 流复用：直接使用 QUIC 原生流，无需额外的多路复用层
//
// 地址格式：/ip4/<host>/udp/<port>/quic-v1
package quic
