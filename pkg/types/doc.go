// Package types 提供 go-node 核心类型定义
//
// 包含 PeerID、ProtocolID、Multiaddr 等基础值类型。
// 本包不依赖任何内部实现包，位于依赖层级最底层。
package types
