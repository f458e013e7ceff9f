// Package interfaces 定义 go-node 公共接口
//
// 本文件定义 Swarm（连接池与监听管理）及协议注册/协商相关接口。
package interfaces

import (
	"context"

	"github.com/dep2p/go-node/pkg/types"
)

// StreamHandler 入站流处理器
//
// 协议协商成功后，流的所有权转移给处理器。
// 处理器在独立 goroutine 中执行，负责最终关闭流。
type StreamHandler func(stream Stream)

// InboundStreamHandler 入站流分发回调
//
// 由上层（Node）设置到 Swarm，在每个入站流被接受后调用。
// 上层在回调中完成协议协商与处理器分发。
type InboundStreamHandler func(stream Stream)

// Swarm 连接群管理
//
// 维护 peer → 连接集合的连接池，管理监听器与
// 每连接的入站流接受循环。
type Swarm interface {
	// LocalPeer 返回本地节点 ID
	LocalPeer() types.PeerID

	// DialPeer 获取或建立到指定节点的连接
	//
	// 优先复用池中活跃连接；addr 仅在需要新建连接时使用。
	DialPeer(ctx context.Context, peerID types.PeerID, addr types.Multiaddr) (Connection, error)

	// NewStream 在到指定节点的连接上创建新流
	//
	// 复用池中连接；失效连接被惰性剔除。addr 为拨号后备地址，
	// 池中无可用连接时据此新建连接。
	NewStream(ctx context.Context, peerID types.PeerID, addr types.Multiaddr) (Stream, error)

	// Listen 监听指定地址
	Listen(addrs ...types.Multiaddr) error

	// ListenAddrs 返回所有实际监听地址
	ListenAddrs() []types.Multiaddr

	// Peers 返回所有已连接节点
	Peers() []types.PeerID

	// ConnsToPeer 返回到指定节点的所有活跃连接
	ConnsToPeer(peerID types.PeerID) []Connection

	// Connectedness 返回与指定节点的连接状态
	Connectedness(peerID types.PeerID) types.Connectedness

	// SetInboundStreamHandler 设置入站流分发回调
	//
	// 必须在 Listen 之前设置。
	SetInboundStreamHandler(handler InboundStreamHandler)

	// Close 关闭 Swarm：先停止所有监听器，再关闭所有连接
	Close() error
}

// ProtocolRegistry 协议注册表
//
// 协议 ID → 处理器 的线程安全映射。注册互斥，查询并发。
type ProtocolRegistry interface {
	// Register 注册协议处理器，重复注册返回错误
	Register(proto types.ProtocolID, handler StreamHandler) error

	// Unregister 注销协议处理器
	Unregister(proto types.ProtocolID) error

	// Handler 查询协议处理器
	Handler(proto types.ProtocolID) (StreamHandler, bool)

	// Supported 检查协议是否已注册
	Supported(proto types.ProtocolID) bool

	// Protocols 返回所有已注册协议
	Protocols() []types.ProtocolID
}

// Negotiator 协议协商器（multistream-select）
type Negotiator interface {
	// SelectOneOf 以发起方角色在流上协商，按序提议 protocols
	SelectOneOf(stream Stream, protocols ...types.ProtocolID) (types.ProtocolID, error)

	// Handle 以响应方角色在流上协商，返回协商出的协议
	Handle(stream Stream) (types.ProtocolID, error)
}
