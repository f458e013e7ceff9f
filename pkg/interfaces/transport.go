// Package interfaces 定义 go-node 公共接口
//
// 本文件定义 Transport 接口，抽象底层传输协议。
package interfaces

import (
	"context"
	"io"
	"time"

	"github.com/dep2p/go-node/pkg/types"
)

// Transport 定义传输层接口
//
// Transport 抽象不同的传输协议（QUIC、内存传输等）。
// 安全连接建立、流复用、流控均由传输层内部完成，
// 上层只通过本接口消费其能力。
type Transport interface {
	// Dial 拨号连接到指定地址
	//
	// peerID 为期望的远端身份，传输层在安全握手时校验。
	Dial(ctx context.Context, raddr types.Multiaddr, peerID types.PeerID) (Connection, error)

	// CanDial 检查是否支持拨号到指定地址
	CanDial(addr types.Multiaddr) bool

	// Listen 在指定地址监听
	Listen(laddr types.Multiaddr) (Listener, error)

	// Protocols 返回支持的传输协议段（如 "quic-v1"）
	Protocols() []string

	// Close 关闭传输
	Close() error
}

// Listener 定义监听器接口
type Listener interface {
	// Accept 接受新连接
	//
	// 阻塞直到有新连接或监听器关闭。
	Accept() (Connection, error)

	// Close 关闭监听器
	Close() error

	// Multiaddr 返回实际监听地址
	Multiaddr() types.Multiaddr
}

// Connection 定义连接接口
//
// 连接由传输层拥有；远端身份在连接建立时由安全握手确定。
type Connection interface {
	// LocalPeer 返回本地节点 ID
	LocalPeer() types.PeerID

	// RemotePeer 返回远端节点 ID
	RemotePeer() types.PeerID

	// RemoteMultiaddr 返回远端地址
	RemoteMultiaddr() types.Multiaddr

	// NewStream 在此连接上创建新流
	NewStream(ctx context.Context) (Stream, error)

	// AcceptStream 接受对方创建的流（阻塞）
	AcceptStream() (Stream, error)

	// Stat 返回连接统计
	Stat() types.ConnectionStat

	// IsClosed 检查连接是否已关闭
	IsClosed() bool

	// Close 关闭连接
	Close() error
}

// Stream 定义流接口
//
// 协议协商完成后，流交由应用协议独占使用。
type Stream interface {
	io.ReadWriteCloser

	// Protocol 返回协商后的协议 ID（协商前为空）
	Protocol() types.ProtocolID

	// SetProtocol 设置协议 ID（协商完成时由协商器调用）
	SetProtocol(proto types.ProtocolID)

	// Conn 返回所属连接
	Conn() Connection

	// Reset 强制中止流（两端都收到错误）
	Reset() error

	// SetDeadline 设置读写超时
	SetDeadline(t time.Time) error

	// SetReadDeadline 设置读超时
	SetReadDeadline(t time.Time) error

	// SetWriteDeadline 设置写超时
	SetWriteDeadline(t time.Time) error
}
