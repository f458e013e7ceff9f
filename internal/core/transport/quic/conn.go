package quic

import (
	"context"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/types"
)

// 确保实现接口
var _ pkgif.Connection = (*Connection)(nil)

// Connection QUIC 连接
type Connection struct {
	mu sync.RWMutex

	quicConn   quic.Connection
	localPeer  types.PeerID
	remotePeer types.PeerID
	remoteAddr types.Multiaddr
	direction  types.Direction

	numStreams int
	opened     time.Time
	closed     bool
}

// newConnection 创建连接封装
func newConnection(quicConn quic.Connection, local, remote types.PeerID, remoteAddr types.Multiaddr, dir types.Direction) *Connection {
	return &Connection{
		quicConn:   quicConn,
		localPeer:  local,
		remotePeer: remote,
		remoteAddr: remoteAddr,
		direction:  dir,
		opened:     time.Now(),
	}
}

// LocalPeer 返回本地节点 ID
func (c *Connection) LocalPeer() types.PeerID {
	return c.localPeer
}

// RemotePeer 返回远端节点 ID
func (c *Connection) RemotePeer() types.PeerID {
	return c.remotePeer
}

// RemoteMultiaddr 返回远端地址
func (c *Connection) RemoteMultiaddr() types.Multiaddr {
	return c.remoteAddr
}

// NewStream 创建新流
func (c *Connection) NewStream(ctx context.Context) (pkgif.Stream, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ErrConnectionClosed
	}
	c.mu.RUnlock()

	// OpenStreamSync 可能阻塞，不持锁调用
	quicStream, err := c.quicConn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// 等待期间可能已被关闭
	if c.closed {
		_ = quicStream.Close()
		return nil, ErrConnectionClosed
	}

	c.numStreams++
	return newStream(quicStream, c), nil
}

// AcceptStream 接受对方创建的流
func (c *Connection) AcceptStream() (pkgif.Stream, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ErrConnectionClosed
	}
	c.mu.RUnlock()

	quicStream, err := c.quicConn.AcceptStream(context.Background())
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		_ = quicStream.Close()
		return nil, ErrConnectionClosed
	}

	c.numStreams++
	return newStream(quicStream, c), nil
}

// removeStream 流关闭时回收计数
func (c *Connection) removeStream() {
	c.mu.Lock()
	if c.numStreams > 0 {
		c.numStreams--
	}
	c.mu.Unlock()
}

// Stat 返回连接统计
func (c *Connection) Stat() types.ConnectionStat {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return types.ConnectionStat{
		Direction:  c.direction,
		Opened:     c.opened.Unix(),
		NumStreams: c.numStreams,
	}
}

// IsClosed 检查连接是否已关闭
//
// 除本地显式关闭外，也检测底层 QUIC 连接的终止
// （对端关闭、空闲超时）。
func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return true
	}

	select {
	case <-c.quicConn.Context().Done():
		return true
	default:
		return false
	}
}

// Close 关闭连接
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// CloseWithError 可能阻塞，不持锁调用
	return c.quicConn.CloseWithError(0, "connection closed")
}
