package swarm

import (
	"context"
	"sync"

	"github.com/dep2p/go-node/internal/core/handle"
	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/types"
)

// SwarmConn Swarm 连接封装
//
// 包装传输层连接，持有自己在连接池中的句柄；
// 关闭时负责释放句柄并从池中移除。
type SwarmConn struct {
	swarm *Swarm
	conn  pkgif.Connection
	h     handle.Handle

	streamsMu sync.Mutex
	streams   []pkgif.Stream
	closed    bool
}

var _ pkgif.Connection = (*SwarmConn)(nil)

// newSwarmConn 创建 Swarm 连接
func newSwarmConn(swarm *Swarm, conn pkgif.Connection) *SwarmConn {
	return &SwarmConn{
		swarm: swarm,
		conn:  conn,
	}
}

// LocalPeer 返回本地节点 ID
func (c *SwarmConn) LocalPeer() types.PeerID {
	return c.conn.LocalPeer()
}

// RemotePeer 返回远端节点 ID
func (c *SwarmConn) RemotePeer() types.PeerID {
	return c.conn.RemotePeer()
}

// RemoteMultiaddr 返回远端地址
func (c *SwarmConn) RemoteMultiaddr() types.Multiaddr {
	return c.conn.RemoteMultiaddr()
}

// NewStream 创建新流
func (c *SwarmConn) NewStream(ctx context.Context) (pkgif.Stream, error) {
	c.streamsMu.Lock()
	if c.closed {
		c.streamsMu.Unlock()
		return nil, ErrSwarmClosed
	}
	c.streamsMu.Unlock()

	// 在锁外调用可能阻塞的底层开流
	stream, err := c.conn.NewStream(ctx)
	if err != nil {
		return nil, err
	}

	swarmStream := newSwarmStream(c, stream)

	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()
	if c.closed {
		stream.Close()
		return nil, ErrSwarmClosed
	}
	c.streams = append(c.streams, swarmStream)
	return swarmStream, nil
}

// AcceptStream 接受入站流（阻塞）
func (c *SwarmConn) AcceptStream() (pkgif.Stream, error) {
	c.streamsMu.Lock()
	if c.closed {
		c.streamsMu.Unlock()
		return nil, ErrSwarmClosed
	}
	c.streamsMu.Unlock()

	stream, err := c.conn.AcceptStream()
	if err != nil {
		return nil, err
	}

	swarmStream := newSwarmStream(c, stream)

	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()
	if c.closed {
		stream.Close()
		return nil, ErrSwarmClosed
	}
	c.streams = append(c.streams, swarmStream)
	return swarmStream, nil
}

// Stat 返回连接统计
func (c *SwarmConn) Stat() types.ConnectionStat {
	stat := c.conn.Stat()

	c.streamsMu.Lock()
	stat.NumStreams = len(c.streams)
	c.streamsMu.Unlock()
	return stat
}

// IsClosed 检查连接是否已关闭
func (c *SwarmConn) IsClosed() bool {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()
	return c.closed || c.conn.IsClosed()
}

// Close 关闭连接
func (c *SwarmConn) Close() error {
	c.streamsMu.Lock()
	if c.closed {
		c.streamsMu.Unlock()
		return nil
	}
	c.closed = true
	streams := c.streams
	c.streams = nil
	c.streamsMu.Unlock()

	for _, stream := range streams {
		stream.Close()
	}

	// 从池中移除（句柄随之失效）
	c.swarm.removeConn(c)

	return c.conn.Close()
}

// removeStream 移除流（内部方法）
func (c *SwarmConn) removeStream(stream pkgif.Stream) {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()

	for i, s := range c.streams {
		if s == stream {
			c.streams = append(c.streams[:i], c.streams[i+1:]...)
			break
		}
	}
}
