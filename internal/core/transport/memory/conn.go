package memory

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/types"
)

var (
	// ErrConnClosed 连接已关闭
	ErrConnClosed = errors.New("memory connection closed")
)

// ============================================================================
//                              Conn
// ============================================================================

// Conn 内存连接
//
// 成对创建，两端通过对方的 incoming 队列投递新流。
// 任一端关闭后，两端的新建/接受流操作都立即失败。
type Conn struct {
	localPeer  types.PeerID
	remotePeer types.PeerID
	remoteAddr types.Multiaddr
	direction  types.Direction
	opened     time.Time

	peer     *Conn
	incoming chan *Stream
	done     chan struct{}

	closeOnce sync.Once

	mu         sync.Mutex
	numStreams int
}

var _ pkgif.Connection = (*Conn)(nil)

// newConnPair 创建一对互联的连接
func newConnPair(dialerPeer, listenerPeer types.PeerID, raddr types.Multiaddr) (outbound, inbound *Conn) {
	now := time.Now()
	outbound = &Conn{
		localPeer:  dialerPeer,
		remotePeer: listenerPeer,
		remoteAddr: raddr,
		direction:  types.DirOutbound,
		opened:     now,
		incoming:   make(chan *Stream, 16),
		done:       make(chan struct{}),
	}
	inbound = &Conn{
		localPeer:  listenerPeer,
		remotePeer: dialerPeer,
		remoteAddr: "/memory/dialer",
		direction:  types.DirInbound,
		opened:     now,
		incoming:   make(chan *Stream, 16),
		done:       make(chan struct{}),
	}
	outbound.peer = inbound
	inbound.peer = outbound
	return outbound, inbound
}

// LocalPeer 返回本地节点 ID
func (c *Conn) LocalPeer() types.PeerID {
	return c.localPeer
}

// RemotePeer 返回远端节点 ID
func (c *Conn) RemotePeer() types.PeerID {
	return c.remotePeer
}

// RemoteMultiaddr 返回远端地址
func (c *Conn) RemoteMultiaddr() types.Multiaddr {
	return c.remoteAddr
}

// NewStream 创建新流
func (c *Conn) NewStream(ctx context.Context) (pkgif.Stream, error) {
	if c.IsClosed() {
		return nil, ErrConnClosed
	}

	a, b := net.Pipe()
	local := newStream(a, c)
	remote := newStream(b, c.peer)

	select {
	case c.peer.incoming <- remote:
	case <-c.done:
		a.Close()
		b.Close()
		return nil, ErrConnClosed
	case <-ctx.Done():
		a.Close()
		b.Close()
		return nil, ctx.Err()
	}

	c.mu.Lock()
	c.numStreams++
	c.mu.Unlock()

	return local, nil
}

// AcceptStream 接受对方创建的流
func (c *Conn) AcceptStream() (pkgif.Stream, error) {
	select {
	case s := <-c.incoming:
		c.mu.Lock()
		c.numStreams++
		c.mu.Unlock()
		return s, nil
	case <-c.done:
		return nil, ErrConnClosed
	}
}

// Stat 返回连接统计
func (c *Conn) Stat() types.ConnectionStat {
	c.mu.Lock()
	defer c.mu.Unlock()

	return types.ConnectionStat{
		Direction:  c.direction,
		Opened:     c.opened.Unix(),
		NumStreams: c.numStreams,
	}
}

// IsClosed 检查是否已关闭
func (c *Conn) IsClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close 关闭连接（关闭传播到对端）
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	// 对端也标记关闭
	c.peer.closeOnce.Do(func() {
		close(c.peer.done)
	})
	return nil
}
