package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/types"
)

var (
	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("memory transport closed")

	// ErrListenerClosed 监听器已关闭
	ErrListenerClosed = errors.New("memory listener closed")

	// ErrConnectionRefused 目标地址无监听器
	ErrConnectionRefused = errors.New("memory: connection refused")

	// ErrPeerIDMismatch 对端身份与期望不符
	ErrPeerIDMismatch = errors.New("memory: peer id mismatch")
)

// ============================================================================
//                              Hub
// ============================================================================

// Hub 进程内传输交换机
//
// 共享同一 Hub 的 Transport 实例可以互相拨通。
type Hub struct {
	mu        sync.Mutex
	listeners map[types.Multiaddr]*Listener
	nextAddr  atomic.Uint64
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		listeners: make(map[types.Multiaddr]*Listener),
	}
}

// assignAddr 分配自动监听地址
func (h *Hub) assignAddr() types.Multiaddr {
	return types.Multiaddr(fmt.Sprintf("/memory/%d", h.nextAddr.Add(1)))
}

func (h *Hub) register(addr types.Multiaddr, l *Listener) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.listeners[addr]; exists {
		return fmt.Errorf("memory: address %s already in use", addr)
	}
	h.listeners[addr] = l
	return nil
}

func (h *Hub) unregister(addr types.Multiaddr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners, addr)
}

func (h *Hub) lookup(addr types.Multiaddr) *Listener {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listeners[addr]
}

// ============================================================================
//                              Transport
// ============================================================================

// Transport 内存传输
type Transport struct {
	hub       *Hub
	localPeer types.PeerID
	closed    atomic.Bool

	mu        sync.Mutex
	listeners []*Listener
}

var _ pkgif.Transport = (*Transport)(nil)

// New 创建内存传输
func New(hub *Hub, localPeer types.PeerID) *Transport {
	return &Transport{
		hub:       hub,
		localPeer: localPeer,
	}
}

// Dial 拨号连接到指定地址
//
// 身份校验模拟真实传输的安全握手：监听方的 PeerID 在连接
// 建立时交换，与期望不符则拨号失败。
func (t *Transport) Dial(ctx context.Context, raddr types.Multiaddr, peerID types.PeerID) (pkgif.Connection, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	listener := t.hub.lookup(raddr)
	if listener == nil {
		return nil, fmt.Errorf("%w: %s", ErrConnectionRefused, raddr)
	}

	remotePeer := listener.transport.localPeer
	if !peerID.IsEmpty() && peerID != remotePeer {
		return nil, fmt.Errorf("%w: expected %s, got %s",
			ErrPeerIDMismatch, peerID.ShortString(), remotePeer.ShortString())
	}

	outbound, inbound := newConnPair(t.localPeer, remotePeer, raddr)

	if err := listener.deliver(ctx, inbound); err != nil {
		outbound.Close()
		return nil, err
	}
	return outbound, nil
}

// CanDial 检查是否支持该地址
func (t *Transport) CanDial(addr types.Multiaddr) bool {
	return addr.Transport() == "memory"
}

// Listen 在指定地址监听
func (t *Transport) Listen(laddr types.Multiaddr) (pkgif.Listener, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	if laddr == "/memory/auto" {
		laddr = t.hub.assignAddr()
	}

	l := &Listener{
		transport: t,
		addr:      laddr,
		incoming:  make(chan *Conn, 16),
		done:      make(chan struct{}),
	}
	if err := t.hub.register(laddr, l); err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.listeners = append(t.listeners, l)
	t.mu.Unlock()

	return l, nil
}

// Protocols 返回支持的传输协议段
func (t *Transport) Protocols() []string {
	return []string{"memory"}
}

// Close 关闭传输及其所有监听器
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}

	t.mu.Lock()
	listeners := t.listeners
	t.listeners = nil
	t.mu.Unlock()

	for _, l := range listeners {
		l.Close()
	}
	return nil
}

// ============================================================================
//                              Listener
// ============================================================================

// Listener 内存监听器
type Listener struct {
	transport *Transport
	addr      types.Multiaddr
	incoming  chan *Conn
	done      chan struct{}
	closeOnce sync.Once
}

var _ pkgif.Listener = (*Listener)(nil)

// deliver 将入站连接投递给 Accept
func (l *Listener) deliver(ctx context.Context, conn *Conn) error {
	select {
	case l.incoming <- conn:
		return nil
	case <-l.done:
		return ErrListenerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Accept 接受新连接
func (l *Listener) Accept() (pkgif.Connection, error) {
	select {
	case conn := <-l.incoming:
		return conn, nil
	case <-l.done:
		return nil, ErrListenerClosed
	}
}

// Multiaddr 返回监听地址
func (l *Listener) Multiaddr() types.Multiaddr {
	return l.addr
}

// Close 关闭监听器
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.transport.hub.unregister(l.addr)
	})
	return nil
}
