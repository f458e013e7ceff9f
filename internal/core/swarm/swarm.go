package swarm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/lib/log"
	"github.com/dep2p/go-node/pkg/types"
)

var logger = log.Logger("core/swarm")

// Swarm 连接群管理
type Swarm struct {
	// 本地节点 ID
	localPeer types.PeerID

	// 连接池：peerID -> 连接句柄序列
	pool *pool

	// 传输层
	transportsMu sync.RWMutex
	transports   []pkgif.Transport

	// 监听器
	listenersMu sync.Mutex
	listeners   []pkgif.Listener

	// 入站流分发回调（由 Node 设置）
	handlerMu            sync.RWMutex
	inboundStreamHandler pkgif.InboundStreamHandler

	// 同节点并发拨号去重
	dials singleflight.Group

	// 后台循环跟踪（accept 循环、每连接流接受循环）
	// loopsMu 保证 closed 检查与计数增加原子，Close 以同一把锁
	// 作屏障后才等待，计数不会在等待期间从零再增
	loopsMu sync.Mutex
	loops   sync.WaitGroup

	// 配置
	config *Config
	clk    clock.Clock

	// 状态
	closed atomic.Bool
}

var _ pkgif.Swarm = (*Swarm)(nil)

// NewSwarm 创建 Swarm
func NewSwarm(localPeer types.PeerID, opts ...Option) (*Swarm, error) {
	if localPeer.IsEmpty() {
		return nil, fmt.Errorf("localPeer cannot be empty")
	}

	s := &Swarm{
		localPeer: localPeer,
		pool:      newPool(),
		config:    DefaultConfig(),
		clk:       clock.New(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// LocalPeer 返回本地节点 ID
func (s *Swarm) LocalPeer() types.PeerID {
	return s.localPeer
}

// AddTransport 添加传输层
func (s *Swarm) AddTransport(t pkgif.Transport) {
	if t == nil {
		return
	}
	s.transportsMu.Lock()
	s.transports = append(s.transports, t)
	s.transportsMu.Unlock()
}

// transportFor 选择能处理指定地址的传输层
func (s *Swarm) transportFor(addr types.Multiaddr) pkgif.Transport {
	s.transportsMu.RLock()
	defer s.transportsMu.RUnlock()

	for _, t := range s.transports {
		if t.CanDial(addr) {
			return t
		}
	}
	return nil
}

// Peers 返回所有已连接的节点 ID
func (s *Swarm) Peers() []types.PeerID {
	if s.closed.Load() {
		return nil
	}
	return s.pool.peerIDs()
}

// ConnsToPeer 返回到指定节点的所有活跃连接
func (s *Swarm) ConnsToPeer(peerID types.PeerID) []pkgif.Connection {
	if s.closed.Load() {
		return nil
	}

	swarmConns := s.pool.connsFor(peerID)
	if len(swarmConns) == 0 {
		return nil
	}

	conns := make([]pkgif.Connection, len(swarmConns))
	for i, c := range swarmConns {
		conns[i] = c
	}
	return conns
}

// Connectedness 返回与指定节点的连接状态
func (s *Swarm) Connectedness(peerID types.PeerID) types.Connectedness {
	if s.closed.Load() {
		return types.NotConnected
	}

	for _, conn := range s.pool.connsFor(peerID) {
		if !conn.IsClosed() {
			return types.Connected
		}
	}
	return types.NotConnected
}

// SetInboundStreamHandler 设置入站流分发回调
func (s *Swarm) SetInboundStreamHandler(handler pkgif.InboundStreamHandler) {
	s.handlerMu.Lock()
	s.inboundStreamHandler = handler
	s.handlerMu.Unlock()
}

// getInboundStreamHandler 获取入站流分发回调
func (s *Swarm) getInboundStreamHandler() pkgif.InboundStreamHandler {
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()
	return s.inboundStreamHandler
}

// NewStream 创建到指定节点的新流
//
// 自修复扫描：按最近加入优先遍历池中句柄，解析失败或开流失败的
// 句柄当场剔除；全部失效时拨号新连接，并在新连接上重试一次开流。
func (s *Swarm) NewStream(ctx context.Context, peerID types.PeerID, addr types.Multiaddr) (pkgif.Stream, error) {
	if s.closed.Load() {
		return nil, ErrSwarmClosed
	}

	// 第一阶段：尝试复用已有连接
	if stream := s.streamFromPool(ctx, peerID); stream != nil {
		return stream, nil
	}

	// 第二阶段：拨号新连接
	if addr.IsEmpty() {
		return nil, ErrNoConnection
	}
	conn, err := s.DialPeer(ctx, peerID, addr)
	if err != nil {
		return nil, err
	}

	// 新连接上只重试一次，再失败就是本次调用的终止错误
	stream, err := s.openStream(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("new stream on fresh connection: %w", err)
	}
	return stream, nil
}

// openStream 在连接上开流，受 NewStreamTimeout 约束
func (s *Swarm) openStream(ctx context.Context, conn pkgif.Connection) (pkgif.Stream, error) {
	streamCtx, cancel := s.clk.WithTimeout(ctx, s.config.NewStreamTimeout)
	defer cancel()
	return conn.NewStream(streamCtx)
}

// streamFromPool 在已有连接上尝试开流，失败返回 nil
func (s *Swarm) streamFromPool(ctx context.Context, peerID types.PeerID) pkgif.Stream {
	for _, h := range s.pool.handlesFor(peerID) {
		conn, ok := s.pool.resolve(h)
		if !ok {
			// 句柄失效：常规资源流转，剔除后继续扫描
			s.pool.dropHandle(peerID, h)
			continue
		}
		if conn.IsClosed() {
			s.pool.remove(peerID, h)
			continue
		}

		stream, err := s.openStream(ctx, conn)
		if err == nil {
			return stream
		}
		logger.Debug("已有连接开流失败",
			"peerID", peerID.ShortString(), "error", err)
		if conn.IsClosed() {
			s.pool.remove(peerID, h)
		}
	}
	return nil
}

// addConn 将连接加入池并启动其入站流接受循环
func (s *Swarm) addConn(conn pkgif.Connection) *SwarmConn {
	if conn == nil {
		return nil
	}
	if s.closed.Load() {
		conn.Close()
		return nil
	}

	sc := newSwarmConn(s, conn)
	s.pool.add(conn.RemotePeer(), sc)

	// 入站流可能到达任一方向的连接，出站连接同样需要接受循环。
	// 入池后 Close 抢先完成时，池可能已被 drain，这里自行清理。
	if !s.startLoop(func() { s.streamAcceptLoop(sc) }) {
		sc.Close()
		return nil
	}

	return sc
}

// startLoop 注册并启动一个后台循环
//
// closed 检查与计数增加在同一临界区内完成；Swarm 已关闭时
// 返回 false 且不启动循环。
func (s *Swarm) startLoop(fn func()) bool {
	s.loopsMu.Lock()
	defer s.loopsMu.Unlock()

	if s.closed.Load() {
		return false
	}
	s.loops.Add(1)
	go fn()
	return true
}

// removeConn 从池中移除连接（内部方法，由 SwarmConn.Close 调用）
func (s *Swarm) removeConn(conn *SwarmConn) {
	s.pool.remove(conn.RemotePeer(), conn.h)
}

// Close 关闭 Swarm
//
// 顺序：先停监听器（不再产生新工作），再关闭所有连接，
// 最后等待全部后台循环退出。幂等：第二次调用无副作用。
func (s *Swarm) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	logger.Info("正在关闭 Swarm")

	// 持有 loopsMu 做清理：正在注册循环的调用方被挡在临界区外，
	// 解锁后它们会看到 closed 并放弃，计数不会在等待期间再增
	s.loopsMu.Lock()

	s.listenersMu.Lock()
	listeners := s.listeners
	s.listeners = nil
	s.listenersMu.Unlock()

	var errs error
	for _, listener := range listeners {
		if err := listener.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close listener: %w", err))
		}
	}

	conns := s.pool.drain()
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close conn: %w", err))
		}
	}

	s.loopsMu.Unlock()

	// 等待 accept 循环与流接受循环全部退出
	s.loops.Wait()

	logger.Info("Swarm 已关闭", "closedConnections", len(conns))
	return errs
}
