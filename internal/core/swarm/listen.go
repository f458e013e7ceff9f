package swarm

import (
	"fmt"

	tec "github.com/jbenet/go-temp-err-catcher"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/types"
)

// Listen 监听指定地址
//
// 至少一个地址监听成功即不报错；全部失败时返回聚合错误。
func (s *Swarm) Listen(addrs ...types.Multiaddr) error {
	if s.closed.Load() {
		return ErrSwarmClosed
	}
	if len(addrs) == 0 {
		return ErrNoAddresses
	}

	var errs []error
	succeeded := 0

	for _, addr := range addrs {
		if err := s.listenAddr(addr); err != nil {
			logger.Warn("监听地址失败", "addr", addr.String(), "error", err)
			errs = append(errs, fmt.Errorf("listen %s: %w", addr, err))
		} else {
			succeeded++
			logger.Debug("监听地址成功", "addr", addr.String())
		}
	}

	if succeeded == 0 {
		return fmt.Errorf("failed to listen on any address: %v", errs)
	}
	return nil
}

// listenAddr 监听单个地址
func (s *Swarm) listenAddr(addr types.Multiaddr) error {
	transport := s.transportFor(addr)
	if transport == nil {
		return fmt.Errorf("%w: %s", ErrNoTransport, addr)
	}

	listener, err := transport.Listen(addr)
	if err != nil {
		return fmt.Errorf("transport listen: %w", err)
	}

	s.listenersMu.Lock()
	if s.closed.Load() {
		s.listenersMu.Unlock()
		listener.Close()
		return ErrSwarmClosed
	}
	s.listeners = append(s.listeners, listener)
	s.listenersMu.Unlock()

	// 发布后 Close 抢先完成时，监听器已被 Close 收走并关闭
	if !s.startLoop(func() { s.acceptLoop(listener) }) {
		return ErrSwarmClosed
	}

	return nil
}

// ListenAddrs 返回所有实际监听地址
func (s *Swarm) ListenAddrs() []types.Multiaddr {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	addrs := make([]types.Multiaddr, 0, len(s.listeners))
	for _, listener := range s.listeners {
		addrs = append(addrs, listener.Multiaddr())
	}
	return addrs
}

// acceptLoop 接受连接循环（每个监听器一个）
//
// 临时性错误（如单个握手失败）不终止循环；监听器关闭或
// 不可恢复错误时退出并释放监听器。
func (s *Swarm) acceptLoop(listener pkgif.Listener) {
	defer s.loops.Done()
	defer listener.Close()

	var catcher tec.TempErrCatcher

	for {
		if s.closed.Load() {
			return
		}

		conn, err := listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return
			}
			if catcher.IsTemporary(err) {
				logger.Debug("接受连接的临时错误", "error", err)
				continue
			}
			logger.Debug("accept 循环退出", "addr", listener.Multiaddr().String(), "error", err)
			return
		}

		s.acceptConn(conn)
	}
}

// acceptConn 处理接受的入站连接
//
// 传输层在连接建立时已完成身份交换，这里只做合法性检查、
// 入池并启动该连接的流接受循环。
func (s *Swarm) acceptConn(conn pkgif.Connection) {
	peerID := conn.RemotePeer()
	if peerID.IsEmpty() {
		logger.Debug("接受的连接无 PeerID，关闭")
		conn.Close()
		return
	}
	if peerID == s.localPeer {
		logger.Debug("拒绝连接到自己的连接")
		conn.Close()
		return
	}

	sc := s.addConn(conn)
	if sc == nil {
		return
	}

	logger.Info("连接已建立",
		"peerID", peerID.ShortString(),
		"direction", "inbound")
}

// streamAcceptLoop 入站流接受循环（每条连接一个）
//
// 同一连接上的流按到达顺序逐个交给分发回调（回调内完成协议
// 协商后再异步派发处理器），不同连接的循环互不阻塞。
// 单条流的失败只影响该流，连接级错误才终止循环。
func (s *Swarm) streamAcceptLoop(conn *SwarmConn) {
	defer s.loops.Done()

	peerLabel := conn.RemotePeer().ShortString()
	logger.Debug("启动入站流接受循环", "peerID", peerLabel)

	defer func() {
		// 远端关闭或网络错误导致退出时主动清理连接
		if !conn.IsClosed() && !s.closed.Load() {
			logger.Debug("连接异常断开，清理连接", "peerID", peerLabel)
			conn.Close()
		}
	}()

	for {
		if conn.IsClosed() || s.closed.Load() {
			return
		}

		stream, err := conn.AcceptStream()
		if err != nil {
			if conn.IsClosed() || s.closed.Load() {
				return
			}
			logger.Debug("接受入站流失败，连接可能已断开",
				"peerID", peerLabel, "error", err)
			return
		}

		handler := s.getInboundStreamHandler()
		if handler == nil {
			logger.Warn("入站流分发回调未设置，丢弃流", "peerID", peerLabel)
			stream.Reset()
			continue
		}

		// 同步调用：协商按到达顺序串行，回调负责异步派发处理器
		handler(stream)
	}
}
