package swarm

import (
	"context"
	"fmt"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/types"
)

// DialPeer 获取或建立到指定节点的连接
//
// 池中已有活跃连接时直接复用；否则拨号。同一节点的并发拨号
// 通过 singleflight 合并为一次。
func (s *Swarm) DialPeer(ctx context.Context, peerID types.PeerID, addr types.Multiaddr) (pkgif.Connection, error) {
	if s.closed.Load() {
		return nil, ErrSwarmClosed
	}
	if peerID == s.localPeer {
		return nil, ErrDialToSelf
	}

	// 复用活跃连接
	if conn := s.liveConn(peerID); conn != nil {
		return conn, nil
	}

	if addr.IsEmpty() {
		return nil, &DialError{Peer: peerID, Errors: []error{ErrNoAddresses}}
	}

	v, err, _ := s.dials.Do(string(peerID), func() (any, error) {
		// 合并窗口内可能已有别的调用完成拨号
		if conn := s.liveConn(peerID); conn != nil {
			return conn, nil
		}
		return s.dialOnce(ctx, peerID, addr)
	})
	if err != nil {
		logger.Debug("拨号失败", "peerID", peerID.ShortString(), "error", err)
		return nil, err
	}
	return v.(pkgif.Connection), nil
}

// liveConn 返回池中任一活跃连接，无则返回 nil
func (s *Swarm) liveConn(peerID types.PeerID) *SwarmConn {
	for _, conn := range s.pool.connsFor(peerID) {
		if !conn.IsClosed() {
			return conn
		}
	}
	return nil
}

// dialOnce 执行一次拨号并将连接纳入池
func (s *Swarm) dialOnce(ctx context.Context, peerID types.PeerID, addr types.Multiaddr) (pkgif.Connection, error) {
	transport := s.transportFor(addr)
	if transport == nil {
		return nil, &DialError{Peer: peerID, Errors: []error{fmt.Errorf("%w: %s", ErrNoTransport, addr)}}
	}

	dialCtx, cancel := s.clk.WithTimeout(ctx, s.config.DialTimeout)
	defer cancel()

	conn, err := transport.Dial(dialCtx, addr, peerID)
	if err != nil {
		return nil, &DialError{Peer: peerID, Errors: []error{err}}
	}

	sc := s.addConn(conn)
	if sc == nil {
		// Swarm 在拨号期间被关闭
		return nil, ErrSwarmClosed
	}

	logger.Info("连接已建立",
		"peerID", peerID.ShortString(),
		"addr", addr.String(),
		"direction", "outbound")
	return sc, nil
}
