package swarm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-node/internal/core/transport/memory"
	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

// countingTransport 统计拨号次数的传输层包装
type countingTransport struct {
	pkgif.Transport
	dials atomic.Int32
}

func (t *countingTransport) Dial(ctx context.Context, raddr types.Multiaddr, peerID types.PeerID) (pkgif.Connection, error) {
	t.dials.Add(1)
	return t.Transport.Dial(ctx, raddr, peerID)
}

// stuckTransport 拨号一直阻塞直到上下文取消
type stuckTransport struct{}

func (t *stuckTransport) Dial(ctx context.Context, raddr types.Multiaddr, peerID types.PeerID) (pkgif.Connection, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (t *stuckTransport) CanDial(addr types.Multiaddr) bool { return true }

func (t *stuckTransport) Listen(laddr types.Multiaddr) (pkgif.Listener, error) {
	return nil, ErrNoTransport
}

func (t *stuckTransport) Protocols() []string { return []string{"memory"} }

func (t *stuckTransport) Close() error { return nil }

var _ pkgif.Transport = (*stuckTransport)(nil)

// testSwarm 创建接入共享 Hub 的 Swarm
func testSwarm(t *testing.T, hub *memory.Hub, peerID types.PeerID) (*Swarm, *countingTransport) {
	t.Helper()

	transport := &countingTransport{Transport: memory.New(hub, peerID)}
	s, err := NewSwarm(peerID, WithTransport(transport))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, transport
}

// listeningSwarm 创建已监听的 Swarm，返回其监听地址
func listeningSwarm(t *testing.T, hub *memory.Hub, peerID types.PeerID) (*Swarm, types.Multiaddr) {
	t.Helper()

	s, _ := testSwarm(t, hub, peerID)
	require.NoError(t, s.Listen("/memory/auto"))
	addrs := s.ListenAddrs()
	require.Len(t, addrs, 1)
	return s, addrs[0]
}

// ============================================================================
//                              基本行为
// ============================================================================

// TestNewSwarm 测试创建校验
func TestNewSwarm(t *testing.T) {
	_, err := NewSwarm("")
	assert.Error(t, err)

	s, err := NewSwarm("peer-a")
	require.NoError(t, err)
	assert.Equal(t, types.PeerID("peer-a"), s.LocalPeer())
	require.NoError(t, s.Close())
}

// TestDialPeer 测试拨号建立连接
func TestDialPeer(t *testing.T) {
	hub := memory.NewHub()
	a, _ := testSwarm(t, hub, "peer-a")
	_, addrB := listeningSwarm(t, hub, "peer-b")

	conn, err := a.DialPeer(context.Background(), "peer-b", addrB)
	require.NoError(t, err)
	assert.Equal(t, types.PeerID("peer-b"), conn.RemotePeer())
	assert.Equal(t, types.Connected, a.Connectedness("peer-b"))
	assert.Contains(t, a.Peers(), types.PeerID("peer-b"))
}

// TestDialPeer_Self 测试拨号自己被拒
func TestDialPeer_Self(t *testing.T) {
	hub := memory.NewHub()
	a, _ := testSwarm(t, hub, "peer-a")

	_, err := a.DialPeer(context.Background(), "peer-a", "/memory/x")
	assert.ErrorIs(t, err, ErrDialToSelf)
}

// TestDialPeer_NoTransport 测试无匹配传输层
func TestDialPeer_NoTransport(t *testing.T) {
	hub := memory.NewHub()
	a, _ := testSwarm(t, hub, "peer-a")

	_, err := a.DialPeer(context.Background(), "peer-b", "/ip4/127.0.0.1/udp/1/quic-v1")
	var dialErr *DialError
	require.ErrorAs(t, err, &dialErr)
	assert.ErrorIs(t, dialErr.Unwrap(), ErrNoTransport)
}

// TestDialPeer_Refused 测试目标不可达时返回 DialError
func TestDialPeer_Refused(t *testing.T) {
	hub := memory.NewHub()
	a, _ := testSwarm(t, hub, "peer-a")

	_, err := a.DialPeer(context.Background(), "peer-b", "/memory/nowhere")
	var dialErr *DialError
	require.ErrorAs(t, err, &dialErr)
	assert.Equal(t, types.PeerID("peer-b"), dialErr.Peer)
}

// ============================================================================
//                              连接复用与自修复
// ============================================================================

// TestNewStream_ReusesConnection 测试同节点两次开流复用同一连接
func TestNewStream_ReusesConnection(t *testing.T) {
	hub := memory.NewHub()
	a, transport := testSwarm(t, hub, "peer-a")
	b, addrB := listeningSwarm(t, hub, "peer-b")
	b.SetInboundStreamHandler(func(stream pkgif.Stream) {})

	s1, err := a.NewStream(context.Background(), "peer-b", addrB)
	require.NoError(t, err)
	defer s1.Close()

	s2, err := a.NewStream(context.Background(), "peer-b", addrB)
	require.NoError(t, err)
	defer s2.Close()

	// 只拨号一次，第二条流复用连接
	assert.Equal(t, int32(1), transport.dials.Load())
	assert.Len(t, a.ConnsToPeer("peer-b"), 1)

	t.Log("✅ 连接复用成功")
}

// TestNewStream_SelfHealing 测试失效连接被剔除并拨号新连接
func TestNewStream_SelfHealing(t *testing.T) {
	hub := memory.NewHub()
	a, transport := testSwarm(t, hub, "peer-a")
	b, addrB := listeningSwarm(t, hub, "peer-b")
	b.SetInboundStreamHandler(func(stream pkgif.Stream) {})

	s1, err := a.NewStream(context.Background(), "peer-b", addrB)
	require.NoError(t, err)
	s1.Close()
	require.Equal(t, int32(1), transport.dials.Load())

	// 强制断开底层连接（模拟对端崩溃）
	conns := a.ConnsToPeer("peer-b")
	require.Len(t, conns, 1)
	staleConn := conns[0].(*SwarmConn)
	require.NoError(t, staleConn.conn.Close())

	// 下一次开流：失效句柄被剔除，拨号新连接
	s2, err := a.NewStream(context.Background(), "peer-b", addrB)
	require.NoError(t, err)
	defer s2.Close()

	assert.Equal(t, int32(2), transport.dials.Load())

	// 池中只剩新连接，失效句柄已清理
	fresh := a.ConnsToPeer("peer-b")
	require.Len(t, fresh, 1)
	assert.NotSame(t, staleConn, fresh[0])

	t.Log("✅ 连接池自修复成功")
}

// TestNewStream_NoAddrNoConn 测试无连接且无后备地址时失败
func TestNewStream_NoAddrNoConn(t *testing.T) {
	hub := memory.NewHub()
	a, _ := testSwarm(t, hub, "peer-a")

	_, err := a.NewStream(context.Background(), "peer-b", "")
	assert.ErrorIs(t, err, ErrNoConnection)
}

// TestDialPeer_Concurrent 测试并发拨号合并为一次
func TestDialPeer_Concurrent(t *testing.T) {
	hub := memory.NewHub()
	a, transport := testSwarm(t, hub, "peer-a")
	b, addrB := listeningSwarm(t, hub, "peer-b")
	b.SetInboundStreamHandler(func(stream pkgif.Stream) {})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.DialPeer(context.Background(), "peer-b", addrB)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// singleflight 合并：至多一次真实拨号
	assert.Equal(t, int32(1), transport.dials.Load())
	assert.Len(t, a.ConnsToPeer("peer-b"), 1)
}

// TestDialPeer_TimeoutByClock 测试拨号超时由注入的时间源驱动
func TestDialPeer_TimeoutByClock(t *testing.T) {
	mock := clock.NewMock()
	s, err := NewSwarm("peer-a",
		WithTransport(&stuckTransport{}),
		WithClock(mock),
		WithConfig(&Config{DialTimeout: 5 * time.Second, NewStreamTimeout: time.Second}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	errCh := make(chan error, 1)
	go func() {
		_, err := s.DialPeer(context.Background(), "peer-b", "/memory/x")
		errCh <- err
	}()

	// 传输层不返回，推进模拟时钟直到超时触发
	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	t.Log("✅ 模拟时钟驱动拨号超时")
}

// ============================================================================
//                              关闭语义
// ============================================================================

// TestClose_Idempotent 测试重复关闭无副作用
func TestClose_Idempotent(t *testing.T) {
	hub := memory.NewHub()
	a, _ := testSwarm(t, hub, "peer-a")
	_, addrB := listeningSwarm(t, hub, "peer-b")

	_, err := a.DialPeer(context.Background(), "peer-b", addrB)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	// 关闭后操作快速失败
	_, err = a.DialPeer(context.Background(), "peer-b", addrB)
	assert.ErrorIs(t, err, ErrSwarmClosed)
	_, err = a.NewStream(context.Background(), "peer-b", addrB)
	assert.ErrorIs(t, err, ErrSwarmClosed)
	assert.Nil(t, a.Peers())
}

// TestClose_StopsAcceptLoops 测试关闭后 accept 循环全部退出
func TestClose_StopsAcceptLoops(t *testing.T) {
	hub := memory.NewHub()
	a, addrA := listeningSwarm(t, hub, "peer-a")

	done := make(chan struct{})
	go func() {
		// Close 内部等待所有循环退出
		_ = a.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close 未在期限内返回，循环可能泄漏")
	}

	// 监听器已释放，新拨号被拒
	b, _ := testSwarm(t, hub, "peer-b")
	_, err := b.DialPeer(context.Background(), "peer-a", addrA)
	assert.Error(t, err)
}

// TestClose_ConcurrentListenDial 测试 Listen、DialPeer 与 Close 并发时循环不泄漏
//
// Close 在等待后台循环退出前以锁屏障挡住正在注册的循环，
// 任一先后顺序都不应 panic 或悬挂。
func TestClose_ConcurrentListenDial(t *testing.T) {
	hub := memory.NewHub()
	b, addrB := listeningSwarm(t, hub, "peer-b")
	b.SetInboundStreamHandler(func(stream pkgif.Stream) {})

	for i := 0; i < 20; i++ {
		s, err := NewSwarm("peer-a", WithTransport(memory.New(hub, "peer-a")))
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			_ = s.Listen("/memory/auto")
		}()
		go func() {
			defer wg.Done()
			_, _ = s.DialPeer(context.Background(), "peer-b", addrB)
		}()
		go func() {
			defer wg.Done()
			_ = s.Close()
		}()
		wg.Wait()

		// 关闭完成后所有入口都快速失败
		require.ErrorIs(t, s.Listen("/memory/auto"), ErrSwarmClosed)
		_, err = s.DialPeer(context.Background(), "peer-b", addrB)
		require.ErrorIs(t, err, ErrSwarmClosed)
	}

	t.Log("✅ 并发关闭无循环泄漏")
}
