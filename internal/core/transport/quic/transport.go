package quic

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/lib/log"
	"github.com/dep2p/go-node/pkg/types"
)

var logger = log.Logger("core/transport/quic")

// 确保实现接口
var _ pkgif.Transport = (*Transport)(nil)

// Transport QUIC 传输
//
// 监听和拨号共享同一个 quic.Transport 与 UDP socket，
// 保证出站连接使用与监听相同的本地端口。
type Transport struct {
	mu sync.RWMutex

	localPeer  types.PeerID
	serverConf *tls.Config
	clientConf *tls.Config
	config     *quic.Config

	// 共享的 quic.Transport 和 UDP socket，首次使用时创建
	quicTransport *quic.Transport
	udpConn       *net.UDPConn

	listeners map[string]*Listener
	closed    bool
}

// New 创建 QUIC 传输
//
// TLS 配置从身份派生，证书绑定节点 PeerID。
func New(ident pkgif.Identity) (*Transport, error) {
	serverConf, clientConf, err := newTLSConfigs(ident)
	if err != nil {
		return nil, fmt.Errorf("build tls config: %w", err)
	}

	return &Transport{
		localPeer:  ident.ID(),
		serverConf: serverConf,
		clientConf: clientConf,
		config: &quic.Config{
			// KeepAlivePeriod + MaxIdleTimeout 共同决定非优雅断开的
			// 最大检测延迟（约 9s）
			MaxIdleTimeout:        6 * time.Second,
			KeepAlivePeriod:       3 * time.Second,
			MaxIncomingStreams:    1024,
			MaxIncomingUniStreams: 1024,
		},
		listeners: make(map[string]*Listener),
	}, nil
}

// ensureQUICTransport 按需创建共享 quic.Transport
//
// laddr 为 nil 时绑定随机端口。调用方必须持有 t.mu。
func (t *Transport) ensureQUICTransport(laddr *net.UDPAddr) error {
	if t.quicTransport != nil {
		return nil
	}
	if laddr == nil {
		laddr = &net.UDPAddr{Port: 0}
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}
	t.udpConn = conn
	t.quicTransport = &quic.Transport{Conn: conn}
	return nil
}

// Dial 拨号连接
//
// 握手完成后从 TLS 状态提取对端 PeerID 并与期望值比对，
// 不匹配时立即关闭连接。
func (t *Transport) Dial(ctx context.Context, raddr types.Multiaddr, peerID types.PeerID) (pkgif.Connection, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	if err := t.ensureQUICTransport(nil); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	quicTransport := t.quicTransport
	t.mu.Unlock()

	udpAddr, err := parseMultiaddr(raddr)
	if err != nil {
		return nil, fmt.Errorf("parse address: %w", err)
	}

	quicConn, err := quicTransport.Dial(ctx, udpAddr, t.clientConf, t.config)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", raddr, err)
	}

	remotePeer, err := verifyRemotePeer(quicConn.ConnectionState().TLS, peerID)
	if err != nil {
		_ = quicConn.CloseWithError(0, "peer identity verification failed")
		return nil, err
	}

	return newConnection(quicConn, t.localPeer, remotePeer, raddr, types.DirOutbound), nil
}

// CanDial 检查是否为 QUIC 地址
func (t *Transport) CanDial(addr types.Multiaddr) bool {
	_, err := addr.ValueForProtocol("quic-v1")
	return err == nil
}

// Listen 监听地址
//
// 首次监听时绑定共享 UDP socket，后续 Dial 复用同一端口。
func (t *Transport) Listen(laddr types.Multiaddr) (pkgif.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTransportClosed
	}

	udpAddr, err := parseMultiaddr(laddr)
	if err != nil {
		return nil, fmt.Errorf("parse address: %w", err)
	}

	if err := t.ensureQUICTransport(udpAddr); err != nil {
		return nil, err
	}

	quicListener, err := t.quicTransport.Listen(t.serverConf, t.config)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	// 端口为 0 时动态分配，回读实际地址
	actualAddr := localMultiaddr(t.udpConn.LocalAddr().(*net.UDPAddr))

	listener := &Listener{
		quicListener: quicListener,
		localAddr:    actualAddr,
		localPeer:    t.localPeer,
	}
	t.listeners[actualAddr.String()] = listener

	logger.Info("QUIC 监听已启动", "addr", actualAddr)
	return listener, nil
}

// Protocols 返回支持的传输协议段
func (t *Transport) Protocols() []string {
	return []string{"quic-v1"}
}

// Close 关闭传输
//
// 关闭共享 quic.Transport 会一并关闭其上的所有连接。
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	for _, l := range t.listeners {
		_ = l.Close()
	}
	t.listeners = make(map[string]*Listener)

	if t.quicTransport != nil {
		_ = t.quicTransport.Close()
		t.quicTransport = nil
	}
	if t.udpConn != nil {
		_ = t.udpConn.Close()
		t.udpConn = nil
	}

	return nil
}

// parseMultiaddr 解析 multiaddr 到 UDP 地址
func parseMultiaddr(addr types.Multiaddr) (*net.UDPAddr, error) {
	ip := addr.IP()
	if ip == nil {
		return nil, fmt.Errorf("%w: no IP in %s", types.ErrInvalidMultiaddr, addr)
	}
	if _, err := addr.ValueForProtocol("udp"); err != nil {
		return nil, fmt.Errorf("%w: no UDP port in %s", types.ErrInvalidMultiaddr, addr)
	}
	return &net.UDPAddr{IP: ip, Port: addr.Port()}, nil
}

// localMultiaddr 从 UDP 地址构造 multiaddr
func localMultiaddr(addr *net.UDPAddr) types.Multiaddr {
	ipProto := "ip4"
	ip := addr.IP
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	} else {
		ipProto = "ip6"
	}
	return types.Multiaddr(fmt.Sprintf("/%s/%s/udp/%d/quic-v1", ipProto, ip, addr.Port))
}
