package quic

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/quic-go/quic-go"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/types"
)

// 确保实现接口
var _ pkgif.Listener = (*Listener)(nil)

// Listener QUIC 监听器
type Listener struct {
	quicListener *quic.Listener
	localAddr    types.Multiaddr
	localPeer    types.PeerID
	closed       atomic.Bool
}

// Accept 接受连接
//
// 对端 PeerID 从握手后的 TLS 状态派生，派生失败的连接
// 直接丢弃并继续等待下一个。
func (l *Listener) Accept() (pkgif.Connection, error) {
	for {
		if l.closed.Load() {
			return nil, ErrListenerClosed
		}

		quicConn, err := l.quicListener.Accept(context.Background())
		if err != nil {
			if l.closed.Load() {
				return nil, ErrListenerClosed
			}
			return nil, fmt.Errorf("accept: %w", err)
		}

		remotePeer, err := extractPeerID(quicConn.ConnectionState().TLS)
		if err != nil {
			logger.Warn("入站连接身份派生失败，已丢弃",
				"remoteAddr", quicConn.RemoteAddr(), "error", err)
			_ = quicConn.CloseWithError(0, "peer identity verification failed")
			continue
		}

		remoteAddr := remoteMultiaddr(quicConn)
		return newConnection(quicConn, l.localPeer, remotePeer, remoteAddr, types.DirInbound), nil
	}
}

// Multiaddr 返回实际监听地址
func (l *Listener) Multiaddr() types.Multiaddr {
	return l.localAddr
}

// Close 关闭监听器
func (l *Listener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.quicListener.Close()
}

// remoteMultiaddr 从 QUIC 连接提取远端 multiaddr
func remoteMultiaddr(quicConn quic.Connection) types.Multiaddr {
	udpAddr, ok := quicConn.RemoteAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	addr, err := types.FromHostPort(udpAddr.IP.String(), udpAddr.Port)
	if err != nil {
		return ""
	}
	return addr
}
