package quic

import "errors"

// 错误定义
var (
	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("quic: transport closed")

	// ErrConnectionClosed 连接已关闭
	ErrConnectionClosed = errors.New("quic: connection closed")

	// ErrListenerClosed 监听器已关闭
	ErrListenerClosed = errors.New("quic: listener closed")

	// ErrPeerIDMismatch 对端身份与期望不符
	ErrPeerIDMismatch = errors.New("quic: peer ID mismatch")

	// ErrNoPeerCertificate 对端未提供 TLS 证书
	ErrNoPeerCertificate = errors.New("quic: no peer certificate")
)
