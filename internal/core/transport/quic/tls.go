package quic

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	"github.com/dep2p/go-node/internal/core/identity"
	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/types"
)

// nextProto QUIC 握手协商的 ALPN 标识
const nextProto = "go-node"

// certValidity 自签名证书有效期
const certValidity = 180 * 24 * time.Hour

// newTLSConfigs 从节点身份生成服务端/客户端 TLS 配置
//
// 证书由身份私钥自签名，对端 PeerID 从证书公钥派生。
// InsecureSkipVerify 禁用的是标准 CA 链验证，身份校验由
// VerifyPeerCertificate 回调完成，证书不可伪造。
func newTLSConfigs(ident pkgif.Identity) (serverConf, clientConf *tls.Config, err error) {
	cert, err := newCertificate(ident)
	if err != nil {
		return nil, nil, err
	}

	serverConf = &tls.Config{
		Certificates:          []tls.Certificate{cert},
		NextProtos:            []string{nextProto},
		MinVersion:            tls.VersionTLS13,
		InsecureSkipVerify:    true,
		ClientAuth:            tls.RequireAnyClientCert,
		VerifyPeerCertificate: verifyPeerCertificate,
	}

	clientConf = serverConf.Clone()
	clientConf.ClientAuth = tls.NoClientCert

	return serverConf, clientConf, nil
}

// newCertificate 用身份私钥签发自签名证书
func newCertificate(ident pkgif.Identity) (tls.Certificate, error) {
	signer := ident.Signer()
	if signer == nil {
		return tls.Certificate{}, fmt.Errorf("identity has no signer")
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			CommonName: "go-node " + ident.ID().ShortString(),
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, signer.Public(), signer)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create certificate: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  signer,
	}, nil
}

// verifyPeerCertificate 验证对端证书
//
// 只要求证书可解析、公钥可派生 PeerID、处于有效期内。
// 与期望 PeerID 的比对在连接建立后由调用方完成。
func verifyPeerCertificate(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		return ErrNoPeerCertificate
	}

	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("parse peer certificate: %w", err)
	}

	if _, err := peerIDFromCert(cert); err != nil {
		return err
	}

	now := time.Now()
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("peer certificate not yet valid")
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("peer certificate expired")
	}

	return nil
}

// peerIDFromCert 从证书公钥派生 PeerID
//
// 派生规则与 identity 模块一致：Base58(SHA256(原始 Ed25519 公钥))。
func peerIDFromCert(cert *x509.Certificate) (types.PeerID, error) {
	pub, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return "", fmt.Errorf("unsupported public key type: %T", cert.PublicKey)
	}
	return identity.PeerIDFromPublicKey(pub), nil
}

// extractPeerID 从 TLS 连接状态提取对端 PeerID
//
// 始终从证书公钥派生，这是唯一可信来源。
func extractPeerID(state tls.ConnectionState) (types.PeerID, error) {
	if len(state.PeerCertificates) == 0 {
		return "", ErrNoPeerCertificate
	}
	return peerIDFromCert(state.PeerCertificates[0])
}

// verifyRemotePeer 比对连接状态中的对端身份与期望值
//
// expected 为空时跳过比对（仅提取）。
func verifyRemotePeer(state tls.ConnectionState, expected types.PeerID) (types.PeerID, error) {
	actual, err := extractPeerID(state)
	if err != nil {
		return "", err
	}
	if !expected.IsEmpty() && actual != expected {
		return "", fmt.Errorf("%w: expected %s, got %s",
			ErrPeerIDMismatch, expected.ShortString(), actual.ShortString())
	}
	return actual, nil
}
