package identity

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/types"
)

var (
	// ErrEmptyPublicKey 空公钥
	ErrEmptyPublicKey = errors.New("empty public key")

	// ErrInvalidKeySize 密钥长度错误
	ErrInvalidKeySize = errors.New("invalid key size")
)

// ============================================================================
//                              Identity 实现
// ============================================================================

// identity Identity 接口的实现
type identity struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	peerID     types.PeerID
}

// 确保实现接口
var _ pkgif.Identity = (*identity)(nil)

// Generate 生成新的随机身份
func Generate() (pkgif.Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &identity{
		privateKey: priv,
		publicKey:  pub,
		peerID:     PeerIDFromPublicKey(pub),
	}, nil
}

// FromPrivateKey 从已有私钥创建身份
func FromPrivateKey(priv ed25519.PrivateKey) (pkgif.Identity, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeySize
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &identity{
		privateKey: priv,
		publicKey:  pub,
		peerID:     PeerIDFromPublicKey(pub),
	}, nil
}

// FromSeed 从 32 字节种子创建身份（确定性，测试常用）
func FromSeed(seed []byte) (pkgif.Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, ErrInvalidKeySize
	}
	return FromPrivateKey(ed25519.NewKeyFromSeed(seed))
}

// ID 返回节点 ID
func (i *identity) ID() types.PeerID {
	return i.peerID
}

// Signer 返回用于 TLS 证书签名的私钥
func (i *identity) Signer() crypto.Signer {
	return i.privateKey
}

// PublicKey 返回公钥
func (i *identity) PublicKey() crypto.PublicKey {
	return i.publicKey
}

// Sign 签名数据
func (i *identity) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(i.privateKey, data), nil
}

// ============================================================================
//                              PeerID 派生
// ============================================================================

// PeerIDFromPublicKey 从 Ed25519 公钥派生 PeerID
//
// 派生算法：Base58(SHA256(原始 32 字节公钥))。
// 与传输层证书校验中的派生规则保持一致。
func PeerIDFromPublicKey(pub ed25519.PublicKey) types.PeerID {
	hash := sha256.Sum256(pub)
	return types.PeerID(base58.Encode(hash[:]))
}
