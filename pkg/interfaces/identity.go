// Package interfaces 定义 go-node 公共接口
//
// 本文件定义 Identity 接口，抽象节点的密码学身份。
package interfaces

import (
	"crypto"

	"github.com/dep2p/go-node/pkg/types"
)

// Identity 节点身份
//
// 由密钥对构成，PeerID 从公钥派生。
// 传输层使用 Signer 构造自签名 TLS 证书。
type Identity interface {
	// ID 返回从公钥派生的节点 ID
	ID() types.PeerID

	// Signer 返回用于 TLS 证书签名的私钥
	Signer() crypto.Signer

	// PublicKey 返回公钥
	PublicKey() crypto.PublicKey

	// Sign 使用私钥签名数据
	Sign(data []byte) ([]byte, error)
}
