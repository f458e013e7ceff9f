package types

import (
	"errors"
	"strings"

	"github.com/mr-tron/base58"
)

// ============================================================================
//                              PeerID
// ============================================================================

// PeerID 节点标识
//
// 由公钥派生：Base58(SHA256(序列化公钥))。
// 一旦创建不可变，可直接用作 map 键。
type PeerID string

// EmptyPeerID 空节点标识
const EmptyPeerID = PeerID("")

var (
	// ErrInvalidPeerID 无效的 PeerID
	ErrInvalidPeerID = errors.New("invalid peer id")
)

// String 返回字符串表示
func (p PeerID) String() string {
	return string(p)
}

// IsEmpty 检查是否为空
func (p PeerID) IsEmpty() bool {
	return p == ""
}

// ShortString 返回截断表示（用于日志）
func (p PeerID) ShortString() string {
	if len(p) <= 8 {
		return string(p)
	}
	return string(p[:8])
}

// Validate 验证 PeerID 格式
//
// 要求非空且为合法的 Base58 字符串。
func (p PeerID) Validate() error {
	if p == "" {
		return ErrInvalidPeerID
	}
	if _, err := base58.Decode(string(p)); err != nil {
		return ErrInvalidPeerID
	}
	return nil
}

// ParsePeerID 解析 PeerID 字符串
func ParsePeerID(s string) (PeerID, error) {
	p := PeerID(s)
	if err := p.Validate(); err != nil {
		return EmptyPeerID, err
	}
	return p, nil
}

// ============================================================================
//                              ProtocolID
// ============================================================================

// ProtocolID 应用协议标识
//
// 形如 "/echo/1.0.0" 的 UTF-8 字符串，不允许包含换行符
// （换行符是协商协议的行终止符）。
type ProtocolID string

var (
	// ErrInvalidProtocolID 无效的协议标识
	ErrInvalidProtocolID = errors.New("invalid protocol id")
)

// String 返回字符串表示
func (p ProtocolID) String() string {
	return string(p)
}

// Validate 验证协议标识格式
func (p ProtocolID) Validate() error {
	if p == "" {
		return ErrInvalidProtocolID
	}
	if strings.ContainsRune(string(p), '\n') {
		return ErrInvalidProtocolID
	}
	return nil
}
