// Package identity 实现节点身份管理
//
// 身份由 Ed25519 密钥对构成，PeerID 派生规则：
//
//	PeerID = Base58(SHA256(原始 32 字节公钥))
//
// 传输层使用身份私钥签发自签名 TLS 证书，
// 对端从证书公钥按同一规则派生并校验 PeerID。
package identity
