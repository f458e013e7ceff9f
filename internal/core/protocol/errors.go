package protocol

import "errors"

// 注册表错误
var (
	// ErrDuplicateProtocol 协议已注册
	ErrDuplicateProtocol = errors.New("protocol already registered")

	// ErrProtocolNotRegistered 协议未注册
	ErrProtocolNotRegistered = errors.New("protocol not registered")

	// ErrNilHandler 处理器为空
	ErrNilHandler = errors.New("nil stream handler")
)

// 协商错误
//
// 所有协商错误的作用域都是单条流，不会升级为连接级失败。
var (
	// ErrVersionMismatch 版本令牌不匹配
	ErrVersionMismatch = errors.New("multistream version mismatch")

	// ErrProtocolRejected 对方拒绝了所有提议的协议
	ErrProtocolRejected = errors.New("protocol rejected by peer")

	// ErrNegotiationTimeout 协商超时
	ErrNegotiationTimeout = errors.New("negotiation timeout")

	// ErrInvalidMessage 无效的协商消息（帧格式错误）
	ErrInvalidMessage = errors.New("invalid negotiation message")

	// ErrMessageTooLong 消息超过最大长度
	ErrMessageTooLong = errors.New("negotiation message too long")

	// ErrUnexpectedResponse 收到预期之外的响应
	ErrUnexpectedResponse = errors.New("unexpected negotiation response")

	// ErrStreamClosed 协商期间流被关闭
	ErrStreamClosed = errors.New("stream closed during negotiation")

	// ErrTooManyAttempts 超过响应方最大协商尝试次数
	ErrTooManyAttempts = errors.New("too many negotiation attempts")
)
