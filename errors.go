package node

import "errors"

// 错误定义
var (
	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("node closed")

	// ErrNoIdentity 未配置身份且自动生成被禁用
	ErrNoIdentity = errors.New("no identity configured")
)
