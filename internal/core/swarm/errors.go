package swarm

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-node/pkg/types"
)

var (
	// ErrSwarmClosed Swarm 已关闭
	ErrSwarmClosed = errors.New("swarm closed")

	// ErrNoTransport 没有可处理该地址的传输层
	ErrNoTransport = errors.New("no transport for address")

	// ErrNoAddresses 没有可监听/拨号的地址
	ErrNoAddresses = errors.New("no addresses")

	// ErrDialToSelf 尝试拨号自己
	ErrDialToSelf = errors.New("dial to self attempted")

	// ErrNoConnection 没有到指定节点的连接
	ErrNoConnection = errors.New("no connection to peer")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("invalid config")
)

// DialError 拨号错误
//
// 对单次 DialPeer 调用是终止性错误；是否重试由调用方决定。
type DialError struct {
	Peer   types.PeerID
	Errors []error
}

func (e *DialError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("failed to dial %s: unknown error", e.Peer.ShortString())
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("failed to dial %s: %v", e.Peer.ShortString(), e.Errors[0])
	}
	return fmt.Sprintf("failed to dial %s: %d errors: %v", e.Peer.ShortString(), len(e.Errors), e.Errors)
}

// Unwrap 返回第一个底层错误
func (e *DialError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[0]
}
