package protocol

import (
	"sync"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/types"
)

// Registry 协议注册表
//
// 协议 ID → 流处理器 的线程安全映射。
// 注册是启动期的低频写操作，查询是每条入站流都要走的热路径，
// 因此使用读写锁：查询并发，注册互斥。
type Registry struct {
	mu       sync.RWMutex
	handlers map[types.ProtocolID]pkgif.StreamHandler
}

var _ pkgif.ProtocolRegistry = (*Registry)(nil)

// NewRegistry 创建协议注册表
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[types.ProtocolID]pkgif.StreamHandler),
	}
}

// Register 注册协议处理器
//
// 重复注册同一协议返回 ErrDuplicateProtocol，原有绑定保持不变。
func (r *Registry) Register(proto types.ProtocolID, handler pkgif.StreamHandler) error {
	if err := proto.Validate(); err != nil {
		return err
	}
	if handler == nil {
		return ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[proto]; exists {
		return ErrDuplicateProtocol
	}

	r.handlers[proto] = handler
	return nil
}

// Unregister 注销协议处理器
func (r *Registry) Unregister(proto types.ProtocolID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[proto]; !exists {
		return ErrProtocolNotRegistered
	}

	delete(r.handlers, proto)
	return nil
}

// Handler 查询协议处理器
func (r *Registry) Handler(proto types.ProtocolID) (pkgif.StreamHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[proto]
	return handler, ok
}

// Supported 检查协议是否已注册
//
// 协商器用此回答"是否支持 X"，不暴露处理器本身。
func (r *Registry) Supported(proto types.ProtocolID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.handlers[proto]
	return ok
}

// Protocols 返回所有已注册协议
func (r *Registry) Protocols() []types.ProtocolID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	protocols := make([]types.ProtocolID, 0, len(r.handlers))
	for id := range r.handlers {
		protocols = append(protocols, id)
	}
	return protocols
}
