package handle

import (
	"sync"
)

// Handle 代际校验句柄
//
// 由槽位下标和代际号组成的不透明令牌。零值无效。
type Handle struct {
	index uint32
	gen   uint32
}

// Valid 检查句柄是否为非零值
//
// 代际号从 1 开始，零值句柄永远解析失败。
func (h Handle) Valid() bool {
	return h.gen != 0
}

// slot 槽位
type slot[T any] struct {
	value T
	gen   uint32
	live  bool
}

// Arena 句柄分配器
//
// 槽位数组 + 空闲链表。释放槽位时代际号递增，
// 持有旧句柄的调用方 Resolve 时会得到 ok=false。
type Arena[T any] struct {
	mu    sync.RWMutex
	slots []slot[T]
	free  []uint32
}

// NewArena 创建句柄分配器
func NewArena[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Put 存入对象，返回其句柄
func (a *Arena[T]) Put(value T) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.value = value
		s.live = true
		return Handle{index: idx, gen: s.gen}
	}

	a.slots = append(a.slots, slot[T]{value: value, gen: 1, live: true})
	return Handle{index: uint32(len(a.slots) - 1), gen: 1}
}

// Resolve 解析句柄为活跃对象
//
// 返回的对象引用仅在本次调用范围内使用，不得跨阻塞点存储
// （槽位可能被并发回收复用）。
func (a *Arena[T]) Resolve(h Handle) (T, bool) {
	var zero T

	a.mu.RLock()
	defer a.mu.RUnlock()

	if int(h.index) >= len(a.slots) {
		return zero, false
	}
	s := &a.slots[h.index]
	if !s.live || s.gen != h.gen {
		return zero, false
	}
	return s.value, true
}

// Free 释放句柄对应的槽位
//
// 返回被释放的对象；句柄已失效时返回 ok=false。幂等安全。
func (a *Arena[T]) Free(h Handle) (T, bool) {
	var zero T

	a.mu.Lock()
	defer a.mu.Unlock()

	if int(h.index) >= len(a.slots) {
		return zero, false
	}
	s := &a.slots[h.index]
	if !s.live || s.gen != h.gen {
		return zero, false
	}

	value := s.value
	s.value = zero
	s.live = false
	s.gen++
	a.free = append(a.free, h.index)
	return value, true
}

// Len 返回当前活跃对象数量
func (a *Arena[T]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return len(a.slots) - len(a.free)
}
