package swarm

import (
	"sync"

	"github.com/dep2p/go-node/internal/core/handle"
	"github.com/dep2p/go-node/pkg/types"
)

// ============================================================================
//                              连接池
// ============================================================================

// pool 连接池
//
// peerID → 句柄序列（插入序）。连接对象存放在句柄分配器中，
// 池本身只记句柄；解析失败即视为连接失效。
//
// 并发纪律：peers 用 sync.Map 分散不同节点间的争用，
// 每个节点的句柄序列由各自的 peerSlot 互斥锁保护。
// 任何锁都不跨拨号/开流等 I/O 持有。
type pool struct {
	arena *handle.Arena[*SwarmConn]
	peers sync.Map // types.PeerID -> *peerSlot
}

// peerSlot 单个节点的句柄序列
type peerSlot struct {
	mu      sync.Mutex
	handles []handle.Handle
}

// newPool 创建连接池
func newPool() *pool {
	return &pool{
		arena: handle.NewArena[*SwarmConn](),
	}
}

// slotFor 获取或创建节点槽位
func (p *pool) slotFor(peerID types.PeerID) *peerSlot {
	if v, ok := p.peers.Load(peerID); ok {
		return v.(*peerSlot)
	}
	v, _ := p.peers.LoadOrStore(peerID, &peerSlot{})
	return v.(*peerSlot)
}

// add 将连接加入池，返回其句柄
//
// 句柄在连接发布到槽位之前写入连接自身，避免并发关闭路径
// 读到零值句柄。
func (p *pool) add(peerID types.PeerID, conn *SwarmConn) handle.Handle {
	h := p.arena.Put(conn)
	conn.h = h

	slot := p.slotFor(peerID)
	slot.mu.Lock()
	slot.handles = append(slot.handles, h)
	slot.mu.Unlock()

	return h
}

// remove 释放句柄并从节点槽位移除
func (p *pool) remove(peerID types.PeerID, h handle.Handle) {
	p.arena.Free(h)
	p.dropHandle(peerID, h)
}

// dropHandle 仅从槽位序列移除句柄（分配器侧已失效时用）
func (p *pool) dropHandle(peerID types.PeerID, h handle.Handle) {
	v, ok := p.peers.Load(peerID)
	if !ok {
		return
	}
	slot := v.(*peerSlot)

	slot.mu.Lock()
	defer slot.mu.Unlock()
	for i, cur := range slot.handles {
		if cur == h {
			slot.handles = append(slot.handles[:i], slot.handles[i+1:]...)
			break
		}
	}
}

// handlesFor 返回节点句柄快照，最近加入的在前
func (p *pool) handlesFor(peerID types.PeerID) []handle.Handle {
	v, ok := p.peers.Load(peerID)
	if !ok {
		return nil
	}
	slot := v.(*peerSlot)

	slot.mu.Lock()
	defer slot.mu.Unlock()

	out := make([]handle.Handle, len(slot.handles))
	for i, h := range slot.handles {
		out[len(slot.handles)-1-i] = h
	}
	return out
}

// resolve 解析句柄为连接
func (p *pool) resolve(h handle.Handle) (*SwarmConn, bool) {
	return p.arena.Resolve(h)
}

// connsFor 返回节点的所有活跃连接（解析失败的句柄顺带剔除）
func (p *pool) connsFor(peerID types.PeerID) []*SwarmConn {
	var conns []*SwarmConn
	for _, h := range p.handlesFor(peerID) {
		conn, ok := p.resolve(h)
		if !ok {
			p.dropHandle(peerID, h)
			continue
		}
		conns = append(conns, conn)
	}
	return conns
}

// peerIDs 返回至少有一条活跃连接的节点
func (p *pool) peerIDs() []types.PeerID {
	var ids []types.PeerID
	p.peers.Range(func(key, value any) bool {
		slot := value.(*peerSlot)
		slot.mu.Lock()
		n := len(slot.handles)
		slot.mu.Unlock()
		if n > 0 {
			ids = append(ids, key.(types.PeerID))
		}
		return true
	})
	return ids
}

// drain 取出并清空所有连接（关闭 Swarm 时用）
func (p *pool) drain() []*SwarmConn {
	var conns []*SwarmConn
	p.peers.Range(func(key, value any) bool {
		slot := value.(*peerSlot)

		slot.mu.Lock()
		handles := slot.handles
		slot.handles = nil
		slot.mu.Unlock()

		for _, h := range handles {
			if conn, ok := p.arena.Free(h); ok {
				conns = append(conns, conn)
			}
		}
		p.peers.Delete(key)
		return true
	})
	return conns
}
