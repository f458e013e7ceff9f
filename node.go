package node

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/lib/log"
	"github.com/dep2p/go-node/pkg/types"
)

var logger = log.Logger("node")

// stopTimeout Close 时等待组件停止的上限
const stopTimeout = 15 * time.Second

// Node 点对点网络节点
//
// 对外暴露连接、流与协议协商能力，内部组件由 Fx 组装。
type Node struct {
	app *fx.App

	ident      pkgif.Identity
	swarm      pkgif.Swarm
	registry   pkgif.ProtocolRegistry
	negotiator pkgif.Negotiator

	closed atomic.Bool
}

// New 创建并启动节点
//
// 组件组装完成后立即可用；配置了 WithListenAddrs 时
// 启动即开始监听。失败时已启动的组件会被回滚停止。
func New(ctx context.Context, opts ...Option) (*Node, error) {
	cfg := newNodeConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	node := &Node{}

	app, err := buildFxApp(cfg, node)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	node.app = app

	if err := app.Start(ctx); err != nil {
		return nil, fmt.Errorf("start node: %w", err)
	}

	if len(cfg.listenAddrs) > 0 {
		if err := node.Listen(cfg.listenAddrs...); err != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			_ = app.Stop(stopCtx)
			return nil, fmt.Errorf("listen: %w", err)
		}
	}

	logger.Info("节点已启动", "peerID", node.ID().ShortString())
	return node, nil
}

// ID 返回节点 ID
func (n *Node) ID() types.PeerID {
	return n.ident.ID()
}

// ListenAddrs 返回监听地址
func (n *Node) ListenAddrs() []types.Multiaddr {
	return n.swarm.ListenAddrs()
}

// Peers 返回已连接的节点
func (n *Node) Peers() []types.PeerID {
	return n.swarm.Peers()
}

// Connectedness 返回与指定节点的连接状态
func (n *Node) Connectedness(peerID types.PeerID) types.Connectedness {
	return n.swarm.Connectedness(peerID)
}

// Listen 在指定地址监听
func (n *Node) Listen(addrs ...types.Multiaddr) error {
	if n.closed.Load() {
		return ErrNodeClosed
	}
	return n.swarm.Listen(addrs...)
}

// Connect 预建立到指定节点的连接
//
// 连接进入连接池，后续 OpenStream 直接复用，不再拨号。
func (n *Node) Connect(ctx context.Context, peerID types.PeerID, addr types.Multiaddr) error {
	if n.closed.Load() {
		return ErrNodeClosed
	}
	_, err := n.swarm.DialPeer(ctx, peerID, addr)
	return err
}

// RegisterHandler 注册协议处理器
//
// 协议 ID 独占：重复注册返回 protocol.ErrDuplicateProtocol，
// 原绑定保持不变。
func (n *Node) RegisterHandler(proto types.ProtocolID, handler pkgif.StreamHandler) error {
	if n.closed.Load() {
		return ErrNodeClosed
	}
	return n.registry.Register(proto, handler)
}

// UnregisterHandler 注销协议处理器
func (n *Node) UnregisterHandler(proto types.ProtocolID) error {
	if n.closed.Load() {
		return ErrNodeClosed
	}
	return n.registry.Unregister(proto)
}

// OpenStream 打开到指定节点的协商完成的流
//
// 复用池中连接或按 target 拨号，然后以发起方角色协商 proto。
// 返回的流 Protocol() 已设置；协商失败时流被重置，
// 绝不返回半协商状态的流。
func (n *Node) OpenStream(ctx context.Context, target types.Multiaddr, peerID types.PeerID, proto types.ProtocolID) (pkgif.Stream, error) {
	if n.closed.Load() {
		return nil, ErrNodeClosed
	}
	if err := proto.Validate(); err != nil {
		return nil, err
	}

	stream, err := n.swarm.NewStream(ctx, peerID, target)
	if err != nil {
		return nil, err
	}

	if _, err := n.negotiator.SelectOneOf(stream, proto); err != nil {
		_ = stream.Reset()
		return nil, fmt.Errorf("negotiate %s: %w", proto, err)
	}

	return stream, nil
}

// handleInboundStream 处理入站流
//
// 以响应方角色协商，然后将流分发给注册的处理器。
// 协商在本连接的流接受循环内串行执行，处理器在独立
// goroutine 中运行。协商失败只影响该流。
func (n *Node) handleInboundStream(stream pkgif.Stream) {
	proto, err := n.negotiator.Handle(stream)
	if err != nil {
		logger.Debug("入站流协商失败",
			"remotePeer", stream.Conn().RemotePeer().ShortString(), "error", err)
		_ = stream.Reset()
		return
	}

	handler, ok := n.registry.Handler(proto)
	if !ok {
		// 协商后被并发注销，按未注册处理
		_ = stream.Reset()
		return
	}

	go handler(stream)
}

// Close 关闭节点
//
// 停止顺序：监听器 → 池中连接 → 传输层。幂等，
// 第二次调用直接返回 nil。
func (n *Node) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err := n.app.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop node: %w", err)
	}

	logger.Info("节点已关闭", "peerID", n.ID().ShortString())
	return nil
}
