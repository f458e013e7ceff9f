package node

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-node/internal/core/identity"
	"github.com/dep2p/go-node/internal/core/protocol"
	"github.com/dep2p/go-node/internal/core/swarm"
	quictransport "github.com/dep2p/go-node/internal/core/transport/quic"
	pkgif "github.com/dep2p/go-node/pkg/interfaces"
)

// buildFxApp 组装 Fx 应用
//
// 加载顺序（按依赖）：Identity → Transport → Protocol → Swarm → Node 注入。
func buildFxApp(cfg *nodeConfig, node *Node) (*fx.App, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	modules := []fx.Option{
		// 身份：用户提供或自动生成
		fx.Provide(func() (pkgif.Identity, error) {
			if cfg.identity != nil {
				return cfg.identity, nil
			}
			return identity.Generate()
		}),
	}

	// 内置 QUIC 传输
	if cfg.enableQUIC {
		modules = append(modules, fx.Provide(
			fx.Annotate(
				func(ident pkgif.Identity) (pkgif.Transport, error) {
					return quictransport.New(ident)
				},
				fx.ResultTags(`group:"transports"`),
			),
		))
	}

	// 用户传输层
	for _, t := range cfg.transports {
		t := t
		modules = append(modules, fx.Provide(
			fx.Annotate(
				func() pkgif.Transport { return t },
				fx.ResultTags(`group:"transports"`),
			),
		))
	}

	// 协商器配置
	if cfg.negotiationTimeout > 0 {
		timeout := cfg.negotiationTimeout
		modules = append(modules, fx.Provide(
			fx.Annotate(
				func() protocol.Option { return protocol.WithTimeout(timeout) },
				fx.ResultTags(`group:"negotiator_options"`),
			),
		))
	}

	modules = append(modules,
		protocol.Module,
		swarm.Module,
	)

	if len(cfg.userFxOptions) > 0 {
		modules = append(modules, cfg.userFxOptions...)
	}

	modules = append(modules,
		fx.Invoke(injectNodeComponents(node)),
		fx.NopLogger,
	)

	return fx.New(modules...), nil
}

// injectParams Node 组件注入参数
type injectParams struct {
	fx.In

	Identity   pkgif.Identity
	Swarm      pkgif.Swarm
	Registry   pkgif.ProtocolRegistry
	Negotiator pkgif.Negotiator
	Transports []pkgif.Transport `group:"transports"`
}

// injectNodeComponents 将组装好的组件注入 Node 并挂接生命周期
func injectNodeComponents(node *Node) func(fx.Lifecycle, injectParams) {
	return func(lc fx.Lifecycle, params injectParams) {
		node.ident = params.Identity
		node.swarm = params.Swarm
		node.registry = params.Registry
		node.negotiator = params.Negotiator

		// 入站流：先协商，再分发
		params.Swarm.SetInboundStreamHandler(node.handleInboundStream)

		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				// 先关 Swarm（监听器、连接、循环），再关传输层
				err := params.Swarm.Close()
				for _, t := range params.Transports {
					_ = t.Close()
				}
				return err
			},
		})
	}
}
