package swarm

import (
	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
)

// Params Swarm 依赖参数
type Params struct {
	fx.In

	Identity   pkgif.Identity
	Transports []pkgif.Transport `group:"transports"`
	Config     *Config           `optional:"true"`
}

// Result Swarm 模块输出
type Result struct {
	fx.Out

	Swarm pkgif.Swarm
}

// Module Swarm Fx 模块
var Module = fx.Module("swarm",
	fx.Provide(provideSwarm),
)

// provideSwarm 从参数创建 Swarm
func provideSwarm(params Params) (Result, error) {
	opts := []Option{}
	if params.Config != nil {
		opts = append(opts, WithConfig(params.Config))
	}
	for _, t := range params.Transports {
		opts = append(opts, WithTransport(t))
	}

	s, err := NewSwarm(params.Identity.ID(), opts...)
	if err != nil {
		return Result{}, err
	}
	return Result{Swarm: s}, nil
}
