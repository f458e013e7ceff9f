package protocol

import (
	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
)

// Params 协商器依赖参数
type Params struct {
	fx.In

	Registry pkgif.ProtocolRegistry
	Options  []Option `group:"negotiator_options"`
}

// Module Protocol Fx 模块
//
// 提供协议注册表与协商器。
var Module = fx.Module("protocol",
	fx.Provide(provideRegistry),
	fx.Provide(provideNegotiator),
)

// provideRegistry 创建协议注册表
func provideRegistry() pkgif.ProtocolRegistry {
	return NewRegistry()
}

// provideNegotiator 创建协商器
func provideNegotiator(params Params) pkgif.Negotiator {
	return NewNegotiator(params.Registry, params.Options...)
}
