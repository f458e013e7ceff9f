package node

import (
	"fmt"
	"time"

	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/types"
)

// nodeConfig 节点配置
type nodeConfig struct {
	// identity 节点身份，nil 时自动生成
	identity pkgif.Identity

	// listenAddrs 启动时监听的地址
	listenAddrs []types.Multiaddr

	// transports 用户提供的额外传输层
	transports []pkgif.Transport

	// enableQUIC 是否启用内置 QUIC 传输
	enableQUIC bool

	// negotiationTimeout 协议协商超时，0 使用默认值
	negotiationTimeout time.Duration

	// userFxOptions 用户自定义 Fx 选项
	userFxOptions []fx.Option
}

// newNodeConfig 创建默认配置
func newNodeConfig() *nodeConfig {
	return &nodeConfig{
		enableQUIC: true,
	}
}

// validate 校验配置
func (c *nodeConfig) validate() error {
	if !c.enableQUIC && len(c.transports) == 0 {
		return fmt.Errorf("no transport enabled")
	}
	return nil
}

// Option 节点配置选项
type Option func(*nodeConfig) error

// WithIdentity 使用指定身份
//
// 不设置时自动生成随机 Ed25519 身份。
func WithIdentity(ident pkgif.Identity) Option {
	return func(c *nodeConfig) error {
		if ident == nil {
			return ErrNoIdentity
		}
		c.identity = ident
		return nil
	}
}

// WithListenAddrs 设置启动时监听的地址
func WithListenAddrs(addrs ...types.Multiaddr) Option {
	return func(c *nodeConfig) error {
		for _, addr := range addrs {
			if _, err := types.NewMultiaddr(addr.String()); err != nil {
				return fmt.Errorf("invalid listen addr %q: %w", addr, err)
			}
		}
		c.listenAddrs = append(c.listenAddrs, addrs...)
		return nil
	}
}

// WithTransport 添加自定义传输层
func WithTransport(t pkgif.Transport) Option {
	return func(c *nodeConfig) error {
		if t == nil {
			return fmt.Errorf("nil transport")
		}
		c.transports = append(c.transports, t)
		return nil
	}
}

// WithQUIC 启用或禁用内置 QUIC 传输
//
// 默认启用。禁用时必须通过 WithTransport 提供至少一个传输层。
func WithQUIC(enabled bool) Option {
	return func(c *nodeConfig) error {
		c.enableQUIC = enabled
		return nil
	}
}

// WithNegotiationTimeout 设置协议协商超时
func WithNegotiationTimeout(d time.Duration) Option {
	return func(c *nodeConfig) error {
		if d <= 0 {
			return fmt.Errorf("negotiation timeout must be positive")
		}
		c.negotiationTimeout = d
		return nil
	}
}

// WithFxOptions 附加用户自定义 Fx 选项（高级用法）
func WithFxOptions(opts ...fx.Option) Option {
	return func(c *nodeConfig) error {
		c.userFxOptions = append(c.userFxOptions, opts...)
		return nil
	}
}
