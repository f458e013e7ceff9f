package swarm

import (
	"time"

	"github.com/benbjohnson/clock"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
)

// Config Swarm 配置
type Config struct {
	// DialTimeout 单次拨号超时
	DialTimeout time.Duration

	// NewStreamTimeout 在已有连接上创建流的超时
	NewStreamTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		DialTimeout:      15 * time.Second,
		NewStreamTimeout: 10 * time.Second,
	}
}

// Option Swarm 配置选项
type Option func(*Swarm) error

// WithConfig 设置配置
func WithConfig(cfg *Config) Option {
	return func(s *Swarm) error {
		if cfg == nil {
			return ErrInvalidConfig
		}
		s.config = cfg
		return nil
	}
}

// WithClock 设置时间源（测试用）
func WithClock(clk clock.Clock) Option {
	return func(s *Swarm) error {
		s.clk = clk
		return nil
	}
}

// WithTransport 添加传输层
func WithTransport(t pkgif.Transport) Option {
	return func(s *Swarm) error {
		s.AddTransport(t)
		return nil
	}
}
