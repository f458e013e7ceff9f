package protocol

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/types"
)

func nopHandler(pkgif.Stream) {}

// TestRegistry_Register 测试注册与查询
func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	err := r.Register("/echo/1.0.0", nopHandler)
	require.NoError(t, err)

	handler, ok := r.Handler("/echo/1.0.0")
	require.True(t, ok)
	assert.NotNil(t, handler)

	assert.True(t, r.Supported("/echo/1.0.0"))
	assert.False(t, r.Supported("/unknown/1.0.0"))
}

// TestRegistry_Duplicate 测试重复注册失败且原绑定保留
func TestRegistry_Duplicate(t *testing.T) {
	r := NewRegistry()

	invoked := ""
	first := func(pkgif.Stream) { invoked = "first" }
	second := func(pkgif.Stream) { invoked = "second" }

	require.NoError(t, r.Register("/echo/1.0.0", first))

	err := r.Register("/echo/1.0.0", second)
	assert.ErrorIs(t, err, ErrDuplicateProtocol)

	// 原处理器保持绑定
	handler, ok := r.Handler("/echo/1.0.0")
	require.True(t, ok)
	handler(nil)
	assert.Equal(t, "first", invoked)
}

// TestRegistry_Validation 测试非法输入
func TestRegistry_Validation(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Register("", nopHandler), types.ErrInvalidProtocolID)
	assert.ErrorIs(t, r.Register("/bad\nproto", nopHandler), types.ErrInvalidProtocolID)
	assert.ErrorIs(t, r.Register("/echo/1.0.0", nil), ErrNilHandler)
}

// TestRegistry_Unregister 测试注销
func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("/echo/1.0.0", nopHandler))
	require.NoError(t, r.Unregister("/echo/1.0.0"))
	assert.False(t, r.Supported("/echo/1.0.0"))

	assert.ErrorIs(t, r.Unregister("/echo/1.0.0"), ErrProtocolNotRegistered)
}

// TestRegistry_Protocols 测试协议列表
func TestRegistry_Protocols(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("/echo/1.0.0", nopHandler))
	require.NoError(t, r.Register("/ping/1.0.0", nopHandler))

	protocols := r.Protocols()
	assert.Len(t, protocols, 2)
	assert.ElementsMatch(t, []types.ProtocolID{"/echo/1.0.0", "/ping/1.0.0"}, protocols)
}

// TestRegistry_ConcurrentLookups 测试并发查询与注册
func TestRegistry_ConcurrentLookups(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("/echo/1.0.0", nopHandler))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				assert.True(t, r.Supported("/echo/1.0.0"))
			}
		}()
	}

	// 并发注册新协议
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			_ = r.Register("/echo/1.0.0", nopHandler)
		}
	}()

	wg.Wait()
}
