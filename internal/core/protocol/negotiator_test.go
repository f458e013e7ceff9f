package protocol

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

// mockConn 模拟连接（只提供协商器用到的身份信息）
type mockConn struct {
	remote types.PeerID
}

func (m *mockConn) LocalPeer() types.PeerID            { return "local-peer" }
func (m *mockConn) RemotePeer() types.PeerID           { return m.remote }
func (m *mockConn) RemoteMultiaddr() types.Multiaddr   { return "/ip4/127.0.0.1/udp/1/quic-v1" }
func (m *mockConn) NewStream(ctx context.Context) (pkgif.Stream, error) { return nil, nil }
func (m *mockConn) AcceptStream() (pkgif.Stream, error)                 { return nil, nil }
func (m *mockConn) Stat() types.ConnectionStat                          { return types.ConnectionStat{} }
func (m *mockConn) IsClosed() bool                                      { return false }
func (m *mockConn) Close() error                                        { return nil }

var _ pkgif.Connection = (*mockConn)(nil)

// pipeStream 基于 net.Pipe 的流实现
type pipeStream struct {
	pipe  net.Conn
	conn  *mockConn
	proto types.ProtocolID
}

func (s *pipeStream) Read(p []byte) (int, error)          { return s.pipe.Read(p) }
func (s *pipeStream) Write(p []byte) (int, error)         { return s.pipe.Write(p) }
func (s *pipeStream) Close() error                        { return s.pipe.Close() }
func (s *pipeStream) Protocol() types.ProtocolID          { return s.proto }
func (s *pipeStream) SetProtocol(proto types.ProtocolID)  { s.proto = proto }
func (s *pipeStream) Conn() pkgif.Connection              { return s.conn }
func (s *pipeStream) Reset() error                        { return s.pipe.Close() }
func (s *pipeStream) SetDeadline(t time.Time) error       { return s.pipe.SetDeadline(t) }
func (s *pipeStream) SetReadDeadline(t time.Time) error   { return s.pipe.SetReadDeadline(t) }
func (s *pipeStream) SetWriteDeadline(t time.Time) error  { return s.pipe.SetWriteDeadline(t) }

var _ pkgif.Stream = (*pipeStream)(nil)

// newStreamPair 创建一对互联的流
func newStreamPair() (initiator, responder *pipeStream) {
	a, b := net.Pipe()
	return &pipeStream{pipe: a, conn: &mockConn{remote: "peer-b"}},
		&pipeStream{pipe: b, conn: &mockConn{remote: "peer-a"}}
}

func newTestRegistry(t *testing.T, protocols ...types.ProtocolID) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, p := range protocols {
		require.NoError(t, r.Register(p, nopHandler))
	}
	return r
}

// ============================================================================
//                              协商测试
// ============================================================================

// TestNegotiate_Success 测试双方支持同一协议时协商成功
func TestNegotiate_Success(t *testing.T) {
	out, in := newStreamPair()
	defer out.Close()
	defer in.Close()

	registry := newTestRegistry(t, "/echo/1.0.0")
	initiator := NewNegotiator(nil)
	responder := NewNegotiator(registry)

	type result struct {
		proto types.ProtocolID
		err   error
	}
	done := make(chan result, 1)
	go func() {
		proto, err := responder.Handle(in)
		done <- result{proto, err}
	}()

	proto, err := initiator.SelectOneOf(out, "/echo/1.0.0")
	require.NoError(t, err)
	assert.Equal(t, types.ProtocolID("/echo/1.0.0"), proto)
	assert.Equal(t, types.ProtocolID("/echo/1.0.0"), out.Protocol())

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, types.ProtocolID("/echo/1.0.0"), r.proto)
	assert.Equal(t, types.ProtocolID("/echo/1.0.0"), in.Protocol())

	t.Log("✅ 协议协商成功")
}

// TestNegotiate_Rejected 测试对方不支持协议时收到拒绝
func TestNegotiate_Rejected(t *testing.T) {
	out, in := newStreamPair()
	defer in.Close()

	registry := newTestRegistry(t) // 空注册表
	initiator := NewNegotiator(nil)
	responder := NewNegotiator(registry)

	go func() {
		// 响应方会持续拒绝直到流关闭
		_, _ = responder.Handle(in)
	}()

	_, err := initiator.SelectOneOf(out, "/unknown/1.0.0")
	assert.ErrorIs(t, err, ErrProtocolRejected)

	out.Close()
	t.Log("✅ 不支持的协议被拒绝")
}

// TestNegotiate_FallbackProtocol 测试多协议提议时退回到次选协议
func TestNegotiate_FallbackProtocol(t *testing.T) {
	out, in := newStreamPair()
	defer out.Close()
	defer in.Close()

	registry := newTestRegistry(t, "/echo/1.0.0")
	initiator := NewNegotiator(nil)
	responder := NewNegotiator(registry)

	go func() {
		_, _ = responder.Handle(in)
	}()

	proto, err := initiator.SelectOneOf(out, "/echo/2.0.0", "/echo/1.0.0")
	require.NoError(t, err)
	assert.Equal(t, types.ProtocolID("/echo/1.0.0"), proto)
}

// TestNegotiate_VersionMismatch 测试版本令牌不匹配时双方都失败
func TestNegotiate_VersionMismatch(t *testing.T) {
	out, in := newStreamPair()
	defer out.Close()
	defer in.Close()

	responder := NewNegotiator(newTestRegistry(t, "/echo/1.0.0"))

	done := make(chan error, 1)
	go func() {
		_, err := responder.Handle(in)
		done <- err
	}()

	// 伪造发起方：发送错误的版本令牌
	w := bufio.NewWriter(out)
	require.NoError(t, writeMessage(w, "/multistream/9.9.9"))
	require.NoError(t, w.Flush())

	err := <-done
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

// TestNegotiate_InitiatorVersionMismatch 测试发起方检测到版本不匹配
func TestNegotiate_InitiatorVersionMismatch(t *testing.T) {
	out, in := newStreamPair()
	defer out.Close()
	defer in.Close()

	initiator := NewNegotiator(nil)

	go func() {
		// 伪造响应方：读取版本令牌后回复错误版本
		r := bufio.NewReader(in)
		w := bufio.NewWriter(in)
		_, _ = readMessage(r)
		_ = writeMessage(w, "/multistream/0.0.1")
		_ = w.Flush()
	}()

	_, err := initiator.SelectOneOf(out, "/echo/1.0.0")
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

// TestNegotiate_LS 测试 ls 命令返回协议列表
func TestNegotiate_LS(t *testing.T) {
	out, in := newStreamPair()
	defer out.Close()
	defer in.Close()

	responder := NewNegotiator(newTestRegistry(t, "/echo/1.0.0", "/ping/1.0.0"))

	go func() {
		_, _ = responder.Handle(in)
	}()

	r := bufio.NewReader(out)
	w := bufio.NewWriter(out)

	// 版本交换
	require.NoError(t, writeMessage(w, MultistreamID))
	require.NoError(t, w.Flush())
	resp, err := readMessage(r)
	require.NoError(t, err)
	require.Equal(t, MultistreamID, resp)

	// 发送 ls
	require.NoError(t, writeMessage(w, LS))
	require.NoError(t, w.Flush())

	list, err := readMessage(r)
	require.NoError(t, err)
	assert.Contains(t, list, "/echo/1.0.0")
	assert.Contains(t, list, "/ping/1.0.0")
}

// TestNegotiate_Timeout 测试对方不响应时协商超时
func TestNegotiate_Timeout(t *testing.T) {
	out, in := newStreamPair()
	defer out.Close()
	defer in.Close()

	initiator := NewNegotiator(nil, WithTimeout(50*time.Millisecond))

	// 响应方保持沉默
	_, err := initiator.SelectOneOf(out, "/echo/1.0.0")
	assert.ErrorIs(t, err, ErrNegotiationTimeout)
}

// TestNegotiate_PipelinedData 测试协商帧与首笔应用数据同批到达时数据不丢失
func TestNegotiate_PipelinedData(t *testing.T) {
	out, in := newStreamPair()
	defer out.Close()
	defer in.Close()

	responder := NewNegotiator(newTestRegistry(t, "/echo/1.0.0"))

	// 流水线发起方：版本令牌、协议提议和应用数据一次性写出
	go func() {
		var buf bytes.Buffer
		bw := bufio.NewWriter(&buf)
		_ = writeMessage(bw, MultistreamID)
		_ = writeMessage(bw, "/echo/1.0.0")
		_ = bw.Flush()
		buf.WriteString("ping")
		_, _ = out.Write(buf.Bytes())
	}()
	// 排空响应方的回显帧，让上面的整批写入能够推进
	go func() {
		_, _ = io.Copy(io.Discard, out)
	}()

	proto, err := responder.Handle(in)
	require.NoError(t, err)
	require.Equal(t, types.ProtocolID("/echo/1.0.0"), proto)

	// 协商结束后首笔应用数据必须原样留在流上
	payload := make([]byte, 4)
	_, err = io.ReadFull(in, payload)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(payload))

	t.Log("✅ 流水线应用数据完整保留")
}

// TestNegotiate_CoalescedResponse 测试协议回显与服务端首包同批到达时数据不丢失
func TestNegotiate_CoalescedResponse(t *testing.T) {
	out, in := newStreamPair()
	defer out.Close()
	defer in.Close()

	initiator := NewNegotiator(nil)

	// 伪造响应方：协议回显与首包数据一次性写出
	go func() {
		_, _ = readMessage(in)
		w := bufio.NewWriter(in)
		_ = writeMessage(w, MultistreamID)
		_ = w.Flush()

		_, _ = readMessage(in)
		var buf bytes.Buffer
		bw := bufio.NewWriter(&buf)
		_ = writeMessage(bw, "/echo/1.0.0")
		_ = bw.Flush()
		buf.WriteString("pong")
		_, _ = in.Write(buf.Bytes())
	}()

	proto, err := initiator.SelectOneOf(out, "/echo/1.0.0")
	require.NoError(t, err)
	require.Equal(t, types.ProtocolID("/echo/1.0.0"), proto)

	payload := make([]byte, 4)
	_, err = io.ReadFull(out, payload)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(payload))

	t.Log("✅ 同批到达的服务端首包完整保留")
}

// TestNegotiate_MockClockTimeout 测试超时由注入的时间源驱动
func TestNegotiate_MockClockTimeout(t *testing.T) {
	out, in := newStreamPair()
	defer out.Close()
	defer in.Close()

	mock := clock.NewMock()
	responder := NewNegotiator(newTestRegistry(t), WithClock(mock), WithTimeout(5*time.Second))

	errCh := make(chan error, 1)
	go func() {
		_, err := responder.Handle(in)
		errCh <- err
	}()

	// 对方保持沉默，推进模拟时钟直到超时触发
	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, ErrNegotiationTimeout)
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	t.Log("✅ 模拟时钟驱动协商超时")
}

// TestNegotiate_StreamClosed 测试对方关闭流时返回流关闭错误
func TestNegotiate_StreamClosed(t *testing.T) {
	out, in := newStreamPair()
	defer out.Close()

	initiator := NewNegotiator(nil)

	go func() {
		in.Close()
	}()

	_, err := initiator.SelectOneOf(out, "/echo/1.0.0")
	assert.Error(t, err)
}

// ============================================================================
//                              帧格式测试
// ============================================================================

// TestMessage_RoundTrip 测试消息编解码
func TestMessage_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	require.NoError(t, writeMessage(w, "/echo/1.0.0"))
	require.NoError(t, w.Flush())

	msg, err := readMessage(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, "/echo/1.0.0", msg)
}

// TestMessage_TooLong 测试超长消息被拒绝
func TestMessage_TooLong(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	err := writeMessage(w, strings.Repeat("x", MaxMessageSize+1))
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

// TestMessage_MissingTerminator 测试缺失换行符是帧错误
func TestMessage_MissingTerminator(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	// 手工构造没有换行符的帧
	msg := "/echo/1.0.0"
	_, err := w.Write([]byte{byte(len(msg))})
	require.NoError(t, err)
	_, err = w.WriteString(msg)
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	_, err = readMessage(bufio.NewReader(&buf))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

// TestMessage_OversizeLength 测试超长长度前缀被拒绝
func TestMessage_OversizeLength(t *testing.T) {
	var buf bytes.Buffer
	// varint 编码的超大长度
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x7F})

	_, err := readMessage(bufio.NewReader(&buf))
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

// ============================================================================
//                              缓存测试
// ============================================================================

// TestNegotiate_CacheHint 测试缓存命中后协议提议重排序
func TestNegotiate_CacheHint(t *testing.T) {
	n := NewNegotiator(nil)
	n.cache.Add("peer-x", types.ProtocolID("/echo/2.0.0"))

	reordered := n.reorderByHint("peer-x", []types.ProtocolID{
		"/echo/1.0.0", "/echo/2.0.0", "/echo/3.0.0",
	})
	assert.Equal(t, types.ProtocolID("/echo/2.0.0"), reordered[0])
	assert.Len(t, reordered, 3)

	// 无缓存时保持原序
	same := n.reorderByHint("peer-y", []types.ProtocolID{"/a", "/b"})
	assert.Equal(t, types.ProtocolID("/a"), same[0])
}
