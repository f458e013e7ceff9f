package quic

import (
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/types"
)

// streamResetCode Reset 时发送的应用层错误码
const streamResetCode quic.StreamErrorCode = 0

// 确保实现接口
var _ pkgif.Stream = (*Stream)(nil)

// Stream QUIC 流封装
type Stream struct {
	quicStream quic.Stream
	conn       *Connection

	protoMu sync.RWMutex
	proto   types.ProtocolID

	closeOnce sync.Once
}

// newStream 创建流封装
func newStream(qs quic.Stream, conn *Connection) *Stream {
	return &Stream{
		quicStream: qs,
		conn:       conn,
	}
}

// Read 从流中读取数据
func (s *Stream) Read(p []byte) (int, error) {
	return s.quicStream.Read(p)
}

// Write 向流写入数据
func (s *Stream) Write(p []byte) (int, error) {
	return s.quicStream.Write(p)
}

// Close 关闭流（写端关闭，对端读到 EOF）
func (s *Stream) Close() error {
	s.closeOnce.Do(func() { s.conn.removeStream() })
	return s.quicStream.Close()
}

// Protocol 返回协商后的协议 ID
func (s *Stream) Protocol() types.ProtocolID {
	s.protoMu.RLock()
	defer s.protoMu.RUnlock()
	return s.proto
}

// SetProtocol 设置协议 ID
func (s *Stream) SetProtocol(proto types.ProtocolID) {
	s.protoMu.Lock()
	s.proto = proto
	s.protoMu.Unlock()
}

// Conn 返回所属连接
func (s *Stream) Conn() pkgif.Connection {
	return s.conn
}

// Reset 强制中止流，两端都收到错误
func (s *Stream) Reset() error {
	s.closeOnce.Do(func() { s.conn.removeStream() })
	s.quicStream.CancelRead(streamResetCode)
	s.quicStream.CancelWrite(streamResetCode)
	return nil
}

// SetDeadline 设置读写超时
func (s *Stream) SetDeadline(t time.Time) error {
	return s.quicStream.SetDeadline(t)
}

// SetReadDeadline 设置读超时
func (s *Stream) SetReadDeadline(t time.Time) error {
	return s.quicStream.SetReadDeadline(t)
}

// SetWriteDeadline 设置写超时
func (s *Stream) SetWriteDeadline(t time.Time) error {
	return s.quicStream.SetWriteDeadline(t)
}
