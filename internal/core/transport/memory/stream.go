package memory

import (
	"net"
	"time"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/types"
)

// Stream 内存流
//
// 基于 net.Pipe 的同步双工字节流，支持读写超时。
type Stream struct {
	pipe  net.Conn
	conn  *Conn
	proto types.ProtocolID
}

var _ pkgif.Stream = (*Stream)(nil)

// newStream 创建流封装
func newStream(pipe net.Conn, conn *Conn) *Stream {
	return &Stream{pipe: pipe, conn: conn}
}

// Read 读取数据
func (s *Stream) Read(p []byte) (int, error) {
	return s.pipe.Read(p)
}

// Write 写入数据
func (s *Stream) Write(p []byte) (int, error) {
	return s.pipe.Write(p)
}

// Close 关闭流
func (s *Stream) Close() error {
	return s.pipe.Close()
}

// Protocol 返回协商后的协议 ID
func (s *Stream) Protocol() types.ProtocolID {
	return s.proto
}

// SetProtocol 设置协议 ID
func (s *Stream) SetProtocol(proto types.ProtocolID) {
	s.proto = proto
}

// Conn 返回所属连接
func (s *Stream) Conn() pkgif.Connection {
	return s.conn
}

// Reset 强制中止流
func (s *Stream) Reset() error {
	return s.pipe.Close()
}

// SetDeadline 设置读写超时
func (s *Stream) SetDeadline(t time.Time) error {
	return s.pipe.SetDeadline(t)
}

// SetReadDeadline 设置读超时
func (s *Stream) SetReadDeadline(t time.Time) error {
	return s.pipe.SetReadDeadline(t)
}

// SetWriteDeadline 设置写超时
func (s *Stream) SetWriteDeadline(t time.Time) error {
	return s.pipe.SetWriteDeadline(t)
}
