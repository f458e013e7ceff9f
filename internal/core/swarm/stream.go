package swarm

import (
	"time"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/types"
)

// SwarmStream Swarm 流封装
type SwarmStream struct {
	conn   *SwarmConn
	stream pkgif.Stream
}

var _ pkgif.Stream = (*SwarmStream)(nil)

// newSwarmStream 创建 Swarm 流
func newSwarmStream(conn *SwarmConn, stream pkgif.Stream) *SwarmStream {
	return &SwarmStream{
		conn:   conn,
		stream: stream,
	}
}

// Read 读取数据
func (s *SwarmStream) Read(p []byte) (int, error) {
	return s.stream.Read(p)
}

// Write 写入数据
func (s *SwarmStream) Write(p []byte) (int, error) {
	return s.stream.Write(p)
}

// Close 关闭流
func (s *SwarmStream) Close() error {
	s.conn.removeStream(s)
	return s.stream.Close()
}

// Protocol 返回协商后的协议 ID
func (s *SwarmStream) Protocol() types.ProtocolID {
	return s.stream.Protocol()
}

// SetProtocol 设置协议 ID（协商完成时调用）
func (s *SwarmStream) SetProtocol(proto types.ProtocolID) {
	s.stream.SetProtocol(proto)
}

// Conn 返回所属连接
func (s *SwarmStream) Conn() pkgif.Connection {
	return s.conn
}

// Reset 强制中止流
func (s *SwarmStream) Reset() error {
	s.conn.removeStream(s)
	return s.stream.Reset()
}

// SetDeadline 设置读写超时
func (s *SwarmStream) SetDeadline(t time.Time) error {
	return s.stream.SetDeadline(t)
}

// SetReadDeadline 设置读超时
func (s *SwarmStream) SetReadDeadline(t time.Time) error {
	return s.stream.SetReadDeadline(t)
}

// SetWriteDeadline 设置写超时
func (s *SwarmStream) SetWriteDeadline(t time.Time) error {
	return s.stream.SetWriteDeadline(t)
}
