package types

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ============================================================================
//                              Multiaddr
// ============================================================================

// Multiaddr 统一地址类型（值对象）
//
// go-node 内部唯一的地址表示形式，所有用于拨号/监听的地址
// 必须是 Multiaddr 类型。
//
// 约束：
//   - String() 始终返回以 "/" 开头的 canonical 形式
//
// 格式示例：
//   - /ip4/192.168.1.1/udp/4001/quic-v1
//   - /ip6/::1/udp/4001/quic-v1
//   - /memory/addr-1（测试用内存传输）
type Multiaddr string

// Multiaddr 错误定义
var (
	// ErrInvalidMultiaddr 无效的 multiaddr 格式
	ErrInvalidMultiaddr = errors.New("invalid multiaddr format")

	// ErrEmptyMultiaddr 空 multiaddr
	ErrEmptyMultiaddr = errors.New("empty multiaddr")

	// ErrProtocolNotFound 地址中不包含指定协议段
	ErrProtocolNotFound = errors.New("protocol not found in multiaddr")
)

// NewMultiaddr 解析 multiaddr 字符串
func NewMultiaddr(s string) (Multiaddr, error) {
	if s == "" {
		return "", ErrEmptyMultiaddr
	}
	if !strings.HasPrefix(s, "/") {
		return "", fmt.Errorf("%w: must start with /", ErrInvalidMultiaddr)
	}
	// 协议段和值段必须成对出现
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", ErrInvalidMultiaddr
	}
	return Multiaddr(s), nil
}

// MustParseMultiaddr 解析 multiaddr，失败时 panic（仅用于常量地址）
func MustParseMultiaddr(s string) Multiaddr {
	m, err := NewMultiaddr(s)
	if err != nil {
		panic(fmt.Sprintf("invalid multiaddr %q: %v", s, err))
	}
	return m
}

// FromHostPort 从 host/port 构造 QUIC multiaddr
func FromHostPort(host string, port int) (Multiaddr, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		return "", fmt.Errorf("%w: bad host %q", ErrInvalidMultiaddr, host)
	}
	ipProto := "ip4"
	if ip.To4() == nil {
		ipProto = "ip6"
	}
	return Multiaddr(fmt.Sprintf("/%s/%s/udp/%d/quic-v1", ipProto, host, port)), nil
}

// String 返回 canonical 字符串表示
func (m Multiaddr) String() string {
	return string(m)
}

// IsEmpty 检查是否为空
func (m Multiaddr) IsEmpty() bool {
	return m == ""
}

// Equal 比较两个地址
func (m Multiaddr) Equal(other Multiaddr) bool {
	return m == other
}

// ValueForProtocol 返回指定协议段的值
//
// 例如对 /ip4/127.0.0.1/udp/4001/quic-v1：
//   - ValueForProtocol("ip4") == "127.0.0.1"
//   - ValueForProtocol("udp") == "4001"
//   - ValueForProtocol("quic-v1") == ""（存在但无值）
func (m Multiaddr) ValueForProtocol(proto string) (string, error) {
	parts := strings.Split(strings.Trim(string(m), "/"), "/")
	for i, p := range parts {
		if p == proto {
			if i+1 < len(parts) {
				return parts[i+1], nil
			}
			return "", nil
		}
	}
	return "", ErrProtocolNotFound
}

// IP 返回地址中的 IP，无则返回 nil
func (m Multiaddr) IP() net.IP {
	if v, err := m.ValueForProtocol("ip4"); err == nil {
		return net.ParseIP(v)
	}
	if v, err := m.ValueForProtocol("ip6"); err == nil {
		return net.ParseIP(v)
	}
	return nil
}

// Port 返回地址中的 UDP/TCP 端口，无则返回 0
func (m Multiaddr) Port() int {
	for _, proto := range []string{"udp", "tcp"} {
		if v, err := m.ValueForProtocol(proto); err == nil {
			port, err := strconv.Atoi(v)
			if err == nil {
				return port
			}
		}
	}
	return 0
}

// Transport 返回传输协议段（"quic-v1"、"memory" 等），无则返回空串
func (m Multiaddr) Transport() string {
	parts := strings.Split(strings.Trim(string(m), "/"), "/")
	for _, p := range parts {
		switch p {
		case "quic-v1", "quic", "memory":
			return p
		}
	}
	return ""
}

// IsLoopback 检查是否为回环地址
func (m Multiaddr) IsLoopback() bool {
	ip := m.IP()
	return ip != nil && ip.IsLoopback()
}
