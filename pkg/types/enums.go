package types

// ============================================================================
//                              连接方向
// ============================================================================

// Direction 连接/流的方向
type Direction int

const (
	// DirUnknown 未知方向
	DirUnknown Direction = iota

	// DirInbound 入站（对方发起）
	DirInbound

	// DirOutbound 出站（本地发起）
	DirOutbound
)

// String 返回方向的字符串表示
func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "inbound"
	case DirOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              连接状态
// ============================================================================

// Connectedness 与某个节点的连接状态
type Connectedness int

const (
	// NotConnected 无连接且无已知地址
	NotConnected Connectedness = iota

	// Connected 至少存在一条活跃连接
	Connected
)

// String 返回状态的字符串表示
func (c Connectedness) String() string {
	switch c {
	case Connected:
		return "connected"
	default:
		return "not connected"
	}
}

// ============================================================================
//                              统计信息
// ============================================================================

// ConnectionStat 连接统计
type ConnectionStat struct {
	// Direction 连接方向
	Direction Direction

	// Opened 建立时间（Unix 秒）
	Opened int64

	// NumStreams 当前流数量
	NumStreams int
}
