package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/multiformats/go-varint"

	pkgif "github.com/dep2p/go-node/pkg/interfaces"
	"github.com/dep2p/go-node/pkg/lib/log"
	"github.com/dep2p/go-node/pkg/types"
)

var logger = log.Logger("core/protocol")

// ============================================================================
//                              常量
// ============================================================================

const (
	// MultistreamID multistream-select 版本令牌
	MultistreamID = "/multistream/1.0.0"

	// NA 协议不支持响应
	NA = "na"

	// LS 列出协议命令
	LS = "ls"

	// MaxMessageSize 最大消息长度
	MaxMessageSize = 1024 * 64 // 64KB

	// DefaultNegotiationTimeout 默认协商超时
	DefaultNegotiationTimeout = 10 * time.Second

	// maxNegotiateAttempts 响应方最大协商尝试次数
	// 防止恶意对端无限循环提议
	maxNegotiateAttempts = 100

	// defaultCacheSize 协商结果缓存条目数
	defaultCacheSize = 1024
)

// ============================================================================
//                              Negotiator
// ============================================================================

// Negotiator 协议协商器
//
// 同时实现发起方（出站）和响应方（入站）两个角色的状态机。
// 协商错误只作用于当前流；协商器内部不做重试，重试策略属于调用方。
type Negotiator struct {
	registry pkgif.ProtocolRegistry
	timeout  time.Duration
	clk      clock.Clock

	// 缓存各节点最近一次协商成功的协议
	// 仅作为多协议提议时的排序提示，不跳过协商本身
	cache *lru.Cache[string, types.ProtocolID]
}

var _ pkgif.Negotiator = (*Negotiator)(nil)

// Option 协商器配置选项
type Option func(*Negotiator)

// WithTimeout 设置协商超时
func WithTimeout(d time.Duration) Option {
	return func(n *Negotiator) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithClock 设置时间源（测试用）
func WithClock(clk clock.Clock) Option {
	return func(n *Negotiator) {
		n.clk = clk
	}
}

// NewNegotiator 创建协商器
func NewNegotiator(registry pkgif.ProtocolRegistry, opts ...Option) *Negotiator {
	cache, _ := lru.New[string, types.ProtocolID](defaultCacheSize)

	n := &Negotiator{
		registry: registry,
		timeout:  DefaultNegotiationTimeout,
		clk:      clock.New(),
		cache:    cache,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ============================================================================
//                              发起方
// ============================================================================

// SelectOneOf 以发起方角色在流上协商
//
// 按序提议 protocols 中的协议；对方拒绝则尝试下一个。
// 全部被拒返回 ErrProtocolRejected。协商失败时流保持打开，
// 是否丢弃由调用方决定。
func (n *Negotiator) SelectOneOf(stream pkgif.Stream, protocols ...types.ProtocolID) (types.ProtocolID, error) {
	if len(protocols) == 0 {
		return "", fmt.Errorf("%w: no protocols to propose", ErrUnexpectedResponse)
	}

	// 限定整个协商交换的时长
	defer n.watchTimeout(stream)()

	writer := bufio.NewWriter(stream)

	// 交换版本令牌
	if err := writeMessage(writer, MultistreamID); err != nil {
		return "", mapStreamErr(err)
	}
	if err := writer.Flush(); err != nil {
		return "", mapStreamErr(err)
	}

	resp, err := readMessage(stream)
	if err != nil {
		return "", mapStreamErr(err)
	}
	if resp != MultistreamID {
		return "", fmt.Errorf("%w: got %q", ErrVersionMismatch, resp)
	}

	// 上次协商成功的协议排到最前，作为快速路径提示
	peer := string(stream.Conn().RemotePeer())
	protocols = n.reorderByHint(peer, protocols)

	// 逐个提议
	for _, proto := range protocols {
		if err := writeMessage(writer, string(proto)); err != nil {
			return "", mapStreamErr(err)
		}
		if err := writer.Flush(); err != nil {
			return "", mapStreamErr(err)
		}

		resp, err := readMessage(stream)
		if err != nil {
			return "", mapStreamErr(err)
		}

		switch resp {
		case string(proto):
			// 协商成功
			n.cache.Add(peer, proto)
			stream.SetProtocol(proto)
			logger.Debug("协议协商成功", "protocol", string(proto), "peer", types.PeerID(peer).ShortString())
			return proto, nil
		case NA:
			// 被拒，尝试下一个协议
			continue
		default:
			return "", fmt.Errorf("%w: got %q", ErrUnexpectedResponse, resp)
		}
	}

	return "", ErrProtocolRejected
}

// watchTimeout 限定一次协商交换的时长
//
// 通过时间源的定时器触发：到期把流截止时间设为过去，使阻塞中的
// 读写立即以超时错误返回。返回的取消函数停止定时器并清除截止时间。
func (n *Negotiator) watchTimeout(stream pkgif.Stream) (cancel func()) {
	timer := n.clk.Timer(n.timeout)
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		select {
		case <-timer.C:
			_ = stream.SetDeadline(time.Unix(1, 0))
		case <-stop:
		}
	}()

	return func() {
		timer.Stop()
		close(stop)
		<-done
		_ = stream.SetDeadline(time.Time{})
	}
}

// reorderByHint 将缓存命中的协议移到提议列表最前
func (n *Negotiator) reorderByHint(peer string, protocols []types.ProtocolID) []types.ProtocolID {
	if len(protocols) < 2 {
		return protocols
	}
	hint, ok := n.cache.Get(peer)
	if !ok {
		return protocols
	}
	for i, p := range protocols {
		if p == hint && i > 0 {
			reordered := make([]types.ProtocolID, 0, len(protocols))
			reordered = append(reordered, p)
			reordered = append(reordered, protocols[:i]...)
			reordered = append(reordered, protocols[i+1:]...)
			return reordered
		}
	}
	return protocols
}

// ============================================================================
//                              响应方
// ============================================================================

// Handle 以响应方角色在流上协商
//
// 读取版本令牌并回显，随后循环处理对方的提议：
// 注册表支持的协议回显并返回；"ls" 回复协议列表；
// 其余回复 "na" 继续等待。循环次数有上界。
func (n *Negotiator) Handle(stream pkgif.Stream) (types.ProtocolID, error) {
	// 限定整个协商交换的时长
	defer n.watchTimeout(stream)()

	writer := bufio.NewWriter(stream)

	// 读取并回显版本令牌
	msg, err := readMessage(stream)
	if err != nil {
		return "", mapStreamErr(err)
	}
	if msg != MultistreamID {
		return "", fmt.Errorf("%w: got %q", ErrVersionMismatch, msg)
	}
	if err := writeMessage(writer, MultistreamID); err != nil {
		return "", mapStreamErr(err)
	}
	if err := writer.Flush(); err != nil {
		return "", mapStreamErr(err)
	}

	// 协商循环
	for attempt := 0; attempt < maxNegotiateAttempts; attempt++ {
		msg, err := readMessage(stream)
		if err != nil {
			return "", mapStreamErr(err)
		}

		if msg == LS {
			if err := n.sendProtocolList(writer); err != nil {
				return "", mapStreamErr(err)
			}
			continue
		}

		proto := types.ProtocolID(msg)
		if n.registry != nil && n.registry.Supported(proto) {
			if err := writeMessage(writer, msg); err != nil {
				return "", mapStreamErr(err)
			}
			if err := writer.Flush(); err != nil {
				return "", mapStreamErr(err)
			}

			stream.SetProtocol(proto)
			logger.Debug("接受入站协议", "protocol", msg)
			return proto, nil
		}

		// 不支持，回复 NA 等待下一个提议
		if err := writeMessage(writer, NA); err != nil {
			return "", mapStreamErr(err)
		}
		if err := writer.Flush(); err != nil {
			return "", mapStreamErr(err)
		}
		logger.Debug("拒绝入站协议", "protocol", msg)
	}

	return "", ErrTooManyAttempts
}

// sendProtocolList 发送协议列表（响应 ls 命令）
//
// 列表整体作为一条消息，内部以换行分隔各协议 ID。
func (n *Negotiator) sendProtocolList(writer *bufio.Writer) error {
	var protocols []types.ProtocolID
	if n.registry != nil {
		protocols = n.registry.Protocols()
	}

	var list string
	for _, proto := range protocols {
		list += string(proto) + "\n"
	}

	if err := writeMessage(writer, list); err != nil {
		return err
	}
	return writer.Flush()
}

// ============================================================================
//                              消息编解码
// ============================================================================

// writeMessage 写入消息
//
// 格式: [varint(len+1)][消息]['\n']，长度前缀包含换行符。
func writeMessage(w *bufio.Writer, msg string) error {
	if len(msg) > MaxMessageSize {
		return ErrMessageTooLong
	}

	if _, err := w.Write(varint.ToUvarint(uint64(len(msg) + 1))); err != nil {
		return err
	}
	if _, err := w.WriteString(msg); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

// byteReader 以单字节读取实现 io.ByteReader
//
// 解析长度前缀时逐字节消费，保证不越过前缀本身。
type byteReader struct {
	r io.Reader
}

func (b byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(b.r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// readMessage 读取消息
//
// 长度前缀允许精确读取，不需要逐字节扫描终止符。
// 直接在原始流上按帧长读取，协商结束后流上不残留被
// 预读吞掉的应用数据。超长或缺失终止符都是致命帧错误。
func readMessage(r io.Reader) (string, error) {
	length, err := varint.ReadUvarint(byteReader{r})
	if err != nil {
		if errors.Is(err, varint.ErrOverflow) || errors.Is(err, varint.ErrUnderflow) {
			return "", ErrInvalidMessage
		}
		return "", err
	}

	if length > MaxMessageSize+1 {
		return "", ErrMessageTooLong
	}
	if length == 0 {
		return "", ErrInvalidMessage
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}

	if buf[length-1] != '\n' {
		return "", ErrInvalidMessage
	}
	return string(buf[:length-1]), nil
}

// mapStreamErr 将底层 I/O 错误归一为协商错误
func mapStreamErr(err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrNegotiationTimeout, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("%w: %v", ErrStreamClosed, err)
	}
	return err
}
