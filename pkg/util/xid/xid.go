package xid

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/sony/sonyflake/v2"
)

var (
	// ErrInvalidConfig 生成器配置无效（机器 ID 获取失败等）。
	ErrInvalidConfig = errors.New("xid: invalid config")

	// ErrNilGenerator 生成器为 nil。
	ErrNilGenerator = errors.New("xid: nil generator (use NewGenerator to create)")

	// ErrInvalidID 字符串不是合法的 ID。
	ErrInvalidID = errors.New("xid: invalid id")
)

// Option 生成器配置选项
type Option func(*options)

type options struct {
	machineID func() (uint16, error)
}

// WithMachineID 设置机器 ID 获取函数，默认 [DefaultMachineID]。
func WithMachineID(fn func() (uint16, error)) Option {
	return func(o *options) {
		o.machineID = fn
	}
}

// Generator Sonyflake ID 生成器，并发安全。
type Generator struct {
	generateID func() (int64, error)
}

// NewGenerator 创建生成器。
func NewGenerator(opts ...Option) (*Generator, error) {
	cfg := &options{machineID: DefaultMachineID}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.machineID == nil {
		cfg.machineID = DefaultMachineID
	}

	sf, err := sonyflake.New(sonyflake.Settings{
		MachineID: func() (int, error) {
			id, err := cfg.machineID()
			return int(id), err
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &Generator{generateID: sf.NextID}, nil
}

// New 生成数值 ID。
func (g *Generator) New() (int64, error) {
	if g == nil || g.generateID == nil {
		return 0, ErrNilGenerator
	}
	return g.generateID()
}

// NewString 生成 36 进制字符串 ID。
func (g *Generator) NewString() (string, error) {
	id, err := g.New()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 36), nil
}

// Parse 解析 NewString 的输出。
func Parse(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 36, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidID, s, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}

var (
	defaultOnce sync.Once
	defaultGen  *Generator
)

func defaultGenerator() *Generator {
	defaultOnce.Do(func() {
		// 失败时 defaultGen 保持 nil，NewMessageID 走 UUID 兜底
		defaultGen, _ = NewGenerator()
	})
	return defaultGen
}

// NewMessageID 生成升级消息 ID：优先 Sonyflake，失败时退化为 UUIDv4。
func NewMessageID() string {
	if id, err := defaultGenerator().NewString(); err == nil {
		return id
	}
	return uuid.NewString()
}
