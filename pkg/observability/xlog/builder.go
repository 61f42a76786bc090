package xlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Builder 日志配置构建器
//
// first-error-wins：遇到第一个配置错误后，后续 Set 的结果被忽略，Build 返回该错误。
type Builder struct {
	output    io.Writer
	levelVar  *slog.LevelVar
	format    string
	addSource bool
	enrich    bool
	fields    []slog.Attr
	rotator   *lumberjack.Logger
	onError   func(error)
	err       error
}

// New 创建配置构建器，默认 stderr / Info / text / 启用 context 注入。
func New() *Builder {
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	return &Builder{
		output:   os.Stderr,
		levelVar: levelVar,
		format:   "text",
		enrich:   true,
	}
}

// SetOutput 设置日志输出目标
func (b *Builder) SetOutput(w io.Writer) *Builder {
	if w != nil {
		b.output = w
	}
	return b
}

// SetLevel 设置日志级别
func (b *Builder) SetLevel(level Level) *Builder {
	b.levelVar.Set(slog.Level(level))
	return b
}

// SetLevelString 通过字符串设置日志级别
func (b *Builder) SetLevelString(s string) *Builder {
	level, err := ParseLevel(s)
	if err != nil {
		b.setErr(err)
		return b
	}
	return b.SetLevel(level)
}

// SetFormat 设置输出格式：text 或 json，空值视为 text。
func (b *Builder) SetFormat(format string) *Builder {
	normalized := strings.ToLower(strings.TrimSpace(format))
	switch normalized {
	case "":
		b.format = "text"
	case "text", "json":
		b.format = normalized
	default:
		b.setErr(fmt.Errorf("xlog: unknown format %q", format))
	}
	return b
}

// SetAddSource 是否在日志中添加源码位置
func (b *Builder) SetAddSource(enable bool) *Builder {
	b.addSource = enable
	return b
}

// SetEnrich 是否从 context 注入 operation / message_id / trace_id 等字段
func (b *Builder) SetEnrich(enable bool) *Builder {
	b.enrich = enable
	return b
}

// SetFields 设置每条日志都携带的固定属性（如服务名）
func (b *Builder) SetFields(attrs ...slog.Attr) *Builder {
	b.fields = append(b.fields, attrs...)
	return b
}

// Rotation 文件轮转参数，零值字段使用 lumberjack 默认值。
type Rotation struct {
	MaxSizeMB  int  `json:"max_size_mb" yaml:"max_size_mb" koanf:"max_size_mb"`
	MaxBackups int  `json:"max_backups" yaml:"max_backups" koanf:"max_backups"`
	MaxAgeDays int  `json:"max_age_days" yaml:"max_age_days" koanf:"max_age_days"`
	Compress   bool `json:"compress" yaml:"compress" koanf:"compress"`
}

// SetRotation 输出到按大小轮转的文件
func (b *Builder) SetRotation(filename string, rot Rotation) *Builder {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		b.setErr(fmt.Errorf("xlog: rotation filename is empty"))
		return b
	}
	if rot.MaxSizeMB < 0 || rot.MaxBackups < 0 || rot.MaxAgeDays < 0 {
		b.setErr(fmt.Errorf("xlog: rotation limits must be non-negative"))
		return b
	}
	b.rotator = &lumberjack.Logger{
		Filename:   filepath.Clean(filename),
		MaxSize:    rot.MaxSizeMB,
		MaxBackups: rot.MaxBackups,
		MaxAge:     rot.MaxAgeDays,
		Compress:   rot.Compress,
	}
	b.output = b.rotator
	return b
}

// SetOnError 设置内部错误回调（Handler.Handle 失败时调用，需保持轻量）
func (b *Builder) SetOnError(fn func(error)) *Builder {
	b.onError = fn
	return b
}

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build 构建 Logger 实例
//
// 返回的 cleanup 用于关闭轮转文件，可重复调用。
func (b *Builder) Build() (LoggerWithLevel, func() error, error) {
	if b.err != nil {
		return nil, nil, b.err
	}

	opts := &slog.HandlerOptions{Level: b.levelVar, AddSource: b.addSource}
	var handler slog.Handler
	if b.format == "json" {
		handler = slog.NewJSONHandler(b.output, opts)
	} else {
		handler = slog.NewTextHandler(b.output, opts)
	}
	if b.enrich {
		handler = &EnrichHandler{base: handler}
	}
	if len(b.fields) > 0 {
		handler = handler.WithAttrs(b.fields)
	}

	logger := &xlogger{
		handler:    handler,
		levelVar:   b.levelVar,
		onError:    b.onError,
		errorCount: new(atomic.Uint64),
		addSource:  b.addSource,
	}

	var once sync.Once
	rotator := b.rotator
	cleanup := func() error {
		var err error
		once.Do(func() {
			if rotator != nil {
				err = rotator.Close()
			}
		})
		return err
	}
	return logger, cleanup, nil
}
