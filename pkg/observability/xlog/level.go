package xlog

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level 日志级别，底层与 slog.Level 相同，可直接转换。
type Level slog.Level

const (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

// levelNames 配置文件与命令行可用的名称，warning 为 warn 的别名
var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// String 与 slog 一致：DEBUG / INFO / WARN / ERROR，其余形如 "INFO+2"。
func (l Level) String() string { return slog.Level(l).String() }

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalText 使 koanf 反序列化 log.level 时直接得到 Level。
func (l *Level) UnmarshalText(data []byte) error {
	parsed, err := ParseLevel(string(data))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel 忽略大小写与首尾空白。未知名称返回 LevelInfo 和错误。
func ParseLevel(s string) (Level, error) {
	if lv, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lv, nil
	}
	return LevelInfo, fmt.Errorf("xlog: unknown level %q", s)
}
