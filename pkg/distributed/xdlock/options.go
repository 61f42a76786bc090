package xdlock

import (
	"strings"
	"time"
)

const (
	// DefaultKeyPrefix 默认锁 key 前缀
	DefaultKeyPrefix = "xresilience:lock:"

	// DefaultExpiry 默认锁过期时间
	DefaultExpiry = 30 * time.Second

	// DefaultTries Lock 默认最大尝试次数
	DefaultTries = 32

	// DefaultRetryDelay Lock 默认重试间隔
	DefaultRetryDelay = 200 * time.Millisecond

	maxKeyLength = 512
)

// Option Locker 配置选项
type Option func(*options)

type options struct {
	keyPrefix  string
	expiry     time.Duration
	tries      int
	retryDelay time.Duration
}

func defaultOptions() *options {
	return &options{
		keyPrefix:  DefaultKeyPrefix,
		expiry:     DefaultExpiry,
		tries:      DefaultTries,
		retryDelay: DefaultRetryDelay,
	}
}

// WithKeyPrefix 设置锁 key 前缀，最终 key = prefix + key。
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

// WithExpiry 设置锁过期时间，应大于单次续期间隔内的最长停顿。
func WithExpiry(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.expiry = d
		}
	}
}

// WithTries 设置 Lock 的最大尝试次数，1 表示不重试。
func WithTries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.tries = n
		}
	}
}

// WithRetryDelay 设置 Lock 的重试间隔
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryDelay = d
		}
	}
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	if len(key) > maxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}
