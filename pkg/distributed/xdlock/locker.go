package xdlock

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redsync/redsync/v4"
	rsredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Handle 一次成功的锁获取。每次获取都有唯一的锁值，不同获取之间互不干扰。
type Handle interface {
	// Unlock 释放锁。锁已丢失时返回 ErrNotLocked。
	Unlock(ctx context.Context) error

	// Extend 按 Expiry 续期。锁已丢失返回 ErrNotLocked，
	// 续期请求本身失败返回 ErrExtendFailed（锁可能仍在，可重试）。
	Extend(ctx context.Context) error

	// Key 返回带前缀的完整 key
	Key() string
}

// Locker Redis 锁工厂，并发安全。
type Locker struct {
	clients []redis.UniversalClient
	rs      *redsync.Redsync
	opts    *options
	closed  atomic.Bool
}

// NewLocker 创建锁工厂。多个客户端时使用 Redlock。
// Locker 不持有客户端的生命周期，Close 不会关闭它们。
func NewLocker(clients []redis.UniversalClient, opts ...Option) (*Locker, error) {
	if len(clients) == 0 {
		return nil, ErrNilClient
	}
	pools := make([]rsredis.Pool, len(clients))
	for i, c := range clients {
		if c == nil {
			return nil, fmt.Errorf("%w: index %d", ErrNilClient, i)
		}
		pools[i] = goredis.NewPool(c)
	}

	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &Locker{clients: clients, rs: redsync.New(pools...), opts: o}, nil
}

// Expiry 返回锁过期时间
func (l *Locker) Expiry() time.Duration { return l.opts.expiry }

// TryLock 非阻塞获取锁。锁被占用时返回 (nil, nil)。
func (l *Locker) TryLock(ctx context.Context, key string) (Handle, error) {
	mutex, err := l.mutex(key)
	if err != nil {
		return nil, err
	}
	if err := mutex.TryLockContext(ctx); err != nil {
		err = wrapError(err)
		if errors.Is(err, ErrLockHeld) {
			return nil, nil
		}
		return nil, err
	}
	return &handle{mutex: mutex}, nil
}

// Lock 按重试策略阻塞获取锁，直到成功、重试耗尽或 ctx 结束。
func (l *Locker) Lock(ctx context.Context, key string) (Handle, error) {
	mutex, err := l.mutex(key)
	if err != nil {
		return nil, err
	}
	if err := mutex.LockContext(ctx); err != nil {
		// redsync 不传递 ctx 错误
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, wrapError(err)
	}
	return &handle{mutex: mutex}, nil
}

func (l *Locker) mutex(key string) (*redsync.Mutex, error) {
	if l.closed.Load() {
		return nil, ErrLockerClosed
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return l.rs.NewMutex(l.opts.keyPrefix+key,
		redsync.WithExpiry(l.opts.expiry),
		redsync.WithTries(l.opts.tries),
		redsync.WithRetryDelay(l.opts.retryDelay),
	), nil
}

// Health 对所有节点执行 PING
func (l *Locker) Health(ctx context.Context) error {
	if l.closed.Load() {
		return ErrLockerClosed
	}
	for _, c := range l.clients {
		if err := c.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Close 阻止创建新锁。已持有的 Handle 仍可 Unlock / Extend。
func (l *Locker) Close() error {
	l.closed.Store(true)
	return nil
}

type handle struct {
	mutex *redsync.Mutex
}

func (h *handle) Unlock(ctx context.Context) error {
	ok, err := h.mutex.UnlockContext(ctx)
	return lostIfFalse(ok, err)
}

func (h *handle) Extend(ctx context.Context) error {
	ok, err := h.mutex.ExtendContext(ctx)
	return lostIfFalse(ok, err)
}

func (h *handle) Key() string { return h.mutex.Name() }

func lostIfFalse(ok bool, err error) error {
	if err != nil {
		err = wrapError(err)
		if errors.Is(err, ErrNotLocked) {
			return ErrNotLocked
		}
		return err
	}
	if !ok {
		return ErrNotLocked
	}
	return nil
}

// wrapError 把 redsync 错误映射为本包错误，保留原始错误链。
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var taken *redsync.ErrTaken
	if errors.As(err, &taken) {
		return fmt.Errorf("%w: %w", ErrLockHeld, err)
	}
	switch {
	case errors.Is(err, redsync.ErrLockAlreadyExpired):
		return fmt.Errorf("%w: %w", ErrNotLocked, err)
	case errors.Is(err, redsync.ErrExtendFailed):
		return fmt.Errorf("%w: %w", ErrExtendFailed, err)
	case errors.Is(err, redsync.ErrFailed):
		return fmt.Errorf("%w: %w", ErrLockFailed, err)
	}
	return err
}
