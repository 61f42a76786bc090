package xdlock

import "errors"

var (
	// ErrNilClient 客户端为空
	ErrNilClient = errors.New("xdlock: client is nil")

	// ErrEmptyKey 锁 key 为空或仅含空白
	ErrEmptyKey = errors.New("xdlock: key must not be empty")

	// ErrKeyTooLong 锁 key 超过 maxKeyLength
	ErrKeyTooLong = errors.New("xdlock: key exceeds maximum length of 512 bytes")

	// ErrLockHeld 锁被其他持有者占用
	ErrLockHeld = errors.New("xdlock: lock is held by another owner")

	// ErrLockFailed 重试耗尽仍未获取到锁
	ErrLockFailed = errors.New("xdlock: failed to acquire lock")

	// ErrExtendFailed 续期失败，锁可能仍在
	ErrExtendFailed = errors.New("xdlock: failed to extend lock")

	// ErrNotLocked 锁已过期或被其他获取覆盖，所有权已丢失
	ErrNotLocked = errors.New("xdlock: not locked")

	// ErrLockerClosed 在已关闭的 Locker 上获取锁
	ErrLockerClosed = errors.New("xdlock: locker is closed")

	// ErrNilFunc Guard 的任务函数为 nil
	ErrNilFunc = errors.New("xdlock: func is nil")
)
