package xdlock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// unlockTimeout 释放锁使用的独立超时
const unlockTimeout = 5 * time.Second

// Guard 持锁执行 fn。锁被其他实例持有时不执行，返回 (false, nil)。
//
// fn 执行期间每隔 Expiry/3 续期一次；续期确认锁已丢失时取消 fn 的 context，
// 此时返回值包含 ErrNotLocked。fn 结束后使用独立 context 释放锁。
func Guard(ctx context.Context, l *Locker, key string, fn func(ctx context.Context) error) (bool, error) {
	if fn == nil {
		return false, ErrNilFunc
	}
	h, err := l.TryLock(ctx, key)
	if err != nil || h == nil {
		return false, err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		keepAlive(runCtx, h, l.Expiry()/3, stop, cancel)
	}()

	err = fn(runCtx)
	close(stop)
	wg.Wait()

	if cause := context.Cause(runCtx); errors.Is(cause, ErrNotLocked) {
		return true, errors.Join(err, cause)
	}

	unlockCtx, unlockCancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
	defer unlockCancel()
	if uerr := h.Unlock(unlockCtx); uerr != nil && !errors.Is(uerr, ErrNotLocked) {
		return true, errors.Join(err, uerr)
	}
	return true, err
}

// keepAlive 周期续期直到 stop 关闭。ErrExtendFailed 视为暂时失败，下个周期重试。
func keepAlive(ctx context.Context, h Handle, interval time.Duration, stop <-chan struct{}, lost context.CancelCauseFunc) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.Extend(ctx); errors.Is(err, ErrNotLocked) {
				lost(ErrNotLocked)
				return
			}
		}
	}
}
