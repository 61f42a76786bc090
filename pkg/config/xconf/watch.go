package xconf

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce 默认防抖时间
const DefaultDebounce = 100 * time.Millisecond

// WatchFunc 重载回调；err 非 nil 表示重载失败，此时 cfg 仍是旧内容。
type WatchFunc func(cfg *Config, err error)

// Watch 监视配置文件并在变更后重载，阻塞直到 ctx 取消。
//
// 监视的是文件所在目录而非文件本身：编辑器常以"写临时文件再 rename"的方式保存，
// 直接监视文件会在第一次保存后丢失后续事件。debounce <= 0 时使用 DefaultDebounce。
// 回调在同一个 goroutine 中串行执行，Watch 返回后不会再有回调。
func Watch(ctx context.Context, cfg *Config, debounce time.Duration, fn WatchFunc) error {
	if cfg == nil || cfg.path == "" {
		return ErrNotReloadable
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("xconf: create watcher: %w", err)
	}
	dir := filepath.Dir(cfg.path)
	if err := w.Add(dir); err != nil {
		return errors.Join(fmt.Errorf("xconf: watch %s: %w", dir, err), w.Close())
	}
	defer func() { _ = w.Close() }()

	name := filepath.Base(cfg.path)
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			timer.Reset(debounce)
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if fn != nil {
				fn(cfg, fmt.Errorf("xconf: watch: %w", werr))
			}
		case <-timer.C:
			err := cfg.Reload()
			if fn != nil {
				fn(cfg, err)
			}
		}
	}
}
