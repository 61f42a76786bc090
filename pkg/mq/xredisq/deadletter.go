package xredisq

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
)

// DeadLettersOption 配置 DeadLetters。
type DeadLettersOption func(*DeadLetters)

// WithMaxLen 限制死信列表长度，超出的最旧死信被裁剪。0 表示不限制。
func WithMaxLen(n int64) DeadLettersOption {
	return func(d *DeadLetters) {
		if n >= 0 {
			d.maxLen = n
		}
	}
}

// DeadLetters 以 LIST 保存死信，最新的在表头。
type DeadLetters struct {
	client redis.UniversalClient
	key    string
	maxLen int64
}

// NewDeadLetters 创建死信存储。
func NewDeadLetters(client redis.UniversalClient, key string, opts ...DeadLettersOption) (*DeadLetters, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if strings.TrimSpace(key) == "" {
		return nil, ErrEmptyKey
	}
	d := &DeadLetters{client: client, key: key}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Key 返回列表键名。
func (d *DeadLetters) Key() string { return d.key }

// DeadLetter 写入一条死信。
func (d *DeadLetters) DeadLetter(ctx context.Context, dl *xescalate.DeadLetter) error {
	if dl == nil {
		return ErrNilMessage
	}
	payload, err := xescalate.EncodeDeadLetter(dl)
	if err != nil {
		return err
	}
	_, err = d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, d.key, payload)
		if d.maxLen > 0 {
			pipe.LTrim(ctx, d.key, 0, d.maxLen-1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("xredisq: lpush %s: %w", d.key, err)
	}
	return nil
}

// Len 返回死信数量。
func (d *DeadLetters) Len(ctx context.Context) (int64, error) {
	return d.client.LLen(ctx, d.key).Result()
}

// List 返回最新的至多 limit 条死信。limit <= 0 时返回全部。
// 无法解码的条目被跳过。
func (d *DeadLetters) List(ctx context.Context, limit int64) ([]*xescalate.DeadLetter, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = limit - 1
	}
	raws, err := d.client.LRange(ctx, d.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("xredisq: lrange %s: %w", d.key, err)
	}
	out := make([]*xescalate.DeadLetter, 0, len(raws))
	for _, raw := range raws {
		dl, err := xescalate.DecodeDeadLetter([]byte(raw))
		if err != nil {
			continue
		}
		out = append(out, dl)
	}
	return out, nil
}

// Replay 把指定 ID 的死信重新放回 queue（立即到期），并从列表移除。
//
// 消息的 RetryCount 保持不变；若已达全局上限，再次失败会直接回到死信。
func (d *DeadLetters) Replay(ctx context.Context, id string, queue xescalate.Queue) (*xescalate.Message, error) {
	if queue == nil {
		return nil, ErrNilQueue
	}
	raws, err := d.client.LRange(ctx, d.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("xredisq: lrange %s: %w", d.key, err)
	}
	for _, raw := range raws {
		dl, err := xescalate.DecodeDeadLetter([]byte(raw))
		if err != nil || dl.ID != id {
			continue
		}
		msg := dl.Message.Clone()
		if err := queue.Enqueue(ctx, msg, 0); err != nil {
			return nil, err
		}
		// 先入队再删除：删除失败只会留下重复死信，不会丢消息
		if err := d.client.LRem(ctx, d.key, 1, raw).Err(); err != nil {
			return msg, fmt.Errorf("xredisq: lrem %s: %w", d.key, err)
		}
		return msg, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Purge 删除整个死信列表。
func (d *DeadLetters) Purge(ctx context.Context) error {
	if err := d.client.Del(ctx, d.key).Err(); err != nil {
		return fmt.Errorf("xredisq: del %s: %w", d.key, err)
	}
	return nil
}

var _ xescalate.DeadLetterSink = (*DeadLetters)(nil)
