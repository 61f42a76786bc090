package xredisq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
)

// QueueOption 配置 Queue。
type QueueOption func(*Queue)

// WithClock 替换时钟（测试用）。
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// Queue 以 ZSET 实现的延迟队列。
type Queue struct {
	client redis.UniversalClient
	key    string
	now    func() time.Time
}

// NewQueue 创建队列。key 为 ZSET 键名。
func NewQueue(client redis.UniversalClient, key string, opts ...QueueOption) (*Queue, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if strings.TrimSpace(key) == "" {
		return nil, ErrEmptyKey
	}
	q := &Queue{client: client, key: key, now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Key 返回 ZSET 键名。
func (q *Queue) Key() string { return q.key }

// Client 返回底层客户端。
func (q *Queue) Client() redis.UniversalClient { return q.client }

// Enqueue 写入消息，delay 后到期。
func (q *Queue) Enqueue(ctx context.Context, msg *xescalate.Message, delay time.Duration) error {
	if msg == nil {
		return ErrNilMessage
	}
	payload, err := xescalate.Encode(msg)
	if err != nil {
		return err
	}
	if delay < 0 {
		delay = 0
	}
	return q.add(ctx, payload, q.now().Add(delay))
}

func (q *Queue) add(ctx context.Context, payload []byte, deliverAt time.Time) error {
	err := q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(deliverAt.UnixMilli()),
		Member: payload,
	}).Err()
	if err != nil {
		return fmt.Errorf("xredisq: zadd %s: %w", q.key, err)
	}
	return nil
}

// PopDue 取出至多 limit 条已到期的消息体，按到期时间升序。
func (q *Queue) PopDue(ctx context.Context, limit int) ([][]byte, error) {
	if limit <= 0 {
		limit = 1
	}
	res, err := popDueScript.Run(ctx, q.client, []string{q.key}, q.now().UnixMilli(), limit).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("xredisq: pop due %s: %w", q.key, err)
	}
	out := make([][]byte, len(res))
	for i, s := range res {
		out[i] = []byte(s)
	}
	return out, nil
}

// Len 返回队列中的消息数（含未到期）。
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key).Result()
}

var _ xescalate.Queue = (*Queue)(nil)
