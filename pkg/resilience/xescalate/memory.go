package xescalate

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryQueue 进程内延迟队列，用于测试与单进程部署。
//
// 消息按到期时间排序，Due 取出所有已到期的消息。
type MemoryQueue struct {
	mu      sync.Mutex
	pending []scheduled
	now     func() time.Time
	seq     uint64
}

type scheduled struct {
	msg *Message
	due time.Time
	seq uint64
}

// NewMemoryQueue 创建进程内队列，now 为 nil 时使用 time.Now。
func NewMemoryQueue(now func() time.Time) *MemoryQueue {
	if now == nil {
		now = time.Now
	}
	return &MemoryQueue{now: now}
}

// Enqueue 实现 Queue
func (q *MemoryQueue) Enqueue(ctx context.Context, msg *Message, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	q.pending = append(q.pending, scheduled{msg: msg.Clone(), due: q.now().Add(delay), seq: q.seq})
	sort.SliceStable(q.pending, func(i, j int) bool {
		if q.pending[i].due.Equal(q.pending[j].due) {
			return q.pending[i].seq < q.pending[j].seq
		}
		return q.pending[i].due.Before(q.pending[j].due)
	})
	return nil
}

// Due 取出所有已到期的消息。
func (q *MemoryQueue) Due() []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	n := 0
	for n < len(q.pending) && !q.pending[n].due.After(now) {
		n++
	}
	out := make([]*Message, n)
	for i := range n {
		out[i] = q.pending[i].msg
	}
	q.pending = q.pending[n:]
	return out
}

// Len 返回未到期消息数。
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Run 按 interval 轮询到期消息并交给 handle，直到 ctx 取消。
// handle 返回错误的消息会在 interval 后重新投递。
func (q *MemoryQueue) Run(ctx context.Context, interval time.Duration, handle func(context.Context, *Message) error) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for _, msg := range q.Due() {
			if err := handle(ctx, msg); err != nil && ctx.Err() == nil {
				_ = q.Enqueue(ctx, msg, interval)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// MemorySink 进程内死信存储。
type MemorySink struct {
	mu      sync.Mutex
	letters []*DeadLetter
}

// DeadLetter 实现 DeadLetterSink
func (s *MemorySink) DeadLetter(ctx context.Context, dl *DeadLetter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	copied := *dl
	copied.Message = *dl.Message.Clone()
	s.mu.Lock()
	s.letters = append(s.letters, &copied)
	s.mu.Unlock()
	return nil
}

// List 返回全部死信副本。
func (s *MemorySink) List() []*DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*DeadLetter(nil), s.letters...)
}
