package xescalate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/observability/xmetrics"
	"github.com/omeyang/xresilience/pkg/util/xid"
)

//go:generate mockgen -source=manager.go -destination=mock_queue_test.go -package=xescalate

// DefaultMaxGlobalRetries 默认最多重投次数。
const DefaultMaxGlobalRetries = 2

// Queue 延迟投递的恢复队列。
type Queue interface {
	Enqueue(ctx context.Context, msg *Message, delay time.Duration) error
}

// DeadLetterSink 死信接收端。
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, dl *DeadLetter) error
}

// OutcomeKind 升级结果类型
type OutcomeKind int

// 升级结果
const (
	Enqueued OutcomeKind = iota + 1
	DeadLettered
)

func (k OutcomeKind) String() string {
	switch k {
	case Enqueued:
		return "enqueued"
	case DeadLettered:
		return "dead-lettered"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome 升级结果
type Outcome struct {
	Kind OutcomeKind

	// Delay 重投延迟，仅 Enqueued 有效
	Delay time.Duration

	// Message 实际投递的消息（Enqueued 时 RetryCount 已加一）
	Message *Message
}

// EscalationDelay 返回第 retryCount 次重投的延迟 min(60s·(retryCount+1), 900s)。
func EscalationDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= int(MaxDelay/time.Minute) {
		return MaxDelay
	}
	return time.Duration(retryCount+1) * time.Minute
}

// ManagerOption Manager 配置选项
type ManagerOption func(*Manager)

// WithMaxGlobalRetries 设置最大重投次数，负数被忽略。
func WithMaxGlobalRetries(n int) ManagerOption {
	return func(m *Manager) {
		if n >= 0 {
			m.maxGlobalRetries = n
		}
	}
}

// WithRecorder 设置指标上报器。
func WithRecorder(r xmetrics.Recorder) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithLogger 设置日志。
func WithLogger(l xlog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock 设置时钟。
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDFunc 设置消息 ID 生成函数。
func WithIDFunc(fn func() string) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// Manager 升级管理器，无内部可变状态，可并发使用。
type Manager struct {
	queue            Queue
	sink             DeadLetterSink
	maxGlobalRetries int
	recorder         xmetrics.Recorder
	logger           xlog.Logger
	now              func() time.Time
	newID            func() string
}

// NewManager 创建升级管理器。
func NewManager(queue Queue, sink DeadLetterSink, opts ...ManagerOption) (*Manager, error) {
	if queue == nil {
		return nil, ErrNilQueue
	}
	if sink == nil {
		return nil, ErrNilSink
	}
	m := &Manager{
		queue:            queue,
		sink:             sink,
		maxGlobalRetries: DefaultMaxGlobalRetries,
		recorder:         xmetrics.NoopRecorder{},
		logger:           xlog.Discard(),
		now:              time.Now,
		newID:            xid.NewMessageID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// MaxGlobalRetries 返回最大重投次数。
func (m *Manager) MaxGlobalRetries() int { return m.maxGlobalRetries }

// OnRecoveryExhausted 处理一次恢复失败：重投或进入死信。
//
// 本次尝试会先追加到消息历史。队列写入失败时退化为写死信，
// 两者都失败才返回 ErrDeliver。
func (m *Manager) OnRecoveryExhausted(ctx context.Context, msg *Message) (Outcome, error) {
	if msg == nil {
		return Outcome{}, fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}
	msg = msg.Clone()
	if msg.ID == "" {
		msg.ID = m.newID()
	}
	if err := msg.Validate(); err != nil {
		return Outcome{}, err
	}

	now := m.now()
	if msg.StartedAt.IsZero() {
		msg.StartedAt = now
	}
	msg.LastAttempt = now
	msg.History = append(msg.History, msg.Attempt)
	ctx = xlog.WithMessageID(xlog.WithOperation(ctx, msg.OriginalOperation), msg.ID)

	if msg.RetryCount < m.maxGlobalRetries {
		delay := EscalationDelay(msg.RetryCount)
		next := msg.Clone()
		next.RetryCount++
		err := m.queue.Enqueue(ctx, next, delay)
		if err == nil {
			m.recorder.Escalated(ctx, msg.OriginalOperation, false)
			m.logger.Info(ctx, "escalation enqueued",
				xlog.RecoveryType(msg.RecoveryType), xlog.Attempt(next.RetryCount), xlog.Delay(delay))
			return Outcome{Kind: Enqueued, Delay: delay, Message: next}, nil
		}
		m.logger.Warn(ctx, "enqueue failed, dead-lettering instead", xlog.Err(err))
		return m.deadLetter(ctx, msg, now, "enqueue failed: "+err.Error())
	}
	return m.deadLetter(ctx, msg, now, fmt.Sprintf("retry budget %d exhausted", m.maxGlobalRetries))
}

func (m *Manager) deadLetter(ctx context.Context, msg *Message, now time.Time, reason string) (Outcome, error) {
	dl := &DeadLetter{Message: *msg, DeadLetteredAt: now, Reason: reason}
	if err := m.sink.DeadLetter(ctx, dl); err != nil {
		m.logger.Error(ctx, "dead-letter failed", xlog.Err(err))
		return Outcome{}, fmt.Errorf("%w: %s: %w", ErrDeliver, msg.ID, err)
	}
	m.recorder.Escalated(ctx, msg.OriginalOperation, true)
	m.logger.Warn(ctx, "escalation dead-lettered",
		xlog.RecoveryType(msg.RecoveryType), xlog.Attempt(msg.RetryCount), slogReason(reason))
	return Outcome{Kind: DeadLettered, Message: msg}, nil
}

// DeadLetterDirect 不经重试预算直接写死信（如无法解码或无法路由的消息）。
func (m *Manager) DeadLetterDirect(ctx context.Context, msg *Message, reason string) error {
	if msg == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}
	msg = msg.Clone()
	if msg.ID == "" {
		msg.ID = m.newID()
	}
	_, err := m.deadLetter(ctx, msg, m.now(), reason)
	return err
}

func slogReason(reason string) slog.Attr { return slog.String("reason", reason) }
