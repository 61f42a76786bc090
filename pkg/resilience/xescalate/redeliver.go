package xescalate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/resilience/xrecovery"
)

// OperationTable 操作名到原始调用的映射，重投时据此找回要执行的调用。
type OperationTable struct {
	mu    sync.RWMutex
	calls map[string]xrecovery.Call
}

// NewOperationTable 创建空表。
func NewOperationTable() *OperationTable {
	return &OperationTable{calls: make(map[string]xrecovery.Call)}
}

// Register 注册操作。
func (t *OperationTable) Register(operation string, call xrecovery.Call) {
	if operation == "" || call == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls[operation] = call
}

// Lookup 查找操作。
func (t *OperationTable) Lookup(operation string) (xrecovery.Call, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	call, ok := t.calls[operation]
	return call, ok
}

// Replayer 重新执行一条升级消息，由引擎实现。
//
// 实现负责在再次失败时自行升级（重投或死信）；返回的 error 只表示 ctx 取消等
// 无法完成处理的情况，消费者据此决定是否提交位点。
type Replayer interface {
	Replay(ctx context.Context, msg *Message, call xrecovery.Call) error
}

// Redeliverer 消费侧：解码、路由、重放。
type Redeliverer struct {
	table    *OperationTable
	replayer Replayer
	manager  *Manager
	logger   xlog.Logger
}

// NewRedeliverer 创建重投处理器。manager 用于把无法路由的消息直接写入死信。
func NewRedeliverer(table *OperationTable, replayer Replayer, manager *Manager, logger xlog.Logger) *Redeliverer {
	if logger == nil {
		logger = xlog.Discard()
	}
	return &Redeliverer{table: table, replayer: replayer, manager: manager, logger: logger}
}

// HandlePayload 处理一条原始消息体，供 MQ 消费循环调用。
//
// 无法解码的消息返回 ErrInvalidMessage（调用方应跳过而非重试）。
func (r *Redeliverer) HandlePayload(ctx context.Context, payload []byte) error {
	msg, err := Decode(payload)
	if err != nil {
		r.logger.Error(ctx, "drop undecodable escalation message", xlog.Err(err))
		return err
	}
	return r.Handle(ctx, msg)
}

// Handle 处理一条已解码的消息。
func (r *Redeliverer) Handle(ctx context.Context, msg *Message) error {
	ctx = xlog.WithMessageID(xlog.WithOperation(ctx, msg.OriginalOperation), msg.ID)

	call, ok := r.table.Lookup(msg.OriginalOperation)
	if !ok {
		r.logger.Warn(ctx, "no call registered for escalated operation")
		if r.manager == nil {
			return fmt.Errorf("%w: %s", ErrUnknownOperation, msg.OriginalOperation)
		}
		return r.manager.DeadLetterDirect(ctx, msg,
			fmt.Sprintf("%v: %s", ErrUnknownOperation, msg.OriginalOperation))
	}

	err := r.replayer.Replay(ctx, msg, call)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrDeliver)) {
		return err
	}
	if err != nil {
		r.logger.Warn(ctx, "replay finished with error", xlog.Err(err))
	}
	return nil
}
