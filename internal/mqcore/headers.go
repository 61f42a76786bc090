package mqcore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
)

// 升级消息头。消息体仍是 xescalate 的 JSON，头部只承载路由与调度所需的字段，
// 消费侧无需解码消息体即可判断是否到期。
const (
	HeaderMessageID  = "x-escalation-id"
	HeaderOperation  = "x-escalation-operation"
	HeaderRetryCount = "x-escalation-retry-count"

	// HeaderDeliverAt 到期时间，Unix 毫秒
	HeaderDeliverAt = "x-escalation-deliver-at"

	// HeaderReason 死信原因，仅死信消息携带
	HeaderReason = "x-escalation-reason"
)

// EscalationHeaders 为一条待投递的升级消息生成消息头。
// deliverAt 为零值时不写入 HeaderDeliverAt（立即可消费）。
func EscalationHeaders(msg *xescalate.Message, deliverAt time.Time) map[string]string {
	headers := map[string]string{
		HeaderMessageID:  msg.ID,
		HeaderOperation:  msg.OriginalOperation,
		HeaderRetryCount: strconv.Itoa(msg.RetryCount),
	}
	if !deliverAt.IsZero() {
		headers[HeaderDeliverAt] = strconv.FormatInt(deliverAt.UnixMilli(), 10)
	}
	return headers
}

// DeadLetterHeaders 为死信生成消息头。
func DeadLetterHeaders(dl *xescalate.DeadLetter) map[string]string {
	headers := EscalationHeaders(&dl.Message, time.Time{})
	if dl.Reason != "" {
		headers[HeaderReason] = dl.Reason
	}
	return headers
}

// DeliverAt 读取到期时间。消息头缺失时返回零值与 nil。
func DeliverAt(headers map[string]string) (time.Time, error) {
	raw, ok := headers[HeaderDeliverAt]
	if !ok || raw == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s=%q: %w", ErrBadHeader, HeaderDeliverAt, raw, err)
	}
	return time.UnixMilli(ms), nil
}

// WaitUntil 阻塞到 deliverAt 或 ctx 结束。deliverAt 已过期时立即返回。
func WaitUntil(ctx context.Context, deliverAt time.Time, now func() time.Time) error {
	if now == nil {
		now = time.Now
	}
	return Sleep(ctx, deliverAt.Sub(now()))
}

// Sleep 可被 ctx 取消的等待。d <= 0 时只检查 ctx。
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
