package main

import (
	"context"
	"errors"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xresilience/pkg/observability/xlog"
	"github.com/omeyang/xresilience/pkg/resilience/xescalate"
	"github.com/omeyang/xresilience/pkg/resilience/xlimit"
	"github.com/omeyang/xresilience/pkg/resilience/xrecovery"
)

// rateLimitedReplayer 按原始操作名限制重放速率，所有消费者副本共享 redis 中的配额。
type rateLimitedReplayer struct {
	next    xescalate.Replayer
	limiter *xlimit.Limiter
}

func (r rateLimitedReplayer) Replay(ctx context.Context, msg *xescalate.Message, call xrecovery.Call) error {
	// 缺少操作名的消息交给 next 校验
	if msg != nil && msg.OriginalOperation != "" {
		if err := xlimit.Wait(ctx, r.limiter, msg.OriginalOperation); err != nil {
			return err
		}
	}
	return r.next.Replay(ctx, msg, call)
}

// withReplayLimit 在 --rate > 0 时给 b 包上限流，返回的 stats 供周期日志使用。
// 限流器使用独立的 redis 连接，随 b.close 一起释放。
func withReplayLimit(ctx context.Context, cmd *cli.Command, b *backend, next xescalate.Replayer, logger xlog.Logger) (xescalate.Replayer, func() any, error) {
	rate := cmd.Int("rate")
	if rate <= 0 {
		return next, nil, nil
	}
	fallback := xlimit.Fallback(cmd.String("rate-fallback"))
	if fallback != xlimit.FallbackOpen && fallback != xlimit.FallbackClose {
		return nil, nil, usagef("--rate-fallback 只能是 open 或 close")
	}

	client, err := newRedisClient(ctx, cmd)
	if err != nil {
		return nil, nil, err
	}
	limiter, err := xlimit.New(client, xlimit.PerSecond(rate),
		xlimit.WithFallback(fallback),
		xlimit.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, errors.Join(usagef("%v", err), client.Close())
	}

	closeBackend := b.close
	b.close = func(ctx context.Context) error {
		return errors.Join(closeBackend(ctx), client.Close())
	}
	return rateLimitedReplayer{next: next, limiter: limiter}, func() any { return limiter.Stats() }, nil
}
