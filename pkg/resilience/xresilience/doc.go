// Package xresilience 把熔断、重试、恢复与升级编排成一次受保护调用。
//
// 一次 ExecuteWithResilience 的流程：
//
//  1. 熔断器放行检查；打开时快速失败，返回 ErrUnavailable
//  2. 该操作近期被限流时先等待 min(5s·倍数, 30s)
//  3. 本地重试：失败经 xclassify 分类，由 xretry 调度器决定是否重试与等待多久
//  4. 重试用尽后按操作名与类别选择 xrecovery 策略尝试恢复
//  5. 恢复失败交给 xescalate：延迟重投或进入死信，调用方得到 *Failure
//
// 每次实际调用都会更新熔断计数；调用 panic 会被恢复并按 GENERIC 处理。
// ctx 取消时立即放弃剩余等待，返回包装 context.Canceled / DeadlineExceeded 的错误。
//
// 基本用法:
//
//	cfg, err := xresilience.LoadConfig("/etc/xresilience/config.yaml")
//	if err != nil {
//	    return err
//	}
//	engine, err := xresilience.New(cfg,
//	    xresilience.WithEscalation(queue, sink),
//	    xresilience.WithRecorder(recorder),
//	)
//	if err != nil {
//	    return err
//	}
//	rows, err := xresilience.Execute(ctx, engine, "data-retrieval", fetchRows)
//	switch {
//	case errors.Is(err, xresilience.ErrUnavailable):
//	    // 熔断中，走降级展示
//	case err != nil:
//	    f, _ := xresilience.AsFailure(err)
//	    log.Printf("failed: %s, escalated: %v", f.Category, f.Escalation)
//	}
//
// Engine 同时实现 xescalate.Replayer，升级消息的消费者通过 Replay 把消息重新送回引擎。
package xresilience
