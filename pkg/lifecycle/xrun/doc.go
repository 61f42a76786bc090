// Package xrun 管理升级消费进程的生命周期：并发运行多个消费循环，
// 任一失败或收到信号时协调关闭。
//
// # 基本用法
//
//	err := xrun.Run(ctx,
//	    xrun.Loop(kafkaConsumer),
//	    xrun.Loop(redisConsumer),
//	    xrun.Ticker(time.Minute, false, reportStats),
//	    xrun.OnShutdown(10*time.Second, closeClients),
//	)
//	if errors.Is(err, xrun.ErrSignal) {
//	    // 正常的信号退出
//	}
//
// # 退出语义
//
// Group.Wait 过滤普通的 context.Canceled，但保留显式的取消原因：
// 信号退出返回 *SignalError，Cancel(cause) 返回 cause。
// 服务内部自行产生的 context.Canceled（Group 未被取消）原样返回。
//
// 设计决策: Loop 把消费循环因 ctx 取消而返回的 context.Canceled 视为正常结束，
// 这样一个服务失败导致的级联取消不会掩盖首个真实错误。
package xrun
