// Package xmetrics 提供韧性引擎的指标上报（Recorder）与链路观测（Observer）。
//
// # 设计理念
//
// 业务代码只依赖 Recorder / Observer 接口，默认实现基于 OpenTelemetry；
// 未注入时使用 NoopRecorder / NoopObserver，指标上报是即发即弃的，
// 任何实现都不应阻塞或向调用方返回错误。
//
// # 指标命名
//
// 恢复相关：
//   - RecoveryAttempts{RecoveryType, OriginalOperation}
//   - RecoveryDuration{RecoveryType, Success}（毫秒）
//   - SuccessfulRecoveries / FailedRecoveries{RecoveryType, OriginalOperation}
//
// 熔断与调用：
//   - CircuitBreakerOpened{OperationKey}
//   - OperationSuccess / OperationErrors{OperationName, Category}
//   - OperationDuration{OperationName}（毫秒）
//
// 升级：
//   - EscalationsEnqueued / DLQMessagesSent{OriginalOperation}
//
// # 使用示例
//
//	rec, _ := xmetrics.NewOTelRecorder()
//	obs, _ := xmetrics.NewOTelObserver()
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xresilience",
//		Operation: "model-inference",
//	})
//	defer span.End(xmetrics.Result{Err: err})
package xmetrics
