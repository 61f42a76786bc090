// Package xlog 基于 log/slog 的结构化日志库。
//
// # 创建 Logger
//
// Builder 模式（first-error-wins）：
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("debug").
//		SetFormat("json").
//		SetRotation("/var/log/xresilience.log", xlog.Rotation{MaxSizeMB: 100}).
//		Build()
//	defer cleanup()
//
// 文件轮转由 lumberjack 提供。
//
// # Context 注入
//
// [EnrichHandler] 默认启用，从 ctx 中读取：
//   - operation：[WithOperation] 写入的受保护调用名
//   - message_id：[WithMessageID] 写入的升级消息 ID
//   - trace_id / span_id：OpenTelemetry span 上下文
//
// # 便捷属性
//
// [Err]、[Duration]、[Delay]、[Component]、[Operation]、[Category]、
// [RecoveryType]、[Attempt]、[State]。
//
// 未注入 logger 的组件使用 [Discard]。
package xlog
