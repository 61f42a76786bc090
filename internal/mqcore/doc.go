// Package mqcore 提供恢复队列后端（Kafka、Pulsar、Redis）共享的核心功能。
//
// 本包是 internal 包，仅供 pkg/mq 下的各后端使用。
//
// 主要功能：
//   - 升级消息头：投递时间、消息 ID、操作名与重投次数的统一编码（EscalationHeaders / DeliverAt）
//   - WaitUntil：消费侧等待消息到期，可被 ctx 取消
//   - Tracer 接口与 OTelTracer：在消息头中注入/提取 W3C Trace Context
//   - MergeTraceContext：把消息头里的远端 SpanContext 与 Baggage 合并进消费 ctx
//   - RunConsumeLoop：基于 xretry.Curve 的消费循环，失败退避、成功重置
//   - 共享错误定义
package mqcore
