// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xid: 分布式唯一 ID（sonyflake），用于恢复消息 ID
//   - xjson: JSON 序列化工具，Pretty 格式化输出
package util
