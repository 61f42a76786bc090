// Package xjson 提供命令行与日志使用的 JSON 输出工具。
//
//   - [PrettyE]: 格式化序列化，失败返回 [ErrMarshal] 包装的错误
//   - [Pretty]: 便捷版本，失败时返回 "<marshal error: ...>" 标记字符串
//   - [Write]: 写入 io.Writer，紧凑模式下每个值一行（JSON Lines）
//
// 遵循 [encoding/json] 默认行为，HTML 特殊字符会被转义。
package xjson
