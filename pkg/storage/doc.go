// Package storage 提供数据存储相关的子包。
//
// 子包列表：
//   - xmongo: 死信的 MongoDB 长期归档，支持分页查询与批量写入
package storage
