// Package xid 生成升级消息使用的唯一 ID。
//
// 主路径是 Sonyflake（sony/sonyflake/v2）：63 位、按时间有序、以 36 进制字符串输出；
// 机器 ID 按 XRESILIENCE_MACHINE_ID → POD_NAME 哈希 → HOSTNAME 哈希 → os.Hostname 哈希的顺序获取。
// Sonyflake 不可用（机器 ID 无法确定、时间分量溢出）时，[NewMessageID] 退化为 UUIDv4，
// 保证升级路径上永远能拿到 ID。
package xid
