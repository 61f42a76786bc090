// Package xclassify 将任意错误归入有限的错误类别集合。
//
// # 设计理念
//
// 分类规则是一张有序的 (类别, 谓词) 表，按顺序求值，首个命中的规则生效；
// 没有规则命中时返回 Generic。Classify 是纯函数，对任何输入（包括 nil）
// 都返回一个类别，不会 panic。
//
// # 默认规则顺序
//
//  1. Throttling：throttl / rate limit / too many requests / quota exceeded
//  2. Network：network / connection / timeout / dns / socket / unreachable
//  3. Timeout：context.DeadlineExceeded、net.Error.Timeout()、timed out
//  4. Quota：quota / limit exceeded
//  5. Credential：credential / unauthorized / access denied / expired token
//
// 注意 Network 规则排在 Timeout 之前，消息中含 "timeout" 的错误归为 Network；
// Timeout 规则只捕获未被消息匹配到的超时（例如 context.DeadlineExceeded）。
//
// # 错误种类
//
// 错误种类（kind）取错误链上第一个实现 Kinder 接口的错误，
// 否则取最外层错误的动态类型名。适配层可以用 NewError 构造带种类的错误。
package xclassify
