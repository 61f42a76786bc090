// Package distributed 提供多副本部署下的协调子包。
//
// 子包列表：
//   - xdlock: 基于 Redis（redsync）的分布式锁，带自动续期的 Guard
//   - xcron: 周期任务调度，配合 xdlock 保证同一时刻只有一个实例执行
//
// 维护任务（如死信归档）通过 xcron 调度、xdlock 互斥。
package distributed
