// Package xconf 加载 YAML / JSON 配置文件并反序列化到结构体，基于 koanf 实现。
//
// xconf 只负责加载、反序列化与重载；字段校验与默认值由使用方
// （如 xresilience.Config.Validate）负责。
//
// Unmarshal 使用 koanf 的默认解码配置：弱类型转换、字符串到 time.Duration
// 的转换（"60s"），以及 encoding.TextUnmarshaler 字段（策略名、错误类别名）。
//
//	var cfg xresilience.Config
//	if err := xconf.Load("/etc/xresilience/config.yaml", "", &cfg); err != nil {
//	    return err
//	}
//
// Watch 基于 fsnotify 监视配置文件所在目录，防抖后重载并回调，
// 阻塞直到 ctx 取消，适合放进 xrun.Group。
package xconf
