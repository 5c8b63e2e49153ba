// Package xconf 基于 koanf 加载 YAML/JSON 配置并支持文件热更新。
//
// 只提供增值功能：格式检测、带校验的反序列化、基于 fsnotify 的监视。
// 其余操作直接使用 Client() 返回的 koanf 实例。
//
// # 使用示例
//
//	cfg, err := xconf.New("/etc/xquotad/config.yaml")
//	if err != nil {
//	    return err
//	}
//	var policy xquota.Policy
//	if err := xconf.Load(cfg, "quota", &policy); err != nil {
//	    return err
//	}
//
//	w, err := xconf.Watch(cfg, func(c xconf.Config, err error) {
//	    // 重新 Load 并应用
//	}, xconf.WithDebounce(200*time.Millisecond))
//	go w.Run(ctx)
//
// # 监视策略
//
// Watcher 监视配置文件所在目录而非文件本身：编辑器与 K8s ConfigMap 更新通常
// 以“写临时文件再 rename”的方式完成，直接监视文件会丢失事件。
package xconf
