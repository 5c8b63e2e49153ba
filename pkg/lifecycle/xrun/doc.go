// Package xrun 管理 xquotad 各个长期运行组件的并发启动与协调关闭。
//
// 组件（HTTP 服务、定时清理、配置监视）以 func(ctx) error 的形式注册到 [Group]；
// 任一组件失败或收到退出信号时，其余组件的 ctx 被取消。
//
//	err := xrun.Run(ctx, []xrun.Option{xrun.WithLogger(logger)},
//	    xrun.Named("http", xrun.HTTPServer(srv, 10*time.Second)),
//	    xrun.Named("config-watch", watcher.Run),
//	)
//	if errors.Is(err, xrun.ErrSignal) {
//	    // 正常退出
//	}
package xrun
