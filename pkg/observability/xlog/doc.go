// Package xlog 提供基于 log/slog 的结构化日志。
//
// # 设计理念
//
//   - 所有方法强制传入 context，请求 ID 与客户端身份随日志自动输出
//   - 方法只接受 slog.Attr，避免隐式 key-value 转换
//   - 级别可在运行时调整（配置热更新时使用）
//   - Build 返回 cleanup 函数，负责关闭轮转文件
//
// # 快速开始
//
//	logger, cleanup, err := xlog.New().
//	    SetLevelString("info").
//	    SetFormat("json").
//	    SetRotation(xlog.RotationConfig{Filename: "/var/log/xquotad.log", MaxSizeMB: 100}).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	defer cleanup()
//
//	logger.Info(ctx, "decision", slog.Bool("allowed", true))
//
// # 审计日志
//
// 失败放行等需要事后追查的事件使用 [Audit] 属性标记，便于日志平台按 audit=true 检索。
package xlog
