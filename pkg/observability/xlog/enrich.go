package xlog

import (
	"context"
	"log/slog"

	"github.com/omeyang/xquota/pkg/context/xctx"
)

// EnrichHandler 从 context 提取请求字段并注入日志
//
// 注入 trace_id、span_id、request_id 以及 client_address、fingerprint。
// 缺少的字段直接跳过，不影响日志记录。
type EnrichHandler struct {
	base slog.Handler
}

// NewEnrichHandler 包装底层 handler
func NewEnrichHandler(base slog.Handler) *EnrichHandler {
	return &EnrichHandler{base: base}
}

// Enabled 委托给底层 handler
func (h *EnrichHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// maxEnrichAttrs trace 3 + client 2
const maxEnrichAttrs = 5

// Handle 注入字段后交给底层 handler
//
// 按 slog 契约，修改前必须 Clone record。
func (h *EnrichHandler) Handle(ctx context.Context, r slog.Record) error {
	var buf [maxEnrichAttrs]slog.Attr
	attrs := xctx.AppendTraceAttrs(buf[:0], ctx)
	attrs = xctx.AppendClientAttrs(attrs, ctx)
	if len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.base.Handle(ctx, r)
}

// WithAttrs 返回带额外属性的新 handler
func (h *EnrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &EnrichHandler{base: h.base.WithAttrs(attrs)}
}

// WithGroup 返回带分组的新 handler
//
// 设计决策: 分组之后注入的字段也会落在分组内，这是 slog handler 链的固有行为。
func (h *EnrichHandler) WithGroup(name string) slog.Handler {
	return &EnrichHandler{base: h.base.WithGroup(name)}
}
