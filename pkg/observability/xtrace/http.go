package xtrace

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// HTTP Header 常量
// =============================================================================

// HTTP Header 名称
const (
	// 自定义 Header（兼容常见实现）
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"

	// W3C Trace Context 标准 Header
	HeaderTraceparent = "traceparent"
	HeaderTracestate  = "tracestate"
)

// DefaultPropagator 默认传播器：W3C Trace Context 与 Baggage
func DefaultPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
}

// =============================================================================
// 选项
// =============================================================================

// Option 中间件与注入选项
type Option func(*config)

type config struct {
	propagator   propagation.TextMapPropagator
	autoGenerate bool
}

func newConfig(opts []Option) *config {
	cfg := &config{propagator: DefaultPropagator(), autoGenerate: true}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// WithPropagator 替换传播器
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *config) {
		if p != nil {
			c.propagator = p
		}
	}
}

// WithAutoGenerate 设置上游没有追踪信息时是否生成新的 trace ID，默认 true
func WithAutoGenerate(enabled bool) Option {
	return func(c *config) {
		c.autoGenerate = enabled
	}
}

// =============================================================================
// 服务端
// =============================================================================

// HTTPMiddleware 返回 HTTP 中间件，把上游追踪信息写入请求 context
func HTTPMiddleware(opts ...Option) func(http.Handler) http.Handler {
	cfg := newConfig(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := Extract(r.Context(), r.Header, opts...)
			if cfg.autoGenerate && !trace.SpanContextFromContext(ctx).IsValid() {
				ctx = trace.ContextWithRemoteSpanContext(ctx, generate())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Extract 从请求头提取追踪信息
//
// traceparent 无效或缺失时回退到 X-Trace-ID / X-Span-ID；两者都无效时 ctx 原样返回。
func Extract(ctx context.Context, h http.Header, opts ...Option) context.Context {
	if h == nil {
		return ctx
	}
	cfg := newConfig(opts)
	ctx = cfg.propagator.Extract(ctx, propagation.HeaderCarrier(h))
	if trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}

	if sc, ok := fromCustomHeaders(h); ok {
		ctx = trace.ContextWithRemoteSpanContext(ctx, sc)
	}
	return ctx
}

// =============================================================================
// 客户端
// =============================================================================

// InjectToRequest 把 context 中的追踪信息写入出站请求
//
// 同时写入 traceparent 与自定义头，下游任选其一即可。
func InjectToRequest(ctx context.Context, req *http.Request, opts ...Option) {
	if req == nil || ctx == nil {
		return
	}
	// 防止调用方构造 &http.Request{} 导致 nil Header panic
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return
	}
	newConfig(opts).propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))
	req.Header.Set(HeaderTraceID, sc.TraceID().String())
	req.Header.Set(HeaderSpanID, sc.SpanID().String())
}

// =============================================================================
// 内部辅助函数
// =============================================================================

func fromCustomHeaders(h http.Header) (trace.SpanContext, bool) {
	tid, err := trace.TraceIDFromHex(strings.ToLower(strings.TrimSpace(h.Get(HeaderTraceID))))
	if err != nil {
		return trace.SpanContext{}, false
	}
	// 只有 trace ID 时生成一个 span ID 作为父节点
	sid, err := trace.SpanIDFromHex(strings.ToLower(strings.TrimSpace(h.Get(HeaderSpanID))))
	if err != nil {
		sid = newSpanID()
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid,
		SpanID:  sid,
		Remote:  true,
	}), true
}

// generate 生成新的根追踪上下文，未采样
func generate() trace.SpanContext {
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID(uuid.New()),
		SpanID:  newSpanID(),
		Remote:  true,
	})
}

func newSpanID() trace.SpanID {
	var sid trace.SpanID
	u := uuid.New()
	copy(sid[:], u[:8])
	return sid
}
