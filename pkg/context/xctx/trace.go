package xctx

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// WithRequestID 将 request ID 写入 context
func WithRequestID(ctx context.Context, requestID string) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, keyRequestID, requestID), nil
}

// RequestID 读取 request ID，不存在时返回空字符串
func RequestID(ctx context.Context) string {
	return stringValue(ctx, keyRequestID)
}

// RequireRequestID 读取 request ID，不存在时返回 [ErrMissingRequestID]
func RequireRequestID(ctx context.Context) (string, error) {
	if ctx == nil {
		return "", ErrNilContext
	}
	if v := RequestID(ctx); v != "" {
		return v, nil
	}
	return "", ErrMissingRequestID
}

// GenerateRequestID 生成新的 request ID（UUID v7，按时间有序）
//
// 随机源不可用时退化为 UUID v4。
func GenerateRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// EnsureRequestID 确保 context 中存在 request ID，已有时原样返回
func EnsureRequestID(ctx context.Context) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if RequestID(ctx) != "" {
		return ctx, nil
	}
	return WithRequestID(ctx, GenerateRequestID())
}

// WithTraceID 将 trace ID 写入 context
func WithTraceID(ctx context.Context, traceID string) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, keyTraceID, traceID), nil
}

// TraceID 读取 trace ID
//
// 显式设置的值优先，否则使用当前 OpenTelemetry span 的 trace ID。
func TraceID(ctx context.Context) string {
	if v := stringValue(ctx, keyTraceID); v != "" {
		return v
	}
	if ctx == nil {
		return ""
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// WithSpanID 将 span ID 写入 context
func WithSpanID(ctx context.Context, spanID string) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, keySpanID, spanID), nil
}

// SpanID 读取 span ID，规则同 [TraceID]
func SpanID(ctx context.Context) string {
	if v := stringValue(ctx, keySpanID); v != "" {
		return v
	}
	if ctx == nil {
		return ""
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasSpanID() {
		return sc.SpanID().String()
	}
	return ""
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
