package xctx

import (
	"context"
	"log/slog"
)

// AppendTraceAttrs 追加非空的追踪字段
func AppendTraceAttrs(attrs []slog.Attr, ctx context.Context) []slog.Attr {
	if ctx == nil {
		return attrs
	}
	if v := TraceID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyTraceID, v))
	}
	if v := SpanID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeySpanID, v))
	}
	if v := RequestID(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyRequestID, v))
	}
	return attrs
}

// AppendClientAttrs 追加非空的客户端字段
func AppendClientAttrs(attrs []slog.Attr, ctx context.Context) []slog.Attr {
	if ctx == nil {
		return attrs
	}
	if v := ClientAddress(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyClientAddress, v))
	}
	if v := Fingerprint(ctx); v != "" {
		attrs = append(attrs, slog.String(KeyFingerprint, v))
	}
	return attrs
}
