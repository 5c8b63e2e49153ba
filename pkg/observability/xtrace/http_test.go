package xtrace_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xquota/pkg/context/xctx"
	"github.com/omeyang/xquota/pkg/observability/xtrace"
)

const (
	traceID     = "0af7651916cd43dd8448eb211c80319c"
	spanID      = "b7ad6b7169203331"
	traceparent = "00-" + traceID + "-" + spanID + "-01"
)

// makeHeader 创建 HTTP Header 并正确设置值
func makeHeader(kvs ...string) http.Header {
	h := make(http.Header)
	for i := 0; i < len(kvs)-1; i += 2 {
		h.Set(kvs[i], kvs[i+1])
	}
	return h
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name      string
		header    http.Header
		wantTrace string
		wantSpan  string
		sampled   bool
	}{
		{"nil_header", nil, "", "", false},
		{"empty", http.Header{}, "", "", false},
		{"traceparent", makeHeader(xtrace.HeaderTraceparent, traceparent), traceID, spanID, true},
		{"custom_headers", makeHeader(xtrace.HeaderTraceID, traceID, xtrace.HeaderSpanID, spanID), traceID, spanID, false},
		{"custom_uppercase", makeHeader(xtrace.HeaderTraceID, "0AF7651916CD43DD8448EB211C80319C"), traceID, "", false},
		{"traceparent_wins", makeHeader(
			xtrace.HeaderTraceparent, traceparent,
			xtrace.HeaderTraceID, "11111111111111111111111111111111",
		), traceID, spanID, true},
		{"invalid_traceparent_falls_back", makeHeader(
			xtrace.HeaderTraceparent, "00-zz-yy-01",
			xtrace.HeaderTraceID, traceID,
		), traceID, "", false},
		{"zero_trace_id", makeHeader(xtrace.HeaderTraceID, "00000000000000000000000000000000"), "", "", false},
		{"short_trace_id", makeHeader(xtrace.HeaderTraceID, "abc123"), "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := xtrace.Extract(context.Background(), tt.header)
			sc := trace.SpanContextFromContext(ctx)
			if tt.wantTrace == "" {
				assert.False(t, sc.IsValid())
				assert.Empty(t, xctx.TraceID(ctx))
				return
			}
			require.True(t, sc.IsValid())
			assert.True(t, sc.IsRemote())
			assert.Equal(t, tt.wantTrace, xctx.TraceID(ctx))
			if tt.wantSpan != "" {
				assert.Equal(t, tt.wantSpan, xctx.SpanID(ctx))
			} else {
				assert.Len(t, xctx.SpanID(ctx), 16)
			}
			assert.Equal(t, tt.sampled, sc.IsSampled())
		})
	}
}

func TestHTTPMiddleware(t *testing.T) {
	var got context.Context
	h := xtrace.HTTPMiddleware()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = r.Context()
	}))

	t.Run("propagates", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(xtrace.HeaderTraceparent, traceparent)
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, traceID, xctx.TraceID(got))
		assert.Equal(t, spanID, xctx.SpanID(got))
	})

	t.Run("generates", func(t *testing.T) {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Len(t, xctx.TraceID(got), 32)
		assert.Len(t, xctx.SpanID(got), 16)
		assert.False(t, trace.SpanContextFromContext(got).IsSampled())
	})

	t.Run("no_generate", func(t *testing.T) {
		h := xtrace.HTTPMiddleware(xtrace.WithAutoGenerate(false))(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			got = r.Context()
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Empty(t, xctx.TraceID(got))
	})
}

func TestInjectToRequest(t *testing.T) {
	ctx := xtrace.Extract(context.Background(), makeHeader(xtrace.HeaderTraceparent, traceparent))

	req := &http.Request{}
	xtrace.InjectToRequest(ctx, req)
	assert.Equal(t, traceparent, req.Header.Get(xtrace.HeaderTraceparent))
	assert.Equal(t, traceID, req.Header.Get(xtrace.HeaderTraceID))
	assert.Equal(t, spanID, req.Header.Get(xtrace.HeaderSpanID))

	t.Run("no_trace", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		xtrace.InjectToRequest(context.Background(), req)
		assert.Empty(t, req.Header.Get(xtrace.HeaderTraceparent))
		assert.Empty(t, req.Header.Get(xtrace.HeaderTraceID))
	})

	t.Run("nil_request", func(t *testing.T) {
		assert.NotPanics(t, func() { xtrace.InjectToRequest(ctx, nil) })
	})
}
