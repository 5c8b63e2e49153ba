package xmetrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newTestProviders(t *testing.T) (*tracetest.InMemoryExporter, *sdkmetric.ManualReader, Observer) {
	t.Helper()
	spans := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	obs, err := NewOTelObserver(WithTracerProvider(tp), WithMeterProvider(mp))
	require.NoError(t, err)
	return spans, reader, obs
}

func collectTotal(t *testing.T, reader *sdkmetric.ManualReader, status Status) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != metricOperationTotal {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key("status")); ok && v.AsString() == string(status) {
					return dp.Value
				}
			}
		}
	}
	return 0
}

func TestOTelObserver_SpanAndMetrics(t *testing.T) {
	spans, reader, obs := newTestProviders(t)

	ctx, span := Start(context.Background(), obs, SpanOptions{
		Component: "xquota",
		Operation: "decide",
		Kind:      KindServer,
		Attrs:     []Attr{String("strategy", "adaptive-combined")},
	})
	assert.True(t, trace.SpanContextFromContext(ctx).IsValid())
	span.End(Result{Attrs: []Attr{Bool("allowed", true), Int64("used", 2)}})
	// 幂等
	span.End(Result{Err: errors.New("ignored")})

	_, failed := Start(context.Background(), obs, SpanOptions{Component: "xquota", Operation: "decide"})
	failed.End(Result{Err: errors.New("store down")})

	got := spans.GetSpans()
	require.Len(t, got, 2)
	assert.Equal(t, "xquota.decide", got[0].Name)
	assert.Equal(t, trace.SpanKindServer, got[0].SpanKind)

	assert.Equal(t, int64(1), collectTotal(t, reader, StatusOK))
	assert.Equal(t, int64(1), collectTotal(t, reader, StatusError))
}

func TestOTelObserver_Denied(t *testing.T) {
	spans, reader, obs := newTestProviders(t)

	_, span := Start(context.Background(), obs, SpanOptions{Component: "xquota", Operation: "decide"})
	span.End(Result{Status: StatusDenied, Attrs: []Attr{String("reason", "daily-limit")}})

	got := spans.GetSpans()
	require.Len(t, got, 1)
	assert.Equal(t, codes.Ok, got[0].Status.Code)
	assert.Equal(t, int64(1), collectTotal(t, reader, StatusDenied))
	assert.Equal(t, int64(0), collectTotal(t, reader, StatusOK))
}

func TestOTelObserver_UnknownNames(t *testing.T) {
	spans, _, obs := newTestProviders(t)
	_, span := obs.Start(nil, SpanOptions{}) //nolint:staticcheck // nil ctx 归一化
	span.End(Result{Status: StatusError})

	got := spans.GetSpans()
	require.Len(t, got, 1)
	assert.Equal(t, "unknown.unknown", got[0].Name)
}

func TestStart_NilObserver(t *testing.T) {
	ctx, span := Start(nil, nil, SpanOptions{}) //nolint:staticcheck // nil ctx 归一化
	assert.NotNil(t, ctx)
	assert.IsType(t, NoopSpan{}, span)

	ctx, span = NoopObserver{}.Start(nil, SpanOptions{}) //nolint:staticcheck // nil ctx 归一化
	assert.NotNil(t, ctx)
	span.End(Result{})
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "Internal", KindInternal.String())
	assert.Equal(t, "Server", KindServer.String())
	assert.Equal(t, "Client", KindClient.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}

func TestToKeyValue(t *testing.T) {
	tests := []struct {
		attr Attr
		want attribute.Type
	}{
		{String("k", "v"), attribute.STRING},
		{Bool("k", true), attribute.BOOL},
		{Int64("k", 1), attribute.INT64},
		{Attr{Key: "k", Value: 1}, attribute.INT64},
		{Attr{Key: "k", Value: uint64(1)}, attribute.INT64},
		{Attr{Key: "k", Value: ^uint64(0)}, attribute.STRING},
		{Attr{Key: "k", Value: 1.5}, attribute.FLOAT64},
		{Attr{Key: "k", Value: struct{}{}}, attribute.STRING},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toKeyValue(tt.attr).Value.Type(), "%#v", tt.attr)
	}
	assert.Len(t, attrsToOTel([]Attr{{Key: ""}, {Key: "nil"}}), 0)
}

func TestPrometheus_Handler(t *testing.T) {
	prom, err := NewPrometheus()
	require.NoError(t, err)
	t.Cleanup(func() { _ = prom.Shutdown(context.Background()) })

	obs, err := NewOTelObserver(WithMeterProvider(prom.MeterProvider()))
	require.NoError(t, err)
	_, span := obs.Start(context.Background(), SpanOptions{Component: "xquota", Operation: "query"})
	span.End(Result{})

	rec := httptest.NewRecorder()
	prom.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(string(body), "xquota_operation"), "missing operation counter")
	assert.True(t, strings.Contains(string(body), "go_goroutines"), "missing runtime collector")
}
