package xlimit

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// 指标名称常量
const (
	metricNameRequestsTotal = "xlimit.requests.total"
	metricNameDeniedTotal   = "xlimit.denied.total"
	metricNameFallbackTotal = "xlimit.fallback.total"
	metricNameCheckDuration = "xlimit.check.duration"
)

// Metrics 限流指标收集器
type Metrics struct {
	requestsTotal metric.Int64Counter
	deniedTotal   metric.Int64Counter
	fallbackTotal metric.Int64Counter
	checkDuration metric.Float64Histogram
}

// NewMetrics 创建指标收集器
// 如果 meterProvider 为 nil，返回 nil（不收集指标）
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	if meterProvider == nil {
		return nil, nil
	}

	meter := meterProvider.Meter("xlimit")

	requestsTotal, err := meter.Int64Counter(
		metricNameRequestsTotal,
		metric.WithDescription("突发限流检查总数"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	deniedTotal, err := meter.Int64Counter(
		metricNameDeniedTotal,
		metric.WithDescription("被突发限流拒绝的请求数"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	fallbackTotal, err := meter.Int64Counter(
		metricNameFallbackTotal,
		metric.WithDescription("Redis 故障降级次数"),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		return nil, err
	}

	checkDuration, err := meter.Float64Histogram(
		metricNameCheckDuration,
		metric.WithDescription("突发限流检查耗时"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0,
		),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		requestsTotal: requestsTotal,
		deniedTotal:   deniedTotal,
		fallbackTotal: fallbackTotal,
		checkDuration: checkDuration,
	}, nil
}

// RecordAllow 记录一次检查
func (m *Metrics) RecordAllow(ctx context.Context, backend string, allowed bool, duration time.Duration) {
	if m == nil {
		return
	}

	// 使用 context.WithoutCancel 确保即使 ctx 被取消，指标仍能记录
	metricsCtx := context.WithoutCancel(ctx)

	attrs := metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.Bool("allowed", allowed),
	)
	m.requestsTotal.Add(metricsCtx, 1, attrs)
	if !allowed {
		m.deniedTotal.Add(metricsCtx, 1, attrs)
	}
	m.checkDuration.Record(metricsCtx, duration.Seconds(), attrs)
}

// RecordFallback 记录降级事件
func (m *Metrics) RecordFallback(ctx context.Context, strategy FallbackStrategy) {
	if m == nil {
		return
	}
	m.fallbackTotal.Add(context.WithoutCancel(ctx), 1,
		metric.WithAttributes(attribute.String("strategy", string(strategy))))
}
