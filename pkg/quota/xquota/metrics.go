package xquota

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/omeyang/xquota/pkg/quota/xcollision"
	"github.com/omeyang/xquota/pkg/quota/xstore"
)

const (
	metricDecisionsTotal   = "xquota.decisions.total"
	metricCollisionsTotal  = "xquota.collisions.total"
	metricStoreErrorsTotal = "xquota.store.errors.total"
	metricFailOpenTotal    = "xquota.fail_open.total"
	metricDecideDuration   = "xquota.decide.duration"

	attrAllowed     = "allowed"
	attrReason      = "reason"
	attrEnforcement = "enforcement"
	attrKind        = "kind"
	attrOp          = "op"
	attrOperation   = "operation"
)

var durationBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// metrics 引擎指标，nil 时不记录
type metrics struct {
	decisions   metric.Int64Counter
	collisions  metric.Int64Counter
	storeErrors metric.Int64Counter
	failOpen    metric.Int64Counter
	duration    metric.Float64Histogram
}

func newMetrics(provider metric.MeterProvider) (*metrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter("xquota")

	m := &metrics{}
	var err error
	if m.decisions, err = meter.Int64Counter(metricDecisionsTotal,
		metric.WithDescription("配额判定次数"), metric.WithUnit("{decision}")); err != nil {
		return nil, err
	}
	if m.collisions, err = meter.Int64Counter(metricCollisionsTotal,
		metric.WithDescription("检测到的身份冲突"), metric.WithUnit("{collision}")); err != nil {
		return nil, err
	}
	if m.storeErrors, err = meter.Int64Counter(metricStoreErrorsTotal,
		metric.WithDescription("存储访问失败次数"), metric.WithUnit("{error}")); err != nil {
		return nil, err
	}
	if m.failOpen, err = meter.Int64Counter(metricFailOpenTotal,
		metric.WithDescription("存储故障时按 fail-open 放行的次数"), metric.WithUnit("{decision}")); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram(metricDecideDuration,
		metric.WithDescription("判定耗时"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *metrics) recordDecision(ctx context.Context, d *Decision) {
	if m == nil || d == nil {
		return
	}
	m.decisions.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.Bool(attrAllowed, d.Allowed),
		attribute.String(attrReason, string(d.Reason)),
		attribute.String(attrEnforcement, string(d.Enforcement)),
	))
}

func (m *metrics) recordCollision(ctx context.Context, c xcollision.Result) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, kind := range c.Kinds() {
		m.collisions.Add(ctx, 1, metric.WithAttributes(attribute.String(attrKind, string(kind))))
	}
}

func (m *metrics) recordStoreError(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.storeErrors.Add(context.WithoutCancel(ctx), 1,
		metric.WithAttributes(attribute.String(attrOp, xstore.OpName(err))))
}

func (m *metrics) recordFailOpen(ctx context.Context) {
	if m == nil {
		return
	}
	m.failOpen.Add(context.WithoutCancel(ctx), 1)
}

func (m *metrics) recordDuration(ctx context.Context, operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Record(context.WithoutCancel(ctx), d.Seconds(),
		metric.WithAttributes(attribute.String(attrOperation, operation)))
}
