package xlimit

import (
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/omeyang/xquota/pkg/observability/xlog"
)

// options 内部配置结构
type options struct {
	logger        xlog.Logger
	meterProvider metric.MeterProvider
	now           func() time.Time
}

// Option 配置选项函数
type Option func(*options)

func defaultOptions() *options {
	return &options{
		logger: xlog.Nop(),
		now:    time.Now,
	}
}

// WithLogger 设置日志记录器，用于降级告警
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeterProvider 设置 OpenTelemetry MeterProvider，为 nil 时不收集指标
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithClock 设置时钟，影响本地令牌桶与 ResetAt
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
