package xmetrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Prometheus 把 OTel 指标导出为 Prometheus 格式
//
// 每个实例持有独立的 Registry，测试之间互不干扰。
type Prometheus struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider
}

// NewPrometheus 创建 Prometheus 导出器和对应的 MeterProvider
//
// Registry 中额外注册了 Go runtime 与进程指标。
func NewPrometheus() (*Prometheus, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateExporter, err)
	}

	return &Prometheus{
		registry: registry,
		provider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)),
	}, nil
}

// MeterProvider 返回用于创建指标的 provider
func (p *Prometheus) MeterProvider() metric.MeterProvider {
	return p.provider
}

// Handler 返回 /metrics 处理器
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown 刷新并关闭 MeterProvider
func (p *Prometheus) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}
