// Package xmetrics 提供统一的可观测性接口（metrics + tracing）。
//
// # 设计理念
//
// xmetrics 仅定义最小化接口：Observer/Span/Attr，业务代码只依赖接口。
// 默认实现基于 OpenTelemetry；[NewPrometheus] 把 OTel 指标以 Prometheus
// 格式暴露在 /metrics。
//
// # 使用示例
//
//	prom, _ := xmetrics.NewPrometheus()
//	obs, _ := xmetrics.NewOTelObserver(xmetrics.WithMeterProvider(prom.MeterProvider()))
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xquota",
//		Operation: "decide",
//	})
//	defer span.End(xmetrics.Result{Err: err})
//
// # 指标命名
//
//   - xquota.operation.total
//   - xquota.operation.duration
//
// 统一属性：component / operation / status。
package xmetrics
