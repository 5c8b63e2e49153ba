package xmetrics

import "errors"

var (
	// ErrCreateInstrument 表示创建 OTel 指标失败。
	ErrCreateInstrument = errors.New("xmetrics: create instrument failed")
	// ErrCreateExporter 表示创建 Prometheus exporter 失败。
	ErrCreateExporter = errors.New("xmetrics: create exporter failed")
)
