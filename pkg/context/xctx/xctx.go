package xctx

import "errors"

// 设计决策: contextKey 使用 string 类型，调试时可读；包私有类型保证不与其他包冲突。
type contextKey string

const (
	keyRequestID     contextKey = "request_id"
	keyTraceID       contextKey = "trace_id"
	keySpanID        contextKey = "span_id"
	keyClientAddress contextKey = "client_address"
	keyFingerprint   contextKey = "fingerprint"
)

// 日志属性 Key 常量
const (
	KeyRequestID     = "request_id"
	KeyTraceID       = "trace_id"
	KeySpanID        = "span_id"
	KeyClientAddress = "client_address"
	KeyFingerprint   = "fingerprint"
)

var (
	// ErrNilContext 表示传入的 context 为 nil。
	ErrNilContext = errors.New("xctx: nil context")

	// ErrMissingRequestID request_id 缺失
	ErrMissingRequestID = errors.New("xctx: missing request_id")
)
