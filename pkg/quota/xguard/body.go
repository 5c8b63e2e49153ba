package xguard

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/omeyang/xquota/pkg/quota/xcollision"
	"github.com/omeyang/xquota/pkg/quota/xquota"
	"github.com/omeyang/xquota/pkg/quota/xstore"
)

// 响应头
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

type signalBody struct {
	Detected  bool  `json:"detected"`
	Count     int64 `json:"count"`
	Threshold int64 `json:"threshold"`
}

type collisionBody struct {
	FingerprintCollision signalBody `json:"fingerprintCollision"`
	AddressCollision     signalBody `json:"addressCollision"`
}

// DecisionBody 判定响应体
type DecisionBody struct {
	Allowed           bool          `json:"allowed"`
	Identifier        string        `json:"identifier"`
	UsedToday         int64         `json:"usedToday"`
	Remaining         int64         `json:"remaining"`
	DailyLimit        int64         `json:"dailyLimit"`
	ResetAt           string        `json:"resetAt"`
	Strategy          string        `json:"strategy"`
	Enforcement       string        `json:"enforcement"`
	Reason            string        `json:"reason,omitempty"`
	RetryAfterSeconds int64         `json:"retryAfterSeconds,omitempty"`
	Degraded          bool          `json:"degraded,omitempty"`
	Collision         collisionBody `json:"collision"`
}

// ErrorBody 错误响应体，只包含稳定的错误码与说明
type ErrorBody struct {
	Error        string   `json:"error"`
	Message      string   `json:"message"`
	FailureCodes []string `json:"failureCodes,omitempty"`
}

func signal(s xcollision.Signal) signalBody {
	return signalBody{Detected: s.Detected, Count: s.Count, Threshold: s.Threshold}
}

// NewDecisionBody 由判定结果生成响应体
func NewDecisionBody(d *xquota.Decision, now time.Time) DecisionBody {
	b := DecisionBody{
		Allowed:     d.Allowed,
		Identifier:  "fp:" + xstore.Token(d.Fingerprint),
		UsedToday:   d.UsedToday,
		Remaining:   d.Remaining,
		DailyLimit:  d.Limit,
		ResetAt:     d.ResetAt.Format(time.RFC3339),
		Strategy:    string(d.Strategy),
		Enforcement: string(d.Enforcement),
		Degraded:    d.Degraded,
		Collision: collisionBody{
			FingerprintCollision: signal(d.Collision.Fingerprint),
			AddressCollision:     signal(d.Collision.Address),
		},
	}
	if d.Reason != xquota.ReasonNone {
		b.Reason = string(d.Reason)
	}
	if !d.Allowed {
		b.RetryAfterSeconds = int64(d.RetryAfter(now) / time.Second)
	}
	return b
}

// setHeaders 写入配额头
func setHeaders(w http.ResponseWriter, d *xquota.Decision, now time.Time) {
	h := w.Header()
	h.Set(HeaderLimit, strconv.FormatInt(d.Limit, 10))
	h.Set(HeaderRemaining, strconv.FormatInt(d.Remaining, 10))
	h.Set(HeaderReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
	if !d.Allowed {
		h.Set(HeaderRetryAfter, strconv.FormatInt(int64(d.RetryAfter(now)/time.Second), 10))
	}
}

func statusOf(kind xquota.Kind) int {
	switch kind {
	case xquota.KindInput:
		return http.StatusBadRequest
	case xquota.KindVerification:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	// 写入失败说明客户端已断开，无法补救
	_ = json.NewEncoder(w).Encode(v)
}
