package xguard

import (
	"context"
	"net/http"
	"strings"

	"github.com/omeyang/xquota/pkg/context/xctx"
	"github.com/omeyang/xquota/pkg/quota/xidentity"
	"github.com/omeyang/xquota/pkg/quota/xquota"
)

// HeaderRequestID request ID 头
const HeaderRequestID = "X-Request-ID"

// maxRequestIDLength 客户端提供的 request ID 的长度上限，超过则重新生成
const maxRequestIDLength = 128

type decisionKey struct{}

func withDecision(ctx context.Context, d *xquota.Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

// DecisionFromContext 读取 Protect 放行时的判定
func DecisionFromContext(ctx context.Context) (*xquota.Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(*xquota.Decision)
	return d, ok && d != nil
}

// RequestID 沿用或生成 request ID 并回写响应头，同时把客户端地址写入 context
//
// resolver 为 nil 时不解析地址。
func RequestID(resolver *xidentity.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
			if id == "" || len(id) > maxRequestIDLength || !printable(id) {
				id = xctx.GenerateRequestID()
			}
			ctx := r.Context()
			if c, err := xctx.WithRequestID(ctx, id); err == nil {
				ctx = c
			}
			if resolver != nil {
				if c, err := xctx.WithClientAddress(ctx, resolver.Resolve(r)); err == nil {
					ctx = c
				}
			}
			w.Header().Set(HeaderRequestID, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
