package xverify

import (
	"context"
	"time"
)

//go:generate mockgen -source=verifier.go -destination=xverifymock/verifier.go -package=xverifymock

// 失败码。除 Turnstile 自身返回的错误码外，本地检查使用以下错误码。
const (
	CodeMissingInputResponse = "missing-input-response"
	CodeInvalidInputResponse = "invalid-input-response"
	CodeDuplicateToken       = "duplicate-token"
	CodeActionMismatch       = "action-mismatch"
	CodeHostnameMismatch     = "hostname-mismatch"
)

// Verifier 人机验证
type Verifier interface {
	// Verify 校验令牌。令牌无效返回 OK=false 的结果；验证服务故障返回错误。
	Verify(ctx context.Context, token, clientAddress string) (*Result, error)
}

// Result 验证结果
type Result struct {
	OK           bool
	FailureCodes []string
	Hostname     string
	Action       string
	ChallengeTS  time.Time
}

func reject(codes ...string) *Result {
	return &Result{FailureCodes: codes}
}

// Disabled 不做验证，总是通过
type Disabled struct{}

// Verify 总是返回 OK
func (Disabled) Verify(context.Context, string, string) (*Result, error) {
	return &Result{OK: true}, nil
}

var (
	_ Verifier = Disabled{}
	_ Verifier = (*Turnstile)(nil)
)
