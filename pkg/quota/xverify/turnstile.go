package xverify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omeyang/xquota/pkg/observability/xlog"
	"github.com/omeyang/xquota/pkg/observability/xtrace"
	"github.com/omeyang/xquota/pkg/quota/xidentity"
	"github.com/omeyang/xquota/pkg/resilience/xbreaker"
	"github.com/omeyang/xquota/pkg/resilience/xretry"
)

// 默认值
const (
	DefaultEndpoint       = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
	DefaultAttemptTimeout = 3 * time.Second
	DefaultReplayTTL      = 5 * time.Minute
	DefaultReplaySize     = 100_000

	// MaxTokenLength Turnstile 令牌的最大长度
	MaxTokenLength = 2048

	// maxResponseBytes siteverify 响应体读取上限
	maxResponseBytes = 64 << 10
)

// Config Turnstile 配置
type Config struct {
	Endpoint string `koanf:"endpoint"`
	Secret   string `koanf:"secret"`

	// AttemptTimeout 单次 HTTP 请求的时限
	AttemptTimeout time.Duration `koanf:"attempt_timeout"`

	// ExpectedAction 非空时要求令牌的 action 与之相同
	ExpectedAction string `koanf:"expected_action"`
	// ExpectedHostnames 非空时要求令牌的 hostname 在列表中
	ExpectedHostnames []string `koanf:"expected_hostnames"`

	ReplayTTL  time.Duration `koanf:"replay_ttl"`
	ReplaySize int           `koanf:"replay_size"`

	Retry   xretry.Config   `koanf:"retry"`
	Breaker xbreaker.Config `koanf:"breaker"`
}

// DefaultConfig 返回默认配置，Secret 必须另行设置
func DefaultConfig() Config {
	return Config{
		Endpoint:       DefaultEndpoint,
		AttemptTimeout: DefaultAttemptTimeout,
		ReplayTTL:      DefaultReplayTTL,
		ReplaySize:     DefaultReplaySize,
		Retry:          xretry.DefaultConfig(),
		Breaker:        xbreaker.DefaultConfig(),
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.Secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: endpoint %q is not an absolute url", ErrInvalidConfig, c.Endpoint)
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("%w: attempt_timeout must be positive", ErrInvalidConfig)
	}
	if c.ReplayTTL <= 0 || c.ReplaySize <= 0 {
		return fmt.Errorf("%w: replay_ttl and replay_size must be positive", ErrInvalidConfig)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Option Turnstile 选项
type Option func(*Turnstile)

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(t *Turnstile) {
		if c != nil {
			t.client = c
		}
	}
}

// WithLogger 设置日志
func WithLogger(l xlog.Logger) Option {
	return func(t *Turnstile) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithRetryOptions 追加重试选项，主要用于测试时去掉退避
func WithRetryOptions(opts ...xretry.Option) Option {
	return func(t *Turnstile) {
		t.retryOpts = append(t.retryOpts, opts...)
	}
}

// Turnstile Cloudflare Turnstile 验证器，可并发使用
type Turnstile struct {
	cfg       Config
	client    *http.Client
	logger    xlog.Logger
	retryOpts []xretry.Option

	retryer *xretry.Retryer
	breaker *xbreaker.Breaker
	replay  *replayGuard
}

// NewTurnstile 创建验证器，不再使用时调用 Close
func NewTurnstile(cfg Config, opts ...Option) (*Turnstile, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Turnstile{
		cfg:    cfg,
		client: &http.Client{},
		logger: xlog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}

	replay, err := newReplayGuard(cfg.ReplaySize, cfg.ReplayTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	t.replay = replay

	retryOpts := append([]xretry.Option{
		xretry.WithOnRetry(func(attempt int, err error) {
			t.logger.Warn(context.Background(), "siteverify retry",
				xlog.Component("xverify"), slog.Int("attempt", attempt), xlog.Err(err))
		}),
	}, t.retryOpts...)
	t.retryer = xretry.New(cfg.Retry, retryOpts...)

	breakerOpts := append(xbreaker.FromConfig(cfg.Breaker),
		// 调用方放弃的请求不计入验证服务的失败
		xbreaker.WithSuccessPolicy(func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		}),
		xbreaker.WithOnStateChange(func(name string, from, to xbreaker.State) {
			t.logger.Warn(context.Background(), "siteverify breaker state changed",
				xlog.Component("xverify"),
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		}),
	)
	t.breaker = xbreaker.NewBreaker("turnstile", breakerOpts...)
	return t, nil
}

// Close 释放重放记录
func (t *Turnstile) Close() error {
	t.replay.close()
	return nil
}

// Breaker 返回熔断器，用于健康检查
func (t *Turnstile) Breaker() *xbreaker.Breaker {
	return t.breaker
}

// siteverifyResponse siteverify 接口的响应
type siteverifyResponse struct {
	Success     bool     `json:"success"`
	ErrorCodes  []string `json:"error-codes"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	Action      string   `json:"action"`
}

// Verify 校验令牌
func (t *Turnstile) Verify(ctx context.Context, token, clientAddress string) (*Result, error) {
	token = strings.TrimSpace(token)
	switch {
	case token == "":
		return reject(CodeMissingInputResponse), nil
	case len(token) > MaxTokenLength:
		return reject(CodeInvalidInputResponse), nil
	}
	if !t.replay.claim(token) {
		return reject(CodeDuplicateToken), nil
	}

	form := url.Values{}
	form.Set("secret", t.cfg.Secret)
	form.Set("response", token)
	form.Set("idempotency_key", uuid.NewString())
	if clientAddress != "" && clientAddress != xidentity.Unknown {
		form.Set("remoteip", clientAddress)
	}

	resp, err := xbreaker.Execute(ctx, t.breaker, func() (*siteverifyResponse, error) {
		return xretry.DoWithResult(ctx, t.retryer, func(ctx context.Context) (*siteverifyResponse, error) {
			return t.post(ctx, form)
		})
	})
	if err != nil {
		// 验证服务没有给出结论，令牌仍可由客户端重新提交
		t.replay.release(token)
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	res := &Result{
		OK:           resp.Success,
		FailureCodes: resp.ErrorCodes,
		Hostname:     resp.Hostname,
		Action:       resp.Action,
	}
	if ts, err := time.Parse(time.RFC3339Nano, resp.ChallengeTS); err == nil {
		res.ChallengeTS = ts
	}
	if res.OK {
		t.checkClaims(res)
	}
	return res, nil
}

// checkClaims 本地校验 action 与 hostname
func (t *Turnstile) checkClaims(res *Result) {
	if t.cfg.ExpectedAction != "" && res.Action != t.cfg.ExpectedAction {
		res.OK = false
		res.FailureCodes = append(res.FailureCodes, CodeActionMismatch)
	}
	if len(t.cfg.ExpectedHostnames) > 0 && !slices.Contains(t.cfg.ExpectedHostnames, res.Hostname) {
		res.OK = false
		res.FailureCodes = append(res.FailureCodes, CodeHostnameMismatch)
	}
}

func (t *Turnstile) post(ctx context.Context, form url.Values) (*siteverifyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, xretry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	xtrace.InjectToRequest(ctx, req)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	var out siteverifyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &out, nil
}
