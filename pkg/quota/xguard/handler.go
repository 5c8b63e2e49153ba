package xguard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/omeyang/xquota/pkg/context/xctx"
	"github.com/omeyang/xquota/pkg/observability/xlog"
	"github.com/omeyang/xquota/pkg/observability/xsampling"
	"github.com/omeyang/xquota/pkg/quota/xidentity"
	"github.com/omeyang/xquota/pkg/quota/xquota"
	"github.com/omeyang/xquota/pkg/quota/xstore"
	"github.com/omeyang/xquota/pkg/quota/xverify"
)

// Path 配额接口路径
const Path = "/v1/quota"

// ErrNilDependency 缺少必需的依赖
var ErrNilDependency = errors.New("xguard: engine and resolver are required")

// Engine 配额引擎，*xquota.Engine 实现了该接口
type Engine interface {
	Decide(ctx context.Context, id xquota.Identity) (*xquota.Decision, error)
	Query(ctx context.Context, id xquota.Identity) (*xquota.Decision, error)
}

// Option Handler 选项
type Option func(*Handler)

// WithVerifier 设置人机验证，默认 [xverify.Disabled]
func WithVerifier(v xverify.Verifier) Option {
	return func(h *Handler) {
		if v != nil {
			h.verifier = v
		}
	}
}

// WithVerifierFailurePolicy 验证服务故障时的处理方式，默认拒绝
func WithVerifierFailurePolicy(p xquota.FailurePolicy) Option {
	return func(h *Handler) {
		h.verifyFailure = p
	}
}

// WithLogger 设置日志
func WithLogger(l xlog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithBlockedLogSampler 设置拦截日志的采样策略，默认全部记录
//
// 被拦截的客户端通常会持续重试，按指纹一致性采样可以压低日志量。
func WithBlockedLogSampler(s xsampling.Sampler) Option {
	return func(h *Handler) {
		if s != nil {
			h.blockedLog = s
		}
	}
}

// WithClock 设置时钟，用于计算 Retry-After
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// Handler 配额 HTTP 处理器
type Handler struct {
	engine        Engine
	resolver      *xidentity.Resolver
	verifier      xverify.Verifier
	verifyFailure xquota.FailurePolicy
	logger        xlog.Logger
	blockedLog    xsampling.Sampler
	now           func() time.Time
}

// New 创建处理器
func New(engine Engine, resolver *xidentity.Resolver, opts ...Option) (*Handler, error) {
	if engine == nil || resolver == nil {
		return nil, ErrNilDependency
	}
	h := &Handler{
		engine:        engine,
		resolver:      resolver,
		verifier:      xverify.Disabled{},
		verifyFailure: xquota.FailClose,
		logger:        xlog.Nop(),
		blockedLog:    xsampling.Always(),
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Routes 挂载配额接口
func (h *Handler) Routes(r chi.Router) {
	r.Post(Path, h.Decide)
	r.Get(Path, h.Query)
}

// Decide POST /v1/quota
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	dec, ok := h.admit(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, NewDecisionBody(dec, h.now()))
}

// Query GET /v1/quota，只读
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	req, err := h.resolver.DecodeQuery(r)
	if err != nil {
		h.fail(w, r, xquota.InputError(err))
		return
	}
	ctx := withIdentity(r.Context(), req)

	dec, err := h.engine.Query(ctx, xquota.Identity{Fingerprint: req.Fingerprint.String(), Address: req.Address})
	if err != nil {
		h.fail(w, r.WithContext(ctx), err)
		return
	}
	now := h.now()
	setHeaders(w, dec, now)
	// 查询总是 200，Allowed 表示下一次请求是否会放行
	w.Header().Del(HeaderRetryAfter)
	writeJSON(w, http.StatusOK, NewDecisionBody(dec, now))
}

// Protect 在 next 之前执行完整的判定流程，放行时把判定写入 context
func (h *Handler) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dec, ok := h.admit(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(withDecision(r.Context(), dec)))
	})
}

// admit 解析、验证、判定。返回 false 时响应已写出。
func (h *Handler) admit(w http.ResponseWriter, r *http.Request) (*xquota.Decision, bool) {
	req, err := h.resolver.DecodeRequest(r)
	if err != nil {
		h.fail(w, r, xquota.InputError(err))
		return nil, false
	}
	ctx := withIdentity(r.Context(), req)
	r = r.WithContext(ctx)

	// 验证在判定之前：验证失败的请求不消耗配额
	if err := h.verify(ctx, req); err != nil {
		h.fail(w, r, err)
		return nil, false
	}

	dec, err := h.engine.Decide(ctx, xquota.Identity{Fingerprint: req.Fingerprint.String(), Address: req.Address})
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}

	now := h.now()
	setHeaders(w, dec, now)
	if !dec.Allowed {
		if h.blockedLog.ShouldSample(ctx) {
			h.logger.Info(ctx, "quota blocked",
				xlog.Component("xguard"),
				slog.String("reason", string(dec.Reason)),
				slog.Int64("used", dec.UsedToday),
			)
		}
		writeJSON(w, http.StatusTooManyRequests, NewDecisionBody(dec, now))
		return nil, false
	}
	return dec, true
}

func (h *Handler) verify(ctx context.Context, req xidentity.Request) error {
	res, err := h.verifier.Verify(ctx, req.VerificationToken, req.Address)
	if err != nil {
		if h.verifyFailure == xquota.FailOpen {
			h.logger.Warn(ctx, "verification provider failure, request allowed by fail-open policy",
				xlog.Audit(), xlog.Component("xguard"), xlog.Err(err))
			return nil
		}
		return xquota.VerifierUnavailableError(err)
	}
	if !res.OK {
		return xquota.VerificationError(res.FailureCodes)
	}
	return nil
}

// fail 写出错误响应，原始原因只进日志
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var qe *xquota.Error
	if !errors.As(err, &qe) {
		qe = xquota.StoreError(err)
	}
	status := statusOf(qe.Kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "quota request failed",
			xlog.Component("xguard"), slog.String("code", qe.Code), xlog.Err(err))
	} else {
		h.logger.Debug(r.Context(), "quota request rejected",
			xlog.Component("xguard"), slog.String("code", qe.Code), xlog.Err(err))
	}
	writeJSON(w, status, ErrorBody{Error: qe.Code, Message: qe.Message, FailureCodes: qe.FailureCodes})
}

// withIdentity 把地址与指纹标识写入 context，供日志使用
func withIdentity(ctx context.Context, req xidentity.Request) context.Context {
	if c, err := xctx.WithClientAddress(ctx, req.Address); err == nil {
		ctx = c
	}
	if c, err := xctx.WithFingerprint(ctx, xstore.Token(req.Fingerprint.String())); err == nil {
		ctx = c
	}
	return ctx
}
