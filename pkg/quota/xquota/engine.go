package xquota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xquota/pkg/observability/xlog"
	"github.com/omeyang/xquota/pkg/observability/xmetrics"
	"github.com/omeyang/xquota/pkg/quota/xassoc"
	"github.com/omeyang/xquota/pkg/quota/xcollision"
	"github.com/omeyang/xquota/pkg/quota/xidentity"
	"github.com/omeyang/xquota/pkg/quota/xstore"
)

const component = "xquota"

// minCounterTTL 计数器过期时间下限，避免零点附近算出非正数
const minCounterTTL = time.Second

// Identity 待判定的身份
type Identity struct {
	// Fingerprint 客户端提交的设备指纹，未经校验
	Fingerprint string
	// Address 由请求头解析出的地址，空值视为 "unknown"
	Address string
}

// Option 引擎选项
type Option func(*Engine)

// WithPolicy 设置初始策略，默认 [DefaultPolicy]
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		e.initial = p
	}
}

// WithLocation 设置计数日所在时区，默认 time.Local
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithClock 设置时钟，用于测试
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger 设置日志
func WithLogger(l xlog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver 设置观测器，为 Decide 与 Query 创建跨度
func WithObserver(o xmetrics.Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithMeterProvider 设置指标提供者，不设置时不记录领域指标
func WithMeterProvider(p metric.MeterProvider) Option {
	return func(e *Engine) {
		e.meterProvider = p
	}
}

// WithKeyspace 设置存储键空间
func WithKeyspace(ks xstore.Keyspace) Option {
	return func(e *Engine) {
		e.keys = ks
	}
}

// state 一份策略及由它派生的组件，整体原子替换
type state struct {
	policy   Policy
	detector xcollision.Detector
	tracker  *xassoc.Tracker
}

// Engine 配额判定引擎，可并发使用
//
// 引擎本身不缓存任何计数，全部状态都在存储中。
type Engine struct {
	store         xstore.Store
	keys          xstore.Keyspace
	loc           *time.Location
	now           func() time.Time
	logger        xlog.Logger
	observer      xmetrics.Observer
	meterProvider metric.MeterProvider
	metrics       *metrics

	initial Policy
	state   atomic.Pointer[state]
}

// New 创建判定引擎
func New(store xstore.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, xstore.ErrNilClient
	}
	e := &Engine{
		store:    store,
		loc:      time.Local,
		now:      time.Now,
		logger:   xlog.Nop(),
		observer: xmetrics.NoopObserver{},
		initial:  DefaultPolicy(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	m, err := newMetrics(e.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", xmetrics.ErrCreateInstrument, err)
	}
	e.metrics = m

	if err := e.UpdatePolicy(e.initial); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdatePolicy 原子替换策略，无效策略被拒绝且不影响当前策略
//
// 正在进行的判定继续使用旧策略。
func (e *Engine) UpdatePolicy(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	tracker, err := xassoc.New(e.store, p.assoc(),
		xassoc.WithKeyspace(e.keys),
		xassoc.WithClock(e.now),
		xassoc.WithLogger(e.logger),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}
	e.state.Store(&state{policy: p, detector: p.detector(), tracker: tracker})
	return nil
}

// Policy 返回当前策略
func (e *Engine) Policy() Policy {
	return e.state.Load().policy
}

// Location 返回计数日所在时区
func (e *Engine) Location() *time.Location {
	return e.loc
}

// =============================================================================
// 判定
// =============================================================================

// Decide 判定一次请求并在放行时提交计数
//
// 返回的错误总是 *[Error]。fail-open 策略下存储故障返回 Degraded 的放行结果。
func (e *Engine) Decide(ctx context.Context, id Identity) (dec *Decision, err error) {
	ctx, span := xmetrics.Start(ctx, e.observer, xmetrics.SpanOptions{
		Component: component,
		Operation: "decide",
		Kind:      xmetrics.KindInternal,
	})
	start := time.Now()
	defer func() {
		span.End(spanResult(dec, err))
		e.metrics.recordDuration(ctx, "decide", time.Since(start))
	}()

	fp, addr, err := normalize(id)
	if err != nil {
		return nil, err
	}

	st := e.state.Load()
	now := e.now().In(e.loc)
	sctx, cancel := withStoreTimeout(ctx, st.policy.StoreTimeout)
	defer cancel()

	dec, err = e.decide(sctx, st, fp, addr, now)
	if err != nil {
		return e.storeFailure(ctx, st, fp, addr, now, "decide", err)
	}

	e.metrics.recordCollision(ctx, dec.Collision)
	e.metrics.recordDecision(ctx, dec)
	e.logger.Debug(ctx, "quota decided",
		xlog.Component(component),
		slog.Bool("allowed", dec.Allowed),
		slog.String("reason", string(dec.Reason)),
		slog.String("enforcement", string(dec.Enforcement)),
		slog.Int64("used", dec.UsedToday),
	)
	return dec, nil
}

func (e *Engine) decide(ctx context.Context, st *state, fp, addr string, now time.Time) (*Decision, error) {
	keys := e.usageKeys(fp, addr, now)
	counts, usage, err := e.gather(ctx, st, keys, fp, addr, true)
	if err != nil {
		return nil, err
	}

	coll := st.detector.Evaluate(counts)
	v := evaluate(st.policy, coll, usage)
	dec := e.decision(st, v, coll, usage, fp, addr, now)
	if !v.allowed {
		return dec, nil
	}

	// 原子占用：超额时存储端回滚，不留下任何计数变更
	limit := st.policy.DailyLimit
	used, ok, err := xstore.Reserve(ctx, e.store, keys.of(v.enforcement), limit, e.ttlUntil(dec.ResetAt))
	if err = e.tolerate(ctx, err); err != nil {
		return nil, err
	}
	dec.UsedToday = used
	dec.Usage.set(v.enforcement, used)
	if !ok {
		dec.Allowed = false
		dec.Reason = ReasonDailyLimit
		return dec, nil
	}

	// 设计决策: 执行计数器已占用，本次请求按放行处理。辅助计数器失败时
	// 返回错误会让客户端收到 500 却仍被扣减配额。
	if err := e.commit(ctx, keys, v.enforcement, dec); err != nil {
		e.metrics.recordStoreError(ctx, err)
		e.logger.Warn(ctx, "auxiliary counter not committed, reservation kept",
			xlog.Component(component), slog.String("enforcement", string(v.enforcement)), xlog.Err(err))
	}
	dec.Allowed = true
	dec.Remaining = remaining(limit, used)
	return dec, nil
}

// commit 并发递增执行计数器之外的两个计数器，等待全部完成
func (e *Engine) commit(ctx context.Context, keys usageKeys, enf Enforcement, dec *Decision) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range keys.others(enf, &dec.Usage) {
		g.Go(func() error {
			v, err := xstore.Increment(gctx, e.store, c.key, e.ttlUntil(dec.ResetAt))
			if err = e.tolerate(gctx, err); err != nil {
				return err
			}
			*c.dst = v
			return nil
		})
	}
	return g.Wait()
}

// Query 只读地报告当前用量与下一次请求的判定
//
// 不写入任何计数器或关联集合，连续调用的结果相同。冲突计数基于已有的关联，
// 不包含本次身份组合。
func (e *Engine) Query(ctx context.Context, id Identity) (dec *Decision, err error) {
	ctx, span := xmetrics.Start(ctx, e.observer, xmetrics.SpanOptions{
		Component: component,
		Operation: "query",
		Kind:      xmetrics.KindInternal,
	})
	start := time.Now()
	defer func() {
		span.End(spanResult(dec, err))
		e.metrics.recordDuration(ctx, "query", time.Since(start))
	}()

	fp, addr, err := normalize(id)
	if err != nil {
		return nil, err
	}

	st := e.state.Load()
	now := e.now().In(e.loc)
	sctx, cancel := withStoreTimeout(ctx, st.policy.StoreTimeout)
	defer cancel()

	counts, usage, err := e.gather(sctx, st, e.usageKeys(fp, addr, now), fp, addr, false)
	if err != nil {
		return e.storeFailure(ctx, st, fp, addr, now, "query", err)
	}
	coll := st.detector.Evaluate(counts)
	v := evaluate(st.policy, coll, usage)
	dec = e.decision(st, v, coll, usage, fp, addr, now)
	if v.allowed {
		dec.Remaining = remaining(st.policy.DailyLimit, v.used)
	}
	return dec, nil
}

// gather 并发读取关联集合大小与三个计数器
//
// write 为 true 时先写入关联再读取基数。
func (e *Engine) gather(ctx context.Context, st *state, keys usageKeys, fp, addr string, write bool) (xassoc.Counts, Usage, error) {
	var (
		counts xassoc.Counts
		usage  Usage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if write {
			counts, err = st.tracker.Record(gctx, fp, addr)
		} else {
			counts, err = st.tracker.Peek(gctx, fp, addr)
		}
		return err
	})
	g.Go(func() error { return e.get(gctx, keys.fingerprint, &usage.Fingerprint) })
	g.Go(func() error { return e.get(gctx, keys.address, &usage.Address) })
	g.Go(func() error { return e.get(gctx, keys.pair, &usage.Pair) })

	if err := g.Wait(); err != nil {
		return xassoc.Counts{}, Usage{}, err
	}
	return counts, usage, nil
}

func (e *Engine) get(ctx context.Context, key string, dst *int64) error {
	v, _, err := e.store.Get(ctx, key)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func (e *Engine) decision(st *state, v verdict, coll xcollision.Result, usage Usage, fp, addr string, now time.Time) *Decision {
	return &Decision{
		Allowed:     v.allowed,
		Reason:      v.reason,
		Enforcement: v.enforcement,
		Strategy:    st.policy.Strategy,
		Limit:       st.policy.DailyLimit,
		UsedToday:   v.used,
		ResetAt:     nextMidnight(now),
		Collision:   coll,
		Usage:       usage,
		Fingerprint: fp,
		Address:     addr,
	}
}

// tolerate 过期时间未设置不影响判定，记录后继续
func (e *Engine) tolerate(ctx context.Context, err error) error {
	if errors.Is(err, xstore.ErrExpireNotSet) {
		e.logger.Warn(ctx, "counter ttl not refreshed",
			xlog.Component(component), xlog.Err(err))
		return nil
	}
	return err
}

// storeFailure 按故障策略处理存储错误
func (e *Engine) storeFailure(ctx context.Context, st *state, fp, addr string, now time.Time, op string, cause error) (*Decision, error) {
	e.metrics.recordStoreError(ctx, cause)

	// 调用方已放弃请求，与存储健康无关
	if ctx.Err() != nil {
		return nil, StoreError(cause)
	}
	if st.policy.FailurePolicy != FailOpen {
		e.logger.Error(ctx, "quota store failure",
			xlog.Component(component), xlog.Operation(op), xlog.Err(cause))
		return nil, StoreError(cause)
	}

	e.metrics.recordFailOpen(ctx)
	e.logger.Warn(ctx, "quota store failure, request allowed by fail-open policy",
		xlog.Audit(),
		xlog.Component(component),
		xlog.Operation(op),
		slog.String("fingerprint", xstore.Token(fp)),
		slog.String("address", addr),
		xlog.Err(cause),
	)
	limit := st.policy.DailyLimit
	return &Decision{
		Allowed:     true,
		Reason:      ReasonNone,
		Enforcement: EnforcementFingerprint,
		Strategy:    st.policy.Strategy,
		Limit:       limit,
		Remaining:   limit,
		ResetAt:     nextMidnight(now),
		Fingerprint: fp,
		Address:     addr,
		Degraded:    true,
	}, nil
}

// ttlUntil 每个计数器单独计算到 resetAt 的剩余时间
func (e *Engine) ttlUntil(resetAt time.Time) time.Duration {
	ttl := resetAt.Sub(e.now())
	if ttl < minCounterTTL {
		return minCounterTTL
	}
	return ttl
}

// =============================================================================
// 辅助
// =============================================================================

type usageKeys struct {
	fingerprint string
	address     string
	pair        string
}

func (e *Engine) usageKeys(fp, addr string, now time.Time) usageKeys {
	day := xstore.Day(now)
	return usageKeys{
		fingerprint: e.keys.Usage(xstore.DimFingerprint, day, fp, addr),
		address:     e.keys.Usage(xstore.DimAddress, day, fp, addr),
		pair:        e.keys.Usage(xstore.DimPair, day, fp, addr),
	}
}

func (k usageKeys) of(enf Enforcement) string {
	if enf == EnforcementCombined {
		return k.pair
	}
	return k.fingerprint
}

type counterRef struct {
	key string
	dst *int64
}

func (k usageKeys) others(enf Enforcement, u *Usage) []counterRef {
	if enf == EnforcementCombined {
		return []counterRef{{k.fingerprint, &u.Fingerprint}, {k.address, &u.Address}}
	}
	return []counterRef{{k.address, &u.Address}, {k.pair, &u.Pair}}
}

func (u *Usage) set(enf Enforcement, used int64) {
	if enf == EnforcementCombined {
		u.Pair = used
		return
	}
	u.Fingerprint = used
}

func normalize(id Identity) (fp, addr string, err error) {
	f, err := xidentity.ValidateFingerprintString(id.Fingerprint)
	if err != nil {
		return "", "", InputError(err)
	}
	addr = strings.TrimSpace(id.Address)
	if addr == "" {
		addr = xidentity.Unknown
	}
	return f.String(), addr, nil
}

// nextMidnight 返回 now 所在时区的下一个零点
func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

func withStoreTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func spanResult(dec *Decision, err error) xmetrics.Result {
	if err != nil || dec == nil {
		return xmetrics.Result{Err: err}
	}
	status := xmetrics.StatusOK
	if !dec.Allowed {
		status = xmetrics.StatusDenied
	}
	return xmetrics.Result{Status: status, Attrs: []xmetrics.Attr{
		xmetrics.Bool("allowed", dec.Allowed),
		xmetrics.String("reason", string(dec.Reason)),
		xmetrics.Bool("degraded", dec.Degraded),
	}}
}
