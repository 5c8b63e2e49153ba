package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"

	"github.com/omeyang/xquota/pkg/config/xconf"
	"github.com/omeyang/xquota/pkg/context/xctx"
	"github.com/omeyang/xquota/pkg/distributed/xcron"
	"github.com/omeyang/xquota/pkg/lifecycle/xrun"
	"github.com/omeyang/xquota/pkg/observability/xlog"
	"github.com/omeyang/xquota/pkg/observability/xmetrics"
	"github.com/omeyang/xquota/pkg/observability/xsampling"
	"github.com/omeyang/xquota/pkg/observability/xtrace"
	"github.com/omeyang/xquota/pkg/quota/xguard"
	"github.com/omeyang/xquota/pkg/quota/xidentity"
	"github.com/omeyang/xquota/pkg/quota/xquota"
	"github.com/omeyang/xquota/pkg/quota/xstore"
	"github.com/omeyang/xquota/pkg/quota/xsweep"
	"github.com/omeyang/xquota/pkg/quota/xverify"
	"github.com/omeyang/xquota/pkg/resilience/xlimit"
	"github.com/omeyang/xquota/pkg/resilience/xretry"
)

// sweepJobName 巡检任务名，同时作为分布式锁的键
const sweepJobName = "xquota-sweep"

// service 一次 serve 运行所需的全部组件
//
// 由 newService 组装，close 按创建的逆序释放。
type service struct {
	cfg    *Config
	logger xlog.LoggerWithLevel

	client   redis.UniversalClient
	store    xstore.Store
	memory   *xstore.Memory
	engine   *xquota.Engine
	resolver *xidentity.Resolver
	verifier xverify.Verifier
	burst    *xlimit.Limiter
	handler  *xguard.Handler
	sweeper  *xsweep.Sweeper

	metrics http.Handler
	closers []func() error
}

// newService 按配置组装存储、引擎与 HTTP 处理器
//
// mp 为 nil 时不采集指标，metricsHandler 为 nil 时不挂载 /metrics。
func newService(ctx context.Context, cfg *Config, logger xlog.LoggerWithLevel, mp metric.MeterProvider, metricsHandler http.Handler) (_ *service, err error) {
	s := &service{cfg: cfg, logger: logger, metrics: metricsHandler}
	defer func() {
		if err != nil {
			_ = s.close()
		}
	}()

	loc := cfg.location()
	keys := xstore.NewKeyspace(cfg.Store.Prefix)

	if err := s.openStore(ctx); err != nil {
		return nil, err
	}

	engineOpts := []xquota.Option{
		xquota.WithPolicy(cfg.Quota),
		xquota.WithLocation(loc),
		xquota.WithKeyspace(keys),
		xquota.WithLogger(logger),
	}
	if mp != nil {
		observer, err := xmetrics.NewOTelObserver(xmetrics.WithMeterProvider(mp))
		if err != nil {
			return nil, err
		}
		engineOpts = append(engineOpts, xquota.WithObserver(observer), xquota.WithMeterProvider(mp))
	}
	if s.engine, err = xquota.New(s.store, engineOpts...); err != nil {
		return nil, err
	}

	if s.resolver, err = xidentity.New(cfg.Identity); err != nil {
		return nil, err
	}

	s.verifier = xverify.Disabled{}
	if cfg.Verify.Enabled {
		ts, err := xverify.NewTurnstile(cfg.Verify.Turnstile, xverify.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		s.verifier = ts
		s.closers = append(s.closers, ts.Close)
	}

	blockedLog, err := xsampling.NewKeyBasedSampler(cfg.Log.BlockedSampleRate, xctx.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("log.blocked_sample_rate: %w", err)
	}
	if s.handler, err = xguard.New(s.engine, s.resolver,
		xguard.WithVerifier(s.verifier),
		xguard.WithVerifierFailurePolicy(cfg.Verify.FailurePolicy),
		xguard.WithLogger(logger),
		xguard.WithBlockedLogSampler(blockedLog),
	); err != nil {
		return nil, err
	}

	limitOpts := []xlimit.Option{xlimit.WithLogger(logger), xlimit.WithMeterProvider(mp)}
	if s.client != nil {
		s.burst, err = xlimit.New(s.client, cfg.Burst, limitOpts...)
	} else {
		s.burst, err = xlimit.NewLocal(cfg.Burst, limitOpts...)
	}
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() error { s.burst.Close(); return nil })

	if s.client != nil {
		if s.sweeper, err = xsweep.New(s.client,
			xsweep.WithKeyspace(keys),
			xsweep.WithLocation(loc),
			xsweep.WithWindow(func() time.Duration { return s.engine.Policy().Window }),
			xsweep.WithBatchSize(cfg.Sweep.BatchSize),
			xsweep.WithLogger(logger),
		); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// openStore 连接 Redis（带重试）或创建进程内存储
func (s *service) openStore(ctx context.Context) error {
	cfg := s.cfg.Store
	if cfg.Driver == driverMemory {
		s.memory = xstore.NewMemory()
		s.store = s.memory
		s.closers = append(s.closers, s.memory.Close)
		return nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Redis.Addrs,
		Username:     cfg.Redis.Username,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	s.closers = append(s.closers, client.Close)

	retryer := xretry.New(cfg.Connect, xretry.WithOnRetry(func(attempt int, err error) {
		s.logger.Warn(ctx, "redis not ready",
			xlog.Component("xquotad"), slog.Int("attempt", attempt), xlog.Err(err))
	}))
	store, err := xretry.DoWithResult(ctx, retryer, func(ctx context.Context) (*xstore.Redis, error) {
		return xstore.NewRedis(ctx, client)
	})
	if err != nil {
		return fmt.Errorf("connect redis %v: %w", cfg.Redis.Addrs, err)
	}
	if err := xstore.WarmupScripts(ctx, client); err != nil {
		s.logger.Warn(ctx, "preload scripts failed", xlog.Component("xquotad"), xlog.Err(err))
	}
	s.client = client
	s.store = store
	return nil
}

// close 逆序释放资源，汇总错误
func (s *service) close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// router 组装 HTTP 路由
//
// RequestID 必须在限流之前：突发限流按它写入 context 的客户端地址计数。
func (s *service) router() http.Handler {
	r := chi.NewRouter()
	r.Use(xtrace.HTTPMiddleware())
	r.Use(xguard.RequestID(s.resolver))

	r.Get("/healthz", s.healthz)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(xlimit.HTTPMiddleware(s.burst))
		s.handler.Routes(r)
	})
	return r
}

func (s *service) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn(ctx, "health check failed", xlog.Component("xquotad"), xlog.Err(err))
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// components 返回 serve 期间并发运行的全部组件
//
// src 为 nil 时不监视配置文件。
func (s *service) components(src xconf.Config) ([]xrun.Component, error) {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.router(),
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
	}
	comps := []xrun.Component{
		xrun.Named("http", xrun.HTTPServer(srv, s.cfg.Server.ShutdownTimeout)),
	}

	if s.memory != nil {
		comps = append(comps, xrun.Named("purge", xrun.Ticker(s.cfg.Store.PurgeInterval, false, func(ctx context.Context) error {
			if n := s.memory.Purge(); n > 0 {
				s.logger.Debug(ctx, "purged expired entries", xlog.Component("xquotad"), slog.Int("count", n))
			}
			return nil
		})))
	}

	if s.sweeper != nil && s.cfg.Sweep.Enabled {
		sched, err := s.scheduler()
		if err != nil {
			return nil, err
		}
		comps = append(comps, xrun.Named("cron", sched.Run))
	}

	if src != nil {
		watcher, err := xconf.Watch(src, s.reload, xconf.WithDebounce(500*time.Millisecond))
		if err != nil {
			return nil, err
		}
		comps = append(comps, xrun.Named("config-watch", watcher.Run))
	}
	return comps, nil
}

func (s *service) scheduler() (*xcron.Scheduler, error) {
	sched := xcron.New(
		xcron.WithLocker(xcron.NewRedisLocker(s.client)),
		xcron.WithLogger(s.logger),
		xcron.WithLocation(s.cfg.location()),
	)
	_, err := sched.AddFunc(s.cfg.Sweep.Schedule, s.sweeper.Job,
		xcron.WithName(sweepJobName),
		xcron.WithLockTTL(s.cfg.Sweep.LockTTL),
		xcron.WithTimeout(s.cfg.Sweep.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	return sched, nil
}

// reload 配置文件变更回调
//
// 只有 quota 与 log.level 两段支持热更新，其余配置需要重启。
// 非法的新策略被记录后忽略，引擎继续使用旧策略。
func (s *service) reload(src xconf.Config, err error) {
	ctx := context.Background()
	if err != nil {
		s.logger.Warn(ctx, "config reload failed", xlog.Component("xquotad"), xlog.Err(err))
		return
	}

	policy := xquota.DefaultPolicy()
	if err := xconf.Load(src, "quota", &policy); err != nil {
		s.logger.Warn(ctx, "ignore invalid quota policy", xlog.Component("xquotad"), xlog.Err(err))
	} else if err := s.engine.UpdatePolicy(policy); err != nil {
		s.logger.Warn(ctx, "ignore invalid quota policy", xlog.Component("xquotad"), xlog.Err(err))
	} else {
		s.logger.Info(ctx, "quota policy reloaded", xlog.Component("xquotad"),
			slog.String("strategy", string(policy.Strategy)), slog.Int64("daily_limit", policy.DailyLimit))
	}

	logCfg := LogConfig{Level: s.cfg.Log.Level}
	if err := src.Unmarshal("log", &logCfg); err != nil {
		return
	}
	if level, err := xlog.ParseLevel(logCfg.Level); err == nil && level != s.logger.GetLevel() {
		s.logger.SetLevel(level)
		s.logger.Info(ctx, "log level changed", xlog.Component("xquotad"), slog.String("level", level.String()))
	}
}
