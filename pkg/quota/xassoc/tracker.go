package xassoc

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xquota/pkg/observability/xlog"
	"github.com/omeyang/xquota/pkg/quota/xidentity"
	"github.com/omeyang/xquota/pkg/quota/xstore"
)

// Counts 两个方向的关联集合大小
type Counts struct {
	// FingerprintPeers 与指纹关联的不同地址数
	FingerprintPeers int64
	// AddressPeers 与地址关联的不同指纹数
	AddressPeers int64
}

// Option Tracker 选项
type Option func(*Tracker)

// WithKeyspace 设置键空间
func WithKeyspace(ks xstore.Keyspace) Option {
	return func(t *Tracker) {
		t.keys = ks
	}
}

// WithClock 设置时钟，滚动窗口模式下用于成员时间戳
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger 设置日志，集合 TTL 刷新失败时记录告警
func WithLogger(l xlog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// Tracker 关联跟踪器，可并发使用
type Tracker struct {
	store  xstore.Store
	window xstore.WindowTracker
	cfg    Config
	keys   xstore.Keyspace
	now    func() time.Time
	logger xlog.Logger
}

// New 创建关联跟踪器
func New(store xstore.Store, cfg Config, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, xstore.ErrNilClient
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Tracker{store: store, cfg: cfg, now: time.Now, logger: xlog.Nop()}
	if cfg.Mode == ModeRolling {
		wt, ok := store.(xstore.WindowTracker)
		if !ok {
			return nil, ErrWindowUnsupported
		}
		t.window = wt
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// Config 返回生效的配置
func (t *Tracker) Config() Config {
	return t.cfg
}

// Record 记录 (fp, addr) 关联并返回两个集合的大小
//
// 两个方向并发执行；每个方向内写入在读取基数之前完成。
func (t *Tracker) Record(ctx context.Context, fp, addr string) (Counts, error) {
	var counts Counts
	g, gctx := errgroup.WithContext(ctx)

	if t.cfg.tracksFingerprint() {
		g.Go(func() error {
			n, err := t.track(gctx, t.keys.FingerprintPeers(fp), addr)
			counts.FingerprintPeers = n
			return err
		})
	}
	if t.cfg.tracksAddress() && addr != xidentity.Unknown {
		g.Go(func() error {
			n, err := t.track(gctx, t.keys.AddressPeers(addr), fp)
			counts.AddressPeers = n
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return Counts{}, err
	}
	return counts, nil
}

// Peek 只读地返回两个集合当前的大小，不写入任何关联
func (t *Tracker) Peek(ctx context.Context, fp, addr string) (Counts, error) {
	var counts Counts
	g, gctx := errgroup.WithContext(ctx)

	if t.cfg.tracksFingerprint() {
		g.Go(func() error {
			n, err := t.count(gctx, t.keys.FingerprintPeers(fp))
			counts.FingerprintPeers = n
			return err
		})
	}
	if t.cfg.tracksAddress() && addr != xidentity.Unknown {
		g.Go(func() error {
			n, err := t.count(gctx, t.keys.AddressPeers(addr))
			counts.AddressPeers = n
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return Counts{}, err
	}
	return counts, nil
}

func (t *Tracker) track(ctx context.Context, key, member string) (int64, error) {
	var added, card int64
	var err error
	if t.window != nil {
		added, card, err = t.window.TrackWindow(ctx, key, member, t.now(), t.cfg.Window)
	} else {
		added, card, err = xstore.TrackMember(ctx, t.store, key, member, t.cfg.Window)
	}

	// 基数已读到，只是 TTL 没有刷新：继续判定，由过期巡检修复。
	if errors.Is(err, xstore.ErrExpireNotSet) {
		t.logger.Warn(ctx, "association ttl not refreshed",
			xlog.Component("xassoc"), xlog.Err(err))
		err = nil
	}
	if err != nil {
		return 0, err
	}
	if !t.cfg.SelfInclusive {
		return card - added, nil
	}
	return card, nil
}

func (t *Tracker) count(ctx context.Context, key string) (int64, error) {
	if t.window != nil {
		return t.window.CountWindow(ctx, key, t.now(), t.cfg.Window)
	}
	return t.store.SCard(ctx, key)
}
