package xsweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xquota/pkg/observability/xlog"
	"github.com/omeyang/xquota/pkg/quota/xstore"
)

// DefaultBatchSize 每次 SCAN 的 COUNT 提示
const DefaultBatchSize = 500

// ErrNilClient Redis 客户端为 nil
var ErrNilClient = errors.New("xsweep: redis client is nil")

// Stats 一次巡检的统计
type Stats struct {
	// Scanned 遍历到的键数
	Scanned int64
	// Expired 补设过期时间的键数
	Expired int64
	// Deleted 所属日已过而删除的计数键数
	Deleted int64
	// Skipped 无法解析日期的计数键数
	Skipped int64
}

func (s *Stats) add(o Stats) {
	s.Scanned += o.Scanned
	s.Expired += o.Expired
	s.Deleted += o.Deleted
	s.Skipped += o.Skipped
}

// Option Sweeper 选项
type Option func(*Sweeper)

// WithKeyspace 设置键空间，需与引擎一致
func WithKeyspace(k xstore.Keyspace) Option {
	return func(s *Sweeper) {
		s.keys = k
	}
}

// WithLocation 设置计数日所在时区，需与引擎一致
func WithLocation(loc *time.Location) Option {
	return func(s *Sweeper) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithWindow 设置关联窗口的来源，每次巡检时读取，跟随策略热更新
func WithWindow(window func() time.Duration) Option {
	return func(s *Sweeper) {
		if window != nil {
			s.window = window
		}
	}
}

// WithBatchSize 设置 SCAN 的 COUNT 提示
func WithBatchSize(n int64) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger 设置日志
func WithLogger(l xlog.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// Sweeper 过期巡检器
type Sweeper struct {
	client redis.UniversalClient
	keys   xstore.Keyspace
	loc    *time.Location
	window func() time.Duration
	batch  int64
	now    func() time.Time
	logger xlog.Logger
}

// New 创建巡检器。未设置 WithWindow 时关联键使用一小时窗口。
func New(client redis.UniversalClient, opts ...Option) (*Sweeper, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	s := &Sweeper{
		client: client,
		loc:    time.Local,
		window: func() time.Duration { return time.Hour },
		batch:  DefaultBatchSize,
		now:    time.Now,
		logger: xlog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Run 执行一次完整巡检
func (s *Sweeper) Run(ctx context.Context) (Stats, error) {
	cc, ok := s.client.(*redis.ClusterClient)
	if !ok {
		return s.sweepNode(ctx, s.client)
	}

	var (
		mu    sync.Mutex
		total Stats
	)
	err := cc.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
		st, err := s.sweepNode(ctx, node)
		mu.Lock()
		total.add(st)
		mu.Unlock()
		return err
	})
	return total, err
}

// Job 执行一次巡检并记录结果，签名与 xcron.AddFunc 兼容
func (s *Sweeper) Job(ctx context.Context) error {
	st, err := s.Run(ctx)
	attrs := []slog.Attr{
		xlog.Component("xsweep"),
		slog.Int64("scanned", st.Scanned),
		slog.Int64("expired", st.Expired),
		slog.Int64("deleted", st.Deleted),
		slog.Int64("skipped", st.Skipped),
	}
	if err != nil {
		s.logger.Error(ctx, "expiry sweep failed", append(attrs, xlog.Err(err))...)
		return err
	}
	if st.Expired > 0 || st.Deleted > 0 {
		s.logger.Warn(ctx, "expiry sweep repaired keys without ttl", attrs...)
	} else {
		s.logger.Debug(ctx, "expiry sweep completed", attrs...)
	}
	return nil
}

func (s *Sweeper) sweepNode(ctx context.Context, c redis.Cmdable) (Stats, error) {
	var total Stats
	for _, pattern := range []string{s.keys.UsagePattern(), s.keys.AssocPattern()} {
		var cursor uint64
		for {
			keys, next, err := c.Scan(ctx, cursor, pattern, s.batch).Result()
			if err != nil {
				return total, fmt.Errorf("xsweep: scan %s: %w", pattern, err)
			}
			st, err := s.repair(ctx, c, keys)
			total.add(st)
			if err != nil {
				return total, err
			}
			if cursor = next; cursor == 0 {
				break
			}
		}
	}
	return total, nil
}

// repair 处理一批键：先批量读取 TTL，再批量修复
func (s *Sweeper) repair(ctx context.Context, c redis.Cmdable, keys []string) (Stats, error) {
	st := Stats{Scanned: int64(len(keys))}
	if len(keys) == 0 {
		return st, nil
	}

	ttls := make([]*redis.DurationCmd, len(keys))
	_, err := c.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range keys {
			ttls[i] = p.TTL(ctx, k)
		}
		return nil
	})
	if err != nil {
		return st, fmt.Errorf("xsweep: read ttl: %w", err)
	}

	now := s.now()
	window := s.window()
	_, err = c.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range keys {
			// -1 表示没有过期时间；-2 表示键已不存在
			if ttls[i].Val() != -1 {
				continue
			}
			day, isUsage := s.keys.ParseUsageDay(k, s.loc)
			switch {
			case !isUsage && s.isUsageKey(k):
				st.Skipped++
			case !isUsage:
				p.Expire(ctx, k, window)
				st.Expired++
			default:
				reset := day.AddDate(0, 0, 1)
				if !reset.After(now) {
					p.Del(ctx, k)
					st.Deleted++
					continue
				}
				p.Expire(ctx, k, reset.Sub(now))
				st.Expired++
			}
		}
		return nil
	})
	if err != nil {
		return st, fmt.Errorf("xsweep: repair: %w", err)
	}
	return st, nil
}

func (s *Sweeper) isUsageKey(k string) bool {
	return strings.HasPrefix(k, strings.TrimSuffix(s.keys.UsagePattern(), "*"))
}
