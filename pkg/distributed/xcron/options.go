package xcron

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/xquota/pkg/observability/xlog"
)

// ===================== Scheduler Options =====================

type schedulerOptions struct {
	locker   Locker
	logger   xlog.Logger
	location *time.Location
	parser   cron.Parser
}

func defaultSchedulerOptions() *schedulerOptions {
	return &schedulerOptions{
		locker:   NoopLocker(),
		logger:   xlog.Nop(),
		location: time.Local,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// SchedulerOption 调度器配置选项
type SchedulerOption func(*schedulerOptions)

// WithLocker 设置分布式锁，默认 [NoopLocker]
func WithLocker(locker Locker) SchedulerOption {
	return func(o *schedulerOptions) {
		if locker != nil {
			o.locker = locker
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger xlog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLocation 设置 cron 表达式的时区，默认本地时区
func WithLocation(loc *time.Location) SchedulerOption {
	return func(o *schedulerOptions) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithSeconds 启用秒级精度（6 段表达式）
func WithSeconds() SchedulerOption {
	return func(o *schedulerOptions) {
		o.parser = cron.NewParser(
			cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		)
	}
}

// ===================== Job Options =====================

// MinLockTTL 锁 TTL 的最小值。
// 续期间隔为 TTL/3，TTL 至少 3 秒才能保证续期在过期前执行。
const MinLockTTL = 3 * time.Second

type jobOptions struct {
	name        string
	lockTTL     time.Duration
	lockTimeout time.Duration
	timeout     time.Duration
}

func defaultJobOptions() *jobOptions {
	return &jobOptions{
		lockTTL:     5 * time.Minute,
		lockTimeout: 5 * time.Second,
	}
}

// JobOption 任务配置选项
type JobOption func(*jobOptions)

// WithName 设置任务名，用作锁 key。使用分布式锁时必须设置。
func WithName(name string) JobOption {
	return func(o *jobOptions) {
		o.name = name
	}
}

// WithLockTTL 设置锁 TTL，默认 5 分钟，小于 [MinLockTTL] 时取 MinLockTTL
func WithLockTTL(ttl time.Duration) JobOption {
	return func(o *jobOptions) {
		if ttl > 0 {
			o.lockTTL = max(ttl, MinLockTTL)
		}
	}
}

// WithLockTimeout 设置获取锁的超时，默认 5 秒
func WithLockTimeout(d time.Duration) JobOption {
	return func(o *jobOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithTimeout 设置单次执行超时，0 表示不限制
func WithTimeout(d time.Duration) JobOption {
	return func(o *jobOptions) {
		if d >= 0 {
			o.timeout = d
		}
	}
}
