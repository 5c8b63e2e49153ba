package xcron

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/xquota/pkg/observability/xlog"
)

// 预定义错误
var (
	// ErrNilJob 任务为 nil
	ErrNilJob = errors.New("xcron: job cannot be nil")

	// ErrMissingName 使用分布式锁的任务没有名字
	ErrMissingName = errors.New("xcron: job name is required when a distributed locker is configured")
)

// Scheduler 基于 robfig/cron/v3 的调度器
type Scheduler struct {
	cron   *cron.Cron
	locker Locker
	logger xlog.Logger
}

// New 创建调度器。不带参数时使用 NoopLocker、本地时区、分钟级精度。
func New(opts ...SchedulerOption) *Scheduler {
	o := defaultSchedulerOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(o.location), cron.WithParser(o.parser)),
		locker: o.locker,
		logger: o.logger,
	}
}

// AddFunc 添加函数任务，spec 为 cron 表达式，如 "@every 10m"
func (s *Scheduler) AddFunc(spec string, cmd func(ctx context.Context) error, opts ...JobOption) (JobID, error) {
	if cmd == nil {
		return 0, ErrNilJob
	}
	return s.AddJob(spec, JobFunc(cmd), opts...)
}

// AddJob 添加 [Job] 接口任务
func (s *Scheduler) AddJob(spec string, job Job, opts ...JobOption) (JobID, error) {
	if job == nil {
		return 0, ErrNilJob
	}
	o := defaultJobOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if _, noop := s.locker.(noopLocker); !noop && o.name == "" {
		return 0, ErrMissingName
	}

	id, err := s.cron.AddJob(spec, newJobWrapper(job, s.locker, s.logger, o))
	if err != nil {
		return 0, fmt.Errorf("xcron: failed to add job: %w", err)
	}
	return id, nil
}

// Remove 移除任务，正在执行的不受影响
func (s *Scheduler) Remove(id JobID) {
	s.cron.Remove(id)
}

// Start 启动调度器（非阻塞），重复调用无效果
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度，返回的 context 在所有运行中的任务完成后 Done
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Entries 返回所有已注册的任务
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// Run 启动调度器并阻塞到 ctx 结束，然后等待运行中的任务完成。
// 签名与 xrun.Group.Go 兼容。
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	<-s.Stop().Done()
	return nil
}
