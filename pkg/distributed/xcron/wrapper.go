package xcron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/omeyang/xquota/pkg/observability/xlog"
)

// unlockTimeout 释放锁使用独立的 context，避免任务取消导致释放失败
const unlockTimeout = 5 * time.Second

// jobWrapper 包装原始任务，增加锁、超时与 panic 恢复，实现 cron.Job
type jobWrapper struct {
	job    Job
	opts   *jobOptions
	locker Locker
	logger xlog.Logger
}

func newJobWrapper(job Job, locker Locker, logger xlog.Logger, opts *jobOptions) *jobWrapper {
	return &jobWrapper{job: job, opts: opts, locker: locker, logger: logger}
}

// Run 实现 cron.Job 接口
func (w *jobWrapper) Run() {
	w.run(context.Background())
}

// run 返回任务是否执行，便于测试
func (w *jobWrapper) run(ctx context.Context) (ran bool, err error) {
	taskCtx, taskCancel := context.WithCancel(ctx)
	defer taskCancel()

	handle, ok := w.acquire(taskCtx)
	if !ok {
		return false, nil
	}
	stop := w.keepAlive(taskCtx, handle, taskCancel)
	defer w.release(ctx, handle, stop)

	if w.opts.timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(taskCtx, w.opts.timeout)
		defer cancel()
	}

	start := time.Now()
	err = w.execute(taskCtx)
	attrs := []slog.Attr{
		xlog.Component("xcron"),
		slog.String("job", w.opts.name),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		w.logger.Error(ctx, "job failed", append(attrs, xlog.Err(err))...)
	} else {
		w.logger.Debug(ctx, "job completed", attrs...)
	}
	return true, err
}

// execute 执行任务并把 panic 转为错误，调度器 goroutine 不会因此退出
func (w *jobWrapper) execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("xcron: job %q panicked: %v", w.opts.name, r)
		}
	}()
	return w.job.Run(ctx)
}

// acquire 获取锁；未命名任务在 NoopLocker 下直接执行
func (w *jobWrapper) acquire(ctx context.Context) (LockHandle, bool) {
	lockCtx, cancel := context.WithTimeout(ctx, w.opts.lockTimeout)
	defer cancel()

	handle, err := w.locker.TryLock(lockCtx, w.opts.name, w.opts.lockTTL)
	if err != nil {
		w.logger.Warn(ctx, "failed to acquire job lock",
			xlog.Component("xcron"), slog.String("job", w.opts.name), xlog.Err(err))
		return nil, false
	}
	if handle == nil {
		w.logger.Debug(ctx, "job lock held elsewhere, skipping",
			xlog.Component("xcron"), slog.String("job", w.opts.name))
		return nil, false
	}
	return handle, true
}

// keepAlive 按 TTL/3 续期，续期失败时取消任务，防止锁过期后并发执行
func (w *jobWrapper) keepAlive(ctx context.Context, handle LockHandle, taskCancel context.CancelFunc) func() {
	if _, noop := handle.(noopLockHandle); noop {
		return func() {}
	}
	interval := max(w.opts.lockTTL/3, time.Second)
	renewCtx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				if err := handle.Extend(renewCtx); err != nil {
					if renewCtx.Err() != nil {
						return
					}
					w.logger.Error(ctx, "job lock renewal failed, canceling job",
						xlog.Component("xcron"), slog.String("job", w.opts.name), xlog.Err(err))
					taskCancel()
					return
				}
			}
		}
	})
	return func() {
		cancel()
		wg.Wait()
	}
}

func (w *jobWrapper) release(ctx context.Context, handle LockHandle, stop func()) {
	stop()
	unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
	defer cancel()
	if err := handle.Unlock(unlockCtx); err != nil {
		w.logger.Warn(ctx, "failed to release job lock",
			xlog.Component("xcron"), slog.String("job", w.opts.name), xlog.Err(err))
	}
}
