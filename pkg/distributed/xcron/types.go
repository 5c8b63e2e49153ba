package xcron

import (
	"context"

	"github.com/robfig/cron/v3"
)

// JobID 任务唯一标识，直接复用 cron.EntryID。
type JobID = cron.EntryID

// Job 定时任务接口。
type Job interface {
	// Run 执行任务。ctx 携带超时与锁续期失败的取消信号，任务应响应 ctx.Done()。
	Run(ctx context.Context) error
}

// JobFunc 函数适配器，将普通函数转换为 [Job] 接口。
type JobFunc func(ctx context.Context) error

// Run 实现 [Job] 接口。
func (f JobFunc) Run(ctx context.Context) error {
	return f(ctx)
}
