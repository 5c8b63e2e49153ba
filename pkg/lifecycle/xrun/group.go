package xrun

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xquota/pkg/observability/xlog"
)

// Component 一个具名的长期运行组件
type Component struct {
	Name string
	Run  func(ctx context.Context) error
}

// Named 创建具名组件
func Named(name string, run func(ctx context.Context) error) Component {
	return Component{Name: name, Run: run}
}

// Group 基于 errgroup 管理组件的并发运行和协调关闭
//
// 任一组件返回错误或调用 Cancel 时，所有组件的 ctx 被取消。
// Go 可并发调用；Wait 只应调用一次。
type Group struct {
	eg       *errgroup.Group
	ctx      context.Context
	causeCtx context.Context
	cancel   context.CancelCauseFunc
	opts     *groupOptions
}

// NewGroup 创建 Group，返回的 ctx 在任一组件失败时取消
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	options := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	causeCtx, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(causeCtx)
	return &Group{eg: eg, ctx: egCtx, causeCtx: causeCtx, cancel: cancel, opts: options}, egCtx
}

// Go 启动组件
func (g *Group) Go(c Component) {
	g.eg.Go(func() error {
		if c.Run == nil {
			return ErrNilFunc
		}
		attrs := []slog.Attr{slog.String("group", g.opts.name), xlog.Component(c.Name)}
		g.opts.logger.Debug(g.ctx, "component starting", attrs...)

		err := c.Run(g.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			g.opts.logger.Warn(g.ctx, "component exited with error", append(attrs, xlog.Err(err))...)
		} else {
			g.opts.logger.Debug(g.ctx, "component stopped", attrs...)
		}
		return err
	})
}

// Wait 等待所有组件退出
//
// 组件返回的 context.Canceled 在 Group 主动取消时被过滤；
// 通过 Cancel(cause) 设置的原因（如 *SignalError）总会返回。
func (g *Group) Wait() error {
	defer g.cancel(nil)

	err := g.eg.Wait()
	cause := context.Cause(g.causeCtx)
	explicit := g.causeCtx.Err() != nil && cause != nil && !errors.Is(cause, context.Canceled)

	switch {
	case errors.Is(err, context.Canceled) && g.causeCtx.Err() != nil:
		if explicit {
			return cause
		}
		return nil
	case err == nil && explicit:
		return cause
	default:
		return err
	}
}

// Cancel 主动取消所有组件，cause 由 Wait 返回
//
// cause 不应包装 context.Canceled，否则会被当作普通取消过滤掉。
func (g *Group) Cancel(cause error) {
	g.cancel(cause)
}

// Run 监听退出信号并运行组件，直到全部退出
//
// 收到信号时返回 *SignalError。
func Run(ctx context.Context, opts []Option, components ...Component) error {
	g, _ := NewGroup(ctx, opts...)

	if !g.opts.noSignalHandler {
		signals := g.opts.signals
		if len(signals) == 0 {
			signals = DefaultSignals()
		}
		g.eg.Go(func() error {
			return g.waitSignal(g.ctx, signals)
		})
	}

	for _, c := range components {
		g.Go(c)
	}
	return g.Wait()
}

func (g *Group) waitSignal(ctx context.Context, signals []os.Signal) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)
	defer signal.Stop(sigCh)

	var sig os.Signal
	select {
	case sig = <-testSigChan(ctx):
	case sig = <-sigCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	g.opts.logger.Info(ctx, "received signal",
		slog.String("group", g.opts.name),
		slog.String("signal", sig.String()),
	)
	g.cancel(&SignalError{Signal: sig})
	return nil
}

// 测试通过 context 注入信号，避免向测试进程发送真实信号。
type testSigChanKey struct{}

func testSigChan(ctx context.Context) <-chan os.Signal {
	c, _ := ctx.Value(testSigChanKey{}).(<-chan os.Signal)
	return c
}
