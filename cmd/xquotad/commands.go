package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xquota/pkg/lifecycle/xrun"
	"github.com/omeyang/xquota/pkg/observability/xlog"
	"github.com/omeyang/xquota/pkg/observability/xmetrics"
	"github.com/omeyang/xquota/pkg/quota/xguard"
	"github.com/omeyang/xquota/pkg/quota/xquota"
)

// exitError 表示需要非零退出码但已完成输出的场景。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "" }

// usageError 参数或配置错误，退出码 2
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

// 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createServeCommand(),
		createCheckCommand(),
		createSweepCommand(),
		createUsageCommand(),
	}
}

// createServeCommand 创建 serve 子命令。
func createServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "启动配额服务，直到收到 SIGINT/SIGTERM",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cmdServe(ctx, cmd.String("config"))
		},
	}
}

// createCheckCommand 创建 check 子命令。
func createCheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "校验配置文件并打印生效的策略",
		Action: func(_ context.Context, cmd *cli.Command) error {
			return cmdCheck(output(cmd), cmd.String("config"))
		},
	}
}

// createSweepCommand 创建 sweep 子命令。
func createSweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "执行一次过期巡检并打印统计",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cmdSweep(ctx, output(cmd), cmd.String("config"))
		},
	}
}

// createUsageCommand 创建 usage 子命令。
func createUsageCommand() *cli.Command {
	return &cli.Command{
		Name:  "usage",
		Usage: "只读查询某个身份的当日用量（JSON 输出）",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "fingerprint",
				Aliases:  []string{"f"},
				Usage:    "设备指纹",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "address",
				Aliases: []string{"a"},
				Usage:   "客户端地址，为空时按 unknown 处理",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cmdUsage(ctx, output(cmd), cmd.String("config"), cmd.String("fingerprint"), cmd.String("address"))
		},
	}
}

func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

// ============================================================================
// serve
// ============================================================================

func cmdServe(ctx context.Context, path string) error {
	src, cfg, err := loadConfig(path)
	if err != nil {
		return &usageError{err: err}
	}

	logger, cleanup, err := xlog.New().
		SetLevelString(cfg.Log.Level).
		SetFormat(cfg.Log.Format).
		SetRotation(cfg.Log.Rotation).
		Build()
	if err != nil {
		return &usageError{err: err}
	}
	defer func() { _ = cleanup() }()

	prom, err := xmetrics.NewPrometheus()
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = prom.Shutdown(shutdownCtx)
	}()

	svc, err := newService(ctx, cfg, logger, prom.MeterProvider(), prom.Handler())
	if err != nil {
		logger.Error(ctx, "startup failed", xlog.Err(err))
		return err
	}
	defer func() {
		if err := svc.close(); err != nil {
			logger.Warn(context.Background(), "close resources", xlog.Err(err))
		}
	}()

	comps, err := svc.components(src)
	if err != nil {
		logger.Error(ctx, "startup failed", xlog.Err(err))
		return err
	}

	logger.Info(ctx, "xquotad started",
		xlog.Component("xquotad"),
		slog.String("addr", cfg.Server.Addr),
		slog.String("store", cfg.Store.Driver),
		slog.String("strategy", string(cfg.Quota.Strategy)),
		slog.String("version", Version),
	)
	err = xrun.Run(ctx, []xrun.Option{xrun.WithLogger(logger), xrun.WithName("xquotad")}, comps...)

	var sigErr *xrun.SignalError
	if err == nil || errors.As(err, &sigErr) || errors.Is(err, context.Canceled) {
		logger.Info(context.Background(), "xquotad stopped")
		return nil
	}
	logger.Error(context.Background(), "xquotad exited", xlog.Err(err))
	return err
}

// ============================================================================
// check
// ============================================================================

func cmdCheck(w io.Writer, path string) error {
	_, cfg, err := loadConfig(path)
	if err != nil {
		return &usageError{err: err}
	}
	printConfig(w, path, cfg)
	return nil
}

// printConfig 打印生效配置，密钥不输出
func printConfig(w io.Writer, path string, cfg *Config) {
	p := cfg.Quota
	fmt.Fprintf(w, "配置校验通过: %s\n", path)
	fmt.Fprintf(w, "时区:     %s\n", cfg.Timezone)
	fmt.Fprintf(w, "监听:     %s\n", cfg.Server.Addr)
	switch cfg.Store.Driver {
	case driverRedis:
		fmt.Fprintf(w, "存储:     redis %s (prefix %s)\n", strings.Join(cfg.Store.Redis.Addrs, ","), cfg.Store.Prefix)
	default:
		fmt.Fprintf(w, "存储:     memory (prefix %s)\n", cfg.Store.Prefix)
	}
	fmt.Fprintf(w, "策略:     %s\n", p.Strategy)
	fmt.Fprintf(w, "每日配额: %d\n", p.DailyLimit)
	fmt.Fprintf(w, "冲突阈值: fingerprint=%d address=%d\n", p.FingerprintThreshold, p.AddressThreshold)
	fmt.Fprintf(w, "关联窗口: %s (%s, %s, self_inclusive=%t)\n", p.Window, p.WindowMode, p.Direction, p.SelfInclusive)
	fmt.Fprintf(w, "存储故障: fail-%s (timeout %s)\n", p.FailurePolicy, p.StoreTimeout)
	if cfg.Verify.Enabled {
		fmt.Fprintf(w, "人机验证: turnstile %s (故障时 fail-%s)\n", cfg.Verify.Turnstile.Endpoint, cfg.Verify.FailurePolicy)
	} else {
		fmt.Fprintln(w, "人机验证: 关闭")
	}
	if cfg.Burst.Enabled {
		fmt.Fprintf(w, "突发限流: %d/%s burst=%d fallback=%s\n", cfg.Burst.Rate, cfg.Burst.Period, cfg.Burst.Burst, cfg.Burst.Fallback)
	} else {
		fmt.Fprintln(w, "突发限流: 关闭")
	}
	if cfg.Sweep.Enabled && cfg.Store.Driver == driverRedis {
		fmt.Fprintf(w, "过期巡检: %s\n", cfg.Sweep.Schedule)
	} else {
		fmt.Fprintln(w, "过期巡检: 关闭")
	}
}

// ============================================================================
// sweep
// ============================================================================

// cmdSweep 立即执行一次巡检，不经过调度器与分布式锁
func cmdSweep(ctx context.Context, w io.Writer, path string) error {
	_, cfg, err := loadConfig(path)
	if err != nil {
		return &usageError{err: err}
	}
	if cfg.Store.Driver != driverRedis {
		return &usageError{err: fmt.Errorf("sweep requires store.driver %q", driverRedis)}
	}

	svc, err := newService(ctx, cfg, xlog.Nop(), nil, nil)
	if err != nil {
		return err
	}
	defer func() { _ = svc.close() }()

	stats, err := svc.sweeper.Run(ctx)
	fmt.Fprintf(w, "scanned=%d expired=%d deleted=%d skipped=%d\n",
		stats.Scanned, stats.Expired, stats.Deleted, stats.Skipped)
	if err != nil {
		fmt.Fprintf(os.Stderr, "巡检未完成: %v\n", err)
		return &exitError{code: 1}
	}
	return nil
}

// ============================================================================
// usage
// ============================================================================

func cmdUsage(ctx context.Context, w io.Writer, path, fingerprint, address string) error {
	_, cfg, err := loadConfig(path)
	if err != nil {
		return &usageError{err: err}
	}

	svc, err := newService(ctx, cfg, xlog.Nop(), nil, nil)
	if err != nil {
		return err
	}
	defer func() { _ = svc.close() }()

	dec, err := svc.engine.Query(ctx, xquota.Identity{Fingerprint: fingerprint, Address: address})
	if err != nil {
		if xquota.KindOf(err) == xquota.KindInput {
			return &usageError{err: err}
		}
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(xguard.NewDecisionBody(dec, time.Now()))
}

// ============================================================================
// 信号与错误
// ============================================================================

// setupSignalHandler 第一次信号取消 ctx，第二次强制退出
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}

// isCLIUsageError 识别 urfave/cli 在解析阶段产生的错误
func isCLIUsageError(err error) bool {
	if _, ok := err.(cli.ExitCoder); ok {
		return true
	}
	msg := err.Error()
	for _, prefix := range []string{
		"flag provided but not defined",
		"Required flag",
		"No help topic for",
		"invalid value",
	} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}
