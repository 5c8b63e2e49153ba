// xquotad 是设备指纹配额服务。
//
// 用法:
//
//	xquotad [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config   配置文件路径 (默认: /etc/xquotad/config.yaml，环境变量 XQUOTAD_CONFIG)
//
// 命令:
//
//	serve          启动 HTTP 服务（/v1/quota、/healthz、/metrics）
//	check          校验配置文件并打印生效的策略
//	sweep          执行一次过期巡检（仅 redis 驱动）
//	usage          只读查询某个身份的当日用量
//	help           显示帮助信息
//
// serve 期间修改配置文件中的 quota 段或 log.level 会在防抖后热更新，
// 其余配置需要重启。
//
// 退出码:
//
//	0: 命令执行成功
//	1: 运行期错误（存储不可用、巡检失败等）
//	2: 参数或配置错误
//
// 示例:
//
//	xquotad -c config.yaml check
//	xquotad -c config.yaml serve
//	xquotad -c config.yaml usage --fingerprint fp_0123456789 --address 203.0.113.7
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// defaultConfigPath 默认配置文件路径。
const defaultConfigPath = "/etc/xquotad/config.yaml"

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD) -X main.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args))
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xquotad",
		Usage:   "设备指纹配额服务",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径（yaml 或 json）",
				Value:   defaultConfigPath,
				Sources: cli.EnvVars("XQUOTAD_CONFIG"),
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一处理退出码映射。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run(args []string) int {
	app := createApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setupSignalHandler(cancel)

	return exitCode(app.Run(ctx, args))
}

// exitCode 把命令返回的错误映射为退出码并输出错误信息
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
		return 2
	}
	if isCLIUsageError(err) {
		return 2
	}
	fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	return 1
}
