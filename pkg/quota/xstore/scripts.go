package xstore

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

var (
	//go:embed lua/reserve.lua
	reserveLuaSource string

	//go:embed lua/window_track.lua
	windowTrackLuaSource string
)

// scripts 持有所有 Redis 脚本实例
type scripts struct {
	reserve     *redis.Script
	windowTrack *redis.Script
}

var (
	globalScripts     *scripts
	globalScriptsOnce sync.Once
)

func getScripts() *scripts {
	globalScriptsOnce.Do(func() {
		globalScripts = &scripts{
			reserve:     redis.NewScript(reserveLuaSource),
			windowTrack: redis.NewScript(windowTrackLuaSource),
		}
	})
	return globalScripts
}

// WarmupScripts 将脚本预加载到 Redis 脚本缓存
//
// 建议在服务启动时调用。失败不影响后续使用，首次执行时会自动回退到 EVAL。
func WarmupScripts(ctx context.Context, client redis.UniversalClient) error {
	if client == nil {
		return ErrNilClient
	}
	s := getScripts()
	if err := s.reserve.Load(ctx, client).Err(); err != nil {
		return fmt.Errorf("load reserve script: %w", err)
	}
	if err := s.windowTrack.Load(ctx, client).Err(); err != nil {
		return fmt.Errorf("load window track script: %w", err)
	}
	return nil
}

// parsePair 解析脚本返回的二元整数数组
func parsePair(reply []int64) (first, second int64, err error) {
	if len(reply) != 2 {
		return 0, 0, fmt.Errorf("%w: got %d values", ErrUnexpectedReply, len(reply))
	}
	return reply[0], reply[1], nil
}
