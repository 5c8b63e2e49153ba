package xverify

import (
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/omeyang/xquota/pkg/util/xlru"
)

// replayGuard 记录最近校验过的令牌
//
// 只保存令牌的 xxhash 摘要。TTL 应覆盖令牌自身的有效期（Turnstile 为 300 秒）。
type replayGuard struct {
	seen *xlru.Cache[uint64, struct{}]
}

func newReplayGuard(size int, ttl time.Duration) (*replayGuard, error) {
	c, err := xlru.New[uint64, struct{}](xlru.Config{Size: size, TTL: ttl})
	if err != nil {
		return nil, err
	}
	return &replayGuard{seen: c}, nil
}

// claim 令牌首次出现时返回 true
func (g *replayGuard) claim(token string) bool {
	return g.seen.SetIfAbsent(xxhash.Sum64String(token), struct{}{})
}

func (g *replayGuard) release(token string) {
	g.seen.Delete(xxhash.Sum64String(token))
}

func (g *replayGuard) close() {
	g.seen.Close()
}
