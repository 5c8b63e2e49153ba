// Package xlru 提供带 TTL 的 LRU 缓存。
//
// 基于 github.com/hashicorp/golang-lru/v2/expirable 封装，在其之上补充：
//   - [Cache.SetIfAbsent]：原子的"不存在才写入"，用于一次性令牌的防重放
//   - [Cache.Close]：停止底层库的后台清理 goroutine
//
// # 快速示例
//
//	seen, _ := xlru.New[uint64, struct{}](xlru.Config{Size: 100_000, TTL: 5 * time.Minute})
//	defer seen.Close()
//
//	if !seen.SetIfAbsent(digest, struct{}{}) {
//	    // 令牌在 TTL 内已经出现过
//	}
package xlru
