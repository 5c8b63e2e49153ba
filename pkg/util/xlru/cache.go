package xlru

import (
	"reflect"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// maxSize 缓存最大条目数上限。
const maxSize = 1 << 24

// Config 缓存配置。
type Config struct {
	// Size 最大条目数，必须大于 0 且不超过 16,777,216。
	Size int `json:"size" yaml:"size" koanf:"size"`

	// TTL 条目过期时间，0 表示永不过期。
	TTL time.Duration `json:"ttl" yaml:"ttl" koanf:"ttl"`
}

// Cache 带 TTL 的 LRU 缓存，必须通过 [New] 创建。
//
// 所有方法并发安全。Close 后读操作返回零值，写操作静默忽略。
type Cache[K comparable, V any] struct {
	lru       *expirable.LRU[K, V]
	mu        sync.Mutex // 串行化 SetIfAbsent 的检查与写入
	closed    atomic.Bool
	closeOnce sync.Once
}

// New 创建缓存。
func New[K comparable, V any](cfg Config) (*Cache[K, V], error) {
	if cfg.Size <= 0 {
		return nil, ErrInvalidSize
	}
	if cfg.Size > maxSize {
		return nil, ErrSizeExceedsMax
	}
	if cfg.TTL < 0 {
		return nil, ErrInvalidTTL
	}
	return &Cache[K, V]{lru: expirable.NewLRU[K, V](cfg.Size, nil, cfg.TTL)}, nil
}

// Get 获取缓存值。
func (c *Cache[K, V]) Get(key K) (value V, ok bool) {
	if c.closed.Load() {
		return value, false
	}
	return c.lru.Get(key)
}

// Set 写入缓存值并刷新 TTL，返回是否触发了淘汰。
func (c *Cache[K, V]) Set(key K, value V) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Add(key, value)
}

// SetIfAbsent 键不存在（或已过期）时写入并返回 true，否则返回 false 且不刷新 TTL。
//
// 检查与写入在同一把锁内完成，并发调用同一个键时只有一个返回 true。
func (c *Cache[K, V]) SetIfAbsent(key K, value V) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lru.Peek(key); ok {
		return false
	}
	c.lru.Add(key, value)
	return true
}

// Delete 删除键，返回键是否存在。
func (c *Cache[K, V]) Delete(key K) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// Len 返回条目数，可能包含已过期但尚未清理的条目。
func (c *Cache[K, V]) Len() int {
	if c.closed.Load() {
		return 0
	}
	return c.lru.Len()
}

// Close 清空缓存并停止后台清理 goroutine，可重复调用。
func (c *Cache[K, V]) Close() {
	c.closed.Store(true)
	c.closeOnce.Do(func() {
		c.lru.Purge()
		stopCleanupGoroutine(c.lru)
	})
}

// stopCleanupGoroutine 关闭 expirable.LRU 内部的 done 通道。
//
// 设计决策: golang-lru/v2@v2.0.7 在 TTL > 0 时启动清理 goroutine，但没有公开的停止方法。
// 这里通过 reflect + unsafe 关闭未导出的 done 通道。上游字段变化时返回 false，
// goroutine 泄漏由 goleak 测试暴露。升级依赖时应检查上游是否已提供 Close。
func stopCleanupGoroutine(lru any) (stopped bool) {
	defer func() {
		if r := recover(); r != nil {
			stopped = false
		}
	}()

	v := reflect.ValueOf(lru)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return false
	}
	done := v.Elem().FieldByName("done")
	if !done.IsValid() || done.IsNil() || done.Type() != reflect.TypeOf(make(chan struct{})) {
		return false
	}
	ch := *(*chan struct{})(unsafe.Pointer(done.UnsafeAddr())) //nolint:gosec // 有意访问内部字段
	close(ch)
	return true
}
