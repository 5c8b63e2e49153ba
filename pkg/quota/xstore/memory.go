package xstore

import (
	"context"
	"sync"
	"time"
)

type entryKind uint8

const (
	kindCounter entryKind = iota + 1
	kindSet
	kindWindow
)

type entry struct {
	kind     entryKind
	counter  int64
	members  map[string]int64 // 集合成员；滚动窗口下值为最近出现的毫秒时间戳
	expireAt time.Time        // 零值表示永不过期
}

// Memory 进程内配额存储
//
// 语义与 [Redis] 一致，包括原子预留与滚动窗口。过期采用惰性删除，
// 长期运行时应周期性调用 [Memory.Purge]。
//
// 只适合单实例部署：多个进程之间不共享计数。
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
	closed  bool
}

var (
	_ Store         = (*Memory)(nil)
	_ Reserver      = (*Memory)(nil)
	_ MemberTracker = (*Memory)(nil)
	_ WindowTracker = (*Memory)(nil)
)

// MemoryOption 内存存储选项
type MemoryOption func(*Memory)

// WithMemoryClock 设置时钟，用于测试
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory 创建内存存储
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lookup 返回未过期的条目，调用方必须持有锁
func (m *Memory) lookup(key string, now time.Time) *entry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !e.expireAt.IsZero() && !now.Before(e.expireAt) {
		delete(m.entries, key)
		return nil
	}
	return e
}

func (m *Memory) begin(key string) (time.Time, error) {
	if m.closed {
		return time.Time{}, ErrClosed
	}
	if key == "" {
		return time.Time{}, ErrEmptyKey
	}
	return m.now(), nil
}

// Get 读取计数器
func (m *Memory) Get(_ context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now, err := m.begin(key)
	if err != nil {
		return 0, false, err
	}
	e := m.lookup(key, now)
	if e == nil {
		return 0, false, nil
	}
	if e.kind != kindCounter {
		return 0, false, wrapOp("get", key, ErrWrongType)
	}
	return e.counter, true, nil
}

// Incr 原子递增
func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now, err := m.begin(key)
	if err != nil {
		return 0, err
	}
	e, err := m.counter(key, now)
	if err != nil {
		return 0, wrapOp("incr", key, err)
	}
	e.counter++
	return e.counter, nil
}

func (m *Memory) counter(key string, now time.Time) (*entry, error) {
	e := m.lookup(key, now)
	if e == nil {
		e = &entry{kind: kindCounter}
		m.entries[key] = e
	}
	if e.kind != kindCounter {
		return nil, ErrWrongType
	}
	return e, nil
}

// Expire 设置存活时间
func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now, err := m.begin(key)
	if err != nil {
		return false, err
	}
	e := m.lookup(key, now)
	if e == nil {
		return false, nil
	}
	e.expireAt = now.Add(clampTTL(ttl))
	return true, nil
}

// SAdd 添加集合成员
func (m *Memory) SAdd(_ context.Context, key, member string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now, err := m.begin(key)
	if err != nil {
		return 0, err
	}
	added, err := m.sadd(key, member, now)
	return added, wrapOp("sadd", key, err)
}

func (m *Memory) sadd(key, member string, now time.Time) (int64, error) {
	e := m.lookup(key, now)
	if e == nil {
		e = &entry{kind: kindSet, members: make(map[string]int64)}
		m.entries[key] = e
	}
	if e.kind != kindSet {
		return 0, ErrWrongType
	}
	if _, ok := e.members[member]; ok {
		return 0, nil
	}
	e.members[member] = 0
	return 1, nil
}

// SCard 返回集合基数
func (m *Memory) SCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now, err := m.begin(key)
	if err != nil {
		return 0, err
	}
	e := m.lookup(key, now)
	if e == nil {
		return 0, nil
	}
	if e.kind != kindSet {
		return 0, wrapOp("scard", key, ErrWrongType)
	}
	return int64(len(e.members)), nil
}

// Ping 内存存储总是可达，关闭后返回 [ErrClosed]
func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close 关闭存储并释放所有条目
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = make(map[string]*entry)
	return nil
}

// Reserve 原子地递增、比较并在超额时回滚
func (m *Memory) Reserve(_ context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	if limit < 0 {
		return 0, false, ErrInvalidLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now, err := m.begin(key)
	if err != nil {
		return 0, false, err
	}
	e, err := m.counter(key, now)
	if err != nil {
		return 0, false, wrapOp("reserve", key, err)
	}
	e.expireAt = now.Add(clampTTL(ttl))
	if e.counter+1 > limit {
		return e.counter, false, nil
	}
	e.counter++
	return e.counter, true, nil
}

// TrackMember 添加成员、刷新 TTL 并返回基数
func (m *Memory) TrackMember(_ context.Context, key, member string, ttl time.Duration) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now, err := m.begin(key)
	if err != nil {
		return 0, 0, err
	}
	added, err := m.sadd(key, member, now)
	if err != nil {
		return 0, 0, wrapOp("track", key, err)
	}
	e := m.entries[key]
	e.expireAt = now.Add(clampTTL(ttl))
	return added, int64(len(e.members)), nil
}

// TrackWindow 记录成员最近出现时间并裁剪窗口外成员
func (m *Memory) TrackWindow(_ context.Context, key, member string, now time.Time, window time.Duration) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clock, err := m.begin(key)
	if err != nil {
		return 0, 0, err
	}
	window = clampTTL(window)
	e := m.lookup(key, clock)
	if e == nil {
		e = &entry{kind: kindWindow, members: make(map[string]int64)}
		m.entries[key] = e
	}
	if e.kind != kindWindow {
		return 0, 0, wrapOp("track_window", key, ErrWrongType)
	}

	cutoff := now.Add(-window).UnixMilli()
	for member, seen := range e.members {
		if seen <= cutoff {
			delete(e.members, member)
		}
	}
	var added int64
	if _, ok := e.members[member]; !ok {
		added = 1
	}
	e.members[member] = now.UnixMilli()
	e.expireAt = clock.Add(window)
	return added, int64(len(e.members)), nil
}

// CountWindow 统计窗口内成员数
func (m *Memory) CountWindow(_ context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clock, err := m.begin(key)
	if err != nil {
		return 0, err
	}
	e := m.lookup(key, clock)
	if e == nil {
		return 0, nil
	}
	if e.kind != kindWindow {
		return 0, wrapOp("count_window", key, ErrWrongType)
	}
	cutoff := now.Add(-clampTTL(window)).UnixMilli()
	var n int64
	for _, seen := range e.members {
		if seen > cutoff {
			n++
		}
	}
	return n, nil
}

// Purge 删除所有已过期条目，返回删除数量
func (m *Memory) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var n int
	for key, e := range m.entries {
		if !e.expireAt.IsZero() && !now.Before(e.expireAt) {
			delete(m.entries, key)
			n++
		}
	}
	return n
}

// Len 返回当前条目数（含尚未惰性删除的过期条目）
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
