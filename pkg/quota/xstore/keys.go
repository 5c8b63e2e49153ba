package xstore

import (
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultPrefix 默认键前缀
	DefaultPrefix = "xquota:"

	// DayLayout 计数键中的日期格式
	DayLayout = "2006-01-02"

	// maxTokenLength 原样写入键的标识最大长度，超过则使用摘要
	maxTokenLength = 64

	// digestMarker 摘要标识的前缀，不属于原样标识允许的字符集
	digestMarker = "#"

	usageSegment = "usage:"
	assocSegment = "assoc:"
)

// Dimension 计数维度
type Dimension string

const (
	// DimFingerprint 按指纹计数
	DimFingerprint Dimension = "fp"
	// DimAddress 按地址计数
	DimAddress Dimension = "addr"
	// DimPair 按指纹与地址组合计数
	DimPair Dimension = "pair"
)

// Keyspace 生成配额相关的所有存储键
//
// 零值可用，等价于使用 [DefaultPrefix]。
type Keyspace struct {
	prefix string
}

// NewKeyspace 创建键空间，prefix 为空时使用 [DefaultPrefix]
func NewKeyspace(prefix string) Keyspace {
	return Keyspace{prefix: prefix}
}

// Prefix 返回生效的键前缀
func (k Keyspace) Prefix() string {
	if k.prefix == "" {
		return DefaultPrefix
	}
	return k.prefix
}

// Usage 返回指定维度、自然日的计数键
func (k Keyspace) Usage(dim Dimension, day, fingerprint, address string) string {
	var b strings.Builder
	b.WriteString(k.Prefix())
	b.WriteString(usageSegment)
	b.WriteString(string(dim))
	b.WriteByte(':')
	b.WriteString(day)
	b.WriteByte(':')
	switch dim {
	case DimFingerprint:
		b.WriteString(Token(fingerprint))
	case DimAddress:
		b.WriteString(Token(address))
	default:
		b.WriteString(Token(fingerprint))
		b.WriteByte('|')
		b.WriteString(Token(address))
	}
	return b.String()
}

// FingerprintPeers 返回指纹关联地址集合的键
func (k Keyspace) FingerprintPeers(fingerprint string) string {
	return k.Prefix() + assocSegment + string(DimFingerprint) + ":" + Token(fingerprint)
}

// AddressPeers 返回地址关联指纹集合的键
func (k Keyspace) AddressPeers(address string) string {
	return k.Prefix() + assocSegment + string(DimAddress) + ":" + Token(address)
}

// UsagePattern 返回匹配全部计数键的 SCAN 模式
func (k Keyspace) UsagePattern() string {
	return k.Prefix() + usageSegment + "*"
}

// AssocPattern 返回匹配全部关联集合键的 SCAN 模式
func (k Keyspace) AssocPattern() string {
	return k.Prefix() + assocSegment + "*"
}

// ParseUsageDay 从计数键中解析所属自然日
//
// 返回的时间位于 loc 时区当天零点。键不属于当前键空间或日期无法解析时 ok 为 false。
func (k Keyspace) ParseUsageDay(key string, loc *time.Location) (day time.Time, ok bool) {
	rest, found := strings.CutPrefix(key, k.Prefix()+usageSegment)
	if !found {
		return time.Time{}, false
	}
	_, rest, found = strings.Cut(rest, ":")
	if !found || len(rest) < len(DayLayout) {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	day, err := time.ParseInLocation(DayLayout, rest[:len(DayLayout)], loc)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// Day 返回 t 所在的自然日标识
func Day(t time.Time) string {
	return t.Format(DayLayout)
}

// Token 返回标识在键中的形式
//
// 不超过 64 字节且只包含 [A-Za-z0-9._:-] 的标识原样返回，
// 其余以 "#" 加 xxhash64 十六进制摘要代替。
func Token(id string) string {
	if len(id) > 0 && len(id) <= maxTokenLength && isPlain(id) {
		return id
	}
	return digestMarker + strconv.FormatUint(xxhash.Sum64String(id), 16)
}

func isPlain(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-', c == ':':
		default:
			return false
		}
	}
	return true
}
