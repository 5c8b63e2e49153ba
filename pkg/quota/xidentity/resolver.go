package xidentity

import (
	"fmt"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/omeyang/xquota/pkg/util/xnet"
)

// Unknown 无法确定客户端地址时的哨兵值
const Unknown = "unknown"

// 常用代理头
const (
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderRealIP       = "X-Real-IP"
)

// DefaultHeaders 默认的地址头优先级
//
// 前两个是通用代理头，其余是 CDN 与托管平台写入的客户端地址头。
func DefaultHeaders() []string {
	return []string{
		HeaderForwardedFor,
		HeaderRealIP,
		"CF-Connecting-IP",
		"True-Client-IP",
		"Fly-Client-IP",
		"X-Vercel-Forwarded-For",
	}
}

// Config 地址解析配置
type Config struct {
	// Headers 按优先级排列的地址头，为空时使用 DefaultHeaders
	Headers []string `koanf:"headers"`

	// TrustedProxies 可信代理网段（IP、CIDR 或 a-b 范围）
	//
	// 为空表示信任所有对端的代理头。配置后，只有对端地址落在其中时才读取代理头，
	// 否则直接使用对端地址。
	TrustedProxies []string `koanf:"trusted_proxies"`

	// RemoteAddrFallback 代理头都没有值时使用对端地址，而不是返回 Unknown
	RemoteAddrFallback bool `koanf:"remote_addr_fallback"`
}

// Resolver 客户端身份解析器，创建后只读，可并发使用
type Resolver struct {
	headers  []string
	trusted  *xnet.TrustedSet
	fallback bool
}

// New 创建解析器
func New(cfg Config) (*Resolver, error) {
	headers := cfg.Headers
	if len(headers) == 0 {
		headers = DefaultHeaders()
	}
	canonical := make([]string, 0, len(headers))
	for _, h := range headers {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, fmt.Errorf("xidentity: empty header name")
		}
		canonical = append(canonical, textproto.CanonicalMIMEHeaderKey(h))
	}

	trusted, err := xnet.NewTrustedSet(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("xidentity: trusted proxies: %w", err)
	}
	return &Resolver{headers: canonical, trusted: trusted, fallback: cfg.RemoteAddrFallback}, nil
}

// Resolve 解析请求的客户端地址
func (r *Resolver) Resolve(req *http.Request) string {
	if req == nil {
		return Unknown
	}
	return r.ResolveHeader(req.Header, req.RemoteAddr)
}

// ResolveHeader 从请求头与对端地址解析客户端地址
//
// 能解析为 IP 的值会被规范化（去端口、IPv4-mapped 还原为 IPv4），
// 其他非空值去除空白后原样使用。
func (r *Resolver) ResolveHeader(h http.Header, remoteAddr string) string {
	if r.trusted.Configured() && !r.trusted.ContainsString(remoteAddr) {
		return r.peer(remoteAddr)
	}

	for _, name := range r.headers {
		v := h.Get(name)
		if name == HeaderForwardedFor && strings.TrimSpace(v) != "" {
			// 代理已经写了 XFF 就以它为准：首个元素为空时不再查看后续头
			first, _, _ := strings.Cut(v, ",")
			if first = strings.TrimSpace(first); first == "" {
				return Unknown
			}
			addr, _ := xnet.Canonical(first)
			return addr
		}
		if v = strings.TrimSpace(v); v != "" {
			addr, _ := xnet.Canonical(v)
			return addr
		}
	}

	if r.fallback {
		return r.peer(remoteAddr)
	}
	return Unknown
}

func (r *Resolver) peer(remoteAddr string) string {
	if addr, ok := xnet.Canonical(remoteAddr); ok {
		return addr
	}
	return Unknown
}
