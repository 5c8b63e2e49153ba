package xctx

import "context"

// WithClientAddress 写入解析后的客户端地址
func WithClientAddress(ctx context.Context, address string) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, keyClientAddress, address), nil
}

// ClientAddress 读取客户端地址
func ClientAddress(ctx context.Context) string {
	return stringValue(ctx, keyClientAddress)
}

// WithFingerprint 写入指纹标识
//
// 应写入存储键中使用的标识（可能是摘要），而不是原始指纹，避免日志记录过长的客户端输入。
func WithFingerprint(ctx context.Context, token string) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, keyFingerprint, token), nil
}

// Fingerprint 读取指纹标识
func Fingerprint(ctx context.Context) string {
	return stringValue(ctx, keyFingerprint)
}
