// Package xretry 基于 avast/retry-go/v5 提供带退避的重试。
//
// 错误通过 [RetryableError] 声明是否可重试；未声明的错误默认可重试，
// 输入错误应使用 [Permanent] 包装以立即失败。
//
//	r := xretry.New(xretry.Config{Attempts: 3, InitialDelay: 100 * time.Millisecond})
//	err := r.Do(ctx, func(ctx context.Context) error {
//	    return client.Ping(ctx).Err()
//	})
package xretry
