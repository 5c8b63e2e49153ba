package xstore

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// 预定义错误，使用 errors.Is 进行比较
var (
	// ErrNilClient 客户端为空
	ErrNilClient = errors.New("xstore: client is nil")

	// ErrEmptyKey 键为空
	ErrEmptyKey = errors.New("xstore: key must not be empty")

	// ErrClosed 存储已关闭
	ErrClosed = errors.New("xstore: store closed")

	// ErrWrongType 键存在但类型不符（例如对集合执行 Incr）
	ErrWrongType = errors.New("xstore: operation against a key holding the wrong kind of value")

	// ErrInvalidLimit 配额上限为负数
	ErrInvalidLimit = errors.New("xstore: limit must not be negative")

	// ErrExpireNotSet 写入已生效但过期时间未能设置
	//
	// 调用方应视为可容忍的陈旧状态：计数有效，键可能暂时没有 TTL，
	// 由 xsweep 周期性补齐。
	ErrExpireNotSet = errors.New("xstore: value written but expiry not set")

	// ErrUnexpectedReply 脚本返回了无法解析的结果
	ErrUnexpectedReply = errors.New("xstore: unexpected script reply")
)

// OpError 记录失败的存储操作
type OpError struct {
	Op  string
	Key string
	Err error
}

// Error 实现 error 接口
func (e *OpError) Error() string {
	return fmt.Sprintf("xstore: %s %q: %v", e.Op, e.Key, e.Err)
}

// Unwrap 返回底层错误
func (e *OpError) Unwrap() error {
	return e.Err
}

// Retryable 网络类错误可重试
func (e *OpError) Retryable() bool {
	return IsRedisError(e.Err)
}

func wrapOp(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Key: key, Err: err}
}

// OpName 从错误链中提取失败的操作名，没有时返回 "unknown"
func OpName(err error) string {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Op
	}
	return "unknown"
}

var redisRelatedErrors = []error{
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.EPIPE,
	syscall.ETIMEDOUT,
	io.EOF,
	io.ErrUnexpectedEOF,
}

// IsRedisError 检查是否是 Redis 连接或网络相关错误
func IsRedisError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range redisRelatedErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
