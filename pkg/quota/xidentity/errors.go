package xidentity

import (
	"errors"
	"fmt"
)

// ErrInvalidIdentity 所有身份校验错误的根错误
var ErrInvalidIdentity = errors.New("xidentity: invalid identity")

// Code 校验错误码，会原样返回给客户端
type Code string

// 校验错误码
const (
	CodeFingerprintMissing   Code = "fingerprint_missing"
	CodeFingerprintNotString Code = "fingerprint_not_string"
	CodeFingerprintTooShort  Code = "fingerprint_too_short"
	CodeFingerprintTooLong   Code = "fingerprint_too_long"
	CodeBodyMalformed        Code = "body_malformed"
	CodeBodyTooLarge         Code = "body_too_large"
)

// ValidationError 请求身份校验失败
type ValidationError struct {
	Code   Code
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("xidentity: %s", e.Code)
	}
	return fmt.Sprintf("xidentity: %s: %s", e.Code, e.Detail)
}

// Unwrap 使 errors.Is(err, ErrInvalidIdentity) 成立
func (e *ValidationError) Unwrap() error {
	return ErrInvalidIdentity
}

// Retryable 输入错误不可重试
func (e *ValidationError) Retryable() bool {
	return false
}

func invalid(code Code, detail string) *ValidationError {
	return &ValidationError{Code: code, Detail: detail}
}
