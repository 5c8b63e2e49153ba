package xquota

import (
	"errors"
	"fmt"
	"strings"

	"github.com/omeyang/xquota/pkg/quota/xidentity"
)

// 分类根错误，使用 errors.Is 判断
var (
	// ErrInvalidIdentity 输入错误，等同于 [xidentity.ErrInvalidIdentity]
	ErrInvalidIdentity = xidentity.ErrInvalidIdentity

	// ErrVerification 人机验证未通过
	ErrVerification = errors.New("xquota: verification failed")

	// ErrStoreUnavailable 存储或验证服务故障
	ErrStoreUnavailable = errors.New("xquota: store unavailable")
)

// Kind 错误分类
type Kind int

const (
	// KindInput 输入错误，客户端修正后才能重试
	KindInput Kind = iota + 1
	// KindVerification 验证失败，客户端需重新获取验证令牌
	KindVerification
	// KindStore 存储或外部依赖故障
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindVerification:
		return "verification"
	case KindStore:
		return "store"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// 对外的稳定错误码（输入错误使用 xidentity 的错误码）
const (
	CodeVerificationFailed      = "verification_failed"
	CodeVerificationUnavailable = "verification_unavailable"
	CodeStoreUnavailable        = "store_unavailable"
)

// Error 引擎边界上的分类错误
//
// Code 与 Message 可以直接返回给客户端；Err 保留原始原因，只用于日志。
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// FailureCodes 验证服务返回的失败码，仅 KindVerification 使用
	FailureCodes []string
	Err          error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("xquota: ")
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	b.WriteString(e.Code)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap 返回原始原因
func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按分类匹配根错误
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindInput:
		return target == ErrInvalidIdentity
	case KindVerification:
		return target == ErrVerification
	case KindStore:
		return target == ErrStoreUnavailable
	default:
		return false
	}
}

// Retryable 只有存储故障值得重试
func (e *Error) Retryable() bool {
	return e.Kind == KindStore
}

// InputError 把身份校验失败转换为输入错误
func InputError(err error) *Error {
	code := string(xidentity.CodeFingerprintMissing)
	var ve *xidentity.ValidationError
	if errors.As(err, &ve) {
		code = string(ve.Code)
	}
	return &Error{
		Kind:    KindInput,
		Code:    code,
		Message: inputMessage(xidentity.Code(code)),
		Err:     err,
	}
}

func inputMessage(code xidentity.Code) string {
	switch code {
	case xidentity.CodeFingerprintMissing:
		return "fingerprint is required"
	case xidentity.CodeFingerprintNotString:
		return "fingerprint must be a string"
	case xidentity.CodeFingerprintTooShort:
		return fmt.Sprintf("fingerprint must be at least %d characters", xidentity.MinFingerprintLength)
	case xidentity.CodeFingerprintTooLong:
		return fmt.Sprintf("fingerprint must be at most %d characters", xidentity.MaxFingerprintLength)
	case xidentity.CodeBodyTooLarge:
		return "request body too large"
	default:
		return "request body is malformed"
	}
}

// VerificationError 验证服务拒绝了令牌
func VerificationError(failureCodes []string) *Error {
	return &Error{
		Kind:         KindVerification,
		Code:         CodeVerificationFailed,
		Message:      "human verification failed, obtain a new challenge token and retry",
		FailureCodes: failureCodes,
	}
}

// VerifierUnavailableError 验证服务本身故障
func VerifierUnavailableError(err error) *Error {
	return &Error{
		Kind:    KindStore,
		Code:    CodeVerificationUnavailable,
		Message: "verification service unavailable",
		Err:     err,
	}
}

// StoreError 存储故障
func StoreError(err error) *Error {
	return &Error{
		Kind:    KindStore,
		Code:    CodeStoreUnavailable,
		Message: "quota store unavailable",
		Err:     err,
	}
}

// KindOf 返回错误分类，非 *Error 视为存储故障
func KindOf(err error) Kind {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return KindStore
}
