package xidentity

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// MinFingerprintLength 指纹最少字符数
	MinFingerprintLength = 10
	// MaxFingerprintLength 指纹最多字符数，限制存储键与日志的体积
	MaxFingerprintLength = 512
)

// Fingerprint 通过形状校验的设备指纹
type Fingerprint string

// String 实现 fmt.Stringer
func (f Fingerprint) String() string { return string(f) }

// ValidateFingerprint 校验请求体中原始的 fingerprint 字段
//
// raw 为空或 JSON null 视为缺失；非字符串的 JSON 值（数字、对象等）返回
// fingerprint_not_string。
func ValidateFingerprint(raw json.RawMessage) (Fingerprint, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", invalid(CodeFingerprintMissing, "")
	}
	if trimmed[0] != '"' {
		return "", invalid(CodeFingerprintNotString, "")
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return "", invalid(CodeFingerprintNotString, err.Error())
	}
	return ValidateFingerprintString(s)
}

// ValidateFingerprintString 校验已是字符串形式的指纹（请求头、查询参数）
//
// 首尾空白被去除后再计长度，长度按字符而非字节计算。
func ValidateFingerprintString(s string) (Fingerprint, error) {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	switch {
	case n == 0:
		return "", invalid(CodeFingerprintMissing, "")
	case n < MinFingerprintLength:
		return "", invalid(CodeFingerprintTooShort, "minimum length is "+strconv.Itoa(MinFingerprintLength))
	case n > MaxFingerprintLength:
		return "", invalid(CodeFingerprintTooLong, "maximum length is "+strconv.Itoa(MaxFingerprintLength))
	}
	return Fingerprint(s), nil
}
