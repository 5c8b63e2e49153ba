package xidentity

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codeOf(t *testing.T, err error) Code {
	t.Helper()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.ErrorIs(t, err, ErrInvalidIdentity)
	assert.False(t, ve.Retryable())
	return ve.Code
}

func TestValidateFingerprint(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Code
	}{
		{"absent", ``, CodeFingerprintMissing},
		{"null", `null`, CodeFingerprintMissing},
		{"number", `1234567890123`, CodeFingerprintNotString},
		{"object", `{"id":"abcdefghij"}`, CodeFingerprintNotString},
		{"empty string", `"   "`, CodeFingerprintMissing},
		{"too short", `"abcdefghi"`, CodeFingerprintTooShort},
		{"too long", `"` + strings.Repeat("a", MaxFingerprintLength+1) + `"`, CodeFingerprintTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateFingerprint(json.RawMessage(tt.raw))
			assert.Equal(t, tt.want, codeOf(t, err))
		})
	}

	fp, err := ValidateFingerprint(json.RawMessage(`" abcdefghij "`))
	require.NoError(t, err)
	assert.Equal(t, Fingerprint("abcdefghij"), fp)

	// 按字符计长度
	fp, err = ValidateFingerprintString("指纹指纹指纹指纹指纹")
	require.NoError(t, err)
	assert.Equal(t, "指纹指纹指纹指纹指纹", fp.String())
}

func newPost(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/quota", strings.NewReader(body))
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	return req
}

func TestDecodeRequest(t *testing.T) {
	r := mustResolver(t, Config{})

	req := newPost(`{"fingerprint":"abcdefghij","verificationToken":" tok-1 ","extra":true}`)
	got, err := r.DecodeRequest(req)
	require.NoError(t, err)
	assert.Equal(t, Request{Fingerprint: "abcdefghij", Address: "203.0.113.7", VerificationToken: "tok-1"}, got)

	// 请求体已恢复
	rest, _ := io.ReadAll(req.Body)
	assert.Contains(t, string(rest), "abcdefghij")
}

func TestDecodeRequest_VisitorHeaderWins(t *testing.T) {
	r := mustResolver(t, Config{})
	req := newPost(`{"fingerprint":"short"}`)
	req.Header.Set(HeaderVisitorID, "visitor-0123456789")
	got, err := r.DecodeRequest(req)
	require.NoError(t, err)
	assert.Equal(t, Fingerprint("visitor-0123456789"), got.Fingerprint)

	// 没有请求体时只靠头
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(HeaderVisitorID, "visitor-0123456789")
	_, err = r.DecodeRequest(req)
	require.NoError(t, err)
}

func TestDecodeRequest_Errors(t *testing.T) {
	r := mustResolver(t, Config{})
	tests := []struct {
		name string
		body string
		want Code
	}{
		{"empty body", ``, CodeFingerprintMissing},
		{"not json", `fingerprint=abc`, CodeBodyMalformed},
		{"array", `[]`, CodeBodyMalformed},
		{"token not string", `{"fingerprint":"abcdefghij","verificationToken":5}`, CodeBodyMalformed},
		{"short", `{"fingerprint":"abc"}`, CodeFingerprintTooShort},
		{"too large", `{"fingerprint":"abcdefghij","pad":"` + strings.Repeat("x", MaxBodyBytes) + `"}`, CodeBodyTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.DecodeRequest(newPost(tt.body))
			assert.Equal(t, tt.want, codeOf(t, err))
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestDecodeRequest_ReadError(t *testing.T) {
	r := mustResolver(t, Config{})
	req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(failingReader{}))
	_, err := r.DecodeRequest(req)
	assert.Equal(t, CodeBodyMalformed, codeOf(t, err))
}

func TestDecodeQuery(t *testing.T) {
	r := mustResolver(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/quota?fingerprint=abcdefghij", nil)
	req.Header.Set("X-Real-IP", "198.51.100.3")
	got, err := r.DecodeQuery(req)
	require.NoError(t, err)
	assert.Equal(t, Request{Fingerprint: "abcdefghij", Address: "198.51.100.3"}, got)

	req = httptest.NewRequest(http.MethodGet, "/v1/quota", nil)
	req.Header.Set(HeaderVisitorID, "visitor-0123456789")
	got, err = r.DecodeQuery(req)
	require.NoError(t, err)
	assert.Equal(t, Unknown, got.Address)

	_, err = r.DecodeQuery(httptest.NewRequest(http.MethodGet, "/v1/quota", nil))
	assert.Equal(t, CodeFingerprintMissing, codeOf(t, err))
}

func TestDecodeQuery_HeaderPrecedenceMatchesDecodeRequest(t *testing.T) {
	r := mustResolver(t, Config{})

	get := httptest.NewRequest(http.MethodGet, "/v1/quota?fingerprint=query-0123456789", nil)
	get.Header.Set(HeaderVisitorID, "header-0123456789")
	q, err := r.DecodeQuery(get)
	require.NoError(t, err)

	post := httptest.NewRequest(http.MethodPost, "/v1/quota", strings.NewReader(`{"fingerprint":"body-0123456789"}`))
	post.Header.Set(HeaderVisitorID, "header-0123456789")
	d, err := r.DecodeRequest(post)
	require.NoError(t, err)

	assert.Equal(t, Fingerprint("header-0123456789"), q.Fingerprint)
	assert.Equal(t, d.Fingerprint, q.Fingerprint)
}

func TestValidationError_Message(t *testing.T) {
	assert.Equal(t, "xidentity: body_too_large", (&ValidationError{Code: CodeBodyTooLarge}).Error())
	assert.Contains(t, invalid(CodeFingerprintTooShort, "minimum length is 10").Error(), "minimum")
}
