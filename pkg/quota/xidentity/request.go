package xidentity

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

const (
	// HeaderVisitorID 客户端可通过该头提交指纹，优先于请求体
	HeaderVisitorID = "X-Visitor-ID"

	// MaxBodyBytes 请求体大小上限
	MaxBodyBytes = 64 << 10
)

// Request 通过校验的配额请求
type Request struct {
	Fingerprint       Fingerprint
	Address           string
	VerificationToken string
}

type requestBody struct {
	Fingerprint       json.RawMessage `json:"fingerprint"`
	VerificationToken *string         `json:"verificationToken"`
}

// DecodeRequest 解析并校验 POST 请求
//
// 地址只从请求头解析，从不取自请求体。请求体读取后被恢复，
// 下游处理器（Protect 中间件保护的业务接口）仍可读取。
func (r *Resolver) DecodeRequest(req *http.Request) (Request, error) {
	body, err := readBody(req)
	if err != nil {
		return Request{}, err
	}

	var parsed requestBody
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) && typeErr.Field == "verificationToken" {
				return Request{}, invalid(CodeBodyMalformed, "verificationToken must be a string")
			}
			return Request{}, invalid(CodeBodyMalformed, err.Error())
		}
	}

	var fp Fingerprint
	if header := strings.TrimSpace(req.Header.Get(HeaderVisitorID)); header != "" {
		fp, err = ValidateFingerprintString(header)
	} else {
		fp, err = ValidateFingerprint(parsed.Fingerprint)
	}
	if err != nil {
		return Request{}, err
	}

	out := Request{Fingerprint: fp, Address: r.Resolve(req)}
	if parsed.VerificationToken != nil {
		out.VerificationToken = strings.TrimSpace(*parsed.VerificationToken)
	}
	return out, nil
}

// DecodeQuery 解析只读查询：指纹来自 X-Visitor-ID 头或 fingerprint 查询参数
//
// 头优先，与 DecodeRequest 一致，查询与判定总是针对同一个身份。
func (r *Resolver) DecodeQuery(req *http.Request) (Request, error) {
	raw := strings.TrimSpace(req.Header.Get(HeaderVisitorID))
	if raw == "" {
		raw = req.URL.Query().Get("fingerprint")
	}
	fp, err := ValidateFingerprintString(raw)
	if err != nil {
		return Request{}, err
	}
	return Request{Fingerprint: fp, Address: r.Resolve(req)}, nil
}

func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, MaxBodyBytes+1))
	_ = req.Body.Close()
	if err != nil {
		return nil, invalid(CodeBodyMalformed, err.Error())
	}
	if len(body) > MaxBodyBytes {
		return nil, invalid(CodeBodyTooLarge, "")
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
