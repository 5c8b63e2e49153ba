package xcollision

import (
	"errors"
	"fmt"

	"github.com/omeyang/xquota/pkg/quota/xassoc"
)

// 默认阈值
const (
	DefaultFingerprintThreshold int64 = 3
	DefaultAddressThreshold     int64 = 5
)

// ErrInvalidThreshold 阈值配置无效
var ErrInvalidThreshold = errors.New("xcollision: invalid threshold")

// Kind 冲突类型
type Kind string

const (
	// KindFingerprint 指纹冲突
	KindFingerprint Kind = "fingerprint"
	// KindAddress 地址冲突
	KindAddress Kind = "address"
)

// Signal 单个方向的判定结果
type Signal struct {
	Detected  bool
	Count     int64
	Threshold int64
}

// Result 两个方向的判定结果
type Result struct {
	Fingerprint Signal
	Address     Signal
}

// Any 任一方向检测到冲突
func (r Result) Any() bool {
	return r.Fingerprint.Detected || r.Address.Detected
}

// Kinds 返回检测到的冲突类型，地址冲突在前
func (r Result) Kinds() []Kind {
	var kinds []Kind
	if r.Address.Detected {
		kinds = append(kinds, KindAddress)
	}
	if r.Fingerprint.Detected {
		kinds = append(kinds, KindFingerprint)
	}
	return kinds
}

// Detector 冲突检测器，零值关闭全部检查
type Detector struct {
	FingerprintThreshold int64 `koanf:"fingerprint_threshold"`
	AddressThreshold     int64 `koanf:"address_threshold"`
}

// NewDetector 使用默认阈值创建检测器
func NewDetector() Detector {
	return Detector{
		FingerprintThreshold: DefaultFingerprintThreshold,
		AddressThreshold:     DefaultAddressThreshold,
	}
}

// Validate 阈值不允许为负数，0 表示关闭对应的检查
func (d Detector) Validate() error {
	if d.FingerprintThreshold < 0 {
		return fmt.Errorf("%w: fingerprint threshold %d", ErrInvalidThreshold, d.FingerprintThreshold)
	}
	if d.AddressThreshold < 0 {
		return fmt.Errorf("%w: address threshold %d", ErrInvalidThreshold, d.AddressThreshold)
	}
	return nil
}

// Evaluate 判定冲突
func (d Detector) Evaluate(counts xassoc.Counts) Result {
	return Result{
		Fingerprint: signal(counts.FingerprintPeers, d.FingerprintThreshold),
		Address:     signal(counts.AddressPeers, d.AddressThreshold),
	}
}

func signal(count, threshold int64) Signal {
	return Signal{
		Detected:  threshold > 0 && count >= threshold,
		Count:     count,
		Threshold: threshold,
	}
}
