package xassoc

import (
	"errors"
	"fmt"
	"time"
)

// Mode 关联窗口模式
type Mode string

const (
	// ModeSliding 写入刷新整个集合的 TTL
	ModeSliding Mode = "sliding"
	// ModeRolling 按成员时间戳裁剪
	ModeRolling Mode = "rolling"
)

// Direction 记录哪些方向的关联
type Direction string

const (
	// DirectionBoth 双向记录
	DirectionBoth Direction = "both"
	// DirectionFingerprint 只记录指纹 → 地址
	DirectionFingerprint Direction = "fingerprint"
	// DirectionAddress 只记录地址 → 指纹
	DirectionAddress Direction = "address"
)

// DefaultWindow 默认关联窗口
const DefaultWindow = time.Hour

var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("xassoc: invalid config")

	// ErrWindowUnsupported 存储不支持滚动窗口
	ErrWindowUnsupported = errors.New("xassoc: store does not support rolling windows")
)

// Config 关联跟踪配置
type Config struct {
	Window        time.Duration `koanf:"window"`
	Mode          Mode          `koanf:"mode"`
	Direction     Direction     `koanf:"direction"`
	SelfInclusive bool          `koanf:"self_inclusive"`
}

// DefaultConfig 返回默认配置：1 小时滑动窗口、双向、计入自身
func DefaultConfig() Config {
	return Config{
		Window:        DefaultWindow,
		Mode:          ModeSliding,
		Direction:     DirectionBoth,
		SelfInclusive: true,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be positive", ErrInvalidConfig)
	}
	switch c.Mode {
	case ModeSliding, ModeRolling:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	switch c.Direction {
	case DirectionBoth, DirectionFingerprint, DirectionAddress:
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidConfig, c.Direction)
	}
	return nil
}

func (c Config) tracksFingerprint() bool {
	return c.Direction == DirectionBoth || c.Direction == DirectionFingerprint
}

func (c Config) tracksAddress() bool {
	return c.Direction == DirectionBoth || c.Direction == DirectionAddress
}
