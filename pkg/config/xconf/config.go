package xconf

import (
	"fmt"

	"github.com/knadh/koanf/v2"
)

// Format 定义配置文件格式。
type Format string

// 支持的配置格式。
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Config 定义配置接口。
type Config interface {
	// Client 返回底层的 koanf 实例。
	Client() *koanf.Koanf

	// Unmarshal 将指定路径的配置反序列化到目标结构体。
	// path 为空字符串时反序列化整个配置。
	Unmarshal(path string, target any) error

	// Reload 重新读取配置文件，并发安全。
	// 从字节数据创建的 Config 返回 [ErrNotFileBacked]。
	Reload() error

	// Path 返回配置文件路径，从字节数据创建时为空。
	Path() string

	// Format 返回配置格式。
	Format() Format
}

// Validator 由需要启动期校验的配置结构体实现
type Validator interface {
	Validate() error
}

// Load 反序列化 path 下的配置，target 实现 [Validator] 时随后校验
//
// 调用方应先在 target 中填好默认值：配置文件只覆盖出现的字段。
func Load(cfg Config, path string, target any) error {
	if err := cfg.Unmarshal(path, target); err != nil {
		return err
	}
	if v, ok := target.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, sectionName(path), err)
		}
	}
	return nil
}

func sectionName(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}
