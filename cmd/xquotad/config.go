package main

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/xquota/pkg/config/xconf"
	"github.com/omeyang/xquota/pkg/observability/xlog"
	"github.com/omeyang/xquota/pkg/quota/xidentity"
	"github.com/omeyang/xquota/pkg/quota/xquota"
	"github.com/omeyang/xquota/pkg/quota/xstore"
	"github.com/omeyang/xquota/pkg/quota/xsweep"
	"github.com/omeyang/xquota/pkg/quota/xverify"
	"github.com/omeyang/xquota/pkg/resilience/xlimit"
	"github.com/omeyang/xquota/pkg/resilience/xretry"
)

// 存储驱动
const (
	driverRedis  = "redis"
	driverMemory = "memory"
)

// errInvalidConfig 配置文件内容非法
var errInvalidConfig = errors.New("xquotad: invalid config")

// Config xquotad 配置文件结构
type Config struct {
	// Timezone 配额自然日所在时区，IANA 名称或 Local，默认 Local（进程本地时区）
	Timezone string `koanf:"timezone"`

	Server   ServerConfig     `koanf:"server"`
	Log      LogConfig        `koanf:"log"`
	Store    StoreConfig      `koanf:"store"`
	Identity xidentity.Config `koanf:"identity"`
	Quota    xquota.Policy    `koanf:"quota"`
	Verify   VerifyConfig     `koanf:"verify"`
	Burst    xlimit.Config    `koanf:"burst"`
	Sweep    SweepConfig      `koanf:"sweep"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig 日志配置，level 支持热更新
type LogConfig struct {
	Level    string              `koanf:"level"`
	Format   string              `koanf:"format"`
	Rotation xlog.RotationConfig `koanf:"rotation"`
	// BlockedSampleRate 拦截日志按指纹一致性采样的比率，1 表示全部记录
	BlockedSampleRate float64 `koanf:"blocked_sample_rate"`
}

// StoreConfig 计数存储配置
type StoreConfig struct {
	Driver string      `koanf:"driver"`
	Prefix string      `koanf:"prefix"`
	Redis  RedisConfig `koanf:"redis"`

	// Connect 启动时 PING 的重试参数
	Connect xretry.Config `koanf:"connect"`

	// PurgeInterval memory 驱动清理过期条目的周期
	PurgeInterval time.Duration `koanf:"purge_interval"`
}

// RedisConfig Redis 连接配置，多个地址时使用集群客户端
type RedisConfig struct {
	Addrs        []string      `koanf:"addrs"`
	Username     string        `koanf:"username"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// VerifyConfig 人机验证配置
type VerifyConfig struct {
	Enabled bool `koanf:"enabled"`
	// FailurePolicy 验证服务故障时的处理方式
	FailurePolicy xquota.FailurePolicy `koanf:"failure_policy"`
	Turnstile     xverify.Config       `koanf:"turnstile"`
}

// SweepConfig 过期巡检配置，仅 redis 驱动生效
type SweepConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Schedule  string        `koanf:"schedule"`
	LockTTL   time.Duration `koanf:"lock_ttl"`
	Timeout   time.Duration `koanf:"timeout"`
	BatchSize int64         `koanf:"batch_size"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Timezone: "Local",
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json", BlockedSampleRate: 1},
		Store: StoreConfig{
			Driver: driverRedis,
			Prefix: xstore.DefaultPrefix,
			Redis: RedisConfig{
				Addrs:        []string{"127.0.0.1:6379"},
				DialTimeout:  3 * time.Second,
				ReadTimeout:  time.Second,
				WriteTimeout: time.Second,
			},
			Connect:       xretry.Config{Attempts: 5, InitialDelay: 200 * time.Millisecond, MaxDelay: 3 * time.Second},
			PurgeInterval: time.Minute,
		},
		Quota: xquota.DefaultPolicy(),
		Verify: VerifyConfig{
			FailurePolicy: xquota.FailClose,
			Turnstile:     xverify.DefaultConfig(),
		},
		Burst: xlimit.DefaultConfig(),
		Sweep: SweepConfig{
			Enabled:   true,
			Schedule:  "@every 10m",
			LockTTL:   5 * time.Minute,
			Timeout:   4 * time.Minute,
			BatchSize: xsweep.DefaultBatchSize,
		},
	}
}

// Validate 校验全部配置段
func (c Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.ShutdownTimeout < 0 {
		return errors.New("server.shutdown_timeout must not be negative")
	}
	if _, err := xlog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if math.IsNaN(c.Log.BlockedSampleRate) || c.Log.BlockedSampleRate < 0 || c.Log.BlockedSampleRate > 1 {
		return fmt.Errorf("log.blocked_sample_rate must be in [0, 1], got %v", c.Log.BlockedSampleRate)
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if _, err := xidentity.New(c.Identity); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if err := c.Quota.Validate(); err != nil {
		return fmt.Errorf("quota: %w", err)
	}
	if err := c.Verify.validate(); err != nil {
		return err
	}
	if err := c.Burst.Validate(); err != nil {
		return fmt.Errorf("burst: %w", err)
	}
	return c.Sweep.validate()
}

func (s StoreConfig) validate() error {
	switch s.Driver {
	case driverRedis:
		if len(s.Redis.Addrs) == 0 {
			return errors.New("store.redis.addrs is required")
		}
	case driverMemory:
		if s.PurgeInterval <= 0 {
			return errors.New("store.purge_interval must be positive")
		}
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", driverRedis, driverMemory, s.Driver)
	}
	if err := s.Connect.Validate(); err != nil {
		return fmt.Errorf("store.connect: %w", err)
	}
	return nil
}

func (v VerifyConfig) validate() error {
	switch v.FailurePolicy {
	case xquota.FailClose, xquota.FailOpen:
	default:
		return fmt.Errorf("verify.failure_policy must be %q or %q", xquota.FailClose, xquota.FailOpen)
	}
	if !v.Enabled {
		return nil
	}
	if err := v.Turnstile.Validate(); err != nil {
		return fmt.Errorf("verify.turnstile: %w", err)
	}
	return nil
}

func (s SweepConfig) validate() error {
	if !s.Enabled {
		return nil
	}
	if _, err := cron.ParseStandard(s.Schedule); err != nil {
		return fmt.Errorf("sweep.schedule %q: %w", s.Schedule, err)
	}
	if s.BatchSize <= 0 {
		return errors.New("sweep.batch_size must be positive")
	}
	if s.Timeout < 0 || s.LockTTL < 0 {
		return errors.New("sweep.timeout and sweep.lock_ttl must not be negative")
	}
	return nil
}

// loadConfig 读取并校验配置文件，返回的 xconf.Config 用于后续热更新
func loadConfig(path string) (xconf.Config, *Config, error) {
	src, err := xconf.New(path)
	if err != nil {
		return nil, nil, err
	}
	cfg := DefaultConfig()
	if err := xconf.Load(src, "", &cfg); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", errInvalidConfig, err)
	}
	return src, &cfg, nil
}

// location 返回已校验过的时区
func (c Config) location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
