package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 应用配置。
// 一次性从配置文件构造，之后只读；所有阈值都是显式命名字段，
// 不存在隐式的全局可变配置。
type Config struct {
	Venue      VenueConfig      `yaml:"venue"`
	Auth       AuthConfig       `yaml:"auth"`
	Instrument InstrumentConfig `yaml:"instrument"`
	Maker      MakerConfig      `yaml:"maker"`
	Feed       FeedConfig       `yaml:"feed"`
	Risk       RiskConfig       `yaml:"risk"`
	Notify     NotifyConfig     `yaml:"notify"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
	DataDir  string `yaml:"data_dir"` // 持久化目录（计数器等）
	DryRun   bool   `yaml:"dry_run"`  // 纸交易模式：不发真实订单，只打日志
}

// VenueConfig 交易所接入点配置
type VenueConfig struct {
	RestURL string `yaml:"rest_url"`
	WsURL   string `yaml:"ws_url"`
}

// AuthConfig 认证配置。
// 签名私钥优先从 secret store 读取，其次读 SigningKey 字段
// （支持环境变量展开，如 ${MAKER_SIGNING_KEY}）。
type AuthConfig struct {
	SigningKey           string `yaml:"signing_key"`
	SecretStorePath      string `yaml:"secret_store_path"`
	SecretStoreEncKeyEnv string `yaml:"secret_store_enc_key_env"` // 存放 32 字节加密 key 的环境变量名
}

// InstrumentConfig 标的配置
type InstrumentConfig struct {
	Symbol           string `yaml:"symbol"`             // 例如 BTC-USDT-PERP
	TickSize         string `yaml:"tick_size"`          // 最小价格单位（字符串形式的 decimal）
	CloseOffsetTicks int64  `yaml:"close_offset_ticks"` // 平仓穿越盘口的 tick 数
}

// MakerConfig 做市控制环参数（基点口径）。
// 校验与默认值在 internal/maker 的 Config.Validate 中处理。
type MakerConfig struct {
	Mode                string  `yaml:"mode"`       // both / buy-only / sell-only
	OrderSize           string  `yaml:"order_size"` // 每侧挂单数量
	TargetDistanceBp    float64 `yaml:"target_distance_bp"`
	MinDistanceBp       float64 `yaml:"min_distance_bp"`
	MaxDistanceBp       float64 `yaml:"max_distance_bp"`
	ResumeRatio         float64 `yaml:"resume_ratio"`          // 波动暂停恢复阈值比例（滞回带）
	FillCooldownSeconds int     `yaml:"fill_cooldown_seconds"` // 成交后重新挂单前的冷却
	RequoteDelaySeconds int     `yaml:"requote_delay_seconds"` // flatten 成功后重新挂单的延迟
	SafetyIntervalSecs  int     `yaml:"safety_interval_seconds"`
	PositionEpsilon     string  `yaml:"position_epsilon"` // "有效为零"持仓容差
}

// FeedConfig 行情流配置
type FeedConfig struct {
	BaseReconnectDelayMs int `yaml:"base_reconnect_delay_ms"`
	MaxReconnectDelayMs  int `yaml:"max_reconnect_delay_ms"`
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`
	PingIntervalSeconds  int `yaml:"ping_interval_seconds"`
}

// RiskConfig 风控配置
type RiskConfig struct {
	MaxConsecutiveErrors int64 `yaml:"max_consecutive_errors"`
}

// NotifyConfig 通知配置
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// DashboardConfig 终端面板配置
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoadFromFile 从 YAML 文件加载配置
func LoadFromFile(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("配置文件路径为空")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	// 支持 ${ENV_VAR} 展开，私钥等敏感值不必写进文件
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Instrument.TickSize == "" {
		c.Instrument.TickSize = "0.1"
	}
	if c.Instrument.CloseOffsetTicks <= 0 {
		c.Instrument.CloseOffsetTicks = 1
	}
	if c.Feed.BaseReconnectDelayMs <= 0 {
		c.Feed.BaseReconnectDelayMs = 1000
	}
	if c.Feed.MaxReconnectDelayMs <= 0 {
		c.Feed.MaxReconnectDelayMs = 30000
	}
	if c.Feed.MaxReconnectAttempts <= 0 {
		c.Feed.MaxReconnectAttempts = 10
	}
	if c.Feed.PingIntervalSeconds <= 0 {
		c.Feed.PingIntervalSeconds = 10
	}
	if c.Risk.MaxConsecutiveErrors <= 0 {
		c.Risk.MaxConsecutiveErrors = 5
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Venue.RestURL) == "" {
		return fmt.Errorf("venue.rest_url 不能为空")
	}
	if strings.TrimSpace(c.Venue.WsURL) == "" {
		return fmt.Errorf("venue.ws_url 不能为空")
	}
	if strings.TrimSpace(c.Instrument.Symbol) == "" {
		return fmt.Errorf("instrument.symbol 不能为空")
	}
	return nil
}
