package maker

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	appconfig "github.com/makerbot/gomaker/pkg/config"
)

// 交易模式
const (
	ModeBoth     = "both"
	ModeBuyOnly  = "buy-only"
	ModeSellOnly = "sell-only"
)

// Config 做市控制环配置。
//
// 设计目标：
// - 全参数显式字段，构造后不再修改，直接传入 Controller
// - 所有距离阈值用基点（bp）口径
// - 默认值偏保守，适合先在 dry-run 模式跑起来
type Config struct {
	Symbol string

	// Mode: both / buy-only / sell-only，未启用的一侧永远不挂单
	Mode string

	// OrderSize: 每侧挂单数量
	OrderSize decimal.Decimal

	// TickSize: 最小价格单位，买价向下取整、卖价向上取整
	TickSize decimal.Decimal
	// CloseOffsetTicks: 平仓单穿越盘口的 tick 数
	CloseOffsetTicks int64

	// TargetDistanceBp: 目标挂单距离（bp），同时是波动暂停阈值
	TargetDistanceBp decimal.Decimal
	// MinDistanceBp/MaxDistanceBp: 挂单距离允许区间，越界则撤改
	MinDistanceBp decimal.Decimal
	MaxDistanceBp decimal.Decimal

	// ResumeRatio: 波动暂停恢复阈值 = TargetDistanceBp * ResumeRatio（滞回带）
	ResumeRatio float64

	// FillCooldown: 成交后重新挂单前的冷却，避开触发成交的波动尖峰
	FillCooldown time.Duration
	// RequoteDelay: flatten 成功后重新挂单的延迟
	RequoteDelay time.Duration
	// SafetyInterval: 持仓安全巡检周期
	SafetyInterval time.Duration

	// PositionEpsilon: "有效为零"持仓容差
	PositionEpsilon decimal.Decimal
}

// Validate 填默认值并做基本校验
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config 不能为空")
	}
	if strings.TrimSpace(c.Symbol) == "" {
		return fmt.Errorf("symbol 不能为空")
	}

	switch c.Mode {
	case "":
		c.Mode = ModeBoth
	case ModeBoth, ModeBuyOnly, ModeSellOnly:
	default:
		return fmt.Errorf("未知的交易模式: %s", c.Mode)
	}

	if c.OrderSize.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("orderSize 必须 > 0")
	}
	if c.TickSize.LessThanOrEqual(decimal.Zero) {
		c.TickSize = decimal.RequireFromString("0.1")
	}
	if c.CloseOffsetTicks <= 0 {
		c.CloseOffsetTicks = 1
	}

	if c.TargetDistanceBp.LessThanOrEqual(decimal.Zero) {
		c.TargetDistanceBp = decimal.NewFromInt(20)
	}
	if c.MinDistanceBp.LessThanOrEqual(decimal.Zero) {
		c.MinDistanceBp = decimal.NewFromInt(10)
	}
	if c.MaxDistanceBp.LessThanOrEqual(decimal.Zero) {
		c.MaxDistanceBp = decimal.NewFromInt(30)
	}
	if c.MinDistanceBp.GreaterThanOrEqual(c.MaxDistanceBp) {
		return fmt.Errorf("minDistanceBp 必须 < maxDistanceBp")
	}
	if c.TargetDistanceBp.LessThan(c.MinDistanceBp) || c.TargetDistanceBp.GreaterThan(c.MaxDistanceBp) {
		return fmt.Errorf("targetDistanceBp 必须在 [minDistanceBp, maxDistanceBp] 区间内")
	}

	if c.ResumeRatio <= 0 || c.ResumeRatio >= 1 {
		c.ResumeRatio = 0.8
	}
	if c.FillCooldown <= 0 {
		c.FillCooldown = 10 * time.Second
	}
	if c.RequoteDelay <= 0 {
		c.RequoteDelay = 2 * time.Second
	}
	if c.SafetyInterval <= 0 {
		c.SafetyInterval = 5 * time.Second
	}
	if c.PositionEpsilon.LessThanOrEqual(decimal.Zero) {
		c.PositionEpsilon = decimal.RequireFromString("0.0001")
	}
	return nil
}

// resumeThresholdBp 波动暂停的恢复阈值（bp）
func (c *Config) resumeThresholdBp() decimal.Decimal {
	return c.TargetDistanceBp.Mul(decimal.NewFromFloat(c.ResumeRatio))
}

// quotesBuy/quotesSell 该模式下是否挂对应方向
func (c *Config) quotesBuy() bool  { return c.Mode != ModeSellOnly }
func (c *Config) quotesSell() bool { return c.Mode != ModeBuyOnly }

// FromAppConfig 从文件配置构造 maker 配置（解析 decimal 字符串字段）
func FromAppConfig(ac *appconfig.Config) (*Config, error) {
	c := &Config{
		Symbol:           ac.Instrument.Symbol,
		Mode:             ac.Maker.Mode,
		CloseOffsetTicks: ac.Instrument.CloseOffsetTicks,
		TargetDistanceBp: decimal.NewFromFloat(ac.Maker.TargetDistanceBp),
		MinDistanceBp:    decimal.NewFromFloat(ac.Maker.MinDistanceBp),
		MaxDistanceBp:    decimal.NewFromFloat(ac.Maker.MaxDistanceBp),
		ResumeRatio:      ac.Maker.ResumeRatio,
		FillCooldown:     time.Duration(ac.Maker.FillCooldownSeconds) * time.Second,
		RequoteDelay:     time.Duration(ac.Maker.RequoteDelaySeconds) * time.Second,
		SafetyInterval:   time.Duration(ac.Maker.SafetyIntervalSecs) * time.Second,
	}

	var err error
	if c.OrderSize, err = decimal.NewFromString(ac.Maker.OrderSize); err != nil {
		return nil, fmt.Errorf("order_size 非法: %q", ac.Maker.OrderSize)
	}
	if c.TickSize, err = decimal.NewFromString(ac.Instrument.TickSize); err != nil {
		return nil, fmt.Errorf("tick_size 非法: %q", ac.Instrument.TickSize)
	}
	if ac.Maker.PositionEpsilon != "" {
		if c.PositionEpsilon, err = decimal.NewFromString(ac.Maker.PositionEpsilon); err != nil {
			return nil, fmt.Errorf("position_epsilon 非法: %q", ac.Maker.PositionEpsilon)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
