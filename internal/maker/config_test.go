package maker

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestConfigDefaults(t *testing.T) {
	c := &Config{
		Symbol:    "BTC-PERP",
		OrderSize: d("0.01"),
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("校验失败: %v", err)
	}

	if c.Mode != ModeBoth {
		t.Fatalf("默认模式应为 both, 实际 %s", c.Mode)
	}
	if c.TargetDistanceBp.String() != "20" {
		t.Fatalf("默认目标距离应为 20bp, 实际 %s", c.TargetDistanceBp)
	}
	if c.ResumeRatio != 0.8 {
		t.Fatalf("默认恢复比例应为 0.8, 实际 %v", c.ResumeRatio)
	}
	if c.FillCooldown != 10*time.Second {
		t.Fatalf("默认冷却应为 10s, 实际 %v", c.FillCooldown)
	}
	if c.PositionEpsilon.String() != "0.0001" {
		t.Fatalf("默认持仓容差应为 0.0001, 实际 %s", c.PositionEpsilon)
	}
}

func TestConfigResumeThreshold(t *testing.T) {
	c := &Config{
		Symbol:           "BTC-PERP",
		OrderSize:        d("0.01"),
		TargetDistanceBp: decimal.NewFromInt(20),
		ResumeRatio:      0.8,
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("校验失败: %v", err)
	}
	if c.resumeThresholdBp().String() != "16" {
		t.Fatalf("恢复阈值应为 16bp, 实际 %s", c.resumeThresholdBp())
	}
}

func TestConfigRejectsInvalid(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"空 symbol", func(c *Config) { c.Symbol = "" }},
		{"未知模式", func(c *Config) { c.Mode = "hedge" }},
		{"订单数量为零", func(c *Config) { c.OrderSize = decimal.Zero }},
		{"距离区间颠倒", func(c *Config) {
			c.MinDistanceBp = decimal.NewFromInt(30)
			c.MaxDistanceBp = decimal.NewFromInt(10)
		}},
		{"目标距离越界", func(c *Config) {
			c.TargetDistanceBp = decimal.NewFromInt(50)
		}},
	}

	for _, tc := range cases {
		c := &Config{Symbol: "BTC-PERP", OrderSize: d("0.01")}
		tc.mutate(c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: 应返回错误", tc.name)
		}
	}
}

func TestConfigModeSides(t *testing.T) {
	c := &Config{Symbol: "BTC-PERP", OrderSize: d("0.01"), Mode: ModeBuyOnly}
	if err := c.Validate(); err != nil {
		t.Fatalf("校验失败: %v", err)
	}
	if !c.quotesBuy() || c.quotesSell() {
		t.Fatal("buy-only 模式应只挂买单")
	}

	c = &Config{Symbol: "BTC-PERP", OrderSize: d("0.01"), Mode: ModeSellOnly}
	if err := c.Validate(); err != nil {
		t.Fatalf("校验失败: %v", err)
	}
	if c.quotesBuy() || !c.quotesSell() {
		t.Fatal("sell-only 模式应只挂卖单")
	}
}
