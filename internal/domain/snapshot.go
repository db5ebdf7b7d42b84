package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSnapshot 行情快照
//
// 每条行情消息生成一个新的快照，构造后不可变：后续消息只会替换整个快照，
// 不会修改已有字段。LastTradePrice/BestBid/BestAsk 为可选字段，
// 缺失时为零值（IsZero）。
type PriceSnapshot struct {
	Symbol         string
	MarkPrice      decimal.Decimal
	LastTradePrice decimal.Decimal
	BestBid        decimal.Decimal
	BestAsk        decimal.Decimal
	ObservedAt     time.Time
}

// Valid 快照是否可用于决策（标记价格必须为正）
func (s PriceSnapshot) Valid() bool {
	return s.MarkPrice.IsPositive()
}

// HasLastTrade 是否带有最新成交价
func (s PriceSnapshot) HasLastTrade() bool {
	return s.LastTradePrice.IsPositive()
}

// HasBook 是否带有买一/卖一
func (s PriceSnapshot) HasBook() bool {
	return s.BestBid.IsPositive() && s.BestAsk.IsPositive()
}

// GapBp 返回 |lastTrade − mark| / mark 的基点数。
// 没有最新成交价时返回 0。
func (s PriceSnapshot) GapBp() decimal.Decimal {
	if !s.HasLastTrade() || !s.MarkPrice.IsPositive() {
		return decimal.Zero
	}
	return s.LastTradePrice.Sub(s.MarkPrice).Abs().
		Div(s.MarkPrice).
		Mul(decimal.NewFromInt(10000))
}
