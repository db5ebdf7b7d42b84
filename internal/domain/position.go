package domain

import (
	"github.com/shopspring/decimal"
)

// Position 单一标的的带符号净持仓
//
// 正数为净多头，负数为净空头。只能通过已确认的成交或平仓修改；
// 在重新挂单之前必须回到零（epsilon 容差内）。
type Position struct {
	Symbol   string
	Quantity decimal.Decimal
}

// IsFlat 持仓是否在容差范围内为零。
// epsilon 与交易所最小交易单位相关，由配置给出。
func (p Position) IsFlat(epsilon decimal.Decimal) bool {
	return p.Quantity.Abs().LessThanOrEqual(epsilon.Abs())
}

// CloseSide 返回把持仓打平所需的方向。
// 净多头需要卖出，净空头需要买入；已打平时返回空字符串。
func (p Position) CloseSide() Side {
	switch {
	case p.Quantity.IsPositive():
		return SideSell
	case p.Quantity.IsNegative():
		return SideBuy
	default:
		return ""
	}
}

// Apply 返回按成交方向累加后的新持仓（原值不变）
func (p Position) Apply(side Side, qty decimal.Decimal) Position {
	return Position{
		Symbol:   p.Symbol,
		Quantity: p.Quantity.Add(side.SignedQty(qty)),
	}
}
