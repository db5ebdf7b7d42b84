package domain

import (
	"github.com/shopspring/decimal"
)

// RoundToTick 把价格对齐到 tick。
//
// 取整方向选择不增加成交风险的一侧：买单向下取整（离盘口更远），
// 卖单向上取整。tick 非正时原样返回。
func RoundToTick(price, tick decimal.Decimal, side Side) decimal.Decimal {
	if !tick.IsPositive() {
		return price
	}
	steps := price.Div(tick)
	if side == SideBuy {
		steps = steps.Floor()
	} else {
		steps = steps.Ceil()
	}
	return steps.Mul(tick)
}

// CrossingPrice 返回能立即吃掉对手盘的激进限价。
//
// 平仓用：买入平仓挂在卖一之上，卖出平仓挂在买一之下，
// offsetTicks 控制穿越深度（>=1）。
func CrossingPrice(side Side, bestBid, bestAsk, tick decimal.Decimal, offsetTicks int64) decimal.Decimal {
	if offsetTicks < 1 {
		offsetTicks = 1
	}
	offset := tick.Mul(decimal.NewFromInt(offsetTicks))
	if side == SideBuy {
		return bestAsk.Add(offset)
	}
	price := bestBid.Sub(offset)
	if !price.IsPositive() {
		price = tick
	}
	return price
}
