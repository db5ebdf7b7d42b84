package maker

import (
	"github.com/shopspring/decimal"

	"github.com/makerbot/gomaker/internal/domain"
)

var bpUnit = decimal.NewFromInt(10000)

// quotePrice 由 mark 价推导目标挂单价：
//
//	buyPrice  = mark * (1 - targetBp/10000)，向下取整到 tick
//	sellPrice = mark * (1 + targetBp/10000)，向上取整到 tick
//
// 取整方向选不增加成交风险的一侧。
func quotePrice(mark decimal.Decimal, side domain.Side, targetBp, tick decimal.Decimal) decimal.Decimal {
	ratio := targetBp.Div(bpUnit)
	var raw decimal.Decimal
	if side == domain.SideBuy {
		raw = mark.Mul(decimal.NewFromInt(1).Sub(ratio))
	} else {
		raw = mark.Mul(decimal.NewFromInt(1).Add(ratio))
	}
	return domain.RoundToTick(raw, tick, side)
}

// distanceBp 挂单价到 mark 价的距离（bp）: |mark - price| / price * 10000
func distanceBp(mark, orderPrice decimal.Decimal) decimal.Decimal {
	if orderPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return mark.Sub(orderPrice).Abs().Div(orderPrice).Mul(bpUnit)
}

// distanceInBand 距离是否落在 [minBp, maxBp] 区间内
func distanceInBand(dist, minBp, maxBp decimal.Decimal) bool {
	return dist.GreaterThanOrEqual(minBp) && dist.LessThanOrEqual(maxBp)
}
