package maker

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/makerbot/gomaker/internal/domain"
	"github.com/makerbot/gomaker/internal/events"
)

// flatten 强平流程：撤掉所有挂单，用激进穿价单把持仓打回零。
// 启动校验、权威持仓保护和紧急恢复共用此流程。
// 平仓失败是致命错误，绝不自动重试（重试可能放大未对冲敞口）。
func (c *Controller) flatten(observed decimal.Decimal, requote bool) {
	if c.stopped() {
		return
	}

	c.cancelAllResting(c.ctx)

	if err := c.closePosition(observed); err != nil {
		c.fatal(errors.Wrap(err, "强平失败").Error())
		return
	}

	c.mu.Lock()
	c.position = decimal.Zero
	c.mu.Unlock()
	c.publish(events.Event{
		Type: events.TypePositionUpdated, Timestamp: time.Now(),
		Quantity: decimal.Zero,
	})
	log.Infof("强平完成，持仓已归零")

	if !requote {
		return
	}

	// 稍等片刻再重挂，避开触发异常持仓的行情
	select {
	case <-c.ctx.Done():
		return
	case <-time.After(c.cfg.RequoteDelay):
	}
	if c.stopped() {
		return
	}

	mark, err := c.gateway.GetMarkPrice(c.ctx, c.cfg.Symbol)
	if err != nil {
		log.Warnf("强平后获取 mark 价失败，等待行情快照: %v", err)
		return
	}
	c.mu.Lock()
	c.lastMark = mark
	c.mu.Unlock()
	c.quoteBothSides(mark)
}

// closePosition 用激进限价单平掉指定持仓，定价穿越盘口保证立即成交
func (c *Controller) closePosition(qty decimal.Decimal) error {
	pos := domain.Position{Symbol: c.cfg.Symbol, Quantity: qty}
	side := pos.CloseSide()
	if side == "" {
		return nil
	}

	bid, ask, err := c.gateway.GetBestBidAsk(c.ctx, c.cfg.Symbol)
	if err != nil {
		return errors.Wrap(err, "获取盘口失败")
	}
	price := domain.CrossingPrice(side, bid, ask, c.cfg.TickSize, c.cfg.CloseOffsetTicks)

	order, err := c.gateway.PlaceAggressiveOrder(c.ctx, c.cfg.Symbol, side, qty.Abs(), price)
	if err != nil {
		return errors.Wrap(err, "平仓单下单失败")
	}
	if order.Status != domain.OrderStatusFilled {
		return errors.Errorf("平仓单未成交: status=%s", order.Status)
	}

	log.Infof("平仓成功: side=%s qty=%s price=%s", side, qty.Abs(), price)
	return nil
}
