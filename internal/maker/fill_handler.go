package maker

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/makerbot/gomaker/internal/domain"
	"github.com/makerbot/gomaker/internal/events"
	"github.com/makerbot/gomaker/pkg/sdk/websocket"
)

// handleFill 成交处理流程，调用时必须已持有 fillLock。
//
// 步骤：更新持仓 -> 通知观察者 -> 撤掉残余挂单 -> 穿价单平掉成交数量
// -> 冷却 -> 复核持仓为零 -> 用新拉取的 mark 价重挂该侧。
// 平仓失败是致命错误，停机等待人工介入。
func (c *Controller) handleFill(update websocket.OrderUpdate) {
	defer c.fillLock.Release()

	if c.stopped() {
		return
	}

	filledQty := update.FilledQuantity
	if filledQty.LessThanOrEqual(decimal.Zero) {
		filledQty = update.Quantity
	}
	log.Warnf("订单成交: side=%s qty=%s price=%s id=%s",
		update.Side, filledQty, update.Price, update.OrderID)

	// 1. 按成交方向更新本地持仓，清掉成交订单的槽位
	c.mu.Lock()
	pos := domain.Position{Symbol: c.cfg.Symbol, Quantity: c.position}
	pos = pos.Apply(update.Side, filledQty)
	c.position = pos.Quantity
	c.counters.Filled++
	if c.buyOrder != nil && c.matchesLocked(c.buyOrder, update) {
		c.buyOrder = nil
	}
	if c.sellOrder != nil && c.matchesLocked(c.sellOrder, update) {
		c.sellOrder = nil
	}
	c.mu.Unlock()

	// 2. 通知观察者
	c.publish(events.Event{
		Type: events.TypeTradeExecuted, Timestamp: time.Now(),
		Side: update.Side, Quantity: filledQty,
	})
	c.publish(events.Event{
		Type: events.TypePositionUpdated, Timestamp: time.Now(),
		Quantity: pos.Quantity,
	})

	// 3. 防御性撤掉还在挂着的订单，防止对侧被二次成交
	c.cancelAllResting(c.ctx)

	// 4. 按成交的确切数量穿价平仓
	if err := c.closePosition(pos.Quantity); err != nil {
		c.fatal("成交后平仓失败，需要人工介入: " + err.Error())
		return
	}

	// 5. 平仓成功，本地持仓归零
	c.mu.Lock()
	c.position = decimal.Zero
	c.mu.Unlock()
	c.publish(events.Event{
		Type: events.TypePositionUpdated, Timestamp: time.Now(),
		Quantity: decimal.Zero,
	})
	c.persistCounters()

	// 6. 冷却，避免重新挂进触发成交的同一波动
	select {
	case <-c.ctx.Done():
		return
	case <-time.After(c.cfg.FillCooldown):
	}
	if c.stopped() {
		return
	}

	// 复核持仓仍为零
	authoritative, err := c.gateway.GetPosition(c.ctx, c.cfg.Symbol)
	if err != nil {
		log.Warnf("冷却后查询持仓失败，等待下一轮评估: %v", err)
		return
	}
	if !c.isFlat(authoritative) {
		log.Warnf("冷却后持仓非零 %s，再次强平", authoritative)
		if err := c.closePosition(authoritative); err != nil {
			c.fatal("冷却后二次强平失败: " + err.Error())
		}
		return
	}

	// 用新拉取的参考价重挂，不用缓存的旧价
	mark, err := c.gateway.GetMarkPrice(c.ctx, c.cfg.Symbol)
	if err != nil {
		log.Warnf("成交后获取 mark 价失败，等待行情快照: %v", err)
		return
	}
	c.mu.Lock()
	c.lastMark = mark
	paused := c.phase == PhasePausedVolatility
	c.mu.Unlock()
	if paused {
		return
	}

	if update.Side == domain.SideBuy && c.cfg.quotesBuy() {
		c.placeSide(domain.SideBuy, mark)
	} else if update.Side == domain.SideSell && c.cfg.quotesSell() {
		c.placeSide(domain.SideSell, mark)
	}
}
