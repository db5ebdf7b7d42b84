package maker

import (
	"time"

	"github.com/makerbot/gomaker/internal/domain"
	"github.com/makerbot/gomaker/internal/events"
	"github.com/makerbot/gomaker/pkg/sdk/websocket"
)

// runLoop 控制环事件循环，所有状态变更在此串行执行
func (c *Controller) runLoop() {
	defer close(c.doneC)

	safetyTicker := time.NewTicker(c.cfg.SafetyInterval)
	defer safetyTicker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return

		case <-c.priceSig.C():
			snap := c.takeSnapshot()
			if snap != nil {
				c.evaluate(snap)
			}

		case update, ok := <-c.feed.OrderUpdates():
			if !ok {
				continue
			}
			c.onOrderUpdate(update)

		case ev, ok := <-c.feed.Events():
			if !ok {
				continue
			}
			c.onConnEvent(ev)

		case <-safetyTicker.C:
			c.safetyCheck()
		}
	}
}

// evaluate 对每个新快照按固定优先级评估，命中即行动并返回。
//
// 优先级：
//  1. 并发保护：成交处理中则整体跳过
//  2. 权威持仓保护：交易所侧非零持仓视为漏掉的成交，强平
//  3. 波动闸门：gap 超阈值进入暂停，滞回带内才恢复
//  4. 穿价保护：挂单价越过对侧盘口则单侧撤改
//  5. 距离区间：挂单距离越界则单侧撤改
func (c *Controller) evaluate(snap *domain.PriceSnapshot) {
	if c.stopped() || !snap.Valid() {
		return
	}

	// 1. 成交处理中，本轮评估所依据的状态可能已过期
	if c.fillLock.Held() {
		log.Debug("成交处理中，跳过本轮价格评估")
		return
	}

	c.mu.Lock()
	c.lastMark = snap.MarkPrice
	paused := c.phase == PhasePausedVolatility
	c.mu.Unlock()

	// 2. 权威持仓保护：防御漏掉或乱序的成交通知
	pos, err := c.gateway.GetPosition(c.ctx, c.cfg.Symbol)
	if err != nil {
		log.Warnf("查询持仓失败: %v", err)
		return
	}
	if !c.isFlat(pos) {
		log.Warnf("发现非预期持仓 %s，触发强平", pos)
		c.flatten(pos, true)
		return
	}

	// 3. 波动闸门（需要 lastTradePrice）
	if snap.HasLastTrade() {
		gap := snap.GapBp()
		if paused {
			if gap.LessThan(c.cfg.resumeThresholdBp()) {
				c.mu.Lock()
				c.phase = PhaseQuoting
				c.mu.Unlock()
				log.Infof("波动回落 gap=%sbp < %sbp，恢复报价",
					gap.StringFixed(1), c.cfg.resumeThresholdBp().StringFixed(1))
				c.publish(events.Event{Type: events.TypeVolatilityResumed, Timestamp: time.Now()})
				c.quoteBothSides(snap.MarkPrice)
			}
			// 滞回带内继续等待
			return
		}
		if gap.GreaterThan(c.cfg.TargetDistanceBp) {
			log.Warnf("波动过大 gap=%sbp > %sbp，暂停报价并撤单",
				gap.StringFixed(1), c.cfg.TargetDistanceBp.StringFixed(1))
			c.mu.Lock()
			c.phase = PhasePausedVolatility
			c.mu.Unlock()
			c.cancelAllResting(c.ctx)
			c.publish(events.Event{Type: events.TypeVolatilityPaused, Timestamp: time.Now()})
			return
		}
	} else if paused {
		return
	}

	c.mu.Lock()
	buy, sell := c.buyOrder, c.sellOrder
	c.mu.Unlock()

	// 4. 穿价保护：买价 >= 最优买价 或 卖价 <= 最优卖价，该侧有立即成交风险
	if snap.HasBook() {
		if buy != nil && buy.Price.GreaterThanOrEqual(snap.BestBid) {
			log.Warnf("买单价 %s 已达最优买价 %s，撤改", buy.Price, snap.BestBid)
			c.replaceSide(domain.SideBuy, snap.MarkPrice, "spread_crossed")
			return
		}
		if sell != nil && sell.Price.LessThanOrEqual(snap.BestAsk) {
			log.Warnf("卖单价 %s 已达最优卖价 %s，撤改", sell.Price, snap.BestAsk)
			c.replaceSide(domain.SideSell, snap.MarkPrice, "spread_crossed")
			return
		}
	}

	// 5. 距离区间检查，缺失的一侧直接补挂
	if c.cfg.quotesBuy() {
		if buy == nil {
			c.placeSide(domain.SideBuy, snap.MarkPrice)
			return
		}
		if dist := distanceBp(snap.MarkPrice, buy.Price); !distanceInBand(dist, c.cfg.MinDistanceBp, c.cfg.MaxDistanceBp) {
			log.Infof("买单距离 %sbp 越界 [%s, %s]，撤改",
				dist.StringFixed(1), c.cfg.MinDistanceBp, c.cfg.MaxDistanceBp)
			c.replaceSide(domain.SideBuy, snap.MarkPrice, "distance_band")
			return
		}
	}
	if c.cfg.quotesSell() {
		if sell == nil {
			c.placeSide(domain.SideSell, snap.MarkPrice)
			return
		}
		if dist := distanceBp(snap.MarkPrice, sell.Price); !distanceInBand(dist, c.cfg.MinDistanceBp, c.cfg.MaxDistanceBp) {
			log.Infof("卖单距离 %sbp 越界 [%s, %s]，撤改",
				dist.StringFixed(1), c.cfg.MinDistanceBp, c.cfg.MaxDistanceBp)
			c.replaceSide(domain.SideSell, snap.MarkPrice, "distance_band")
			return
		}
	}
}

// onOrderUpdate 处理订单流消息，成交触发成交处理流程
func (c *Controller) onOrderUpdate(update websocket.OrderUpdate) {
	if c.stopped() {
		return
	}
	if update.Symbol != "" && update.Symbol != c.cfg.Symbol {
		return
	}

	switch update.Status {
	case domain.OrderStatusFilled:
		// 只处理在管挂单的成交。平仓单自己的延迟回报若再触发一轮
		// 平仓会凭空建仓；真正漏掉的成交由权威持仓保护兜底
		c.mu.Lock()
		known := (c.buyOrder != nil && c.matchesLocked(c.buyOrder, update)) ||
			(c.sellOrder != nil && c.matchesLocked(c.sellOrder, update))
		c.mu.Unlock()
		if !known {
			log.Warnf("成交通知不属于任何在管挂单，忽略 id=%s", update.OrderID)
			return
		}
		// 单令牌互斥：已有成交在处理则丢弃本条通知，
		// 权威持仓保护是漏单时的兜底
		if !c.fillLock.TryAcquire() {
			log.Warnf("已有成交处理在进行，丢弃成交通知 id=%s", update.OrderID)
			return
		}
		go c.handleFill(update)

	case domain.OrderStatusCanceled, domain.OrderStatusRejected:
		c.clearFinalOrder(update)

	default:
		// 挂单确认等中间态，更新缓存状态
		c.refreshOrderStatus(update)
	}
}

// clearFinalOrder 订单进入终态后清掉本地引用
func (c *Controller) clearFinalOrder(update websocket.OrderUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buyOrder != nil && c.matchesLocked(c.buyOrder, update) {
		c.buyOrder = nil
	}
	if c.sellOrder != nil && c.matchesLocked(c.sellOrder, update) {
		c.sellOrder = nil
	}
}

func (c *Controller) refreshOrderStatus(update websocket.OrderUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, o := range []*domain.Order{c.buyOrder, c.sellOrder} {
		if o == nil || !c.matchesLocked(o, update) {
			continue
		}
		o.Status = update.Status
		if o.VenueID == "" {
			o.VenueID = update.OrderID
		}
		o.FilledQuantity = update.FilledQuantity
	}
}

func (c *Controller) matchesLocked(o *domain.Order, update websocket.OrderUpdate) bool {
	if update.ClientID != "" && update.ClientID == o.ClientID {
		return true
	}
	return update.OrderID != "" && update.OrderID == o.VenueID
}

// onConnEvent 处理行情流连接事件
func (c *Controller) onConnEvent(ev websocket.ConnEvent) {
	switch ev.Kind {
	case websocket.EventReconnected:
		// 断线期间的内存订单状态不可信，全部撤掉后按新行情重挂
		log.Warn("行情流已重连，刷新全部挂单")
		if c.fillLock.Held() {
			// 成交处理结束后会用新行情重挂
			return
		}
		c.requoteAfterReconnect()

	case websocket.EventExhausted:
		c.publish(events.Event{
			Type: events.TypeMaxReconnectReached, Timestamp: time.Now(),
			Reason: "重连次数耗尽",
		})
		c.fatal("行情流重连次数耗尽，无法继续安全报价")

	case websocket.EventDisconnected:
		log.Warnf("行情流断开: %v", ev.Err)

	case websocket.EventReconnecting:
		log.Infof("行情流第 %d 次重连，等待 %v", ev.Attempt, ev.Delay)
	}
}

func (c *Controller) requoteAfterReconnect() {
	if c.stopped() {
		return
	}
	c.cancelAllResting(c.ctx)

	mark, err := c.gateway.GetMarkPrice(c.ctx, c.cfg.Symbol)
	if err != nil {
		log.Warnf("重连后获取 mark 价失败，等待行情快照: %v", err)
		return
	}
	c.mu.Lock()
	c.lastMark = mark
	paused := c.phase == PhasePausedVolatility
	c.mu.Unlock()
	if !paused {
		c.quoteBothSides(mark)
	}
}

// safetyCheck 周期巡检：对账本地持仓与交易所持仓。
// 成交处理路径以外发现非零持仓属于不变量被破坏，强平后停机。
func (c *Controller) safetyCheck() {
	if c.stopped() || c.fillLock.Held() {
		return
	}

	pos, err := c.gateway.GetPosition(c.ctx, c.cfg.Symbol)
	if err != nil {
		log.Warnf("安全巡检查询持仓失败: %v", err)
		return
	}
	if c.isFlat(pos) {
		return
	}

	log.Errorf("安全巡检发现非零持仓 %s，紧急强平并停机", pos)
	c.flatten(pos, false)
	c.fatal("安全巡检发现成交流程之外的非零持仓")
}
