package maker

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/makerbot/gomaker/internal/domain"
	"github.com/makerbot/gomaker/internal/events"
	"github.com/makerbot/gomaker/internal/risk"
	"github.com/makerbot/gomaker/pkg/persistence"
	"github.com/makerbot/gomaker/pkg/sdk/websocket"
	"github.com/makerbot/gomaker/pkg/sigchan"
)

var log = logrus.WithField("component", "maker")

// OrderGateway 下单通道，由 pkg/sdk/api 实现
type OrderGateway interface {
	Authenticated() bool
	PlaceOrder(ctx context.Context, symbol string, side domain.Side, qty, price decimal.Decimal) (*domain.Order, error)
	PlaceAggressiveOrder(ctx context.Context, symbol string, side domain.Side, qty, price decimal.Decimal) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	GetPosition(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetBestBidAsk(ctx context.Context, symbol string) (bid, ask decimal.Decimal, err error)
	GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// MarketFeed 行情/订单流，由 pkg/sdk/websocket.FeedClient 实现
type MarketFeed interface {
	Subscribe(symbol string) error
	Snapshots() <-chan domain.PriceSnapshot
	OrderUpdates() <-chan websocket.OrderUpdate
	Events() <-chan websocket.ConnEvent
}

// Controller 订单生命周期控制环。
//
// 状态机: STOPPED -> STARTING -> QUOTING <-> PAUSED_VOLATILITY -> STOPPED
//
// 所有状态变更在单个事件循环内串行执行；唯一例外是成交处理，
// 由 FillLock 单令牌互斥保护，持有期间价格评估直接跳过。
type Controller struct {
	cfg     *Config
	gateway OrderGateway
	feed    MarketFeed
	bus     *events.Bus
	breaker *risk.CircuitBreaker

	mu        sync.Mutex
	phase     Phase
	buyOrder  *domain.Order
	sellOrder *domain.Order
	position  decimal.Decimal
	counters  Counters
	lastMark  decimal.Decimal

	// 最新快照由 pump 协程写入，事件循环读取；信号通道做合并
	snapMu     sync.Mutex
	latestSnap *domain.PriceSnapshot
	priceSig   *sigchan.Chan

	fillLock *FillLock

	countersStore persistence.Store

	ctx    context.Context
	cancel context.CancelFunc
	doneC  chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// New 创建控制器。breaker 与 countersStore 均可为 nil。
func New(cfg *Config, gateway OrderGateway, feed MarketFeed, bus *events.Bus, breaker *risk.CircuitBreaker, countersStore persistence.Store) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:           cfg,
		gateway:       gateway,
		feed:          feed,
		bus:           bus,
		breaker:       breaker,
		phase:         PhaseStopped,
		priceSig:      sigchan.New(1),
		fillLock:      NewFillLock(),
		countersStore: countersStore,
		doneC:         make(chan struct{}),
	}
	if countersStore != nil {
		var saved Counters
		if err := countersStore.Load(&saved); err == nil {
			c.counters = saved
		} else if err != persistence.ErrNotExists {
			log.Warnf("加载计数器失败: %v", err)
		}
	}
	return c, nil
}

// Start 启动控制环。
// STARTING 阶段要求: 已认证的会话、收到首个行情快照、确认持仓为零
// （非零则先 flatten），全部满足后进入 QUOTING 并挂出双边订单。
func (c *Controller) Start(ctx context.Context) error {
	var startErr error
	c.startOnce.Do(func() {
		startErr = c.start(ctx)
	})
	return startErr
}

func (c *Controller) start(ctx context.Context) error {
	if !c.gateway.Authenticated() {
		return errors.New("会话未认证，无法启动")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	c.mu.Lock()
	c.phase = PhaseStarting
	c.mu.Unlock()

	if err := c.feed.Subscribe(c.cfg.Symbol); err != nil {
		c.mu.Lock()
		c.phase = PhaseStopped
		c.mu.Unlock()
		return errors.Wrap(err, "订阅行情失败")
	}

	// 启动快照 pump，并等待首个快照
	go c.pumpSnapshots()
	first, err := c.waitFirstSnapshot(30 * time.Second)
	if err != nil {
		c.mu.Lock()
		c.phase = PhaseStopped
		c.mu.Unlock()
		return err
	}

	// 启动前确认持仓为零，非零先强平
	pos, err := c.gateway.GetPosition(c.ctx, c.cfg.Symbol)
	if err != nil {
		c.mu.Lock()
		c.phase = PhaseStopped
		c.mu.Unlock()
		return errors.Wrap(err, "启动时查询持仓失败")
	}
	if !c.isFlat(pos) {
		log.Warnf("启动时发现非零持仓 %s，先强平", pos)
		if err := c.closePosition(pos); err != nil {
			c.mu.Lock()
			c.phase = PhaseStopped
			c.mu.Unlock()
			return errors.Wrap(err, "启动强平失败")
		}
		// 强平后等一拍再挂单，避开触发异常持仓的行情
		select {
		case <-c.ctx.Done():
			c.mu.Lock()
			c.phase = PhaseStopped
			c.mu.Unlock()
			return c.ctx.Err()
		case <-time.After(c.cfg.RequoteDelay):
		}
	}

	c.mu.Lock()
	c.phase = PhaseQuoting
	c.lastMark = first.MarkPrice
	c.mu.Unlock()

	c.quoteBothSides(first.MarkPrice)
	c.publish(events.Event{Type: events.TypeStarted, Timestamp: time.Now()})
	log.Infof("控制环已启动: symbol=%s mode=%s target=%sbp",
		c.cfg.Symbol, c.cfg.Mode, c.cfg.TargetDistanceBp)

	go c.runLoop()
	return nil
}

// Stop 停止控制环：撤掉所有挂单，保存计数，停止事件循环。
// 已发出的撤单/平仓调用允许完成，不会被中途放弃。
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		wasStopped := c.phase == PhaseStopped
		c.phase = PhaseStopped
		c.mu.Unlock()

		if !wasStopped {
			c.cancelAllResting(context.Background())
		}
		if c.cancel != nil {
			c.cancel()
			<-c.doneC
		}
		c.persistCounters()
		c.publish(events.Event{Type: events.TypeStopped, Timestamp: time.Now()})
		log.Info("控制环已停止")
	})
}

// fatal 不变量被破坏时的终止路径：停止自动动作并发出高可见度告警。
// 保证 running=false 且本地不再认为有挂单存在。
func (c *Controller) fatal(reason string) {
	if c.stopped() {
		return
	}
	log.Errorf("致命错误，控制环停止: %s", reason)

	// 停机前尽力撤掉还挂在交易所侧的订单，行情失效时残留报价会被无声成交
	c.cancelAllResting(context.Background())

	c.mu.Lock()
	c.phase = PhaseStopped
	c.buyOrder = nil
	c.sellOrder = nil
	c.mu.Unlock()

	c.publish(events.Event{Type: events.TypeFatal, Timestamp: time.Now(), Reason: reason})
	if c.cancel != nil {
		c.cancel()
	}
	c.persistCounters()
}

func (c *Controller) stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == PhaseStopped
}

func (c *Controller) isFlat(qty decimal.Decimal) bool {
	return qty.Abs().LessThanOrEqual(c.cfg.PositionEpsilon)
}

// pumpSnapshots 把行情快照合并为"最新值 + 信号"，事件循环只处理最新快照
func (c *Controller) pumpSnapshots() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case snap, ok := <-c.feed.Snapshots():
			if !ok {
				return
			}
			c.snapMu.Lock()
			c.latestSnap = &snap
			c.snapMu.Unlock()
			c.priceSig.Emit()
		}
	}
}

func (c *Controller) takeSnapshot() *domain.PriceSnapshot {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	snap := c.latestSnap
	c.latestSnap = nil
	return snap
}

func (c *Controller) waitFirstSnapshot(timeout time.Duration) (*domain.PriceSnapshot, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	case <-timer.C:
		return nil, errors.New("等待首个行情快照超时")
	case <-c.priceSig.C():
		snap := c.takeSnapshot()
		if snap == nil {
			return nil, errors.New("行情信号到达但快照为空")
		}
		return snap, nil
	}
}

// quoteBothSides 按当前 mark 价挂出启用方向的订单
func (c *Controller) quoteBothSides(mark decimal.Decimal) {
	if c.cfg.quotesBuy() {
		c.placeSide(domain.SideBuy, mark)
	}
	if c.cfg.quotesSell() {
		c.placeSide(domain.SideSell, mark)
	}
}

// placeSide 在 mark 价的目标距离处挂一侧订单
func (c *Controller) placeSide(side domain.Side, mark decimal.Decimal) {
	if c.stopped() {
		return
	}
	if err := c.breaker.AllowTrading(); err != nil {
		c.fatal("断路器已打开，连续错误过多")
		return
	}
	price := quotePrice(mark, side, c.cfg.TargetDistanceBp, c.cfg.TickSize)
	order, err := c.gateway.PlaceOrder(c.ctx, c.cfg.Symbol, side, c.cfg.OrderSize, price)
	if err != nil {
		// 瞬时错误：下次触发时重试
		c.breaker.OnError()
		log.Warnf("挂单失败 side=%s price=%s: %v", side, price, err)
		return
	}
	c.breaker.OnSuccess()

	c.mu.Lock()
	c.setOrderLocked(side, order)
	c.counters.Placed++
	c.mu.Unlock()

	log.Infof("已挂单: side=%s price=%s qty=%s", side, price, c.cfg.OrderSize)
}

// replaceSide 撤掉一侧旧单后按当前 mark 价重挂。
// 撤单必须先完成（成功与否）才会挂新单，同一侧不会有并发的变更调用。
func (c *Controller) replaceSide(side domain.Side, mark decimal.Decimal, reason string) {
	if c.stopped() {
		return
	}

	c.mu.Lock()
	old := c.orderLocked(side)
	c.setOrderLocked(side, nil)
	c.mu.Unlock()

	if old != nil {
		ok, err := c.gateway.CancelOrder(c.ctx, old.VenueID)
		if err != nil {
			log.Warnf("撤单失败 side=%s id=%s: %v", side, old.VenueID, err)
			return
		}
		if !ok {
			// 交易所拒绝通常意味着订单已成交，成交通知可能在路上
			log.Infof("撤单被拒 side=%s id=%s，订单可能已转为终态", side, old.VenueID)
		}
		c.mu.Lock()
		c.counters.Canceled++
		c.mu.Unlock()
	}

	c.placeSide(side, mark)
	c.publish(events.Event{
		Type: events.TypeOrderReplaced, Timestamp: time.Now(),
		Side: side, Reason: reason,
	})
}

// cancelAllResting 撤掉所有本地认为还在挂着的订单
func (c *Controller) cancelAllResting(ctx context.Context) {
	c.mu.Lock()
	buy, sell := c.buyOrder, c.sellOrder
	c.buyOrder = nil
	c.sellOrder = nil
	c.mu.Unlock()

	for _, o := range []*domain.Order{buy, sell} {
		if o == nil {
			continue
		}
		ok, err := c.gateway.CancelOrder(ctx, o.VenueID)
		if err != nil {
			log.Warnf("撤单失败 id=%s: %v", o.VenueID, err)
			continue
		}
		if !ok {
			log.Infof("撤单被拒 id=%s，订单可能已转为终态", o.VenueID)
		}
		c.mu.Lock()
		c.counters.Canceled++
		c.mu.Unlock()
	}
}

func (c *Controller) orderLocked(side domain.Side) *domain.Order {
	if side == domain.SideBuy {
		return c.buyOrder
	}
	return c.sellOrder
}

func (c *Controller) setOrderLocked(side domain.Side, o *domain.Order) {
	if side == domain.SideBuy {
		c.buyOrder = o
	} else {
		c.sellOrder = o
	}
}

func (c *Controller) publish(ev events.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}

func (c *Controller) persistCounters() {
	if c.countersStore == nil {
		return
	}
	c.mu.Lock()
	counters := c.counters
	c.mu.Unlock()
	if err := c.countersStore.Save(&counters); err != nil {
		log.Warnf("保存计数器失败: %v", err)
	}
}
