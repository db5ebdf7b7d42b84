package maker

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/makerbot/gomaker/internal/domain"
	"github.com/makerbot/gomaker/pkg/sdk/api"
	"github.com/makerbot/gomaker/pkg/sdk/websocket"
)

type fakeFeed struct {
	snapC  chan domain.PriceSnapshot
	orderC chan websocket.OrderUpdate
	eventC chan websocket.ConnEvent
	subs   []string
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		snapC:  make(chan domain.PriceSnapshot, 16),
		orderC: make(chan websocket.OrderUpdate, 16),
		eventC: make(chan websocket.ConnEvent, 16),
	}
}

func (f *fakeFeed) Subscribe(symbol string) error {
	f.subs = append(f.subs, symbol)
	return nil
}
func (f *fakeFeed) Snapshots() <-chan domain.PriceSnapshot     { return f.snapC }
func (f *fakeFeed) OrderUpdates() <-chan websocket.OrderUpdate { return f.orderC }
func (f *fakeFeed) Events() <-chan websocket.ConnEvent         { return f.eventC }

// newTestController 构造进入 QUOTING 状态的控制器，不启动事件循环
func newTestController(t *testing.T, mutate func(*Config)) (*Controller, *api.MockGateway) {
	t.Helper()
	cfg := &Config{
		Symbol:           "BTC-PERP",
		OrderSize:        d("0.01"),
		TickSize:         d("0.1"),
		TargetDistanceBp: decimal.NewFromInt(20),
		MinDistanceBp:    decimal.NewFromInt(10),
		MaxDistanceBp:    decimal.NewFromInt(30),
		ResumeRatio:      0.8,
		FillCooldown:     10 * time.Millisecond,
		RequoteDelay:     time.Millisecond,
		SafetyInterval:   time.Hour,
		PositionEpsilon:  d("0.0001"),
	}
	if mutate != nil {
		mutate(cfg)
	}

	mock := api.NewMockGateway()
	mock.SetBook(d("89990"), d("90010"), d("90000"))

	c, err := New(cfg, mock, newFakeFeed(), nil, nil, nil)
	if err != nil {
		t.Fatalf("创建控制器失败: %v", err)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.phase = PhaseQuoting
	t.Cleanup(c.cancel)
	return c, mock
}

func snapAt(mark string) *domain.PriceSnapshot {
	return &domain.PriceSnapshot{
		Symbol:     "BTC-PERP",
		MarkPrice:  d(mark),
		ObservedAt: time.Now(),
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestQuoteBothSidesBracketsMark(t *testing.T) {
	c, mock := newTestController(t, nil)

	c.quoteBothSides(d("90000"))

	placed := mock.PlacedOrders()
	if len(placed) != 2 {
		t.Fatalf("应挂出两侧订单, 实际 %d", len(placed))
	}
	s := c.GetState()
	if s.BuyOrder == nil || s.SellOrder == nil {
		t.Fatal("状态中应有双边订单")
	}
	if s.BuyOrder.Price.String() != "89820" {
		t.Fatalf("买价错误: 期望 89820, 实际 %s", s.BuyOrder.Price)
	}
	if s.SellOrder.Price.String() != "90180" {
		t.Fatalf("卖价错误: 期望 90180, 实际 %s", s.SellOrder.Price)
	}
	// buyPrice < mark < sellPrice
	if !s.BuyOrder.Price.LessThan(d("90000")) || !s.SellOrder.Price.GreaterThan(d("90000")) {
		t.Fatal("挂单价必须夹住 mark 价")
	}
}

func TestBuyOnlyModeNeverQuotesSell(t *testing.T) {
	c, mock := newTestController(t, func(cfg *Config) { cfg.Mode = ModeBuyOnly })

	c.quoteBothSides(d("90000"))
	c.evaluate(snapAt("90000"))

	for _, o := range mock.PlacedOrders() {
		if o.Side == domain.SideSell {
			t.Fatal("buy-only 模式不应挂卖单")
		}
	}
	if c.GetState().SellOrder != nil {
		t.Fatal("buy-only 模式卖单槽位应为空")
	}
}

func TestDistanceIdempotence(t *testing.T) {
	c, mock := newTestController(t, nil)
	c.quoteBothSides(d("90000"))
	before := mock.CallCount("PlaceOrder")

	// 距离在区间内的相同快照不应触发撤改
	snap := snapAt("90000")
	snap.BestBid = d("89990")
	snap.BestAsk = d("90010")
	c.evaluate(snap)
	c.evaluate(snap)

	if mock.CallCount("PlaceOrder") != before {
		t.Fatalf("区间内订单不应被替换: 下单次数 %d -> %d", before, mock.CallCount("PlaceOrder"))
	}
	if mock.CallCount("CancelOrder") != 0 {
		t.Fatalf("不应有撤单, 实际 %d 次", mock.CallCount("CancelOrder"))
	}
}

func TestDistanceBandReplacesSide(t *testing.T) {
	c, mock := newTestController(t, nil)
	c.quoteBothSides(d("90000"))
	sellBefore := c.GetState().SellOrder.VenueID

	// mark 移到 89830，买单 89820 距离仅 1.1bp < 10bp，触发撤改
	c.evaluate(snapAt("89830"))

	if mock.CallCount("CancelOrder") != 1 {
		t.Fatalf("应只撤买单一侧, 实际撤单 %d 次", mock.CallCount("CancelOrder"))
	}
	s := c.GetState()
	if s.BuyOrder == nil {
		t.Fatal("买单应被重挂")
	}
	// 89830 * (1 - 0.002) = 89650.34, 向下取整到 89650.3
	if s.BuyOrder.Price.String() != "89650.3" {
		t.Fatalf("新买价错误: 期望 89650.3, 实际 %s", s.BuyOrder.Price)
	}
	if s.SellOrder.VenueID != sellBefore {
		t.Fatal("卖单不应被动到")
	}
}

func TestSpreadCrossingReplacesOnlyThatSide(t *testing.T) {
	c, mock := newTestController(t, nil)
	c.quoteBothSides(d("90000"))
	sellBefore := c.GetState().SellOrder.VenueID

	// 盘口塌下来，最优买价低到 89800，买单 89820 有立即成交风险
	snap := snapAt("90000")
	snap.BestBid = d("89800")
	snap.BestAsk = d("90010")
	c.evaluate(snap)

	if mock.CallCount("CancelOrder") != 1 {
		t.Fatalf("应只撤买单一侧, 实际撤单 %d 次", mock.CallCount("CancelOrder"))
	}
	if c.GetState().SellOrder.VenueID != sellBefore {
		t.Fatal("卖单不应被动到")
	}
}

func TestVolatilityPauseAndHysteresis(t *testing.T) {
	c, mock := newTestController(t, nil)
	c.quoteBothSides(d("90000"))

	// gap = 200/90000*10000 ≈ 22.2bp > 20bp，进入暂停并撤掉双边
	snap := snapAt("90000")
	snap.LastTradePrice = d("90200")
	c.evaluate(snap)

	s := c.GetState()
	if s.Phase != PhasePausedVolatility {
		t.Fatalf("应进入波动暂停, 实际 %s", s.Phase)
	}
	if s.BuyOrder != nil || s.SellOrder != nil {
		t.Fatal("暂停时应撤掉双边订单")
	}
	if mock.CallCount("CancelOrder") != 2 {
		t.Fatalf("应撤单 2 次, 实际 %d", mock.CallCount("CancelOrder"))
	}

	// gap ≈ 18.9bp 低于 20 但高于恢复阈值 16bp，必须继续暂停
	placedBefore := mock.CallCount("PlaceOrder")
	snap = snapAt("90000")
	snap.LastTradePrice = d("90170")
	c.evaluate(snap)
	if c.GetState().Phase != PhasePausedVolatility {
		t.Fatal("滞回带内不应恢复")
	}
	if mock.CallCount("PlaceOrder") != placedBefore {
		t.Fatal("滞回带内不应挂单")
	}

	// gap ≈ 11.1bp < 16bp，恢复并重挂双边
	snap = snapAt("90000")
	snap.LastTradePrice = d("90100")
	c.evaluate(snap)
	s = c.GetState()
	if s.Phase != PhaseQuoting {
		t.Fatalf("应恢复报价, 实际 %s", s.Phase)
	}
	if s.BuyOrder == nil || s.SellOrder == nil {
		t.Fatal("恢复后应重挂双边")
	}
}

func TestAuthoritativePositionGuardFlattens(t *testing.T) {
	c, mock := newTestController(t, nil)
	c.quoteBothSides(d("90000"))

	// 交易所侧出现非预期多头持仓
	mock.SetPosition(d("0.5"))
	c.evaluate(snapAt("90000"))

	if mock.CallCount("PlaceAggressiveOrder") != 1 {
		t.Fatalf("应发出一笔穿价平仓单, 实际 %d", mock.CallCount("PlaceAggressiveOrder"))
	}
	var closeOrder *domain.Order
	for _, o := range mock.PlacedOrders() {
		if o.Status == domain.OrderStatusFilled {
			closeOrder = o
		}
	}
	if closeOrder == nil {
		t.Fatal("未找到平仓单")
	}
	if closeOrder.Side != domain.SideSell {
		t.Fatalf("多头持仓应卖出平仓, 实际 %s", closeOrder.Side)
	}
	if closeOrder.Quantity.String() != "0.5" {
		t.Fatalf("平仓数量应等于持仓量 0.5, 实际 %s", closeOrder.Quantity)
	}
	// 穿价: bid 89990 下方一个 tick
	if closeOrder.Price.String() != "89989.9" {
		t.Fatalf("平仓价应穿越盘口: 期望 89989.9, 实际 %s", closeOrder.Price)
	}
	if !c.GetState().Position.IsZero() {
		t.Fatal("强平后本地持仓应归零")
	}
}

func TestEvaluateSkippedDuringFill(t *testing.T) {
	c, mock := newTestController(t, nil)

	if !c.fillLock.TryAcquire() {
		t.Fatal("应能获取成交锁")
	}
	defer c.fillLock.Release()

	c.evaluate(snapAt("90000"))
	if mock.CallCount("GetPosition") != 0 {
		t.Fatal("成交处理期间价格评估应整体跳过")
	}
}

func TestFillTriggersExactlyOneClose(t *testing.T) {
	c, mock := newTestController(t, nil)
	c.quoteBothSides(d("90000"))
	buyID := c.GetState().BuyOrder.ClientID

	c.onOrderUpdate(websocket.OrderUpdate{
		ClientID:       buyID,
		Symbol:         "BTC-PERP",
		Side:           domain.SideBuy,
		Status:         domain.OrderStatusFilled,
		Price:          d("89820"),
		Quantity:       d("0.01"),
		FilledQuantity: d("0.01"),
	})

	waitFor(t, func() bool { return mock.CallCount("PlaceAggressiveOrder") == 1 },
		"应发出平仓单")

	var closeOrder *domain.Order
	for _, o := range mock.PlacedOrders() {
		if o.Status == domain.OrderStatusFilled {
			closeOrder = o
		}
	}
	if closeOrder.Side != domain.SideSell {
		t.Fatalf("买单成交应卖出平仓, 实际 %s", closeOrder.Side)
	}
	if closeOrder.Quantity.String() != "0.01" {
		t.Fatalf("平仓数量应等于成交数量, 实际 %s", closeOrder.Quantity)
	}

	// 冷却后应用新拉取的 mark 价重挂买单
	waitFor(t, func() bool { return c.GetState().BuyOrder != nil },
		"冷却后应重挂买单")
	waitFor(t, func() bool { return !c.fillLock.Held() }, "成交锁应被释放")
	if mock.CallCount("GetMarkPrice") == 0 {
		t.Fatal("重挂应使用新拉取的参考价")
	}
}

func TestDuplicateFillDropped(t *testing.T) {
	c, mock := newTestController(t, func(cfg *Config) {
		cfg.FillCooldown = 500 * time.Millisecond
	})
	c.quoteBothSides(d("90000"))
	buyID := c.GetState().BuyOrder.ClientID

	update := websocket.OrderUpdate{
		ClientID:       buyID,
		Symbol:         "BTC-PERP",
		Side:           domain.SideBuy,
		Status:         domain.OrderStatusFilled,
		FilledQuantity: d("0.01"),
	}
	// 第一条启动成交处理并持有锁，第二条必须被丢弃
	c.onOrderUpdate(update)
	c.onOrderUpdate(update)

	time.Sleep(100 * time.Millisecond)
	if n := mock.CallCount("PlaceAggressiveOrder"); n != 1 {
		t.Fatalf("背靠背成交通知应只执行一次平仓, 实际 %d 次", n)
	}
}

func TestCloseFailureIsFatal(t *testing.T) {
	c, mock := newTestController(t, nil)
	c.quoteBothSides(d("90000"))
	buyID := c.GetState().BuyOrder.ClientID

	mock.ErrorOnNext["PlaceAggressiveOrder"] = context.DeadlineExceeded

	c.onOrderUpdate(websocket.OrderUpdate{
		ClientID:       buyID,
		Symbol:         "BTC-PERP",
		Side:           domain.SideBuy,
		Status:         domain.OrderStatusFilled,
		FilledQuantity: d("0.01"),
	})

	waitFor(t, func() bool { return c.GetState().Phase == PhaseStopped },
		"平仓失败应停机")
	s := c.GetState()
	if s.Running {
		t.Fatal("停机后 Running 必须为 false")
	}
	if s.BuyOrder != nil || s.SellOrder != nil {
		t.Fatal("停机后本地不应再认为有挂单")
	}
	// 绝不自动重试失败的平仓
	if mock.CallCount("PlaceAggressiveOrder") != 1 {
		t.Fatalf("失败的平仓不应重试, 实际 %d 次", mock.CallCount("PlaceAggressiveOrder"))
	}
}

func TestSafetyCheckHaltsOnUnexpectedPosition(t *testing.T) {
	c, mock := newTestController(t, nil)
	c.quoteBothSides(d("90000"))

	mock.SetPosition(d("-0.3"))
	c.safetyCheck()

	if mock.CallCount("PlaceAggressiveOrder") != 1 {
		t.Fatalf("应发出一笔平仓单, 实际 %d", mock.CallCount("PlaceAggressiveOrder"))
	}
	var closeOrder *domain.Order
	for _, o := range mock.PlacedOrders() {
		if o.Status == domain.OrderStatusFilled {
			closeOrder = o
		}
	}
	if closeOrder.Side != domain.SideBuy {
		t.Fatalf("空头持仓应买入平仓, 实际 %s", closeOrder.Side)
	}
	if c.GetState().Phase != PhaseStopped {
		t.Fatal("安全巡检发现异常持仓后必须停机")
	}
}

func TestCancelRefusedIsInformational(t *testing.T) {
	c, mock := newTestController(t, nil)
	c.quoteBothSides(d("90000"))
	mock.CancelRefused = true

	// 撤单被拒（订单可能已成交）不阻止重挂
	c.evaluate(snapAt("89830"))

	if c.GetState().BuyOrder == nil {
		t.Fatal("撤单被拒后仍应重挂买单")
	}
	if c.GetState().Phase != PhaseQuoting {
		t.Fatal("撤单被拒不应改变控制环状态")
	}
}

func TestReconnectExhaustedIsFatal(t *testing.T) {
	c, _ := newTestController(t, nil)
	c.quoteBothSides(d("90000"))

	c.onConnEvent(websocket.ConnEvent{Kind: websocket.EventExhausted})

	if c.GetState().Phase != PhaseStopped {
		t.Fatal("重连耗尽后控制环必须停机")
	}
}

func TestFatalCancelsRestingOrders(t *testing.T) {
	c, mock := newTestController(t, nil)
	c.quoteBothSides(d("90000"))

	// 行情失效停机时交易所侧不能留下无人看管的报价
	c.onConnEvent(websocket.ConnEvent{Kind: websocket.EventExhausted})

	if mock.CallCount("CancelOrder") != 2 {
		t.Fatalf("停机前应撤掉两侧挂单, 实际撤单 %d 次", mock.CallCount("CancelOrder"))
	}
	s := c.GetState()
	if s.Phase != PhaseStopped {
		t.Fatalf("应已停机, 实际 %s", s.Phase)
	}
	if s.BuyOrder != nil || s.SellOrder != nil {
		t.Fatal("停机后本地不应再认为有挂单")
	}
}

func TestUnmatchedFillIgnored(t *testing.T) {
	c, mock := newTestController(t, nil)
	c.quoteBothSides(d("90000"))

	// 平仓单自己的成交回报延迟到达，不属于任何在管挂单
	c.onOrderUpdate(websocket.OrderUpdate{
		OrderID:        "stale-close-1",
		Symbol:         "BTC-PERP",
		Side:           domain.SideSell,
		Status:         domain.OrderStatusFilled,
		FilledQuantity: d("0.01"),
	})

	time.Sleep(50 * time.Millisecond)
	if n := mock.CallCount("PlaceAggressiveOrder"); n != 0 {
		t.Fatalf("陌生订单的成交通知不应触发平仓, 实际 %d 次", n)
	}
	if c.fillLock.Held() {
		t.Fatal("成交锁不应被占用")
	}
	if !c.GetState().Position.IsZero() {
		t.Fatal("本地持仓不应变动")
	}
}

func TestStartupFlattenWaitsBeforeQuoting(t *testing.T) {
	cfg := &Config{
		Symbol:          "BTC-PERP",
		OrderSize:       d("0.01"),
		TickSize:        d("0.1"),
		RequoteDelay:    50 * time.Millisecond,
		FillCooldown:    10 * time.Millisecond,
		SafetyInterval:  time.Hour,
		PositionEpsilon: d("0.0001"),
	}
	mock := api.NewMockGateway()
	mock.SetBook(d("89990"), d("90010"), d("90000"))
	mock.SetPosition(d("0.4"))
	feed := newFakeFeed()
	feed.snapC <- domain.PriceSnapshot{
		Symbol: "BTC-PERP", MarkPrice: d("90000"), ObservedAt: time.Now(),
	}

	c, err := New(cfg, mock, feed, nil, nil, nil)
	if err != nil {
		t.Fatalf("创建控制器失败: %v", err)
	}

	began := time.Now()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("启动失败: %v", err)
	}
	t.Cleanup(c.Stop)

	if mock.CallCount("PlaceAggressiveOrder") != 1 {
		t.Fatalf("启动时应先强平非零持仓, 实际平仓 %d 次", mock.CallCount("PlaceAggressiveOrder"))
	}
	// 强平和重新挂单之间必须有间隔
	if elapsed := time.Since(began); elapsed < 50*time.Millisecond {
		t.Fatalf("启动强平后应等待再挂单, 实际耗时 %v", elapsed)
	}
	s := c.GetState()
	if s.Phase != PhaseQuoting {
		t.Fatalf("启动后应进入报价状态, 实际 %s", s.Phase)
	}
	if s.BuyOrder == nil || s.SellOrder == nil {
		t.Fatal("启动后应挂出双边订单")
	}
}

func TestReconnectedTriggersFullRequote(t *testing.T) {
	c, mock := newTestController(t, nil)
	c.quoteBothSides(d("90000"))

	c.onConnEvent(websocket.ConnEvent{Kind: websocket.EventReconnected})

	// 旧单全撤，按新拉取的 mark 价重挂双边
	if mock.CallCount("CancelOrder") != 2 {
		t.Fatalf("重连后应撤掉全部旧单, 实际撤单 %d 次", mock.CallCount("CancelOrder"))
	}
	if mock.CallCount("GetMarkPrice") == 0 {
		t.Fatal("重连后应重新拉取 mark 价")
	}
	s := c.GetState()
	if s.BuyOrder == nil || s.SellOrder == nil {
		t.Fatal("重连后应重挂双边订单")
	}
}
