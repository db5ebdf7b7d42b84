package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/makerbot/gomaker/internal/domain"
	"github.com/makerbot/gomaker/pkg/logger"
	"github.com/shopspring/decimal"
)

// FeedClient 行情/订单流客户端
// 负责连接、订阅、心跳和断线重连；消费方通过 Snapshots/OrderUpdates/Events 读取
type FeedClient struct {
	url    string
	token  string
	config *Config

	conn   *websocket.Conn
	connMu sync.Mutex

	// 已订阅的 symbol，重连后自动重新订阅
	subscriptions map[string]bool
	subMu         sync.Mutex

	snapC  chan domain.PriceSnapshot
	orderC chan OrderUpdate
	eventC chan ConnEvent

	ctx    context.Context
	cancel context.CancelFunc

	started   bool
	startMu   sync.Mutex
	exhausted bool // exhausted 只发一次
}

// NewFeedClient 创建行情流客户端，token 用于订单频道鉴权
func NewFeedClient(url, token string, config *Config) *FeedClient {
	if config == nil {
		config = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &FeedClient{
		url:           url,
		token:         token,
		config:        config,
		subscriptions: make(map[string]bool),
		snapC:         make(chan domain.PriceSnapshot, config.SnapshotBufferSize),
		orderC:        make(chan OrderUpdate, config.OrderBufferSize),
		eventC:        make(chan ConnEvent, config.EventBufferSize),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Snapshots 行情快照通道
func (c *FeedClient) Snapshots() <-chan domain.PriceSnapshot {
	return c.snapC
}

// OrderUpdates 订单流通道
func (c *FeedClient) OrderUpdates() <-chan OrderUpdate {
	return c.orderC
}

// Events 连接事件通道
func (c *FeedClient) Events() <-chan ConnEvent {
	return c.eventC
}

// Start 建立连接并启动读取/心跳协程
// 首次连接失败直接返回错误，不进入重连流程
func (c *FeedClient) Start() error {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return errors.New("feed client already started")
	}

	if err := c.dial(); err != nil {
		return errors.Wrap(err, "initial websocket connect failed")
	}
	c.started = true
	c.emit(ConnEvent{Kind: EventConnected})

	go c.readLoop()
	go c.pingLoop()
	return nil
}

// Stop 关闭连接并停止所有协程，不再触发重连
func (c *FeedClient) Stop() {
	c.cancel()

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	logger.Info("行情流客户端已停止")
}

// Subscribe 订阅指定 symbol 的行情与订单频道
func (c *FeedClient) Subscribe(symbol string) error {
	c.subMu.Lock()
	c.subscriptions[symbol] = true
	c.subMu.Unlock()

	return c.sendSubscribe(symbol)
}

func (c *FeedClient) dial() error {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}
	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	logger.Infof("WebSocket 已连接: %s", c.url)
	return nil
}

func (c *FeedClient) sendSubscribe(symbol string) error {
	msg := map[string]interface{}{
		"op":       "subscribe",
		"channels": []string{channelTicker, channelOrders},
		"symbol":   symbol,
	}
	if c.token != "" {
		msg["token"] = c.token
	}
	return c.writeJSON(msg)
}

func (c *FeedClient) writeJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return errors.New("websocket not connected")
	}
	return c.conn.WriteJSON(v)
}

// readLoop 持续读取消息，连接断开时进入重连流程
func (c *FeedClient) readLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
				return
			default:
			}
			logger.Warnf("WebSocket 读取失败: %v", err)
			c.emit(ConnEvent{Kind: EventDisconnected, Err: err})
			if !c.reconnect() {
				return
			}
			continue
		}

		c.handleMessage(data)
	}
}

// reconnect 指数退避重连: delay = min(base * 2^attempt, cap)
// 超过最大尝试次数后发送一次 exhausted 并返回 false
func (c *FeedClient) reconnect() bool {
	for attempt := 0; attempt < c.config.MaxReconnectAttempts; attempt++ {
		delay := c.backoffDelay(attempt)
		c.emit(ConnEvent{Kind: EventReconnecting, Attempt: attempt + 1, Delay: delay})
		logger.Warnf("WebSocket 第 %d 次重连，等待 %v", attempt+1, delay)

		select {
		case <-c.ctx.Done():
			return false
		case <-time.After(delay):
		}

		if err := c.dial(); err != nil {
			logger.Warnf("重连失败: %v", err)
			continue
		}

		if err := c.resubscribeAll(); err != nil {
			logger.Warnf("重连后重新订阅失败: %v", err)
			c.closeConn()
			continue
		}

		c.emit(ConnEvent{Kind: EventReconnected})
		logger.Info("WebSocket 重连成功，订阅已恢复")
		return true
	}

	if !c.exhausted {
		c.exhausted = true
		c.emit(ConnEvent{
			Kind: EventExhausted,
			Err:  fmt.Errorf("达到最大重连次数 %d", c.config.MaxReconnectAttempts),
		})
	}
	return false
}

func (c *FeedClient) backoffDelay(attempt int) time.Duration {
	delay := c.config.BaseReconnectDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= c.config.MaxReconnectDelay {
			return c.config.MaxReconnectDelay
		}
	}
	if delay > c.config.MaxReconnectDelay {
		return c.config.MaxReconnectDelay
	}
	return delay
}

func (c *FeedClient) resubscribeAll() error {
	c.subMu.Lock()
	symbols := make([]string, 0, len(c.subscriptions))
	for s := range c.subscriptions {
		symbols = append(symbols, s)
	}
	c.subMu.Unlock()

	for _, s := range symbols {
		if err := c.sendSubscribe(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *FeedClient) closeConn() {
	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

// pingLoop 定期发送 PING 心跳保持连接
func (c *FeedClient) pingLoop() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn := c.conn
			c.connMu.Unlock()
			if conn == nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
				logger.Debugf("心跳发送失败: %v", err)
			}
		}
	}
}

// handleMessage 解析并分发消息，坏消息记录后丢弃
func (c *FeedClient) handleMessage(data []byte) {
	// 心跳应答
	if string(data) == "PONG" {
		return
	}

	var msg feedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Warnf("无法解析的消息，丢弃: %v", err)
		return
	}

	switch msg.Channel {
	case channelTicker:
		c.handleTicker(&msg)
	case channelOrders:
		c.handleOrder(&msg)
	default:
		// 订阅确认等控制消息，忽略
	}
}

func (c *FeedClient) handleTicker(msg *feedMessage) {
	mark, err := decimal.NewFromString(msg.Data.MarkPrice)
	if err != nil {
		logger.Warnf("行情消息 markPrice 非法，丢弃: %q", msg.Data.MarkPrice)
		return
	}

	snap := domain.PriceSnapshot{
		Symbol:     msg.Symbol,
		MarkPrice:  mark,
		ObservedAt: time.UnixMilli(msg.Data.Timestamp),
	}
	if msg.Data.LastPrice != "" {
		if last, err := decimal.NewFromString(msg.Data.LastPrice); err == nil {
			snap.LastTradePrice = last
		}
	}
	if msg.Data.BestBid != "" {
		if bid, err := decimal.NewFromString(msg.Data.BestBid); err == nil {
			snap.BestBid = bid
		}
	}
	if msg.Data.BestAsk != "" {
		if ask, err := decimal.NewFromString(msg.Data.BestAsk); err == nil {
			snap.BestAsk = ask
		}
	}

	if !snap.Valid() {
		logger.Warnf("行情快照无效，丢弃: mark=%s", snap.MarkPrice)
		return
	}

	select {
	case c.snapC <- snap:
	default:
		// 消费方落后时丢弃旧消息，mark 价只关心最新值
		select {
		case <-c.snapC:
		default:
		}
		select {
		case c.snapC <- snap:
		default:
		}
	}
}

func (c *FeedClient) handleOrder(msg *feedMessage) {
	price, err1 := decimal.NewFromString(msg.Data.Price)
	qty, err2 := decimal.NewFromString(msg.Data.Quantity)
	if err1 != nil || err2 != nil {
		logger.Warnf("订单消息价格/数量非法，丢弃: price=%q quantity=%q",
			msg.Data.Price, msg.Data.Quantity)
		return
	}

	update := OrderUpdate{
		OrderID:   msg.Data.OrderID,
		ClientID:  msg.Data.ClientID,
		Symbol:    msg.Symbol,
		Side:      domain.ParseSide(msg.Data.Side),
		Status:    domain.ParseOrderStatus(msg.Data.Status),
		Price:     price,
		Quantity:  qty,
		Timestamp: time.UnixMilli(msg.Data.Timestamp),
	}
	if msg.Data.FilledQuantity != "" {
		if filled, err := decimal.NewFromString(msg.Data.FilledQuantity); err == nil {
			update.FilledQuantity = filled
		}
	}
	if msg.Data.FillPrice != "" {
		if fp, err := decimal.NewFromString(msg.Data.FillPrice); err == nil {
			update.FillPrice = fp
		}
	}

	select {
	case c.orderC <- update:
	default:
		// 订单消息不能丢，阻塞直到消费方取走或客户端停止
		select {
		case c.orderC <- update:
		case <-c.ctx.Done():
		}
	}
}

func (c *FeedClient) emit(ev ConnEvent) {
	select {
	case c.eventC <- ev:
	default:
		logger.Warnf("连接事件通道已满，丢弃: %s", ev.Kind)
	}
}
