// Package websocket 提供行情/订单流 WebSocket 客户端
package websocket

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/makerbot/gomaker/internal/domain"
)

const (
	// 重连设置
	defaultBaseReconnectDelay = 1 * time.Second
	defaultMaxReconnectDelay  = 30 * time.Second
	defaultMaxReconnectTries  = 10
	defaultPingInterval       = 10 * time.Second
	defaultHandshakeTimeout   = 15 * time.Second

	// 通道缓冲区大小
	defaultSnapshotBufferSize = 256
	defaultOrderBufferSize    = 256
	defaultEventBufferSize    = 32
)

// 订阅的频道
const (
	channelTicker = "ticker"
	channelOrders = "orders"
)

// EventKind 连接事件类型
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventReconnecting EventKind = "reconnecting"
	EventReconnected  EventKind = "reconnected"
	EventExhausted    EventKind = "exhausted" // 重连次数耗尽，终态，只发一次
)

// ConnEvent 连接事件
type ConnEvent struct {
	Kind    EventKind
	Attempt int           // reconnecting 时的第几次尝试（从 1 开始）
	Delay   time.Duration // reconnecting 时的等待时长
	Err     error         // disconnected/exhausted 时的原因（可选）
}

// OrderUpdate 订单流消息（已解析为强类型）
type OrderUpdate struct {
	OrderID        string
	ClientID       string
	Symbol         string
	Side           domain.Side
	Status         domain.OrderStatus
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	FilledQuantity decimal.Decimal
	FillPrice      decimal.Decimal
	Timestamp      time.Time
}

// Config WebSocket 客户端配置
type Config struct {
	BaseReconnectDelay   time.Duration // 指数退避的基础延迟
	MaxReconnectDelay    time.Duration // 退避延迟上限
	MaxReconnectAttempts int           // 重连尝试上限，超过后发 exhausted 并停止
	PingInterval         time.Duration
	HandshakeTimeout     time.Duration

	SnapshotBufferSize int
	OrderBufferSize    int
	EventBufferSize    int
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		BaseReconnectDelay:   defaultBaseReconnectDelay,
		MaxReconnectDelay:    defaultMaxReconnectDelay,
		MaxReconnectAttempts: defaultMaxReconnectTries,
		PingInterval:         defaultPingInterval,
		HandshakeTimeout:     defaultHandshakeTimeout,
		SnapshotBufferSize:   defaultSnapshotBufferSize,
		OrderBufferSize:      defaultOrderBufferSize,
		EventBufferSize:      defaultEventBufferSize,
	}
}

// feedMessage 行情流原始消息
type feedMessage struct {
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
	Data    struct {
		// ticker 频道
		MarkPrice string `json:"markPrice"`
		LastPrice string `json:"lastPrice"`
		BestBid   string `json:"bestBid"`
		BestAsk   string `json:"bestAsk"`

		// orders 频道
		OrderID        string `json:"orderId"`
		ClientID       string `json:"clientId"`
		Side           string `json:"side"`
		Status         string `json:"status"`
		Price          string `json:"price"`
		Quantity       string `json:"quantity"`
		FilledQuantity string `json:"filledQuantity"`
		FillPrice      string `json:"fillPrice"`

		Timestamp int64 `json:"timestamp"` // 毫秒
	} `json:"data"`
}
