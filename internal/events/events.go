package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/makerbot/gomaker/internal/domain"
)

// Type 事件类型
type Type string

const (
	TypeStarted             Type = "started"
	TypeStopped             Type = "stopped"
	TypeOrderReplaced       Type = "order_replaced"
	TypeTradeExecuted       Type = "trade_executed"
	TypePositionUpdated     Type = "position_updated"
	TypeVolatilityPaused    Type = "volatility_paused"
	TypeVolatilityResumed   Type = "volatility_resumed"
	TypeMaxReconnectReached Type = "max_reconnect_reached"
	TypeFatal               Type = "fatal"
)

// Event 控制器对外广播的命名事件。
// Payload 为不可变快照，观察者（dashboard/notifier）只读。
type Event struct {
	Type      Type
	Timestamp time.Time

	// 可选载荷，按事件类型填充
	Order    *domain.Order   // order_replaced / trade_executed
	Side     domain.Side     // order_replaced / trade_executed
	Quantity decimal.Decimal // trade_executed / position_updated
	Reason   string          // stopped / fatal / volatility_*
}

// Now 构造带当前时间戳的事件
func Now(t Type) Event {
	return Event{Type: t, Timestamp: time.Now()}
}
