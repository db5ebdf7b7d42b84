package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite 返回相反方向（平仓方向）
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// SignedQty 按方向返回带符号数量（买为正，卖为负）
func (s Side) SignedQty(qty decimal.Decimal) decimal.Decimal {
	if s == SideSell {
		return qty.Neg()
	}
	return qty
}

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"  // 已发出，等待交易所确认
	OrderStatusOpen     OrderStatus = "open"     // 挂单中
	OrderStatusFilled   OrderStatus = "filled"   // 已成交
	OrderStatusCanceled OrderStatus = "canceled" // 已取消
	OrderStatusRejected OrderStatus = "rejected" // 被交易所拒绝
)

// Order 订单领域模型
//
// 挂单存续期间由控制器独占持有；交易所是状态的最终权威，
// 这里只缓存控制器最近一次得知的状态用于决策。
type Order struct {
	ClientID       string          // 客户端订单 ID（uuid）
	VenueID        string          // 交易所订单 ID（确认后填充）
	Symbol         string          // 交易对
	Side           Side            // 订单方向
	Price          decimal.Decimal // 挂单价格
	Quantity       decimal.Decimal // 原始数量
	FilledQuantity decimal.Decimal // 已成交数量
	Status         OrderStatus     // 最近已知状态
	CreatedAt      time.Time       // 创建时间
}

// IsOpen 订单是否仍在挂单（pending 视为在途，同样占用槽位）
func (o *Order) IsOpen() bool {
	if o == nil {
		return false
	}
	return o.Status == OrderStatusOpen || o.Status == OrderStatusPending
}

// IsFinal 订单是否已到达最终状态
func (o *Order) IsFinal() bool {
	if o == nil {
		return false
	}
	return o.Status == OrderStatusFilled || o.Status == OrderStatusCanceled || o.Status == OrderStatusRejected
}

// ExecutedQty 返回已成交数量（部分成交时为累计值）
func (o *Order) ExecutedQty() decimal.Decimal {
	if o == nil {
		return decimal.Zero
	}
	if o.FilledQuantity.IsPositive() {
		return o.FilledQuantity
	}
	if o.Status == OrderStatusFilled {
		return o.Quantity
	}
	return decimal.Zero
}

// ParseSide 解析报文中的方向字段（大小写不敏感）
func ParseSide(s string) Side {
	if strings.EqualFold(s, "sell") {
		return SideSell
	}
	return SideBuy
}

// ParseOrderStatus 解析报文中的订单状态字段。
// 未知状态按 rejected 处理（终态，槽位会被清空）。
func ParseOrderStatus(s string) OrderStatus {
	switch strings.ToUpper(s) {
	case "NEW", "PENDING":
		return OrderStatusPending
	case "OPEN", "PARTIALLY_FILLED":
		return OrderStatusOpen
	case "FILLED":
		return OrderStatusFilled
	case "CANCELED", "CANCELLED", "EXPIRED":
		return OrderStatusCanceled
	default:
		return OrderStatusRejected
	}
}

// Clone 返回订单副本（暴露给观察者用，避免共享可变状态）
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}
