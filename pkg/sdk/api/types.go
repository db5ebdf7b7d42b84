// Package api implements the REST client for the venue's order-entry API.
package api

// Order sides and types on the wire.
const (
	WireSideBuy  = "BUY"
	WireSideSell = "SELL"

	WireTypeLimit  = "LIMIT"
	WireTypeMarket = "MARKET"

	WireTimeInForceGTC = "GTC"
	WireTimeInForceIOC = "IOC"
)

// PlaceOrderRequest is the order submission payload.
// Prices and quantities travel as strings to avoid float rounding.
type PlaceOrderRequest struct {
	ClientID    string `json:"clientId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Type        string `json:"orderType"`
	Price       string `json:"price,omitempty"`
	Quantity    string `json:"quantity"`
	TimeInForce string `json:"timeInForce"`
	PostOnly    bool   `json:"postOnly,omitempty"`
}

// OrderRecord is the venue's view of an order.
type OrderRecord struct {
	OrderID        string `json:"orderId"`
	ClientID       string `json:"clientId"`
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	Price          string `json:"price"`
	Quantity       string `json:"quantity"`
	FilledQuantity string `json:"filledQuantity"`
	Status         string `json:"status"` // NEW / OPEN / FILLED / CANCELED / REJECTED
	CreatedAtMs    int64  `json:"createdAt"`
}

// PositionRecord is the venue's view of a net position.
type PositionRecord struct {
	Symbol   string `json:"symbol"`
	Quantity string `json:"netQuantity"` // signed
}

// TickerRecord carries top-of-book and reference prices.
type TickerRecord struct {
	Symbol         string `json:"symbol"`
	MarkPrice      string `json:"markPrice"`
	LastTradePrice string `json:"lastPrice"`
	BestBid        string `json:"bestBid"`
	BestAsk        string `json:"bestAsk"`
}

// CancelResponse reports the outcome of a cancel request.
type CancelResponse struct {
	OrderID  string `json:"orderId"`
	Canceled bool   `json:"canceled"`
	Reason   string `json:"reason,omitempty"`
}

// TokenResponse is the bearer-token exchange result.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"` // unix seconds
}

// APIError is the venue's error envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}
