package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/makerbot/gomaker/internal/domain"
)

// MockGateway is an in-memory order gateway for testing. It tracks calls,
// supports per-method error injection, and records every order it accepts.
type MockGateway struct {
	mu sync.Mutex

	// Response data
	Position  decimal.Decimal
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	MarkPrice decimal.Decimal
	AuthOK    bool

	// CancelRefused makes CancelOrder answer (false, nil), mimicking a
	// cancel-too-late venue rejection.
	CancelRefused bool

	// Call tracking
	Calls  map[string]int
	Placed []*domain.Order // every accepted order, in submission sequence

	// Error injection: next call of the named method fails once.
	ErrorOnNext map[string]error

	seq int
}

// NewMockGateway creates a mock gateway with a flat position and auth OK.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		AuthOK:      true,
		Calls:       make(map[string]int),
		ErrorOnNext: make(map[string]error),
	}
}

func (m *MockGateway) trackCall(name string) error {
	m.Calls[name]++
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

func (m *MockGateway) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["Authenticated"]++
	return m.AuthOK
}

func (m *MockGateway) PlaceOrder(ctx context.Context, symbol string, side domain.Side, qty, price decimal.Decimal) (*domain.Order, error) {
	return m.accept(ctx, "PlaceOrder", symbol, side, qty, price)
}

func (m *MockGateway) PlaceAggressiveOrder(ctx context.Context, symbol string, side domain.Side, qty, price decimal.Decimal) (*domain.Order, error) {
	return m.accept(ctx, "PlaceAggressiveOrder", symbol, side, qty, price)
}

func (m *MockGateway) accept(_ context.Context, method, symbol string, side domain.Side, qty, price decimal.Decimal) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall(method); err != nil {
		return nil, err
	}
	m.seq++
	order := &domain.Order{
		ClientID:  fmt.Sprintf("mock-client-%d", m.seq),
		VenueID:   fmt.Sprintf("mock-venue-%d", m.seq),
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Quantity:  qty,
		Status:    domain.OrderStatusOpen,
		CreatedAt: time.Now(),
	}
	if method == "PlaceAggressiveOrder" {
		order.Status = domain.OrderStatusFilled
		order.FilledQuantity = qty
	}
	m.Placed = append(m.Placed, order.Clone())
	return order, nil
}

func (m *MockGateway) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("CancelOrder"); err != nil {
		return false, err
	}
	return !m.CancelRefused, nil
}

func (m *MockGateway) GetPosition(ctx context.Context, symbol string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetPosition"); err != nil {
		return decimal.Zero, err
	}
	return m.Position, nil
}

func (m *MockGateway) GetBestBidAsk(ctx context.Context, symbol string) (bid, ask decimal.Decimal, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetBestBidAsk"); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return m.BestBid, m.BestAsk, nil
}

func (m *MockGateway) GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("GetMarkPrice"); err != nil {
		return decimal.Zero, err
	}
	return m.MarkPrice, nil
}

// SetPosition updates the authoritative position the mock reports.
func (m *MockGateway) SetPosition(qty decimal.Decimal) {
	m.mu.Lock()
	m.Position = qty
	m.mu.Unlock()
}

// SetBook updates best bid/ask and mark price in one shot.
func (m *MockGateway) SetBook(bid, ask, mark decimal.Decimal) {
	m.mu.Lock()
	m.BestBid, m.BestAsk, m.MarkPrice = bid, ask, mark
	m.mu.Unlock()
}

// CallCount returns how many times the named method was invoked.
func (m *MockGateway) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[name]
}

// PlacedOrders returns a copy of all accepted orders.
func (m *MockGateway) PlacedOrders() []*domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Order, len(m.Placed))
	for i, o := range m.Placed {
		out[i] = o.Clone()
	}
	return out
}
