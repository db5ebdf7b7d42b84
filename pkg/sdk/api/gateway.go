package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/makerbot/gomaker/internal/domain"
)

// Gateway exposes typed order-entry operations over the REST client.
// All methods are stateless; order state lives with the controller.
type Gateway struct {
	client *Client
	dryRun bool
}

// NewGateway wraps a REST client. With dryRun set, mutating calls are
// logged and answered locally instead of hitting the venue.
func NewGateway(client *Client, dryRun bool) *Gateway {
	return &Gateway{client: client, dryRun: dryRun}
}

// Authenticated reports whether the underlying session is live.
func (g *Gateway) Authenticated() bool {
	return g.client.Authenticated()
}

// PlaceOrder submits a resting GTC limit order.
func (g *Gateway) PlaceOrder(ctx context.Context, symbol string, side domain.Side, qty, price decimal.Decimal) (*domain.Order, error) {
	return g.place(ctx, symbol, side, qty, price, WireTimeInForceGTC)
}

// PlaceAggressiveOrder submits an IOC limit order priced through the book,
// used for closes; it executes immediately instead of resting.
func (g *Gateway) PlaceAggressiveOrder(ctx context.Context, symbol string, side domain.Side, qty, price decimal.Decimal) (*domain.Order, error) {
	return g.place(ctx, symbol, side, qty, price, WireTimeInForceIOC)
}

func (g *Gateway) place(ctx context.Context, symbol string, side domain.Side, qty, price decimal.Decimal, tif string) (*domain.Order, error) {
	clientID := uuid.NewString()

	if g.dryRun {
		log.Infof("[dry-run] place %s %s qty=%s price=%s tif=%s", side, symbol, qty, price, tif)
		// simulate an immediate full fill for IOC so close paths work dry
		status := domain.OrderStatusOpen
		filled := decimal.Zero
		if tif == WireTimeInForceIOC {
			status = domain.OrderStatusFilled
			filled = qty
		}
		return &domain.Order{
			ClientID:       clientID,
			VenueID:        "dry-" + clientID[:8],
			Symbol:         symbol,
			Side:           side,
			Price:          price,
			Quantity:       qty,
			FilledQuantity: filled,
			Status:         status,
			CreatedAt:      time.Now(),
		}, nil
	}

	req := PlaceOrderRequest{
		ClientID:    clientID,
		Symbol:      symbol,
		Side:        wireSide(side),
		Type:        WireTypeLimit,
		Price:       price.String(),
		Quantity:    qty.String(),
		TimeInForce: tif,
	}
	var rec OrderRecord
	if err := g.client.doAuthed(ctx, http.MethodPost, "/v1/orders", req, &rec); err != nil {
		return nil, err
	}
	return recordToOrder(&rec)
}

// CancelOrder cancels by venue order ID. A false return with nil error
// means the venue refused the cancel, typically because the order already
// filled; callers treat that as informational, not fatal.
func (g *Gateway) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if g.dryRun {
		log.Infof("[dry-run] cancel %s", orderID)
		return true, nil
	}
	var out CancelResponse
	if err := g.client.doAuthed(ctx, http.MethodDelete, "/v1/orders/"+orderID, nil, &out); err != nil {
		return false, err
	}
	if !out.Canceled {
		log.Debugf("cancel refused for %s: %s", orderID, out.Reason)
	}
	return out.Canceled, nil
}

// GetPosition returns the signed net position for the symbol.
func (g *Gateway) GetPosition(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if g.dryRun {
		return decimal.Zero, nil
	}
	var rec PositionRecord
	if err := g.client.doAuthed(ctx, http.MethodGet, "/v1/positions/"+symbol, nil, &rec); err != nil {
		return decimal.Zero, err
	}
	if strings.TrimSpace(rec.Quantity) == "" {
		return decimal.Zero, nil
	}
	qty, err := decimal.NewFromString(rec.Quantity)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "bad position quantity %q", rec.Quantity)
	}
	return qty, nil
}

// GetBestBidAsk returns the current top of book.
func (g *Gateway) GetBestBidAsk(ctx context.Context, symbol string) (bid, ask decimal.Decimal, err error) {
	rec, err := g.ticker(ctx, symbol)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	bid, err = decimal.NewFromString(rec.BestBid)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrapf(err, "bad bid %q", rec.BestBid)
	}
	ask, err = decimal.NewFromString(rec.BestAsk)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrapf(err, "bad ask %q", rec.BestAsk)
	}
	return bid, ask, nil
}

// GetMarkPrice fetches a fresh mark price over REST. Used after fills,
// where a cached feed value must not be trusted.
func (g *Gateway) GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	rec, err := g.ticker(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	mark, err := decimal.NewFromString(rec.MarkPrice)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "bad mark price %q", rec.MarkPrice)
	}
	return mark, nil
}

func (g *Gateway) ticker(ctx context.Context, symbol string) (*TickerRecord, error) {
	var rec TickerRecord
	if err := g.client.doAuthed(ctx, http.MethodGet, "/v1/ticker/"+symbol, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func wireSide(side domain.Side) string {
	if side == domain.SideSell {
		return WireSideSell
	}
	return WireSideBuy
}

func recordToOrder(rec *OrderRecord) (*domain.Order, error) {
	price, err := decimal.NewFromString(rec.Price)
	if err != nil {
		return nil, errors.Wrapf(err, "bad order price %q", rec.Price)
	}
	qty, err := decimal.NewFromString(rec.Quantity)
	if err != nil {
		return nil, errors.Wrapf(err, "bad order quantity %q", rec.Quantity)
	}
	filled := decimal.Zero
	if strings.TrimSpace(rec.FilledQuantity) != "" {
		filled, err = decimal.NewFromString(rec.FilledQuantity)
		if err != nil {
			return nil, errors.Wrapf(err, "bad filled quantity %q", rec.FilledQuantity)
		}
	}
	return &domain.Order{
		ClientID:       rec.ClientID,
		VenueID:        rec.OrderID,
		Symbol:         rec.Symbol,
		Side:           domain.ParseSide(rec.Side),
		Price:          price,
		Quantity:       qty,
		FilledQuantity: filled,
		Status:         domain.ParseOrderStatus(rec.Status),
		CreatedAt:      time.UnixMilli(rec.CreatedAtMs),
	}, nil
}
