// Package dummy is a deterministic in-memory venue used for dry runs and
// tests. Orders fill at the last known quote on the next order-book poll;
// orders whose instrument has no quote are rejected.
package dummy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantbay/optexec/pkg/broker"
	"github.com/quantbay/optexec/pkg/broker/model"
)

// QuoteSource supplies the last traded price used to fill orders.
type QuoteSource interface {
	Quote(token string) (decimal.Decimal, bool)
}

type Dummy struct {
	quotes QuoteSource

	mu     sync.Mutex
	seq    int64
	orders map[string]*model.ChildOrder
}

func New(quotes QuoteSource) *Dummy {
	return &Dummy{
		quotes: quotes,
		orders: make(map[string]*model.ChildOrder),
	}
}

func (d *Dummy) Name() string { return "DUMMY" }

func (d *Dummy) Login(ctx context.Context) error { return nil }

func (d *Dummy) PlaceOrder(ctx context.Context, child *model.ChildOrder) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	venueOrderID := fmt.Sprintf("DUM-%06d", d.seq)

	cp := *child
	cp.VenueOrderID = venueOrderID
	cp.Status = model.OrderStatusWorking
	cp.UpdatedAt = time.Now()
	d.orders[venueOrderID] = &cp

	zap.S().Debugw("dummy order placed", "venue_order_id", venueOrderID, "token", child.InstrumentToken, "qty", child.Quantity)
	return venueOrderID, nil
}

func (d *Dummy) ModifyOrder(ctx context.Context, venueOrderID string, mod model.Modify) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	o, ok := d.orders[venueOrderID]
	if !ok {
		return broker.ErrUnknownOrder
	}
	if !o.Status.Live() {
		return nil
	}
	if mod.Quantity > 0 {
		o.Quantity = mod.Quantity
	}
	o.LimitPrice = mod.LimitPrice
	o.TriggerPrice = mod.TriggerPrice
	o.UpdatedAt = time.Now()
	return nil
}

func (d *Dummy) CancelOrder(ctx context.Context, venueOrderID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	o, ok := d.orders[venueOrderID]
	if !ok {
		return broker.ErrUnknownOrder
	}
	if o.Status.Live() {
		o.Status = model.OrderStatusCancelled
		o.ErrorCode = broker.CodeRejected
		o.ErrorMessage = "cancelled by user"
		o.UpdatedAt = time.Now()
	}
	return nil
}

func (d *Dummy) QueryOrder(ctx context.Context, venueOrderID string) (model.OrderUpdate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	o, ok := d.orders[venueOrderID]
	if !ok {
		return model.OrderUpdate{}, broker.ErrUnknownOrder
	}
	d.settle(o)
	return toUpdate(o), nil
}

func (d *Dummy) QueryOrderBook(ctx context.Context) ([]model.OrderUpdate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]model.OrderUpdate, 0, len(d.orders))
	for _, o := range d.orders {
		d.settle(o)
		out = append(out, toUpdate(o))
	}
	return out, nil
}

func (d *Dummy) QueryFunds(ctx context.Context) (model.Funds, error) {
	return model.Funds{
		Available: decimal.NewFromInt(10_000_000),
		Utilized:  decimal.Zero,
	}, nil
}

// settle fills a live order at the last quote, or rejects it when the
// instrument has no quote yet.
func (d *Dummy) settle(o *model.ChildOrder) {
	if !o.Status.Live() {
		return
	}
	ltp, ok := d.quotes.Quote(o.InstrumentToken)
	if !ok {
		o.Status = model.OrderStatusRejected
		o.ErrorCode = broker.CodeRejected
		o.ErrorMessage = fmt.Sprintf("ltp not found for %s", o.InstrumentToken)
		o.UpdatedAt = time.Now()
		return
	}
	o.AvgTradePrice = ltp
	o.TradedQuantity = o.Quantity
	o.Status = model.OrderStatusFilled
	o.UpdatedAt = time.Now()
	zap.S().Infow("dummy fill", "venue_order_id", o.VenueOrderID, "side", o.Side.String(), "qty", o.TradedQuantity, "price", o.AvgTradePrice)
}

func toUpdate(o *model.ChildOrder) model.OrderUpdate {
	return model.OrderUpdate{
		VenueOrderID:   o.VenueOrderID,
		AvgTradePrice:  o.AvgTradePrice,
		TradedQuantity: o.TradedQuantity,
		Status:         o.Status,
		ErrorCode:      o.ErrorCode,
		ErrorMessage:   o.ErrorMessage,
		UpdatedAt:      o.UpdatedAt,
	}
}
