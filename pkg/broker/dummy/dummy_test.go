package dummy

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantbay/optexec/pkg/broker"
	"github.com/quantbay/optexec/pkg/broker/model"
)

type mapQuotes map[string]decimal.Decimal

func (m mapQuotes) Quote(token string) (decimal.Decimal, bool) {
	q, ok := m[token]
	return q, ok
}

func child(token string, qty int64) *model.ChildOrder {
	return &model.ChildOrder{
		ParentID:        "P1",
		StrategyID:      "S1",
		InstrumentToken: token,
		Type:            model.OrderTypeMarket,
		Side:            model.SideBuy,
		Quantity:        qty,
	}
}

func TestFillAtQuoteOnPoll(t *testing.T) {
	ctx := context.Background()
	d := New(mapQuotes{"TOK1": decimal.NewFromInt(105)})

	id, err := d.PlaceOrder(ctx, child("TOK1", 150))
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	up, err := d.QueryOrder(ctx, id)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if up.Status != model.OrderStatusFilled {
		t.Fatalf("status = %s, want FILLED", up.Status)
	}
	if up.TradedQuantity != 150 || up.AvgTradePrice.String() != "105" {
		t.Errorf("fill = %d @ %s", up.TradedQuantity, up.AvgTradePrice)
	}
}

func TestRejectWithoutQuote(t *testing.T) {
	ctx := context.Background()
	d := New(mapQuotes{})

	id, err := d.PlaceOrder(ctx, child("TOK1", 75))
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	book, err := d.QueryOrderBook(ctx)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if len(book) != 1 || book[0].VenueOrderID != id {
		t.Fatalf("unexpected book %v", book)
	}
	if book[0].Status != model.OrderStatusRejected {
		t.Errorf("status = %s, want REJECTED", book[0].Status)
	}
	if book[0].ErrorCode != broker.CodeRejected {
		t.Errorf("error code = %d", book[0].ErrorCode)
	}
}

func TestCancelBeforeSettle(t *testing.T) {
	ctx := context.Background()
	d := New(mapQuotes{"TOK1": decimal.NewFromInt(100)})

	id, _ := d.PlaceOrder(ctx, child("TOK1", 75))
	if err := d.CancelOrder(ctx, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	up, _ := d.QueryOrder(ctx, id)
	if up.Status != model.OrderStatusCancelled {
		t.Errorf("status = %s, want CANCELLED", up.Status)
	}
	if up.TradedQuantity != 0 {
		t.Errorf("cancelled order traded %d", up.TradedQuantity)
	}
}

func TestUnknownOrder(t *testing.T) {
	ctx := context.Background()
	d := New(mapQuotes{})

	if _, err := d.QueryOrder(ctx, "DUM-999999"); err != broker.ErrUnknownOrder {
		t.Errorf("query err = %v", err)
	}
	if err := d.CancelOrder(ctx, "DUM-999999"); err != broker.ErrUnknownOrder {
		t.Errorf("cancel err = %v", err)
	}
}
