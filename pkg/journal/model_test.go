package journal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantbay/optexec/pkg/broker/model"
)

func testChild(status model.OrderStatus) *model.ChildOrder {
	return &model.ChildOrder{
		ParentID:        "P1",
		StrategyID:      "S1",
		InstrumentToken: "T22500CE",
		Side:            model.SideBuy,
		Quantity:        150,
		TradedQuantity:  150,
		LimitPrice:      decimal.NewFromInt(100),
		AvgTradePrice:   decimal.NewFromFloat(104.35),
		VenueOrderID:    "V-001",
		Status:          status,
		ErrorCode:       9017,
		ErrorMessage:    "RMS check failed",
	}
}

func TestNewPlacedEvent(t *testing.T) {
	ts := time.Date(2025, 9, 4, 10, 21, 33, 0, time.UTC)
	ev := NewPlacedEvent(testChild(model.OrderStatusSent), ts)

	if ev.EventID != "V-001-PLACED-0" {
		t.Errorf("event id = %s", ev.EventID)
	}
	if ev.EventType != EventPlaced || ev.Side != "BUY" || ev.Quantity != 150 {
		t.Errorf("event = %+v", ev)
	}
	if ev.Price.String() != "100" {
		t.Errorf("price = %s, want limit price", ev.Price)
	}
}

func TestNewUpdateEventStatusMapping(t *testing.T) {
	ts := time.Now()
	cases := []struct {
		status model.OrderStatus
		want   EventType
	}{
		{model.OrderStatusFilled, EventFilled},
		{model.OrderStatusRejected, EventRejected},
		{model.OrderStatusCancelled, EventCancelled},
		{model.OrderStatusWorking, EventUpdate},
		{model.OrderStatusOpen, EventUpdate},
	}
	for _, c := range cases {
		ev := NewUpdateEvent(testChild(c.status), ts, 3)
		if ev.EventType != c.want {
			t.Errorf("status %s -> %s, want %s", c.status, ev.EventType, c.want)
		}
		wantID := NewEventID("V-001", c.want, 3)
		if ev.EventID != wantID {
			t.Errorf("event id = %s, want %s", ev.EventID, wantID)
		}
	}
}

func TestUpdateEventCarriesFillAndError(t *testing.T) {
	ev := NewUpdateEvent(testChild(model.OrderStatusRejected), time.Now(), 0)
	if ev.TradedQuantity != 150 || ev.Price.String() != "104.35" {
		t.Errorf("fill = %d @ %s", ev.TradedQuantity, ev.Price)
	}
	if ev.ErrorCode != 9017 || ev.ErrorMessage == "" {
		t.Errorf("error fields = %d %q", ev.ErrorCode, ev.ErrorMessage)
	}
}
