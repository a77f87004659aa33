// Package journal persists the order-event audit trail. Events flow engine ->
// kafka -> worker -> postgres; nothing in the trading path ever reads them
// back.
package journal

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantbay/optexec/pkg/broker/model"
)

type EventType string

const (
	EventPlaced    EventType = "PLACED"
	EventModified  EventType = "MODIFIED"
	EventCancelled EventType = "CANCELLED"
	EventFilled    EventType = "FILLED"
	EventRejected  EventType = "REJECTED"
	EventUpdate    EventType = "UPDATE"
)

type OrderEvent struct {
	EventID         string `gorm:"primaryKey"`
	StrategyID      string
	OrderID         string
	VenueOrderID    string
	InstrumentToken string
	EventType       EventType
	Side            string
	Quantity        int64
	TradedQuantity  int64
	Price           decimal.Decimal `gorm:"type:numeric"`
	ErrorCode       int
	ErrorMessage    string
	Timestamp       time.Time
}

func (OrderEvent) TableName() string { return "order_events" }

func NewEventID(venueOrderID string, t EventType, seq int64) string {
	return fmt.Sprintf("%s-%s-%d", venueOrderID, t, seq)
}

func NewPlacedEvent(child *model.ChildOrder, ts time.Time) *OrderEvent {
	return &OrderEvent{
		EventID:         NewEventID(child.VenueOrderID, EventPlaced, 0),
		StrategyID:      child.StrategyID,
		OrderID:         child.ParentID,
		VenueOrderID:    child.VenueOrderID,
		InstrumentToken: child.InstrumentToken,
		EventType:       EventPlaced,
		Side:            child.Side.String(),
		Quantity:        child.Quantity,
		Price:           child.LimitPrice,
		Timestamp:       ts,
	}
}

// NewUpdateEvent maps a venue order update to its audit form. The sequence
// keeps repeated updates of the same order distinct without losing the
// replay-safe key.
func NewUpdateEvent(child *model.ChildOrder, ts time.Time, seq int64) *OrderEvent {
	t := EventUpdate
	switch child.Status {
	case model.OrderStatusFilled:
		t = EventFilled
	case model.OrderStatusCancelled:
		t = EventCancelled
	case model.OrderStatusRejected:
		t = EventRejected
	}
	return &OrderEvent{
		EventID:         NewEventID(child.VenueOrderID, t, seq),
		StrategyID:      child.StrategyID,
		OrderID:         child.ParentID,
		VenueOrderID:    child.VenueOrderID,
		InstrumentToken: child.InstrumentToken,
		EventType:       t,
		Side:            child.Side.String(),
		Quantity:        child.Quantity,
		TradedQuantity:  child.TradedQuantity,
		Price:           child.AvgTradePrice,
		ErrorCode:       child.ErrorCode,
		ErrorMessage:    child.ErrorMessage,
		Timestamp:       ts,
	}
}
