package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Side int

const (
	SideBuy  Side = 1
	SideSell Side = -1
)

func (s Side) String() string {
	if s == SideBuy {
		return "BUY"
	}
	return "SELL"
}

// Opposite returns the offsetting side, used for square-off orders.
func (s Side) Opposite() Side {
	return -s
}

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

type ProductType string

const (
	ProductNormal   ProductType = "NRML"
	ProductIntraday ProductType = "MIS"
)

type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "CREATED"
	OrderStatusSent      OrderStatus = "SENT"
	OrderStatusWorking   OrderStatus = "WORKING"
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// Live reports whether the venue may still fill the order.
func (s OrderStatus) Live() bool {
	return s == OrderStatusSent || s == OrderStatusWorking || s == OrderStatusOpen
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

// Order is a parent order owned by a strategy. Children are created by the
// slicer in slice order and submitted to the venue independently.
type Order struct {
	ID              string
	StrategyID      string
	InstrumentToken string
	Product         ProductType
	Type            OrderType
	Side            Side
	Quantity        int64
	LimitPrice      decimal.Decimal
	TriggerPrice    decimal.Decimal
	CreatedAt       time.Time

	Children []*ChildOrder
}

func NewOrder(strategyID, token string, product ProductType, typ OrderType, side Side, limit, trigger decimal.Decimal, qty int64) *Order {
	return &Order{
		ID:              uuid.NewString(),
		StrategyID:      strategyID,
		InstrumentToken: token,
		Product:         product,
		Type:            typ,
		Side:            side,
		Quantity:        qty,
		LimitPrice:      limit,
		TriggerPrice:    trigger,
		CreatedAt:       time.Now(),
	}
}

// ChildByVenueID returns the child order carrying the given venue order id.
func (o *Order) ChildByVenueID(venueOrderID string) (*ChildOrder, bool) {
	for _, c := range o.Children {
		if c.VenueOrderID == venueOrderID {
			return c, true
		}
	}
	return nil, false
}

func (o *Order) String() string {
	return fmt.Sprintf("Order(id=%s, token=%s, side=%s, type=%s, qty=%d, limit=%s, children=%d)",
		o.ID, o.InstrumentToken, o.Side, o.Type, o.Quantity, o.LimitPrice, len(o.Children))
}

// ChildOrder is a quantity-bounded slice of a parent order. Owned exclusively
// by its parent; the venue order id is assigned by the broker adapter.
type ChildOrder struct {
	Index           int
	ParentID        string
	StrategyID      string
	InstrumentToken string
	Product         ProductType
	Type            OrderType
	Side            Side
	Quantity        int64
	LimitPrice      decimal.Decimal
	TriggerPrice    decimal.Decimal

	VenueOrderID   string
	TradedQuantity int64
	AvgTradePrice  decimal.Decimal
	Status         OrderStatus
	ErrorCode      int
	ErrorMessage   string
	UpdatedAt      time.Time
}

func (c *ChildOrder) String() string {
	return fmt.Sprintf("ChildOrder(parent=%s, idx=%d, venueID=%s, side=%s, qty=%d, traded=%d@%s, status=%s)",
		c.ParentID, c.Index, c.VenueOrderID, c.Side, c.Quantity, c.TradedQuantity, c.AvgTradePrice, c.Status)
}

// OrderUpdate is the venue's view of one child order.
type OrderUpdate struct {
	VenueOrderID   string
	AvgTradePrice  decimal.Decimal
	TradedQuantity int64
	Status         OrderStatus
	ErrorCode      int
	ErrorMessage   string
	UpdatedAt      time.Time
}

// Modify carries the re-priced parameters for a working order.
type Modify struct {
	Quantity     int64
	LimitPrice   decimal.Decimal
	TriggerPrice decimal.Decimal
}

// Funds is the advisory margin snapshot from the venue.
type Funds struct {
	Available decimal.Decimal
	Utilized  decimal.Decimal
}
