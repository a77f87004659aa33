package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type PositionStatus string

const (
	PositionPending  PositionStatus = "PENDING"
	PositionComplete PositionStatus = "COMPLETE"
	PositionError    PositionStatus = "ERROR"
)

// Position aggregates orders sharing an instrument. The Expected quantities
// are recorded when each order is created; the Traded quantities and averages
// are venue-reported aggregates maintained by the reconciler, which marks the
// position COMPLETE only once traded matches expected on both sides.
type Position struct {
	InitialOrderID  string
	InstrumentToken string

	ExpectedBuyQuantity  int64
	ExpectedSellQuantity int64

	TradedBuyQuantity  int64
	BuyAveragePrice    decimal.Decimal
	BuyValue           decimal.Decimal
	TradedSellQuantity int64
	SellAveragePrice   decimal.Decimal
	SellValue          decimal.Decimal
	NetQuantity        int64

	Status    PositionStatus
	LastPrice decimal.Decimal

	Orders []*Order
}

func NewPosition(initial *Order) *Position {
	p := &Position{
		InitialOrderID:  initial.ID,
		InstrumentToken: initial.InstrumentToken,
		Status:          PositionPending,
		Orders:          []*Order{initial},
	}
	switch initial.Side {
	case SideBuy:
		p.ExpectedBuyQuantity = initial.Quantity
	case SideSell:
		p.ExpectedSellQuantity = initial.Quantity
	}
	return p
}

// AddOrder registers a further order (e.g. the square-off) and raises the
// expected net quantity on its side.
func (p *Position) AddOrder(o *Order) {
	p.Orders = append(p.Orders, o)
	switch o.Side {
	case SideBuy:
		p.ExpectedBuyQuantity += o.Quantity
	case SideSell:
		p.ExpectedSellQuantity += o.Quantity
	}
}

// OpenQuantity is the unoffset quantity expected on the book.
func (p *Position) OpenQuantity() int64 {
	d := p.ExpectedBuyQuantity - p.ExpectedSellQuantity
	if d < 0 {
		return -d
	}
	return d
}

// OpenSide is the side currently held; zero net returns SideBuy arbitrarily,
// callers must check OpenQuantity first.
func (p *Position) OpenSide() Side {
	if p.ExpectedSellQuantity > p.ExpectedBuyQuantity {
		return SideSell
	}
	return SideBuy
}

func (p *Position) String() string {
	return fmt.Sprintf("Position(token=%s, buy=%d@%s, sell=%d@%s, net=%d, status=%s)",
		p.InstrumentToken, p.TradedBuyQuantity, p.BuyAveragePrice,
		p.TradedSellQuantity, p.SellAveragePrice, p.NetQuantity, p.Status)
}
