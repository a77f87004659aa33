package position

import (
	"github.com/shopspring/decimal"

	"github.com/quantbay/optexec/pkg/broker/model"
)

// PnL is the profit split of a position at a point in time. Realized covers
// the offset quantity, Unrealized marks the open remainder to the last price.
type PnL struct {
	Realized   decimal.Decimal
	Unrealized decimal.Decimal
	Total      decimal.Decimal
}

// ComputePnL derives PnL from venue-reported fills. The open leg is marked at
// pos.LastPrice; when no price has been seen yet the sell average stands in,
// which values an open short at zero.
func ComputePnL(pos *model.Position) PnL {
	var buyQty, sellQty int64
	for _, order := range pos.Orders {
		for _, child := range order.Children {
			switch child.Side {
			case model.SideBuy:
				buyQty += child.TradedQuantity
			case model.SideSell:
				sellQty += child.TradedQuantity
			}
		}
	}

	buyAvg := pos.BuyAveragePrice
	sellAvg := pos.SellAveragePrice
	ltp := pos.LastPrice
	if ltp.IsZero() {
		ltp = sellAvg
	}

	var realized, unrealized decimal.Decimal
	switch {
	case sellQty > buyQty:
		realized = decimal.NewFromInt(buyQty).Mul(sellAvg.Sub(buyAvg))
		unrealized = decimal.NewFromInt(sellQty - buyQty).Mul(sellAvg.Sub(ltp))
	case buyQty > sellQty:
		realized = decimal.NewFromInt(sellQty).Mul(sellAvg.Sub(buyAvg))
		unrealized = decimal.NewFromInt(buyQty - sellQty).Mul(ltp.Sub(buyAvg))
	default:
		realized = decimal.NewFromInt(buyQty).Mul(sellAvg.Sub(buyAvg))
	}

	return PnL{
		Realized:   realized,
		Unrealized: unrealized,
		Total:      realized.Add(unrealized),
	}
}
