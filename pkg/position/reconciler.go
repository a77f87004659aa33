// Package position folds venue order state into position aggregates and
// derives PnL from them. The venue order book is always the source of truth;
// local state is only ever overwritten from it, never merged.
package position

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantbay/optexec/pkg/broker"
	"github.com/quantbay/optexec/pkg/broker/model"
)

// QuoteSource supplies the latest traded price per instrument without blocking.
type QuoteSource interface {
	Quote(token string) (decimal.Decimal, bool)
}

// Reconciler snapshots the venue order book and folds it into positions.
// Reconcile is idempotent: with no venue-side change a repeat pass leaves the
// position untouched.
type Reconciler struct {
	broker broker.Broker
	quotes QuoteSource
	retry  broker.RetryPolicy
}

func NewReconciler(b broker.Broker, quotes QuoteSource) *Reconciler {
	return &Reconciler{
		broker: b,
		quotes: quotes,
		retry:  broker.ReadPolicy(),
	}
}

// Reconcile pulls the current order book and updates pos from it. A rejected
// or cancelled child moves the position to ERROR and the rejection is
// returned; working limit children are re-priced at the latest quote so they
// chase the market instead of resting behind it.
func (r *Reconciler) Reconcile(ctx context.Context, pos *model.Position) error {
	if pos == nil || pos.Status == model.PositionError {
		return nil
	}

	var updates []model.OrderUpdate
	err := r.retry.Do(ctx, func() error {
		var qerr error
		updates, qerr = r.broker.QueryOrderBook(ctx)
		return qerr
	})
	if err != nil {
		return err
	}

	byVenueID := make(map[string]model.OrderUpdate, len(updates))
	for _, u := range updates {
		byVenueID[u.VenueOrderID] = u
	}

	ltp, haveLTP := r.quotes.Quote(pos.InstrumentToken)
	if haveLTP {
		pos.LastPrice = ltp
	}

	for _, order := range pos.Orders {
		for _, child := range order.Children {
			if child.VenueOrderID == "" {
				continue
			}
			u, ok := byVenueID[child.VenueOrderID]
			if !ok {
				continue
			}
			child.Status = u.Status
			child.TradedQuantity = u.TradedQuantity
			child.AvgTradePrice = u.AvgTradePrice
			child.ErrorCode = u.ErrorCode
			child.ErrorMessage = u.ErrorMessage
			if !u.UpdatedAt.IsZero() {
				child.UpdatedAt = u.UpdatedAt
			}

			switch child.Status {
			case model.OrderStatusRejected, model.OrderStatusCancelled:
				pos.Status = model.PositionError
				zap.S().Errorw("child order terminated by venue",
					"venue_order_id", child.VenueOrderID, "status", child.Status, "reason", child.ErrorMessage)
				return &broker.RejectionError{
					VenueOrderID: child.VenueOrderID,
					Code:         child.ErrorCode,
					Message:      child.ErrorMessage,
				}
			case model.OrderStatusWorking, model.OrderStatusOpen:
				if child.Type == model.OrderTypeLimit && haveLTP && !child.LimitPrice.Equal(ltp) {
					r.chase(ctx, child, ltp)
				}
			}
		}
	}

	r.aggregate(pos)
	return nil
}

// chase re-prices a resting limit child at the latest traded price. A chase
/// failure is logged, not surfaced: the next pass retries it.
func (r *Reconciler) chase(ctx context.Context, child *model.ChildOrder, ltp decimal.Decimal) {
	remaining := child.Quantity - child.TradedQuantity
	if remaining <= 0 {
		return
	}
	mod := model.Modify{
		Quantity:     child.Quantity,
		LimitPrice:   ltp,
		TriggerPrice: child.TriggerPrice,
	}
	if err := r.broker.ModifyOrder(ctx, child.VenueOrderID, mod); err != nil {
		zap.S().Warnw("limit chase failed", "venue_order_id", child.VenueOrderID, "err", err)
		return
	}
	child.LimitPrice = ltp
}

// aggregate recomputes per-side volume-weighted averages and the completion
// state from the children alone.
func (r *Reconciler) aggregate(pos *model.Position) {
	var buyQty, sellQty int64
	buyValue := decimal.Zero
	sellValue := decimal.Zero

	for _, order := range pos.Orders {
		for _, child := range order.Children {
			if child.TradedQuantity == 0 {
				continue
			}
			traded := decimal.NewFromInt(child.TradedQuantity)
			switch child.Side {
			case model.SideBuy:
				buyQty += child.TradedQuantity
				buyValue = buyValue.Add(child.AvgTradePrice.Mul(traded))
			case model.SideSell:
				sellQty += child.TradedQuantity
				sellValue = sellValue.Add(child.AvgTradePrice.Mul(traded))
			}
		}
	}

	pos.TradedBuyQuantity = buyQty
	pos.TradedSellQuantity = sellQty
	pos.BuyValue = buyValue
	pos.SellValue = sellValue
	if buyQty > 0 {
		pos.BuyAveragePrice = buyValue.Div(decimal.NewFromInt(buyQty))
	}
	if sellQty > 0 {
		pos.SellAveragePrice = sellValue.Div(decimal.NewFromInt(sellQty))
	}
	pos.NetQuantity = buyQty - sellQty

	if buyQty == pos.ExpectedBuyQuantity && sellQty == pos.ExpectedSellQuantity {
		if pos.Status == model.PositionPending {
			zap.S().Infow("position complete",
				"token", pos.InstrumentToken, "buy", buyQty, "sell", sellQty)
		}
		pos.Status = model.PositionComplete
	} else {
		if buyQty > pos.ExpectedBuyQuantity || sellQty > pos.ExpectedSellQuantity {
			zap.S().Errorw("venue reports more than expected, leaving pending",
				"token", pos.InstrumentToken,
				"buy", buyQty, "expected_buy", pos.ExpectedBuyQuantity,
				"sell", sellQty, "expected_sell", pos.ExpectedSellQuantity)
		}
		pos.Status = model.PositionPending
	}
}
