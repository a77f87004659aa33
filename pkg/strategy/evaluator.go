package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantbay/optexec/pkg/broker"
	"github.com/quantbay/optexec/pkg/broker/model"
	"github.com/quantbay/optexec/pkg/instrument"
	"github.com/quantbay/optexec/pkg/position"
)

const (
	ExitReasonTarget   = "TARGET"
	ExitReasonStopLoss = "STOPLOSS"
	ExitReasonEndOfDay = "END_TIME"
	ExitReasonNoEntry  = "NO_BREAKOUT"
)

// Evaluator advances a strategy's state machine on every index tick.
// Entries buy a call above the observed high and sell a put below the
// observed low; exits fire on point thresholds against marked-to-market PnL
// or at the configured end time.
type Evaluator struct {
	directory *instrument.Directory
	broker    broker.Broker
	product   model.ProductType
	orderType model.OrderType
	margin    *position.MarginEstimator
}

func NewEvaluator(dir *instrument.Directory, b broker.Broker, product model.ProductType, orderType model.OrderType) *Evaluator {
	return &Evaluator{
		directory: dir,
		broker:    b,
		product:   product,
		orderType: orderType,
	}
}

// WithMargin enables the advisory pre-trade margin check on entries.
func (e *Evaluator) WithMargin(m *position.MarginEstimator) *Evaluator {
	e.margin = m
	return e
}

// Evaluate processes one underlying tick at the given wall-clock instant.
// It mutates s in place; any returned error has already been reflected in
// the strategy status when it is a rejection.
func (e *Evaluator) Evaluate(ctx context.Context, s *Strategy, ltp decimal.Decimal, now time.Time) error {
	clock := ClockOf(now)

	switch s.Status {
	case StatusCreated:
		return e.evaluateCreated(ctx, s, ltp, clock)
	case StatusRunning:
		return e.evaluateRunning(ctx, s, clock)
	case StatusSquaringOff:
		e.evaluateSquaringOff(s)
		return nil
	default:
		return nil
	}
}

func (e *Evaluator) evaluateCreated(ctx context.Context, s *Strategy, ltp decimal.Decimal, clock ClockTime) error {
	switch {
	case clock >= s.RangeStart && clock <= s.RangeEnd:
		if !s.HasSeen {
			s.High = ltp
			s.Low = ltp
			s.HasSeen = true
			return nil
		}
		if ltp.GreaterThan(s.High) {
			s.High = ltp
		} else if ltp.LessThan(s.Low) {
			s.Low = ltp
		}

	case clock > s.RangeEnd:
		if !s.HasSeen {
			// never saw a tick inside the window; nothing to break out of
			if clock >= s.EndTime {
				s.Status = StatusCompleted
				s.ExitReason = ExitReasonNoEntry
			}
			return nil
		}
		if ltp.GreaterThan(s.High) {
			return e.enter(ctx, s, ltp, instrument.OptionCall, model.SideBuy)
		}
		if ltp.LessThan(s.Low) {
			return e.enter(ctx, s, ltp, instrument.OptionPut, model.SideSell)
		}
		if clock >= s.EndTime {
			zap.S().Infow("no breakout before end time", "strategy_id", s.ID,
				"high", s.High, "low", s.Low, "ltp", ltp)
			s.Status = StatusCompleted
			s.ExitReason = ExitReasonNoEntry
		}
	}
	return nil
}

func (e *Evaluator) enter(ctx context.Context, s *Strategy, ltp decimal.Decimal, opt instrument.OptionType, side model.Side) error {
	expiry, err := e.directory.Expiry(s.Underlying, s.ExpiryClass)
	if err != nil {
		s.Fail(err.Error())
		return err
	}
	index, err := e.directory.UnderlyingIndex(s.Underlying)
	if err != nil {
		s.Fail(err.Error())
		return err
	}
	strike := instrument.RoundToStrike(ltp, instrument.StrikeStep(s.Underlying))
	in, err := e.directory.ResolveBySymbolParts(index.Exchange, s.Underlying, instrument.KindIndexOption, expiry, strike, opt)
	if err != nil {
		s.Fail(err.Error())
		return err
	}

	zap.S().Infow("breakout", "strategy_id", s.ID, "ltp", ltp,
		"high", s.High, "low", s.Low, "symbol", in.TradingSymbol, "side", side)

	if e.margin != nil {
		position.AdvisoryCheck(ctx, e.margin, e.broker, in, side, s.Quantity())
	}

	order := model.NewOrder(s.ID, in.FeedToken, e.product, e.orderType, side,
		ltp, decimal.Zero, s.Quantity())
	if e.orderType != model.OrderTypeLimit {
		order.LimitPrice = decimal.Zero
	}

	// the transition commits before placement: a transport-failed write has
	// an unknown outcome and is resolved by reconciliation, not resubmission
	s.Position = model.NewPosition(order)
	s.Status = StatusRunning
	if err := broker.Submit(ctx, e.broker, order, s.LotSize, s.FreezeQty); err != nil {
		if broker.IsRejection(err) || broker.IsConfig(err) {
			s.Fail(err.Error())
		}
		return err
	}
	return nil
}

func (e *Evaluator) evaluateRunning(ctx context.Context, s *Strategy, clock ClockTime) error {
	if s.Position == nil {
		s.Fail("running without a position")
		return nil
	}
	if clock >= s.EndTime {
		return e.SquareOff(ctx, s, ExitReasonEndOfDay)
	}
	if s.Position.Status != model.PositionComplete {
		return nil
	}

	pnl := position.ComputePnL(s.Position)
	qty := decimal.NewFromInt(s.Quantity())
	// target wins when a single tick crosses both thresholds
	if s.Target.IsPositive() && pnl.Total.GreaterThanOrEqual(s.Target.Mul(qty)) {
		return e.SquareOff(ctx, s, ExitReasonTarget)
	}
	if s.StopLoss.IsPositive() && pnl.Total.LessThanOrEqual(s.StopLoss.Neg().Mul(qty)) {
		return e.SquareOff(ctx, s, ExitReasonStopLoss)
	}
	return nil
}

// SquareOff closes the open quantity with an opposite-side order and moves
// the strategy to SQUARING_OFF. With nothing open it completes immediately.
func (e *Evaluator) SquareOff(ctx context.Context, s *Strategy, reason string) error {
	if s.Status.Terminal() || s.Status == StatusSquaringOff {
		return nil
	}
	s.ExitReason = reason

	open := s.Position.OpenQuantity()
	if open == 0 {
		s.Status = StatusCompleted
		return nil
	}

	side := s.Position.OpenSide().Opposite()
	zap.S().Infow("squaring off", "strategy_id", s.ID, "reason", reason, "qty", open, "side", side)

	// the end-of-day exit must clear regardless of where the book sits
	typ := e.orderType
	if reason == ExitReasonEndOfDay {
		typ = model.OrderTypeMarket
	}
	limit := s.Position.LastPrice
	if typ != model.OrderTypeLimit {
		limit = decimal.Zero
	}

	// as with entries, the transition commits before placement so a
	// transport-failed exit is driven by reconciliation, never re-placed
	order := model.NewOrder(s.ID, s.Position.InstrumentToken, e.product, typ, side,
		limit, decimal.Zero, open)
	s.Position.AddOrder(order)
	s.Status = StatusSquaringOff
	if err := broker.Submit(ctx, e.broker, order, s.LotSize, s.FreezeQty); err != nil {
		if broker.IsRejection(err) || broker.IsConfig(err) {
			s.Fail(err.Error())
		}
		return err
	}
	return nil
}

func (e *Evaluator) evaluateSquaringOff(s *Strategy) {
	// NetQuantity is venue-reported; expected quantities alone can read flat
	// while the exit is still working
	if s.Position != nil && s.Position.Status == model.PositionComplete &&
		s.Position.OpenQuantity() == 0 && s.Position.NetQuantity == 0 {
		zap.S().Infow("square off complete", "strategy_id", s.ID, "reason", s.ExitReason)
		s.Status = StatusCompleted
	}
}
