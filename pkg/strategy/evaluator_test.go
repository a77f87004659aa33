package strategy

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantbay/optexec/pkg/broker"
	"github.com/quantbay/optexec/pkg/broker/model"
	"github.com/quantbay/optexec/pkg/instrument"
)

type recordBroker struct {
	placed   []*model.ChildOrder
	reject   bool
	placeErr error
	calls    int
	seq      int
}

func (r *recordBroker) Name() string                    { return "REC" }
func (r *recordBroker) Login(ctx context.Context) error { return nil }
func (r *recordBroker) PlaceOrder(ctx context.Context, child *model.ChildOrder) (string, error) {
	r.calls++
	if r.placeErr != nil {
		return "", r.placeErr
	}
	if r.reject {
		return "", &broker.RejectionError{Code: 9017, Message: "rejected"}
	}
	r.seq++
	r.placed = append(r.placed, child)
	return fmt.Sprintf("REC-%d", r.seq), nil
}
func (r *recordBroker) ModifyOrder(ctx context.Context, venueOrderID string, mod model.Modify) error {
	return nil
}
func (r *recordBroker) CancelOrder(ctx context.Context, venueOrderID string) error { return nil }
func (r *recordBroker) QueryOrder(ctx context.Context, venueOrderID string) (model.OrderUpdate, error) {
	return model.OrderUpdate{}, broker.ErrUnknownOrder
}
func (r *recordBroker) QueryOrderBook(ctx context.Context) ([]model.OrderUpdate, error) {
	return nil, nil
}
func (r *recordBroker) QueryFunds(ctx context.Context) (model.Funds, error) {
	return model.Funds{}, nil
}

func testDirectory() *instrument.Directory {
	expiry := time.Date(2025, 9, 4, 0, 0, 0, 0, time.UTC)
	strikes := []int64{22300, 22350, 22400, 22450, 22500, 22550}
	ins := []*instrument.Instrument{
		{FeedToken: "IDX1", Exchange: instrument.ExchangeNFO, Underlying: instrument.UnderlyingNifty,
			Kind: instrument.KindIndex, TradingSymbol: "NIFTY 50"},
	}
	for _, strike := range strikes {
		for _, opt := range []instrument.OptionType{instrument.OptionCall, instrument.OptionPut} {
			ins = append(ins, &instrument.Instrument{
				FeedToken:     fmt.Sprintf("T%d%s", strike, opt),
				Exchange:      instrument.ExchangeNFO,
				Underlying:    instrument.UnderlyingNifty,
				Kind:          instrument.KindIndexOption,
				Expiry:        expiry,
				Strike:        decimal.NewFromInt(strike),
				OptionType:    opt,
				TradingSymbol: fmt.Sprintf("NIFTY04SEP25%d%s", strike, opt),
				LotSize:       75,
			})
		}
	}
	return instrument.NewDirectory(ins)
}

func testParams() Params {
	return Params{
		ID:          "strat-1",
		Underlying:  instrument.UnderlyingNifty,
		ExpiryClass: instrument.ExpiryWeekly,
		RangeStart:  91500,
		RangeEnd:    92000,
		EndTime:     151500,
		Lots:        2,
		LotSize:     75,
		FreezeQty:   24,
		Target:      decimal.NewFromInt(10),
		StopLoss:    decimal.NewFromInt(5),
		LimitType:   LimitPoints,
	}
}

func at(h, m, sec int) time.Time {
	return time.Date(2025, 9, 1, h, m, sec, 0, time.UTC)
}

func tick(t *testing.T, e *Evaluator, s *Strategy, ltp int64, when time.Time) {
	t.Helper()
	if err := e.Evaluate(context.Background(), s, decimal.NewFromInt(ltp), when); err != nil {
		t.Fatalf("evaluate at %v: %v", when, err)
	}
}

func TestObservationWindowTracksExtremes(t *testing.T) {
	b := &recordBroker{}
	e := NewEvaluator(testDirectory(), b, model.ProductNormal, model.OrderTypeMarket)
	s := New(testParams())

	tick(t, e, s, 22400, at(9, 16, 0))
	tick(t, e, s, 22450, at(9, 17, 0))
	tick(t, e, s, 22380, at(9, 18, 0))

	if s.High.Cmp(decimal.NewFromInt(22450)) != 0 {
		t.Errorf("high = %s, want 22450", s.High)
	}
	if s.Low.Cmp(decimal.NewFromInt(22380)) != 0 {
		t.Errorf("low = %s, want 22380", s.Low)
	}
	if s.Status != StatusCreated {
		t.Errorf("status = %s, want CREATED", s.Status)
	}
}

func TestHighBreakoutBuysCall(t *testing.T) {
	b := &recordBroker{}
	dir := testDirectory()
	e := NewEvaluator(dir, b, model.ProductNormal, model.OrderTypeMarket)
	s := New(testParams())

	tick(t, e, s, 22400, at(9, 16, 0))
	tick(t, e, s, 22450, at(9, 18, 0))
	tick(t, e, s, 22510, at(9, 25, 0))

	if s.Status != StatusRunning {
		t.Fatalf("status = %s, want RUNNING", s.Status)
	}
	if len(b.placed) != 1 {
		t.Fatalf("placed children = %d, want 1", len(b.placed))
	}
	child := b.placed[0]
	if child.Side != model.SideBuy {
		t.Errorf("side = %s, want BUY", child.Side)
	}
	if child.Quantity != 150 {
		t.Errorf("quantity = %d, want 150", child.Quantity)
	}
	in, err := dir.Resolve(child.InstrumentToken)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if in.OptionType != instrument.OptionCall || in.Strike.Cmp(decimal.NewFromInt(22500)) != 0 {
		t.Errorf("instrument = %s %s, want 22500 CE", in.Strike, in.OptionType)
	}
	if s.Position == nil || s.Position.ExpectedBuyQuantity != 150 {
		t.Errorf("position expected buy quantity not set: %+v", s.Position)
	}
}

func TestLowBreakoutSellsPut(t *testing.T) {
	b := &recordBroker{}
	dir := testDirectory()
	e := NewEvaluator(dir, b, model.ProductNormal, model.OrderTypeMarket)
	s := New(testParams())

	tick(t, e, s, 22400, at(9, 16, 0))
	tick(t, e, s, 22300, at(9, 25, 0))

	if s.Status != StatusRunning {
		t.Fatalf("status = %s, want RUNNING", s.Status)
	}
	child := b.placed[0]
	if child.Side != model.SideSell {
		t.Errorf("side = %s, want SELL", child.Side)
	}
	in, _ := dir.Resolve(child.InstrumentToken)
	if in.OptionType != instrument.OptionPut || in.Strike.Cmp(decimal.NewFromInt(22300)) != 0 {
		t.Errorf("instrument = %s %s, want 22300 PE", in.Strike, in.OptionType)
	}
	if s.Position.ExpectedSellQuantity != 150 {
		t.Errorf("expected sell quantity = %d, want 150", s.Position.ExpectedSellQuantity)
	}
}

func TestNoBreakoutCompletesAtEndTime(t *testing.T) {
	b := &recordBroker{}
	e := NewEvaluator(testDirectory(), b, model.ProductNormal, model.OrderTypeMarket)
	s := New(testParams())

	tick(t, e, s, 22400, at(9, 16, 0))
	tick(t, e, s, 22420, at(9, 19, 0))
	// stays inside the range all day
	tick(t, e, s, 22410, at(12, 0, 0))
	tick(t, e, s, 22405, at(15, 15, 0))

	if s.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", s.Status)
	}
	if s.ExitReason != ExitReasonNoEntry {
		t.Errorf("exit reason = %s, want %s", s.ExitReason, ExitReasonNoEntry)
	}
	if len(b.placed) != 0 {
		t.Errorf("orders placed = %d, want 0", len(b.placed))
	}
	if s.Position != nil {
		t.Errorf("position = %v, want nil", s.Position)
	}
}

// enterLong drives a strategy into RUNNING with a filled long position.
func enterLong(t *testing.T, e *Evaluator, b *recordBroker, s *Strategy) {
	t.Helper()
	tick(t, e, s, 22400, at(9, 16, 0))
	tick(t, e, s, 22510, at(9, 25, 0))
	if s.Status != StatusRunning {
		t.Fatalf("setup: status = %s", s.Status)
	}
	child := b.placed[0]
	child.Status = model.OrderStatusFilled
	child.TradedQuantity = child.Quantity
	child.AvgTradePrice = decimal.NewFromInt(100)
	s.Position.BuyAveragePrice = decimal.NewFromInt(100)
	s.Position.NetQuantity = child.Quantity
	s.Position.Status = model.PositionComplete
}

func TestTargetHitSquaresOff(t *testing.T) {
	b := &recordBroker{}
	e := NewEvaluator(testDirectory(), b, model.ProductNormal, model.OrderTypeMarket)
	s := New(testParams())
	enterLong(t, e, b, s)

	// +10 points on 150 units meets the target threshold
	s.Position.LastPrice = decimal.NewFromInt(110)
	tick(t, e, s, 22520, at(10, 0, 0))

	if s.Status != StatusSquaringOff {
		t.Fatalf("status = %s, want SQUARING_OFF", s.Status)
	}
	if s.ExitReason != ExitReasonTarget {
		t.Errorf("exit reason = %s, want %s", s.ExitReason, ExitReasonTarget)
	}
	if len(b.placed) != 2 {
		t.Fatalf("placed children = %d, want 2", len(b.placed))
	}
	exit := b.placed[1]
	if exit.Side != model.SideSell || exit.Quantity != 150 {
		t.Errorf("exit = %s %d, want SELL 150", exit.Side, exit.Quantity)
	}
}

func TestStopLossHitSquaresOff(t *testing.T) {
	b := &recordBroker{}
	e := NewEvaluator(testDirectory(), b, model.ProductNormal, model.OrderTypeMarket)
	s := New(testParams())
	enterLong(t, e, b, s)

	s.Position.LastPrice = decimal.NewFromInt(95)
	tick(t, e, s, 22450, at(10, 0, 0))

	if s.Status != StatusSquaringOff {
		t.Fatalf("status = %s, want SQUARING_OFF", s.Status)
	}
	if s.ExitReason != ExitReasonStopLoss {
		t.Errorf("exit reason = %s, want %s", s.ExitReason, ExitReasonStopLoss)
	}
}

func TestEndTimeForcesSquareOff(t *testing.T) {
	b := &recordBroker{}
	e := NewEvaluator(testDirectory(), b, model.ProductNormal, model.OrderTypeMarket)
	s := New(testParams())
	enterLong(t, e, b, s)

	s.Position.LastPrice = decimal.NewFromInt(102)
	tick(t, e, s, 22515, at(15, 15, 0))

	if s.Status != StatusSquaringOff {
		t.Fatalf("status = %s, want SQUARING_OFF", s.Status)
	}
	if s.ExitReason != ExitReasonEndOfDay {
		t.Errorf("exit reason = %s, want %s", s.ExitReason, ExitReasonEndOfDay)
	}
}

func TestSquareOffCompletesWhenFlat(t *testing.T) {
	b := &recordBroker{}
	e := NewEvaluator(testDirectory(), b, model.ProductNormal, model.OrderTypeMarket)
	s := New(testParams())
	enterLong(t, e, b, s)

	s.Position.LastPrice = decimal.NewFromInt(110)
	tick(t, e, s, 22520, at(10, 0, 0))
	if s.Status != StatusSquaringOff {
		t.Fatalf("status = %s, want SQUARING_OFF", s.Status)
	}

	// venue confirms the exit fill and the position nets flat
	exit := b.placed[1]
	exit.Status = model.OrderStatusFilled
	exit.TradedQuantity = exit.Quantity
	s.Position.Status = model.PositionComplete
	s.Position.NetQuantity = 0

	tick(t, e, s, 22520, at(10, 0, 5))
	if s.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", s.Status)
	}
}

func TestTransportFailedEntryNotResubmitted(t *testing.T) {
	b := &recordBroker{placeErr: &broker.TransportError{Op: "place", Err: context.DeadlineExceeded}}
	e := NewEvaluator(testDirectory(), b, model.ProductNormal, model.OrderTypeMarket)
	s := New(testParams())

	tick(t, e, s, 22400, at(9, 16, 0))
	err := e.Evaluate(context.Background(), s, decimal.NewFromInt(22510), at(9, 25, 0))
	if !broker.IsTransport(err) {
		t.Fatalf("err = %v, want transport", err)
	}
	if s.Status != StatusRunning {
		t.Fatalf("status = %s, want RUNNING", s.Status)
	}
	if b.calls != 1 {
		t.Fatalf("place attempts = %d, want 1", b.calls)
	}

	// the lost write may have reached the venue; later ticks must not
	// place a second entry or rebuild the position
	pos := s.Position
	tick(t, e, s, 22520, at(9, 25, 5))
	if b.calls != 1 {
		t.Errorf("place attempts after next tick = %d, want 1", b.calls)
	}
	if s.Position != pos {
		t.Error("position was replaced")
	}
}

func TestTransportFailedSquareOffStaysOpen(t *testing.T) {
	b := &recordBroker{}
	e := NewEvaluator(testDirectory(), b, model.ProductNormal, model.OrderTypeMarket)
	s := New(testParams())
	enterLong(t, e, b, s)

	b.placeErr = &broker.TransportError{Op: "place", Err: context.DeadlineExceeded}
	s.Position.LastPrice = decimal.NewFromInt(102)
	err := e.Evaluate(context.Background(), s, decimal.NewFromInt(22515), at(15, 15, 0))
	if !broker.IsTransport(err) {
		t.Fatalf("err = %v, want transport", err)
	}
	if s.Status != StatusSquaringOff {
		t.Fatalf("status = %s, want SQUARING_OFF", s.Status)
	}

	// the book still holds 150 net; later ticks neither re-place the exit
	// nor declare the strategy done
	attempts := b.calls
	tick(t, e, s, 22515, at(15, 15, 5))
	if b.calls != attempts {
		t.Errorf("place attempts = %d, want %d", b.calls, attempts)
	}
	if s.Status != StatusSquaringOff {
		t.Errorf("status = %s, want SQUARING_OFF", s.Status)
	}
	if s.Position.NetQuantity != 150 {
		t.Errorf("net quantity = %d, want 150", s.Position.NetQuantity)
	}
}

func TestEndOfDayExitPlacesMarketOrder(t *testing.T) {
	b := &recordBroker{}
	e := NewEvaluator(testDirectory(), b, model.ProductNormal, model.OrderTypeLimit)
	s := New(testParams())
	enterLong(t, e, b, s)

	s.Position.LastPrice = decimal.NewFromInt(102)
	tick(t, e, s, 22515, at(15, 15, 0))

	if len(s.Position.Orders) != 2 {
		t.Fatalf("orders = %d, want 2", len(s.Position.Orders))
	}
	exit := s.Position.Orders[1]
	if exit.Type != model.OrderTypeMarket {
		t.Errorf("exit type = %s, want MARKET", exit.Type)
	}
	if !exit.LimitPrice.IsZero() {
		t.Errorf("exit limit price = %s, want 0", exit.LimitPrice)
	}
}

func TestMarketSquareOffCarriesNoLimitPrice(t *testing.T) {
	b := &recordBroker{}
	e := NewEvaluator(testDirectory(), b, model.ProductNormal, model.OrderTypeMarket)
	s := New(testParams())
	enterLong(t, e, b, s)

	s.Position.LastPrice = decimal.NewFromInt(110)
	tick(t, e, s, 22520, at(10, 0, 0))

	exit := s.Position.Orders[1]
	if exit.Type != model.OrderTypeMarket {
		t.Fatalf("exit type = %s, want MARKET", exit.Type)
	}
	if !exit.LimitPrice.IsZero() {
		t.Errorf("exit limit price = %s, want 0", exit.LimitPrice)
	}
}

func TestEntryRejectionFailsStrategy(t *testing.T) {
	b := &recordBroker{reject: true}
	e := NewEvaluator(testDirectory(), b, model.ProductNormal, model.OrderTypeMarket)
	s := New(testParams())

	tick(t, e, s, 22400, at(9, 16, 0))
	err := e.Evaluate(context.Background(), s, decimal.NewFromInt(22510), at(9, 25, 0))
	if !broker.IsRejection(err) {
		t.Fatalf("err = %v, want rejection", err)
	}
	if s.Status != StatusError {
		t.Errorf("status = %s, want ERROR", s.Status)
	}
}
