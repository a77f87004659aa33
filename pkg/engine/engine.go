// Package engine runs the trading session: it consumes operator commands,
// drives the strategy state machine off index ticks and keeps positions
// reconciled against the venue on a fixed cadence.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantbay/optexec/pkg/broker"
	"github.com/quantbay/optexec/pkg/broker/model"
	"github.com/quantbay/optexec/pkg/bus"
	"github.com/quantbay/optexec/pkg/instrument"
	"github.com/quantbay/optexec/pkg/journal"
	"github.com/quantbay/optexec/pkg/position"
	"github.com/quantbay/optexec/pkg/pricefeed"
	"github.com/quantbay/optexec/pkg/strategy"
)

const (
	tickPollTimeout = 200 * time.Millisecond

	syncInterval = time.Second
	// squaring off wants the flat confirmation as fast as the venue allows
	squareOffSyncInterval = 250 * time.Millisecond

	ltpPublishInterval = time.Second
)

// CommandSource is the inbound half of the control plane.
type CommandSource interface {
	Poll(ctx context.Context) (*bus.Command, error)
}

// EventSink receives outbound lifecycle events.
type EventSink interface {
	Publish(ctx context.Context, ev bus.Event)
}

type Options struct {
	Venue     string
	Product   model.ProductType
	OrderType model.OrderType

	MarketStart strategy.ClockTime
	MarketEnd   strategy.ClockTime

	// MarginURL points at the SPAN calculator; empty disables the check.
	MarginURL string
}

type Engine struct {
	opts      Options
	registry  *broker.Registry
	commands  CommandSource
	sinks     []EventSink
	feed      pricefeed.Feed
	directory *instrument.Directory
	recorder  *journal.Recorder

	broker     broker.Broker
	evaluator  *strategy.Evaluator
	reconciler *position.Reconciler
	strat      *strategy.Strategy

	lastSync       time.Time
	lastLTPPublish time.Time

	// journal bookkeeping per venue order id
	placedSeen map[string]bool
	updateSeq  map[string]int64
	lastState  map[string]string

	now func() time.Time
}

func New(opts Options, registry *broker.Registry, commands CommandSource, feed pricefeed.Feed,
	directory *instrument.Directory, recorder *journal.Recorder, sinks ...EventSink) *Engine {
	return &Engine{
		opts:       opts,
		registry:   registry,
		commands:   commands,
		sinks:      sinks,
		feed:       feed,
		directory:  directory,
		recorder:   recorder,
		placedSeen: make(map[string]bool),
		updateSeq:  make(map[string]int64),
		lastState:  make(map[string]string),
		now:        time.Now,
	}
}

// Run blocks until the context ends or the market closes.
func (e *Engine) Run(ctx context.Context) error {
	zap.S().Infow("engine started", "venue", e.opts.Venue)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if strategy.ClockOf(e.now()) >= e.opts.MarketEnd {
			zap.S().Info("market closed")
			e.publish(ctx, bus.NewEvent(bus.EventEnd, nil))
			return nil
		}

		e.handleCommands(ctx)

		if e.broker == nil {
			time.Sleep(tickPollTimeout)
			continue
		}

		tickCtx, cancel := context.WithTimeout(ctx, tickPollTimeout)
		tick, err := e.feed.NextTick(tickCtx)
		cancel()
		if err == nil {
			e.handleTick(ctx, tick)
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		e.maybeSync(ctx)
	}
}

func (e *Engine) publish(ctx context.Context, ev bus.Event) {
	for _, s := range e.sinks {
		s.Publish(ctx, ev)
	}
}

func (e *Engine) handleCommands(ctx context.Context) {
	for {
		cmd, err := e.commands.Poll(ctx)
		if err != nil {
			zap.S().Errorw("command poll failed", "err", err)
			return
		}
		if cmd == nil {
			return
		}
		switch cmd.Type {
		case bus.CommandConnect:
			e.handleConnect(ctx)
		case bus.CommandStart:
			e.handleStart(ctx, cmd.Data)
		case bus.CommandUpdate:
			e.handleUpdate(ctx, cmd.Data)
		case bus.CommandStop:
			e.handleStop(ctx)
		default:
			zap.S().Warnw("unknown command", "type", cmd.Type)
		}
	}
}

func (e *Engine) handleConnect(ctx context.Context) {
	if e.broker != nil {
		e.publish(ctx, bus.NewEvent(bus.EventStarted, map[string]string{"venue": e.broker.Name()}))
		return
	}
	b, err := e.registry.Resolve(ctx, e.opts.Venue)
	if err != nil {
		e.publish(ctx, bus.NewErrorEvent(broker.CodeNotSupported, err.Error()))
		return
	}
	if err := b.Login(ctx); err != nil {
		zap.S().Errorw("venue login failed", "venue", e.opts.Venue, "err", err)
		e.publish(ctx, bus.NewErrorEvent(broker.CodeBroker, err.Error()))
		return
	}
	if err := e.feed.Connect(ctx); err != nil {
		zap.S().Errorw("feed connect failed", "err", err)
		e.publish(ctx, bus.NewErrorEvent(broker.CodeBroker, err.Error()))
		return
	}

	e.broker = b
	e.evaluator = strategy.NewEvaluator(e.directory, b, e.opts.Product, e.opts.OrderType)
	if e.opts.MarginURL != "" {
		e.evaluator.WithMargin(position.NewMarginEstimator(e.opts.MarginURL))
	}
	e.reconciler = position.NewReconciler(b, e.feed)
	e.publish(ctx, bus.NewEvent(bus.EventStarted, map[string]string{"venue": b.Name()}))
}

func (e *Engine) handleStart(ctx context.Context, raw []byte) {
	if e.broker == nil {
		e.publish(ctx, bus.NewErrorEvent(broker.CodeBroker, "not connected"))
		return
	}
	if e.strat != nil && !e.strat.Status.Terminal() {
		e.publish(ctx, bus.NewErrorEvent(broker.CodeNotSupported, "a strategy is already active"))
		return
	}
	params, err := strategy.ParseParams(raw, e.directory)
	if err != nil {
		e.publish(ctx, bus.NewErrorEvent(broker.CodeNotSupported, err.Error()))
		return
	}
	if strategy.ClockOf(e.now()) >= params.EndTime {
		e.publish(ctx, bus.NewErrorEvent(broker.CodeNotSupported, "strategy end time already passed"))
		return
	}

	e.strat = strategy.New(params)
	zap.S().Infow("strategy accepted", "strategy_id", params.ID, "underlying", params.Underlying)
	e.publishStrategyUpdate(ctx)
}

// handleUpdate re-points the live thresholds; everything else is immutable
// once started.
func (e *Engine) handleUpdate(ctx context.Context, raw []byte) {
	if e.strat == nil || e.strat.Status.Terminal() {
		e.publish(ctx, bus.NewErrorEvent(broker.CodeNotSupported, "no active strategy to update"))
		return
	}
	var w struct {
		Target   *decimal.Decimal `json:"strategy_target"`
		StopLoss *decimal.Decimal `json:"strategy_stoploss"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		e.publish(ctx, bus.NewErrorEvent(broker.CodeNotSupported, err.Error()))
		return
	}
	if w.Target != nil {
		e.strat.Target = *w.Target
	}
	if w.StopLoss != nil {
		e.strat.StopLoss = *w.StopLoss
	}
	zap.S().Infow("strategy thresholds updated", "target", e.strat.Target, "stoploss", e.strat.StopLoss)
	e.publishStrategyUpdate(ctx)
}

func (e *Engine) handleStop(ctx context.Context) {
	if e.strat == nil || e.strat.Status.Terminal() {
		e.publish(ctx, bus.NewEvent(bus.EventEnd, nil))
		return
	}
	if e.strat.Status == strategy.StatusCreated {
		e.strat.Status = strategy.StatusCompleted
		e.strat.ExitReason = strategy.ExitReasonNoEntry
		e.publishStrategyUpdate(ctx)
		return
	}
	if err := e.evaluator.SquareOff(ctx, e.strat, strategy.ExitReasonEndOfDay); err != nil {
		e.reportOrderError(ctx, err)
	}
	e.publishStrategyUpdate(ctx)
}

func (e *Engine) handleTick(ctx context.Context, tick pricefeed.Tick) {
	if e.strat == nil || e.strat.Status.Terminal() {
		return
	}
	now := e.now()
	if clock := strategy.ClockOf(now); clock < e.opts.MarketStart {
		return
	}

	index, err := e.directory.UnderlyingIndex(e.strat.Underlying)
	if err != nil {
		return
	}
	if tick.Token != index.FeedToken {
		return
	}

	if now.Sub(e.lastLTPPublish) >= ltpPublishInterval {
		e.lastLTPPublish = now
		e.publish(ctx, bus.NewEvent(bus.EventLTP, map[string]interface{}{
			"token": tick.Token, "ltp": tick.LTP,
		}))
	}

	before := e.strat.Status
	if err := e.evaluator.Evaluate(ctx, e.strat, tick.LTP, now); err != nil {
		e.reportOrderError(ctx, err)
	}
	e.recordPlacements(ctx)
	if e.strat.Status != before {
		e.publishStrategyUpdate(ctx)
	}
}

func (e *Engine) maybeSync(ctx context.Context) {
	if e.reconciler == nil || e.strat == nil || e.strat.Position == nil {
		return
	}
	if e.strat.Status != strategy.StatusRunning && e.strat.Status != strategy.StatusSquaringOff {
		return
	}

	interval := syncInterval
	if e.strat.Status == strategy.StatusSquaringOff {
		interval = squareOffSyncInterval
	}
	if e.now().Sub(e.lastSync) < interval {
		return
	}
	e.lastSync = e.now()

	before := e.strat.Status
	if err := e.reconciler.Reconcile(ctx, e.strat.Position); err != nil {
		if broker.IsRejection(err) {
			e.strat.Fail(err.Error())
		} else {
			zap.S().Warnw("reconcile failed", "err", err)
		}
		e.reportOrderError(ctx, err)
	}
	e.recordUpdates(ctx)

	if e.strat.Status == strategy.StatusSquaringOff {
		if err := e.evaluator.Evaluate(ctx, e.strat, e.strat.Position.LastPrice, e.now()); err != nil {
			e.reportOrderError(ctx, err)
		}
	}

	e.publish(ctx, bus.NewEvent(bus.EventPositions, e.strat.Position))
	e.publish(ctx, bus.NewEvent(bus.EventPnL, position.ComputePnL(e.strat.Position)))
	if e.strat.Status != before {
		e.publishStrategyUpdate(ctx)
	}
}

func (e *Engine) publishStrategyUpdate(ctx context.Context) {
	s := e.strat
	e.publish(ctx, bus.NewEvent(bus.EventStrategyUpdate, map[string]interface{}{
		"id":          s.ID,
		"status":      s.Status,
		"high":        s.High,
		"low":         s.Low,
		"exit_reason": s.ExitReason,
		"error":       s.LastError,
	}))
	if s.Status == strategy.StatusCompleted {
		e.publish(ctx, bus.NewEvent(bus.EventEnd, map[string]string{"id": s.ID}))
	}
}

func (e *Engine) reportOrderError(ctx context.Context, err error) {
	code := broker.CodeUnknown
	var rej *broker.RejectionError
	if errors.As(err, &rej) {
		code = rej.Code
	} else if broker.IsTransport(err) {
		code = broker.CodeBroker
	}
	e.publish(ctx, bus.NewErrorEvent(code, err.Error()))
}

// recordPlacements journals children that have just received a venue id.
func (e *Engine) recordPlacements(ctx context.Context) {
	if e.strat == nil || e.strat.Position == nil {
		return
	}
	for _, order := range e.strat.Position.Orders {
		for _, child := range order.Children {
			if child.VenueOrderID == "" || e.placedSeen[child.VenueOrderID] {
				continue
			}
			e.placedSeen[child.VenueOrderID] = true
			e.recorder.Record(ctx, journal.NewPlacedEvent(child, e.now()))
		}
	}
}

// recordUpdates journals children whose venue state changed since last pass.
func (e *Engine) recordUpdates(ctx context.Context) {
	if e.strat == nil || e.strat.Position == nil {
		return
	}
	for _, order := range e.strat.Position.Orders {
		for _, child := range order.Children {
			if child.VenueOrderID == "" {
				continue
			}
			state := child.String()
			if e.lastState[child.VenueOrderID] == state {
				continue
			}
			e.lastState[child.VenueOrderID] = state
			e.updateSeq[child.VenueOrderID]++
			e.recorder.Record(ctx, journal.NewUpdateEvent(child, e.now(), e.updateSeq[child.VenueOrderID]))
		}
	}
}
