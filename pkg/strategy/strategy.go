// Package strategy holds the breakout strategy definition and its state
// machine. One strategy runs at a time; its lifecycle is driven by index
// ticks and wall-clock boundaries.
package strategy

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantbay/optexec/pkg/broker"
	"github.com/quantbay/optexec/pkg/broker/model"
	"github.com/quantbay/optexec/pkg/instrument"
)

type Status string

const (
	StatusCreated     Status = "CREATED"
	StatusRunning     Status = "RUNNING"
	StatusSquaringOff Status = "SQUARING_OFF"
	StatusCompleted   Status = "COMPLETED"
	StatusError       Status = "ERROR"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// LimitType qualifies how target and stop-loss thresholds are read.
// Only point-based thresholds are supported.
type LimitType string

const LimitPoints LimitType = "POINTS"

// ClockTime is a time of day encoded as HHMMSS, the representation used
// throughout for session boundary comparisons.
type ClockTime int

func ClockOf(t time.Time) ClockTime {
	return ClockTime(t.Hour()*10000 + t.Minute()*100 + t.Second())
}

func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return 0, fmt.Errorf("bad clock time %q: %w", s, err)
	}
	return ClockOf(t), nil
}

// Params is the user-supplied strategy definition delivered on START.
type Params struct {
	ID          string
	Underlying  instrument.Underlying
	ExpiryClass instrument.ExpiryClass
	RangeStart  ClockTime
	RangeEnd    ClockTime
	EndTime     ClockTime
	Lots        int64
	LotSize     int64
	FreezeQty   int64
	Target      decimal.Decimal
	StopLoss    decimal.Decimal
	LimitType   LimitType
}

// Quantity is the full order quantity in units.
func (p Params) Quantity() int64 { return p.Lots * p.LotSize }

type wireParams struct {
	ID         string          `json:"id"`
	Underlying string          `json:"underlying"`
	ExpiryType string          `json:"expiry_type"`
	RangeStart string          `json:"range_start_time"`
	RangeEnd   string          `json:"range_end_time"`
	EndTime    string          `json:"strategy_end_time"`
	Lots       int64           `json:"lots"`
	LotSize    int64           `json:"lot_size"`
	Target     decimal.Decimal `json:"strategy_target"`
	StopLoss   decimal.Decimal `json:"strategy_stoploss"`
	LimitType  string          `json:"limit_type"`
}

// ParseParams validates a START payload. Any violation is a configuration
// error: the strategy is never half-started.
func ParseParams(raw []byte, dir *instrument.Directory) (Params, error) {
	var w wireParams
	if err := json.Unmarshal(raw, &w); err != nil {
		return Params{}, broker.NewConfigError("strategy payload: %v", err)
	}

	p := Params{
		ID:         w.ID,
		Underlying: instrument.Underlying(strings.ToUpper(w.Underlying)),
		Lots:       w.Lots,
		LotSize:    w.LotSize,
		Target:     w.Target,
		StopLoss:   w.StopLoss,
		LimitType:  LimitType(strings.ToUpper(w.LimitType)),
	}
	if p.ID == "" {
		return Params{}, broker.NewConfigError("strategy id is empty")
	}
	if p.Lots <= 0 || p.LotSize <= 0 {
		return Params{}, broker.NewConfigError("strategy %s: lots and lot_size must be positive", p.ID)
	}
	if p.LimitType == "" {
		p.LimitType = LimitPoints
	}
	if p.LimitType != LimitPoints {
		return Params{}, broker.NewConfigError("strategy %s: limit type %q is not supported", p.ID, w.LimitType)
	}

	switch strings.ToUpper(w.ExpiryType) {
	case "WEEKLY":
		p.ExpiryClass = instrument.ExpiryWeekly
	case "NEXTWEEKLY":
		p.ExpiryClass = instrument.ExpiryNextWeekly
	case "MONTHLY":
		p.ExpiryClass = instrument.ExpiryMonthly
	default:
		return Params{}, broker.NewConfigError("strategy %s: unknown expiry type %q", p.ID, w.ExpiryType)
	}

	var err error
	if p.RangeStart, err = ParseClock(w.RangeStart); err != nil {
		return Params{}, broker.NewConfigError("strategy %s: %v", p.ID, err)
	}
	if p.RangeEnd, err = ParseClock(w.RangeEnd); err != nil {
		return Params{}, broker.NewConfigError("strategy %s: %v", p.ID, err)
	}
	if p.EndTime, err = ParseClock(w.EndTime); err != nil {
		return Params{}, broker.NewConfigError("strategy %s: %v", p.ID, err)
	}
	if p.RangeStart >= p.RangeEnd || p.RangeEnd >= p.EndTime {
		return Params{}, broker.NewConfigError("strategy %s: times must satisfy range_start < range_end < end", p.ID)
	}

	if p.FreezeQty, err = instrument.FreezeQty(p.Underlying, p.ExpiryClass); err != nil {
		return Params{}, broker.NewConfigError("strategy %s: %v", p.ID, err)
	}
	if dir != nil {
		if _, err := dir.Expiry(p.Underlying, p.ExpiryClass); err != nil {
			return Params{}, broker.NewConfigError("strategy %s: %v", p.ID, err)
		}
	}
	return p, nil
}

// Strategy is the live state of one running definition.
type Strategy struct {
	Params

	Status Status

	// observation window extremes of the underlying index
	High    decimal.Decimal
	Low     decimal.Decimal
	HasSeen bool

	Position   *model.Position
	ExitReason string
	LastError  string

	LastSync time.Time
}

func New(p Params) *Strategy {
	return &Strategy{Params: p, Status: StatusCreated}
}

// Fail moves the strategy to its terminal error state. Positions are left as
// they stand for manual intervention; no further orders are placed.
func (s *Strategy) Fail(reason string) {
	if s.Status.Terminal() {
		return
	}
	s.Status = StatusError
	s.LastError = reason
}

func (s *Strategy) String() string {
	return fmt.Sprintf("Strategy(id=%s, underlying=%s, status=%s, high=%s, low=%s)",
		s.ID, s.Underlying, s.Status, s.High, s.Low)
}
