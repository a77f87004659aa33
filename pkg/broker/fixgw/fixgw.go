// Package fixgw is a FIX 4.4 venue adapter. It runs a quickfix initiator
// session and answers order queries from the execution reports the venue
// streams back, so the reconciler never has to block on the wire.
package fixgw

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/fix44/executionreport"
	fix44nos "github.com/quickfixgo/fix44/newordersingle"
	fix44ocr "github.com/quickfixgo/fix44/ordercancelrequest"
	fix44ocrr "github.com/quickfixgo/fix44/ordercancelreplacerequest"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantbay/optexec/pkg/broker"
	"github.com/quantbay/optexec/pkg/broker/model"
	"github.com/quantbay/optexec/pkg/instrument"
)

type Config struct {
	SettingsPath string        `yaml:"settings_path"`
	Account      string        `yaml:"account"`
	LogonTimeout time.Duration `yaml:"logon_timeout"`
}

var sideMapping = map[model.Side]enum.Side{
	model.SideBuy:  enum.Side_BUY,
	model.SideSell: enum.Side_SELL,
}

var ordTypeMapping = map[model.OrderType]enum.OrdType{
	model.OrderTypeMarket: enum.OrdType_MARKET,
	model.OrderTypeLimit:  enum.OrdType_LIMIT,
}

// sentOrder keeps the fields a cancel or replace must echo back.
type sentOrder struct {
	symbol string
	side   model.Side
	qty    int64
}

type FIXGW struct {
	cfg       *Config
	directory *instrument.Directory
	initiator *quickfix.Initiator

	mu        sync.Mutex
	sessionID *quickfix.SessionID
	loggedOn  chan struct{}
	sent      map[string]sentOrder
	reports   map[string]model.OrderUpdate
}

func New(cfg *Config, directory *instrument.Directory) (*FIXGW, error) {
	if cfg.SettingsPath == "" {
		return nil, broker.NewConfigError("fixgw: settings_path required")
	}
	return &FIXGW{
		cfg:       cfg,
		directory: directory,
		loggedOn:  make(chan struct{}),
		sent:      make(map[string]sentOrder),
		reports:   make(map[string]model.OrderUpdate),
	}, nil
}

func (g *FIXGW) Name() string { return "FIX" }

// Login starts the initiator and waits for session logon.
func (g *FIXGW) Login(ctx context.Context) error {
	f, err := os.Open(g.cfg.SettingsPath)
	if err != nil {
		return broker.NewConfigError("fixgw settings: %v", err)
	}
	defer f.Close() // nolint

	settings, err := quickfix.ParseSettings(f)
	if err != nil {
		return broker.NewConfigError("fixgw settings: %v", err)
	}
	initiator, err := quickfix.NewInitiator(g, quickfix.NewMemoryStoreFactory(), settings, quickfix.NewNullLogFactory())
	if err != nil {
		return broker.NewConfigError("fixgw initiator: %v", err)
	}
	if err := initiator.Start(); err != nil {
		return &broker.TransportError{Op: "fix start", Err: err}
	}
	g.initiator = initiator

	timeout := g.cfg.LogonTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	select {
	case <-g.loggedOn:
		zap.S().Info("fix session established")
		return nil
	case <-time.After(timeout):
		initiator.Stop()
		return &broker.TransportError{Op: "fix logon", Err: context.DeadlineExceeded}
	case <-ctx.Done():
		initiator.Stop()
		return &broker.TransportError{Op: "fix logon", Err: ctx.Err()}
	}
}

func (g *FIXGW) PlaceOrder(ctx context.Context, child *model.ChildOrder) (string, error) {
	in, err := g.directory.Resolve(child.InstrumentToken)
	if err != nil {
		return "", broker.NewConfigError("fixgw place: %v", err)
	}

	clOrdID := uuid.NewString()
	msg := fix44nos.New(
		field.NewClOrdID(clOrdID),
		field.NewSide(sideMapping[child.Side]),
		field.NewTransactTime(time.Now()),
		field.NewOrdType(ordTypeMapping[child.Type]))
	msg.SetSymbol(in.TradingSymbol)
	msg.SetAccount(g.cfg.Account)
	msg.SetOrderQty(decimal.NewFromInt(child.Quantity), 0)
	if child.Type == model.OrderTypeLimit {
		msg.SetPrice(child.LimitPrice, 2)
	}
	msg.SetTimeInForce(enum.TimeInForce_DAY)

	g.mu.Lock()
	session := g.sessionID
	g.mu.Unlock()
	if session != nil {
		msg.SetSenderCompID(session.SenderCompID)
		msg.SetTargetCompID(session.TargetCompID)
	}

	if err := quickfix.Send(msg); err != nil {
		return "", &broker.TransportError{Op: "fix new order", Err: err}
	}

	g.mu.Lock()
	g.sent[clOrdID] = sentOrder{symbol: in.TradingSymbol, side: child.Side, qty: child.Quantity}
	g.reports[clOrdID] = model.OrderUpdate{VenueOrderID: clOrdID, Status: model.OrderStatusSent}
	g.mu.Unlock()
	return clOrdID, nil
}

func (g *FIXGW) ModifyOrder(ctx context.Context, venueOrderID string, mod model.Modify) error {
	g.mu.Lock()
	so, ok := g.sent[venueOrderID]
	session := g.sessionID
	g.mu.Unlock()
	if !ok {
		return broker.ErrUnknownOrder
	}

	newClOrdID := uuid.NewString()
	msg := fix44ocrr.New(
		field.NewOrigClOrdID(venueOrderID),
		field.NewClOrdID(newClOrdID),
		field.NewSide(sideMapping[so.side]),
		field.NewTransactTime(time.Now()),
		field.NewOrdType(enum.OrdType_LIMIT))
	msg.SetSymbol(so.symbol)
	msg.SetAccount(g.cfg.Account)
	msg.SetOrderQty(decimal.NewFromInt(mod.Quantity), 0)
	msg.SetPrice(mod.LimitPrice, 2)
	if session != nil {
		msg.SetSenderCompID(session.SenderCompID)
		msg.SetTargetCompID(session.TargetCompID)
	}
	if err := quickfix.Send(msg); err != nil {
		return &broker.TransportError{Op: "fix cancel replace", Err: err}
	}

	// the venue reports the replaced order under the new ClOrdID
	g.mu.Lock()
	g.sent[newClOrdID] = sentOrder{symbol: so.symbol, side: so.side, qty: mod.Quantity}
	if report, ok := g.reports[venueOrderID]; ok {
		report.VenueOrderID = newClOrdID
		g.reports[newClOrdID] = report
	}
	g.mu.Unlock()
	return nil
}

func (g *FIXGW) CancelOrder(ctx context.Context, venueOrderID string) error {
	g.mu.Lock()
	so, ok := g.sent[venueOrderID]
	session := g.sessionID
	g.mu.Unlock()
	if !ok {
		return broker.ErrUnknownOrder
	}

	msg := fix44ocr.New(
		field.NewOrigClOrdID(venueOrderID),
		field.NewClOrdID(uuid.NewString()),
		field.NewSide(sideMapping[so.side]),
		field.NewTransactTime(time.Now()))
	msg.SetSymbol(so.symbol)
	msg.SetAccount(g.cfg.Account)
	msg.SetOrderQty(decimal.NewFromInt(so.qty), 0)
	if session != nil {
		msg.SetSenderCompID(session.SenderCompID)
		msg.SetTargetCompID(session.TargetCompID)
	}
	if err := quickfix.Send(msg); err != nil {
		return &broker.TransportError{Op: "fix cancel", Err: err}
	}
	return nil
}

func (g *FIXGW) QueryOrder(ctx context.Context, venueOrderID string) (model.OrderUpdate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	report, ok := g.reports[venueOrderID]
	if !ok {
		return model.OrderUpdate{}, broker.ErrUnknownOrder
	}
	return report, nil
}

func (g *FIXGW) QueryOrderBook(ctx context.Context) ([]model.OrderUpdate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]model.OrderUpdate, 0, len(g.reports))
	for _, report := range g.reports {
		out = append(out, report)
	}
	return out, nil
}

// QueryFunds is not available over this session profile.
func (g *FIXGW) QueryFunds(ctx context.Context) (model.Funds, error) {
	return model.Funds{}, broker.ErrNotSupported
}

func (g *FIXGW) Stop() {
	if g.initiator != nil {
		g.initiator.Stop()
	}
}

// ===== quickfix.Application =====

func (g *FIXGW) OnCreate(sessionID quickfix.SessionID) {
	g.mu.Lock()
	g.sessionID = &sessionID
	g.mu.Unlock()
}

func (g *FIXGW) OnLogon(sessionID quickfix.SessionID) {
	g.mu.Lock()
	select {
	case <-g.loggedOn:
	default:
		close(g.loggedOn)
	}
	g.mu.Unlock()
}

func (g *FIXGW) OnLogout(sessionID quickfix.SessionID) {
	zap.S().Warn("fix session logged out")
}

func (g *FIXGW) ToAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) {}
func (g *FIXGW) ToApp(msg *quickfix.Message, sessionID quickfix.SessionID) error {
	return nil
}
func (g *FIXGW) FromAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}

func (g *FIXGW) FromApp(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	msgType, err := msg.Header.GetString(tag.MsgType)
	if err != nil || enum.MsgType(msgType) != enum.MsgType_EXECUTION_REPORT {
		return nil
	}
	report := executionreport.FromMessage(msg)

	clOrdID, err := report.GetClOrdID()
	if err != nil {
		return nil
	}
	update := model.OrderUpdate{VenueOrderID: clOrdID, UpdatedAt: time.Now()}

	if status, err := report.GetOrdStatus(); err == nil {
		update.Status = mapOrdStatus(status)
	}
	if cum, err := report.GetCumQty(); err == nil {
		update.TradedQuantity = cum.IntPart()
	}
	if avg, err := report.GetAvgPx(); err == nil {
		update.AvgTradePrice = avg
	}
	if update.Status == model.OrderStatusRejected || update.Status == model.OrderStatusCancelled {
		update.ErrorCode = broker.CodeRejected
		if text, err := report.GetText(); err == nil {
			update.ErrorMessage = text
		}
	}

	g.mu.Lock()
	g.reports[clOrdID] = update
	g.mu.Unlock()
	return nil
}

func mapOrdStatus(s enum.OrdStatus) model.OrderStatus {
	switch s {
	case enum.OrdStatus_NEW, enum.OrdStatus_PENDING_NEW, enum.OrdStatus_REPLACED:
		return model.OrderStatusOpen
	case enum.OrdStatus_PARTIALLY_FILLED:
		return model.OrderStatusWorking
	case enum.OrdStatus_FILLED:
		return model.OrderStatusFilled
	case enum.OrdStatus_CANCELED, enum.OrdStatus_EXPIRED, enum.OrdStatus_DONE_FOR_DAY:
		return model.OrderStatusCancelled
	case enum.OrdStatus_REJECTED:
		return model.OrderStatusRejected
	default:
		return model.OrderStatusWorking
	}
}
