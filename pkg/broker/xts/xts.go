// Package xts is the live REST venue adapter. Session management (host
// lookup + login) is owned here; the wire schemas are venue-specific and do
// not leak past the broker interface.
package xts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantbay/optexec/pkg/broker"
	"github.com/quantbay/optexec/pkg/broker/model"
	"github.com/quantbay/optexec/pkg/instrument"
)

const transactTimeLayout = "02-01-2006 15:04:05"

type Config struct {
	BaseURL       string        `yaml:"base_url"`
	HostLookupURL string        `yaml:"host_lookup_url"`
	APIKey        string        `yaml:"api_key"`
	APISecret     string        `yaml:"api_secret"`
	ClientID      string        `yaml:"client_id"`
	DealerAPI     bool          `yaml:"dealer_api"`
	ProID         bool          `yaml:"pro_id"`
	Timeout       time.Duration `yaml:"timeout"`
}

type XTS struct {
	cfg       *Config
	client    *http.Client
	directory *instrument.Directory

	mu          sync.Mutex
	baseURL     string
	lookupKey   string
	accessToken string

	fundsMu    sync.Mutex
	lastFunds  model.Funds
	haveCached bool
}

func New(cfg *Config, directory *instrument.Directory) (*XTS, error) {
	if cfg.BaseURL == "" && cfg.HostLookupURL == "" {
		return nil, broker.NewConfigError("xts: base_url or host_lookup_url required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &XTS{
		cfg:       cfg,
		client:    &http.Client{Timeout: timeout},
		directory: directory,
		baseURL:   cfg.BaseURL,
	}, nil
}

func (x *XTS) Name() string { return "XTS" }

// Login resolves the interactive host (when configured) and exchanges the
// API key pair for a session token.
func (x *XTS) Login(ctx context.Context) error {
	if err := x.hostLookup(ctx); err != nil {
		return err
	}

	payload := map[string]string{
		"appKey":    x.cfg.APIKey,
		"secretKey": x.cfg.APISecret,
		"source":    "WebAPI",
		"uniqueKey": x.lookupKey,
	}
	var resp struct {
		Type        string `json:"type"`
		Description string `json:"description"`
		Result      struct {
			Token string `json:"token"`
		} `json:"result"`
	}
	if err := x.do(ctx, http.MethodPost, "/user/session", payload, &resp); err != nil {
		return err
	}
	if resp.Type != "success" {
		return broker.NewConfigError("xts login failed: %s", resp.Description)
	}

	x.mu.Lock()
	x.accessToken = resp.Result.Token
	x.mu.Unlock()
	zap.S().Info("xts session established")
	return nil
}

func (x *XTS) hostLookup(ctx context.Context) error {
	if x.cfg.HostLookupURL == "" {
		return nil
	}
	payload := map[string]string{
		"accesspassword": x.cfg.APISecret,
		"version":        "interactive_1.0.1",
	}
	var resp struct {
		Type        bool   `json:"type"`
		Description string `json:"description"`
		Result      struct {
			UniqueKey        string `json:"uniqueKey"`
			ConnectionString string `json:"connectionString"`
		} `json:"result"`
	}
	if err := x.doURL(ctx, http.MethodPost, x.cfg.HostLookupURL, payload, &resp); err != nil {
		return err
	}
	if !resp.Type {
		return broker.NewConfigError("xts host lookup failed: %s", resp.Description)
	}

	x.mu.Lock()
	x.lookupKey = resp.Result.UniqueKey
	x.baseURL = resp.Result.ConnectionString
	x.mu.Unlock()
	return nil
}

func (x *XTS) PlaceOrder(ctx context.Context, child *model.ChildOrder) (string, error) {
	in, err := x.directory.Resolve(child.InstrumentToken)
	if err != nil {
		return "", broker.NewConfigError("xts place: %v", err)
	}

	payload := map[string]interface{}{
		"exchangeSegment":       segment(in.Exchange),
		"exchangeInstrumentID":  in.ExchangeToken,
		"productType":           string(child.Product),
		"orderType":             string(child.Type),
		"orderSide":             child.Side.String(),
		"disclosedQuantity":     0,
		"orderQuantity":         child.Quantity,
		"limitPrice":            child.LimitPrice,
		"stopPrice":             child.TriggerPrice,
		"orderUniqueIdentifier": child.ParentID,
		"timeInForce":           "DAY",
		"clientID":              x.clientID(),
	}

	var resp struct {
		Type        string `json:"type"`
		Description string `json:"description"`
		Result      struct {
			AppOrderID json.Number `json:"AppOrderID"`
		} `json:"result"`
	}
	if err := x.do(ctx, http.MethodPost, "/orders?clientID="+x.clientID(), payload, &resp); err != nil {
		return "", err
	}
	if resp.Type != "success" {
		return "", &broker.RejectionError{Code: broker.CodeBroker, Message: resp.Description}
	}
	return resp.Result.AppOrderID.String(), nil
}

func (x *XTS) ModifyOrder(ctx context.Context, venueOrderID string, mod model.Modify) error {
	payload := map[string]interface{}{
		"appOrderID":                venueOrderID,
		"modifiedProductType":       string(model.ProductNormal),
		"modifiedOrderType":         string(model.OrderTypeLimit),
		"modifiedOrderQuantity":     mod.Quantity,
		"modifiedDisclosedQuantity": 0,
		"modifiedLimitPrice":        mod.LimitPrice,
		"modifiedStopPrice":         mod.TriggerPrice,
		"modifiedTimeInForce":       "DAY",
		"clientID":                  x.clientID(),
	}
	var resp struct {
		Type        string `json:"type"`
		Description string `json:"description"`
	}
	if err := x.do(ctx, http.MethodPut, "/orders?clientID="+x.clientID(), payload, &resp); err != nil {
		return err
	}
	if resp.Type != "success" {
		return &broker.RejectionError{VenueOrderID: venueOrderID, Code: broker.CodeBroker, Message: resp.Description}
	}
	return nil
}

func (x *XTS) CancelOrder(ctx context.Context, venueOrderID string) error {
	var resp struct {
		Type        string `json:"type"`
		Description string `json:"description"`
	}
	path := fmt.Sprintf("/orders?clientID=%s&appOrderID=%s", x.clientID(), venueOrderID)
	if err := x.do(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return err
	}
	if resp.Type != "success" {
		return &broker.RejectionError{VenueOrderID: venueOrderID, Code: broker.CodeBroker, Message: resp.Description}
	}
	return nil
}

// wireOrder is one row of the venue order book.
type wireOrder struct {
	AppOrderID              json.Number `json:"AppOrderID"`
	OrderStatus             string      `json:"OrderStatus"`
	CancelRejectReason      string      `json:"CancelRejectReason"`
	OrderAverageTradedPrice string      `json:"OrderAverageTradedPrice"`
	CumulativeQuantity      json.Number `json:"CumulativeQuantity"`
	ExchangeTransactTime    string      `json:"ExchangeTransactTime"`
}

func (x *XTS) QueryOrder(ctx context.Context, venueOrderID string) (model.OrderUpdate, error) {
	var resp struct {
		Type        string      `json:"type"`
		Description string      `json:"description"`
		Result      []wireOrder `json:"result"`
	}
	path := fmt.Sprintf("/orders?clientID=%s&appOrderID=%s", x.clientID(), venueOrderID)
	if err := x.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return model.OrderUpdate{}, err
	}
	if resp.Type != "success" || len(resp.Result) == 0 {
		return model.OrderUpdate{
			VenueOrderID: venueOrderID,
			Status:       model.OrderStatusRejected,
			ErrorCode:    broker.CodeUnknown,
			ErrorMessage: resp.Description,
		}, nil
	}
	// the venue returns the full update history; the last row is current
	return toUpdate(resp.Result[len(resp.Result)-1]), nil
}

func (x *XTS) QueryOrderBook(ctx context.Context) ([]model.OrderUpdate, error) {
	path := "/orders?clientID=" + x.clientID()
	if x.cfg.DealerAPI {
		path = "/orders/dealerorderbook"
	}
	var resp struct {
		Type        string      `json:"type"`
		Description string      `json:"description"`
		Result      []wireOrder `json:"result"`
	}
	if err := x.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Type != "success" {
		return nil, &broker.TransportError{Op: "orderbook", Err: fmt.Errorf("%s", resp.Description)}
	}
	out := make([]model.OrderUpdate, 0, len(resp.Result))
	for _, w := range resp.Result {
		out = append(out, toUpdate(w))
	}
	return out, nil
}

// QueryFunds returns venue margin figures, falling back to the last cached
// snapshot on transport failure: funds are advisory, not transactional.
func (x *XTS) QueryFunds(ctx context.Context) (model.Funds, error) {
	var resp struct {
		Type   string `json:"type"`
		Result struct {
			BalanceList []struct {
				LimitObject struct {
					RMSSubLimits struct {
						NetMarginAvailable string `json:"netMarginAvailable"`
						MarginUtilized     string `json:"marginUtilized"`
					} `json:"RMSSubLimits"`
				} `json:"limitObject"`
			} `json:"BalanceList"`
		} `json:"result"`
	}
	err := x.do(ctx, http.MethodGet, "/user/balance?clientID="+x.cfg.ClientID, nil, &resp)
	if err == nil && resp.Type == "success" && len(resp.Result.BalanceList) > 0 {
		limits := resp.Result.BalanceList[0].LimitObject.RMSSubLimits
		available, aerr := decimal.NewFromString(limits.NetMarginAvailable)
		utilized, uerr := decimal.NewFromString(limits.MarginUtilized)
		if aerr == nil && uerr == nil {
			funds := model.Funds{Available: available, Utilized: utilized}
			x.fundsMu.Lock()
			x.lastFunds = funds
			x.haveCached = true
			x.fundsMu.Unlock()
			return funds, nil
		}
	}

	x.fundsMu.Lock()
	defer x.fundsMu.Unlock()
	if x.haveCached {
		zap.S().Debugw("xts funds query failed, serving cached", "err", err)
		return x.lastFunds, nil
	}
	return model.Funds{}, &broker.TransportError{Op: "funds", Err: err}
}

func (x *XTS) clientID() string {
	if x.cfg.ProID {
		return "*****"
	}
	return x.cfg.ClientID
}

func (x *XTS) do(ctx context.Context, method, path string, payload, out interface{}) error {
	x.mu.Lock()
	base := x.baseURL
	x.mu.Unlock()
	return x.doURL(ctx, method, base+path, payload, out)
}

func (x *XTS) doURL(ctx context.Context, method, url string, payload, out interface{}) error {
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return &broker.TransportError{Op: method + " " + url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	x.mu.Lock()
	if x.accessToken != "" {
		req.Header.Set("authorization", x.accessToken)
	}
	x.mu.Unlock()

	resp, err := x.client.Do(req)
	if err != nil {
		return &broker.TransportError{Op: method + " " + url, Err: err}
	}
	defer resp.Body.Close() // nolint

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &broker.TransportError{Op: method + " " + url, Err: err}
	}
	return nil
}

func toUpdate(w wireOrder) model.OrderUpdate {
	u := model.OrderUpdate{VenueOrderID: w.AppOrderID.String()}

	switch w.OrderStatus {
	case "Filled":
		u.Status = model.OrderStatusFilled
	case "Rejected":
		u.Status = model.OrderStatusRejected
		u.ErrorCode = broker.CodeRejected
		u.ErrorMessage = w.CancelRejectReason
	case "Cancelled":
		u.Status = model.OrderStatusCancelled
		u.ErrorCode = broker.CodeRejected
		u.ErrorMessage = w.CancelRejectReason
	case "New", "Open":
		u.Status = model.OrderStatusOpen
	default:
		u.Status = model.OrderStatusWorking
	}

	if w.OrderAverageTradedPrice != "" {
		if px, err := decimal.NewFromString(w.OrderAverageTradedPrice); err == nil {
			u.AvgTradePrice = px
		}
	}
	if qty, err := w.CumulativeQuantity.Int64(); err == nil {
		u.TradedQuantity = qty
	}
	if t, err := time.Parse(transactTimeLayout, w.ExchangeTransactTime); err == nil {
		u.UpdatedAt = t
	}
	return u
}

func segment(e instrument.Exchange) string {
	if e == instrument.ExchangeNFO {
		return "NSEFO"
	}
	return "BSEFO"
}
