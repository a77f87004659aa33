package position

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantbay/optexec/pkg/broker"
	"github.com/quantbay/optexec/pkg/broker/model"
	"github.com/quantbay/optexec/pkg/instrument"
)

// MarginContract is one leg submitted to the SPAN calculator.
type MarginContract struct {
	Contract    string          `json:"contract"`
	Exchange    string          `json:"exchange"`
	Product     string          `json:"product"`
	Qty         int64           `json:"qty"`
	StrikePrice decimal.Decimal `json:"strikePrice"`
	TradeType   string          `json:"tradeType"`
	OptionType  string          `json:"optionType"`
}

// MarginEstimator queries an external SPAN calculator. Results are advisory:
// the pre-trade check logs a shortfall and carries on, the venue's own risk
// layer has the final say.
type MarginEstimator struct {
	url    string
	client *http.Client
}

func NewMarginEstimator(url string) *MarginEstimator {
	return &MarginEstimator{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// NewMarginContract maps an instrument leg to the calculator's wire shape.
func NewMarginContract(in *instrument.Instrument, side model.Side, qty int64) MarginContract {
	optType := "CALL"
	if in.OptionType == instrument.OptionPut {
		optType = "PUT"
	}
	return MarginContract{
		Contract:    string(in.Underlying) + "-" + strings.ToUpper(in.Expiry.Format("02Jan06")),
		Exchange:    string(in.Exchange),
		Product:     "OPTION",
		Qty:         qty,
		StrikePrice: in.Strike,
		TradeType:   map[model.Side]string{model.SideBuy: "BUY", model.SideSell: "SELL"}[side],
		OptionType:  optType,
	}
}

// RequiredMargin returns the SPAN requirement for the given legs. When total
// margin comes back zero the net premium stands in for it.
func (m *MarginEstimator) RequiredMargin(ctx context.Context, legs []MarginContract) (decimal.Decimal, error) {
	body, err := json.Marshal(map[string]interface{}{"position": legs})
	if err != nil {
		return decimal.Zero, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close() // nolint

	var out struct {
		Margin struct {
			TotalMargin decimal.Decimal `json:"totalMargin"`
			NetPremium  decimal.Decimal `json:"netPremium"`
		} `json:"margin"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, err
	}

	required := out.Margin.TotalMargin
	if required.IsZero() {
		required = out.Margin.NetPremium
	}
	zap.S().Infow("span margin", "required", required)
	return required, nil
}

// AdvisoryCheck compares the SPAN requirement for a leg against the venue's
// available margin and logs any shortfall. It never blocks an order.
func AdvisoryCheck(ctx context.Context, est *MarginEstimator, b broker.Broker, in *instrument.Instrument, side model.Side, qty int64) {
	required, err := est.RequiredMargin(ctx, []MarginContract{NewMarginContract(in, side, qty)})
	if err != nil {
		zap.S().Warnw("margin estimate failed", "err", err)
		return
	}
	funds, err := b.QueryFunds(ctx)
	if err != nil {
		zap.S().Warnw("funds query failed", "err", err)
		return
	}
	if funds.Available.LessThan(required) {
		zap.S().Warnw("margin shortfall",
			"symbol", in.TradingSymbol, "required", required, "available", funds.Available)
	}
}
