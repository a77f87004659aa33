package position

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantbay/optexec/pkg/broker/model"
	"github.com/quantbay/optexec/pkg/instrument"
)

func spanServer(t *testing.T, totalMargin, netPremium string, gotLegs *[]MarginContract) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Position []MarginContract `json:"position"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		*gotLegs = req.Position
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"margin":{"totalMargin":` + totalMargin + `,"netPremium":` + netPremium + `}}`))
	}))
}

func optionLeg() *instrument.Instrument {
	return &instrument.Instrument{
		FeedToken:     "T22500CE",
		Exchange:      instrument.ExchangeNFO,
		Underlying:    instrument.UnderlyingNifty,
		Kind:          instrument.KindIndexOption,
		Expiry:        time.Date(2025, 9, 4, 0, 0, 0, 0, time.UTC),
		Strike:        decimal.NewFromInt(22500),
		OptionType:    instrument.OptionCall,
		TradingSymbol: "NIFTY04SEP2522500CE",
		LotSize:       75,
	}
}

func TestRequiredMargin(t *testing.T) {
	var legs []MarginContract
	srv := spanServer(t, "112500.50", "7800", &legs)
	defer srv.Close()

	est := NewMarginEstimator(srv.URL)
	req := NewMarginContract(optionLeg(), model.SideSell, 150)
	got, err := est.RequiredMargin(context.Background(), []MarginContract{req})
	if err != nil {
		t.Fatalf("required margin: %v", err)
	}
	if got.String() != "112500.5" {
		t.Errorf("required = %s, want 112500.5", got)
	}

	if len(legs) != 1 {
		t.Fatalf("server saw %d legs", len(legs))
	}
	leg := legs[0]
	if leg.Contract != "NIFTY-04SEP25" {
		t.Errorf("contract = %q", leg.Contract)
	}
	if leg.TradeType != "SELL" || leg.OptionType != "CALL" || leg.Qty != 150 {
		t.Errorf("leg = %+v", leg)
	}
}

func TestRequiredMarginNetPremiumFallback(t *testing.T) {
	var legs []MarginContract
	srv := spanServer(t, "0", "7800.25", &legs)
	defer srv.Close()

	est := NewMarginEstimator(srv.URL)
	got, err := est.RequiredMargin(context.Background(),
		[]MarginContract{NewMarginContract(optionLeg(), model.SideBuy, 75)})
	if err != nil {
		t.Fatalf("required margin: %v", err)
	}
	if got.String() != "7800.25" {
		t.Errorf("required = %s, want net premium fallback", got)
	}
}
