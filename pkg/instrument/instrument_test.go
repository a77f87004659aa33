package instrument

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRoundToStrike(t *testing.T) {
	cases := []struct {
		ltp  string
		step int64
		want string
	}{
		{"22510", 50, "22500"},
		{"22525", 50, "22550"},
		{"22549.9", 50, "22550"},
		{"44980", 100, "45000"},
		{"44949", 100, "44900"},
	}
	for _, c := range cases {
		ltp, _ := decimal.NewFromString(c.ltp)
		got := RoundToStrike(ltp, c.step)
		if got.String() != c.want {
			t.Errorf("RoundToStrike(%s, %d) = %s, want %s", c.ltp, c.step, got, c.want)
		}
	}
}

func TestExpiryInt(t *testing.T) {
	e := time.Date(2025, 9, 4, 0, 0, 0, 0, time.UTC)
	if got := ExpiryInt(e); got != 250904 {
		t.Errorf("ExpiryInt = %d, want 250904", got)
	}
}

func TestDirectoryExpiryClasses(t *testing.T) {
	w1 := time.Date(2025, 9, 4, 0, 0, 0, 0, time.UTC)
	w2 := time.Date(2025, 9, 11, 0, 0, 0, 0, time.UTC)
	monthly := time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC)

	ins := []*Instrument{
		{FeedToken: "IDX", Underlying: UnderlyingNifty, Kind: KindIndex},
		{FeedToken: "C1", Exchange: ExchangeNFO, Underlying: UnderlyingNifty, Kind: KindIndexOption,
			Expiry: w1, Strike: decimal.NewFromInt(22500), OptionType: OptionCall, LotSize: 75},
		{FeedToken: "C2", Exchange: ExchangeNFO, Underlying: UnderlyingNifty, Kind: KindIndexOption,
			Expiry: w2, Strike: decimal.NewFromInt(22500), OptionType: OptionCall, LotSize: 75},
		{FeedToken: "F1", Exchange: ExchangeNFO, Underlying: UnderlyingNifty, Kind: KindIndexFuture,
			Expiry: monthly, Strike: decimal.Zero, OptionType: OptionFuture, LotSize: 75},
	}
	d := NewDirectory(ins)

	for _, c := range []struct {
		class ExpiryClass
		want  int
	}{
		{ExpiryWeekly, 250904},
		{ExpiryNextWeekly, 250911},
		{ExpiryMonthly, 250930},
	} {
		got, err := d.Expiry(UnderlyingNifty, c.class)
		if err != nil {
			t.Fatalf("Expiry(%s): %v", c.class, err)
		}
		if got != c.want {
			t.Errorf("Expiry(%s) = %d, want %d", c.class, got, c.want)
		}
	}
}

func TestDirectoryResolveBySymbolParts(t *testing.T) {
	expiry := time.Date(2025, 9, 4, 0, 0, 0, 0, time.UTC)
	in := &Instrument{FeedToken: "C1", Exchange: ExchangeNFO, Underlying: UnderlyingNifty,
		Kind: KindIndexOption, Expiry: expiry, Strike: decimal.NewFromInt(22500),
		OptionType: OptionCall, LotSize: 75}
	d := NewDirectory([]*Instrument{in})

	got, err := d.ResolveBySymbolParts(ExchangeNFO, UnderlyingNifty, KindIndexOption,
		250904, decimal.NewFromInt(22500), OptionCall)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.FeedToken != "C1" {
		t.Errorf("resolved token = %s", got.FeedToken)
	}

	if _, err := d.ResolveBySymbolParts(ExchangeNFO, UnderlyingNifty, KindIndexOption,
		250904, decimal.NewFromInt(99999), OptionCall); err == nil {
		t.Error("expected error for unknown strike")
	}
}

func TestFreezeQty(t *testing.T) {
	q, err := FreezeQty(UnderlyingNifty, ExpiryWeekly)
	if err != nil || q != 24 {
		t.Errorf("FreezeQty(NIFTY) = %d, %v; want 24", q, err)
	}
	q, err = FreezeQty(UnderlyingBankNifty, ExpiryWeekly)
	if err != nil || q != 30 {
		t.Errorf("FreezeQty(BANKNIFTY) = %d, %v; want 30", q, err)
	}
	if _, err := FreezeQty(Underlying("SENSEX"), ExpiryWeekly); err == nil {
		t.Error("expected error for unknown underlying")
	}
}
