package instrument

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Exchange string

const (
	ExchangeNFO Exchange = "NFO"
	ExchangeBFO Exchange = "BFO"
	ExchangeMCX Exchange = "MCX"
)

type Underlying string

const (
	UnderlyingNifty     Underlying = "NIFTY"
	UnderlyingBankNifty Underlying = "BANKNIFTY"
)

type Kind string

const (
	KindIndexOption Kind = "OPTIDX"
	KindIndexFuture Kind = "FUTIDX"
	KindIndex       Kind = "INDICES"
)

type OptionType string

const (
	OptionCall   OptionType = "CE"
	OptionPut    OptionType = "PE"
	OptionFuture OptionType = "FUT"
	OptionEquity OptionType = "EQ"
)

type ExpiryClass string

const (
	ExpiryWeekly     ExpiryClass = "WEEKLY"
	ExpiryNextWeekly ExpiryClass = "NEXTWEEKLY"
	ExpiryMonthly    ExpiryClass = "MONTHLY"
)

// Instrument is contract metadata resolved from the venue master.
// Never mutated after the directory is built.
type Instrument struct {
	FeedToken     string
	ExchangeToken string
	Exchange      Exchange
	Underlying    Underlying
	Kind          Kind
	Expiry        time.Time
	Strike        decimal.Decimal
	OptionType    OptionType
	TradingSymbol string
	LotSize       int64
}

func (i *Instrument) String() string {
	return fmt.Sprintf("Instrument(symbol=%s, token=%s, strike=%s, expiry=%s, lot=%d)",
		i.TradingSymbol, i.FeedToken, i.Strike, i.Expiry.Format("2006-01-02"), i.LotSize)
}

// ExpiryInt is the yymmdd form used in symbol keys and expiry tables.
func ExpiryInt(t time.Time) int {
	y, m, d := t.Date()
	return (y%100)*10000 + int(m)*100 + d
}

// SymbolKey joins the symbol parts into the directory lookup key,
// e.g. NFO-NIFTY-OPTIDX-250904-22500.0-CE.
func SymbolKey(exchange Exchange, underlying Underlying, kind Kind, expiryInt int, strike decimal.Decimal, opt OptionType) string {
	return fmt.Sprintf("%s-%s-%s-%d-%s-%s", exchange, underlying, kind, expiryInt, strike.StringFixed(1), opt)
}

// RoundToStrike rounds ltp to the nearest multiple of step (half up).
func RoundToStrike(ltp decimal.Decimal, step int64) decimal.Decimal {
	s := decimal.NewFromInt(step)
	return ltp.Div(s).Round(0).Mul(s)
}
