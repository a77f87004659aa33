package instrument

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// Exchange-imposed maximum lots per single order.
	freezeQtyTable = map[Underlying]map[ExpiryClass]int64{
		UnderlyingNifty:     {ExpiryWeekly: 24, ExpiryNextWeekly: 24, ExpiryMonthly: 24},
		UnderlyingBankNifty: {ExpiryWeekly: 30, ExpiryNextWeekly: 30, ExpiryMonthly: 30},
	}

	strikeStepTable = map[Underlying]int64{
		UnderlyingNifty:     50,
		UnderlyingBankNifty: 100,
	}
)

// Directory resolves instruments by feed token or by symbol parts.
// Built once at startup from the venue master; read-only afterwards.
type Directory struct {
	byToken    map[string]*Instrument
	bySymbol   map[string]*Instrument
	underlying map[Underlying]*Instrument
	expiries   map[Underlying]map[ExpiryClass]int
}

func NewDirectory(instruments []*Instrument) *Directory {
	d := &Directory{
		byToken:    make(map[string]*Instrument),
		bySymbol:   make(map[string]*Instrument),
		underlying: make(map[Underlying]*Instrument),
		expiries:   make(map[Underlying]map[ExpiryClass]int),
	}
	optExpiries := make(map[Underlying][]int)
	futExpiries := make(map[Underlying][]int)

	for _, in := range instruments {
		d.byToken[in.FeedToken] = in
		if in.Kind == KindIndex {
			d.underlying[in.Underlying] = in
			continue
		}
		key := SymbolKey(in.Exchange, in.Underlying, in.Kind, ExpiryInt(in.Expiry), in.Strike, in.OptionType)
		d.bySymbol[key] = in

		e := ExpiryInt(in.Expiry)
		switch in.Kind {
		case KindIndexOption:
			optExpiries[in.Underlying] = appendUnique(optExpiries[in.Underlying], e)
		case KindIndexFuture:
			futExpiries[in.Underlying] = appendUnique(futExpiries[in.Underlying], e)
		}
	}

	for u, es := range optExpiries {
		sort.Ints(es)
		m := make(map[ExpiryClass]int)
		m[ExpiryWeekly] = es[0]
		if len(es) > 1 {
			m[ExpiryNextWeekly] = es[1]
		}
		if fs := futExpiries[u]; len(fs) > 0 {
			sort.Ints(fs)
			m[ExpiryMonthly] = fs[0]
		}
		d.expiries[u] = m
	}
	return d
}

// Resolve returns the instrument for a feed token.
func (d *Directory) Resolve(token string) (*Instrument, error) {
	in, ok := d.byToken[token]
	if !ok {
		return nil, fmt.Errorf("instrument not found for token %s", token)
	}
	return in, nil
}

// ResolveBySymbolParts resolves a contract from its symbol components.
func (d *Directory) ResolveBySymbolParts(exchange Exchange, underlying Underlying, kind Kind, expiryInt int, strike decimal.Decimal, opt OptionType) (*Instrument, error) {
	key := SymbolKey(exchange, underlying, kind, expiryInt, strike, opt)
	in, ok := d.bySymbol[key]
	if !ok {
		return nil, fmt.Errorf("instrument not found for symbol %s", key)
	}
	return in, nil
}

// UnderlyingIndex returns the cash index instrument for an underlying.
func (d *Directory) UnderlyingIndex(u Underlying) (*Instrument, error) {
	in, ok := d.underlying[u]
	if !ok {
		return nil, fmt.Errorf("underlying index %s not loaded", u)
	}
	return in, nil
}

// Expiry returns the yymmdd expiry of the given class for an underlying.
func (d *Directory) Expiry(u Underlying, class ExpiryClass) (int, error) {
	m, ok := d.expiries[u]
	if !ok {
		return 0, fmt.Errorf("no expiries loaded for %s", u)
	}
	e, ok := m[class]
	if !ok {
		return 0, fmt.Errorf("no %s expiry for %s", class, u)
	}
	return e, nil
}

// FreezeQty returns the exchange freeze quantity in lots.
func FreezeQty(u Underlying, class ExpiryClass) (int64, error) {
	m, ok := freezeQtyTable[u]
	if !ok {
		return 0, fmt.Errorf("no freeze quantity for %s", u)
	}
	return m[class], nil
}

// StrikeStep returns the strike interval for an underlying.
func StrikeStep(u Underlying) int64 {
	if s, ok := strikeStepTable[u]; ok {
		return s
	}
	return 50
}

// Tokens returns every feed token in the directory, for feed subscription.
func (d *Directory) Tokens() []string {
	out := make([]string, 0, len(d.byToken))
	for t := range d.byToken {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func appendUnique(s []int, v int) []int {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

// indexExpiry is the placeholder expiry carried by cash index rows.
var indexExpiry = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
