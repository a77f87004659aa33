package instrument

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Master CSV columns, in order.
const (
	colFeedToken = iota
	colExchangeToken
	colExchange
	colUnderlying
	colKind
	colExpiry
	colStrike
	colOptionType
	colTradingSymbol
	colLotSize
	colCount
)

// LoadMaster reads the venue instrument master CSV and builds the directory.
func LoadMaster(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open instrument master: %w", err)
	}
	defer f.Close() // nolint

	r := csv.NewReader(f)
	r.FieldsPerRecord = colCount

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read instrument master: %w", err)
	}
	if len(rows) > 0 && rows[0][colFeedToken] == "feed_token" {
		rows = rows[1:] // header
	}

	instruments := make([]*Instrument, 0, len(rows))
	for _, row := range rows {
		in, err := parseRow(row)
		if err != nil {
			zap.S().Warnf("skip master row: %v", err)
			continue
		}
		instruments = append(instruments, in)
	}
	if len(instruments) == 0 {
		return nil, fmt.Errorf("instrument master %s is empty", path)
	}

	zap.S().Infof("loaded %d instruments from %s", len(instruments), path)
	return NewDirectory(instruments), nil
}

func parseRow(row []string) (*Instrument, error) {
	kind := Kind(row[colKind])

	expiry := indexExpiry
	if kind != KindIndex {
		t, err := time.Parse("2006-01-02", row[colExpiry])
		if err != nil {
			return nil, fmt.Errorf("bad expiry %q: %w", row[colExpiry], err)
		}
		expiry = t
	}

	strike, err := decimal.NewFromString(row[colStrike])
	if err != nil {
		return nil, fmt.Errorf("bad strike %q: %w", row[colStrike], err)
	}

	lotSize, err := strconv.ParseInt(row[colLotSize], 10, 64)
	if err != nil || lotSize <= 0 {
		return nil, fmt.Errorf("bad lot size %q", row[colLotSize])
	}

	return &Instrument{
		FeedToken:     row[colFeedToken],
		ExchangeToken: row[colExchangeToken],
		Exchange:      Exchange(row[colExchange]),
		Underlying:    Underlying(row[colUnderlying]),
		Kind:          kind,
		Expiry:        expiry,
		Strike:        strike,
		OptionType:    OptionType(row[colOptionType]),
		TradingSymbol: row[colTradingSymbol],
		LotSize:       lotSize,
	}, nil
}
