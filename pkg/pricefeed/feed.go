// Package pricefeed streams last-traded prices over a market data websocket.
// Ticks are buffered through an unbounded queue so a slow consumer never
// stalls the socket reader.
package pricefeed

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Tick is one last-traded-price observation.
type Tick struct {
	Token string
	LTP   decimal.Decimal
	At    time.Time
}

// Feed delivers ticks in arrival order and answers point-in-time quotes.
// NextTick blocks; Quote never does.
type Feed interface {
	Connect(ctx context.Context) error
	NextTick(ctx context.Context) (Tick, error)
	Quote(token string) (decimal.Decimal, bool)
	Close() error
}

// quoteCache is the latest price per token, shared between the socket reader
// and strategy evaluation.
type quoteCache struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func newQuoteCache() *quoteCache {
	return &quoteCache{prices: make(map[string]decimal.Decimal)}
}

func (c *quoteCache) set(token string, px decimal.Decimal) {
	c.mu.Lock()
	c.prices[token] = px
	c.mu.Unlock()
}

func (c *quoteCache) get(token string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	px, ok := c.prices[token]
	return px, ok
}
