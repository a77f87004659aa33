package pricefeed

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	connectTimeout    = 10 * time.Second
	heartbeatWindow   = 10 * time.Second
	heartbeatInterval = 100 * time.Millisecond
	reconnectMaxDelay = 5 * time.Second
)

type WSConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	AccessToken string `yaml:"access_token"`
}

// wireTick is the feed's message schema.
type wireTick struct {
	Token string          `json:"instrument_token"`
	LTP   decimal.Decimal `json:"last_price"`
}

type subscribeRequest struct {
	Action string   `json:"action"`
	Tokens []string `json:"tokens"`
}

// WSFeed is a websocket market data client. A heartbeat watcher tears down
// and redials the connection when the stream goes silent; the venue keeps
// streaming during bursts, so silence means a dead socket.
type WSFeed struct {
	cfg    *WSConfig
	tokens []string
	queue  *TickQueue
	cache  *quoteCache

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	tickCount int64

	cancel context.CancelFunc
}

func NewWSFeed(cfg *WSConfig, tokens []string) *WSFeed {
	return &WSFeed{
		cfg:    cfg,
		tokens: tokens,
		queue:  NewTickQueue(),
		cache:  newQuoteCache(),
	}
}

// Connect dials the feed, subscribes every token and starts the reader and
// heartbeat goroutines.
func (f *WSFeed) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	if err := f.dial(runCtx); err != nil {
		cancel()
		return err
	}
	go f.heartbeat(runCtx)
	return nil
}

func (f *WSFeed) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	header := map[string][]string{}
	if f.cfg.AccessToken != "" {
		header["Authorization"] = []string{f.cfg.APIKey + ":" + f.cfg.AccessToken}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.cfg.URL, header)
	if err != nil {
		return err
	}

	if err := conn.WriteJSON(subscribeRequest{Action: "subscribe", Tokens: f.tokens}); err != nil {
		conn.Close() // nolint
		return err
	}
	zap.S().Infow("feed connected", "tokens", len(f.tokens))

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	go f.readLoop(ctx, conn)
	return nil
}

func (f *WSFeed) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close() // nolint
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !f.isClosed() {
				zap.S().Errorw("feed read failed", "err", err)
			}
			return
		}
		var w wireTick
		if err := json.Unmarshal(data, &w); err != nil {
			zap.S().Debugw("feed: skipping malformed packet", "err", err)
			continue
		}
		if w.Token == "" {
			continue
		}
		atomic.AddInt64(&f.tickCount, 1)
		f.cache.set(w.Token, w.LTP)
		f.queue.Push(Tick{Token: w.Token, LTP: w.LTP, At: time.Now()})
	}
}

// heartbeat reconnects when no tick arrived inside the window.
func (f *WSFeed) heartbeat(ctx context.Context) {
	lastBeat := time.Now()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if time.Since(lastBeat) < heartbeatWindow {
			continue
		}
		lastBeat = time.Now()

		count := atomic.SwapInt64(&f.tickCount, 0)
		if count > 0 {
			zap.S().Debugw("feed heartbeat", "ticks", count)
			continue
		}

		zap.S().Warn("feed silent, reconnecting")
		f.mu.Lock()
		if f.conn != nil {
			f.conn.Close() // nolint
			f.conn = nil
		}
		f.mu.Unlock()

		eb := backoff.NewExponentialBackOff()
		eb.MaxInterval = reconnectMaxDelay
		b := backoff.WithContext(eb, ctx)
		if err := backoff.Retry(func() error {
			return f.dial(ctx)
		}, b); err != nil {
			zap.S().Errorw("feed reconnect failed", "err", err)
		}
	}
}

func (f *WSFeed) NextTick(ctx context.Context) (Tick, error) {
	return f.queue.Pop(ctx)
}

func (f *WSFeed) Quote(token string) (decimal.Decimal, bool) {
	return f.cache.get(token)
}

func (f *WSFeed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *WSFeed) Close() error {
	f.mu.Lock()
	f.closed = true
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()

	if f.cancel != nil {
		f.cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
