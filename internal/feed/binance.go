// Package feed streams external reference prices used by lead-lag detection.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the delay before attempting to reconnect.
	reconnectDelay = time.Second

	// historyCap bounds the per-symbol trade history.
	historyCap = 500

	// returnWindow is the lookback used for the short-horizon return.
	returnWindow = time.Second
)

// PriceSnapshot is the latest observed trade for a symbol together with its
// return over the last second.
type PriceSnapshot struct {
	Symbol   string
	Price    float64
	Return1s float64
	TS       time.Time
}

type pricePoint struct {
	ts    time.Time
	price float64
}

// BinanceFeed subscribes to Binance trade streams and maintains a rolling
// one-second return per symbol. Symbols are lowercase pairs such as "btcusdt".
type BinanceFeed struct {
	wsURL   string
	symbols []string
	logger  *slog.Logger

	mu      sync.RWMutex
	history map[string][]pricePoint
	latest  map[string]PriceSnapshot
}

// NewBinanceFeed creates a feed for the given trade symbols.
func NewBinanceFeed(wsURL string, symbols []string, logger *slog.Logger) *BinanceFeed {
	return &BinanceFeed{
		wsURL:   wsURL,
		symbols: symbols,
		logger:  logger.With(slog.String("component", "binance_feed")),
		history: make(map[string][]pricePoint, len(symbols)),
		latest:  make(map[string]PriceSnapshot, len(symbols)),
	}
}

// Run connects, subscribes to the configured trade streams, and runs until
// ctx is cancelled. Reconnects on disconnect.
func (f *BinanceFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("binance ws disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// Snapshot returns the latest price snapshot for symbol.
func (f *BinanceFeed) Snapshot(symbol string) (PriceSnapshot, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	snap, ok := f.latest[symbol]
	return snap, ok
}

func (f *BinanceFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect binance: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	params := make([]string, 0, len(f.symbols))
	for _, sym := range f.symbols {
		params = append(params, sym+"@trade")
	}
	sub := map[string]any{"method": "SUBSCRIBE", "params": params, "id": 1}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("feed: subscribe binance: %w", err)
	}
	f.logger.Info("binance ws subscribed", slog.Int("symbols", len(f.symbols)))

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		f.pingLoop(connCtx, conn)
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read binance: %w", err)
		}
		f.handleMessage(message)
	}
}

func (f *BinanceFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// tradeMessage is the Binance trade stream payload.
type tradeMessage struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

func (f *BinanceFeed) handleMessage(raw []byte) {
	var msg tradeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.EventType != "trade" {
		return
	}
	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil || price <= 0 {
		return
	}
	ts := time.UnixMilli(msg.TradeTime)
	f.record(toStreamSymbol(msg.Symbol), price, ts)
}

// record appends a trade and recomputes the one-second return against the
// oldest retained point. At least one point older than the window is kept as
// the return base.
func (f *BinanceFeed) record(symbol string, price float64, ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	hist := append(f.history[symbol], pricePoint{ts: ts, price: price})
	cutoff := ts.Add(-returnWindow)
	for len(hist) > 1 && hist[1].ts.Before(cutoff) {
		hist = hist[1:]
	}
	if len(hist) > historyCap {
		hist = hist[len(hist)-historyCap:]
	}
	f.history[symbol] = hist

	ret := 0.0
	if base := hist[0].price; base > 0 && len(hist) > 1 {
		ret = (price - base) / base
	}
	f.latest[symbol] = PriceSnapshot{Symbol: symbol, Price: price, Return1s: ret, TS: ts}
}

// toStreamSymbol normalizes Binance's uppercase event symbol to the lowercase
// stream form used as the map key.
func toStreamSymbol(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
