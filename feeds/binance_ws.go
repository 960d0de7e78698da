package feeds

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BINANCE LIVE TICKS - Optional sub-second prices for the majors
// ═══════════════════════════════════════════════════════════════════════════════
//
// The CoinGecko poll runs every 30s; for the handful of assets Binance
// lists, the combined trade stream fills the gap so take-profit and
// stop-loss triggers fire closer to the crossing tick.
//
// ═══════════════════════════════════════════════════════════════════════════════

const binanceStreamURL = "wss://stream.binance.com:9443/stream"

// binanceSymbols maps Binance tickers to feed asset IDs.
var binanceSymbols = map[string]string{
	"BTCUSDT": "bitcoin",
	"ETHUSDT": "ethereum",
	"SOLUSDT": "solana",
	"BNBUSDT": "binancecoin",
	"XRPUSDT": "ripple",
}

// BinanceWS streams live trade prices over a combined websocket stream.
type BinanceWS struct {
	mu      sync.RWMutex
	conn    *websocket.Conn
	running bool
	stopCh  chan struct{}

	prices  map[string]decimal.Decimal // asset ID -> last trade price
	onPrice func(assetID string, price decimal.Decimal)
}

// NewBinanceWS creates the client. Nothing connects until Start.
func NewBinanceWS() *BinanceWS {
	return &BinanceWS{
		stopCh: make(chan struct{}),
		prices: make(map[string]decimal.Decimal),
	}
}

// SetPriceCallback registers a callback invoked on every trade tick.
// Must be called before Start.
func (c *BinanceWS) SetPriceCallback(cb func(assetID string, price decimal.Decimal)) {
	c.onPrice = cb
}

// Start dials the combined stream and begins reading. Read errors trigger
// a reconnect with backoff until Stop.
func (c *BinanceWS) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	if err := c.connect(); err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return err
	}

	go c.readLoop()
	return nil
}

// Stop closes the stream.
func (c *BinanceWS) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.stopCh)
	if c.conn != nil {
		c.conn.Close()
	}
	log.Info().Msg("Binance stream stopped")
}

// GetPrice returns the last live price for an asset ID, zero if none yet.
func (c *BinanceWS) GetPrice(assetID string) decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prices[assetID]
}

func (c *BinanceWS) connect() error {
	streams := make([]string, 0, len(binanceSymbols))
	for symbol := range binanceSymbols {
		streams = append(streams, strings.ToLower(symbol)+"@trade")
	}
	url := fmt.Sprintf("%s?streams=%s", binanceStreamURL, strings.Join(streams, "/"))

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	log.Info().Int("streams", len(streams)).Msg("🔌 Binance trade stream connected")
	return nil
}

func (c *BinanceWS) readLoop() {
	for {
		c.mu.RLock()
		conn := c.conn
		running := c.running
		c.mu.RUnlock()
		if !running {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if !c.isRunning() {
				return
			}
			log.Warn().Err(err).Msg("Binance WS read error, reconnecting")
			c.reconnect()
			continue
		}
		c.handleMessage(message)
	}
}

func (c *BinanceWS) isRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *BinanceWS) reconnect() {
	for c.isRunning() {
		select {
		case <-c.stopCh:
			return
		case <-time.After(5 * time.Second):
		}
		if err := c.connect(); err != nil {
			log.Warn().Err(err).Msg("Binance WS reconnect failed")
			continue
		}
		return
	}
}

func (c *BinanceWS) handleMessage(data []byte) {
	// Combined stream format: {"stream":"btcusdt@trade","data":{...}}
	var wrapper struct {
		Data struct {
			Symbol string `json:"s"`
			Price  string `json:"p"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return
	}

	assetID, ok := binanceSymbols[strings.ToUpper(wrapper.Data.Symbol)]
	if !ok {
		return
	}
	price, err := decimal.NewFromString(wrapper.Data.Price)
	if err != nil {
		return
	}

	c.mu.Lock()
	c.prices[assetID] = price
	cb := c.onPrice
	c.mu.Unlock()

	if cb != nil {
		cb(assetID, price)
	}
}
