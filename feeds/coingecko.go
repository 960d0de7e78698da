package feeds

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/paperhands/cryptosim/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// COINGECKO PRICE FEED - Polled market snapshots
// ═══════════════════════════════════════════════════════════════════════════════
//
// Polls /coins/markets on a fixed interval and fans snapshots out to
// subscribers. A failed poll is logged and swallowed; the next tick is the
// retry policy. Individual malformed asset rows are sanitized field by
// field (bad price → 0, missing sparkline → empty history) instead of
// dropping the whole batch.
//
// ═══════════════════════════════════════════════════════════════════════════════

// ErrFeedUnavailable wraps any network or parse failure of a poll.
var ErrFeedUnavailable = errors.New("price feed unavailable")

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// Snapshot is one polled batch of market rows, in feed order.
type Snapshot struct {
	Assets    []types.Asset
	FetchedAt time.Time
}

// Asset returns the snapshot row for id, or false.
func (s Snapshot) Asset(id string) (types.Asset, bool) {
	for _, a := range s.Assets {
		if a.ID == id {
			return a, true
		}
	}
	return types.Asset{}, false
}

// CoinGecko polls the public markets endpoint.
type CoinGecko struct {
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}

	baseURL    string
	vsCurrency string
	perPage    int
	interval   time.Duration
	client     *http.Client

	latest      Snapshot
	subscribers []chan Snapshot
}

// NewCoinGecko creates a poller. An empty baseURL selects the public API;
// interval ≤ 0 defaults to 30s, perPage ≤ 0 to 50.
func NewCoinGecko(baseURL string, interval time.Duration, perPage int) *CoinGecko {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if perPage <= 0 {
		perPage = 50
	}
	return &CoinGecko{
		stopCh:     make(chan struct{}),
		baseURL:    baseURL,
		vsCurrency: "usd",
		perPage:    perPage,
		interval:   interval,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Start begins polling. The first fetch happens immediately.
func (f *CoinGecko) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.pollLoop()
	log.Info().Dur("interval", f.interval).Msg("📊 CoinGecko feed started")
}

// Stop stops polling.
func (f *CoinGecko) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	f.running = false
	close(f.stopCh)
	log.Info().Msg("CoinGecko feed stopped")
}

// Subscribe returns a channel receiving every successful snapshot.
// Slow subscribers miss snapshots rather than blocking the poller.
func (f *CoinGecko) Subscribe() chan Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan Snapshot, 4)
	f.subscribers = append(f.subscribers, ch)
	return ch
}

// Latest returns the most recent snapshot (zero value before the first
// successful poll).
func (f *CoinGecko) Latest() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest
}

// Refresh fetches a snapshot immediately, outside the polling cadence.
func (f *CoinGecko) Refresh() (Snapshot, error) {
	snap, err := f.fetch()
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	f.publish(snap)
	return snap, nil
}

func (f *CoinGecko) pollLoop() {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.poll()
	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.poll()
		}
	}
}

// poll swallows failures: polling continues and the next interval tick is
// the retry.
func (f *CoinGecko) poll() {
	snap, err := f.fetch()
	if err != nil {
		log.Warn().Err(err).Msg("CoinGecko fetch failed")
		return
	}
	f.publish(snap)
}

func (f *CoinGecko) publish(snap Snapshot) {
	f.mu.Lock()
	f.latest = snap
	subs := make([]chan Snapshot, len(f.subscribers))
	copy(subs, f.subscribers)
	f.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
			// Subscriber lagging, skip
		}
	}
}

// marketRow mirrors the wire format loosely: numeric fields decode into
// any so that a single malformed value cannot fail the batch.
type marketRow struct {
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Price     any    `json:"current_price"`
	Change24h any    `json:"price_change_percentage_24h"`
	Sparkline *struct {
		Price []any `json:"price"`
	} `json:"sparkline_in_7d"`
}

func (f *CoinGecko) fetch() (Snapshot, error) {
	q := url.Values{}
	q.Set("vs_currency", f.vsCurrency)
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(f.perPage))
	q.Set("sparkline", "true")
	q.Set("price_change_percentage", "24h")

	resp, err := f.client.Get(f.baseURL + "/coins/markets?" + q.Encode())
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var rows []marketRow
	if err := dec.Decode(&rows); err != nil {
		return Snapshot{}, err
	}

	assets := make([]types.Asset, 0, len(rows))
	for _, row := range rows {
		assets = append(assets, sanitize(row))
	}
	return Snapshot{Assets: assets, FetchedAt: time.Now()}, nil
}

// sanitize coerces one row field by field. Non-numeric values become
// zero, a missing sparkline becomes an empty history.
func sanitize(row marketRow) types.Asset {
	asset := types.Asset{
		ID:              row.ID,
		Symbol:          row.Symbol,
		Name:            row.Name,
		CurrentPrice:    toDecimal(row.Price),
		PercentChange24: toDecimal(row.Change24h),
		PriceHistory:    []decimal.Decimal{},
	}
	if row.Sparkline != nil {
		for _, v := range row.Sparkline.Price {
			asset.PriceHistory = append(asset.PriceHistory, toDecimal(v))
		}
	}
	return asset
}

func toDecimal(v any) decimal.Decimal {
	switch n := v.(type) {
	case json.Number:
		if d, err := decimal.NewFromString(n.String()); err == nil {
			return d
		}
	case string:
		if d, err := decimal.NewFromString(n); err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(n)
	}
	return decimal.Zero
}
