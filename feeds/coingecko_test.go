package feeds

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const marketsBody = `[
  {
    "id": "bitcoin", "symbol": "btc", "name": "Bitcoin",
    "current_price": 64250.12,
    "price_change_percentage_24h": -1.2,
    "sparkline_in_7d": {"price": [64000, 64100.5, 64250.12]}
  },
  {
    "id": "ethereum", "symbol": "eth", "name": "Ethereum",
    "current_price": "not-a-number",
    "price_change_percentage_24h": null,
    "sparkline_in_7d": {"price": [3000, "bad", null]}
  },
  {
    "id": "tether", "symbol": "usdt", "name": "Tether",
    "current_price": 1.0,
    "price_change_percentage_24h": 0.01
  }
]`

func newTestFeed(t *testing.T, handler http.HandlerFunc) *CoinGecko {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewCoinGecko(srv.URL, time.Hour, 50)
}

func TestRefreshParsesAndSanitizes(t *testing.T) {
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(marketsBody))
	})

	snap, err := feed.Refresh()
	require.NoError(t, err)
	require.Len(t, snap.Assets, 3)

	btc := snap.Assets[0]
	require.Equal(t, "bitcoin", btc.ID)
	require.True(t, btc.CurrentPrice.Equal(decimal.NewFromFloat(64250.12)))
	require.True(t, btc.PercentChange24.Equal(decimal.NewFromFloat(-1.2)))
	require.Len(t, btc.PriceHistory, 3)

	// Malformed fields are coerced, never dropped with the batch.
	eth := snap.Assets[1]
	require.True(t, eth.CurrentPrice.IsZero(), "non-numeric price becomes zero")
	require.True(t, eth.PercentChange24.IsZero())
	require.Len(t, eth.PriceHistory, 3)
	require.True(t, eth.PriceHistory[1].IsZero())

	// Absent sparkline becomes an empty history.
	usdt := snap.Assets[2]
	require.NotNil(t, usdt.PriceHistory)
	require.Empty(t, usdt.PriceHistory)
}

func TestRefreshSendsExpectedQuery(t *testing.T) {
	var got map[string]string
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		got = map[string]string{
			"path":        r.URL.Path,
			"vs_currency": r.URL.Query().Get("vs_currency"),
			"order":       r.URL.Query().Get("order"),
			"per_page":    r.URL.Query().Get("per_page"),
			"sparkline":   r.URL.Query().Get("sparkline"),
			"change":      r.URL.Query().Get("price_change_percentage"),
		}
		w.Write([]byte("[]"))
	})

	_, err := feed.Refresh()
	require.NoError(t, err)
	require.Equal(t, "/coins/markets", got["path"])
	require.Equal(t, "usd", got["vs_currency"])
	require.Equal(t, "market_cap_desc", got["order"])
	require.Equal(t, "50", got["per_page"])
	require.Equal(t, "true", got["sparkline"])
	require.Equal(t, "24h", got["change"])
}

func TestRefreshFailuresWrapFeedUnavailable(t *testing.T) {
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := feed.Refresh()
	require.ErrorIs(t, err, ErrFeedUnavailable)

	feed = newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	})
	_, err = feed.Refresh()
	require.ErrorIs(t, err, ErrFeedUnavailable)
}

func TestRefreshPublishesToSubscribers(t *testing.T) {
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(marketsBody))
	})
	ch := feed.Subscribe()

	snap, err := feed.Refresh()
	require.NoError(t, err)

	select {
	case got := <-ch:
		require.Len(t, got.Assets, len(snap.Assets))
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the snapshot")
	}

	require.Len(t, feed.Latest().Assets, 3)
}

func TestSnapshotAssetLookup(t *testing.T) {
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(marketsBody))
	})
	snap, err := feed.Refresh()
	require.NoError(t, err)

	a, ok := snap.Asset("tether")
	require.True(t, ok)
	require.Equal(t, "usdt", a.Symbol)

	_, ok = snap.Asset("dogecoin")
	require.False(t, ok)
}
