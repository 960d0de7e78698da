package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/paperhands/cryptosim/account"
	"github.com/paperhands/cryptosim/feeds"
	"github.com/paperhands/cryptosim/leaderboard"
	"github.com/paperhands/cryptosim/storage"
	"github.com/paperhands/cryptosim/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENGINE - Central orchestrator
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   Feed snapshot → mark to market → trigger evaluation → leaderboard → Storage
//   User order    → open/close     → Storage → Notifier
//
// One mutex serializes user orders and feed ticks, so a position is never
// mutated by two operations at once.
//
// ═══════════════════════════════════════════════════════════════════════════════

// ErrNoSession rejects operations while nobody is logged in.
var ErrNoSession = errors.New("no active session")

// TradeNotifier pushes user-visible trade events (Telegram). Implementations
// must not block.
type TradeNotifier interface {
	NotifyTrade(tr types.TradeRecord)
	NotifyTrigger(ev types.TriggerEvent)
}

type Engine struct {
	mu sync.Mutex

	// Components
	feed     *feeds.CoinGecko
	db       *storage.Database
	ranker   *leaderboard.Ranker
	notifier TradeNotifier

	// State
	session *account.Session
	latest  feeds.Snapshot
	board   []types.LeaderboardEntry
	running bool
	stopCh  chan struct{}
}

// NewEngine wires the components. db and notifier may be nil.
func NewEngine(feed *feeds.CoinGecko, db *storage.Database, ranker *leaderboard.Ranker, notifier TradeNotifier) *Engine {
	return &Engine{
		feed:     feed,
		db:       db,
		ranker:   ranker,
		notifier: notifier,
		stopCh:   make(chan struct{}),
	}
}

// Start subscribes to the feed and begins processing snapshots.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.feed.Start()
	tickCh := e.feed.Subscribe()
	go e.mainLoop(tickCh)
	log.Info().Msg("⚡ Engine started")
}

// Stop stops the engine and the feed.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	close(e.stopCh)
	e.feed.Stop()
	log.Info().Msg("Engine stopped")
}

func (e *Engine) mainLoop(tickCh <-chan feeds.Snapshot) {
	for {
		select {
		case <-e.stopCh:
			return
		case snap := <-tickCh:
			e.processSnapshot(snap)
		}
	}
}

// AttachSession makes the session the engine's active account and values
// it against the latest snapshot.
func (e *Engine) AttachSession(s *account.Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = s
	e.latest = e.feed.Latest()
	e.refreshBoard()
}

// DetachSession ends the active session. Snapshots already in flight are
// discarded when they arrive.
func (e *Engine) DetachSession() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.End()
		e.session = nil
		e.board = nil
	}
}

// OpenPosition executes a submitted open order at the latest feed price.
func (e *Engine) OpenPosition(ord types.Order) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct, err := e.activeAccount()
	if err != nil {
		return err
	}
	asset, ok := e.latest.Asset(ord.AssetID)
	if !ok {
		return ErrPriceUnavailable
	}

	pos, err := Open(acct, asset, ord)
	if err != nil {
		return err
	}

	tr := types.TradeRecord{
		ID:        uuid.New().String(),
		AssetID:   asset.ID,
		Symbol:    asset.Symbol,
		Direction: pos.Direction,
		Action:    types.ActionOpen,
		Price:     asset.CurrentPrice,
		Amount:    ord.Amount,
		Timestamp: time.Now(),
	}
	log.Info().
		Str("asset", asset.Symbol).
		Str("direction", string(pos.Direction)).
		Int("leverage", pos.Leverage).
		Str("price", asset.CurrentPrice.StringFixed(2)).
		Str("amount", ord.Amount.String()).
		Msg("✅ Position opened")

	if e.notifier != nil {
		e.notifier.NotifyTrade(tr)
	}
	e.persistTrading(acct, tr)
	e.refreshBoard()
	return nil
}

// ClosePosition realizes amount units of the position at the latest price.
func (e *Engine) ClosePosition(assetID string, amount decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct, err := e.activeAccount()
	if err != nil {
		return err
	}
	asset, ok := e.latest.Asset(assetID)
	if !ok {
		return ErrPriceUnavailable
	}

	pos := acct.Position(assetID)
	if pos == nil {
		return ErrNoPosition
	}
	direction := pos.Direction

	pnl, err := Close(acct, asset, amount)
	if err != nil {
		return err
	}

	tr := types.TradeRecord{
		ID:        uuid.New().String(),
		AssetID:   asset.ID,
		Symbol:    asset.Symbol,
		Direction: direction,
		Action:    types.ActionClose,
		Price:     asset.CurrentPrice,
		Amount:    amount,
		PnL:       pnl,
		Timestamp: time.Now(),
	}
	log.Info().
		Str("asset", asset.Symbol).
		Str("price", asset.CurrentPrice.StringFixed(2)).
		Str("pnl", pnl.StringFixed(2)).
		Msg("📊 Position closed")

	if e.notifier != nil {
		e.notifier.NotifyTrade(tr)
	}
	e.persistTrading(acct, tr)
	e.refreshBoard()
	return nil
}

// AddFriend adds an email to the account's friend list and persists it.
// Duplicates are silently ignored.
func (e *Engine) AddFriend(email string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct, err := e.activeAccount()
	if err != nil {
		return err
	}
	if acct.AddFriend(email) && e.db != nil {
		if err := e.db.SaveAccount(acct); err != nil {
			log.Warn().Err(err).Msg("Persist friend list failed")
		}
	}
	e.refreshBoard()
	return nil
}

// TotalValue marks the account to market against the latest snapshot.
func (e *Engine) TotalValue() (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct, err := e.activeAccount()
	if err != nil {
		return decimal.Zero, err
	}
	return MarkToMarket(acct, e.latest.Assets), nil
}

// Balance returns the cash balance.
func (e *Engine) Balance() (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct, err := e.activeAccount()
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Cash, nil
}

// Positions returns copies of the open positions.
func (e *Engine) Positions() []types.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct, err := e.activeAccount()
	if err != nil {
		return nil
	}
	out := make([]types.Position, 0, len(acct.Positions))
	for _, asset := range e.latest.Assets {
		if pos := acct.Position(asset.ID); pos != nil {
			out = append(out, *pos)
		}
	}
	// Positions for assets that dropped out of the feed still belong to
	// the account; list them after the priced ones.
	for id, pos := range acct.Positions {
		if _, ok := e.latest.Asset(id); !ok {
			out = append(out, *pos)
		}
	}
	return out
}

// Leaderboard returns the board from the last valuation tick.
func (e *Engine) Leaderboard() []types.LeaderboardEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.LeaderboardEntry, len(e.board))
	copy(out, e.board)
	return out
}

// Refresh forces an immediate feed poll outside the interval. The
// resulting snapshot is applied through the normal tick path.
func (e *Engine) Refresh() (feeds.Snapshot, error) {
	return e.feed.Refresh()
}

// Assets returns the latest snapshot rows.
func (e *Engine) Assets() []types.Asset {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.Asset, len(e.latest.Assets))
	copy(out, e.latest.Assets)
	return out
}

// ApplyLivePrice overrides one asset's price between polls (Binance
// stream) and re-evaluates triggers at the new price.
func (e *Engine) ApplyLivePrice(assetID string, price decimal.Decimal) {
	if price.LessThanOrEqual(decimal.Zero) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil || !e.session.Active() {
		return
	}
	for i := range e.latest.Assets {
		if e.latest.Assets[i].ID == assetID {
			e.latest.Assets[i].CurrentPrice = price
			e.runTriggers(e.session.Account, e.latest.Assets[i:i+1])
			return
		}
	}
}

// processSnapshot applies one feed tick: triggers first, then valuation.
// A snapshot landing after logout is discarded without touching state.
func (e *Engine) processSnapshot(snap feeds.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil || !e.session.Active() {
		log.Debug().Msg("Snapshot discarded, no active session")
		return
	}

	e.latest = snap
	e.runTriggers(e.session.Account, snap.Assets)
	e.refreshBoard()
}

// runTriggers must be called with the lock held.
func (e *Engine) runTriggers(acct *account.Account, assets []types.Asset) {
	events := EvaluateTriggers(acct, assets)
	for _, ev := range events {
		action := types.ActionStopLoss
		if ev.Reason == ReasonTakeProfit {
			action = types.ActionTakeProfit
		}
		tr := types.TradeRecord{
			ID:        uuid.New().String(),
			AssetID:   ev.AssetID,
			Symbol:    ev.Symbol,
			Action:    action,
			Price:     ev.Price,
			PnL:       ev.PnL,
			Timestamp: time.Now(),
		}
		log.Info().
			Str("asset", ev.Symbol).
			Str("reason", ev.Reason).
			Str("price", ev.Price.StringFixed(2)).
			Str("pnl", ev.PnL.StringFixed(2)).
			Msg("🎯 Exit triggered")

		e.persistTrading(acct, tr)
		if e.notifier != nil {
			e.notifier.NotifyTrigger(ev)
		}
	}
}

func (e *Engine) activeAccount() (*account.Account, error) {
	if e.session == nil || !e.session.Active() {
		return nil, ErrNoSession
	}
	return e.session.Account, nil
}

// persistTrading writes balance, portfolio and the trade log. Best effort:
// a storage failure is logged, never surfaced as a trading error.
func (e *Engine) persistTrading(acct *account.Account, tr types.TradeRecord) {
	if e.db == nil {
		return
	}
	if err := e.db.SaveBalance(acct.ID, acct.Cash); err != nil {
		log.Warn().Err(err).Msg("Persist balance failed")
	}
	if err := e.db.SavePortfolio(acct.ID, acct.Positions); err != nil {
		log.Warn().Err(err).Msg("Persist portfolio failed")
	}
	if err := e.db.LogTrade(acct.ID, tr); err != nil {
		log.Warn().Err(err).Msg("Persist trade failed")
	}
}

// refreshBoard must be called with the lock held.
func (e *Engine) refreshBoard() {
	if e.session == nil || !e.session.Active() || e.ranker == nil {
		return
	}
	acct := e.session.Account
	total := MarkToMarket(acct, e.latest.Assets)
	e.board = e.ranker.Rank(acct.Email, total, acct.Friends)
}
