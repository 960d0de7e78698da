package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Direction of a position's exposure.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Trade actions recorded in the history log.
const (
	ActionOpen       = "OPEN"
	ActionClose      = "CLOSE"
	ActionTakeProfit = "TAKE_PROFIT"
	ActionStopLoss   = "STOP_LOSS"
)

// Asset is one market row from the price feed. Read-only for the engine.
type Asset struct {
	ID              string
	Symbol          string
	Name            string
	CurrentPrice    decimal.Decimal
	PercentChange24 decimal.Decimal
	PriceHistory    []decimal.Decimal // 7d sparkline sample, may be empty
}

// Position is the holding for one (account, asset) pair.
//
// AvgEntryPrice is the volume-weighted mean of all entries and is never
// touched by a partial close. TakeProfit/StopLoss use the zero value as
// "not set".
type Position struct {
	AssetID       string
	Symbol        string
	Amount        decimal.Decimal
	AvgEntryPrice decimal.Decimal
	Leverage      int
	Direction     Direction
	TakeProfit    decimal.Decimal
	StopLoss      decimal.Decimal
	OpenedAt      time.Time
}

// Notional returns Amount × AvgEntryPrice, the cash principal committed.
func (p *Position) Notional() decimal.Decimal {
	return p.Amount.Mul(p.AvgEntryPrice)
}

// ProfitAt returns the leveraged P&L of the full position at price.
// The delta is direction-signed: a SHORT gains when the price falls.
func (p *Position) ProfitAt(price decimal.Decimal) decimal.Decimal {
	var delta decimal.Decimal
	if p.Direction == Short {
		delta = p.AvgEntryPrice.Sub(price)
	} else {
		delta = price.Sub(p.AvgEntryPrice)
	}
	return delta.Mul(p.Amount).Mul(decimal.NewFromInt(int64(p.Leverage)))
}

// Order is a submitted open request. It replaces any interactive prompt so
// the engine stays headless and testable.
type Order struct {
	AssetID    string
	Amount     decimal.Decimal
	Leverage   int
	Direction  Direction
	TakeProfit decimal.Decimal // zero = none
	StopLoss   decimal.Decimal // zero = none
}

// TradeRecord is a historical trade for the log and notifications.
type TradeRecord struct {
	ID        string
	AssetID   string
	Symbol    string
	Direction Direction
	Action    string // OPEN, CLOSE, TAKE_PROFIT, STOP_LOSS
	Price     decimal.Decimal
	Amount    decimal.Decimal
	PnL       decimal.Decimal
	Timestamp time.Time
}

// TriggerEvent reports an automatic close for observability.
type TriggerEvent struct {
	AssetID string
	Symbol  string
	Reason  string // "Take Profit" or "Stop Loss"
	Price   decimal.Decimal
	PnL     decimal.Decimal
}

// LeaderboardEntry is a derived ranking row, recomputed on every tick.
type LeaderboardEntry struct {
	Email      string
	TotalValue decimal.Decimal
	Rank       int // 1-based, no gaps
	IsFriend   bool
}
