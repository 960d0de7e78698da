// Package engine implements the portfolio valuation and position
// lifecycle: opening leveraged long/short positions, weighted-average
// accumulation, marking to market, and take-profit/stop-loss exits.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Decimal arithmetic is exact here, so "amount reaches zero" is a real
// equality, not an epsilon test, and closed positions leave no dust.
package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/paperhands/cryptosim/account"
	"github.com/paperhands/cryptosim/types"
)

// Leverage bounds. Orders outside the range are clamped, not rejected.
const (
	MinLeverage = 1
	MaxLeverage = 100
)

func clampLeverage(l int) int {
	if l < MinLeverage {
		return MinLeverage
	}
	if l > MaxLeverage {
		return MaxLeverage
	}
	return l
}

// Open executes an open order against the account at the asset's current
// price. The full requested notional is debited from cash up front
// (user-sized stake with a solvency check; there is no fixed auto-stake).
//
// A repeat open on the same asset merges into the existing position: the
// entry price becomes the notional-weighted mean of all entries, and the
// new order's leverage, direction and thresholds replace the old ones.
func Open(acct *account.Account, asset types.Asset, ord types.Order) (*types.Position, error) {
	if ord.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if asset.CurrentPrice.LessThanOrEqual(decimal.Zero) {
		return nil, ErrPriceUnavailable
	}

	notional := ord.Amount.Mul(asset.CurrentPrice)
	if err := NewLedger(acct).Debit(notional); err != nil {
		return nil, err
	}

	leverage := clampLeverage(ord.Leverage)

	pos := acct.Position(asset.ID)
	if pos == nil {
		pos = &types.Position{
			AssetID:       asset.ID,
			Symbol:        asset.Symbol,
			Amount:        ord.Amount,
			AvgEntryPrice: asset.CurrentPrice,
			Leverage:      leverage,
			Direction:     ord.Direction,
			TakeProfit:    ord.TakeProfit,
			StopLoss:      ord.StopLoss,
			OpenedAt:      time.Now(),
		}
		acct.Positions[asset.ID] = pos
		return pos, nil
	}

	// Weighted-average merge: (held×avg + new notional) / (held + new).
	totalAmount := pos.Amount.Add(ord.Amount)
	totalCost := pos.Amount.Mul(pos.AvgEntryPrice).Add(notional)
	pos.Amount = totalAmount
	pos.AvgEntryPrice = totalCost.Div(totalAmount)
	pos.Leverage = leverage
	pos.Direction = ord.Direction
	pos.TakeProfit = ord.TakeProfit
	pos.StopLoss = ord.StopLoss
	return pos, nil
}

// Close realizes P&L on amount units of the position at the asset's
// current price and credits principal plus the signed profit back to
// cash. Closing the full amount removes the position; a partial close
// leaves the average entry price untouched.
func Close(acct *account.Account, asset types.Asset, amount decimal.Decimal) (decimal.Decimal, error) {
	pos := acct.Position(asset.ID)
	if pos == nil {
		return decimal.Zero, ErrNoPosition
	}
	if amount.LessThanOrEqual(decimal.Zero) || amount.GreaterThan(pos.Amount) {
		return decimal.Zero, ErrInvalidAmount
	}

	var delta decimal.Decimal
	if pos.Direction == types.Short {
		delta = pos.AvgEntryPrice.Sub(asset.CurrentPrice)
	} else {
		delta = asset.CurrentPrice.Sub(pos.AvgEntryPrice)
	}
	profit := delta.Mul(amount).Mul(decimal.NewFromInt(int64(pos.Leverage)))
	principal := amount.Mul(pos.AvgEntryPrice)

	NewLedger(acct).Credit(principal.Add(profit))

	pos.Amount = pos.Amount.Sub(amount)
	if pos.Amount.IsZero() {
		delete(acct.Positions, asset.ID)
	}
	return profit, nil
}

// MarkToMarket values the whole account at the snapshot's prices:
// cash plus, for every open position, principal plus unrealized leveraged
// profit. Positions whose asset is absent from the snapshot contribute
// zero and are skipped — they are not deleted.
//
// Pure: safe to re-run any number of times.
func MarkToMarket(acct *account.Account, assets []types.Asset) decimal.Decimal {
	total := acct.Cash
	for _, asset := range assets {
		pos := acct.Position(asset.ID)
		if pos == nil {
			continue
		}
		total = total.Add(pos.Notional()).Add(pos.ProfitAt(asset.CurrentPrice))
	}
	return total
}
