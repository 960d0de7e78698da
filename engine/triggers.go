package engine

import (
	"github.com/shopspring/decimal"

	"github.com/paperhands/cryptosim/account"
	"github.com/paperhands/cryptosim/types"
)

// Human-readable trigger reasons surfaced in events and notifications.
const (
	ReasonTakeProfit = "Take Profit"
	ReasonStopLoss   = "Stop Loss"
)

// CheckExit decides whether a position must auto-close at price.
//
// Long: TP fires at price ≥ threshold, SL at price ≤ threshold.
// Short: mirrored. TP is evaluated first, so when both thresholds are
// crossed in one tick the close is reported as a take-profit.
// Positions with neither threshold set are skipped fast.
func CheckExit(pos *types.Position, price decimal.Decimal) (string, bool) {
	if pos.TakeProfit.IsZero() && pos.StopLoss.IsZero() {
		return "", false
	}

	if pos.Direction == types.Short {
		if !pos.TakeProfit.IsZero() && price.LessThanOrEqual(pos.TakeProfit) {
			return ReasonTakeProfit, true
		}
		if !pos.StopLoss.IsZero() && price.GreaterThanOrEqual(pos.StopLoss) {
			return ReasonStopLoss, true
		}
		return "", false
	}

	if !pos.TakeProfit.IsZero() && price.GreaterThanOrEqual(pos.TakeProfit) {
		return ReasonTakeProfit, true
	}
	if !pos.StopLoss.IsZero() && price.LessThanOrEqual(pos.StopLoss) {
		return ReasonStopLoss, true
	}
	return "", false
}

// EvaluateTriggers runs the exit check for every position present in the
// snapshot and closes triggered positions in full through Close. It runs
// synchronously on each arriving snapshot, never on its own timer.
// Returned events carry the reason and realized P&L for observability.
func EvaluateTriggers(acct *account.Account, assets []types.Asset) []types.TriggerEvent {
	var events []types.TriggerEvent
	for _, asset := range assets {
		pos := acct.Position(asset.ID)
		if pos == nil || asset.CurrentPrice.LessThanOrEqual(decimal.Zero) {
			continue
		}
		reason, fire := CheckExit(pos, asset.CurrentPrice)
		if !fire {
			continue
		}
		pnl, err := Close(acct, asset, pos.Amount)
		if err != nil {
			// Cannot happen for a full close of an existing position;
			// leave the position alone if it somehow does.
			continue
		}
		events = append(events, types.TriggerEvent{
			AssetID: asset.ID,
			Symbol:  asset.Symbol,
			Reason:  reason,
			Price:   asset.CurrentPrice,
			PnL:     pnl,
		})
	}
	return events
}
