package engine

import "errors"

// Every engine failure is recoverable and user-visible; none is fatal to
// the process.
var (
	// ErrInsufficientFunds rejects an open whose notional exceeds cash.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNoPosition rejects a close for an asset with no open position.
	ErrNoPosition = errors.New("no open position")

	// ErrInvalidAmount rejects a non-positive amount, or a close larger
	// than the held amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrPriceUnavailable rejects an order against an asset whose feed
	// price is missing or was sanitized to zero.
	ErrPriceUnavailable = errors.New("price unavailable")
)
