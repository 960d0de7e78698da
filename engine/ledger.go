package engine

import (
	"github.com/shopspring/decimal"

	"github.com/paperhands/cryptosim/account"
)

// Ledger is the thin cash wrapper used by the portfolio operations.
// Debit enforces solvency before mutating, so the balance cannot go
// negative through the open path.
type Ledger struct {
	acct *account.Account
}

// NewLedger wraps an account's cash balance.
func NewLedger(acct *account.Account) *Ledger {
	return &Ledger{acct: acct}
}

// Debit removes amount from cash. Fails with ErrInsufficientFunds when
// amount exceeds the balance and leaves the balance untouched.
func (l *Ledger) Debit(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(l.acct.Cash) {
		return ErrInsufficientFunds
	}
	l.acct.Cash = l.acct.Cash.Sub(amount)
	return nil
}

// Credit adds amount to cash. A close with a large leveraged loss can
// legitimately credit a negative value; that is the caller's arithmetic,
// not the ledger's concern.
func (l *Ledger) Credit(amount decimal.Decimal) {
	l.acct.Cash = l.acct.Cash.Add(amount)
}

// Balance returns the current cash balance.
func (l *Ledger) Balance() decimal.Decimal {
	return l.acct.Cash
}
