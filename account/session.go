// Package account holds the trader account and its login session.
//
// Authentication is deliberately mocked: any password of six characters or
// more is accepted and no credentials are stored. The session object is
// passed explicitly into the engine; there is no ambient logged-in user.
package account

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/paperhands/cryptosim/types"
)

// ErrInvalidPassword is returned by Register/Login for passwords shorter
// than six characters.
var ErrInvalidPassword = errors.New("password must be at least 6 characters")

// Account is one trader: identity, cash and open positions.
type Account struct {
	ID        string
	Email     string
	Friends   []string
	Cash      decimal.Decimal
	Positions map[string]*types.Position // asset ID -> position
}

// NewAccount creates an account with the given starting cash.
func NewAccount(email string, startingCash decimal.Decimal) *Account {
	return &Account{
		ID:        uuid.New().String(),
		Email:     email,
		Friends:   []string{},
		Cash:      startingCash,
		Positions: make(map[string]*types.Position),
	}
}

// Position returns the open position for an asset, or nil.
func (a *Account) Position(assetID string) *types.Position {
	return a.Positions[assetID]
}

// AddFriend appends an email to the friend list. Duplicates are ignored.
// No verification happens; any string that looks like an address is kept.
func (a *Account) AddFriend(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" || email == a.Email {
		return false
	}
	for _, f := range a.Friends {
		if f == email {
			return false
		}
	}
	a.Friends = append(a.Friends, email)
	return true
}

// IsFriend reports whether email is on the friend list.
func (a *Account) IsFriend(email string) bool {
	for _, f := range a.Friends {
		if f == email {
			return true
		}
	}
	return false
}

// Session is a live login. Feed results that arrive after End() must be
// discarded by their consumers, so Active is checked before every apply.
type Session struct {
	mu      sync.RWMutex
	Account *Account
	active  bool
}

// Register creates a fresh account and opens a session for it.
func Register(email, password string, startingCash decimal.Decimal) (*Session, error) {
	if len(password) < 6 {
		return nil, ErrInvalidPassword
	}
	acct := NewAccount(email, startingCash)
	log.Info().Str("email", email).Str("id", acct.ID).Msg("👤 Account registered")
	return &Session{Account: acct, active: true}, nil
}

// Login opens a session. With no credential store this is identical to
// Register except that persisted state for the email may be restored by
// the caller afterwards.
func Login(email, password string, startingCash decimal.Decimal) (*Session, error) {
	if len(password) < 6 {
		return nil, ErrInvalidPassword
	}
	acct := NewAccount(email, startingCash)
	log.Info().Str("email", email).Msg("👤 Logged in")
	return &Session{Account: acct, active: true}, nil
}

// Active reports whether the session is still live.
func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// End terminates the session. Idempotent.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.active = false
		log.Info().Str("email", s.Account.Email).Msg("👤 Logged out")
	}
}
