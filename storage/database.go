// Package storage persists account identity, portfolio and balance across
// restarts, plus a trade history log.
//
// The three state groups are written independently — identity, positions
// and cash have no cross-table transaction, mirroring the separate
// browser-storage keys of the original design. A crash between writes can
// leave them one mutation apart; the engine tolerates that on reload.
package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/paperhands/cryptosim/account"
	"github.com/paperhands/cryptosim/types"
)

type Database struct {
	db *gorm.DB
}

// Models

type AccountRecord struct {
	ID        string `gorm:"primaryKey"`
	Email     string `gorm:"uniqueIndex"`
	Friends   string // JSON-encoded email list
	CreatedAt time.Time
	UpdatedAt time.Time
}

type BalanceRecord struct {
	AccountID string          `gorm:"primaryKey"`
	Cash      decimal.Decimal `gorm:"type:decimal(20,8)"`
	UpdatedAt time.Time
}

type PositionRecord struct {
	AccountID     string          `gorm:"primaryKey"`
	AssetID       string          `gorm:"primaryKey"`
	Symbol        string
	Amount        decimal.Decimal `gorm:"type:decimal(20,8)"`
	AvgEntryPrice decimal.Decimal `gorm:"type:decimal(20,8)"`
	Leverage      int
	Direction     string
	TakeProfit    decimal.Decimal `gorm:"type:decimal(20,8)"`
	StopLoss      decimal.Decimal `gorm:"type:decimal(20,8)"`
	OpenedAt      time.Time
	UpdatedAt     time.Time
}

type TradeRow struct {
	ID        string `gorm:"primaryKey"`
	AccountID string `gorm:"index"`
	AssetID   string
	Symbol    string
	Direction string
	Action    string
	Price     decimal.Decimal `gorm:"type:decimal(20,8)"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,8)"`
	PnL       decimal.Decimal `gorm:"type:decimal(20,8)"`
	CreatedAt time.Time
}

// New opens the store. A postgres:// or postgresql:// DSN selects the
// PostgreSQL driver, anything else is treated as a SQLite file path.
func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("💾 Database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("💾 Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&AccountRecord{}, &BalanceRecord{}, &PositionRecord{}, &TradeRow{}); err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

// Account identity + friend list

func (d *Database) SaveAccount(acct *account.Account) error {
	friends, err := json.Marshal(acct.Friends)
	if err != nil {
		return err
	}
	return d.db.Save(&AccountRecord{
		ID:      acct.ID,
		Email:   acct.Email,
		Friends: string(friends),
	}).Error
}

// LoadAccount restores the full account state for an email: identity and
// friends, then balance, then positions — each group read independently.
// Returns (nil, nil) when the email has never been saved.
func (d *Database) LoadAccount(email string) (*account.Account, error) {
	var rec AccountRecord
	err := d.db.First(&rec, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	acct := &account.Account{
		ID:        rec.ID,
		Email:     rec.Email,
		Friends:   []string{},
		Positions: make(map[string]*types.Position),
	}
	if rec.Friends != "" {
		if err := json.Unmarshal([]byte(rec.Friends), &acct.Friends); err != nil {
			log.Warn().Err(err).Str("email", email).Msg("Corrupt friend list, resetting")
			acct.Friends = []string{}
		}
	}

	var bal BalanceRecord
	if err := d.db.First(&bal, "account_id = ?", rec.ID).Error; err == nil {
		acct.Cash = bal.Cash
	}

	var positions []PositionRecord
	if err := d.db.Where("account_id = ?", rec.ID).Find(&positions).Error; err != nil {
		return nil, err
	}
	for _, p := range positions {
		acct.Positions[p.AssetID] = &types.Position{
			AssetID:       p.AssetID,
			Symbol:        p.Symbol,
			Amount:        p.Amount,
			AvgEntryPrice: p.AvgEntryPrice,
			Leverage:      p.Leverage,
			Direction:     types.Direction(p.Direction),
			TakeProfit:    p.TakeProfit,
			StopLoss:      p.StopLoss,
			OpenedAt:      p.OpenedAt,
		}
	}
	return acct, nil
}

// Balance

func (d *Database) SaveBalance(accountID string, cash decimal.Decimal) error {
	return d.db.Save(&BalanceRecord{AccountID: accountID, Cash: cash}).Error
}

// Portfolio

// SavePortfolio replaces the persisted position set for the account in one
// transaction, so the portfolio group itself can never be half-written.
func (d *Database) SavePortfolio(accountID string, positions map[string]*types.Position) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", accountID).Delete(&PositionRecord{}).Error; err != nil {
			return err
		}
		for _, pos := range positions {
			rec := PositionRecord{
				AccountID:     accountID,
				AssetID:       pos.AssetID,
				Symbol:        pos.Symbol,
				Amount:        pos.Amount,
				AvgEntryPrice: pos.AvgEntryPrice,
				Leverage:      pos.Leverage,
				Direction:     string(pos.Direction),
				TakeProfit:    pos.TakeProfit,
				StopLoss:      pos.StopLoss,
				OpenedAt:      pos.OpenedAt,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Trade history

func (d *Database) LogTrade(accountID string, tr types.TradeRecord) error {
	return d.db.Create(&TradeRow{
		ID:        tr.ID,
		AccountID: accountID,
		AssetID:   tr.AssetID,
		Symbol:    tr.Symbol,
		Direction: string(tr.Direction),
		Action:    tr.Action,
		Price:     tr.Price,
		Amount:    tr.Amount,
		PnL:       tr.PnL,
		CreatedAt: tr.Timestamp,
	}).Error
}

func (d *Database) RecentTrades(accountID string, limit int) ([]types.TradeRecord, error) {
	var rows []TradeRow
	err := d.db.Where("account_id = ?", accountID).
		Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	trades := make([]types.TradeRecord, 0, len(rows))
	for _, r := range rows {
		trades = append(trades, types.TradeRecord{
			ID:        r.ID,
			AssetID:   r.AssetID,
			Symbol:    r.Symbol,
			Direction: types.Direction(r.Direction),
			Action:    r.Action,
			Price:     r.Price,
			Amount:    r.Amount,
			PnL:       r.PnL,
			Timestamp: r.CreatedAt,
		})
	}
	return trades, nil
}
