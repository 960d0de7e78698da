package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the simulator
type Config struct {
	// Mode
	Debug bool

	// Account
	StartingBalance decimal.Decimal

	// Price feed
	FeedBaseURL  string
	FeedInterval time.Duration
	FeedPerPage  int

	// Binance live ticks (optional)
	BinanceWSEnabled bool

	// Telegram (optional)
	TelegramToken  string
	TelegramChatID int64

	// Database
	DatabasePath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Debug: getEnvBool("DEBUG", false),

		StartingBalance: getEnvDecimal("STARTING_BALANCE", decimal.NewFromInt(10000)),

		FeedBaseURL:  getEnv("FEED_BASE_URL", "https://api.coingecko.com/api/v3"),
		FeedInterval: getEnvDuration("FEED_INTERVAL", 30*time.Second),
		FeedPerPage:  getEnvInt("FEED_PER_PAGE", 50),

		BinanceWSEnabled: getEnvBool("BINANCE_WS_ENABLED", false),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		DatabasePath: getEnv("DATABASE_PATH", "data/cryptosim.db"),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if cfg.StartingBalance.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("STARTING_BALANCE must be positive")
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
