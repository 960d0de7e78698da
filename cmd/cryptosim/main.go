// Cryptosim - paper trading simulator on live crypto market data
//
// A headless client: market prices come from the public CoinGecko API on a
// fixed polling interval, positions and balances live in a local database,
// and all trading is simulated. Leveraged long/short positions with
// optional take-profit/stop-loss are opened and closed from a small stdin
// command loop.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/paperhands/cryptosim/bot"
	"github.com/paperhands/cryptosim/engine"
	"github.com/paperhands/cryptosim/feeds"
	"github.com/paperhands/cryptosim/internal/config"
	"github.com/paperhands/cryptosim/leaderboard"
	"github.com/paperhands/cryptosim/storage"
)

const version = "1.0.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Str("starting_balance", cfg.StartingBalance.String()).
		Dur("feed_interval", cfg.FeedInterval).
		Msg("📈 Cryptosim starting...")

	// Local persistence
	db, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Market data feed
	feed := feeds.NewCoinGecko(cfg.FeedBaseURL, cfg.FeedInterval, cfg.FeedPerPage)

	// Optional Telegram notifications
	var notifier engine.TradeNotifier
	if cfg.TelegramToken != "" {
		tg, err := bot.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram disabled")
		} else {
			notifier = tg
		}
	}

	ranker := leaderboard.NewRanker(leaderboard.DefaultPeers(), nil)

	eng := engine.NewEngine(feed, db, ranker, notifier)
	eng.Start()
	defer eng.Stop()

	// Optional live tick overlay between polls
	if cfg.BinanceWSEnabled {
		ws := feeds.NewBinanceWS()
		ws.SetPriceCallback(eng.ApplyLivePrice)
		if err := ws.Start(); err != nil {
			log.Warn().Err(err).Msg("Binance stream disabled")
		} else {
			defer ws.Stop()
		}
	}

	// Command loop
	done := make(chan struct{})
	r := newREPL(eng, db, cfg)
	go func() {
		r.run()
		close(done)
	}()

	// Wait for quit or signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info().Msg("Signal received, shutting down")
	case <-done:
	}
}
