// Package bot pushes trade notifications to Telegram. The notifier is
// optional: wiring it without a token simply disables it.
package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/paperhands/cryptosim/types"
)

// TelegramNotifier mirrors trade and trigger events to a chat.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier connects the bot API.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token not set")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	log.Info().Str("bot", api.Self.UserName).Msg("🤖 Telegram notifier connected")
	return &TelegramNotifier{api: api, chatID: chatID}, nil
}

// NotifyTrade reports a user-initiated open or close.
func (t *TelegramNotifier) NotifyTrade(tr types.TradeRecord) {
	var text string
	switch tr.Action {
	case types.ActionOpen:
		text = fmt.Sprintf("✅ *OPEN* %s %s\nAmount: %s @ $%s",
			tr.Direction, tr.Symbol, tr.Amount.String(), tr.Price.StringFixed(2))
	case types.ActionClose:
		text = fmt.Sprintf("📊 *CLOSE* %s\nAmount: %s @ $%s\nP&L: $%s",
			tr.Symbol, tr.Amount.String(), tr.Price.StringFixed(2), tr.PnL.StringFixed(2))
	default:
		return
	}
	t.send(text)
}

// NotifyTrigger reports an automatic take-profit or stop-loss close.
func (t *TelegramNotifier) NotifyTrigger(ev types.TriggerEvent) {
	icon := "🎯"
	if ev.Reason == "Stop Loss" {
		icon = "🛑"
	}
	t.send(fmt.Sprintf("%s *%s* %s\nClosed @ $%s\nP&L: $%s",
		icon, ev.Reason, ev.Symbol, ev.Price.StringFixed(2), ev.PnL.StringFixed(2)))
}

// send is fire-and-forget so the engine loop never blocks on Telegram.
func (t *TelegramNotifier) send(text string) {
	go func() {
		msg := tgbotapi.NewMessage(t.chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := t.api.Send(msg); err != nil {
			log.Warn().Err(err).Msg("Telegram send failed")
		}
	}()
}
