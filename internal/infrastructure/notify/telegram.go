package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/vitos/crypto_bot_engine/internal/domain"
)

// MessageSender is the part of tgbotapi.BotAPI the sink needs.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink posts trades, errors and lifecycle changes to a chat.
// Routine per-tick status events are skipped.
type TelegramSink struct {
	bot    MessageSender
	chatID int64
}

func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return NewTelegramSinkWithSender(bot, chatID), nil
}

func NewTelegramSinkWithSender(bot MessageSender, chatID int64) *TelegramSink {
	return &TelegramSink{bot: bot, chatID: chatID}
}

func (t *TelegramSink) Name() string { return "telegram" }

func (t *TelegramSink) Send(ctx context.Context, ev domain.Event) error {
	text := FormatEvent(ev)
	if text == "" {
		return nil
	}

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func (t *TelegramSink) Close() error { return nil }

// FormatEvent renders ev as Telegram HTML. It returns "" for events not
// worth a chat message.
func FormatEvent(ev domain.Event) string {
	switch e := ev.(type) {
	case domain.TradeExecutedEvent:
		emoji := "🟢"
		if e.Side == domain.ActionSell {
			emoji = "🔴"
			if e.Profit.IsPositive() {
				emoji = "💰"
			}
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s <b>%s</b> %s\n", emoji, e.Side, esc(e.Symbol))
		fmt.Fprintf(&b, "Price: %s\nQty: %s\n", e.Price.String(), e.Quantity.String())
		if !e.Profit.IsZero() {
			fmt.Fprintf(&b, "P&amp;L: %s\n", e.Profit.StringFixed(4))
		}
		fmt.Fprintf(&b, "Reason: %s\nBot: <code>%s</code>", esc(e.Reason), esc(e.BotID))
		return b.String()

	case domain.ErrorEvent:
		if e.BotID == "" {
			return fmt.Sprintf("⚠️ <b>Error</b>\n%s", esc(e.Message))
		}
		return fmt.Sprintf("⚠️ <b>Error</b> [<code>%s</code>]\n%s", esc(e.BotID), esc(e.Message))

	case domain.StatusEvent:
		switch e.Message {
		case domain.MsgBotStarted, domain.MsgBotStopped, domain.MsgBotResumed:
		default:
			return ""
		}
		return fmt.Sprintf("ℹ️ <code>%s</code> %s\nTrades: %d\nProfit: %s",
			esc(e.BotID), esc(e.Message), e.TradesExecuted, e.TotalProfit.StringFixed(4))
	}
	return ""
}

func esc(s string) string { return html.EscapeString(s) }
