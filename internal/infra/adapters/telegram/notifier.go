package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"agent-hub/internal/config"
	"agent-hub/internal/domain/ports/adapter"
	"agent-hub/internal/infra/metrics"
)

// maxMessageRunes is the Telegram limit for a single text message.
const maxMessageRunes = 4096

var _ adapter.Notifier = (*BotNotifier)(nil)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// BotNotifier posts operator alerts to a single Telegram chat.
type BotNotifier struct {
	bot    sender
	chatID int64
	log    *zerolog.Logger
}

// NewBotNotifier authenticates against the Bot API with cfg.Token.
func NewBotNotifier(cfg config.TelegramConfig, logger *zerolog.Logger) (*BotNotifier, error) {
	return newBotNotifier(cfg, tgbotapi.APIEndpoint, http.DefaultClient, logger)
}

func newBotNotifier(cfg config.TelegramConfig, endpoint string, client tgbotapi.HTTPClient, logger *zerolog.Logger) (*BotNotifier, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	l := logger.With().Str("component", "telegram_notifier").Str("bot", bot.Self.UserName).Logger()
	return &BotNotifier{bot: bot, chatID: cfg.ChatID, log: &l}, nil
}

func (n *BotNotifier) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, clip(text))
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		metrics.IncNotification("telegram", "error")
		n.log.Warn().Err(err).Int64("chat_id", n.chatID).Msg("send alert failed")
		return fmt.Errorf("telegram send: %w", err)
	}
	metrics.IncNotification("telegram", "ok")
	return nil
}

func clip(text string) string {
	if utf8.RuneCountInString(text) <= maxMessageRunes {
		return text
	}
	r := []rune(text)
	return string(r[:maxMessageRunes-1]) + "…"
}

var _ adapter.Notifier = (*LogNotifier)(nil)

// LogNotifier writes alerts to the log. Used when no bot token is configured.
type LogNotifier struct {
	log *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	l := logger.With().Str("component", "log_notifier").Logger()
	return &LogNotifier{log: &l}
}

func (n *LogNotifier) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.log.Info().Str("alert", text).Msg("notification")
	metrics.IncNotification("log", "ok")
	return nil
}

// New picks the bot notifier when a token is configured and falls back to
// the log notifier otherwise.
func New(cfg config.TelegramConfig, logger *zerolog.Logger) (adapter.Notifier, error) {
	if cfg.Token == "" {
		return NewLogNotifier(logger), nil
	}
	return NewBotNotifier(cfg, logger)
}
