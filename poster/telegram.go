package poster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram posts payloads to a chat or channel through the Bot API.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	retry  RetryPolicy
}

// TelegramOption configures a Telegram poster.
type TelegramOption func(*Telegram)

// WithTelegramRetry overrides the retry policy.
func WithTelegramRetry(p RetryPolicy) TelegramOption {
	return func(t *Telegram) {
		t.retry = p
	}
}

// NewTelegram authenticates the bot and returns a poster for chatID.
func NewTelegram(token string, chatID int64, opts ...TelegramOption) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, tgbotapi.APIEndpoint, chatID, &http.Client{Timeout: 30 * time.Second}, opts...)
}

// NewTelegramWithEndpoint is NewTelegram against a custom API endpoint
// (format "https://host/bot%s/%s").
func NewTelegramWithEndpoint(token, endpoint string, chatID int64, client *http.Client, opts ...TelegramOption) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	t := &Telegram{
		bot:    bot,
		chatID: chatID,
		retry:  DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Post sends payload as a plain-text message with link preview.
func (t *Telegram) Post(ctx context.Context, payload string) (string, error) {
	policy := t.retry
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.WarnContext(ctx, "telegram send failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	}

	return retryDo(ctx, policy, classifyTelegramError, func() (string, error) {
		msg := tgbotapi.NewMessage(t.chatID, payload)
		sent, err := t.bot.Send(msg)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(sent.MessageID), nil
	})
}

func classifyTelegramError(err error) Action {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code)
	}
	return Retry
}
