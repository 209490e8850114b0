package sender

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// telegramMessageLimit is the longest text the Bot API accepts.
const telegramMessageLimit = 4096

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramAlertSender posts alerts to a Telegram chat through a bot.
type TelegramAlertSender struct {
	bot     botAPI
	chatID  int64
	limiter *rate.Limiter
}

// NewTelegramAlertSender connects to the Bot API with token. A zero perSecond
// disables rate limiting.
func NewTelegramAlertSender(token string, chatID int64, perSecond float64) (*TelegramAlertSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	return newTelegramAlertSender(bot, chatID, perSecond), nil
}

func newTelegramAlertSender(bot botAPI, chatID int64, perSecond float64) *TelegramAlertSender {
	s := &TelegramAlertSender{bot: bot, chatID: chatID}
	if perSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return s
}

func (s *TelegramAlertSender) Name() string { return "telegram" }

func (s *TelegramAlertSender) SendAlert(ctx context.Context, subject, text string) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("telegram rate limit: %w", err)
		}
	}

	body := subject + "\n\n" + text
	if r := []rune(body); len(r) > telegramMessageLimit {
		body = string(r[:telegramMessageLimit-1]) + "…"
	}

	if _, err := s.bot.Send(tgbotapi.NewMessage(s.chatID, body)); err != nil {
		return fmt.Errorf("send telegram alert: %w", err)
	}
	return nil
}
