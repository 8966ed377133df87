package notify

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"appguard/internal/core"
	"appguard/internal/overlay"
)

// TelegramSink pushes guard notifications to a Telegram chat. The send is
// synchronous and runs on the Fanout delivery worker, never on the
// coordinator's event loop. Failures are logged, not retried.
type TelegramSink struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// NewTelegramSink creates the sink and verifies the bot token.
func NewTelegramSink(token string, chatID int64, logger *slog.Logger) (*TelegramSink, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramSink{
		api:    api,
		chatID: chatID,
		logger: logger.With("component", "telegram"),
	}, nil
}

func (s *TelegramSink) send(text string) {
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := s.api.Send(msg); err != nil {
		s.logger.Error("failed to send notification", "error", err)
	}
}

func (s *TelegramSink) AppUnlocked(name string, method core.UnlockMethod) {
	s.send(unlockText(name, method))
}

func (s *TelegramSink) RelockTriggered(trigger string, terminated, locked int) {
	s.send(relockText(trigger, terminated, locked))
}

func (s *TelegramSink) OverlayShown(app core.ProtectedApp) {
	s.send(fmt.Sprintf("🛡 *%s* is locked, authentication required", app.Name))
}

func (s *TelegramSink) OverlayHidden(app core.ProtectedApp, reason overlay.Reason) {
	if reason == overlay.ReasonPanic {
		s.send(fmt.Sprintf("⚠️ Panic override dismissed the lock on *%s*", app.Name))
	}
}
