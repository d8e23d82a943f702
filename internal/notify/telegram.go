package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender is the part of *tgbotapi.BotAPI used for delivery.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier sends the payload text to the owner's linked chat.
// Payloads without a chat id are skipped.
type TelegramNotifier struct {
	api Sender
	log *zap.SugaredLogger
}

func NewTelegramNotifier(api Sender, log *zap.SugaredLogger) *TelegramNotifier {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &TelegramNotifier{api: api, log: log}
}

func (t *TelegramNotifier) Notify(_ context.Context, event string, payload map[string]any) bool {
	chatID, ok := chatIDOf(payload[KeyChatID])
	if !ok {
		return false
	}
	text, _ := payload[KeyText].(string)
	if text == "" {
		text = fmt.Sprintf("Notification: %s", event)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		t.log.Warnw("telegram notification failed", "event", event, "chat_id", chatID, "error", err)
		return false
	}
	return true
}

func chatIDOf(v any) (int64, bool) {
	switch id := v.(type) {
	case int64:
		return id, id != 0
	case *int64:
		if id == nil {
			return 0, false
		}
		return *id, *id != 0
	case int:
		return int64(id), id != 0
	case float64:
		return int64(id), id != 0
	default:
		return 0, false
	}
}
