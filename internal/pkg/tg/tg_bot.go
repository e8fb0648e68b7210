package tg

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type TelegramSender interface {
	SendMessage(chatID int64, message string) error
	GetID(phone string) int64
}

// TelegramAdapter mirrors gallery notices to users who shared their phone
// number with the bot.
type TelegramAdapter struct {
	bot *tgbotapi.BotAPI
	log *zap.SugaredLogger

	mu      sync.RWMutex
	chatIDs map[string]int64
}

func NewTelegramAdapter(botToken string, log *zap.SugaredLogger) (*TelegramAdapter, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}

	return &TelegramAdapter{bot: bot, log: log, chatIDs: make(map[string]int64)}, nil
}

// SendMessage отправляет текстовое сообщение в Telegram-чат.
func (t *TelegramAdapter) SendMessage(chatID int64, message string) error {
	msg := tgbotapi.NewMessage(chatID, message)
	_, err := t.bot.Send(msg)
	return err
}

// GetID returns the chat id registered for phone, or 0.
func (t *TelegramAdapter) GetID(phone string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.chatIDs[NormalizePhone(phone)]
}

func (t *TelegramAdapter) remember(phone string, chatID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chatIDs[NormalizePhone(phone)] = chatID
}

// Listen consumes bot updates until ctx is done. Users register by sharing
// their contact after /start.
func (t *TelegramAdapter) Listen(ctx context.Context) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60

	updates := t.bot.GetUpdatesChan(updateConfig)
	defer t.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			t.handleUpdate(update)
		}
	}
}

func (t *TelegramAdapter) handleUpdate(update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	id := update.Message.Chat.ID

	if contact := update.Message.Contact; contact != nil {
		t.remember(contact.PhoneNumber, id)
		t.log.Infow("phone number shared via telegram", "chat_id", id)
		t.reply(id, "Thanks! TeleDrive notifications will arrive here.")
		return
	}

	switch update.Message.Command() {
	case "start":
		keyboard := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact("Share phone number")))
		msg := tgbotapi.NewMessage(id, "Share your phone number to receive TeleDrive notifications.")
		msg.ReplyMarkup = keyboard
		if _, err := t.bot.Send(msg); err != nil {
			t.log.Warnw("telegram send failed", "chat_id", id, "error", err)
		}
	case "":
		t.reply(id, "Not a command. Send /start to register.")
	default:
		t.reply(id, "Unknown command.")
	}
}

func (t *TelegramAdapter) reply(chatID int64, text string) {
	if err := t.SendMessage(chatID, text); err != nil {
		t.log.Warnw("telegram send failed", "chat_id", chatID, "error", err)
	}
}

// NormalizePhone keeps digits and prefixes '+'.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.WriteByte('+')
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
