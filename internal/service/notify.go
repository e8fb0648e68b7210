package service

import (
	"fmt"

	"go.uber.org/zap"

	"tush00nka/teledrive/internal/gallery"
	"tush00nka/teledrive/internal/model"
	"tush00nka/teledrive/internal/pkg/tg"
)

// Notifiers fans a notice out to several notifiers.
type Notifiers []gallery.Notifier

func (n Notifiers) Notify(sessionID string, notice model.Notice) {
	for _, notifier := range n {
		notifier.Notify(sessionID, notice)
	}
}

// PhoneLookup resolves the phone number a session logged in with.
type PhoneLookup func(sessionID string) string

// TelegramNotifier mirrors error notices to the user's Telegram chat.
// Sending happens in the background.
type TelegramNotifier struct {
	sender tg.TelegramSender
	phones PhoneLookup
	log    *zap.SugaredLogger
}

func NewTelegramNotifier(sender tg.TelegramSender, phones PhoneLookup, log *zap.SugaredLogger) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, phones: phones, log: log}
}

func (t *TelegramNotifier) Notify(sessionID string, notice model.Notice) {
	if notice.Level != model.NoticeError {
		return
	}
	go t.send(sessionID, notice)
}

func (t *TelegramNotifier) send(sessionID string, notice model.Notice) {
	phone := t.phones(sessionID)
	if phone == "" {
		return
	}
	chatID := t.sender.GetID(phone)
	if chatID == 0 {
		return
	}
	text := fmt.Sprintf("TeleDrive: %s\n%s", notice.Title, notice.Message)
	if err := t.sender.SendMessage(chatID, text); err != nil {
		t.log.Warnw("telegram notice failed", "session", sessionID, "error", err)
	}
}
