package tg

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+15550001", NormalizePhone("15550001"))
	assert.Equal(t, "+15550001", NormalizePhone("+1 (555) 0001"))
}

func TestContactRegistersChat(t *testing.T) {
	adapter := &TelegramAdapter{
		bot:     &tgbotapi.BotAPI{},
		log:     zap.NewNop().Sugar(),
		chatIDs: make(map[string]int64),
	}
	adapter.remember("15550001", 42)

	assert.Equal(t, int64(42), adapter.GetID("+15550001"))
	assert.Zero(t, adapter.GetID("+19990000"))
}
