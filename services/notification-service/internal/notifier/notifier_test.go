package notifier

import (
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, f.err
}

func TestTelegramNotify(t *testing.T) {
	bot := &fakeBot{}
	n := &TelegramNotifier{bot: bot, chatID: 42}

	require.NoError(t, n.Notify("u1", "Booking confirmed", "Booking b1 is confirmed."))
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(42), bot.sent[0].ChatID)
	assert.Contains(t, bot.sent[0].Text, "Booking b1 is confirmed.")
	assert.Contains(t, bot.sent[0].Text, "user: u1")

	bot.err = errors.New("flood wait")
	assert.Error(t, n.Notify("u1", "s", "m"))
}

func TestMultiJoinsErrors(t *testing.T) {
	bad := &TelegramNotifier{bot: &fakeBot{err: errors.New("down")}, chatID: 1}
	good := &fakeBot{}
	m := Multi{NewConsole(), bad, &TelegramNotifier{bot: good, chatID: 2}}

	assert.Error(t, m.Notify("u1", "s", "m"))
	assert.Len(t, good.sent, 1)
}

func TestHumanTimeRange(t *testing.T) {
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-10 10:00 - 12:00", HumanTimeRange(start.Unix(), start.Add(2*time.Hour).Unix(), time.UTC))
	assert.Equal(t, "2026-03-10 10:00 - 2026-03-11 10:00", HumanTimeRange(start.Unix(), start.Add(24*time.Hour).Unix(), time.UTC))
}
