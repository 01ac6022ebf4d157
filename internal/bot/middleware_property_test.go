package bot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
	tele "gopkg.in/telebot.v3"

	"payout-ledger/internal/config"
)

// TestAdminPermissionCheckProperty checks that a user is an admin exactly
// when their ID is listed.
func TestAdminPermissionCheckProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		adminIDs := rapid.SliceOfN(rapid.Int64Range(1, 1000000000), 0, 10).Draw(t, "adminIDs")
		cfg := &config.Config{Telegram: config.TelegramConfig{AdminIDs: adminIDs}}

		userID := rapid.Int64Range(1, 1000000000).Draw(t, "userID")

		expected := false
		for _, id := range adminIDs {
			if id == userID {
				expected = true
				break
			}
		}

		if got := cfg.IsTelegramAdmin(userID); got != expected {
			t.Fatalf("IsTelegramAdmin(%d) with %v = %v, want %v", userID, adminIDs, got, expected)
		}
	})
}

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return b
}

func privateUpdate(userID int64, text string) tele.Update {
	return tele.Update{Message: &tele.Message{
		Sender: &tele.User{ID: userID},
		Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
		Text:   text,
	}}
}

func TestAdminMiddleware(t *testing.T) {
	b := offlineBot(t)
	cfg := &config.Config{Telegram: config.TelegramConfig{AdminIDs: []int64{42}}}

	called := 0
	h := AdminMiddleware(cfg)(func(tele.Context) error {
		called++
		return nil
	})

	require.NoError(t, h(b.NewContext(privateUpdate(42, "/payout_run"))))
	assert.Equal(t, 1, called)

	group := tele.Update{Message: &tele.Message{
		Sender: &tele.User{ID: 42},
		Chat:   &tele.Chat{ID: -100, Type: tele.ChatSuperGroup},
		Text:   "/payout_run",
	}}
	require.NoError(t, h(b.NewContext(group)))
	assert.Equal(t, 1, called, "group chats are ignored")

	require.NoError(t, h(b.NewContext(tele.Update{})))
	assert.Equal(t, 1, called)
}

func TestLoggingMiddleware_PassesThrough(t *testing.T) {
	b := offlineBot(t)
	want := errors.New("handler error")

	h := LoggingMiddleware()(func(tele.Context) error { return want })
	assert.ErrorIs(t, h(b.NewContext(privateUpdate(1, "/help"))), want)
}
