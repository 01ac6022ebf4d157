// Package bot runs the Telegram admin console.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"payout-ledger/internal/config"
	"payout-ledger/internal/handler"
)

// Bot wraps the telebot instance with the console handlers.
type Bot struct {
	bot          *tele.Bot
	cfg          *config.Config
	adminHandler *handler.AdminHandler
}

// New creates a new Bot that forwards commands to admin.
func New(cfg *config.Config, admin handler.AdminExecutor) (*Bot, error) {
	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	teleBot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:          teleBot,
		cfg:          cfg,
		adminHandler: handler.NewAdminHandler(admin),
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(LoggingMiddleware())
	b.bot.Use(AdminMiddleware(b.cfg))
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.adminHandler.HandleHelp)
	b.bot.Handle("/help", b.adminHandler.HandleHelp)
	for _, cmd := range handler.Commands {
		b.bot.Handle(cmd.Name, b.adminHandler.Handle(cmd))
	}
}

// Start polls for updates until Stop is called.
func (b *Bot) Start() {
	log.Info().Int("admins", len(b.cfg.Telegram.AdminIDs)).Msg("Starting admin console bot...")
	b.bot.Start()
}

// Stop stops polling.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping admin console bot...")
	b.bot.Stop()
}
