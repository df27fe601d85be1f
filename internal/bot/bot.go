// Package bot implements application lifecycle management: it runs one
// Telegram listener per configured session alongside the task scheduler and
// coordinates graceful shutdown.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbot "github.com/go-telegram/bot"
	"golang.org/x/sync/errgroup"

	"github.com/chanrelay/chanrelay/internal/engine"
)

// Listener pairs a session owner with the Telegram bot instance that serves
// its updates.
type Listener struct {
	Owner string
	Bot   *tgbot.Bot
}

// Bot represents the application and manages its components' lifecycle.
type Bot struct {
	logger    *slog.Logger
	engines   *engine.Manager
	listeners []Listener
	scheduler *Scheduler
}

// NewBot creates the application orchestrator from its running components.
func NewBot(logger *slog.Logger, engines *engine.Manager, listeners []Listener, scheduler *Scheduler) *Bot {
	return &Bot{
		logger:    logger.With("component", "bot_orchestrator"),
		engines:   engines,
		listeners: listeners,
		scheduler: scheduler,
	}
}

// Run starts every session listener and the scheduler, then blocks until the
// context is cancelled or a component fails. Engines are closed on the way
// out so pending media group buffers stop cleanly.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...", "sessions", len(b.listeners))

	g, gCtx := errgroup.WithContext(ctx)

	for _, listener := range b.listeners {
		g.Go(func() error {
			b.logger.Info("Starting Telegram listener...", "session", listener.Owner)

			listener.Bot.Start(gCtx)
			b.logger.Info("Telegram listener stopped.", "session", listener.Owner)

			if gCtx.Err() == nil {
				b.logger.Warn("Telegram listener stopped unexpectedly without context cancellation.", "session", listener.Owner)
				return fmt.Errorf("telegram listener for session %q stopped unexpectedly", listener.Owner)
			}
			return nil
		})
	}

	g.Go(func() error {
		b.logger.Info("Starting scheduler...")
		if err := b.scheduler.Start(); err != nil {
			b.logger.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	b.engines.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}
