// Package main contains the entrypoint for the ChanRelay forwarding bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/chanrelay/chanrelay/internal/bot"
	"github.com/chanrelay/chanrelay/internal/bot/handlers"
	"github.com/chanrelay/chanrelay/internal/bot/tasks"
	"github.com/chanrelay/chanrelay/internal/config"
	"github.com/chanrelay/chanrelay/internal/database"
	"github.com/chanrelay/chanrelay/internal/engine"
	"github.com/chanrelay/chanrelay/internal/logger"
	"github.com/chanrelay/chanrelay/internal/session"
	"github.com/chanrelay/chanrelay/internal/telegram"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger, db,
// per-session engines and listeners, scheduler), handles graceful shutdown,
// and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	engineOpts := engine.Options{
		RateCapacity:   cfg.Engine.RateCapacity,
		RateInterval:   cfg.Engine.RateInterval,
		MinSendDelay:   cfg.Engine.MinSendDelay,
		MaxSendDelay:   cfg.Engine.MaxSendDelay,
		RecipientDelay: cfg.Engine.RecipientDelay,
		GroupWindow:    cfg.Engine.GroupWindow,
		RetryAttempts:  cfg.Engine.RetryAttempts,
		RetryBase:      cfg.Engine.RetryBase,
		RetryCeiling:   cfg.Engine.RetryCeiling,
	}

	engines := engine.NewManager()
	listeners := make([]bot.Listener, 0, len(cfg.Sessions))

	for _, sessionCfg := range cfg.Sessions {
		state, err := restoreSessionState(ctx, store, sessionCfg.Owner)
		if err != nil {
			log.Error("Failed to restore session state", "session", sessionCfg.Owner, "error", err)
			return 1
		}

		hDeps := handlers.HandlerDeps{
			Logger:  log,
			Config:  cfg,
			Store:   store,
			Engines: engines,
			Owner:   sessionCfg.Owner,
		}

		botOpts := []tgbot.Option{
			tgbot.WithMiddlewares(logger.Middleware(log.With("session", sessionCfg.Owner))),
			tgbot.WithDefaultHandler(handlers.NewChannelPostHandler(hDeps)),
		}
		tg, err := telegram.NewTelegramBot(sessionCfg.Token, log, botOpts...)
		if err != nil {
			log.Error("Failed to create Telegram bot", "session", sessionCfg.Owner, "error", err)
			return 1
		}

		if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
			log.Error("Failed to register Telegram handlers", "session", sessionCfg.Owner, "error", err)
			return 1
		}

		sender := telegram.NewSender(tg, log.With("session", sessionCfg.Owner))
		eng := engine.New(ctx, state, store, sender, engineOpts, log)
		if err := engines.Add(eng); err != nil {
			log.Error("Failed to register engine", "session", sessionCfg.Owner, "error", err)
			return 1
		}

		listeners = append(listeners, bot.Listener{Owner: sessionCfg.Owner, Bot: tg})
		log.Info("Session initialized", "session", sessionCfg.Owner, "status", state.Status())
	}

	tDeps := tasks.TaskDeps{
		Logger:  log,
		Store:   store,
		Engines: engines,
		Config:  cfg,
	}
	sched := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	app := bot.NewBot(log, engines, listeners, sched)

	log.Info("Starting ChanRelay...")
	runErr := app.Run(ctx)
	log.Info("Run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}

// restoreSessionState rebuilds a session's availability state from the
// database, or creates and persists a fresh active state on first start.
func restoreSessionState(ctx context.Context, store database.Store, owner string) (*session.State, error) {
	record, err := store.GetSession(ctx, owner)
	if err != nil {
		return nil, err
	}

	if record != nil {
		return session.Restore(engine.RecordToSnapshot(record)), nil
	}

	state := session.NewState(owner)
	if err := store.SaveSession(ctx, engine.SnapshotToRecord(state.Snapshot())); err != nil {
		return nil, err
	}
	return state, nil
}
