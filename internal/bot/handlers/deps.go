package handlers

import (
	"log/slog"

	"github.com/chanrelay/chanrelay/internal/config"
	"github.com/chanrelay/chanrelay/internal/database"
	"github.com/chanrelay/chanrelay/internal/engine"
)

// HandlerDeps provides dependencies for Telegram command handlers. Owner
// names the session whose bot this handler set is registered on.
type HandlerDeps struct {
	Logger  *slog.Logger
	Config  *config.Config
	Store   database.Store
	Engines *engine.Manager
	Owner   string
}

// engine returns the forwarding engine of the session this bot serves.
func (d HandlerDeps) engine() (*engine.Engine, bool) {
	return d.Engines.Get(d.Owner)
}
