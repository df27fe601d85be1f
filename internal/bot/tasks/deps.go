// Package tasks implements the scheduled background tasks: the flood wait
// resume sweep and retention cleanup of deleted forward records.
package tasks

import (
	"log/slog"

	"github.com/chanrelay/chanrelay/internal/config"
	"github.com/chanrelay/chanrelay/internal/database"
	"github.com/chanrelay/chanrelay/internal/engine"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger  *slog.Logger
	Store   database.Store
	Engines *engine.Manager
	Config  *config.Config
}
