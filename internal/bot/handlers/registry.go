package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler represents a command handler with its registration
// parameters and middleware.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllCommands initializes and returns a map of all available bot
// commands. Relay management commands are restricted to the administrator.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	handlers["/start"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "start",
		Handler:     NewStartHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
	}
	handlers["/help"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "help",
		Handler:     NewHelpHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
	}

	adminMiddleware := []tgbot.Middleware{AdminOnly(deps)}

	admin := func(pattern string, handler tgbot.HandlerFunc) RegisteredHandler {
		return RegisteredHandler{
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     pattern,
			Handler:     handler,
			MatchType:   tgbot.MatchTypeCommandStartOnly,
			Middleware:  adminMiddleware,
		}
	}

	handlers["/relay_status"] = admin("relay_status", NewStatusHandler(deps))
	handlers["/relay_pause"] = admin("relay_pause", NewPauseHandler(deps))
	handlers["/relay_resume"] = admin("relay_resume", NewResumeHandler(deps))
	handlers["/relay_watch"] = admin("relay_watch", NewWatchHandler(deps))
	handlers["/relay_unwatch"] = admin("relay_unwatch", NewUnwatchHandler(deps))
	handlers["/relay_targets"] = admin("relay_targets", NewTargetsHandler(deps))
	handlers["/relay_target_add"] = admin("relay_target_add", NewTargetAddHandler(deps))
	handlers["/relay_target_del"] = admin("relay_target_del", NewTargetDelHandler(deps))
	handlers["/relay_purge"] = admin("relay_purge", NewPurgeHandler(deps))

	return handlers
}
