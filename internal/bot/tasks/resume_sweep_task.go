package tasks

import (
	"context"
	"fmt"
	"time"
)

// newResumeSweepTask creates the scheduled task that reactivates sessions
// whose flood wait deadline has passed. The store narrows the candidates;
// each engine re-checks its own in-memory deadline before resuming.
func newResumeSweepTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "resume_sweep")

	return func(ctx context.Context) error {
		due, err := deps.Store.FindSessionsReadyToResume(ctx, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to find sessions ready to resume: %w", err)
		}
		if len(due) == 0 {
			return nil
		}

		resumedCount := 0
		for _, record := range due {
			eng, ok := deps.Engines.Get(record.OwnerID)
			if !ok {
				log.WarnContext(ctx, "Paused session has no running engine", "session", record.OwnerID)
				continue
			}

			resumed, remaining := eng.TryResume(ctx)
			switch {
			case resumed:
				resumedCount++
				log.InfoContext(ctx, "Session resumed after flood wait", "session", record.OwnerID)
			case remaining > 0:
				log.DebugContext(ctx, "Session still inside flood wait", "session", record.OwnerID, "remaining", remaining)
			}
		}

		log.InfoContext(ctx, "Resume sweep finished", "candidates", len(due), "resumed", resumedCount)
		return nil
	}
}
