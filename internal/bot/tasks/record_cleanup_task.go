package tasks

import (
	"context"
	"fmt"
	"time"
)

// newRecordCleanupTask creates the scheduled task that prunes deleted
// forward records past the retention window and runs database maintenance
// afterwards.
func newRecordCleanupTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "record_cleanup")

	return func(ctx context.Context) error {
		startTime := time.Now()
		cutoff := time.Now().UTC().AddDate(0, 0, -deps.Config.Scheduler.RetentionDays)

		pruned, err := deps.Store.PruneDeletedRecords(ctx, cutoff)
		if err != nil {
			log.ErrorContext(ctx, "Record pruning failed", "error", err, "cutoff", cutoff)
			return fmt.Errorf("failed to prune deleted records: %w", err)
		}

		if err := deps.Store.RunSQLMaintenance(ctx); err != nil {
			log.ErrorContext(ctx, "SQL maintenance failed", "error", err)
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "Record cleanup completed",
			"pruned", pruned, "cutoff", cutoff, "duration", time.Since(startTime))
		return nil
	}
}
