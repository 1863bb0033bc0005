package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// StaleProgressCleaner provides the ability to prune old sync progress rows.
type StaleProgressCleaner interface {
	DeleteStale(before time.Time) (int64, error)
}

// CleanupStaleProgressTask prunes sync progress that hasn't been touched
// for the configured number of days. Abandoned documents accumulate one
// row per device otherwise.
type CleanupStaleProgressTask struct {
	StaleDays int `json:"stale_days"`
}

// Config returns the queue configuration for progress cleanup tasks.
func (t CleanupStaleProgressTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "cleanup_stale_progress",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// CleanupStaleProgressProcessor creates a processor function for CleanupStaleProgressTask.
func CleanupStaleProgressProcessor(cleaner StaleProgressCleaner) backlite.QueueProcessor[CleanupStaleProgressTask] {
	return func(ctx context.Context, task CleanupStaleProgressTask) error {
		if cleaner == nil {
			return fmt.Errorf("progress cleaner not configured")
		}

		staleDays := task.StaleDays
		if staleDays <= 0 {
			staleDays = 365
		}
		cutoff := time.Now().Add(-time.Duration(staleDays) * 24 * time.Hour)

		deleted, err := cleaner.DeleteStale(cutoff)
		if err != nil {
			return fmt.Errorf("cleanup stale progress: %w", err)
		}

		log.Printf("[TASK] Pruned %d sync progress rows untouched for %d days", deleted, staleDays)
		return nil
	}
}

// NewCleanupStaleProgressQueue creates a backlite queue for progress cleanup tasks.
func NewCleanupStaleProgressQueue(cleaner StaleProgressCleaner) backlite.Queue {
	return backlite.NewQueue(CleanupStaleProgressProcessor(cleaner))
}
