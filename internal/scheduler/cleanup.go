// Package scheduler triggers periodic maintenance work on a cron
// schedule by enqueueing tasks on the background queue.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kompanion/kompanion/internal/config"
	"github.com/kompanion/kompanion/internal/tasks"
)

// CleanupScheduler enqueues retention cleanup tasks on a cron schedule.
type CleanupScheduler struct {
	taskClient *tasks.Client
	config     config.Cleanup

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc
}

// NewCleanupScheduler creates a new scheduler instance.
func NewCleanupScheduler(taskClient *tasks.Client, cfg config.Cleanup) *CleanupScheduler {
	return &CleanupScheduler{
		taskClient: taskClient,
		config:     cfg,
		cron:       cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start begins the scheduler if cleanup is enabled.
func (s *CleanupScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if !s.config.Enabled {
		log.Printf("Cleanup scheduler: disabled")
		return nil
	}

	entryID, err := s.cron.AddFunc(s.config.Schedule, func() {
		s.runCleanup()
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule '%s': %w", s.config.Schedule, err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	log.Printf("Cleanup scheduler: started with schedule '%s'", s.config.Schedule)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler, waiting for a running job to finish.
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	s.cancelFunc = nil

	log.Printf("Cleanup scheduler: stopped")
}

// RunNow triggers an immediate cleanup run.
func (s *CleanupScheduler) RunNow() {
	go s.runCleanup()
}

// IsRunning returns whether the scheduler is active.
func (s *CleanupScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRunTime returns when the next cleanup will occur.
func (s *CleanupScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}

	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

// runCleanup enqueues the retention tasks; the queue workers do the
// actual deletion so a slow purge never blocks the cron loop.
func (s *CleanupScheduler) runCleanup() {
	if _, err := s.taskClient.Add(tasks.CleanupAuditEventsTask{
		RetentionDays: s.config.AuditRetentionDays,
	}).Save(); err != nil {
		log.Printf("Cleanup scheduler: failed to enqueue audit cleanup: %v", err)
	}

	if _, err := s.taskClient.Add(tasks.CleanupStaleProgressTask{
		StaleDays: s.config.StaleProgressDays,
	}).Save(); err != nil {
		log.Printf("Cleanup scheduler: failed to enqueue progress cleanup: %v", err)
	}
}
