package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/rewards-backend/internal/repo"
)

// Scheduler runs periodic maintenance jobs.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler returns a scheduler in UTC.
func NewScheduler() *Scheduler {
	return &Scheduler{cron: cron.New(cron.WithLocation(time.UTC))}
}

// Every registers job to run at the given interval.
func (s *Scheduler) Every(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval < time.Second {
		return 0, fmt.Errorf("interval must be at least 1s, got %s", interval)
	}
	return s.cron.AddFunc(fmt.Sprintf("@every %s", interval.Truncate(time.Second)), job)
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// PurgeIdempotencyJob returns a job that deletes expired idempotency records.
func PurgeIdempotencyJob(db *gorm.DB, now func() time.Time) func() {
	if now == nil {
		now = time.Now
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := repo.PurgeExpiredIdempotency(ctx, db, now())
		if err != nil {
			log.Error().Err(err).Msg("purge idempotency keys")
			return
		}
		if n > 0 {
			log.Info().Int64("deleted", n).Msg("purged expired idempotency keys")
		}
	}
}
