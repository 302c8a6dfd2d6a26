// Package jobs runs background maintenance on a gocron scheduler.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/cbo-bro-backend/internal/repo"
)

const purgeTimeout = 30 * time.Second

// Scheduler owns the process-wide maintenance jobs.
type Scheduler struct {
	s  gocron.Scheduler
	db *gorm.DB
}

// NewScheduler registers the idempotency purge to run every interval.
// The scheduler is not started until Start is called.
func NewScheduler(db *gorm.DB, interval time.Duration) (*Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	sc := &Scheduler{s: s, db: db}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { _, _ = sc.PurgeIdempotency(context.Background()) }),
		gocron.WithName("purge_idempotency"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("register purge job: %w", err)
	}
	return sc, nil
}

// PurgeIdempotency deletes expired idempotency records and returns the count.
func (sc *Scheduler) PurgeIdempotency(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, purgeTimeout)
	defer cancel()

	n, err := repo.PurgeExpiredIdempotency(ctx, sc.db, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Msg("idempotency purge failed")
		return 0, err
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Msg("purged expired idempotency records")
	}
	return n, nil
}

// Start begins running jobs in the background.
func (sc *Scheduler) Start() { sc.s.Start() }

// Shutdown stops the scheduler and waits for running jobs.
func (sc *Scheduler) Shutdown() error { return sc.s.Shutdown() }
