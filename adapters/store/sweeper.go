package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// SweepJobName names the scheduled memory store cleanup
const SweepJobName = "challenge-sweep"

// ScheduleSweep registers a job on scheduler that reclaims expired entries
// from store every interval. The scheduler must still be started.
func ScheduleSweep(scheduler gocron.Scheduler, store *MemoryStore, interval time.Duration, logger *zap.Logger) (gocron.Job, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	job, err := scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if removed := store.Sweep(context.Background()); removed > 0 {
				logger.Debug("swept memory store", zap.Int("removed", removed))
			}
		}),
		gocron.WithName(SweepJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule sweep: %w", err)
	}

	return job, nil
}
