package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/logger"
)

// Maintenance runs the registry's periodic jobs: snapshot flushing and
// purging of long-ended activities.
type Maintenance struct {
	sched gocron.Scheduler
}

// StartMaintenance schedules the jobs and starts them. A non-positive
// interval or retention disables the corresponding job.
func StartMaintenance(reg *Registry, flushInterval, retention time.Duration) (*Maintenance, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	if flushInterval > 0 {
		_, err = sched.NewJob(
			gocron.DurationJob(flushInterval),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), flushInterval)
				defer cancel()
				if err := reg.FlushAll(ctx); err != nil {
					logger.Warningf("[Scheduler] Snapshot flush incomplete: %v", err)
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, fmt.Errorf("schedule flush job: %w", err)
		}
	}

	if retention > 0 {
		_, err = sched.NewJob(
			gocron.DurationJob(time.Hour),
			gocron.NewTask(func() {
				reg.PurgeEnded(retention)
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, fmt.Errorf("schedule purge job: %w", err)
		}
	}

	sched.Start()
	logger.Infof("[Scheduler] Started (flush every %s, retention %s)", flushInterval, retention)
	return &Maintenance{sched: sched}, nil
}

// Every schedules an extra periodic task on the same scheduler.
func (m *Maintenance) Every(interval time.Duration, task func()) error {
	_, err := m.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule job: %w", err)
	}
	return nil
}

// Stop shuts the scheduler down, waiting for running jobs.
func (m *Maintenance) Stop() error {
	if m == nil {
		return nil
	}
	return m.sched.Shutdown()
}
