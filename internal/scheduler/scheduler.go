// Package scheduler triggers pipeline runs on fixed intervals with
// coalescing: a tick that arrives while the previous run for the same job is
// still executing is skipped, never queued.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"pricewatch/internal/pipeline"
)

type job struct {
	name     string
	interval time.Duration
	run      func(context.Context) error
}

// Scheduler runs registered jobs until its context is cancelled.
type Scheduler struct {
	jobs []job
	log  *slog.Logger
}

func New(log *slog.Logger) *Scheduler {
	return &Scheduler{log: log.With("component", "scheduler")}
}

// Add registers a job. Must be called before Run.
func (s *Scheduler) Add(name string, interval time.Duration, run func(context.Context) error) {
	s.jobs = append(s.jobs, job{name: name, interval: interval, run: run})
}

// Run blocks until ctx is cancelled, firing each job on its interval.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			s.runJob(ctx, j)
		}(j)
	}
	wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, j job) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	log := s.log.With("job", j.name)
	log.Info("job scheduled", "interval", j.interval)

	for {
		select {
		case <-ctx.Done():
			log.Info("job stopped")
			return
		case <-ticker.C:
			err := j.run(ctx)
			switch {
			case err == nil:
			case errors.Is(err, pipeline.ErrRunInFlight):
				log.Debug("tick skipped, previous run still in flight")
			default:
				log.Error("job run failed", "error", err)
			}
		}
	}
}
