// Package jobs runs periodic maintenance work next to the API.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a periodic task the Scheduler can run.
type Job interface {
	Name() string
	NextRun(now time.Time) time.Time
	Run(ctx context.Context) error
}

// Scheduler runs registered jobs until its context is cancelled.
type Scheduler struct {
	jobs    []Job
	retries []time.Duration
	log     *zap.Logger
	now     func() time.Time
}

// NewScheduler creates a scheduler that retries a failed run after 5s and 30s.
func NewScheduler(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		retries: []time.Duration{5 * time.Second, 30 * time.Second},
		log:     log,
		now:     time.Now,
	}
}

// Register adds a job. Call before Run.
func (s *Scheduler) Register(job Job) {
	s.jobs = append(s.jobs, job)
	s.log.Debug("job registered", zap.String("job_name", job.Name()), zap.Int("total_jobs", len(s.jobs)))
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int { return len(s.jobs) }

// Run blocks until ctx is done, running every job on its own schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.jobs) == 0 {
		s.log.Info("no jobs registered, scheduler idle")
		<-ctx.Done()
		return nil
	}
	s.log.Info("starting job scheduler", zap.Int("jobs_count", len(s.jobs)))

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	name := job.Name()
	for {
		now := s.now()
		timer := time.NewTimer(job.NextRun(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("job stopped", zap.String("job_name", name))
			return
		case <-timer.C:
			if err := s.runWithRetry(ctx, job); err != nil {
				s.log.Error("job failed after all retries", zap.String("job_name", name), zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) runWithRetry(ctx context.Context, job Job) error {
	err := job.Run(ctx)
	if err == nil {
		return nil
	}
	for i, delay := range s.retries {
		s.log.Warn("job execution failed, will retry",
			zap.String("job_name", job.Name()),
			zap.Int("attempt", i+1),
			zap.Int("retries_remaining", len(s.retries)-i),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if err = job.Run(ctx); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%s: all %d attempts failed: %w", job.Name(), 1+len(s.retries), err)
}
