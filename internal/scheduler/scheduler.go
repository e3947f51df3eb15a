package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"caixa/internal/services"

	"github.com/robfig/cron/v3"
)

// DefaultRolloverSchedule runs the rollover five minutes after midnight.
const DefaultRolloverSchedule = "5 0 * * *"

// Job represents a scheduled job
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	logger *slog.Logger
}

// New creates a scheduler whose jobs run with ctx and evaluate their
// standard five-field schedules in loc.
func New(ctx context.Context, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		ctx:    ctx,
		logger: slog.Default().With("component", "scheduler"),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// AddJob registers a job under a cron schedule, e.g. "5 0 * * *" or "@hourly".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", schedule, job.Name(), err)
	}

	_, err := s.cron.AddFunc(schedule, func() {
		s.run(job)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Job registered", "schedule", schedule, "job", job.Name())
	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.logger.Info("Running job immediately", "job", job.Name())
	return job.Run(s.ctx)
}

// Next returns the next activation time of the first registered job.
func (s *Scheduler) Next() (time.Time, bool) {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}, false
	}
	return entries[0].Next, true
}

func (s *Scheduler) run(job Job) {
	start := time.Now()
	s.logger.Debug("Running job", "job", job.Name())

	if err := job.Run(s.ctx); err != nil {
		s.logger.Error("Job failed", "job", job.Name(), "error", err)
		return
	}
	s.logger.Debug("Job completed", "job", job.Name(), "duration", time.Since(start).String())
}

// RolloverJob runs the daily rollover at the scheduled time.
type RolloverJob struct {
	Processor *services.RolloverProcessor
	Now       func() time.Time
}

func (j RolloverJob) Name() string { return "rollover" }

func (j RolloverJob) Run(ctx context.Context) error {
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	_, err := j.Processor.Run(ctx, now())
	return err
}
