// Package cron schedules periodic maintenance work: expiring stale
// approvals and pruning old invocation records.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a periodic background task.
type Job interface {
	// Name identifies the job in logs. Must be unique per scheduler.
	Name() string

	// Schedule returns a 5-field cron expression ("*/10 * * * *").
	Schedule() string

	// Run does the work. Implementations should honor ctx cancellation.
	Run(ctx context.Context) error
}

// Standard 5-field syntax, no seconds.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type jobEntry struct {
	job     Job
	sched   cron.Schedule
	running atomic.Bool
}

// Scheduler runs registered jobs on their cron schedules. A tick that
// arrives while the previous run of the same job is still in flight is
// skipped, not queued.
type Scheduler struct {
	mu      sync.Mutex
	logger  *slog.Logger
	entries map[string]*jobEntry
	order   []string
	runner  *cron.Cron
	cancel  context.CancelFunc
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger:  logger,
		entries: make(map[string]*jobEntry),
	}
}

// RegisterJob adds a job. The schedule expression is validated here so a
// bad expression fails at wiring time, not at Start.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	sched, err := parser.Parse(j.Schedule())
	if err != nil {
		return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
	}

	s.entries[name] = &jobEntry{job: j, sched: sched}
	s.order = append(s.order, name)
	return nil
}

// Start begins ticking. Jobs must be registered before Start.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.runner = cron.New(cron.WithParser(parser))

	for _, name := range s.order {
		e := s.entries[name]
		s.runner.Schedule(e.sched, cron.FuncJob(func() {
			s.runOnce(ctx, e)
		}))
	}

	s.runner.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.order))
	return nil
}

// runOnce executes one tick of a job, skipping it when the previous tick
// has not finished.
func (s *Scheduler) runOnce(ctx context.Context, e *jobEntry) {
	if !e.running.CompareAndSwap(false, true) {
		s.logger.Warn("cron: previous run still in flight, skipping tick", "job", e.job.Name())
		return
	}
	defer e.running.Store(false)

	start := time.Now()
	if err := e.job.Run(ctx); err != nil {
		s.logger.Error("cron: job failed", "job", e.job.Name(), "error", err, "elapsed", time.Since(start))
		return
	}
	s.logger.Debug("cron: job completed", "job", e.job.Name(), "elapsed", time.Since(start))
}

// Stop halts ticking and waits for in-flight jobs.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.runner != nil {
		<-s.runner.Stop().Done()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}
