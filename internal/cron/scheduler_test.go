package cron

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubJob struct {
	name     string
	schedule string
	runFunc  func(ctx context.Context) error

	calls atomic.Int32
}

func (j *stubJob) Name() string     { return j.name }
func (j *stubJob) Schedule() string { return j.schedule }
func (j *stubJob) Run(ctx context.Context) error {
	j.calls.Add(1)
	if j.runFunc != nil {
		return j.runFunc(ctx)
	}
	return nil
}

func TestRegisterJobDuplicateName(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())
	if err := s.RegisterJob(&stubJob{name: "prune", schedule: "* * * * *"}); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if err := s.RegisterJob(&stubJob{name: "prune", schedule: "*/5 * * * *"}); err == nil {
		t.Fatal("duplicate name should be rejected")
	}
}

func TestRegisterJobInvalidSchedule(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())
	if err := s.RegisterJob(&stubJob{name: "bad", schedule: "not-a-schedule"}); err == nil {
		t.Fatal("invalid expression should fail at registration")
	}
	if err := s.RegisterJob(&stubJob{name: "bad2", schedule: "0 25 * * *"}); err == nil {
		t.Fatal("out-of-range hour should fail at registration")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())
	if err := s.RegisterJob(&stubJob{name: "noop", schedule: "* * * * *"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestRunOnceSkipsOverlap(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	job := &stubJob{
		name:     "slow",
		schedule: "* * * * *",
		runFunc: func(_ context.Context) error {
			<-release
			return nil
		},
	}

	s := NewScheduler(slog.Default())
	if err := s.RegisterJob(job); err != nil {
		t.Fatal(err)
	}
	e := s.entries["slow"]

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runOnce(context.Background(), e)
	}()

	// Wait until the first tick holds the slot, then fire overlapping ticks.
	deadline := time.Now().Add(time.Second)
	for !e.running.Load() {
		if time.Now().After(deadline) {
			t.Fatal("first tick never started")
		}
		time.Sleep(time.Millisecond)
	}
	for range 5 {
		s.runOnce(context.Background(), e)
	}

	close(release)
	wg.Wait()

	if got := job.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (overlapping ticks skipped)", got)
	}
}

func TestRunOnceJobError(t *testing.T) {
	t.Parallel()

	job := &stubJob{
		name:     "failing",
		schedule: "* * * * *",
		runFunc:  func(_ context.Context) error { return errors.New("boom") },
	}

	s := NewScheduler(slog.Default())
	if err := s.RegisterJob(job); err != nil {
		t.Fatal(err)
	}
	e := s.entries["failing"]

	// A failing run must release the slot for the next tick.
	s.runOnce(context.Background(), e)
	s.runOnce(context.Background(), e)

	if got := job.calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func FuzzRegisterJobSchedule(f *testing.F) {
	f.Add("*/5 * * * *")
	f.Add("0 0 * * *")
	f.Add("invalid")
	f.Add("")
	f.Add("60 * * * *")

	f.Fuzz(func(_ *testing.T, expr string) {
		s := NewScheduler(slog.Default())
		// Must never panic; errors are the expected outcome for bad input.
		_ = s.RegisterJob(&stubJob{name: "fuzz", schedule: expr})
	})
}
