package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/shiftwise/shiftwise/internal/governor"
)

// ExpirePendingsJob ages out confirmations and approvals that were never
// decided. An expired pending can no longer be approved; the requester has
// to re-issue the action.
type ExpirePendingsJob struct {
	Governor     *governor.Governor
	MaxAge       time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/10 * * * *"
}

var _ Job = (*ExpirePendingsJob)(nil)

func (j *ExpirePendingsJob) Name() string { return "expire_pendings" }

func (j *ExpirePendingsJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/10 * * * *"
}

func (j *ExpirePendingsJob) Run(ctx context.Context) error {
	n, err := j.Governor.ExpirePending(ctx, time.Now().Add(-j.MaxAge))
	if err != nil {
		return err
	}
	if n > 0 {
		j.Logger.Info("cron: expired undecided pendings", "count", n, "max_age", j.MaxAge)
	}
	return nil
}

// PruneInvocationsJob drops invocation rows past the retention window.
// Rate and cooldown windows only look back one hour, so any sane retention
// cannot affect enforcement.
type PruneInvocationsJob struct {
	Store        governor.InvocationStore
	Retention    time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "30 3 * * *"
}

var _ Job = (*PruneInvocationsJob)(nil)

func (j *PruneInvocationsJob) Name() string { return "prune_invocations" }

func (j *PruneInvocationsJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "30 3 * * *"
}

func (j *PruneInvocationsJob) Run(ctx context.Context) error {
	n, err := j.Store.PruneBefore(ctx, time.Now().Add(-j.Retention))
	if err != nil {
		return err
	}
	if n > 0 {
		j.Logger.Info("cron: pruned invocation history", "count", n, "retention", j.Retention)
	}
	return nil
}
