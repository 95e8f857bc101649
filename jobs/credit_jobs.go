package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nahum29/tiendita/internal/credits"
	"github.com/nahum29/tiendita/internal/jobmetrics"
	"github.com/nahum29/tiendita/internal/shared"
)

// ErrUnknownTask is returned for task types the worker does not serve.
var ErrUnknownTask = errors.New("jobs: unknown task type")

const lockTTL = 10 * time.Minute

// CreditService is the slice of the credit ledger the jobs drive.
type CreditService interface {
	MarkOverdue(ctx context.Context) (int, error)
	CheckBalances(ctx context.Context) ([]credits.Drift, error)
	BackfillLegacyOutstanding(ctx context.Context, apply bool) (credits.BackfillReport, error)
}

// Locker guards single-runner jobs.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// CreditJobs hosts the credit maintenance handlers.
type CreditJobs struct {
	Credits CreditService
	Locker  Locker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCreditJobs wires the credit job handlers.
func NewCreditJobs(svc CreditService, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *CreditJobs {
	return &CreditJobs{Credits: svc, Locker: locker, Logger: logger, Metrics: metrics}
}

// HandleMarkOverdue runs the overdue sweep. Only one worker sweeps at a time;
// a run that finds the lock taken is skipped, not retried.
func (j *CreditJobs) HandleMarkOverdue(ctx context.Context, _ *asynq.Task) error {
	return j.guarded(ctx, TaskCreditsMarkOverdue, func(ctx context.Context, logger *slog.Logger) error {
		n, err := j.Credits.MarkOverdue(ctx)
		if err != nil {
			return err
		}
		logger.Info("overdue sweep completed", slog.Int("marked", n))
		return nil
	})
}

// HandleBalanceIntegrity logs every customer whose balance drifted from the
// outstanding amount of their notes.
func (j *CreditJobs) HandleBalanceIntegrity(ctx context.Context, _ *asynq.Task) error {
	return j.guarded(ctx, TaskCreditsBalanceIntegrity, func(ctx context.Context, logger *slog.Logger) error {
		drifts, err := j.Credits.CheckBalances(ctx)
		if err != nil {
			return err
		}
		for _, d := range drifts {
			logger.Warn("customer balance drift",
				slog.String("customer_id", d.CustomerID.String()),
				slog.String("name", d.Name),
				slog.String("balance", d.Balance.String()),
				slog.String("outstanding", d.Outstanding.String()),
				slog.String("difference", d.Difference().String()),
			)
		}
		j.Metrics.SetBalanceDrift(len(drifts))
		logger.Info("balance integrity completed", slog.Int("drift", len(drifts)))
		return nil
	})
}

// HandleBackfill normalizes legacy notes. The payload decides between a dry
// run and applying the update.
func (j *CreditJobs) HandleBackfill(ctx context.Context, t *asynq.Task) error {
	var payload BackfillPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	return j.guarded(ctx, TaskCreditsBackfill, func(ctx context.Context, logger *slog.Logger) error {
		report, err := j.Credits.BackfillLegacyOutstanding(ctx, payload.Apply)
		if err != nil {
			return err
		}
		logger.Info("legacy outstanding backfill",
			slog.Bool("apply", report.Applied),
			slog.Int64("candidates", report.Candidates),
			slog.Int64("updated", report.Updated),
		)
		return nil
	})
}

func (j *CreditJobs) guarded(ctx context.Context, job string, fn func(context.Context, *slog.Logger) error) error {
	if j == nil || j.Credits == nil {
		return errors.New("credit jobs: handler not configured")
	}
	logger := jobLogger(j.Logger, job)
	tracker := j.Metrics.Track(metricName(job))

	run := func(ctx context.Context) error { return fn(ctx, logger) }
	var err error
	if j.Locker != nil {
		err = j.Locker.WithLock(ctx, shared.JobLockKey(job), lockTTL, run)
	} else {
		err = run(ctx)
	}
	if errors.Is(err, shared.ErrLockBusy) {
		logger.Info("job skipped, lock held elsewhere")
		j.Metrics.Skipped(metricName(job))
		return nil
	}
	if err != nil {
		logger.Error("job failed", slog.Any("error", err))
	}
	return tracker.End(err)
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}

// metricName turns "credits:mark_overdue" into "credits_mark_overdue".
func metricName(job string) string {
	return strings.ReplaceAll(job, ":", "_")
}
