package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nahum29/tiendita/internal/credits"
	"github.com/nahum29/tiendita/internal/jobmetrics"
	"github.com/nahum29/tiendita/internal/shared"
)

type stubCredits struct {
	marked    int
	markCalls int
	drifts    []credits.Drift
	backfill  []bool
	err       error
}

func (s *stubCredits) MarkOverdue(ctx context.Context) (int, error) {
	s.markCalls++
	return s.marked, s.err
}

func (s *stubCredits) CheckBalances(ctx context.Context) ([]credits.Drift, error) {
	return s.drifts, s.err
}

func (s *stubCredits) BackfillLegacyOutstanding(ctx context.Context, apply bool) (credits.BackfillReport, error) {
	s.backfill = append(s.backfill, apply)
	return credits.BackfillReport{Candidates: 3, Applied: apply}, s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRedisLocker(t *testing.T) (*shared.Locker, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewLocker(client), client
}

func TestHandleMarkOverdueRunsUnderLock(t *testing.T) {
	svc := &stubCredits{marked: 4}
	locker, _ := newRedisLocker(t)
	job := NewCreditJobs(svc, locker, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.HandleMarkOverdue(context.Background(), NewMarkOverdueTask()))
	require.Equal(t, 1, svc.markCalls)
}

func TestHandleMarkOverdueSkipsWhenLockHeld(t *testing.T) {
	svc := &stubCredits{}
	locker, client := newRedisLocker(t)
	require.NoError(t, client.Set(context.Background(), shared.JobLockKey(TaskCreditsMarkOverdue), "other-worker", time.Minute).Err())
	job := NewCreditJobs(svc, locker, quietLogger(), nil)

	require.NoError(t, job.HandleMarkOverdue(context.Background(), NewMarkOverdueTask()))
	require.Zero(t, svc.markCalls)
}

func TestHandleMarkOverdueReturnsServiceError(t *testing.T) {
	svc := &stubCredits{err: errors.New("db down")}
	job := NewCreditJobs(svc, nil, quietLogger(), nil)

	require.Error(t, job.HandleMarkOverdue(context.Background(), NewMarkOverdueTask()))
}

func TestHandleBalanceIntegrity(t *testing.T) {
	svc := &stubCredits{drifts: []credits.Drift{{
		CustomerID:  uuid.New(),
		Name:        "Doña Rosa",
		Balance:     decimal.RequireFromString("120"),
		Outstanding: decimal.RequireFromString("100"),
	}}}
	job := NewCreditJobs(svc, nil, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.HandleBalanceIntegrity(context.Background(), NewBalanceIntegrityTask()))
}

func TestHandleBackfillPayload(t *testing.T) {
	svc := &stubCredits{}
	job := NewCreditJobs(svc, nil, quietLogger(), nil)

	dry, err := NewBackfillTask(false)
	require.NoError(t, err)
	apply, err := NewBackfillTask(true)
	require.NoError(t, err)
	require.NoError(t, job.HandleBackfill(context.Background(), dry))
	require.NoError(t, job.HandleBackfill(context.Background(), apply))
	require.Equal(t, []bool{false, true}, svc.backfill)

	bad := asynq.NewTask(TaskCreditsBackfill, []byte("{"))
	require.ErrorIs(t, job.HandleBackfill(context.Background(), bad), asynq.SkipRetry)
}

type stubCleaner struct {
	retention time.Duration
}

func (s *stubCleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.retention = olderThan
	return 2, nil
}

func TestCleanupJobUsesRetention(t *testing.T) {
	cleaner := &stubCleaner{}
	job := NewCleanupJob(cleaner, quietLogger(), nil)

	task, err := NewIdempotencyCleanupTask(48)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, cleaner.retention)

	task, err = NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 7*24*time.Hour, cleaner.retention)
}

func TestNewTaskKnowsEveryType(t *testing.T) {
	for _, name := range Known {
		task, err := NewTask(name)
		require.NoError(t, err)
		require.Equal(t, name, task.Type())
	}
	_, err := NewTask("mail:send")
	require.ErrorIs(t, err, ErrUnknownTask)
	require.Equal(t, "credits_mark_overdue", metricName(TaskCreditsMarkOverdue))
}
