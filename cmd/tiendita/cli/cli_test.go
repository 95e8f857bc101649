package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/nahum29/tiendita/internal/credits"
	"github.com/nahum29/tiendita/jobs"
)

type stubBackfiller struct {
	candidates int64
	err        error
	applyCalls int
}

func (s *stubBackfiller) BackfillLegacyOutstanding(ctx context.Context, apply bool) (credits.BackfillReport, error) {
	if s.err != nil {
		return credits.BackfillReport{}, s.err
	}
	report := credits.BackfillReport{Candidates: s.candidates, Applied: apply}
	if apply {
		s.applyCalls++
		report.Updated = s.candidates
	}
	return report, nil
}

type stubQueue struct {
	enqueued []string
	info     *asynq.QueueInfo
}

func (s *stubQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.enqueued = append(s.enqueued, task.Type())
	return &asynq.TaskInfo{ID: "task-1", Queue: jobs.QueueDefault, Type: task.Type()}, nil
}

func (s *stubQueue) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.info == nil {
		return nil, errors.New("queue missing")
	}
	return s.info, nil
}

func yes(io.Reader, io.Writer) (bool, error) { return true, nil }
func no(io.Reader, io.Writer) (bool, error) { return false, nil }

func TestBackfillDryRunExitCodes(t *testing.T) {
	stdout := new(bytes.Buffer)
	svc := &stubBackfiller{candidates: 3}
	code := BackfillCommand(context.Background(), svc, BackfillOptions{Stdout: stdout, Stderr: io.Discard, JSONOutput: true})
	require.Equal(t, ExitPending, code)
	require.Zero(t, svc.applyCalls)

	var summary BackfillSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, BackfillSummary{Mode: BackfillModeDry, Candidates: 3}, summary)

	stdout.Reset()
	code = BackfillCommand(context.Background(), &stubBackfiller{}, BackfillOptions{Stdout: stdout, Stderr: io.Discard})
	require.Zero(t, code)
	require.Contains(t, stdout.String(), "0 note(s)")
}

func TestBackfillApplyRequiresConfirmation(t *testing.T) {
	svc := &stubBackfiller{candidates: 2}
	stderr := new(bytes.Buffer)
	code := BackfillCommand(context.Background(), svc, BackfillOptions{Mode: BackfillModeApply, Stdout: io.Discard, Stderr: stderr, Confirm: no})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "cancelled")
	require.Zero(t, svc.applyCalls)

	stdout := new(bytes.Buffer)
	code = BackfillCommand(context.Background(), svc, BackfillOptions{Mode: "APPLY", Stdout: stdout, Stderr: io.Discard, Confirm: yes})
	require.Zero(t, code)
	require.Equal(t, 1, svc.applyCalls)
	require.Contains(t, stdout.String(), "Updated 2 note(s).")
}

func TestBackfillApplyDefaultConfirmReadsStdin(t *testing.T) {
	svc := &stubBackfiller{candidates: 1}
	code := BackfillCommand(context.Background(), svc, BackfillOptions{Mode: BackfillModeApply, Stdout: io.Discard, Stderr: io.Discard, Stdin: strings.NewReader("yes\n")})
	require.Zero(t, code)
	require.Equal(t, 1, svc.applyCalls)
}

func TestBackfillFailures(t *testing.T) {
	stderr := new(bytes.Buffer)
	code := BackfillCommand(context.Background(), &stubBackfiller{}, BackfillOptions{Mode: "maybe", Stdout: io.Discard, Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "invalid mode")

	code = BackfillCommand(context.Background(), &stubBackfiller{err: errors.New("db down")}, BackfillOptions{Stdout: io.Discard, Stderr: io.Discard})
	require.Equal(t, 1, code)
}

func TestRunDispatchesSubcommands(t *testing.T) {
	queue := &stubQueue{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 4}}
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	env := Env{
		Jobs:    &JobsCLI{client: queue, inspector: queue},
		Credits: &stubBackfiller{candidates: 1},
		Stdout:  stdout,
		Stderr:  stderr,
	}
	ctx := context.Background()

	require.Zero(t, Run(ctx, []string{"jobs", "trigger", jobs.TaskCreditsMarkOverdue}, env))
	require.Equal(t, []string{jobs.TaskCreditsMarkOverdue}, queue.enqueued)
	require.Contains(t, stdout.String(), "enqueued credits:mark_overdue as task-1")

	require.Equal(t, 1, Run(ctx, []string{"jobs", "trigger", "reports:warmup"}, env))
	require.Contains(t, stderr.String(), "unsupported job reports:warmup")

	require.Equal(t, 1, Run(ctx, []string{"jobs", "trigger"}, env))
	require.Contains(t, stderr.String(), jobs.TaskCreditsBackfill)

	require.Zero(t, Run(ctx, []string{"jobs", "stats"}, env))
	require.Contains(t, stdout.String(), "pending=4")

	require.Equal(t, ExitPending, Run(ctx, []string{"credits", "backfill", "-json"}, env))
	require.Equal(t, 2, Run(ctx, []string{"credits", "backfill", "-bogus"}, env))
	require.Equal(t, 2, Run(ctx, []string{"reports"}, env))
	require.Equal(t, 2, Run(ctx, []string{"reports", "rebuild"}, env))
}
