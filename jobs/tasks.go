package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskCreditsMarkOverdue flags open credit notes whose due date passed.
	TaskCreditsMarkOverdue = "credits:mark_overdue"
	// TaskCreditsBalanceIntegrity compares customer balances with their notes.
	TaskCreditsBalanceIntegrity = "credits:balance_integrity"
	// TaskCreditsBackfill normalizes legacy notes without an outstanding amount.
	TaskCreditsBackfill = "credits:backfill_outstanding"
	// TaskIdempotencyCleanup purges old idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// Known lists every task type the worker serves, for the CLI trigger.
var Known = []string{
	TaskCreditsMarkOverdue,
	TaskCreditsBalanceIntegrity,
	TaskCreditsBackfill,
	TaskIdempotencyCleanup,
}

// BackfillPayload selects between counting and updating legacy notes.
type BackfillPayload struct {
	Apply bool `json:"apply"`
}

// CleanupPayload sets how long idempotency keys are retained.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// Retention returns the retention window, defaulting to seven days.
func (p CleanupPayload) Retention() time.Duration {
	if p.RetentionHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(p.RetentionHours) * time.Hour
}

// NewMarkOverdueTask builds the overdue sweep task.
func NewMarkOverdueTask() *asynq.Task {
	return asynq.NewTask(TaskCreditsMarkOverdue, nil, asynq.Queue(QueueDefault))
}

// NewBalanceIntegrityTask builds the balance integrity task.
func NewBalanceIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskCreditsBalanceIntegrity, nil, asynq.Queue(QueueDefault))
}

// NewBackfillTask builds the legacy outstanding backfill task.
func NewBackfillTask(apply bool) (*asynq.Task, error) {
	data, err := json.Marshal(BackfillPayload{Apply: apply})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCreditsBackfill, data, asynq.Queue(QueueDefault), asynq.MaxRetry(0)), nil
}

// NewIdempotencyCleanupTask builds the idempotency key cleanup task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(CleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault)), nil
}

// NewTask builds a task by type name with default payloads.
func NewTask(taskType string) (*asynq.Task, error) {
	switch taskType {
	case TaskCreditsMarkOverdue:
		return NewMarkOverdueTask(), nil
	case TaskCreditsBalanceIntegrity:
		return NewBalanceIntegrityTask(), nil
	case TaskCreditsBackfill:
		return NewBackfillTask(false)
	case TaskIdempotencyCleanup:
		return NewIdempotencyCleanupTask(0)
	}
	return nil, ErrUnknownTask
}
