package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

type fakePool struct {
	txs  []*fakeTx
	opts []pgx.TxOptions
}

func (p *fakePool) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	tx := &fakeTx{}
	p.txs = append(p.txs, tx)
	p.opts = append(p.opts, opts)
	return tx, nil
}

func pgError(code string) error {
	return fmt.Errorf("update credits: %w", &pgconn.PgError{Code: code})
}

func TestWithTxCommitsOrRollsBack(t *testing.T) {
	pool := &fakePool{}
	require.NoError(t, WithTx(context.Background(), pool, func(pgx.Tx) error { return nil }))
	require.True(t, pool.txs[0].committed)
	require.Equal(t, pgx.RepeatableRead, pool.opts[0].IsoLevel)

	boom := errors.New("boom")
	require.ErrorIs(t, WithTx(context.Background(), pool, func(pgx.Tx) error { return boom }), boom)
	require.False(t, pool.txs[1].committed)
	require.True(t, pool.txs[1].rolledBack)
}

func TestWithRetryReplaysSerializationFailures(t *testing.T) {
	pool := &fakePool{}
	calls := 0
	err := WithRetry(context.Background(), pool, DefaultAttempts, func(pgx.Tx) error {
		calls++
		if calls < 3 {
			return pgError(codeSerializationFailure)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.True(t, pool.txs[2].committed)
}

func TestWithRetryGivesUp(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), &fakePool{}, 0, func(pgx.Tx) error {
		calls++
		return pgError(codeDeadlockDetected)
	})
	require.Error(t, err)
	require.Equal(t, DefaultAttempts, calls)
	require.True(t, IsRetryable(err))
	require.Contains(t, err.Error(), "gave up after 3 attempts")
}

func TestWithRetryDoesNotReplayOtherErrors(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), &fakePool{}, 3, func(pgx.Tx) error {
		calls++
		return pgError(codeUniqueViolation)
	})
	require.Equal(t, 1, calls)
	require.True(t, IsUniqueViolation(err))
	require.False(t, IsRetryable(err))
	require.False(t, IsUniqueViolation(errors.New("plain")))
}
