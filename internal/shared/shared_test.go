package shared

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestParsePageRequest(t *testing.T) {
	cases := []struct {
		query  string
		page   int
		per    int
		offset int
	}{
		{"", 1, 50, 0},
		{"page=3&per_page=20", 3, 20, 40},
		{"page=0&per_page=-4", 1, 50, 0},
		{"page=x&per_page=999", 1, 200, 0},
	}
	for _, tc := range cases {
		q, err := url.ParseQuery(tc.query)
		require.NoError(t, err)
		req := ParsePageRequest(q)
		require.Equal(t, tc.page, req.Page, tc.query)
		require.Equal(t, tc.per, req.PerPage, tc.query)
		require.Equal(t, tc.offset, req.Offset(), tc.query)
	}
}

func TestErrorKinds(t *testing.T) {
	validation := fmt.Errorf("checkout: %w", ValidationError("sales: cart is empty"))
	require.ErrorIs(t, validation, ErrValidation)
	require.EqualError(t, validation, "checkout: sales: cart is empty")
	require.True(t, IsClientError(validation))

	require.ErrorIs(t, NotFoundError("customer not found"), ErrNotFound)
	require.ErrorIs(t, ConflictError("out of stock"), ErrConflict)
	require.True(t, IsClientError(ErrIdempotencyConflict))
	require.False(t, IsClientError(errors.New("connection refused")))
}

func TestOperatorContext(t *testing.T) {
	require.Equal(t, uuid.Nil, OperatorFromContext(context.Background()))

	id := uuid.New()
	require.Equal(t, id, OperatorFromContext(ContextWithOperator(context.Background(), id)))
}

func TestLockerSkipsWhenHeld(t *testing.T) {
	locker := NewLocker(newRedis(t))
	ctx := context.Background()
	key := JobLockKey("credits:mark_overdue")
	require.Equal(t, "tiendita:job:credits:mark_overdue:lock", key)

	var inner error
	err := locker.WithLock(ctx, key, time.Minute, func(ctx context.Context) error {
		inner = locker.WithLock(ctx, key, time.Minute, func(context.Context) error {
			t.Fatal("nested run must not acquire the lock")
			return nil
		})
		return nil
	})
	require.NoError(t, err)
	require.ErrorIs(t, inner, ErrLockBusy)

	var runs atomic.Int32
	require.NoError(t, locker.WithLock(ctx, key, time.Minute, func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.Equal(t, int32(1), runs.Load())

	boom := errors.New("sweep failed")
	require.ErrorIs(t, locker.WithLock(ctx, key, time.Minute, func(context.Context) error { return boom }), boom)
}

func TestNilLockerRunsUnguarded(t *testing.T) {
	var locker *Locker
	called := false
	require.NoError(t, locker.WithLock(context.Background(), "k", time.Second, func(context.Context) error {
		called = true
		return nil
	}))
	require.True(t, called)
}

func TestNotifierRoundTrip(t *testing.T) {
	client := newRedis(t)
	notifier := NewNotifier(client, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := notifier.Subscribe(ctx)
	require.NoError(t, err)

	customer := uuid.New()
	notifier.Publish(ctx, ChangeEvent{Type: EventCreditsUpdated, CustomerID: &customer})

	select {
	case evt := <-events:
		require.Equal(t, EventCreditsUpdated, evt.Type)
		require.Equal(t, customer, *evt.CustomerID)
		require.Nil(t, evt.SaleID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case _, open := <-events:
		require.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestNotifierWithoutRedisIsNoop(t *testing.T) {
	notifier := NewNotifier(nil, nil)
	notifier.Publish(context.Background(), ChangeEvent{Type: EventSalesUpdated})

	events, err := notifier.Subscribe(context.Background())
	require.NoError(t, err)
	_, open := <-events
	require.False(t, open)
}
