package customers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nahum29/tiendita/internal/shared"
)

type memoryRepo struct {
	customers map[uuid.UUID]Customer
	history   map[uuid.UUID]History
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{customers: make(map[uuid.UUID]Customer), history: make(map[uuid.UUID]History)}
}

func (r *memoryRepo) Insert(ctx context.Context, c Customer) error {
	r.customers[c.ID] = c
	return nil
}

func (r *memoryRepo) Update(ctx context.Context, c Customer) (Customer, error) {
	current, ok := r.customers[c.ID]
	if !ok {
		return Customer{}, ErrNotFound
	}
	current.Name, current.Phone, current.Email, current.Address = c.Name, c.Phone, c.Email, c.Address
	r.customers[c.ID] = current
	return current, nil
}

func (r *memoryRepo) Get(ctx context.Context, id uuid.UUID) (Customer, error) {
	c, ok := r.customers[id]
	if !ok {
		return Customer{}, ErrNotFound
	}
	return c, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Customer, error) {
	var out []Customer
	for _, c := range r.customers {
		if filter.Query != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(filter.Query)) {
			continue
		}
		if filter.WithDebt && !c.Balance.IsPositive() {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) LockCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	return tx.repo.Get(ctx, id)
}

func (tx *memoryTx) History(ctx context.Context, id uuid.UUID) (History, error) {
	return tx.repo.history[id], nil
}

func (tx *memoryTx) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := tx.repo.customers[id]; !ok {
		return ErrNotFound
	}
	delete(tx.repo.customers, id)
	return nil
}

type recordingAudit struct {
	actions []string
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

func TestCreateAndUpdate(t *testing.T) {
	repo := newMemoryRepo()
	audit := &recordingAudit{}
	svc := NewService(repo, audit, nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, Input{Name: "  Doña Lupe ", Phone: "555-1234"})
	require.NoError(t, err)
	require.Equal(t, "Doña Lupe", c.Name)
	require.True(t, c.Balance.IsZero())

	updated, err := svc.Update(ctx, c.ID, Input{Name: "Lupe Ramirez", Email: "lupe@example.com"})
	require.NoError(t, err)
	require.Equal(t, "Lupe Ramirez", updated.Name)
	require.Equal(t, []string{"customers:created", "customers:updated"}, audit.actions)

	_, err = svc.Update(ctx, uuid.New(), Input{Name: "x"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)

	_, err := svc.Create(context.Background(), Input{Name: " "})
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = svc.Create(context.Background(), Input{Name: "Ana", Email: "not-an-email"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeleteRefusedWhileLedgerHistoryExists(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	c, err := svc.Create(ctx, Input{Name: "Pedro"})
	require.NoError(t, err)

	repo.history[c.ID] = History{Credits: 1}
	require.ErrorIs(t, svc.Delete(ctx, c.ID), ErrHasCredit)

	// every note closed and paid off: the trail still pins the customer
	repo.history[c.ID] = History{Credits: 3, Payments: 2}
	require.ErrorIs(t, svc.Delete(ctx, c.ID), ErrHasCredit)

	repo.history[c.ID] = History{Payments: 1}
	require.ErrorIs(t, svc.Delete(ctx, c.ID), ErrHasCredit)
	require.Contains(t, repo.customers, c.ID)

	repo.history[c.ID] = History{}
	stored := repo.customers[c.ID]
	stored.Balance = decimal.NewFromInt(5)
	repo.customers[c.ID] = stored
	require.ErrorIs(t, svc.Delete(ctx, c.ID), ErrHasCredit)

	stored.Balance = decimal.Zero
	repo.customers[c.ID] = stored
	require.NoError(t, svc.Delete(ctx, c.ID))
	require.ErrorIs(t, svc.Delete(ctx, c.ID), ErrNotFound)
}

func TestHandlerRoutes(t *testing.T) {
	repo := newMemoryRepo()
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(repo, nil, nil))
	router := chi.NewRouter()
	router.Route("/customers", handler.MountRoutes)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/customers/", `{"name":"Beto"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Customer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = do(http.MethodPost, "/customers/", `{"name":"Zoe","email":"bad"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodPost, "/customers/", `{"name":"Ana"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(http.MethodGet, "/customers/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []Customer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	require.Equal(t, "Ana", list[0].Name)

	rec = do(http.MethodGet, "/customers/"+created.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"balance":"0"`)

	rec = do(http.MethodGet, "/customers/nope", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	repo.history[created.ID] = History{Credits: 2}
	rec = do(http.MethodDelete, "/customers/"+created.ID.String(), "")
	require.Equal(t, http.StatusConflict, rec.Code)

	repo.history[created.ID] = History{}
	rec = do(http.MethodDelete, "/customers/"+created.ID.String(), "")
	require.Equal(t, http.StatusNoContent, rec.Code)
}
