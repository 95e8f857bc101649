package inventory

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(repo *memoryRepo) http.Handler {
	svc, _, _ := newTestService(repo)
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/inventory", handler.MountRoutes)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerProductLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(repo)

	rec := doJSON(t, router, http.MethodPost, "/inventory/products", map[string]any{
		"sku": "750100", "name": "Frijol", "price": "42", "cost": "30", "stock": 5000, "is_bulk": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.True(t, created.IsBulk)

	rec = doJSON(t, router, http.MethodGet, "/inventory/products/sku/750100", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/inventory/adjustments", map[string]any{
		"product_id": created.ID, "qty_change": -6000,
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/inventory/adjustments", map[string]any{
		"product_id": created.ID, "qty_change": 1000, "reason": "restock",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/inventory/products/"+created.ID.String()+"/movements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var movements []Movement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &movements))
	require.Len(t, movements, 2)
	require.Equal(t, int64(6000), movements[0].BalanceAfter)
}

func TestHandlerValidation(t *testing.T) {
	router := newTestRouter(newMemoryRepo())

	rec := doJSON(t, router, http.MethodPost, "/inventory/products", map[string]any{"price": "1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/inventory/products/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/inventory/products/sku/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/inventory/products?category_id=bad", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/inventory/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}
