package credits

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, repo *memoryRepo, policy SurplusPolicy) http.Handler {
	t.Helper()
	svc, _, _ := newTestService(repo, policy)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	r.Route("/credits", NewHandler(logger, svc).MountRoutes)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerReceivePayment(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(t, repo, SurplusReject)
	customer, overdue, _ := seedOverdueAndOpen(repo)

	rec := doJSON(t, router, http.MethodPost, "/credits/payments", map[string]any{
		"customer_id": customer,
		"amount":      "60",
		"method":      "cash",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Payment struct {
			ID uuid.UUID `json:"id"`
		} `json:"payment"`
		Allocations []struct {
			CreditID uuid.UUID `json:"credit_id"`
			Paid     string    `json:"paid"`
		} `json:"allocations"`
		Balance string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Allocations, 2)
	require.Equal(t, overdue.ID, body.Allocations[0].CreditID)
	require.Equal(t, "50", body.Allocations[0].Paid)
	require.Equal(t, "20", body.Balance)

	rec = doJSON(t, router, http.MethodGet, "/credits/payments/"+body.Payment.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), overdue.ID.String())
}

func TestHandlerReceivePaymentSurplusRejected(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(t, repo, SurplusReject)
	customer, _, _ := seedOverdueAndOpen(repo)

	rec := doJSON(t, router, http.MethodPost, "/credits/payments", map[string]any{
		"customer_id": customer,
		"amount":      150,
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "exceeds outstanding")
	require.Empty(t, repo.state.payments)
}

func TestHandlerReceivePaymentValidation(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(t, repo, SurplusReject)
	customer, _, _ := seedOverdueAndOpen(repo)

	cases := []struct {
		name string
		body any
	}{
		{"unknown method", map[string]any{"customer_id": customer, "amount": "5", "method": "cheque"}},
		{"missing customer", map[string]any{"amount": "5"}},
		{"zero amount", map[string]any{"customer_id": customer, "amount": "0"}},
		{"fraction of a cent", map[string]any{"customer_id": customer, "amount": "0.001"}},
		{"unknown field", map[string]any{"customer_id": customer, "amount": "5", "tip": "1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/credits/payments", tc.body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	require.Empty(t, repo.state.payments)
}

func TestHandlerIdempotencyKey(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(t, repo, SurplusReject)
	customer, _, _ := seedOverdueAndOpen(repo)
	headers := map[string]string{"Idempotency-Key": "abono-1"}
	payload := map[string]any{"customer_id": customer, "amount": "10"}

	rec := doJSON(t, router, http.MethodPost, "/credits/payments", payload, headers)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/credits/payments", payload, headers)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Len(t, repo.state.payments, 1)

	failing := map[string]string{"Idempotency-Key": "abono-2"}
	rec = doJSON(t, router, http.MethodPost, "/credits/payments", map[string]any{"customer_id": customer, "amount": "500"}, failing)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotContains(t, repo.state.keys, "abono-2")

	rec = doJSON(t, router, http.MethodPost, "/credits/payments", map[string]any{"customer_id": customer, "amount": "5"}, failing)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHandlerReads(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(t, repo, SurplusReject)
	customer, overdue, _ := seedOverdueAndOpen(repo)

	rec := doJSON(t, router, http.MethodGet, "/credits/"+overdue.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Don Chuy")

	rec = doJSON(t, router, http.MethodGet, "/credits/"+uuid.NewString(), nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/credits/not-a-uuid", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/credits/?status=overdue", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), overdue.ID.String())

	rec = doJSON(t, router, http.MethodGet, "/credits/?status=pending", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/credits/summary", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var totals map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &totals))
	require.Equal(t, "50", totals["overdue_outstanding"])
	require.Equal(t, "30", totals["open_outstanding"])

	rec = doJSON(t, router, http.MethodGet, "/credits/customers/"+customer.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `"outstanding":"80"`), rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/credits/customers/"+uuid.NewString(), nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerMarkOverdueAndDrift(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(t, repo, SurplusReject)
	customer, _, _ := seedOverdueAndOpen(repo)

	rec := doJSON(t, router, http.MethodPost, "/credits/overdue", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"marked":0}`, rec.Body.String())

	acct := repo.state.accounts[customer]
	acct.Balance = dec("1")
	repo.state.accounts[customer] = acct
	rec = doJSON(t, router, http.MethodGet, "/credits/drift", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"count":1`)
}
