package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/nahum29/tiendita/internal/shared"
)

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		detail string
	}{
		{shared.ValidationError("credits: amount must be positive"), http.StatusBadRequest, "credits: amount must be positive"},
		{fmt.Errorf("get: %w", shared.NotFoundError("customer not found")), http.StatusNotFound, "get: customer not found"},
		{shared.ConflictError("out of stock"), http.StatusConflict, "out of stock"},
		{shared.ErrIdempotencyConflict, http.StatusConflict, shared.ErrIdempotencyConflict.Error()},
		{errors.New("pq: password authentication failed"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		var p ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
		require.Equal(t, tc.status, p.Status)
		require.Equal(t, tc.detail, p.Detail)
	}
}

func TestRespondErrorValidatorFields(t *testing.T) {
	type request struct {
		Method string `validate:"required,oneof=cash card"`
	}
	err := validator.New().Struct(request{Method: "bitcoin"})
	rec := httptest.NewRecorder()
	RespondError(rec, err)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"title":"Validation Failed","status":400,"fields":{"Method":"oneof"}}`, rec.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	var target struct {
		Amount string `json:"amount"`
	}
	decode := func(body string) error {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		return DecodeJSON(httptest.NewRecorder(), req, &target)
	}

	require.NoError(t, decode(`{"amount":"60"}`))
	require.Equal(t, "60", target.Amount)
	require.ErrorIs(t, decode(``), shared.ErrValidation)
	require.ErrorIs(t, decode(`{"amount":"60","tip":"5"}`), shared.ErrValidation)
	require.ErrorIs(t, decode(`{"amount":`), shared.ErrValidation)
}
