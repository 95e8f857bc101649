package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	rows       []Row
	err        error
	lastFilter Filters
	lastOffset int
	lastLimit  int
}

func (s *stubRepo) Window(ctx context.Context, f Filters, offset, limit int) ([]Row, error) {
	s.lastFilter, s.lastOffset, s.lastLimit = f, offset, limit
	if s.err != nil {
		return nil, s.err
	}
	rows := s.rows
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

var actor = uuid.MustParse("6f1c2a3e-0000-4000-8000-000000000001")

func sampleRows(n int) []Row {
	rows := make([]Row, n)
	base := time.Date(2024, 5, 15, 18, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i] = Row{
			ID:       int64(n - i),
			At:       base.Add(-time.Duration(i) * time.Hour),
			ActorID:  actor,
			Action:   "credits:payment_received",
			Entity:   "payment",
			EntityID: uuid.NewString(),
			Meta:     json.RawMessage(`{"amount":"60"}`),
		}
	}
	return rows
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubRepo{rows: sampleRows(5)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), Filters{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.Equal(t, Paging{Page: 1, PageSize: 2, HasNext: true, NextPage: 2}, result.Paging)
	require.Equal(t, 3, repo.lastLimit)
	require.Equal(t, 0, repo.lastOffset)

	result, err = svc.Timeline(context.Background(), Filters{Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.Equal(t, Paging{Page: 3, PageSize: 2, PrevPage: 2}, result.Paging)
	require.Equal(t, 4, repo.lastOffset)

	result, err = svc.Timeline(context.Background(), Filters{Page: 9, PageSize: 500, Entity: "  payment "})
	require.NoError(t, err)
	require.NotNil(t, result.Rows)
	require.Empty(t, result.Rows)
	require.Equal(t, maxPageSize, result.Paging.PageSize)
	require.Equal(t, "payment", repo.lastFilter.Entity)
}

func TestTimelineRejectsBadRanges(t *testing.T) {
	svc := NewService(&stubRepo{})
	from := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)

	_, err := svc.Timeline(context.Background(), Filters{From: from, To: from})
	require.ErrorIs(t, err, ErrInvalidRange)

	_, err = svc.Timeline(context.Background(), Filters{From: from, To: from.Add(MaxRange + time.Hour)})
	require.ErrorIs(t, err, ErrInvalidRange)

	_, err = NewService(&stubRepo{err: errors.New("db down")}).Timeline(context.Background(), Filters{})
	require.ErrorContains(t, err, "db down")
}

func TestExportCSV(t *testing.T) {
	repo := &stubRepo{rows: sampleRows(3)}
	var out strings.Builder
	require.NoError(t, NewService(repo).ExportCSV(context.Background(), Filters{}, &out))
	require.Equal(t, maxExportRows, repo.lastLimit)

	records, err := csv.NewReader(strings.NewReader(out.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	require.Equal(t, []string{"at", "actor_id", "action", "entity", "entity_id", "meta"}, records[0])
	require.Equal(t, "2024-05-15T18:00:00Z", records[1][0])
	require.Equal(t, `{"amount":"60"}`, records[1][5])
}

func TestHandlerTimelineAndExport(t *testing.T) {
	repo := &stubRepo{rows: sampleRows(3)}
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(repo), time.UTC)
	h.now = func() time.Time { return time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/audit", h.MountRoutes)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/audit/?entity=payment&actor=" + actor.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Rows, 3)
	require.Equal(t, time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC), repo.lastFilter.From)
	require.Equal(t, time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC), repo.lastFilter.To)
	require.Equal(t, actor, *repo.lastFilter.ActorID)

	rec = get("/audit/?from=2024-05-01&to=2024-05-01")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), repo.lastFilter.To)

	rec = get("/audit/?from=2024-05-10&to=2024-05-01")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get("/audit/?actor=someone")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get("/audit/export.csv?from=2024-05-15")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "audit-20240515.csv")
	require.Equal(t, 4, strings.Count(rec.Body.String(), "\n"))
}
