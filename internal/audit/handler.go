package audit

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/nahum29/tiendita/internal/platform/httpx"
	"github.com/nahum29/tiendita/internal/shared"
)

const (
	exportLimit      = 10
	exportWindow     = time.Minute
	defaultDateRange = 7 * 24 * time.Hour
)

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
	loc     *time.Location
	now     func() time.Time
}

// NewHandler builds the audit handler. Dates in queries are read in loc.
func NewHandler(logger *slog.Logger, service *Service, loc *time.Location) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{logger: logger, service: service, loc: loc, now: time.Now}
}

// MountRoutes registers audit routes. Exports share a tighter per-IP limit.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.timeline)
	r.Group(func(gr chi.Router) {
		gr.Use(httprate.Limit(exportLimit, exportWindow, httprate.WithKeyFuncs(httprate.KeyByIP)))
		gr.Get("/export.csv", h.export)
	})
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	f, ok := h.parseFilters(w, r)
	if !ok {
		return
	}
	result, err := h.service.Timeline(r.Context(), f)
	if err != nil {
		h.logError("audit timeline", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	f, ok := h.parseFilters(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.service.ExportCSV(r.Context(), f, &buf); err != nil {
		h.logError("audit export", err)
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=audit-"+f.From.Format("20060102")+".csv")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// parseFilters reads from/to as inclusive store dates, defaulting to the last
// seven days.
func (h *Handler) parseFilters(w http.ResponseWriter, r *http.Request) (Filters, bool) {
	q := r.URL.Query()
	now := h.now().In(h.loc)
	tomorrow := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc).AddDate(0, 0, 1)
	f := Filters{
		From:     tomorrow.Add(-defaultDateRange),
		To:       tomorrow,
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.ParseInLocation(time.DateOnly, raw, h.loc)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return Filters{}, false
		}
		f.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.ParseInLocation(time.DateOnly, raw, h.loc)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return Filters{}, false
		}
		f.To = to.AddDate(0, 0, 1)
	}
	if raw := q.Get("actor"); raw != "" {
		actor, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "actor must be a uuid")
			return Filters{}, false
		}
		f.ActorID = &actor
	}
	page := shared.ParsePageRequest(q)
	f.Page = page.Page
	if raw := q.Get("per_page"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			f.PageSize = v
		}
	}
	return f, true
}

func (h *Handler) logError(op string, err error) {
	if shared.IsClientError(err) {
		h.logger.Info(op, slog.Any("error", err))
		return
	}
	h.logger.Error(op, slog.Any("error", err))
}
