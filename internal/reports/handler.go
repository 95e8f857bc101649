package reports

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"

	"github.com/nahum29/tiendita/internal/platform/httpx"
	"github.com/nahum29/tiendita/internal/shared"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler serves reports.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds reports handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dashboard", h.dashboard)
	r.Get("/export/credits.xlsx", h.exportCredits)
	r.Get("/export/sales.xlsx", h.exportSales)
	r.Get("/backup", h.backup)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	rg, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	d, err := h.service.Dashboard(r.Context(), rg)
	if err != nil {
		h.logError("dashboard", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) exportCredits(w http.ResponseWriter, r *http.Request) {
	f, err := h.service.ExportCredits(r.Context())
	if err != nil {
		h.logError("export credits", err)
		httpx.RespondError(w, err)
		return
	}
	h.writeWorkbook(w, f, "creditos.xlsx")
}

func (h *Handler) exportSales(w http.ResponseWriter, r *http.Request) {
	rg, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	f, err := h.service.ExportSales(r.Context(), rg)
	if err != nil {
		h.logError("export sales", err)
		httpx.RespondError(w, err)
		return
	}
	h.writeWorkbook(w, f, "ventas-"+rg.From.Format(time.DateOnly)+".xlsx")
}

func (h *Handler) backup(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.Backup(r.Context())
	if err != nil {
		h.logError("backup", err)
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=backup-"+b.GeneratedAt.Format("20060102-150405")+".json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(b)
}

func (h *Handler) writeWorkbook(w http.ResponseWriter, f *excelize.File, filename string) {
	defer func() { _ = f.Close() }()
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	if err := f.Write(w); err != nil {
		h.logger.Error("write workbook", slog.String("file", filename), slog.Any("error", err))
	}
}

// parseRange reads from/to as store dates, both inclusive. Missing values
// default to today.
func (h *Handler) parseRange(w http.ResponseWriter, r *http.Request) (Range, bool) {
	rg := h.service.Today()
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		from, err := time.ParseInLocation(time.DateOnly, raw, h.service.loc)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return Range{}, false
		}
		rg.From = from
		if q.Get("to") == "" {
			rg.To = from.AddDate(0, 0, 1)
		}
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.ParseInLocation(time.DateOnly, raw, h.service.loc)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return Range{}, false
		}
		rg.To = to.AddDate(0, 0, 1)
	}
	return rg, true
}

func (h *Handler) logError(op string, err error) {
	if shared.IsClientError(err) {
		h.logger.Info(op, slog.Any("error", err))
		return
	}
	h.logger.Error(op, slog.Any("error", err))
}
