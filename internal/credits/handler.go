package credits

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nahum29/tiendita/internal/platform/httpx"
	"github.com/nahum29/tiendita/internal/shared"
)

// Handler exposes the credit ledger over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the credits HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers credit endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/summary", h.summary)
	r.Get("/drift", h.drift)
	r.Post("/overdue", h.markOverdue)
	r.Post("/payments", h.receivePayment)
	r.Get("/payments/{paymentID}", h.paymentAllocations)
	r.Get("/customers/{customerID}", h.statement)
	r.Get("/{creditID}", h.get)
	r.Get("/{creditID}/payments", h.noteAllocations)
}

type paymentRequest struct {
	CustomerID uuid.UUID       `json:"customer_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method" validate:"omitempty,oneof=cash card other"`
	Notes      string          `json:"notes" validate:"max=500"`
	CreditIDs  []uuid.UUID     `json:"credit_ids" validate:"omitempty,dive,required"`
}

func (h *Handler) receivePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	result, err := h.service.ReceivePayment(r.Context(), PaymentInput{
		CustomerID:     req.CustomerID,
		Amount:         req.Amount,
		Method:         Method(req.Method),
		Notes:          req.Notes,
		CreditIDs:      req.CreditIDs,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.logError("receive payment", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.ParsePageRequest(q)
	filter := NoteFilter{Status: Status(q.Get("status")), Limit: page.PerPage, Offset: page.Offset()}
	if raw := q.Get("customer_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid customer_id")
			return
		}
		filter.CustomerID = &id
	}
	notes, err := h.service.ListNotes(r.Context(), filter)
	if err != nil {
		h.logError("list notes", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"credits": notes, "page": page.Page, "per_page": page.PerPage})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	totals, err := h.service.Totals(r.Context())
	if err != nil {
		h.logError("credit totals", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, totals)
}

func (h *Handler) drift(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.service.CheckBalances(r.Context())
	if err != nil {
		h.logError("balance drift", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"drift": drifts, "count": len(drifts)})
}

func (h *Handler) markOverdue(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.MarkOverdue(r.Context())
	if err != nil {
		h.logError("mark overdue", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"marked": n})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "creditID")
	if !ok {
		return
	}
	note, err := h.service.GetNote(r.Context(), id)
	if err != nil {
		h.logError("get note", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, note)
}

func (h *Handler) noteAllocations(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "creditID")
	if !ok {
		return
	}
	rows, err := h.service.NoteAllocations(r.Context(), id)
	if err != nil {
		h.logError("note allocations", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"allocations": rows})
}

func (h *Handler) paymentAllocations(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "paymentID")
	if !ok {
		return
	}
	payment, rows, err := h.service.PaymentAllocations(r.Context(), id)
	if err != nil {
		h.logError("payment allocations", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payment": payment, "allocations": rows})
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "customerID")
	if !ok {
		return
	}
	statement, err := h.service.Statement(r.Context(), id)
	if err != nil {
		h.logError("customer statement", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, statement)
}

func (h *Handler) logError(op string, err error) {
	if shared.IsClientError(err) {
		h.logger.Info(op, slog.Any("error", err))
		return
	}
	h.logger.Error(op, slog.Any("error", err))
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}
