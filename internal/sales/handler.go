package sales

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nahum29/tiendita/internal/platform/httpx"
	"github.com/nahum29/tiendita/internal/shared"
)

// Handler exposes checkout and sale history.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	renderer Renderer
	loc      *time.Location
	validate *validator.Validate
}

// NewHandler constructs the sales handler. renderer may be nil, in which
// case only the HTML ticket is served.
func NewHandler(logger *slog.Logger, service *Service, renderer Renderer, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{logger: logger, service: service, renderer: renderer, loc: loc, validate: validator.New()}
}

// MountRoutes registers sales endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.checkout)
	r.Get("/{saleID}", h.get)
	r.Get("/{saleID}/ticket", h.ticketHTML)
	r.Get("/{saleID}/ticket.pdf", h.ticketPDF)
}

type lineRequest struct {
	ProductID uuid.UUID        `json:"product_id" validate:"required"`
	Quantity  int64            `json:"quantity" validate:"gt=0"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

type checkoutRequest struct {
	CustomerID *uuid.UUID    `json:"customer_id"`
	Method     string        `json:"method" validate:"required,oneof=cash card credit"`
	Items      []lineRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CheckoutInput{
		CustomerID:     req.CustomerID,
		Method:         Method(req.Method),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	for _, line := range req.Items {
		input.Items = append(input.Items, LineInput{ProductID: line.ProductID, Quantity: line.Quantity, UnitPrice: line.UnitPrice})
	}
	result, err := h.service.Checkout(r.Context(), input)
	if err != nil {
		h.logError("checkout", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.ParsePageRequest(q)
	filter := ListFilter{Status: Status(q.Get("status")), Limit: page.PerPage, Offset: page.Offset()}
	if raw := q.Get("from"); raw != "" {
		from, err := time.ParseInLocation(time.DateOnly, raw, h.loc)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
		filter.From = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.ParseInLocation(time.DateOnly, raw, h.loc)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
		end := to.AddDate(0, 0, 1)
		filter.To = &end
	}
	if raw := q.Get("customer_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid customer_id")
			return
		}
		filter.CustomerID = &id
	}
	sales, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logError("list sales", err)
		httpx.RespondError(w, err)
		return
	}
	if sales == nil {
		sales = []Sale{}
	}
	httpx.JSON(w, http.StatusOK, sales)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	sale, ok := h.loadSale(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) ticketHTML(w http.ResponseWriter, r *http.Request) {
	sale, ok := h.loadSale(w, r)
	if !ok {
		return
	}
	html, err := TicketHTML(sale, h.loc)
	if err != nil {
		h.logError("ticket html", err)
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}

func (h *Handler) ticketPDF(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "ticket renderer not configured")
		return
	}
	sale, ok := h.loadSale(w, r)
	if !ok {
		return
	}
	html, err := TicketHTML(sale, h.loc)
	if err != nil {
		h.logError("ticket html", err)
		httpx.RespondError(w, err)
		return
	}
	pdf, err := h.renderer.RenderHTML(r.Context(), html)
	if err != nil {
		h.logger.Error("render ticket pdf", slog.String("sale_id", sale.ID.String()), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "ticket rendering failed")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename=ticket-"+sale.ID.String()+".pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) loadSale(w http.ResponseWriter, r *http.Request) (Sale, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "saleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid saleID")
		return Sale{}, false
	}
	sale, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.logError("get sale", err)
		httpx.RespondError(w, err)
		return Sale{}, false
	}
	return sale, true
}

func (h *Handler) logError(op string, err error) {
	if shared.IsClientError(err) {
		h.logger.Info(op, slog.Any("error", err))
		return
	}
	h.logger.Error(op, slog.Any("error", err))
}
