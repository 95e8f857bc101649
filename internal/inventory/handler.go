package inventory

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nahum29/tiendita/internal/platform/httpx"
	"github.com/nahum29/tiendita/internal/shared"
)

// Handler serves the product catalogue and stock endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Get("/products/sku/{sku}", h.lookupSKU)
	r.Get("/products/{productID}", h.getProduct)
	r.Put("/products/{productID}", h.updateProduct)
	r.Get("/products/{productID}/movements", h.listMovements)
	r.Post("/adjustments", h.adjust)
	r.Get("/categories", h.listCategories)
	r.Post("/categories", h.createCategory)
}

type productRequest struct {
	SKU               string          `json:"sku" validate:"max=64"`
	Name              string          `json:"name" validate:"required,max=200"`
	Description       string          `json:"description" validate:"max=1000"`
	Price             decimal.Decimal `json:"price"`
	Cost              decimal.Decimal `json:"cost"`
	Stock             int64           `json:"stock" validate:"gte=0"`
	LowStockThreshold int64           `json:"low_stock_threshold" validate:"gte=0"`
	CategoryID        *uuid.UUID      `json:"category_id"`
	IsBulk            bool            `json:"is_bulk"`
	Active            *bool           `json:"active"`
}

func (req productRequest) input() ProductInput {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return ProductInput{
		SKU:               req.SKU,
		Name:              req.Name,
		Description:       req.Description,
		Price:             req.Price,
		Cost:              req.Cost,
		Stock:             req.Stock,
		LowStockThreshold: req.LowStockThreshold,
		CategoryID:        req.CategoryID,
		IsBulk:            req.IsBulk,
		Active:            active,
	}
}

func (h *Handler) decodeProduct(w http.ResponseWriter, r *http.Request) (productRequest, bool) {
	var req productRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return req, false
	}
	return req, true
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}
	p, err := h.service.CreateProduct(r.Context(), req.input())
	if err != nil {
		h.logError("create product", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "productID")
	if !ok {
		return
	}
	req, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}
	p, err := h.service.UpdateProduct(r.Context(), id, req.input())
	if err != nil {
		h.logError("update product", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "productID")
	if !ok {
		return
	}
	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.logError("get product", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) lookupSKU(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.LookupBySKU(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		h.logError("lookup sku", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.ParsePageRequest(q)
	filter := ProductFilter{
		Query:           q.Get("q"),
		LowStockOnly:    q.Get("low_stock") == "true",
		IncludeInactive: q.Get("include_inactive") == "true",
		Limit:           page.PerPage,
		Offset:          page.Offset(),
	}
	if raw := q.Get("category_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid category_id")
			return
		}
		filter.CategoryID = &id
	}
	products, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		h.logError("list products", err)
		httpx.RespondError(w, err)
		return
	}
	if products == nil {
		products = []Product{}
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "productID")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.ListMovements(r.Context(), id, limit)
	if err != nil {
		h.logError("list movements", err)
		httpx.RespondError(w, err)
		return
	}
	if movements == nil {
		movements = []Movement{}
	}
	httpx.JSON(w, http.StatusOK, movements)
}

type adjustmentRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	QtyChange int64     `json:"qty_change" validate:"required"`
	Reason    string    `json:"reason" validate:"omitempty,oneof=adjustment restock"`
	Note      string    `json:"note" validate:"max=500"`
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	mv, err := h.service.Adjust(r.Context(), AdjustmentInput{
		ProductID: req.ProductID,
		QtyChange: req.QtyChange,
		Reason:    Reason(req.Reason),
		Note:      req.Note,
	})
	if err != nil {
		h.logError("adjust stock", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, mv)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.logError("list categories", err)
		httpx.RespondError(w, err)
		return
	}
	if categories == nil {
		categories = []Category{}
	}
	httpx.JSON(w, http.StatusOK, categories)
}

type categoryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.CreateCategory(r.Context(), req.Name)
	if err != nil {
		h.logError("create category", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
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
