package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nahum29/tiendita/internal/shared"
)

// RepositoryPort defines data access for products and stock.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	GetBySKU(ctx context.Context, sku string) (Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]Movement, error)
	ListCategories(ctx context.Context) ([]Category, error)
	InsertCategory(ctx context.Context, c Category) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NotifierPort broadcasts stock changes.
type NotifierPort interface {
	Publish(ctx context.Context, evt shared.ChangeEvent)
}

// CacheInvalidator drops cached aggregates after a write.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Logger   *slog.Logger
	Notifier NotifierPort
	Cache    CacheInvalidator
	Now      func() time.Time
}

// Service implements the product catalogue and stock bookkeeping.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	logger   *slog.Logger
	notifier NotifierPort
	cache    CacheInvalidator
	now      func() time.Time
}

// NewService creates inventory service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		repo:     repo,
		audit:    audit,
		logger:   cfg.Logger.With(slog.String("module", "inventory")),
		notifier: cfg.Notifier,
		cache:    cfg.Cache,
		now:      cfg.Now,
	}
}

func validateProduct(input ProductInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return ErrNameRequired
	}
	if input.Price.IsNegative() || input.Cost.IsNegative() {
		return ErrInvalidPrice
	}
	if input.Stock < 0 || input.LowStockThreshold < 0 {
		return ErrInvalidStock
	}
	return nil
}

// CreateProduct registers a product with its opening stock.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	if err := validateProduct(input); err != nil {
		return Product{}, err
	}
	now := s.now()
	p := Product{
		ID:                uuid.New(),
		SKU:               strings.TrimSpace(input.SKU),
		Name:              strings.TrimSpace(input.Name),
		Description:       strings.TrimSpace(input.Description),
		Price:             input.Price,
		Cost:              input.Cost,
		Stock:             input.Stock,
		LowStockThreshold: input.LowStockThreshold,
		CategoryID:        input.CategoryID,
		IsBulk:            input.IsBulk,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertProduct(ctx, p); err != nil {
			return err
		}
		if p.Stock == 0 {
			return nil
		}
		return tx.InsertMovement(ctx, Movement{
			ID:           uuid.New(),
			ProductID:    p.ID,
			QtyChange:    p.Stock,
			BalanceAfter: p.Stock,
			Reason:       ReasonRestock,
			Note:         "opening stock",
			CreatedAt:    now,
		})
	})
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, "inventory:product_created", p.ID, map[string]any{"name": p.Name, "stock": p.Stock})
	s.changed(ctx)
	return p, nil
}

// UpdateProduct edits catalogue fields. Stock only changes through
// adjustments and sales.
func (s *Service) UpdateProduct(ctx context.Context, id uuid.UUID, input ProductInput) (Product, error) {
	if err := validateProduct(input); err != nil {
		return Product{}, err
	}
	var updated Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return err
		}
		current.SKU = strings.TrimSpace(input.SKU)
		current.Name = strings.TrimSpace(input.Name)
		current.Description = strings.TrimSpace(input.Description)
		current.Price = input.Price
		current.Cost = input.Cost
		current.LowStockThreshold = input.LowStockThreshold
		current.CategoryID = input.CategoryID
		current.IsBulk = input.IsBulk
		current.Active = input.Active
		current.UpdatedAt = s.now()
		if err := tx.UpdateProduct(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, "inventory:product_updated", id, map[string]any{"price": updated.Price.String(), "active": updated.Active})
	s.changed(ctx)
	return updated, nil
}

// GetProduct loads one product.
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// LookupBySKU resolves a scanned barcode.
func (s *Service) LookupBySKU(ctx context.Context, sku string) (Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return Product{}, ErrProductNotFound
	}
	return s.repo.GetBySKU(ctx, sku)
}

// ListProducts searches the catalogue.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.ListProducts(ctx, filter)
}

// ListMovements returns recent stock movements of a product.
func (s *Service) ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]Movement, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListMovements(ctx, productID, limit)
}

// ListCategories returns all categories.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

// CreateCategory adds a category.
func (s *Service) CreateCategory(ctx context.Context, name string) (Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, ErrNameRequired
	}
	c := Category{ID: uuid.New(), Name: name, CreatedAt: s.now()}
	if err := s.repo.InsertCategory(ctx, c); err != nil {
		return Category{}, err
	}
	return c, nil
}

// Adjust applies a manual stock change such as a restock or a count
// correction.
func (s *Service) Adjust(ctx context.Context, input AdjustmentInput) (Movement, error) {
	if input.QtyChange == 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if input.Reason == "" {
		input.Reason = ReasonAdjustment
	}
	if input.Reason != ReasonAdjustment && input.Reason != ReasonRestock {
		return Movement{}, ErrInvalidReason
	}
	if input.Reason == ReasonRestock && input.QtyChange < 0 {
		return Movement{}, ErrInvalidQuantity
	}
	var mv Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		mv, err = s.applyTx(ctx, tx, input.ProductID, input.QtyChange, input.Reason, input.Note, nil)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.record(ctx, "inventory:stock_adjusted", input.ProductID, map[string]any{
		"qty_change":    mv.QtyChange,
		"balance_after": mv.BalanceAfter,
		"reason":        string(mv.Reason),
	})
	s.changed(ctx)
	return mv, nil
}

// DeductForSaleTx takes sold units out of stock on the checkout
// transaction. The product must be active and hold enough stock.
func (s *Service) DeductForSaleTx(ctx context.Context, tx TxRepository, productID uuid.UUID, qty int64, saleID uuid.UUID) (Product, error) {
	if qty <= 0 {
		return Product{}, ErrInvalidQuantity
	}
	p, err := tx.GetProductForUpdate(ctx, productID)
	if err != nil {
		return Product{}, err
	}
	if !p.Active {
		return Product{}, fmt.Errorf("%w: %s", ErrProductInactive, p.Name)
	}
	if p.Stock < qty {
		return Product{}, fmt.Errorf("%w: %s has %s, requested %s", ErrInsufficientStock, p.Name, p.FormatQuantity(p.Stock), p.FormatQuantity(qty))
	}
	mv, err := s.writeMovement(ctx, tx, p, -qty, ReasonSale, "", &saleID)
	if err != nil {
		return Product{}, err
	}
	p.Stock = mv.BalanceAfter
	return p, nil
}

// StockCommitted publishes a stock change after a checkout commits.
func (s *Service) StockCommitted(ctx context.Context, productIDs []uuid.UUID) {
	for _, id := range productIDs {
		p, err := s.repo.GetProduct(ctx, id)
		if err != nil {
			continue
		}
		if p.LowStock() {
			s.logger.Warn("low stock", slog.String("product_id", id.String()), slog.String("name", p.Name), slog.String("stock", p.StockLabel()))
		}
	}
	if s.notifier != nil {
		s.notifier.Publish(ctx, shared.ChangeEvent{Type: shared.EventStockUpdated})
	}
}

func (s *Service) applyTx(ctx context.Context, tx TxRepository, productID uuid.UUID, change int64, reason Reason, note string, saleID *uuid.UUID) (Movement, error) {
	p, err := tx.GetProductForUpdate(ctx, productID)
	if err != nil {
		return Movement{}, err
	}
	return s.writeMovement(ctx, tx, p, change, reason, note, saleID)
}

func (s *Service) writeMovement(ctx context.Context, tx TxRepository, p Product, change int64, reason Reason, note string, saleID *uuid.UUID) (Movement, error) {
	next := p.Stock + change
	if next < 0 {
		return Movement{}, ErrInsufficientStock
	}
	if err := tx.SetStock(ctx, p.ID, next); err != nil {
		return Movement{}, err
	}
	mv := Movement{
		ID:           uuid.New(),
		ProductID:    p.ID,
		QtyChange:    change,
		BalanceAfter: next,
		Reason:       reason,
		Note:         strings.TrimSpace(note),
		RefSaleID:    saleID,
		CreatedAt:    s.now(),
	}
	if err := tx.InsertMovement(ctx, mv); err != nil {
		return Movement{}, err
	}
	return mv, nil
}

func (s *Service) record(ctx context.Context, action string, productID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.OperatorFromContext(ctx),
		Action:   action,
		Entity:   "product",
		EntityID: productID.String(),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit inventory", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) changed(ctx context.Context) {
	if s.notifier != nil {
		s.notifier.Publish(ctx, shared.ChangeEvent{Type: shared.EventStockUpdated})
	}
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("invalidate report cache", slog.Any("error", err))
	}
}
