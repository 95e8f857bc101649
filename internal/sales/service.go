package sales

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nahum29/tiendita/internal/credits"
	"github.com/nahum29/tiendita/internal/inventory"
	"github.com/nahum29/tiendita/internal/shared"
)

// RepositoryPort defines sale persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Sale, error)
	List(ctx context.Context, filter ListFilter) ([]Sale, error)
}

// StockPort deducts sold quantities on the checkout transaction.
type StockPort interface {
	DeductForSaleTx(ctx context.Context, tx inventory.TxRepository, productID uuid.UUID, qty int64, saleID uuid.UUID) (inventory.Product, error)
	StockCommitted(ctx context.Context, productIDs []uuid.UUID)
}

// CreditPort posts credit sales to the weekly notes.
type CreditPort interface {
	PostCreditSaleTx(ctx context.Context, tx credits.TxRepository, input credits.CreditSaleInput) (credits.Note, error)
	CreditSaleCommitted(ctx context.Context, note credits.Note, input credits.CreditSaleInput)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NotifierPort broadcasts sale events.
type NotifierPort interface {
	Publish(ctx context.Context, evt shared.ChangeEvent)
}

// CacheInvalidator drops cached aggregates after a write.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// MetricsPort records checkout counters.
type MetricsPort interface {
	CheckoutCompleted(method string, total float64)
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Logger   *slog.Logger
	Notifier NotifierPort
	Cache    CacheInvalidator
	Metrics  MetricsPort
	Now      func() time.Time
}

// Service runs the point of sale.
type Service struct {
	repo     RepositoryPort
	stock    StockPort
	credit   CreditPort
	audit    AuditPort
	logger   *slog.Logger
	notifier NotifierPort
	cache    CacheInvalidator
	metrics  MetricsPort
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, stock StockPort, credit CreditPort, audit AuditPort, cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		repo:     repo,
		stock:    stock,
		credit:   credit,
		audit:    audit,
		logger:   cfg.Logger.With(slog.String("module", "sales")),
		notifier: cfg.Notifier,
		cache:    cfg.Cache,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
	}
}

// CheckoutResult is a committed sale plus the note it was posted to, if any.
type CheckoutResult struct {
	Sale     Sale          `json:"sale"`
	Credit   *credits.Note `json:"credit,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
}

func validateCheckout(input CheckoutInput) error {
	if !input.Method.Valid() {
		return ErrInvalidMethod
	}
	if len(input.Items) == 0 {
		return ErrEmptyCart
	}
	if input.Method == MethodCredit && (input.CustomerID == nil || *input.CustomerID == uuid.Nil) {
		return ErrCustomerRequired
	}
	for _, line := range input.Items {
		if line.ProductID == uuid.Nil || line.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		if line.UnitPrice != nil && line.UnitPrice.IsNegative() {
			return ErrInvalidPrice
		}
	}
	return nil
}

// Checkout records a sale in one transaction: the sale row, its items, the
// stock deductions and either the credit posting or the payment row. Nothing
// is written when any step fails.
func (s *Service) Checkout(ctx context.Context, input CheckoutInput) (CheckoutResult, error) {
	if err := validateCheckout(input); err != nil {
		return CheckoutResult{}, err
	}

	var (
		sale       Sale
		note       *credits.Note
		creditIn   credits.CreditSaleInput
		productIDs []uuid.UUID
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.IdempotencyKey != "" {
			if err := tx.ClaimKey(ctx, input.IdempotencyKey); err != nil {
				return err
			}
		}
		now := s.now()
		sale = Sale{
			ID:         uuid.New(),
			CustomerID: input.CustomerID,
			Total:      decimal.Zero,
			TotalCost:  decimal.Zero,
			Status:     StatusPaid,
			Method:     input.Method,
			CreatedBy:  shared.OperatorFromContext(ctx),
			CreatedAt:  now,
		}
		if input.Method == MethodCredit {
			sale.Status = StatusCredit
		}

		stock := tx.Stock()
		items := make([]Item, 0, len(input.Items))
		productIDs = productIDs[:0]
		for _, line := range input.Items {
			product, err := s.stock.DeductForSaleTx(ctx, stock, line.ProductID, line.Quantity, sale.ID)
			if err != nil {
				return err
			}
			unit := product.UnitPrice()
			if line.UnitPrice != nil {
				unit = *line.UnitPrice
			}
			qty := decimal.NewFromInt(line.Quantity)
			item := Item{
				ID:          uuid.New(),
				SaleID:      sale.ID,
				ProductID:   product.ID,
				ProductName: product.Name,
				IsBulk:      product.IsBulk,
				Quantity:    line.Quantity,
				UnitPrice:   unit,
				TotalPrice:  unit.Mul(qty).Round(2),
			}
			items = append(items, item)
			sale.Total = sale.Total.Add(item.TotalPrice)
			sale.TotalCost = sale.TotalCost.Add(product.UnitCost().Mul(qty))
			productIDs = append(productIDs, product.ID)
		}
		sale.TotalCost = sale.TotalCost.Round(2)
		sale.Items = items

		if err := tx.InsertSale(ctx, sale); err != nil {
			return fmt.Errorf("sales: insert sale: %w", err)
		}
		if err := tx.InsertItems(ctx, items); err != nil {
			return fmt.Errorf("sales: insert items: %w", err)
		}

		if input.Method == MethodCredit {
			if !sale.Total.IsPositive() {
				return credits.ErrInvalidAmount
			}
			creditIn = credits.CreditSaleInput{
				CustomerID: *input.CustomerID,
				SaleID:     sale.ID,
				Amount:     sale.Total,
				At:         now,
			}
			posted, err := s.credit.PostCreditSaleTx(ctx, tx.Credits(), creditIn)
			if err != nil {
				return err
			}
			note = &posted
			return nil
		}
		return tx.InsertPayment(ctx, Payment{
			ID:         uuid.New(),
			CustomerID: input.CustomerID,
			SaleID:     sale.ID,
			Amount:     sale.Total,
			Method:     input.Method,
			ReceivedBy: sale.CreatedBy,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	result := CheckoutResult{Sale: sale, Credit: note}
	s.committed(ctx, &result, creditIn, productIDs)
	return result, nil
}

func (s *Service) committed(ctx context.Context, result *CheckoutResult, creditIn credits.CreditSaleInput, productIDs []uuid.UUID) {
	sale := result.Sale
	if s.audit != nil {
		meta := map[string]any{
			"total":  sale.Total.String(),
			"method": string(sale.Method),
			"items":  len(sale.Items),
		}
		if sale.CustomerID != nil {
			meta["customer_id"] = *sale.CustomerID
		}
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  sale.CreatedBy,
			Action:   "sales:checkout",
			Entity:   "sale",
			EntityID: sale.ID.String(),
			Meta:     meta,
			At:       sale.CreatedAt,
		}); err != nil {
			s.logger.Warn("audit sale", slog.String("sale_id", sale.ID.String()), slog.Any("error", err))
			result.Warnings = append(result.Warnings, "audit log not recorded")
		}
	}
	if result.Credit != nil {
		s.credit.CreditSaleCommitted(ctx, *result.Credit, creditIn)
	}
	s.stock.StockCommitted(ctx, productIDs)
	if s.notifier != nil {
		saleID := sale.ID
		s.notifier.Publish(ctx, shared.ChangeEvent{Type: shared.EventSalesUpdated, SaleID: &saleID, CustomerID: sale.CustomerID})
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("invalidate report cache", slog.Any("error", err))
		}
	}
	if s.metrics != nil {
		s.metrics.CheckoutCompleted(string(sale.Method), sale.Total.InexactFloat64())
	}
}

// Get loads a sale with items.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Sale, error) {
	return s.repo.Get(ctx, id)
}

// List returns sales created in [from, to).
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Sale, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, ErrInvalidRange
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}
