package customers

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nahum29/tiendita/internal/shared"
)

// RepositoryPort defines customer persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, c Customer) error
	Update(ctx context.Context, c Customer) (Customer, error)
	Get(ctx context.Context, id uuid.UUID) (Customer, error)
	List(ctx context.Context, filter ListFilter) ([]Customer, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository holds the customer row locked while it is checked and removed,
// so no credit sale can land in between.
type TxRepository interface {
	LockCustomer(ctx context.Context, id uuid.UUID) (Customer, error)
	History(ctx context.Context, id uuid.UUID) (History, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages customer accounts.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger.With(slog.String("module", "customers")), now: time.Now}
}

func normalize(input Input) (Input, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Phone = strings.TrimSpace(input.Phone)
	input.Email = strings.TrimSpace(input.Email)
	input.Address = strings.TrimSpace(input.Address)
	if input.Name == "" {
		return input, ErrNameRequired
	}
	if input.Email != "" {
		if _, err := mail.ParseAddress(input.Email); err != nil {
			return input, shared.ValidationError("customers: invalid email")
		}
	}
	return input, nil
}

// Create registers a customer.
func (s *Service) Create(ctx context.Context, input Input) (Customer, error) {
	input, err := normalize(input)
	if err != nil {
		return Customer{}, err
	}
	now := s.now()
	c := Customer{
		ID:        uuid.New(),
		Name:      input.Name,
		Phone:     input.Phone,
		Email:     input.Email,
		Address:   input.Address,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		return Customer{}, err
	}
	s.record(ctx, "customers:created", c.ID, map[string]any{"name": c.Name})
	return c, nil
}

// Update edits contact data.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input Input) (Customer, error) {
	input, err := normalize(input)
	if err != nil {
		return Customer{}, err
	}
	c, err := s.repo.Update(ctx, Customer{
		ID:      id,
		Name:    input.Name,
		Phone:   input.Phone,
		Email:   input.Email,
		Address: input.Address,
	})
	if err != nil {
		return Customer{}, err
	}
	s.record(ctx, "customers:updated", id, map[string]any{"name": c.Name})
	return c, nil
}

// Get loads a customer with the current balance.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Customer, error) {
	return s.repo.Get(ctx, id)
}

// List searches customers by name or phone.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Customer, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

// Delete removes a customer with no credit notes and no payments.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	var c Customer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		c, err = tx.LockCustomer(ctx, id)
		if err != nil {
			return err
		}
		history, err := tx.History(ctx, id)
		if err != nil {
			return err
		}
		if !history.Empty() || c.Balance.IsPositive() {
			return ErrHasCredit
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, "customers:deleted", id, map[string]any{"name": c.Name})
	return nil
}

func (s *Service) record(ctx context.Context, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.OperatorFromContext(ctx),
		Action:   action,
		Entity:   "customer",
		EntityID: id.String(),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit customer", slog.String("action", action), slog.Any("error", err))
	}
}
