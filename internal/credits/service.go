package credits

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nahum29/tiendita/internal/shared"
)

// RepositoryPort defines data access methods for credit notes.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAccount(ctx context.Context, customerID uuid.UUID) (Account, error)
	OutstandingFor(ctx context.Context, customerID uuid.UUID) (decimal.Decimal, error)
	GetNote(ctx context.Context, id uuid.UUID) (NoteView, error)
	ListNotes(ctx context.Context, filter NoteFilter) ([]NoteView, error)
	Totals(ctx context.Context) (Totals, error)
	GetPayment(ctx context.Context, id uuid.UUID) (Payment, error)
	ListPayments(ctx context.Context, customerID uuid.UUID, limit int) ([]Payment, error)
	ListAllocationsForPayment(ctx context.Context, paymentID uuid.UUID) ([]AllocationView, error)
	ListAllocationsForNote(ctx context.Context, creditID uuid.UUID) ([]AllocationView, error)
	UpdatePaymentNotes(ctx context.Context, paymentID uuid.UUID, notes string) error
	MarkOverdue(ctx context.Context, today time.Time) ([]Note, error)
	CountLegacyOutstanding(ctx context.Context) (int64, error)
	BackfillOutstanding(ctx context.Context) (int64, error)
	BalanceDrift(ctx context.Context) ([]Drift, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NotifierPort broadcasts change events to open screens.
type NotifierPort interface {
	Publish(ctx context.Context, evt shared.ChangeEvent)
}

// CacheInvalidator drops cached aggregates after a write.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// MetricsPort records business counters.
type MetricsPort interface {
	PaymentReceived(method string, applied, unallocated float64)
	CreditPosted(amount float64)
	NotesMarkedOverdue(count int)
}

// ServiceConfig groups settings and optional collaborators.
type ServiceConfig struct {
	SurplusPolicy SurplusPolicy
	Calendar      *Calendar
	Logger        *slog.Logger
	Notifier      NotifierPort
	Cache         CacheInvalidator
	Metrics       MetricsPort
}

// Service coordinates the credit ledger.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	policy   SurplusPolicy
	cal      *Calendar
	logger   *slog.Logger
	notifier NotifierPort
	cache    CacheInvalidator
	metrics  MetricsPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	if cfg.SurplusPolicy == "" {
		cfg.SurplusPolicy = SurplusReject
	}
	if cfg.Calendar == nil {
		cfg.Calendar = NewCalendar(time.UTC, nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		audit:    audit,
		policy:   cfg.SurplusPolicy,
		cal:      cfg.Calendar,
		logger:   cfg.Logger.With(slog.String("module", "credits")),
		notifier: cfg.Notifier,
		cache:    cfg.Cache,
		metrics:  cfg.Metrics,
	}
}

// Calendar exposes the store calendar used for week computations.
func (s *Service) Calendar() *Calendar {
	return s.cal
}

// SurplusPolicy reports the configured surplus handling.
func (s *Service) SurplusPolicy() SurplusPolicy {
	return s.policy
}

// CreditSaleInput describes a sale sold on credit.
type CreditSaleInput struct {
	CustomerID uuid.UUID
	SaleID     uuid.UUID
	Amount     decimal.Decimal
	At         time.Time
}

// PostCreditSale records a credit sale on the customer's open note for the
// sale's week in its own transaction.
func (s *Service) PostCreditSale(ctx context.Context, input CreditSaleInput) (Note, error) {
	var note Note
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		note, err = s.PostCreditSaleTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return Note{}, err
	}
	s.CreditSaleCommitted(ctx, note, input)
	return note, nil
}

// PostCreditSaleTx runs the credit sale posting on a caller owned transaction,
// letting checkout commit the sale and the credit together.
func (s *Service) PostCreditSaleTx(ctx context.Context, tx TxRepository, input CreditSaleInput) (Note, error) {
	if input.CustomerID == uuid.Nil {
		return Note{}, ErrCustomerRequired
	}
	if input.SaleID == uuid.Nil {
		return Note{}, shared.ValidationError("credits: sale required")
	}
	if err := checkAmount(input.Amount); err != nil {
		return Note{}, err
	}
	at := input.At
	if at.IsZero() {
		at = s.cal.Now()
	}
	if _, err := tx.LockAccount(ctx, input.CustomerID); err != nil {
		return Note{}, err
	}
	ledger := NewLedger(tx, s.cal.Now)
	note, err := ledger.FindOrCreateOpenNote(ctx, input.CustomerID, s.cal.WeekOf(at))
	if err != nil {
		return Note{}, fmt.Errorf("credits: find open note: %w", err)
	}
	note, err = ledger.PostCreditSale(ctx, note, input.Amount)
	if err != nil {
		return Note{}, err
	}
	if err := tx.LinkSale(ctx, note.ID, input.SaleID); err != nil {
		return Note{}, fmt.Errorf("credits: link sale: %w", err)
	}
	return note, nil
}

// CreditSaleCommitted runs the best-effort side effects of a committed credit
// sale: audit, notification, cache invalidation and metrics.
func (s *Service) CreditSaleCommitted(ctx context.Context, note Note, input CreditSaleInput) {
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  shared.OperatorFromContext(ctx),
			Action:   "credits:sale_posted",
			Entity:   "credit",
			EntityID: note.ID.String(),
			Meta: map[string]any{
				"customer_id": input.CustomerID,
				"sale_id":     input.SaleID,
				"amount":      input.Amount.String(),
				"week_start":  DateString(note.WeekStart),
			},
		}); err != nil {
			s.logger.Warn("audit credit sale", slog.String("credit_id", note.ID.String()), slog.Any("error", err))
		}
	}
	customerID := input.CustomerID
	s.publish(ctx, shared.ChangeEvent{Type: shared.EventCreditsUpdated, CustomerID: &customerID})
	s.bump(ctx)
	if s.metrics != nil {
		s.metrics.CreditPosted(input.Amount.InexactFloat64())
	}
}

// PaymentInput describes money received from a customer.
type PaymentInput struct {
	CustomerID uuid.UUID
	Amount     decimal.Decimal
	Method     Method
	Notes      string
	// CreditIDs restricts allocation to these notes. Empty means all of the
	// customer's open and overdue notes.
	CreditIDs  []uuid.UUID
	ReceivedBy uuid.UUID

	// IdempotencyKey is claimed inside the payment transaction, so a failed
	// attempt leaves it free for the retry.
	IdempotencyKey string
}

// AppliedAllocation reports what a payment did to one note.
type AppliedAllocation struct {
	CreditID  uuid.UUID       `json:"credit_id"`
	WeekStart time.Time       `json:"week_start"`
	WeekRange string          `json:"week_range,omitempty"`
	Paid      decimal.Decimal `json:"paid"`
	Before    decimal.Decimal `json:"before"`
	After     decimal.Decimal `json:"after"`
	Status    Status          `json:"status"`
}

// PaymentResult is the outcome of ReceivePayment. Warnings list best-effort
// steps that failed after the payment was committed.
type PaymentResult struct {
	Payment     Payment             `json:"payment"`
	Allocations []AppliedAllocation `json:"allocations"`
	Unallocated decimal.Decimal     `json:"unallocated"`
	Balance     decimal.Decimal     `json:"balance"`
	Warnings    []string            `json:"warnings,omitempty"`
}

// ReceivePayment records a payment and distributes it across the customer's
// notes, overdue first then oldest week. The payment row, note updates,
// allocation rows and balance change commit together or not at all.
func (s *Service) ReceivePayment(ctx context.Context, input PaymentInput) (PaymentResult, error) {
	if input.CustomerID == uuid.Nil {
		return PaymentResult{}, ErrCustomerRequired
	}
	if err := checkAmount(input.Amount); err != nil {
		return PaymentResult{}, err
	}
	if input.Method == "" {
		input.Method = MethodCash
	}
	if !input.Method.Valid() {
		return PaymentResult{}, ErrInvalidMethod
	}
	if input.ReceivedBy == uuid.Nil {
		input.ReceivedBy = shared.OperatorFromContext(ctx)
	}

	var (
		result PaymentResult
		plan   Plan
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		result = PaymentResult{}
		if input.IdempotencyKey != "" {
			if err := tx.ClaimKey(ctx, input.IdempotencyKey); err != nil {
				return err
			}
		}
		if _, err := tx.LockAccount(ctx, input.CustomerID); err != nil {
			return err
		}
		ledger := NewLedger(tx, s.cal.Now)
		notes, err := ledger.ListEligibleNotes(ctx, input.CustomerID)
		if err != nil {
			return fmt.Errorf("credits: list eligible notes: %w", err)
		}
		notes, err = selectNotes(notes, input.CreditIDs)
		if err != nil {
			return err
		}
		plan = Allocate(notes, input.Amount)
		if plan.Unallocated.IsPositive() && s.policy == SurplusReject {
			return ErrPaymentExceedsOutstanding
		}

		payment := Payment{
			ID:          uuid.New(),
			CustomerID:  input.CustomerID,
			Amount:      input.Amount,
			Unallocated: plan.Unallocated,
			Method:      input.Method,
			Notes:       input.Notes,
			ReceivedBy:  input.ReceivedBy,
			CreatedAt:   s.cal.Now(),
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return fmt.Errorf("credits: insert payment: %w", err)
		}

		rows := make([]Allocation, 0, len(plan.Allocations))
		for _, step := range plan.Allocations {
			updated, err := ledger.ApplyPaymentToNote(ctx, step.Note, step.Applied)
			if err != nil {
				return fmt.Errorf("credits: apply payment to %s: %w", step.Note.ID, err)
			}
			rows = append(rows, Allocation{
				CreditID:  updated.ID,
				PaymentID: payment.ID,
				Amount:    step.Applied,
				CreatedAt: payment.CreatedAt,
			})
			applied := AppliedAllocation{
				CreditID:  updated.ID,
				WeekStart: updated.WeekStart,
				Paid:      step.Applied,
				Before:    step.Before,
				After:     step.After,
				Status:    updated.Status,
			}
			if !updated.WeekStart.IsZero() {
				applied.WeekRange = FormatWeekRange(updated.WeekStart)
			}
			result.Allocations = append(result.Allocations, applied)
		}
		if len(rows) > 0 {
			if err := tx.InsertAllocations(ctx, rows); err != nil {
				return fmt.Errorf("credits: insert allocations: %w", err)
			}
		}

		balance, err := ledger.ReduceCustomerBalance(ctx, input.CustomerID, plan.Applied())
		if err != nil {
			return fmt.Errorf("credits: reduce balance: %w", err)
		}
		result.Payment = payment
		result.Unallocated = plan.Unallocated
		result.Balance = balance
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}

	s.paymentCommitted(ctx, &result, plan, input.Notes)
	return result, nil
}

func (s *Service) paymentCommitted(ctx context.Context, result *PaymentResult, plan Plan, originalNotes string) {
	log := s.logger.With(slog.String("payment_id", result.Payment.ID.String()))

	summary, err := BuildSummary(originalNotes, plan)
	if err == nil {
		err = s.repo.UpdatePaymentNotes(ctx, result.Payment.ID, summary)
	}
	if err != nil {
		log.Warn("store payment allocation summary", slog.Any("error", err))
		result.Warnings = append(result.Warnings, "allocation summary was not saved on the payment")
	} else {
		result.Payment.Notes = summary
	}

	if s.audit != nil {
		allocations := make([]map[string]any, 0, len(result.Allocations))
		for _, a := range result.Allocations {
			allocations = append(allocations, map[string]any{"credit_id": a.CreditID, "paid": a.Paid.String()})
		}
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  result.Payment.ReceivedBy,
			Action:   "credits:payment_received",
			Entity:   "payment",
			EntityID: result.Payment.ID.String(),
			Meta: map[string]any{
				"customer_id": result.Payment.CustomerID,
				"amount":      result.Payment.Amount.String(),
				"unallocated": result.Unallocated.String(),
				"allocations": allocations,
			},
		}); err != nil {
			log.Warn("audit payment", slog.Any("error", err))
			result.Warnings = append(result.Warnings, "audit log entry was not written")
		}
	}

	customerID := result.Payment.CustomerID
	s.publish(ctx, shared.ChangeEvent{Type: shared.EventCreditsUpdated, CustomerID: &customerID})
	s.bump(ctx)
	if s.metrics != nil {
		s.metrics.PaymentReceived(string(result.Payment.Method), plan.Applied().InexactFloat64(), result.Unallocated.InexactFloat64())
	}
	log.Info("payment received",
		slog.String("customer_id", customerID.String()),
		slog.String("amount", result.Payment.Amount.String()),
		slog.Int("notes", len(result.Allocations)),
		slog.String("unallocated", result.Unallocated.String()),
	)
}

func selectNotes(notes []Note, ids []uuid.UUID) ([]Note, error) {
	if len(ids) == 0 {
		return notes, nil
	}
	byID := make(map[uuid.UUID]Note, len(notes))
	for _, n := range notes {
		byID[n.ID] = n
	}
	selected := make([]Note, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		n, ok := byID[id]
		if !ok {
			return nil, ErrNoteNotEligible
		}
		selected = append(selected, n)
	}
	return selected, nil
}

// MarkOverdue flags open notes whose due date has passed. It returns the
// number of notes changed.
func (s *Service) MarkOverdue(ctx context.Context) (int, error) {
	today := s.cal.Today()
	notes, err := s.repo.MarkOverdue(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("credits: mark overdue: %w", err)
	}
	if len(notes) == 0 {
		return 0, nil
	}
	seen := make(map[uuid.UUID]struct{})
	for _, n := range notes {
		if _, ok := seen[n.CustomerID]; ok {
			continue
		}
		seen[n.CustomerID] = struct{}{}
		customerID := n.CustomerID
		s.publish(ctx, shared.ChangeEvent{Type: shared.EventCreditsUpdated, CustomerID: &customerID})
	}
	s.bump(ctx)
	if s.metrics != nil {
		s.metrics.NotesMarkedOverdue(len(notes))
	}
	s.logger.Info("notes marked overdue", slog.Int("count", len(notes)), slog.String("as_of", DateString(today)))
	return len(notes), nil
}

// BackfillReport summarises a legacy outstanding normalization run.
type BackfillReport struct {
	Candidates int64 `json:"candidates"`
	Updated    int64 `json:"updated"`
	Applied    bool  `json:"applied"`
}

// BackfillLegacyOutstanding copies total_amount into notes whose outstanding
// amount was never set. With apply false it only counts them.
func (s *Service) BackfillLegacyOutstanding(ctx context.Context, apply bool) (BackfillReport, error) {
	count, err := s.repo.CountLegacyOutstanding(ctx)
	if err != nil {
		return BackfillReport{}, fmt.Errorf("credits: count legacy notes: %w", err)
	}
	report := BackfillReport{Candidates: count, Applied: apply}
	if !apply || count == 0 {
		return report, nil
	}
	updated, err := s.repo.BackfillOutstanding(ctx)
	if err != nil {
		return report, fmt.Errorf("credits: backfill outstanding: %w", err)
	}
	report.Updated = updated
	s.bump(ctx)
	s.logger.Info("legacy outstanding backfilled", slog.Int64("updated", updated))
	return report, nil
}

// CheckBalances lists customers whose balance disagrees with their notes.
func (s *Service) CheckBalances(ctx context.Context) ([]Drift, error) {
	return s.repo.BalanceDrift(ctx)
}

// GetNote returns one note.
func (s *Service) GetNote(ctx context.Context, id uuid.UUID) (NoteView, error) {
	return s.repo.GetNote(ctx, id)
}

// ListNotes returns notes newest first.
func (s *Service) ListNotes(ctx context.Context, filter NoteFilter) ([]NoteView, error) {
	if filter.Status != "" && filter.Status != StatusOpen && filter.Status != StatusOverdue && filter.Status != StatusClosed {
		return nil, shared.ValidationError(fmt.Sprintf("credits: unknown status %q", filter.Status))
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return s.repo.ListNotes(ctx, filter)
}

// Totals summarises all notes by status.
func (s *Service) Totals(ctx context.Context) (Totals, error) {
	return s.repo.Totals(ctx)
}

// ListPayments returns a customer's payments newest first.
func (s *Service) ListPayments(ctx context.Context, customerID uuid.UUID, limit int) ([]Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListPayments(ctx, customerID, limit)
}

// Statement returns a customer's position. Outstanding covers every open and
// overdue note; Credits and Payments hold the most recent rows for display.
func (s *Service) Statement(ctx context.Context, customerID uuid.UUID) (Statement, error) {
	acct, err := s.repo.GetAccount(ctx, customerID)
	if err != nil {
		return Statement{}, err
	}
	owed, err := s.repo.OutstandingFor(ctx, customerID)
	if err != nil {
		return Statement{}, fmt.Errorf("credits: outstanding for %s: %w", customerID, err)
	}
	notes, err := s.ListNotes(ctx, NoteFilter{CustomerID: &customerID})
	if err != nil {
		return Statement{}, err
	}
	payments, err := s.ListPayments(ctx, customerID, 20)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		CustomerID:   acct.ID,
		CustomerName: acct.Name,
		Balance:      acct.Balance,
		Outstanding:  owed,
		Credits:      notes,
		Payments:     payments,
	}, nil
}

// PaymentAllocations returns the audit trail rows of one payment.
func (s *Service) PaymentAllocations(ctx context.Context, paymentID uuid.UUID) (Payment, []AllocationView, error) {
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, nil, err
	}
	rows, err := s.repo.ListAllocationsForPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, nil, err
	}
	return payment, rows, nil
}

// NoteAllocations returns every payment applied to a note.
func (s *Service) NoteAllocations(ctx context.Context, creditID uuid.UUID) ([]AllocationView, error) {
	if _, err := s.repo.GetNote(ctx, creditID); err != nil {
		return nil, err
	}
	return s.repo.ListAllocationsForNote(ctx, creditID)
}

func (s *Service) publish(ctx context.Context, evt shared.ChangeEvent) {
	if s.notifier != nil {
		s.notifier.Publish(ctx, evt)
	}
}

func (s *Service) bump(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("invalidate report cache", slog.Any("error", err))
	}
}
