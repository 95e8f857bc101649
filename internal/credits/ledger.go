package credits

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxRepository exposes the statements the ledger runs inside one transaction.
type TxRepository interface {
	// LockAccount reads the customer row and holds its lock until the
	// transaction ends, serializing every credit mutation for that customer.
	LockAccount(ctx context.Context, customerID uuid.UUID) (Account, error)
	// ClaimKey records a request key on the transaction; a rollback releases it.
	ClaimKey(ctx context.Context, key string) error
	SetAccountBalance(ctx context.Context, customerID uuid.UUID, balance decimal.Decimal) error
	FindOpenNote(ctx context.Context, customerID uuid.UUID, weekStart time.Time) (Note, error)
	InsertNote(ctx context.Context, note Note) error
	SaveNote(ctx context.Context, note Note) error
	ListEligibleNotes(ctx context.Context, customerID uuid.UUID) ([]Note, error)
	LinkSale(ctx context.Context, creditID, saleID uuid.UUID) error
	InsertPayment(ctx context.Context, payment Payment) error
	InsertAllocations(ctx context.Context, rows []Allocation) error
}

// Ledger performs credit note mutations on a single transaction. Callers are
// expected to have locked the customer through LockAccount first.
type Ledger struct {
	tx  TxRepository
	now func() time.Time
}

// NewLedger binds a ledger to tx.
func NewLedger(tx TxRepository, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{tx: tx, now: now}
}

// FindOrCreateOpenNote returns the customer's open note for week, creating an
// empty one due at the end of the week when none exists.
func (l *Ledger) FindOrCreateOpenNote(ctx context.Context, customerID uuid.UUID, week Week) (Note, error) {
	note, err := l.tx.FindOpenNote(ctx, customerID, week.Start)
	if err == nil {
		return note, nil
	}
	if !errors.Is(err, ErrNoteNotFound) {
		return Note{}, err
	}
	note = Note{
		ID:          uuid.New(),
		CustomerID:  customerID,
		Total:       decimal.Zero,
		Outstanding: decimal.NewNullDecimal(decimal.Zero),
		Status:      StatusOpen,
		DueDate:     week.DueDate(),
		WeekStart:   week.Start,
		WeekEnd:     week.End,
		CreatedAt:   l.now(),
	}
	if err := l.tx.InsertNote(ctx, note); err != nil {
		return Note{}, err
	}
	return note, nil
}

// PostCreditSale adds amount to an open note and to the customer's balance.
func (l *Ledger) PostCreditSale(ctx context.Context, note Note, amount decimal.Decimal) (Note, error) {
	if err := checkAmount(amount); err != nil {
		return Note{}, err
	}
	if note.Status != StatusOpen {
		return Note{}, ErrNoteNotOpen
	}
	note.Total = note.Total.Add(amount)
	note.Outstanding = decimal.NewNullDecimal(note.Remaining().Add(amount))
	if err := l.tx.SaveNote(ctx, note); err != nil {
		return Note{}, err
	}
	if _, err := l.IncreaseCustomerBalance(ctx, note.CustomerID, amount); err != nil {
		return Note{}, err
	}
	return note, nil
}

// ListEligibleNotes returns the customer's open and overdue notes.
func (l *Ledger) ListEligibleNotes(ctx context.Context, customerID uuid.UUID) ([]Note, error) {
	return l.tx.ListEligibleNotes(ctx, customerID)
}

// ApplyPaymentToNote lowers the note's outstanding amount, closing it when
// nothing is left. A partially paid overdue note stays overdue.
func (l *Ledger) ApplyPaymentToNote(ctx context.Context, note Note, amount decimal.Decimal) (Note, error) {
	updated, err := applyPayment(note, amount)
	if err != nil {
		return Note{}, err
	}
	if err := l.tx.SaveNote(ctx, updated); err != nil {
		return Note{}, err
	}
	return updated, nil
}

// IncreaseCustomerBalance adds amount to the stored balance.
func (l *Ledger) IncreaseCustomerBalance(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	acct, err := l.tx.LockAccount(ctx, customerID)
	if err != nil {
		return decimal.Zero, err
	}
	balance := acct.Balance.Add(amount)
	if err := l.tx.SetAccountBalance(ctx, customerID, balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// ReduceCustomerBalance subtracts amount from the stored balance, never going
// below zero.
func (l *Ledger) ReduceCustomerBalance(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	acct, err := l.tx.LockAccount(ctx, customerID)
	if err != nil {
		return decimal.Zero, err
	}
	balance := floorZero(acct.Balance.Sub(amount))
	if err := l.tx.SetAccountBalance(ctx, customerID, balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func applyPayment(note Note, amount decimal.Decimal) (Note, error) {
	if !note.Status.Eligible() {
		return Note{}, ErrNoteNotEligible
	}
	if err := checkAmount(amount); err != nil {
		return Note{}, err
	}
	remaining := note.Remaining()
	if amount.GreaterThan(remaining) {
		return Note{}, ErrOverApplication
	}
	left := remaining.Sub(amount)
	note.Outstanding = decimal.NewNullDecimal(left)
	if left.IsZero() {
		note.Status = StatusClosed
	}
	return note, nil
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
