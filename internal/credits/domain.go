package credits

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nahum29/tiendita/internal/shared"
)

// Status captures the lifecycle of a weekly credit note.
type Status string

const (
	// StatusOpen accepts new credit sales for its week and payments.
	StatusOpen Status = "open"
	// StatusOverdue is an unpaid note past its due date. It only accepts payments.
	StatusOverdue Status = "overdue"
	// StatusClosed is terminal and reached when nothing is outstanding.
	StatusClosed Status = "closed"
)

// Eligible reports whether a note in this status can receive payments.
func (s Status) Eligible() bool {
	return s == StatusOpen || s == StatusOverdue
}

// Method identifies how a payment was tendered.
type Method string

const (
	MethodCash  Method = "cash"
	MethodCard  Method = "card"
	MethodOther Method = "other"
)

// Valid reports whether m is a supported tender.
func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodOther:
		return true
	}
	return false
}

// SurplusPolicy decides what happens to the part of a payment that exceeds
// the outstanding total of the notes it targets.
type SurplusPolicy string

const (
	// SurplusReject refuses the payment before anything is written.
	SurplusReject SurplusPolicy = "reject"
	// SurplusUnallocated records the payment and keeps the excess as
	// unallocated on the payment row.
	SurplusUnallocated SurplusPolicy = "unallocated"
)

// ParseSurplusPolicy validates a configured policy name. Empty means reject.
func ParseSurplusPolicy(v string) (SurplusPolicy, error) {
	switch SurplusPolicy(strings.ToLower(strings.TrimSpace(v))) {
	case "", SurplusReject:
		return SurplusReject, nil
	case SurplusUnallocated:
		return SurplusUnallocated, nil
	}
	return "", fmt.Errorf("credits: unknown surplus policy %q", v)
}

// Note is a weekly credit note: one customer's credit purchases for one
// Saturday to Friday week. Outstanding is NULL on rows written before the
// column existed.
type Note struct {
	ID          uuid.UUID           `json:"id"`
	CustomerID  uuid.UUID           `json:"customer_id"`
	Total       decimal.Decimal     `json:"total_amount"`
	Outstanding decimal.NullDecimal `json:"outstanding_amount"`
	Status      Status              `json:"status"`
	DueDate     time.Time           `json:"due_date"`
	WeekStart   time.Time           `json:"week_start"`
	WeekEnd     time.Time           `json:"week_end"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Remaining returns the amount still owed, treating a missing outstanding
// value as the full total.
func (n Note) Remaining() decimal.Decimal {
	if n.Outstanding.Valid {
		return n.Outstanding.Decimal
	}
	return n.Total
}

// Account is the slice of a customer the ledger needs.
type Account struct {
	ID      uuid.UUID       `json:"id"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

// Payment is money received from a customer.
type Payment struct {
	ID          uuid.UUID       `json:"id"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	Amount      decimal.Decimal `json:"amount"`
	Unallocated decimal.Decimal `json:"unallocated_amount"`
	Method      Method          `json:"method"`
	Notes       string          `json:"notes,omitempty"`
	ReceivedBy  uuid.UUID       `json:"received_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Allocation is one row of the audit trail: part of a payment applied to a note.
type Allocation struct {
	CreditID  uuid.UUID       `json:"credit_id"`
	PaymentID uuid.UUID       `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// AllocationView joins an allocation with its note and payment for display.
type AllocationView struct {
	Allocation
	WeekStart     time.Time       `json:"week_start"`
	WeekEnd       time.Time       `json:"week_end"`
	PaymentMethod Method          `json:"payment_method"`
	PaymentAmount decimal.Decimal `json:"payment_amount"`
}

// NoteView is a note with the customer name and a printable week label.
type NoteView struct {
	Note
	CustomerName string `json:"customer_name"`
	WeekRange    string `json:"week_range"`
}

// Statement is what a customer owes and how they got there.
type Statement struct {
	CustomerID   uuid.UUID       `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	Balance      decimal.Decimal `json:"balance"`
	Outstanding  decimal.Decimal `json:"outstanding"`
	Credits      []NoteView      `json:"credits"`
	Payments     []Payment       `json:"payments"`
}

// NoteFilter narrows ListNotes.
type NoteFilter struct {
	CustomerID *uuid.UUID
	Status     Status
	Limit      int
	Offset     int
}

// Totals summarises all notes.
type Totals struct {
	OpenOutstanding    decimal.Decimal `json:"open_outstanding"`
	OverdueOutstanding decimal.Decimal `json:"overdue_outstanding"`
	ClosedTotal        decimal.Decimal `json:"closed_total"`
	Total              decimal.Decimal `json:"total"`
	OpenCount          int             `json:"open_count"`
	OverdueCount       int             `json:"overdue_count"`
	ClosedCount        int             `json:"closed_count"`
}

// Drift reports a customer whose stored balance disagrees with the sum of
// their eligible notes.
type Drift struct {
	CustomerID  uuid.UUID       `json:"customer_id"`
	Name        string          `json:"name"`
	Balance     decimal.Decimal `json:"balance"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

// Difference is balance minus outstanding.
func (d Drift) Difference() decimal.Decimal {
	return d.Balance.Sub(d.Outstanding)
}

var (
	ErrInvalidAmount             = shared.ValidationError("credits: amount must be positive")
	ErrAmountPrecision           = shared.ValidationError("credits: amount must not have fractions of a cent")
	ErrInvalidMethod             = shared.ValidationError("credits: unsupported payment method")
	ErrCustomerRequired          = shared.ValidationError("credits: customer required")
	ErrPaymentExceedsOutstanding = shared.ValidationError("credits: payment exceeds outstanding balance of the selected notes")
	ErrNoteNotEligible           = shared.ValidationError("credits: note is not open or overdue for this customer")
	ErrOverApplication           = shared.ValidationError("credits: amount exceeds note outstanding")
	ErrNoteNotOpen               = shared.ConflictError("credits: only open notes accept credit sales")
	ErrNoteNotFound              = shared.NotFoundError("credits: note not found")
	ErrCustomerNotFound          = shared.NotFoundError("credits: customer not found")
	ErrPaymentNotFound           = shared.NotFoundError("credits: payment not found")
)

// moneyPlaces is the scale of every money column.
const moneyPlaces = 2

// checkAmount accepts positive amounts expressed in whole cents.
func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(moneyPlaces)) {
		return ErrAmountPrecision
	}
	return nil
}
