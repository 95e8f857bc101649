// Package customers manages the accounts that can buy on credit.
package customers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nahum29/tiendita/internal/shared"
)

// Customer is a store account. Balance is owned by the credit ledger and is
// read-only here.
type Customer struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Phone     string          `json:"phone,omitempty"`
	Email     string          `json:"email,omitempty"`
	Address   string          `json:"address,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Input carries the editable customer fields.
type Input struct {
	Name    string
	Phone   string
	Email   string
	Address string
}

// ListFilter narrows List.
type ListFilter struct {
	Query    string
	WithDebt bool
	Limit    int
	Offset   int
}

// History counts the ledger rows that reference a customer. Credit notes and
// payments are kept for the audit trail, so they pin the customer.
type History struct {
	Credits  int
	Payments int
}

// Empty reports whether no ledger row references the customer.
func (h History) Empty() bool {
	return h.Credits == 0 && h.Payments == 0
}

var (
	ErrNotFound     = shared.NotFoundError("customers: customer not found")
	ErrNameRequired = shared.ValidationError("customers: name required")
	ErrHasCredit    = shared.ConflictError("customers: customer has credit or payment history")
)
