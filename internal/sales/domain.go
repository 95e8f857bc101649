// Package sales implements the point of sale checkout.
package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nahum29/tiendita/internal/shared"
)

// Status of a sale.
type Status string

const (
	StatusPaid   Status = "paid"
	StatusCredit Status = "credit"
)

// Method is how the customer settles the sale at the counter.
type Method string

const (
	MethodCash   Method = "cash"
	MethodCard   Method = "card"
	MethodCredit Method = "credit"
)

// Valid reports whether m is a supported checkout method.
func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodCredit:
		return true
	}
	return false
}

// Sale is a completed checkout.
type Sale struct {
	ID           uuid.UUID       `json:"id"`
	CustomerID   *uuid.UUID      `json:"customer_id,omitempty"`
	CustomerName string          `json:"customer_name,omitempty"`
	Total        decimal.Decimal `json:"total_amount"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	Status       Status          `json:"status"`
	Method       Method          `json:"method"`
	CreatedBy    uuid.UUID       `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	Items        []Item          `json:"items,omitempty"`
}

// Profit is total minus cost.
func (s Sale) Profit() decimal.Decimal {
	return s.Total.Sub(s.TotalCost)
}

// Item is one sold line. Quantity is in grams for bulk products and
// UnitPrice is then the price per gram.
type Item struct {
	ID          uuid.UUID       `json:"id"`
	SaleID      uuid.UUID       `json:"sale_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	IsBulk      bool            `json:"is_bulk"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// QuantityLabel renders the quantity as printed on the ticket.
func (i Item) QuantityLabel() string {
	if i.IsBulk {
		return decimal.NewFromInt(i.Quantity).String() + " g"
	}
	return decimal.NewFromInt(i.Quantity).String()
}

// Payment is the tender row written for cash and card sales.
type Payment struct {
	ID         uuid.UUID       `json:"id"`
	CustomerID *uuid.UUID      `json:"customer_id,omitempty"`
	SaleID     uuid.UUID       `json:"sale_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     Method          `json:"method"`
	ReceivedBy uuid.UUID       `json:"received_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

// LineInput is one cart line. UnitPrice overrides the catalogue price; for
// bulk products it is per gram.
type LineInput struct {
	ProductID uuid.UUID
	Quantity  int64
	UnitPrice *decimal.Decimal
}

// CheckoutInput describes a cart being paid.
type CheckoutInput struct {
	CustomerID     *uuid.UUID
	Method         Method
	Items          []LineInput
	IdempotencyKey string
}

// ListFilter narrows List to a creation time range.
type ListFilter struct {
	From       *time.Time
	To         *time.Time
	CustomerID *uuid.UUID
	Status     Status
	Limit      int
	Offset     int
}

var (
	ErrSaleNotFound     = shared.NotFoundError("sales: sale not found")
	ErrEmptyCart        = shared.ValidationError("sales: cart is empty")
	ErrCustomerRequired = shared.ValidationError("sales: credit sales require a customer")
	ErrInvalidMethod    = shared.ValidationError("sales: unsupported payment method")
	ErrInvalidQuantity  = shared.ValidationError("sales: quantity must be positive")
	ErrInvalidPrice     = shared.ValidationError("sales: unit price must not be negative")
	ErrInvalidRange     = shared.ValidationError("sales: from must not be after to")
)
