package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nahum29/tiendita/internal/shared"
)

// GramsPerKilo converts bulk prices, stored per kilogram, to per gram.
const GramsPerKilo = 1000

var gramsPerKilo = decimal.NewFromInt(GramsPerKilo)

// Product is an item on the shelf. Bulk products keep stock and sale
// quantities in grams while Price and Cost are per kilogram.
type Product struct {
	ID                uuid.UUID       `json:"id"`
	SKU               string          `json:"sku,omitempty"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	Price             decimal.Decimal `json:"price"`
	Cost              decimal.Decimal `json:"cost"`
	Stock             int64           `json:"stock"`
	LowStockThreshold int64           `json:"low_stock_threshold"`
	CategoryID        *uuid.UUID      `json:"category_id,omitempty"`
	IsBulk            bool            `json:"is_bulk"`
	Active            bool            `json:"active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// UnitPrice is the price of one sale unit: one piece, or one gram for bulk.
func (p Product) UnitPrice() decimal.Decimal {
	if p.IsBulk {
		return p.Price.Div(gramsPerKilo)
	}
	return p.Price
}

// UnitCost is the cost of one sale unit.
func (p Product) UnitCost() decimal.Decimal {
	if p.IsBulk {
		return p.Cost.Div(gramsPerKilo)
	}
	return p.Cost
}

// LowStock reports whether stock reached the alert threshold.
func (p Product) LowStock() bool {
	return p.LowStockThreshold > 0 && p.Stock <= p.LowStockThreshold
}

// FormatQuantity renders a quantity the way the counter reads it.
func (p Product) FormatQuantity(qty int64) string {
	if p.IsBulk {
		return fmt.Sprintf("%d g", qty)
	}
	return fmt.Sprintf("%d", qty)
}

// StockLabel renders stock in kilograms for bulk products.
func (p Product) StockLabel() string {
	if p.IsBulk {
		return decimal.NewFromInt(p.Stock).Div(gramsPerKilo).StringFixed(2) + " kg"
	}
	return fmt.Sprintf("%d", p.Stock)
}

// Category groups products.
type Category struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Reason labels a stock movement.
type Reason string

const (
	ReasonSale       Reason = "sale"
	ReasonRestock    Reason = "restock"
	ReasonAdjustment Reason = "adjustment"
)

// Movement is one change to a product's stock.
type Movement struct {
	ID           uuid.UUID  `json:"id"`
	ProductID    uuid.UUID  `json:"product_id"`
	QtyChange    int64      `json:"qty_change"`
	BalanceAfter int64      `json:"balance_after"`
	Reason       Reason     `json:"reason"`
	Note         string     `json:"note,omitempty"`
	RefSaleID    *uuid.UUID `json:"ref_sale_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ProductInput carries the editable product fields.
type ProductInput struct {
	SKU               string
	Name              string
	Description       string
	Price             decimal.Decimal
	Cost              decimal.Decimal
	Stock             int64
	LowStockThreshold int64
	CategoryID        *uuid.UUID
	IsBulk            bool
	Active            bool
}

// AdjustmentInput changes stock outside of a sale.
type AdjustmentInput struct {
	ProductID uuid.UUID
	QtyChange int64
	Reason    Reason
	Note      string
}

// ProductFilter narrows ListProducts.
type ProductFilter struct {
	Query           string
	CategoryID      *uuid.UUID
	LowStockOnly    bool
	IncludeInactive bool
	Limit           int
	Offset          int
}

var (
	ErrProductNotFound   = shared.NotFoundError("inventory: product not found")
	ErrCategoryNotFound  = shared.NotFoundError("inventory: category not found")
	ErrNameRequired      = shared.ValidationError("inventory: name required")
	ErrInvalidPrice      = shared.ValidationError("inventory: price and cost must not be negative")
	ErrInvalidQuantity   = shared.ValidationError("inventory: quantity must be positive")
	ErrInvalidStock      = shared.ValidationError("inventory: stock and threshold must not be negative")
	ErrInvalidReason     = shared.ValidationError("inventory: unsupported adjustment reason")
	ErrProductInactive   = shared.ValidationError("inventory: product is not active")
	ErrInsufficientStock = shared.ConflictError("inventory: insufficient stock")
	ErrDuplicateSKU      = shared.ConflictError("inventory: sku already in use")
)
