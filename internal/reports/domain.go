// Package reports builds the dashboard, spreadsheet exports and backups.
package reports

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nahum29/tiendita/internal/shared"
)

// Range is a half-open [From, To) interval.
type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SalesSummary aggregates sales in a range.
type SalesSummary struct {
	Count     int64           `json:"count"`
	Total     decimal.Decimal `json:"total"`
	Cost      decimal.Decimal `json:"cost"`
	Profit    decimal.Decimal `json:"profit"`
	OnCredit  decimal.Decimal `json:"on_credit"`
	AvgTicket decimal.Decimal `json:"avg_ticket"`
}

// MethodTotal is money taken per tender.
type MethodTotal struct {
	Method string          `json:"method"`
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// CreditSummary is the outstanding credit by status.
type CreditSummary struct {
	OpenCount          int64           `json:"open_count"`
	OpenOutstanding    decimal.Decimal `json:"open_outstanding"`
	OverdueCount       int64           `json:"overdue_count"`
	OverdueOutstanding decimal.Decimal `json:"overdue_outstanding"`
	CustomersWithDebt  int64           `json:"customers_with_debt"`
}

// LowStockItem is a product at or under its alert threshold.
type LowStockItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Stock     int64     `json:"stock"`
	Threshold int64     `json:"threshold"`
	IsBulk    bool      `json:"is_bulk"`
}

// RecentSale is one line of the recent sales widget.
type RecentSale struct {
	ID           uuid.UUID       `json:"id"`
	CustomerName string          `json:"customer_name,omitempty"`
	Total        decimal.Decimal `json:"total"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Dashboard is the cached home screen payload.
type Dashboard struct {
	Range       Range          `json:"range"`
	Sales       SalesSummary   `json:"sales"`
	Payments    []MethodTotal  `json:"payments"`
	Credit      CreditSummary  `json:"credit"`
	LowStock    []LowStockItem `json:"low_stock"`
	RecentSales []RecentSale   `json:"recent_sales"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// CreditRow is one line of the credits spreadsheet.
type CreditRow struct {
	CustomerName string
	WeekStart    time.Time
	WeekEnd      time.Time
	DueDate      time.Time
	Status       string
	Total        decimal.Decimal
	Outstanding  decimal.Decimal
}

// SaleRow is one line of the sales spreadsheet.
type SaleRow struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	CustomerName string
	Status       string
	Method       string
	Items        int64
	Total        decimal.Decimal
	Cost         decimal.Decimal
}

// BackupTables lists the tables dumped by Backup, in restore order.
var BackupTables = []string{
	"categories",
	"products",
	"customers",
	"sales",
	"sale_items",
	"credits",
	"credit_sales",
	"payments",
	"credit_payments",
	"stock_movements",
}

// Backup is a JSON snapshot of the store.
type Backup struct {
	GeneratedAt time.Time                  `json:"generated_at"`
	Tables      map[string]json.RawMessage `json:"tables"`
}

var ErrInvalidRange = shared.ValidationError("reports: from must be before to")
