package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository runs the reporting queries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SalesSummary totals sales created in r.
func (r *Repository) SalesSummary(ctx context.Context, rg Range) (SalesSummary, error) {
	var s SalesSummary
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(total_amount), 0),
			COALESCE(SUM(total_cost), 0),
			COALESCE(SUM(total_amount) FILTER (WHERE status = 'credit'), 0)
		FROM sales WHERE created_at >= $1 AND created_at < $2`, rg.From, rg.To).
		Scan(&s.Count, &s.Total, &s.Cost, &s.OnCredit)
	if err != nil {
		return SalesSummary{}, err
	}
	s.Profit = s.Total.Sub(s.Cost)
	if s.Count > 0 {
		s.AvgTicket = s.Total.Div(decimal.NewFromInt(s.Count)).Round(2)
	}
	return s, nil
}

// PaymentsByMethod totals money received in r, sale tenders and credit
// payments alike.
func (r *Repository) PaymentsByMethod(ctx context.Context, rg Range) ([]MethodTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT method, COUNT(*), SUM(amount)
		FROM payments WHERE created_at >= $1 AND created_at < $2
		GROUP BY method ORDER BY method`, rg.From, rg.To)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (MethodTotal, error) {
		var m MethodTotal
		err := row.Scan(&m.Method, &m.Count, &m.Amount)
		return m, err
	})
}

// CreditSummary reports outstanding credit right now.
func (r *Repository) CreditSummary(ctx context.Context) (CreditSummary, error) {
	var c CreditSummary
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'open'),
			COALESCE(SUM(COALESCE(outstanding_amount, total_amount)) FILTER (WHERE status = 'open'), 0),
			COUNT(*) FILTER (WHERE status = 'overdue'),
			COALESCE(SUM(COALESCE(outstanding_amount, total_amount)) FILTER (WHERE status = 'overdue'), 0),
			COUNT(DISTINCT customer_id) FILTER (WHERE status IN ('open', 'overdue'))
		FROM credits`).
		Scan(&c.OpenCount, &c.OpenOutstanding, &c.OverdueCount, &c.OverdueOutstanding, &c.CustomersWithDebt)
	return c, err
}

// LowStock lists active products at or under their threshold.
func (r *Repository) LowStock(ctx context.Context, limit int) ([]LowStockItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, stock, low_stock_threshold, is_bulk
		FROM products
		WHERE active AND low_stock_threshold > 0 AND stock <= low_stock_threshold
		ORDER BY stock, name LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (LowStockItem, error) {
		var it LowStockItem
		err := row.Scan(&it.ProductID, &it.Name, &it.Stock, &it.Threshold, &it.IsBulk)
		return it, err
	})
}

// RecentSales returns the latest sales.
func (r *Repository) RecentSales(ctx context.Context, limit int) ([]RecentSale, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, COALESCE(c.name, ''), s.total_amount, s.status, s.created_at
		FROM sales s LEFT JOIN customers c ON c.id = s.customer_id
		ORDER BY s.created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (RecentSale, error) {
		var s RecentSale
		err := row.Scan(&s.ID, &s.CustomerName, &s.Total, &s.Status, &s.CreatedAt)
		return s, err
	})
}

// CreditRows returns every note for the spreadsheet, newest week first.
func (r *Repository) CreditRows(ctx context.Context) ([]CreditRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT cu.name, c.week_start, c.week_end, c.due_date, c.status, c.total_amount,
			COALESCE(c.outstanding_amount, c.total_amount)
		FROM credits c JOIN customers cu ON cu.id = c.customer_id
		ORDER BY c.week_start DESC, cu.name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (CreditRow, error) {
		var c CreditRow
		err := row.Scan(&c.CustomerName, &c.WeekStart, &c.WeekEnd, &c.DueDate, &c.Status, &c.Total, &c.Outstanding)
		return c, err
	})
}

// SaleRows returns sales created in r for the spreadsheet.
func (r *Repository) SaleRows(ctx context.Context, rg Range) ([]SaleRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.created_at, COALESCE(c.name, ''), s.status, COALESCE(s.payment_method, ''),
			(SELECT COUNT(*) FROM sale_items si WHERE si.sale_id = s.id),
			s.total_amount, s.total_cost
		FROM sales s LEFT JOIN customers c ON c.id = s.customer_id
		WHERE s.created_at >= $1 AND s.created_at < $2
		ORDER BY s.created_at`, rg.From, rg.To)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (SaleRow, error) {
		var s SaleRow
		err := row.Scan(&s.ID, &s.CreatedAt, &s.CustomerName, &s.Status, &s.Method, &s.Items, &s.Total, &s.Cost)
		return s, err
	})
}

// DumpTable returns the rows of table as a JSON array. Only names from
// BackupTables are accepted.
func (r *Repository) DumpTable(ctx context.Context, table string) (json.RawMessage, error) {
	if !slices.Contains(BackupTables, table) {
		return nil, fmt.Errorf("reports: table %q is not part of the backup", table)
	}
	var raw []byte
	query := `SELECT COALESCE(json_agg(t), '[]'::json) FROM ` + pgx.Identifier{table}.Sanitize() + ` t`
	if err := r.pool.QueryRow(ctx, query).Scan(&raw); err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}
