package sales

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nahum29/tiendita/internal/credits"
	"github.com/nahum29/tiendita/internal/inventory"
	"github.com/nahum29/tiendita/internal/platform/db"
	"github.com/nahum29/tiendita/internal/shared"
)

const idempotencyModule = "sales"

// KeyClaimer records a request key on the caller's transaction.
type KeyClaimer interface {
	Claim(ctx context.Context, q db.DBTX, key, module string) error
}

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	cal  *credits.Calendar
	keys KeyClaimer
}

// NewRepository constructs Repository. cal is handed to the credit
// statements run inside checkout.
func NewRepository(pool *pgxpool.Pool, cal *credits.Calendar, keys KeyClaimer) *Repository {
	return &Repository{pool: pool, cal: cal, keys: keys}
}

// TxRepository is the unit of work of one checkout. Stock and Credits share
// the same transaction.
type TxRepository interface {
	ClaimKey(ctx context.Context, key string) error
	InsertSale(ctx context.Context, sale Sale) error
	InsertItems(ctx context.Context, items []Item) error
	InsertPayment(ctx context.Context, payment Payment) error
	Stock() inventory.TxRepository
	Credits() credits.TxRepository
}

type txRepository struct {
	tx   pgx.Tx
	keys KeyClaimer
	cal  *credits.Calendar
}

// WithTx executes the checkout inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithRetry(ctx, r.pool, db.DefaultAttempts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, keys: r.keys, cal: r.cal})
	})
}

func (t *txRepository) ClaimKey(ctx context.Context, key string) error {
	if t.keys == nil {
		return nil
	}
	return t.keys.Claim(ctx, t.tx, key, idempotencyModule)
}

func (t *txRepository) InsertSale(ctx context.Context, sale Sale) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO sales (id, customer_id, total_amount, total_cost, status, payment_method, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sale.ID, sale.CustomerID, sale.Total, sale.TotalCost, string(sale.Status), string(sale.Method), sale.CreatedBy, sale.CreatedAt)
	return err
}

func (t *txRepository) InsertItems(ctx context.Context, items []Item) error {
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		rows = append(rows, []any{it.ID, it.SaleID, it.ProductID, it.Quantity, it.UnitPrice, it.TotalPrice})
	}
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"sale_items"},
		[]string{"id", "sale_id", "product_id", "quantity", "unit_price", "total_price"},
		pgx.CopyFromRows(rows))
	return err
}

func (t *txRepository) InsertPayment(ctx context.Context, p Payment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payments (id, customer_id, sale_id, amount, unallocated_amount, method, received_by, created_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7)`,
		p.ID, p.CustomerID, p.SaleID, p.Amount, string(p.Method), p.ReceivedBy, p.CreatedAt)
	return err
}

func (t *txRepository) Stock() inventory.TxRepository {
	return inventory.NewTxRepository(t.tx)
}

func (t *txRepository) Credits() credits.TxRepository {
	return credits.NewTxRepository(t.tx, t.cal)
}

const saleColumns = `s.id, s.customer_id, COALESCE(c.name, ''), s.total_amount, s.total_cost, s.status, s.payment_method, s.created_by, s.created_at`

// Get loads a sale with its items.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `
		SELECT `+saleColumns+`
		FROM sales s LEFT JOIN customers c ON c.id = s.customer_id
		WHERE s.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrSaleNotFound
	}
	if err != nil {
		return Sale{}, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT si.id, si.sale_id, si.product_id, p.name, p.is_bulk, si.quantity, si.unit_price, si.total_price
		FROM sale_items si JOIN products p ON p.id = si.product_id
		WHERE si.sale_id = $1
		ORDER BY p.name`, id)
	if err != nil {
		return Sale{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.ProductName, &it.IsBulk, &it.Quantity, &it.UnitPrice, &it.TotalPrice); err != nil {
			return Sale{}, err
		}
		sale.Items = append(sale.Items, it)
	}
	return sale, rows.Err()
}

// List returns sales newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Sale, error) {
	var (
		where []string
		args  []any
	)
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, "s.created_at >= $"+strconv.Itoa(len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, "s.created_at < $"+strconv.Itoa(len(args)))
	}
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		where = append(where, "s.customer_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, "s.status = $"+strconv.Itoa(len(args)))
	}
	query := `SELECT ` + saleColumns + ` FROM sales s LEFT JOIN customers c ON c.id = s.customer_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += " ORDER BY s.created_at DESC LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSale(row pgx.Row) (Sale, error) {
	var (
		s        Sale
		customer pgtype.UUID
		status   string
		method   pgtype.Text
	)
	if err := row.Scan(&s.ID, &customer, &s.CustomerName, &s.Total, &s.TotalCost, &status, &method, &s.CreatedBy, &s.CreatedAt); err != nil {
		return Sale{}, err
	}
	if customer.Valid {
		id := uuid.UUID(customer.Bytes)
		s.CustomerID = &id
	}
	s.Status = Status(status)
	s.Method = Method(method.String)
	if s.Method == "" && s.Status == StatusCredit {
		s.Method = MethodCredit
	}
	return s, nil
}

var _ KeyClaimer = (*shared.IdempotencyStore)(nil)
