package inventory

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nahum29/tiendita/internal/platform/db"
)

const productColumns = `id, sku, name, description, price, cost, stock, low_stock_threshold, category_id, is_bulk, active, created_at, updated_at`

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service and by
// checkout.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, id uuid.UUID) (Product, error)
	InsertProduct(ctx context.Context, p Product) error
	UpdateProduct(ctx context.Context, p Product) error
	SetStock(ctx context.Context, id uuid.UUID, stock int64) error
	InsertMovement(ctx context.Context, m Movement) error
}

type txRepository struct {
	q db.DBTX
}

// NewTxRepository binds the inventory statements to a caller owned
// transaction.
func NewTxRepository(q db.DBTX) TxRepository {
	return &txRepository{q: q}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithRetry(ctx, r.pool, db.DefaultAttempts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx})
	})
}

func (t *txRepository) GetProductForUpdate(ctx context.Context, id uuid.UUID) (Product, error) {
	p, err := scanProduct(t.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

func (t *txRepository) InsertProduct(ctx context.Context, p Product) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO products (id, sku, name, description, price, cost, stock, low_stock_threshold, category_id, is_bulk, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		p.ID, nullText(p.SKU), p.Name, nullText(p.Description), p.Price, p.Cost, p.Stock, p.LowStockThreshold,
		p.CategoryID, p.IsBulk, p.Active, p.CreatedAt,
	)
	return mapWriteError(err)
}

func (t *txRepository) UpdateProduct(ctx context.Context, p Product) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE products SET sku = $2, name = $3, description = $4, price = $5, cost = $6,
			low_stock_threshold = $7, category_id = $8, is_bulk = $9, active = $10, updated_at = NOW()
		WHERE id = $1`,
		p.ID, nullText(p.SKU), p.Name, nullText(p.Description), p.Price, p.Cost,
		p.LowStockThreshold, p.CategoryID, p.IsBulk, p.Active,
	)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (t *txRepository) SetStock(ctx context.Context, id uuid.UUID, stock int64) error {
	tag, err := t.q.Exec(ctx, `UPDATE products SET stock = $2, updated_at = NOW() WHERE id = $1`, id, stock)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (t *txRepository) InsertMovement(ctx context.Context, m Movement) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO stock_movements (id, product_id, qty_change, balance_after, reason, note, ref_sale_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.ProductID, m.QtyChange, m.BalanceAfter, string(m.Reason), nullText(m.Note), m.RefSaleID, m.CreatedAt,
	)
	return err
}

// GetProduct loads one product.
func (r *Repository) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// GetBySKU finds an active product by barcode, ignoring case.
func (r *Repository) GetBySKU(ctx context.Context, sku string) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE lower(sku) = lower($1) AND active ORDER BY created_at LIMIT 1`, sku))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// ListProducts returns products ordered by name.
func (r *Repository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	var (
		where []string
		args  []any
	)
	if !filter.IncludeInactive {
		where = append(where, "active")
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		where = append(where, "(name ILIKE $"+itoa(len(args))+" OR sku ILIKE $"+itoa(len(args))+")")
	}
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		where = append(where, "category_id = $"+itoa(len(args)))
	}
	if filter.LowStockOnly {
		where = append(where, "low_stock_threshold > 0 AND stock <= low_stock_threshold")
	}
	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += " ORDER BY name LIMIT $" + itoa(len(args)-1) + " OFFSET $" + itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListMovements returns the latest stock movements of a product.
func (r *Repository) ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, product_id, qty_change, balance_after, reason, note, ref_sale_id, created_at
		FROM stock_movements WHERE product_id = $1
		ORDER BY created_at DESC LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var (
			m      Movement
			reason string
			note   pgtype.Text
			ref    pgtype.UUID
		)
		if err := rows.Scan(&m.ID, &m.ProductID, &m.QtyChange, &m.BalanceAfter, &reason, &note, &ref, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Reason = Reason(reason)
		m.Note = note.String
		if ref.Valid {
			id := uuid.UUID(ref.Bytes)
			m.RefSaleID = &id
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListCategories returns all categories by name.
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertCategory stores a new category.
func (r *Repository) InsertCategory(ctx context.Context, c Category) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO categories (id, name, created_at) VALUES ($1, $2, $3)`, c.ID, c.Name, c.CreatedAt)
	return err
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p        Product
		sku      pgtype.Text
		desc     pgtype.Text
		category pgtype.UUID
	)
	err := row.Scan(&p.ID, &sku, &p.Name, &desc, &p.Price, &p.Cost, &p.Stock, &p.LowStockThreshold,
		&category, &p.IsBulk, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	p.SKU = sku.String
	p.Description = desc.String
	if category.Valid {
		id := uuid.UUID(category.Bytes)
		p.CategoryID = &id
	}
	return p, nil
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func mapWriteError(err error) error {
	if db.IsUniqueViolation(err) {
		return ErrDuplicateSKU
	}
	return err
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
