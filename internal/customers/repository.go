package customers

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

const customerColumns = `id, name, phone, email, address, balance, created_at, updated_at`

// Repository persists customers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a new customer with a zero balance.
func (r *Repository) Insert(ctx context.Context, c Customer) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO customers (id, name, phone, email, address, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $6)`,
		c.ID, c.Name, nullText(c.Phone), nullText(c.Email), nullText(c.Address), c.CreatedAt)
	return err
}

// Update edits contact fields. The balance column is never written here.
func (r *Repository) Update(ctx context.Context, c Customer) (Customer, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE customers SET name = $2, phone = $3, email = $4, address = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING `+customerColumns,
		c.ID, c.Name, nullText(c.Phone), nullText(c.Email), nullText(c.Address))
	updated, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	return updated, err
}

// Get loads one customer.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Customer, error) {
	c, err := scanCustomer(r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	return c, err
}

// List returns customers ordered by name.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Customer, error) {
	var (
		where []string
		args  []any
	)
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		n := strconv.Itoa(len(args))
		where = append(where, "(name ILIKE $"+n+" OR phone ILIKE $"+n+")")
	}
	if filter.WithDebt {
		where = append(where, "balance > 0")
	}
	query := `SELECT ` + customerColumns + ` FROM customers`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += " ORDER BY name LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type txRepository struct {
	q db.DBTX
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithRetry(ctx, r.pool, db.DefaultAttempts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx})
	})
}

func (t *txRepository) LockCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	c, err := scanCustomer(t.q.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	return c, err
}

// History counts every credit note and payment of the customer, closed
// notes included.
func (t *txRepository) History(ctx context.Context, id uuid.UUID) (History, error) {
	var h History
	err := t.q.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM credits WHERE customer_id = $1),
			(SELECT COUNT(*) FROM payments WHERE customer_id = $1)`, id).
		Scan(&h.Credits, &h.Payments)
	return h, err
}

func (t *txRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var (
		c       Customer
		phone   pgtype.Text
		email   pgtype.Text
		address pgtype.Text
	)
	if err := row.Scan(&c.ID, &c.Name, &phone, &email, &address, &c.Balance, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Customer{}, err
	}
	c.Phone = phone.String
	c.Email = email.String
	c.Address = address.String
	return c, nil
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
