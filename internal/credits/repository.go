package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nahum29/tiendita/internal/platform/db"
)

const idempotencyModule = "credits.payment"

// KeyClaimer records a request key on the caller's transaction.
type KeyClaimer interface {
	Claim(ctx context.Context, q db.DBTX, key, module string) error
}

const noteColumns = `c.id, c.customer_id, c.total_amount, c.outstanding_amount, c.status, c.due_date, c.week_start, c.week_end, c.created_at`

// Repository provides PostgreSQL backed persistence for credit notes.
type Repository struct {
	pool *pgxpool.Pool
	cal  *Calendar
	keys KeyClaimer
}

// NewRepository constructs a repository. cal converts DATE columns into the
// store time zone; keys records payment Idempotency-Keys and may be nil.
func NewRepository(pool *pgxpool.Pool, cal *Calendar, keys KeyClaimer) *Repository {
	if cal == nil {
		cal = NewCalendar(time.UTC, nil)
	}
	return &Repository{pool: pool, cal: cal, keys: keys}
}

type txRepo struct {
	q    db.DBTX
	cal  *Calendar
	keys KeyClaimer
}

// NewTxRepository binds the ledger statements to an existing transaction so
// other modules can post credit inside their own unit of work.
func NewTxRepository(q db.DBTX, cal *Calendar) TxRepository {
	if cal == nil {
		cal = NewCalendar(time.UTC, nil)
	}
	return &txRepo{q: q, cal: cal}
}

// WithTx executes the callback inside a repeatable-read transaction,
// replaying it when PostgreSQL reports a serialization conflict.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithRetry(ctx, r.pool, db.DefaultAttempts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx, cal: r.cal, keys: r.keys})
	})
}

// --- transactional statements ---

func (t *txRepo) ClaimKey(ctx context.Context, key string) error {
	if t.keys == nil || key == "" {
		return nil
	}
	return t.keys.Claim(ctx, t.q, key, idempotencyModule)
}

func (t *txRepo) LockAccount(ctx context.Context, customerID uuid.UUID) (Account, error) {
	var acct Account
	err := t.q.QueryRow(ctx, `SELECT id, name, balance FROM customers WHERE id = $1 FOR UPDATE`, customerID).
		Scan(&acct.ID, &acct.Name, &acct.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrCustomerNotFound
	}
	return acct, err
}

func (t *txRepo) SetAccountBalance(ctx context.Context, customerID uuid.UUID, balance decimal.Decimal) error {
	tag, err := t.q.Exec(ctx, `UPDATE customers SET balance = $2, updated_at = NOW() WHERE id = $1`, customerID, balance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

func (t *txRepo) FindOpenNote(ctx context.Context, customerID uuid.UUID, weekStart time.Time) (Note, error) {
	query := `SELECT ` + noteColumns + ` FROM credits c
		WHERE c.customer_id = $1 AND c.week_start = $2::date AND c.status = 'open'
		ORDER BY c.created_at
		LIMIT 1
		FOR UPDATE`
	note, err := scanNote(t.q.QueryRow(ctx, query, customerID, DateString(weekStart)), t.cal)
	if errors.Is(err, pgx.ErrNoRows) {
		return Note{}, ErrNoteNotFound
	}
	return note, err
}

func (t *txRepo) InsertNote(ctx context.Context, note Note) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO credits (id, customer_id, total_amount, outstanding_amount, status, due_date, week_start, week_end, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7::date, $8::date, $9)`,
		note.ID, note.CustomerID, note.Total, note.Outstanding, string(note.Status),
		DateString(note.DueDate), DateString(note.WeekStart), DateString(note.WeekEnd), note.CreatedAt,
	)
	return err
}

func (t *txRepo) SaveNote(ctx context.Context, note Note) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE credits SET total_amount = $2, outstanding_amount = $3, status = $4
		WHERE id = $1`,
		note.ID, note.Total, note.Outstanding, string(note.Status),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoteNotFound
	}
	return nil
}

func (t *txRepo) ListEligibleNotes(ctx context.Context, customerID uuid.UUID) ([]Note, error) {
	query := `SELECT ` + noteColumns + ` FROM credits c
		WHERE c.customer_id = $1 AND c.status IN ('open', 'overdue')
		ORDER BY CASE c.status WHEN 'overdue' THEN 0 ELSE 1 END, COALESCE(c.week_start, c.created_at::date), c.created_at, c.id
		FOR UPDATE`
	rows, err := t.q.Query(ctx, query, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var notes []Note
	for rows.Next() {
		note, err := scanNote(rows, t.cal)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

func (t *txRepo) LinkSale(ctx context.Context, creditID, saleID uuid.UUID) error {
	_, err := t.q.Exec(ctx, `INSERT INTO credit_sales (credit_id, sale_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, creditID, saleID)
	return err
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO payments (id, customer_id, amount, unallocated_amount, method, notes, received_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.CustomerID, p.Amount, p.Unallocated, string(p.Method),
		pgtype.Text{String: p.Notes, Valid: p.Notes != ""}, nullUUID(p.ReceivedBy), p.CreatedAt,
	)
	return err
}

func (t *txRepo) InsertAllocations(ctx context.Context, rows []Allocation) error {
	for _, a := range rows {
		if !a.Amount.IsPositive() {
			return fmt.Errorf("credits: allocation for %s must be positive", a.CreditID)
		}
		if _, err := t.q.Exec(ctx, `
			INSERT INTO credit_payments (credit_id, payment_id, amount, created_at)
			VALUES ($1, $2, $3, $4)`,
			a.CreditID, a.PaymentID, a.Amount, a.CreatedAt,
		); err != nil {
			return err
		}
	}
	return nil
}

// --- read side ---

// GetAccount reads a customer without locking it.
func (r *Repository) GetAccount(ctx context.Context, customerID uuid.UUID) (Account, error) {
	var acct Account
	err := r.pool.QueryRow(ctx, `SELECT id, name, balance FROM customers WHERE id = $1`, customerID).
		Scan(&acct.ID, &acct.Name, &acct.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrCustomerNotFound
	}
	return acct, err
}

// OutstandingFor sums what a customer owes across open and overdue notes.
func (r *Repository) OutstandingFor(ctx context.Context, customerID uuid.UUID) (decimal.Decimal, error) {
	var owed decimal.Decimal
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(COALESCE(outstanding_amount, total_amount)), 0)
		FROM credits
		WHERE customer_id = $1 AND status IN ('open', 'overdue')`, customerID).Scan(&owed)
	return owed, err
}

// GetNote returns a note with its customer's name.
func (r *Repository) GetNote(ctx context.Context, id uuid.UUID) (NoteView, error) {
	query := `SELECT ` + noteColumns + `, cu.name FROM credits c
		JOIN customers cu ON cu.id = c.customer_id
		WHERE c.id = $1`
	view, err := scanNoteView(r.pool.QueryRow(ctx, query, id), r.cal)
	if errors.Is(err, pgx.ErrNoRows) {
		return NoteView{}, ErrNoteNotFound
	}
	return view, err
}

// ListNotes returns notes newest first.
func (r *Repository) ListNotes(ctx context.Context, filter NoteFilter) ([]NoteView, error) {
	var (
		where []string
		args  []any
	)
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		where = append(where, fmt.Sprintf("c.customer_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("c.status = $%d", len(args)))
	}
	query := `SELECT ` + noteColumns + `, cu.name FROM credits c JOIN customers cu ON cu.id = c.customer_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY c.created_at DESC, c.id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var views []NoteView
	for rows.Next() {
		view, err := scanNoteView(rows, r.cal)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, rows.Err()
}

// Totals aggregates notes by status.
func (r *Repository) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := r.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(COALESCE(outstanding_amount, total_amount)) FILTER (WHERE status = 'open'), 0),
			COALESCE(SUM(COALESCE(outstanding_amount, total_amount)) FILTER (WHERE status = 'overdue'), 0),
			COALESCE(SUM(total_amount) FILTER (WHERE status = 'closed'), 0),
			COALESCE(SUM(total_amount), 0),
			COUNT(*) FILTER (WHERE status = 'open'),
			COUNT(*) FILTER (WHERE status = 'overdue'),
			COUNT(*) FILTER (WHERE status = 'closed')
		FROM credits`).Scan(
		&t.OpenOutstanding, &t.OverdueOutstanding, &t.ClosedTotal, &t.Total,
		&t.OpenCount, &t.OverdueCount, &t.ClosedCount,
	)
	return t, err
}

const paymentColumns = `id, customer_id, amount, unallocated_amount, method, COALESCE(notes, ''), received_by, created_at`

// GetPayment loads one payment.
func (r *Repository) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	return p, err
}

// ListPayments returns a customer's payments newest first.
func (r *Repository) ListPayments(ctx context.Context, customerID uuid.UUID, limit int) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE customer_id = $1 AND sale_id IS NULL ORDER BY created_at DESC LIMIT $2`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

const allocationQuery = `
	SELECT cp.credit_id, cp.payment_id, cp.amount, cp.created_at, c.week_start, c.week_end, p.method, p.amount
	FROM credit_payments cp
	JOIN credits c ON c.id = cp.credit_id
	JOIN payments p ON p.id = cp.payment_id`

// ListAllocationsForPayment returns the allocation rows of one payment.
func (r *Repository) ListAllocationsForPayment(ctx context.Context, paymentID uuid.UUID) ([]AllocationView, error) {
	return r.listAllocations(ctx, allocationQuery+` WHERE cp.payment_id = $1 ORDER BY cp.created_at, c.week_start`, paymentID)
}

// ListAllocationsForNote returns the allocation rows of one note.
func (r *Repository) ListAllocationsForNote(ctx context.Context, creditID uuid.UUID) ([]AllocationView, error) {
	return r.listAllocations(ctx, allocationQuery+` WHERE cp.credit_id = $1 ORDER BY cp.created_at`, creditID)
}

func (r *Repository) listAllocations(ctx context.Context, query string, id uuid.UUID) ([]AllocationView, error) {
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var views []AllocationView
	for rows.Next() {
		var (
			v                  AllocationView
			weekStart, weekEnd pgtype.Date
			method             string
		)
		if err := rows.Scan(&v.CreditID, &v.PaymentID, &v.Amount, &v.CreatedAt, &weekStart, &weekEnd, &method, &v.PaymentAmount); err != nil {
			return nil, err
		}
		v.WeekStart = r.cal.InStore(dateOrZero(weekStart))
		v.WeekEnd = r.cal.InStore(dateOrZero(weekEnd))
		v.PaymentMethod = Method(method)
		views = append(views, v)
	}
	return views, rows.Err()
}

// UpdatePaymentNotes overwrites the payment's notes column.
func (r *Repository) UpdatePaymentNotes(ctx context.Context, paymentID uuid.UUID, notes string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE payments SET notes = $2 WHERE id = $1`, paymentID, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// MarkOverdue flips open notes due before today with something still owed.
func (r *Repository) MarkOverdue(ctx context.Context, today time.Time) ([]Note, error) {
	query := `UPDATE credits c SET status = 'overdue'
		WHERE c.status = 'open'
			AND c.due_date < $1::date
			AND COALESCE(c.outstanding_amount, c.total_amount) > 0
		RETURNING ` + noteColumns
	rows, err := r.pool.Query(ctx, query, DateString(today))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var notes []Note
	for rows.Next() {
		note, err := scanNote(rows, r.cal)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// CountLegacyOutstanding counts notes that predate the outstanding column.
func (r *Repository) CountLegacyOutstanding(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM credits WHERE outstanding_amount IS NULL`).Scan(&n)
	return n, err
}

// BackfillOutstanding sets outstanding from total on legacy rows. Closed rows
// get zero so status and outstanding stay consistent.
func (r *Repository) BackfillOutstanding(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE credits
		SET outstanding_amount = CASE WHEN status = 'closed' THEN 0 ELSE total_amount END
		WHERE outstanding_amount IS NULL`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// BalanceDrift lists customers whose balance differs from their open and
// overdue outstanding total.
func (r *Repository) BalanceDrift(ctx context.Context) ([]Drift, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT cu.id, cu.name, cu.balance, COALESCE(o.outstanding, 0)
		FROM customers cu
		LEFT JOIN (
			SELECT customer_id, SUM(COALESCE(outstanding_amount, total_amount)) AS outstanding
			FROM credits
			WHERE status IN ('open', 'overdue')
			GROUP BY customer_id
		) o ON o.customer_id = cu.id
		WHERE cu.balance <> COALESCE(o.outstanding, 0)
		ORDER BY cu.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var drifts []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.CustomerID, &d.Name, &d.Balance, &d.Outstanding); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

func scanNote(row pgx.Row, cal *Calendar) (Note, error) {
	var (
		n                           Note
		status                      string
		dueDate, weekStart, weekEnd pgtype.Date
	)
	if err := row.Scan(&n.ID, &n.CustomerID, &n.Total, &n.Outstanding, &status, &dueDate, &weekStart, &weekEnd, &n.CreatedAt); err != nil {
		return Note{}, err
	}
	n.Status = Status(status)
	n.DueDate = cal.InStore(dateOrZero(dueDate))
	n.WeekStart = cal.InStore(dateOrZero(weekStart))
	if weekEnd.Valid && !n.WeekStart.IsZero() {
		n.WeekEnd = WeekEnd(n.WeekStart)
	}
	return n, nil
}

func scanNoteView(row pgx.Row, cal *Calendar) (NoteView, error) {
	var (
		v                           NoteView
		status                      string
		dueDate, weekStart, weekEnd pgtype.Date
	)
	if err := row.Scan(&v.ID, &v.CustomerID, &v.Total, &v.Outstanding, &status, &dueDate, &weekStart, &weekEnd, &v.CreatedAt, &v.CustomerName); err != nil {
		return NoteView{}, err
	}
	v.Status = Status(status)
	v.DueDate = cal.InStore(dateOrZero(dueDate))
	v.WeekStart = cal.InStore(dateOrZero(weekStart))
	if weekEnd.Valid && !v.WeekStart.IsZero() {
		v.WeekEnd = WeekEnd(v.WeekStart)
	}
	if !v.WeekStart.IsZero() {
		v.WeekRange = FormatWeekRange(v.WeekStart)
	}
	return v, nil
}

func scanPayment(row pgx.Row) (Payment, error) {
	var (
		p          Payment
		method     string
		receivedBy pgtype.UUID
	)
	if err := row.Scan(&p.ID, &p.CustomerID, &p.Amount, &p.Unallocated, &method, &p.Notes, &receivedBy, &p.CreatedAt); err != nil {
		return Payment{}, err
	}
	p.Method = Method(method)
	if receivedBy.Valid {
		p.ReceivedBy = uuid.UUID(receivedBy.Bytes)
	}
	return p, nil
}

func dateOrZero(d pgtype.Date) time.Time {
	if !d.Valid {
		return time.Time{}
	}
	return d.Time
}

func nullUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}
