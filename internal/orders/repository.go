package orders

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/mtr-industry/mtr-backoffice/internal/platform/db"
)

// DB is the subset of pgxpool.Pool used by the repository.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists orders in client_orders.
type Repository struct {
	db DB
}

// NewRepository constructs a Repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

const orderColumns = `id, user_id, quote_id, quote_numero, request_numeros, status, note, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		status string
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.QuoteID, &o.QuoteNumber, &o.RequestNumbers,
		&status, &o.Note, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	return o, nil
}

// Upsert confirms the order of (user, quote), reviving a cancelled one.
func (r *Repository) Upsert(ctx context.Context, o *Order) error {
	const q = `INSERT INTO client_orders (user_id, quote_id, quote_numero, request_numeros, status, note, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (user_id, quote_id) DO UPDATE
SET status = EXCLUDED.status, note = EXCLUDED.note, quote_numero = EXCLUDED.quote_numero,
    request_numeros = EXCLUDED.request_numeros, updated_at = EXCLUDED.updated_at
RETURNING ` + orderColumns
	out, err := scanOrder(r.db.QueryRow(ctx, q, o.UserID, o.QuoteID, o.QuoteNumber, o.RequestNumbers,
		string(o.Status), o.Note, o.UpdatedAt))
	if err != nil {
		return db.MapError(err, "orders: upsert")
	}
	*o = out
	return nil
}

// Get loads one order.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM client_orders WHERE id = $1`, id))
	if err != nil {
		return Order{}, db.MapError(err, "orders: get "+strconv.FormatInt(id, 10))
	}
	return o, nil
}

// SetStatus changes the status of an order.
func (r *Repository) SetStatus(ctx context.Context, id int64, status Status) (Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `UPDATE client_orders SET status = $2, updated_at = now()
WHERE id = $1 RETURNING `+orderColumns, id, string(status)))
	if err != nil {
		return Order{}, db.MapError(err, "orders: set status")
	}
	return o, nil
}

// Confirmed reports which of quoteIDs the user has a confirmed order for.
func (r *Repository) Confirmed(ctx context.Context, userID int64, quoteIDs []int64) (map[int64]bool, error) {
	rows, err := r.db.Query(ctx, `SELECT quote_id FROM client_orders
WHERE user_id = $1 AND quote_id = ANY($2) AND status = 'confirmed'`, userID, quoteIDs)
	if err != nil {
		return nil, fmt.Errorf("orders: status: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("orders: status: %w", err)
	}
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// List returns the orders of userID, or all orders when userID is zero.
func (r *Repository) List(ctx context.Context, userID int64, limit, offset int) ([]Order, error) {
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM client_orders
WHERE ($1::bigint = 0 OR user_id = $1) ORDER BY updated_at DESC, id DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("orders: list: %w", err)
	}
	defer rows.Close()
	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
