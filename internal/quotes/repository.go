package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/mtr-industry/mtr-backoffice/internal/platform/db"
)

// DB is the subset of pgxpool.Pool used by the repository.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository persists quotes and the article catalogue.
type Repository struct {
	db DB
}

// NewRepository constructs a Repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

func scanArticle(row pgx.Row) (Article, error) {
	var (
		a     Article
		price string
	)
	if err := row.Scan(&a.ID, &a.Reference, &a.Designation, &a.Unit, &price); err != nil {
		return Article{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return Article{}, fmt.Errorf("quotes: article %s price %q: %w", a.Reference, price, err)
	}
	a.PriceHT = d
	return a, nil
}

// Articles loads the given articles keyed by id.
func (r *Repository) Articles(ctx context.Context, ids []int64) (map[int64]Article, error) {
	rows, err := r.db.Query(ctx, `SELECT id, reference, designation, unite, prix_ht::text
FROM articles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("quotes: articles: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]Article, len(ids))
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

// ListArticles returns the catalogue ordered by reference.
func (r *Repository) ListArticles(ctx context.Context) ([]Article, error) {
	rows, err := r.db.Query(ctx, `SELECT id, reference, designation, unite, prix_ht::text FROM articles ORDER BY reference`)
	if err != nil {
		return nil, fmt.Errorf("quotes: list articles: %w", err)
	}
	defer rows.Close()
	out := []Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertArticle stores a catalogue entry and sets its ID.
func (r *Repository) InsertArticle(ctx context.Context, a *Article) error {
	err := r.db.QueryRow(ctx, `INSERT INTO articles (reference, designation, unite, prix_ht)
VALUES ($1, $2, $3, $4::numeric) RETURNING id`, a.Reference, a.Designation, a.Unit, a.PriceHT.String()).Scan(&a.ID)
	return db.MapError(err, "quotes: article "+a.Reference)
}

// Insert stores q and sets its ID.
func (r *Repository) Insert(ctx context.Context, q *Quote) error {
	client, err := json.Marshal(q.Client)
	if err != nil {
		return err
	}
	items, err := json.Marshal(q.Items)
	if err != nil {
		return err
	}
	var fodec *string
	if q.Adjustments.FodecPct != nil {
		s := q.Adjustments.FodecPct.String()
		fodec = &s
	}
	const stmt = `INSERT INTO quotes (numero, user_id, client, items, fodec_pct, timbre, request_numeros, created_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8) RETURNING id`
	err = r.db.QueryRow(ctx, stmt, q.Number, q.UserID, client, items, fodec,
		q.Adjustments.StampDuty.String(), q.RequestNumbers, q.CreatedAt).Scan(&q.ID)
	return db.MapError(err, "quotes: insert "+q.Number)
}

const quoteColumns = `id, numero, user_id, client, items, fodec_pct::text, timbre::text, request_numeros, pdf_generated_at, created_at`

func scanQuote(row pgx.Row) (Quote, error) {
	var (
		q             Quote
		client, items []byte
		fodec         *string
		stamp         string
	)
	if err := row.Scan(&q.ID, &q.Number, &q.UserID, &client, &items, &fodec, &stamp,
		&q.RequestNumbers, &q.PDFGeneratedAt, &q.CreatedAt); err != nil {
		return Quote{}, err
	}
	if err := json.Unmarshal(client, &q.Client); err != nil {
		return Quote{}, fmt.Errorf("quotes: %s client: %w", q.Number, err)
	}
	if err := json.Unmarshal(items, &q.Items); err != nil {
		return Quote{}, fmt.Errorf("quotes: %s items: %w", q.Number, err)
	}
	if fodec != nil {
		d, err := decimal.NewFromString(*fodec)
		if err != nil {
			return Quote{}, err
		}
		q.Adjustments.FodecPct = &d
	}
	d, err := decimal.NewFromString(stamp)
	if err != nil {
		return Quote{}, err
	}
	q.Adjustments.StampDuty = d
	return q, nil
}

func (r *Repository) one(ctx context.Context, what, where string, arg any) (Quote, error) {
	q, err := scanQuote(r.db.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE `+where, arg))
	if err != nil {
		return Quote{}, db.MapError(err, "quotes: "+what)
	}
	return q, nil
}

// Get loads a quote by id.
func (r *Repository) Get(ctx context.Context, id int64) (Quote, error) {
	return r.one(ctx, "get "+strconv.FormatInt(id, 10), "id = $1", id)
}

// GetByNumber loads a quote by its DV number.
func (r *Repository) GetByNumber(ctx context.Context, number string) (Quote, error) {
	return r.one(ctx, "get "+number, "numero = $1", number)
}

// ByRequestNumber loads the latest quote covering a request number.
func (r *Repository) ByRequestNumber(ctx context.Context, number string) (Quote, error) {
	return r.one(ctx, "by request "+number, "$1 = ANY (request_numeros) ORDER BY created_at DESC, id DESC LIMIT 1", number)
}

func (r *Repository) list(ctx context.Context, where string, args []any, limit, offset int) ([]Quote, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM quotes`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("quotes: count: %w", err)
	}
	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM quotes%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		quoteColumns, where, n+1, n+2), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("quotes: list: %w", err)
	}
	defer rows.Close()
	out := []Quote{}
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, q)
	}
	return out, total, rows.Err()
}

// List pages through all quotes.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Quote, int, error) {
	return r.list(ctx, "", nil, limit, offset)
}

// ListByUser pages through the quotes of one client.
func (r *Repository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Quote, int, error) {
	return r.list(ctx, " WHERE user_id = $1", []any{userID}, limit, offset)
}

// PDF returns the stored rendering of a quote.
func (r *Repository) PDF(ctx context.Context, id int64) ([]byte, error) {
	var pdf []byte
	err := r.db.QueryRow(ctx, `SELECT pdf FROM quotes WHERE id = $1 AND pdf IS NOT NULL`, id).Scan(&pdf)
	if err != nil {
		return nil, db.MapError(err, "quotes: pdf")
	}
	return pdf, nil
}

// SavePDF stores a rendering.
func (r *Repository) SavePDF(ctx context.Context, id int64, pdf []byte, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE quotes SET pdf = $2, pdf_generated_at = $3 WHERE id = $1`, id, pdf, at)
	if err != nil {
		return fmt.Errorf("quotes: save pdf: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.MapError(pgx.ErrNoRows, "quotes: save pdf")
	}
	return nil
}

// MissingPDF lists quotes stored without a rendering, oldest first.
func (r *Repository) MissingPDF(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM quotes WHERE pdf IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("quotes: missing pdf: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
