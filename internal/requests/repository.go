package requests

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mtr-industry/mtr-backoffice/internal/platform/db"
	"github.com/mtr-industry/mtr-backoffice/internal/render"
)

// DB is the subset of pgxpool.Pool used by the repository.
type DB interface {
	db.TxBeginner
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository persists quote requests in Postgres.
type Repository struct {
	db DB
}

// NewRepository constructs a Repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// Insert stores req and its files in one transaction and sets req.ID.
func (r *Repository) Insert(ctx context.Context, req *Request) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		const q = `INSERT INTO quote_requests (numero, kind, user_id, spec, exigences, remarques, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
		err := tx.QueryRow(ctx, q, req.Number, string(req.Kind), req.UserID, []byte(req.Spec),
			req.Requirements, req.Remarks, req.CreatedAt).Scan(&req.ID)
		if err != nil {
			return db.MapError(err, "requests: insert")
		}
		for _, f := range req.Files {
			const fq = `INSERT INTO quote_request_files (id, request_id, filename, mimetype, size, data)
VALUES ($1, $2, $3, $4, $5, $6)`
			if _, err := tx.Exec(ctx, fq, f.ID, req.ID, f.Name, f.ContentType, f.Size, f.Data); err != nil {
				return fmt.Errorf("requests: insert file %s: %w", f.Name, err)
			}
		}
		return nil
	})
}

const requestColumns = `id, numero, kind, user_id, spec, exigences, remarques, pdf_generated_at, created_at`

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req  Request
		kind string
		spec []byte
	)
	if err := row.Scan(&req.ID, &req.Number, &kind, &req.UserID, &spec,
		&req.Requirements, &req.Remarks, &req.PDFGeneratedAt, &req.CreatedAt); err != nil {
		return Request{}, err
	}
	req.Kind = render.RequestKind(kind)
	req.Spec = spec
	return req, nil
}

// Get loads one request with its file metadata.
func (r *Repository) Get(ctx context.Context, id int64) (Request, error) {
	req, err := scanRequest(r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM quote_requests WHERE id = $1`, id))
	if err != nil {
		return Request{}, db.MapError(err, "requests: get "+strconv.FormatInt(id, 10))
	}
	files, err := r.files(ctx, id, false)
	if err != nil {
		return Request{}, err
	}
	req.Files = files
	return req, nil
}

// GetByNumber loads one request by its DDV number.
func (r *Repository) GetByNumber(ctx context.Context, number string) (Request, error) {
	req, err := scanRequest(r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM quote_requests WHERE numero = $1`, number))
	if err != nil {
		return Request{}, db.MapError(err, "requests: get "+number)
	}
	return req, nil
}

// Files returns the documents of a request with their content.
func (r *Repository) Files(ctx context.Context, requestID int64) ([]File, error) {
	return r.files(ctx, requestID, true)
}

func (r *Repository) files(ctx context.Context, requestID int64, withData bool) ([]File, error) {
	data := "NULL::bytea"
	if withData {
		data = "data"
	}
	rows, err := r.db.Query(ctx, `SELECT id, filename, mimetype, size, `+data+`
FROM quote_request_files WHERE request_id = $1 ORDER BY filename, id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("requests: files: %w", err)
	}
	defer rows.Close()
	files := []File{}
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.Name, &f.ContentType, &f.Size, &f.Data); err != nil {
			return nil, fmt.Errorf("requests: scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// File returns one document with its content.
func (r *Repository) File(ctx context.Context, requestID int64, fileID uuid.UUID) (File, error) {
	var f File
	err := r.db.QueryRow(ctx, `SELECT id, filename, mimetype, size, data
FROM quote_request_files WHERE request_id = $1 AND id = $2`, requestID, fileID).
		Scan(&f.ID, &f.Name, &f.ContentType, &f.Size, &f.Data)
	if err != nil {
		return File{}, db.MapError(err, "requests: file")
	}
	return f, nil
}

func (r *Repository) list(ctx context.Context, where []string, args []any, limit, offset int) ([]Request, int, error) {
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM quote_requests`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("requests: count: %w", err)
	}
	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM quote_requests%s
ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, requestColumns, clause, n+1, n+2), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("requests: list: %w", err)
	}
	defer rows.Close()
	out := []Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("requests: scan: %w", err)
		}
		out = append(out, req)
	}
	return out, total, rows.Err()
}

// ListByUser pages through the requests of one client.
func (r *Repository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Request, int, error) {
	return r.list(ctx, []string{"user_id = $1"}, []any{userID}, limit, offset)
}

// List pages through all requests matching f.
func (r *Repository) List(ctx context.Context, f Filter, limit, offset int) ([]Request, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if f.NumberPrefix != "" {
		args = append(args, strings.ToUpper(f.NumberPrefix)+"%")
		where = append(where, fmt.Sprintf("numero LIKE $%d", len(args)))
	}
	return r.list(ctx, where, args, limit, offset)
}

// NumbersWithoutQuote lists request numbers no quote references yet.
func (r *Repository) NumbersWithoutQuote(ctx context.Context, prefix string, limit int) ([]NumberRef, error) {
	const q = `SELECT r.numero, r.kind FROM quote_requests r
WHERE r.numero LIKE $1
  AND NOT EXISTS (SELECT 1 FROM quotes q WHERE r.numero = ANY (q.request_numeros))
ORDER BY r.numero LIMIT $2`
	rows, err := r.db.Query(ctx, q, strings.ToUpper(prefix)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("requests: numbers: %w", err)
	}
	defer rows.Close()
	out := []NumberRef{}
	for rows.Next() {
		var (
			ref  NumberRef
			kind string
		)
		if err := rows.Scan(&ref.Number, &kind); err != nil {
			return nil, err
		}
		ref.Kind = render.RequestKind(kind)
		out = append(out, ref)
	}
	return out, rows.Err()
}

// PDF returns the stored rendering, or ErrNotFound when none exists.
func (r *Repository) PDF(ctx context.Context, id int64) ([]byte, error) {
	var pdf []byte
	err := r.db.QueryRow(ctx, `SELECT pdf FROM quote_requests WHERE id = $1 AND pdf IS NOT NULL`, id).Scan(&pdf)
	if err != nil {
		return nil, db.MapError(err, "requests: pdf")
	}
	return pdf, nil
}

// SavePDF stores a rendering.
func (r *Repository) SavePDF(ctx context.Context, id int64, pdf []byte, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE quote_requests SET pdf = $2, pdf_generated_at = $3 WHERE id = $1`, id, pdf, at)
	if err != nil {
		return fmt.Errorf("requests: save pdf: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.MapError(pgx.ErrNoRows, "requests: save pdf")
	}
	return nil
}

// MissingPDF lists requests stored without a rendering, oldest first.
func (r *Repository) MissingPDF(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM quote_requests WHERE pdf IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("requests: missing pdf: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
