package complaints

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mtr-industry/mtr-backoffice/internal/platform/db"
)

// DB is the subset of pgxpool.Pool used by the repository.
type DB interface {
	db.TxBeginner
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository persists complaints and their files.
type Repository struct {
	db DB
}

// NewRepository constructs a Repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// Insert stores c with its files and sets c.ID.
func (r *Repository) Insert(ctx context.Context, c *Complaint) error {
	order, err := json.Marshal(c.Order)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		const q = `INSERT INTO complaints (numero, user_id, commande, nature, attente, description, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
		if err := tx.QueryRow(ctx, q, c.Number, c.UserID, order, c.Nature, c.Expectation,
			c.Description, c.CreatedAt).Scan(&c.ID); err != nil {
			return db.MapError(err, "complaints: insert")
		}
		for _, f := range c.Files {
			if _, err := tx.Exec(ctx, `INSERT INTO complaint_files (id, complaint_id, filename, mimetype, size, data)
VALUES ($1, $2, $3, $4, $5, $6)`, f.ID, c.ID, f.Name, f.ContentType, f.Size, f.Data); err != nil {
				return fmt.Errorf("complaints: insert file %s: %w", f.Name, err)
			}
		}
		return nil
	})
}

const complaintColumns = `id, numero, user_id, commande, nature, attente, description, pdf_generated_at, created_at`

func scanComplaint(row pgx.Row) (Complaint, error) {
	var (
		c     Complaint
		order []byte
	)
	if err := row.Scan(&c.ID, &c.Number, &c.UserID, &order, &c.Nature, &c.Expectation,
		&c.Description, &c.PDFGeneratedAt, &c.CreatedAt); err != nil {
		return Complaint{}, err
	}
	if err := json.Unmarshal(order, &c.Order); err != nil {
		return Complaint{}, fmt.Errorf("complaints: %s commande: %w", c.Number, err)
	}
	return c, nil
}

// Get loads a complaint with its file metadata.
func (r *Repository) Get(ctx context.Context, id int64) (Complaint, error) {
	c, err := scanComplaint(r.db.QueryRow(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE id = $1`, id))
	if err != nil {
		return Complaint{}, db.MapError(err, "complaints: get "+strconv.FormatInt(id, 10))
	}
	rows, err := r.db.Query(ctx, `SELECT id, filename, mimetype, size FROM complaint_files
WHERE complaint_id = $1 ORDER BY filename, id`, id)
	if err != nil {
		return Complaint{}, fmt.Errorf("complaints: files: %w", err)
	}
	defer rows.Close()
	c.Files = []File{}
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.Name, &f.ContentType, &f.Size); err != nil {
			return Complaint{}, err
		}
		c.Files = append(c.Files, f)
	}
	return c, rows.Err()
}

// Files returns the documents of a complaint with their content.
func (r *Repository) Files(ctx context.Context, id int64) ([]File, error) {
	rows, err := r.db.Query(ctx, `SELECT id, filename, mimetype, size, data FROM complaint_files
WHERE complaint_id = $1 ORDER BY filename, id`, id)
	if err != nil {
		return nil, fmt.Errorf("complaints: files: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (File, error) {
		var f File
		err := row.Scan(&f.ID, &f.Name, &f.ContentType, &f.Size, &f.Data)
		return f, err
	})
}

// File returns one document with its content.
func (r *Repository) File(ctx context.Context, id int64, fileID uuid.UUID) (File, error) {
	var f File
	err := r.db.QueryRow(ctx, `SELECT id, filename, mimetype, size, data FROM complaint_files
WHERE complaint_id = $1 AND id = $2`, id, fileID).Scan(&f.ID, &f.Name, &f.ContentType, &f.Size, &f.Data)
	if err != nil {
		return File{}, db.MapError(err, "complaints: file")
	}
	return f, nil
}

// List pages through the complaints of userID, or all when userID is zero.
func (r *Repository) List(ctx context.Context, userID int64, limit, offset int) ([]Complaint, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM complaints WHERE ($1::bigint = 0 OR user_id = $1)`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("complaints: count: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT `+complaintColumns+` FROM complaints
WHERE ($1::bigint = 0 OR user_id = $1) ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("complaints: list: %w", err)
	}
	defer rows.Close()
	out := []Complaint{}
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// PDF returns the stored rendering of a complaint.
func (r *Repository) PDF(ctx context.Context, id int64) ([]byte, error) {
	var pdf []byte
	err := r.db.QueryRow(ctx, `SELECT pdf FROM complaints WHERE id = $1 AND pdf IS NOT NULL`, id).Scan(&pdf)
	if err != nil {
		return nil, db.MapError(err, "complaints: pdf")
	}
	return pdf, nil
}

// SavePDF stores a rendering.
func (r *Repository) SavePDF(ctx context.Context, id int64, pdf []byte, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE complaints SET pdf = $2, pdf_generated_at = $3 WHERE id = $1`, id, pdf, at)
	if err != nil {
		return fmt.Errorf("complaints: save pdf: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.MapError(pgx.ErrNoRows, "complaints: save pdf")
	}
	return nil
}

// MissingPDF lists complaints stored without a rendering, oldest first.
func (r *Repository) MissingPDF(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM complaints WHERE pdf IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("complaints: missing pdf: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
