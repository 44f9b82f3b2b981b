package users

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mtr-industry/mtr-backoffice/internal/platform/db"
)

// Querier is the subset of pgxpool.Pool used by the repository.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db Querier
}

// NewRepository constructs a repository.
func NewRepository(db Querier) *Repository {
	return &Repository{db: db}
}

const profileColumns = `id, prenom, nom, email, num_tel, adresse, account_type, role, personal, company, is_active, created_at`

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.Address,
		&p.AccountType, &p.Role, &p.Personal, &p.Company, &p.IsActive, &p.CreatedAt)
	return p, err
}

// Get returns the profile of user id.
func (r *Repository) Get(ctx context.Context, id int64) (Profile, error) {
	p, err := scanProfile(r.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return Profile{}, db.MapError(err, fmt.Sprintf("users: get %d", id))
	}
	return p, nil
}

// ListClients returns client accounts, newest first, with the total count.
func (r *Repository) ListClients(ctx context.Context, limit, offset int) ([]Profile, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM users WHERE role = 'client'`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("users: count clients: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT `+profileColumns+` FROM users WHERE role = 'client'
ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("users: list clients: %w", err)
	}
	defer rows.Close()
	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("users: scan client: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
