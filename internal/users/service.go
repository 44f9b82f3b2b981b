package users

import (
	"context"

	"github.com/mtr-industry/mtr-backoffice/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Profile, error)
	ListClients(ctx context.Context, limit, offset int) ([]Profile, int, error)
}

// Service handles user business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Get returns one profile.
func (s *Service) Get(ctx context.Context, id int64) (Profile, error) {
	return s.repo.Get(ctx, id)
}

// ClientPage is one page of client accounts.
type ClientPage struct {
	Items      []Profile         `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// ListClients pages through client accounts.
func (s *Service) ListClients(ctx context.Context, page, perPage int) (ClientPage, error) {
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := s.repo.ListClients(ctx, p.PerPage, p.Offset())
	if err != nil {
		return ClientPage{}, err
	}
	if items == nil {
		items = []Profile{}
	}
	return ClientPage{Items: items, Pagination: shared.NewPagination(p.Page, p.PerPage, total)}, nil
}
