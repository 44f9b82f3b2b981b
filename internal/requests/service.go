package requests

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/mtr-industry/mtr-backoffice/internal/auth"
	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
	"github.com/mtr-industry/mtr-backoffice/internal/sequence"
	"github.com/mtr-industry/mtr-backoffice/internal/shared"
	"github.com/mtr-industry/mtr-backoffice/internal/users"
	"github.com/mtr-industry/mtr-backoffice/jobs"
)

// RepositoryPort defines data access methods for requests.
type RepositoryPort interface {
	Insert(ctx context.Context, req *Request) error
	Get(ctx context.Context, id int64) (Request, error)
	Files(ctx context.Context, requestID int64) ([]File, error)
	File(ctx context.Context, requestID int64, fileID uuid.UUID) (File, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Request, int, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]Request, int, error)
	NumbersWithoutQuote(ctx context.Context, prefix string, limit int) ([]NumberRef, error)
	PDF(ctx context.Context, id int64) ([]byte, error)
	SavePDF(ctx context.Context, id int64, pdf []byte, at time.Time) error
	MissingPDF(ctx context.Context, limit int) ([]int64, error)
}

// Numberer allocates document numbers.
type Numberer interface {
	Next(ctx context.Context, s sequence.Series) (string, error)
}

// Dispatcher queues background renders.
type Dispatcher interface {
	EnqueueRender(ctx context.Context, payload jobs.RenderPayload) (*asynq.TaskInfo, error)
}

// Profiles resolves the submitter of a request.
type Profiles interface {
	Get(ctx context.Context, id int64) (users.Profile, error)
}

// Service handles quote request business logic.
type Service struct {
	repo       RepositoryPort
	numbers    Numberer
	dispatcher Dispatcher
	profiles   Profiles
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
}

// NewService builds a Service.
func NewService(repo RepositoryPort, numbers Numberer, dispatcher Dispatcher, profiles Profiles, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		numbers:    numbers,
		dispatcher: dispatcher,
		profiles:   profiles,
		validate:   httpx.NewValidator(),
		logger:     logger,
		now:        time.Now,
	}
}

// Input is a request submission.
type Input struct {
	Kind         string
	Spec         []byte
	Requirements string
	Remarks      string
	Files        []File
}

// Created identifies a stored request.
type Created struct {
	ID     int64  `json:"id"`
	Number string `json:"numero"`
}

// Create validates and stores a request for userID, then queues its
// rendering and the notification emails.
func (s *Service) Create(ctx context.Context, userID int64, in Input) (Created, error) {
	kind, err := ParseKind(in.Kind)
	if err != nil {
		return Created{}, err
	}
	spec, err := DecodeSpec(s.validate, kind, in.Spec)
	if err != nil {
		return Created{}, err
	}
	if len(in.Files) > MaxFiles {
		return Created{}, fmt.Errorf("requests: %d files: %w", len(in.Files), ErrTooManyFiles)
	}
	for i := range in.Files {
		if in.Files[i].ID == uuid.Nil {
			in.Files[i].ID = uuid.New()
		}
		in.Files[i].Size = int64(len(in.Files[i].Data))
	}

	req := &Request{
		Kind:         kind,
		UserID:       userID,
		Spec:         spec,
		Requirements: strings.TrimSpace(in.Requirements),
		Remarks:      strings.TrimSpace(in.Remarks),
		Files:        in.Files,
		CreatedAt:    s.now().UTC(),
	}
	err = sequence.WithUniqueRetry(ctx, 0, func(ctx context.Context) error {
		number, err := s.numbers.Next(ctx, sequence.Requests)
		if err != nil {
			return err
		}
		req.Number = number
		return s.repo.Insert(ctx, req)
	})
	if err != nil {
		return Created{}, err
	}

	if _, err := s.dispatcher.EnqueueRender(ctx, jobs.RenderPayload{Kind: jobs.DocumentRequest, ID: req.ID, Notify: true}); err != nil {
		s.logger.Warn("queue request render",
			slog.Int64("request_id", req.ID), slog.String("numero", req.Number), slog.Any("error", err))
	}
	return Created{ID: req.ID, Number: req.Number}, nil
}

// authorize loads a request visible to id. Other clients' requests are
// reported as missing.
func (s *Service) authorize(ctx context.Context, id auth.Identity, requestID int64) (Request, error) {
	req, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if !id.IsAdmin() && req.UserID != id.UserID {
		return Request{}, fmt.Errorf("requests: %d: %w", requestID, httpx.ErrNotFound)
	}
	return req, nil
}

// Get returns one request visible to id.
func (s *Service) Get(ctx context.Context, id auth.Identity, requestID int64) (Request, error) {
	return s.authorize(ctx, id, requestID)
}

// Load returns one request without access checks, for background jobs.
func (s *Service) Load(ctx context.Context, requestID int64) (Request, error) {
	return s.repo.Get(ctx, requestID)
}

// Files returns the documents of a request with their content.
func (s *Service) Files(ctx context.Context, requestID int64) ([]File, error) {
	return s.repo.Files(ctx, requestID)
}

// File returns one document of a request visible to id.
func (s *Service) File(ctx context.Context, id auth.Identity, requestID int64, fileID uuid.UUID) (File, error) {
	if _, err := s.authorize(ctx, id, requestID); err != nil {
		return File{}, err
	}
	return s.repo.File(ctx, requestID, fileID)
}

// Page is one page of requests.
type Page struct {
	Items      []Request         `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func newPage(items []Request, p shared.Pagination, total int) Page {
	if items == nil {
		items = []Request{}
	}
	return Page{Items: items, Pagination: shared.NewPagination(p.Page, p.PerPage, total)}
}

// ListMine pages through the requests of the signed-in client.
func (s *Service) ListMine(ctx context.Context, userID int64, page, perPage int) (Page, error) {
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := s.repo.ListByUser(ctx, userID, p.PerPage, p.Offset())
	if err != nil {
		return Page{}, err
	}
	return newPage(items, p, total), nil
}

// List pages through all requests matching f.
func (s *Service) List(ctx context.Context, f Filter, page, perPage int) (Page, error) {
	f.NumberPrefix = strings.ToUpper(strings.TrimSpace(f.NumberPrefix))
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := s.repo.List(ctx, f, p.PerPage, p.Offset())
	if err != nil {
		return Page{}, err
	}
	return newPage(items, p, total), nil
}

// NumbersWithoutQuote lists request numbers that no quote references.
func (s *Service) NumbersWithoutQuote(ctx context.Context, prefix string, limit int) ([]NumberRef, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = sequence.Requests.Prefix
	}
	return s.repo.NumbersWithoutQuote(ctx, prefix, limit)
}

// Snapshot assembles the renderer input of a request.
func (s *Service) Snapshot(ctx context.Context, requestID int64) (Request, users.Profile, error) {
	req, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return Request{}, users.Profile{}, err
	}
	profile, err := s.profiles.Get(ctx, req.UserID)
	if err != nil {
		return Request{}, users.Profile{}, fmt.Errorf("requests: submitter of %s: %w", req.Number, err)
	}
	return req, profile, nil
}

// StoredPDF returns the stored rendering of a request.
func (s *Service) StoredPDF(ctx context.Context, requestID int64) ([]byte, error) {
	return s.repo.PDF(ctx, requestID)
}

// SavePDF stores a rendering of a request.
func (s *Service) SavePDF(ctx context.Context, requestID int64, pdf []byte) error {
	return s.repo.SavePDF(ctx, requestID, pdf, s.now().UTC())
}

// MissingPDF lists requests that still need a rendering.
func (s *Service) MissingPDF(ctx context.Context, limit int) ([]int64, error) {
	return s.repo.MissingPDF(ctx, limit)
}
