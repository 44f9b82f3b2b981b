package complaints

import (
	"context"
	"fmt"
	"log/slog"
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

// RepositoryPort defines data access methods for complaints.
type RepositoryPort interface {
	Insert(ctx context.Context, c *Complaint) error
	Get(ctx context.Context, id int64) (Complaint, error)
	Files(ctx context.Context, id int64) ([]File, error)
	File(ctx context.Context, id int64, fileID uuid.UUID) (File, error)
	List(ctx context.Context, userID int64, limit, offset int) ([]Complaint, int, error)
	PDF(ctx context.Context, id int64) ([]byte, error)
	SavePDF(ctx context.Context, id int64, pdf []byte, at time.Time) error
	MissingPDF(ctx context.Context, limit int) ([]int64, error)
}

// Numberer allocates complaint numbers.
type Numberer interface {
	Next(ctx context.Context, s sequence.Series) (string, error)
}

// Dispatcher queues background renders.
type Dispatcher interface {
	EnqueueRender(ctx context.Context, payload jobs.RenderPayload) (*asynq.TaskInfo, error)
}

// Profiles resolves the client behind a complaint.
type Profiles interface {
	Get(ctx context.Context, id int64) (users.Profile, error)
}

// Service handles complaint business logic.
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

// Created identifies a stored complaint.
type Created struct {
	ID     int64  `json:"id"`
	Number string `json:"numero"`
}

// Create stores a complaint filed by userID and queues its rendering and
// the email to the commercial team.
func (s *Service) Create(ctx context.Context, userID int64, in Input) (Created, error) {
	in.normalize()
	if len(in.Files) > MaxFiles {
		return Created{}, fmt.Errorf("complaints: %d files: %w", len(in.Files), ErrTooManyFiles)
	}
	if err := s.validate.Struct(in); err != nil {
		return Created{}, err
	}
	for i := range in.Files {
		if in.Files[i].ID == uuid.Nil {
			in.Files[i].ID = uuid.New()
		}
		in.Files[i].Size = int64(len(in.Files[i].Data))
	}

	c := &Complaint{
		UserID:      userID,
		Order:       in.Order,
		Nature:      in.Nature,
		Expectation: in.Expectation,
		Description: in.Description,
		Files:       in.Files,
		CreatedAt:   s.now().UTC(),
	}
	err := sequence.WithUniqueRetry(ctx, 0, func(ctx context.Context) error {
		number, err := s.numbers.Next(ctx, sequence.Complaints)
		if err != nil {
			return err
		}
		c.Number = number
		return s.repo.Insert(ctx, c)
	})
	if err != nil {
		return Created{}, err
	}

	if _, err := s.dispatcher.EnqueueRender(ctx, jobs.RenderPayload{Kind: jobs.DocumentComplaint, ID: c.ID, Notify: true}); err != nil {
		s.logger.Warn("queue complaint render",
			slog.Int64("complaint_id", c.ID), slog.String("numero", c.Number), slog.Any("error", err))
	}
	return Created{ID: c.ID, Number: c.Number}, nil
}

// Get returns one complaint visible to id. Other clients' complaints are
// reported as missing.
func (s *Service) Get(ctx context.Context, id auth.Identity, complaintID int64) (Complaint, error) {
	c, err := s.repo.Get(ctx, complaintID)
	if err != nil {
		return Complaint{}, err
	}
	if !id.IsAdmin() && c.UserID != id.UserID {
		return Complaint{}, fmt.Errorf("complaints: %d: %w", complaintID, httpx.ErrNotFound)
	}
	return c, nil
}

// Load returns one complaint without access checks.
func (s *Service) Load(ctx context.Context, complaintID int64) (Complaint, error) {
	return s.repo.Get(ctx, complaintID)
}

// Files returns the documents of a complaint with their content.
func (s *Service) Files(ctx context.Context, complaintID int64) ([]File, error) {
	return s.repo.Files(ctx, complaintID)
}

// File returns one document of a complaint visible to id.
func (s *Service) File(ctx context.Context, id auth.Identity, complaintID int64, fileID uuid.UUID) (File, error) {
	if _, err := s.Get(ctx, id, complaintID); err != nil {
		return File{}, err
	}
	return s.repo.File(ctx, complaintID, fileID)
}

// Page is one page of complaints.
type Page struct {
	Items      []Complaint       `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// List pages through the complaints visible to id: all of them for
// administrators, their own for clients.
func (s *Service) List(ctx context.Context, id auth.Identity, page, perPage int) (Page, error) {
	owner := id.UserID
	if id.IsAdmin() {
		owner = 0
	}
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := s.repo.List(ctx, owner, p.PerPage, p.Offset())
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []Complaint{}
	}
	return Page{Items: items, Pagination: shared.NewPagination(p.Page, p.PerPage, total)}, nil
}

// Snapshot loads a complaint with the profile of the client who filed it.
func (s *Service) Snapshot(ctx context.Context, complaintID int64) (Complaint, users.Profile, error) {
	c, err := s.repo.Get(ctx, complaintID)
	if err != nil {
		return Complaint{}, users.Profile{}, err
	}
	profile, err := s.profiles.Get(ctx, c.UserID)
	if err != nil {
		return Complaint{}, users.Profile{}, fmt.Errorf("complaints: client of %s: %w", c.Number, err)
	}
	return c, profile, nil
}

// StoredPDF returns the stored rendering of a complaint.
func (s *Service) StoredPDF(ctx context.Context, complaintID int64) ([]byte, error) {
	return s.repo.PDF(ctx, complaintID)
}

// SavePDF stores a rendering of a complaint.
func (s *Service) SavePDF(ctx context.Context, complaintID int64, pdf []byte) error {
	return s.repo.SavePDF(ctx, complaintID, pdf, s.now().UTC())
}

// MissingPDF lists complaints that still need a rendering.
func (s *Service) MissingPDF(ctx context.Context, limit int) ([]int64, error) {
	return s.repo.MissingPDF(ctx, limit)
}
