package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/mtr-industry/mtr-backoffice/internal/auth"
	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
	"github.com/mtr-industry/mtr-backoffice/internal/quotes"
	"github.com/mtr-industry/mtr-backoffice/internal/shared"
	"github.com/mtr-industry/mtr-backoffice/jobs"
)

// RepositoryPort defines data access methods for orders.
type RepositoryPort interface {
	Upsert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id int64) (Order, error)
	SetStatus(ctx context.Context, id int64, status Status) (Order, error)
	Confirmed(ctx context.Context, userID int64, quoteIDs []int64) (map[int64]bool, error)
	List(ctx context.Context, userID int64, limit, offset int) ([]Order, error)
}

// QuoteSource loads the quote being ordered.
type QuoteSource interface {
	Load(ctx context.Context, id int64) (quotes.Quote, error)
}

// Dispatcher queues the confirmation email.
type Dispatcher interface {
	EnqueueRender(ctx context.Context, payload jobs.RenderPayload) (*asynq.TaskInfo, error)
}

// Service handles order business logic.
type Service struct {
	repo       RepositoryPort
	quotes     QuoteSource
	dispatcher Dispatcher
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
}

// NewService builds a Service.
func NewService(repo RepositoryPort, quoteSource QuoteSource, dispatcher Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		quotes:     quoteSource,
		dispatcher: dispatcher,
		validate:   httpx.NewValidator(),
		logger:     logger,
		now:        time.Now,
	}
}

// Place confirms the quote for its owner and queues the admin email.
// Placing again refreshes the note and revives a cancelled order.
func (s *Service) Place(ctx context.Context, userID int64, in PlaceInput) (Order, error) {
	in.Note = strings.TrimSpace(in.Note)
	if err := s.validate.Struct(in); err != nil {
		return Order{}, err
	}
	q, err := s.quotes.Load(ctx, in.QuoteID)
	if err != nil {
		return Order{}, err
	}
	if q.UserID != userID {
		return Order{}, fmt.Errorf("orders: quote %s: %w", q.Number, ErrNotOwner)
	}

	o := &Order{
		UserID:         userID,
		QuoteID:        q.ID,
		QuoteNumber:    q.Number,
		RequestNumbers: requestNumbers(q),
		Status:         StatusConfirmed,
		Note:           in.Note,
		UpdatedAt:      s.now().UTC(),
	}
	if err := s.repo.Upsert(ctx, o); err != nil {
		return Order{}, err
	}
	if _, err := s.dispatcher.EnqueueRender(ctx, jobs.RenderPayload{Kind: jobs.DocumentOrder, ID: o.ID, Notify: true}); err != nil {
		s.logger.Warn("queue order email", slog.Int64("order_id", o.ID), slog.Any("error", err))
	}
	return *o, nil
}

// requestNumbers merges the quote's request numbers with those of its
// lines, first occurrence first.
func requestNumbers(q quotes.Quote) []string {
	seen := make(map[string]bool)
	out := []string{}
	add := func(n string) {
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, n := range q.RequestNumbers {
		add(n)
	}
	for _, it := range q.Items {
		add(it.RequestNumber)
	}
	return out
}

// Status reports, for each quote id, whether the user confirmed it.
func (s *Service) Status(ctx context.Context, userID int64, quoteIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(quoteIDs))
	if len(quoteIDs) == 0 {
		return out, nil
	}
	confirmed, err := s.repo.Confirmed(ctx, userID, quoteIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range quoteIDs {
		out[id] = confirmed[id]
	}
	return out, nil
}

// Cancel cancels an order of the signed-in client, or any order for an admin.
func (s *Service) Cancel(ctx context.Context, id auth.Identity, orderID int64) (Order, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !id.IsAdmin() && o.UserID != id.UserID {
		return Order{}, fmt.Errorf("orders: %d: %w", orderID, httpx.ErrNotFound)
	}
	if o.Status == StatusCancelled {
		return Order{}, ErrAlreadyCancelled
	}
	return s.repo.SetStatus(ctx, orderID, StatusCancelled)
}

// List returns the orders visible to id.
func (s *Service) List(ctx context.Context, id auth.Identity, page, perPage int) ([]Order, error) {
	p := shared.NewPagination(page, perPage, 0)
	userID := id.UserID
	if id.IsAdmin() {
		userID = 0
	}
	return s.repo.List(ctx, userID, p.PerPage, p.Offset())
}

// Load returns one order without access checks, for background jobs.
func (s *Service) Load(ctx context.Context, orderID int64) (Order, error) {
	return s.repo.Get(ctx, orderID)
}
