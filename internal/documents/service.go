// Package documents renders stored records to PDF, keeps the renderings
// and sends the notification emails that go with them.
package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/mtr-industry/mtr-backoffice/internal/complaints"
	"github.com/mtr-industry/mtr-backoffice/internal/mailer"
	"github.com/mtr-industry/mtr-backoffice/internal/orders"
	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
	"github.com/mtr-industry/mtr-backoffice/internal/quotes"
	"github.com/mtr-industry/mtr-backoffice/internal/render"
	"github.com/mtr-industry/mtr-backoffice/internal/requests"
	"github.com/mtr-industry/mtr-backoffice/internal/users"
	"github.com/mtr-industry/mtr-backoffice/jobs"
)

// Store keeps the renderings of one record family.
type Store interface {
	StoredPDF(ctx context.Context, id int64) ([]byte, error)
	SavePDF(ctx context.Context, id int64, pdf []byte) error
	MissingPDF(ctx context.Context, limit int) ([]int64, error)
}

// RequestSource loads quote requests.
type RequestSource interface {
	Store
	Snapshot(ctx context.Context, id int64) (requests.Request, users.Profile, error)
	Files(ctx context.Context, id int64) ([]requests.File, error)
}

// QuoteSource loads quotes.
type QuoteSource interface {
	Store
	Load(ctx context.Context, id int64) (quotes.Quote, error)
}

// ComplaintSource loads complaints.
type ComplaintSource interface {
	Store
	Snapshot(ctx context.Context, id int64) (complaints.Complaint, users.Profile, error)
	Files(ctx context.Context, id int64) ([]complaints.File, error)
}

// OrderSource loads client orders.
type OrderSource interface {
	Load(ctx context.Context, id int64) (orders.Order, error)
}

// Profiles resolves user accounts.
type Profiles interface {
	Get(ctx context.Context, id int64) (users.Profile, error)
}

// Renderer lays out documents.
type Renderer interface {
	RenderRequest(ctx context.Context, snap render.RequestSnapshot) (*render.Result, error)
	RenderQuote(ctx context.Context, snap render.QuoteSnapshot) (*render.Result, error)
	RenderComplaint(ctx context.Context, snap render.ComplaintSnapshot) (*render.Result, error)
}

// Mailer delivers emails from the company mailboxes.
type Mailer interface {
	Send(ctx context.Context, account mailer.Account, msg mailer.Message) error
	Address(account mailer.Account) string
}

// BlobCache keeps recently served PDFs.
type BlobCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte) error
}

// Config holds the addresses used in notifications.
type Config struct {
	// AdminTo receives new requests and order confirmations. The admin
	// mailbox is used when empty.
	AdminTo string
	// PublicOrigin prefixes links in emails.
	PublicOrigin string
}

// Deps collects the collaborators of a Service.
type Deps struct {
	Requests   RequestSource
	Quotes     QuoteSource
	Complaints ComplaintSource
	Orders     OrderSource
	Profiles   Profiles
	Renderer   Renderer
	Mailer     Mailer
	Cache      BlobCache
	Logger     *slog.Logger
}

// Service produces and distributes document PDFs.
type Service struct {
	Deps
	cfg    Config
	flight singleflight.Group
}

// NewService constructs a Service.
func NewService(deps Deps, cfg Config) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{Deps: deps, cfg: cfg}
}

func cacheKey(kind jobs.DocumentKind, id int64) string {
	return string(kind) + ":" + strconv.FormatInt(id, 10)
}

// RequestPDF returns the PDF of a request, rendering it when none is stored.
func (s *Service) RequestPDF(ctx context.Context, id int64) ([]byte, error) {
	return s.pdf(ctx, jobs.DocumentRequest, id)
}

// QuotePDF returns the PDF of a quote, rendering it when none is stored.
func (s *Service) QuotePDF(ctx context.Context, id int64) ([]byte, error) {
	return s.pdf(ctx, jobs.DocumentQuote, id)
}

// ComplaintPDF returns the PDF of a complaint, rendering it when none is stored.
func (s *Service) ComplaintPDF(ctx context.Context, id int64) ([]byte, error) {
	return s.pdf(ctx, jobs.DocumentComplaint, id)
}

func (s *Service) store(kind jobs.DocumentKind) (Store, error) {
	switch kind {
	case jobs.DocumentRequest:
		return s.Requests, nil
	case jobs.DocumentQuote:
		return s.Quotes, nil
	case jobs.DocumentComplaint:
		return s.Complaints, nil
	}
	return nil, fmt.Errorf("documents: %s has no pdf: %w", kind, httpx.ErrValidation)
}

// pdf serves the cached, stored or freshly rendered PDF of a record.
// Concurrent callers for the same record share one render.
func (s *Service) pdf(ctx context.Context, kind jobs.DocumentKind, id int64) ([]byte, error) {
	key := cacheKey(kind, id)
	if data, ok, err := s.Cache.Get(ctx, key); err != nil {
		s.Logger.Warn("pdf cache read", slog.String("key", key), slog.Any("error", err))
	} else if ok {
		return data, nil
	}

	ch := s.flight.DoChan(key, func() (any, error) {
		return s.storedOrRender(context.WithoutCancel(ctx), kind, id)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		data := res.Val.([]byte)
		if err := s.Cache.Set(ctx, key, data); err != nil {
			s.Logger.Warn("pdf cache write", slog.String("key", key), slog.Any("error", err))
		}
		return data, nil
	}
}

func (s *Service) storedOrRender(ctx context.Context, kind jobs.DocumentKind, id int64) ([]byte, error) {
	st, err := s.store(kind)
	if err != nil {
		return nil, err
	}
	data, err := st.StoredPDF(ctx, id)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, httpx.ErrNotFound) {
		return nil, err
	}
	return s.Render(ctx, kind, id)
}

// Render lays out a record from its current snapshot and stores the result.
func (s *Service) Render(ctx context.Context, kind jobs.DocumentKind, id int64) ([]byte, error) {
	var (
		res *render.Result
		err error
	)
	switch kind {
	case jobs.DocumentRequest:
		var (
			req     requests.Request
			profile users.Profile
		)
		if req, profile, err = s.Requests.Snapshot(ctx, id); err != nil {
			return nil, err
		}
		res, err = s.Renderer.RenderRequest(ctx, req.Snapshot(profile.Snapshot()))
	case jobs.DocumentQuote:
		var q quotes.Quote
		if q, err = s.Quotes.Load(ctx, id); err != nil {
			return nil, err
		}
		res, err = s.Renderer.RenderQuote(ctx, q.Snapshot())
	case jobs.DocumentComplaint:
		var (
			c       complaints.Complaint
			profile users.Profile
		)
		if c, profile, err = s.Complaints.Snapshot(ctx, id); err != nil {
			return nil, err
		}
		res, err = s.Renderer.RenderComplaint(ctx, c.Snapshot(profile.Snapshot()))
	default:
		return nil, fmt.Errorf("documents: %s has no pdf: %w", kind, httpx.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("documents: render %s %d: %w", kind, id, err)
	}

	st, _ := s.store(kind)
	if err := st.SavePDF(ctx, id, res.PDF); err != nil {
		return nil, fmt.Errorf("documents: save %s %d: %w", kind, id, err)
	}
	for _, w := range res.Warnings {
		s.Logger.Warn("render warning", slog.String("kind", string(kind)), slog.Int64("id", id), slog.String("warning", w))
	}
	s.Logger.Info("document rendered",
		slog.String("kind", string(kind)), slog.Int64("id", id),
		slog.Int("pages", res.Pages), slog.Int("bytes", len(res.PDF)))
	return res.PDF, nil
}

// Missing lists records of kind stored without a rendering.
func (s *Service) Missing(ctx context.Context, kind jobs.DocumentKind, limit int) ([]int64, error) {
	st, err := s.store(kind)
	if err != nil {
		return nil, err
	}
	return st.MissingPDF(ctx, limit)
}
