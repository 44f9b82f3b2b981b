package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mtr-industry/mtr-backoffice/internal/auth"
	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
	"github.com/mtr-industry/mtr-backoffice/internal/pricing"
	"github.com/mtr-industry/mtr-backoffice/internal/requests"
	"github.com/mtr-industry/mtr-backoffice/internal/sequence"
	"github.com/mtr-industry/mtr-backoffice/internal/shared"
	"github.com/mtr-industry/mtr-backoffice/internal/users"
	"github.com/mtr-industry/mtr-backoffice/jobs"
)

// RepositoryPort defines data access methods for quotes.
type RepositoryPort interface {
	Articles(ctx context.Context, ids []int64) (map[int64]Article, error)
	ListArticles(ctx context.Context) ([]Article, error)
	InsertArticle(ctx context.Context, a *Article) error
	Insert(ctx context.Context, q *Quote) error
	Get(ctx context.Context, id int64) (Quote, error)
	GetByNumber(ctx context.Context, number string) (Quote, error)
	ByRequestNumber(ctx context.Context, number string) (Quote, error)
	List(ctx context.Context, limit, offset int) ([]Quote, int, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Quote, int, error)
	PDF(ctx context.Context, id int64) ([]byte, error)
	SavePDF(ctx context.Context, id int64, pdf []byte, at time.Time) error
	MissingPDF(ctx context.Context, limit int) ([]int64, error)
}

// RequestSource loads the requests a quote answers.
type RequestSource interface {
	Load(ctx context.Context, id int64) (requests.Request, error)
}

// Profiles resolves the client of a quote.
type Profiles interface {
	Get(ctx context.Context, id int64) (users.Profile, error)
}

// Numberer allocates and previews quote numbers.
type Numberer interface {
	Next(ctx context.Context, s sequence.Series) (string, error)
	Preview(ctx context.Context, s sequence.Series) (string, error)
}

// Dispatcher queues background renders.
type Dispatcher interface {
	EnqueueRender(ctx context.Context, payload jobs.RenderPayload) (*asynq.TaskInfo, error)
}

// Service handles quote business logic.
type Service struct {
	repo       RepositoryPort
	requests   RequestSource
	profiles   Profiles
	numbers    Numberer
	dispatcher Dispatcher
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
}

// NewService builds a Service.
func NewService(repo RepositoryPort, reqs RequestSource, profiles Profiles, numbers Numberer, dispatcher Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		requests:   reqs,
		profiles:   profiles,
		numbers:    numbers,
		dispatcher: dispatcher,
		validate:   httpx.NewValidator(),
		logger:     logger,
		now:        time.Now,
	}
}

// Create prices the lines against the catalogue and stores a quote for
// the client owning every listed request.
func (s *Service) Create(ctx context.Context, in CreateInput) (Created, error) {
	if err := s.validate.Struct(in); err != nil {
		return Created{}, err
	}
	ids := uniqueIDs(in.RequestIDs)
	articleIDs := make([]int64, 0, len(in.Lines))
	for _, ln := range in.Lines {
		articleIDs = append(articleIDs, ln.ArticleID)
	}

	loaded := make([]requests.Request, len(ids))
	var articles map[int64]Article
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			req, err := s.requests.Load(gctx, id)
			if err != nil {
				return fmt.Errorf("quotes: request %d: %w", id, err)
			}
			loaded[i] = req
			return nil
		})
	}
	g.Go(func() error {
		var err error
		articles, err = s.repo.Articles(gctx, uniqueIDs(articleIDs))
		return err
	})
	if err := g.Wait(); err != nil {
		return Created{}, err
	}

	owner := loaded[0].UserID
	for _, req := range loaded[1:] {
		if req.UserID != owner {
			return Created{}, ErrMixedClients
		}
	}
	profile, err := s.profiles.Get(ctx, owner)
	if err != nil {
		return Created{}, fmt.Errorf("quotes: client %d: %w", owner, err)
	}

	items, err := buildItems(in.Lines, loaded, articles)
	if err != nil {
		return Created{}, err
	}
	adj, err := adjustments(in)
	if err != nil {
		return Created{}, err
	}

	numbers := make([]string, len(loaded))
	for i, req := range loaded {
		numbers[i] = req.Number
	}
	q := &Quote{
		UserID:         owner,
		Client:         clientOf(profile),
		Items:          items,
		Adjustments:    adj,
		RequestNumbers: numbers,
		CreatedAt:      s.now().UTC(),
	}
	err = sequence.WithUniqueRetry(ctx, 0, func(ctx context.Context) error {
		number, err := s.numbers.Next(ctx, sequence.Quotes)
		if err != nil {
			return err
		}
		q.Number = number
		return s.repo.Insert(ctx, q)
	})
	if err != nil {
		return Created{}, err
	}

	notify := in.SendEmail == nil || *in.SendEmail
	if _, err := s.dispatcher.EnqueueRender(ctx, jobs.RenderPayload{Kind: jobs.DocumentQuote, ID: q.ID, Notify: notify}); err != nil {
		s.logger.Warn("queue quote render", slog.String("numero", q.Number), slog.Any("error", err))
	}
	return Created{ID: q.ID, Number: q.Number, GrandTotal: pricing.Money(pricing.Round3(q.Totals().GrandTotal))}, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func clientOf(p users.Profile) Client {
	c := Client{
		UserID:  p.ID,
		Name:    p.DisplayName(),
		Email:   p.Email,
		Address: p.Address,
		Phone:   p.Phone,
	}
	if p.Company != nil {
		c.TaxCode = p.Company.TaxID
	}
	return c
}

// requestNumber picks the request a line answers: the explicit number,
// then the request id, then the first request of the quote.
func requestNumber(ln LineInput, loaded []requests.Request) (string, error) {
	if n := strings.ToUpper(strings.TrimSpace(ln.RequestNumber)); n != "" {
		for _, req := range loaded {
			if req.Number == n {
				return n, nil
			}
		}
		return "", fmt.Errorf("quotes: %s: %w", n, ErrUnknownRequestNumber)
	}
	if ln.RequestID > 0 {
		for _, req := range loaded {
			if req.ID == ln.RequestID {
				return req.Number, nil
			}
		}
		return "", fmt.Errorf("quotes: request %d: %w", ln.RequestID, ErrUnknownRequestNumber)
	}
	return loaded[0].Number, nil
}

func orDefault(d *decimal.Decimal, def decimal.Decimal) decimal.Decimal {
	if d == nil {
		return def
	}
	return *d
}

var hundred = decimal.NewFromInt(100)

func buildItems(lines []LineInput, loaded []requests.Request, articles map[int64]Article) ([]Item, error) {
	items := make([]Item, 0, len(lines))
	for i, ln := range lines {
		art, ok := articles[ln.ArticleID]
		if !ok {
			return nil, fmt.Errorf("quotes: line %d article %d: %w", i+1, ln.ArticleID, httpx.ErrNotFound)
		}
		number, err := requestNumber(ln, loaded)
		if err != nil {
			return nil, err
		}
		line := pricing.Line{
			Quantity:    orDefault(ln.Quantity, DefaultQuantity),
			UnitPrice:   art.PriceHT,
			DiscountPct: orDefault(ln.DiscountPct, decimal.Zero),
			VATPct:      orDefault(ln.VATPct, DefaultVATPct),
		}
		switch {
		case !line.Quantity.IsPositive():
			return nil, fmt.Errorf("quotes: line %d quantity must be positive: %w", i+1, httpx.ErrValidation)
		case line.DiscountPct.IsNegative() || line.DiscountPct.GreaterThan(hundred):
			return nil, fmt.Errorf("quotes: line %d discount must be between 0 and 100: %w", i+1, httpx.ErrValidation)
		case !pricing.IsStandardRate(line.VATPct):
			return nil, fmt.Errorf("quotes: line %d rate %s: %w", i+1, line.VATPct, ErrNonStandardVAT)
		}
		unit := art.Unit
		if unit == "" {
			unit = "U"
		}
		items = append(items, Item{
			Line:          line,
			Reference:     art.Reference,
			Designation:   art.Designation,
			Unit:          unit,
			RequestNumber: number,
		})
	}
	return items, nil
}

func adjustments(in CreateInput) (pricing.Adjustments, error) {
	adj := pricing.Adjustments{FodecPct: in.FodecPct, StampDuty: orDefault(in.StampDuty, decimal.Zero)}
	if adj.FodecPct != nil && (adj.FodecPct.IsNegative() || adj.FodecPct.GreaterThan(hundred)) {
		return adj, fmt.Errorf("quotes: fodec must be between 0 and 100: %w", httpx.ErrValidation)
	}
	if adj.StampDuty.IsNegative() {
		return adj, fmt.Errorf("quotes: stamp duty must not be negative: %w", httpx.ErrValidation)
	}
	return adj, nil
}

// NextNumber previews the number the next quote will receive.
func (s *Service) NextNumber(ctx context.Context) (string, error) {
	return s.numbers.Preview(ctx, sequence.Quotes)
}

func visible(id auth.Identity, q Quote) bool {
	return id.IsAdmin() || q.UserID == id.UserID
}

// Resolve loads a quote by id or DV number. Quotes of other clients are
// reported as missing.
func (s *Service) Resolve(ctx context.Context, id auth.Identity, ref string) (Quote, error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	var (
		q   Quote
		err error
	)
	if strings.HasPrefix(ref, sequence.Quotes.Prefix) {
		q, err = s.repo.GetByNumber(ctx, ref)
	} else {
		quoteID, perr := strconv.ParseInt(ref, 10, 64)
		if perr != nil || quoteID <= 0 {
			return Quote{}, fmt.Errorf("quotes: %q: %w", ref, httpx.ErrNotFound)
		}
		q, err = s.repo.Get(ctx, quoteID)
	}
	if err != nil {
		return Quote{}, err
	}
	if !visible(id, q) {
		return Quote{}, fmt.Errorf("quotes: %s: %w", q.Number, httpx.ErrNotFound)
	}
	return q, nil
}

// ByRequest reports the quote covering a request number, if any.
func (s *Service) ByRequest(ctx context.Context, id auth.Identity, number string) (Lookup, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if number == "" {
		return Lookup{}, fmt.Errorf("quotes: request number required: %w", httpx.ErrValidation)
	}
	q, err := s.repo.ByRequestNumber(ctx, number)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return Lookup{}, nil
		}
		return Lookup{}, err
	}
	if !visible(id, q) {
		return Lookup{}, nil
	}
	return Lookup{
		Exists:         true,
		ID:             q.ID,
		Number:         q.Number,
		RequestNumbers: q.RequestNumbers,
		PDF:            "/quotes/" + q.Number + "/pdf",
	}, nil
}

// Page is one page of quotes.
type Page struct {
	Items      []Quote           `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// List pages through all quotes, or those of the signed-in client.
func (s *Service) List(ctx context.Context, id auth.Identity, page, perPage int) (Page, error) {
	p := shared.NewPagination(page, perPage, 0)
	var (
		items []Quote
		total int
		err   error
	)
	if id.IsAdmin() {
		items, total, err = s.repo.List(ctx, p.PerPage, p.Offset())
	} else {
		items, total, err = s.repo.ListByUser(ctx, id.UserID, p.PerPage, p.Offset())
	}
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []Quote{}
	}
	return Page{Items: items, Pagination: shared.NewPagination(p.Page, p.PerPage, total)}, nil
}

// Articles returns the catalogue.
func (s *Service) Articles(ctx context.Context) ([]Article, error) {
	return s.repo.ListArticles(ctx)
}

// CreateArticle adds a catalogue entry.
func (s *Service) CreateArticle(ctx context.Context, a Article) (Article, error) {
	a.Reference = strings.TrimSpace(a.Reference)
	a.Designation = strings.TrimSpace(a.Designation)
	a.Unit = strings.TrimSpace(a.Unit)
	if a.Unit == "" {
		a.Unit = "U"
	}
	if err := s.validate.Struct(a); err != nil {
		return Article{}, err
	}
	if a.PriceHT.IsNegative() {
		return Article{}, fmt.Errorf("quotes: article price must not be negative: %w", httpx.ErrValidation)
	}
	if err := s.repo.InsertArticle(ctx, &a); err != nil {
		return Article{}, err
	}
	return a, nil
}

// Load returns one quote without access checks, for background jobs.
func (s *Service) Load(ctx context.Context, id int64) (Quote, error) {
	return s.repo.Get(ctx, id)
}

// StoredPDF returns the stored rendering of a quote.
func (s *Service) StoredPDF(ctx context.Context, id int64) ([]byte, error) {
	return s.repo.PDF(ctx, id)
}

// SavePDF stores a rendering of a quote.
func (s *Service) SavePDF(ctx context.Context, id int64, pdf []byte) error {
	return s.repo.SavePDF(ctx, id, pdf, s.now().UTC())
}

// MissingPDF lists quotes that still need a rendering.
func (s *Service) MissingPDF(ctx context.Context, limit int) ([]int64, error) {
	return s.repo.MissingPDF(ctx, limit)
}
