package app

import (
	"log/slog"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/mtr-industry/mtr-backoffice/internal/complaints"
	"github.com/mtr-industry/mtr-backoffice/internal/documents"
	"github.com/mtr-industry/mtr-backoffice/internal/mailer"
	"github.com/mtr-industry/mtr-backoffice/internal/orders"
	"github.com/mtr-industry/mtr-backoffice/internal/platform/cache"
	"github.com/mtr-industry/mtr-backoffice/internal/quotes"
	"github.com/mtr-industry/mtr-backoffice/internal/render"
	"github.com/mtr-industry/mtr-backoffice/internal/requests"
	"github.com/mtr-industry/mtr-backoffice/internal/sequence"
	"github.com/mtr-industry/mtr-backoffice/internal/shared"
	"github.com/mtr-industry/mtr-backoffice/internal/users"
	"github.com/mtr-industry/mtr-backoffice/jobs"
)

// Domain holds the services shared by the API server and the worker.
type Domain struct {
	Users       *users.Service
	Requests    *requests.Service
	Quotes      *quotes.Service
	Orders      *orders.Service
	Complaints  *complaints.Service
	Documents   *documents.Service
	Numbers     *sequence.Numberer
	Idempotency *shared.IdempotencyStore
	Mailer      *mailer.Mailer
}

// DomainParams groups the infrastructure the services run on.
type DomainParams struct {
	Config     *Config
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Dispatcher *jobs.Client
	Observer   render.Observer
	Logger     *slog.Logger
}

// brandingPath resolves the branding file against the asset root.
func (c *Config) brandingPath() string {
	if c.BrandingFile == "" || filepath.IsAbs(c.BrandingFile) {
		return c.BrandingFile
	}
	return filepath.Join(c.AssetRoot, c.BrandingFile)
}

// NewDomain wires repositories and services.
func NewDomain(p DomainParams) (*Domain, error) {
	branding, err := render.LoadBranding(p.Config.brandingPath())
	if err != nil {
		return nil, err
	}

	numbers := sequence.NewNumberer(sequence.NewCounter(p.Pool))
	usersService := users.NewService(users.NewRepository(p.Pool))
	requestsService := requests.NewService(requests.NewRepository(p.Pool), numbers, p.Dispatcher, usersService, p.Logger)
	quotesService := quotes.NewService(quotes.NewRepository(p.Pool), requestsService, usersService, numbers, p.Dispatcher, p.Logger)
	ordersService := orders.NewService(orders.NewRepository(p.Pool), quotesService, p.Dispatcher, p.Logger)
	complaintsService := complaints.NewService(complaints.NewRepository(p.Pool), numbers, p.Dispatcher, usersService, p.Logger)
	mail := mailer.New(p.Config.MailerConfig(), p.Logger)

	docs := documents.NewService(documents.Deps{
		Requests:   requestsService,
		Quotes:     quotesService,
		Complaints: complaintsService,
		Orders:     ordersService,
		Profiles:   usersService,
		Renderer: render.New(render.Options{
			AssetRoot: p.Config.AssetRoot,
			Branding:  &branding,
			Logger:    p.Logger,
			Observer:  p.Observer,
		}),
		Mailer: mail,
		Cache:  cache.NewBlobs(p.Redis, "mtr:pdf:", p.Config.PDFCacheTTL),
		Logger: p.Logger,
	}, p.Config.DocumentsConfig())

	return &Domain{
		Users:       usersService,
		Requests:    requestsService,
		Quotes:      quotesService,
		Orders:      ordersService,
		Complaints:  complaintsService,
		Documents:   docs,
		Numbers:     numbers,
		Idempotency: shared.NewIdempotencyStore(p.Pool),
		Mailer:      mail,
	}, nil
}
