package quotes

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mtr-industry/mtr-backoffice/internal/auth"
	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
	"github.com/mtr-industry/mtr-backoffice/internal/shared"
)

// PDFSource returns the PDF of a quote, rendering it when none is stored.
type PDFSource interface {
	QuotePDF(ctx context.Context, id int64) ([]byte, error)
}

// Handler exposes quote endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	pdfs    PDFSource
	guard   auth.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, pdfs PDFSource, guard auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, pdfs: pdfs, guard: guard}
}

// MountRoutes registers quote routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRole(auth.RoleAdmin))
		r.Post("/", h.create)
		r.Get("/next-number", h.nextNumber)
		r.Get("/articles", h.articles)
		r.Post("/articles", h.createArticle)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireUser)
		r.Get("/", h.list)
		r.Get("/by-request", h.byRequest)
		r.Get("/{ref}", h.get)
		r.Get("/{ref}/pdf", h.pdf)
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), in)
	if err != nil {
		if !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrNotFound) {
			h.logger.Error("create quote", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("quote created", slog.String("numero", created.Number), slog.String("mttc", created.GrandTotal))
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) nextNumber(w http.ResponseWriter, r *http.Request) {
	number, err := h.service.NextNumber(r.Context())
	if err != nil {
		h.logger.Error("preview quote number", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"numero": number})
}

func (h *Handler) articles(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Articles(r.Context())
	if err != nil {
		h.logger.Error("list articles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createArticle(w http.ResponseWriter, r *http.Request) {
	var in Article
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.CreateArticle(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	page, perPage := shared.PageFromRequest(r)
	out, err := h.service.List(r.Context(), id, page, perPage)
	if err != nil {
		h.logger.Error("list quotes", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) byRequest(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	out, err := h.service.ByRequest(r.Context(), id, r.URL.Query().Get("numero"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	q, err := h.service.Resolve(r.Context(), id, chi.URLParam(r, "ref"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) pdf(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	q, err := h.service.Resolve(r.Context(), id, chi.URLParam(r, "ref"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	data, err := h.pdfs.QuotePDF(r.Context(), q.ID)
	if err != nil {
		h.logger.Error("quote pdf", slog.String("numero", q.Number), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.PDF(w, q.Number+".pdf", data)
}
