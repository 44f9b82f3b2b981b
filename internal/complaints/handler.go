package complaints

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mtr-industry/mtr-backoffice/internal/auth"
	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
	"github.com/mtr-industry/mtr-backoffice/internal/render"
	"github.com/mtr-industry/mtr-backoffice/internal/shared"
)

// DefaultUploadLimit bounds a multipart submission when no limit is configured.
const DefaultUploadLimit = 25 << 20

// PDFSource returns the PDF of a complaint, rendering it when none is stored.
type PDFSource interface {
	ComplaintPDF(ctx context.Context, id int64) ([]byte, error)
}

// Handler exposes complaint endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	pdfs      PDFSource
	guard     auth.Middleware
	maxUpload int64
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, pdfs PDFSource, guard auth.Middleware, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = DefaultUploadLimit
	}
	return &Handler{logger: logger, service: service, pdfs: pdfs, guard: guard, maxUpload: maxUpload}
}

// MountRoutes registers complaint routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireUser)
		r.Post("/", h.create)
		r.Get("/mine", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/pdf", h.pdf)
		r.Get("/{id}/files/{fileID}", h.file)
	})
	r.With(h.guard.RequireRole(auth.RoleAdmin)).Get("/", h.list)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	in, err := h.decodeSubmission(w, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), id.UserID, in)
	if err != nil {
		if !isClientError(err) {
			h.logger.Error("create complaint", slog.Int64("user_id", id.UserID), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("complaint created", slog.String("numero", created.Number), slog.Int64("user_id", id.UserID))
	httpx.JSON(w, http.StatusCreated, created)
}

// first returns the first non-blank form value among names.
func first(form *multipart.Form, names ...string) string {
	for _, name := range names {
		if v := form.Value[name]; len(v) > 0 && strings.TrimSpace(v[0]) != "" {
			return v[0]
		}
	}
	return ""
}

// decodeSubmission reads a JSON body or a multipart form using the
// "commande[...]" field names of the complaint form.
func (h *Handler) decodeSubmission(w http.ResponseWriter, r *http.Request) (Input, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if mediaType != "multipart/form-data" {
		var in Input
		if err := httpx.DecodeJSON(r, &in); err != nil {
			return Input{}, err
		}
		return in, nil
	}

	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return Input{}, fmt.Errorf("complaints: multipart: %v: %w", err, httpx.ErrValidation)
	}
	form := r.MultipartForm
	in := Input{
		Order: Order{
			Kind:       render.DocumentKind(first(form, "commande[typeDoc]", "typeDoc")),
			Number:     first(form, "commande[numero]", "numero"),
			ProductRef: first(form, "commande[referenceProduit]", "referenceProduit"),
		},
		Nature:            first(form, "nature"),
		Expectation:       first(form, "attente"),
		Description:       first(form, "description"),
		NatureDetail:      first(form, "precisezNature", "natureAutre", "natureTexte"),
		ExpectationDetail: first(form, "precisezAttente", "attenteAutre", "attenteTexte"),
	}
	if err := in.Order.DeliveryDate.parse(first(form, "commande[dateLivraison]", "dateLivraison")); err != nil {
		return Input{}, fmt.Errorf("complaints: dateLivraison: %v: %w", err, httpx.ErrValidation)
	}
	if raw := strings.TrimSpace(first(form, "commande[quantite]", "quantite")); raw != "" {
		q, err := strconv.Atoi(raw)
		if err != nil {
			return Input{}, fmt.Errorf("complaints: quantite %q: %w", raw, httpx.ErrValidation)
		}
		in.Order.Quantity = &q
	}

	headers := slices.Concat(form.File["piecesJointes"], form.File["docs"])
	if len(headers) > MaxFiles {
		return Input{}, fmt.Errorf("complaints: %d files: %w", len(headers), ErrTooManyFiles)
	}
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return Input{}, fmt.Errorf("complaints: open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return Input{}, fmt.Errorf("complaints: read %s: %w", fh.Filename, err)
		}
		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = http.DetectContentType(data)
		}
		in.Files = append(in.Files, File{Name: fh.Filename, ContentType: ct, Data: data})
	}
	return in, nil
}

func isClientError(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs) || errors.Is(err, httpx.ErrValidation)
}

func (h *Handler) lookup(r *http.Request) (Complaint, error) {
	complaintID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || complaintID <= 0 {
		return Complaint{}, fmt.Errorf("complaints: invalid id: %w", httpx.ErrNotFound)
	}
	id, _ := auth.IdentityFrom(r.Context())
	return h.service.Get(r.Context(), id, complaintID)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	c, err := h.lookup(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) pdf(w http.ResponseWriter, r *http.Request) {
	c, err := h.lookup(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	data, err := h.pdfs.ComplaintPDF(r.Context(), c.ID)
	if err != nil {
		h.logger.Error("complaint pdf", slog.String("numero", c.Number), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.PDF(w, c.Number+".pdf", data)
}

func (h *Handler) file(w http.ResponseWriter, r *http.Request) {
	c, err := h.lookup(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	fileID, err := uuid.Parse(chi.URLParam(r, "fileID"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("complaints: invalid file id: %w", httpx.ErrNotFound))
		return
	}
	id, _ := auth.IdentityFrom(r.Context())
	f, err := h.service.File(r.Context(), id, c.ID, fileID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	page, perPage := shared.PageFromRequest(r)
	out, err := h.service.List(r.Context(), id, page, perPage)
	if err != nil {
		h.logger.Error("list complaints", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}
