package requests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mtr-industry/mtr-backoffice/internal/auth"
	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
	"github.com/mtr-industry/mtr-backoffice/internal/shared"
)

// DefaultUploadLimit bounds a multipart submission when no limit is configured.
const DefaultUploadLimit = 25 << 20

// PDFSource returns the PDF of a request, rendering it when none is stored.
type PDFSource interface {
	RequestPDF(ctx context.Context, id int64) ([]byte, error)
}

// IdempotencyStore records client submission keys.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key, scope string) error
}

// Handler exposes request endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	pdfs        PDFSource
	idempotency IdempotencyStore
	guard       auth.Middleware
	maxUpload   int64
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, pdfs PDFSource, idempotency IdempotencyStore, guard auth.Middleware, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = DefaultUploadLimit
	}
	return &Handler{
		logger:      logger,
		service:     service,
		pdfs:        pdfs,
		idempotency: idempotency,
		guard:       guard,
		maxUpload:   maxUpload,
	}
}

// MountRoutes registers request routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireUser)
		r.Get("/mine", h.listMine)
		r.Post("/{kind}", h.create)
		r.Get("/{kind}/{id}", h.get)
		r.Get("/{kind}/{id}/pdf", h.pdf)
		r.Get("/{kind}/{id}/files/{fileID}", h.file)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRole(auth.RoleAdmin))
		r.Get("/", h.list)
		r.Get("/numeros", h.numbers)
	})
}

type jsonSubmission struct {
	Spec         json.RawMessage `json:"spec"`
	Requirements string          `json:"exigences"`
	Remarks      string          `json:"remarques"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	kind := chi.URLParam(r, "kind")
	if _, err := ParseKind(kind); err != nil {
		httpx.RespondError(w, err)
		return
	}

	in, err := h.decodeSubmission(w, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.Kind = kind

	key := strings.TrimSpace(r.Header.Get(shared.IdempotencyHeader))
	scope := "requests:" + strconv.FormatInt(id.UserID, 10)
	if key != "" {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, scope); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate Submission", "this request was already submitted")
				return
			}
			h.logger.Error("idempotency check", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
	}

	created, err := h.service.Create(r.Context(), id.UserID, in)
	if err != nil {
		if key != "" {
			if derr := h.idempotency.Delete(r.Context(), key, scope); derr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		if !isClientError(err) {
			h.logger.Error("create request", slog.String("kind", kind), slog.Int64("user_id", id.UserID), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("request created", slog.String("numero", created.Number), slog.String("kind", kind), slog.Int64("user_id", id.UserID))
	httpx.JSON(w, http.StatusCreated, created)
}

// decodeSubmission reads either a JSON body or a multipart form whose
// plain fields form the spec and whose "docs" parts are the files.
func (h *Handler) decodeSubmission(w http.ResponseWriter, r *http.Request) (Input, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if mediaType != "multipart/form-data" {
		var body jsonSubmission
		if err := httpx.DecodeJSON(r, &body); err != nil {
			return Input{}, err
		}
		return Input{Spec: body.Spec, Requirements: body.Requirements, Remarks: body.Remarks}, nil
	}

	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return Input{}, fmt.Errorf("requests: multipart: %v: %w", err, httpx.ErrValidation)
	}
	form := r.MultipartForm
	fields := make(map[string]string, len(form.Value))
	for name, values := range form.Value {
		if len(values) > 0 {
			fields[name] = values[0]
		}
	}
	in := Input{Requirements: fields["exigences"], Remarks: fields["remarques"]}
	delete(fields, "exigences")
	delete(fields, "remarques")
	spec, err := json.Marshal(fields)
	if err != nil {
		return Input{}, err
	}
	in.Spec = spec

	headers := form.File["docs"]
	if len(headers) > MaxFiles {
		return Input{}, fmt.Errorf("requests: %d files: %w", len(headers), ErrTooManyFiles)
	}
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return Input{}, fmt.Errorf("requests: open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return Input{}, fmt.Errorf("requests: read %s: %w", fh.Filename, err)
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
	return errors.Is(err, httpx.ErrValidation) || errors.Is(err, httpx.ErrNotFound)
}

// lookup resolves the {kind}/{id} pair of the URL to a visible request.
func (h *Handler) lookup(r *http.Request) (Request, error) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		return Request{}, err
	}
	reqID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || reqID <= 0 {
		return Request{}, fmt.Errorf("requests: invalid id: %w", httpx.ErrNotFound)
	}
	id, _ := auth.IdentityFrom(r.Context())
	req, err := h.service.Get(r.Context(), id, reqID)
	if err != nil {
		return Request{}, err
	}
	if req.Kind != kind {
		return Request{}, fmt.Errorf("requests: %d is not a %s request: %w", reqID, kind, httpx.ErrNotFound)
	}
	return req, nil
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	req, err := h.lookup(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) pdf(w http.ResponseWriter, r *http.Request) {
	req, err := h.lookup(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	data, err := h.pdfs.RequestPDF(r.Context(), req.ID)
	if err != nil {
		h.logger.Error("request pdf", slog.String("numero", req.Number), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.PDF(w, req.Number+".pdf", data)
}

func (h *Handler) file(w http.ResponseWriter, r *http.Request) {
	req, err := h.lookup(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	fileID, err := uuid.Parse(chi.URLParam(r, "fileID"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("requests: invalid file id: %w", httpx.ErrNotFound))
		return
	}
	id, _ := auth.IdentityFrom(r.Context())
	f, err := h.service.File(r.Context(), id, req.ID, fileID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	page, perPage := shared.PageFromRequest(r)
	out, err := h.service.ListMine(r.Context(), id.UserID, page, perPage)
	if err != nil {
		h.logger.Error("list my requests", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f Filter
	if raw := q.Get("kind"); raw != "" {
		kind, err := ParseKind(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("requests: filter: %v: %w", err, httpx.ErrValidation))
			return
		}
		f.Kind = kind
	}
	f.NumberPrefix = strings.TrimSpace(q.Get("q"))
	page, perPage := shared.PageFromRequest(r)
	out, err := h.service.List(r.Context(), f, page, perPage)
	if err != nil {
		h.logger.Error("list requests", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) numbers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.service.NumbersWithoutQuote(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.logger.Error("request numbers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}
