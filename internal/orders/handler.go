package orders

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mtr-industry/mtr-backoffice/internal/auth"
	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
	"github.com/mtr-industry/mtr-backoffice/internal/shared"
)

// Handler exposes order endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   auth.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guard.RequireUser)
	r.With(h.guard.RequireRole(auth.RoleClient)).Post("/", h.place)
	r.Get("/", h.list)
	r.Get("/status", h.status)
	r.Post("/{id}/cancel", h.cancel)
}

func (h *Handler) place(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	var in PlaceInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.Place(r.Context(), id.UserID, in)
	if err != nil {
		h.logger.Warn("place order", slog.Int64("user_id", id.UserID), slog.Int64("quote_id", in.QuoteID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("order confirmed", slog.Int64("order_id", o.ID), slog.String("devis", o.QuoteNumber))
	httpx.JSON(w, http.StatusOK, o)
}

type statusResponse struct {
	Map map[int64]bool `json:"map"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	var ids []int64
	for _, raw := range strings.Split(r.URL.Query().Get("ids"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("orders: id %q: %w", raw, httpx.ErrValidation))
			return
		}
		ids = append(ids, v)
	}
	out, err := h.service.Status(r.Context(), id.UserID, ids)
	if err != nil {
		h.logger.Error("order status", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, statusResponse{Map: out})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("orders: invalid id: %w", httpx.ErrNotFound))
		return
	}
	o, err := h.service.Cancel(r.Context(), id, orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("order cancelled", slog.Int64("order_id", o.ID), slog.Int64("by", id.UserID))
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	page, perPage := shared.PageFromRequest(r)
	out, err := h.service.List(r.Context(), id, page, perPage)
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}
