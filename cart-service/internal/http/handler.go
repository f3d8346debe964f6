package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/homeservices/cart-service/internal/domain"
	"github.com/fjod/homeservices/cart-service/internal/repository"
	"github.com/fjod/homeservices/pkg/httpx"
	"github.com/fjod/homeservices/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// CartService is what the handler needs from the service layer.
type CartService interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	AddLine(ctx context.Context, userID string, line domain.CartLine) (domain.CartLine, error)
	UpdateLine(ctx context.Context, userID, lineID string, patch domain.LinePatch) (domain.CartLine, bool, error)
	RemoveLine(ctx context.Context, userID, lineID string) error
	ClearCart(ctx context.Context, userID string) error
}

type CartHandler struct {
	service CartService
	timeout time.Duration
	log     *logger.Logger
}

func NewCartHandler(service CartService, timeout time.Duration, log *logger.Logger) *CartHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CartHandler{service: service, timeout: timeout, log: log}
}

// Routes mounts the cart endpoints. Every route requires the identity
// headers set by the gateway.
func (h *CartHandler) Routes(r chi.Router) {
	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(httpx.RequireIdentity)
		r.Delete("/", h.ClearCart)
		r.Get("/items", h.ListItems)
		r.Post("/items", h.AddItem)
		r.Put("/items/{id}", h.UpdateItem)
		r.Delete("/items/{id}", h.RemoveItem)
	})
}

func (h *CartHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	id, _ := httpx.IdentityFromContext(r.Context())

	cart, err := h.service.GetCart(ctx, id.UserID)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}
	items := cart.Items
	if items == nil {
		items = []domain.CartLine{}
	}
	httpx.RespondJSON(w, http.StatusOK, items)
}

// AddItem stores the posted line. A line already holding the product is
// replaced, so replays of the same add are harmless.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	id, _ := httpx.IdentityFromContext(r.Context())

	var line domain.CartLine
	if err := httpx.DecodeJSON(r, &line); err != nil {
		httpx.RespondErrorDetails(w, http.StatusBadRequest, "invalid_request", "invalid cart line", err.Error())
		return
	}
	line.ID = ""

	saved, err := h.service.AddLine(ctx, id.UserID, line)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusCreated, saved)
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	id, _ := httpx.IdentityFromContext(r.Context())

	var patch domain.LinePatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.RespondErrorDetails(w, http.StatusBadRequest, "invalid_request", "invalid line update", err.Error())
		return
	}
	if patch.Count == nil && patch.Content == nil {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_request", "nothing to update")
		return
	}

	line, removed, err := h.service.UpdateLine(ctx, id.UserID, chi.URLParam(r, "id"), patch)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}
	if removed {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, line)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	id, _ := httpx.IdentityFromContext(r.Context())

	if err := h.service.RemoveLine(ctx, id.UserID, chi.URLParam(r, "id")); err != nil {
		h.handleError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	id, _ := httpx.IdentityFromContext(r.Context())

	if err := h.service.ClearCart(ctx, id.UserID); err != nil {
		h.handleError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) handleError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrItemNotFound), errors.Is(err, repository.ErrCartNotFound):
		httpx.RespondError(w, http.StatusNotFound, "not_found", "cart line not found")
	case errors.Is(err, context.DeadlineExceeded):
		httpx.RespondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		h.log.Error(ctx, "cart request failed", err)
		httpx.RespondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
