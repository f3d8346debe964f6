package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/homeservices/catalog-service/internal/repository"
	"github.com/fjod/homeservices/pkg/httpx"
	"github.com/fjod/homeservices/pkg/logger"
	sf "github.com/fjod/homeservices/storefront/domain"
	"github.com/go-chi/chi/v5"
)

type Catalog interface {
	GetCategories(ctx context.Context) ([]sf.Category, error)
	GetPackages(ctx context.Context, category string) ([]sf.Package, error)
	GetPackage(ctx context.Context, id string) (sf.Package, error)
	GetTimeSlots(ctx context.Context) ([]sf.TimeSlot, error)
}

// CatalogHandler serves the read-only catalog. It needs no caller identity.
type CatalogHandler struct {
	catalog Catalog
	timeout time.Duration
	log     *logger.Logger
}

func NewCatalogHandler(catalog Catalog, timeout time.Duration, log *logger.Logger) *CatalogHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CatalogHandler{catalog: catalog, timeout: timeout, log: log}
}

func (h *CatalogHandler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/categories", h.Categories)
		r.Get("/packages", h.Packages)
		r.Get("/packages/{id}", h.Package)
		r.Get("/slots", h.Slots)
	})
}

func (h *CatalogHandler) Categories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	categories, err := h.catalog.GetCategories(ctx)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, categories)
}

func (h *CatalogHandler) Packages(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	packages, err := h.catalog.GetPackages(ctx, r.URL.Query().Get("category"))
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, packages)
}

func (h *CatalogHandler) Package(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := h.catalog.GetPackage(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) Slots(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	slots, err := h.catalog.GetTimeSlots(ctx)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, slots)
}

func (h *CatalogHandler) handleError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrPackageNotFound):
		httpx.RespondError(w, http.StatusNotFound, "not_found", "package not found")
	case errors.Is(err, context.DeadlineExceeded):
		httpx.RespondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		h.log.Error(ctx, "catalog request failed", err)
		httpx.RespondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
