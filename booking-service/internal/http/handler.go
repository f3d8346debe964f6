package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	d "github.com/fjod/homeservices/booking-service/internal/domain"
	"github.com/fjod/homeservices/booking-service/internal/repository"
	"github.com/fjod/homeservices/booking-service/internal/service"
	"github.com/fjod/homeservices/pkg/httpx"
	"github.com/fjod/homeservices/pkg/logger"
	sf "github.com/fjod/homeservices/storefront/domain"
	"github.com/go-chi/chi/v5"
)

// HeaderIdempotencyKey lets a client retry a submission without booking
// twice.
const HeaderIdempotencyKey = "Idempotency-Key"

type BookingService interface {
	Place(ctx context.Context, caller service.Caller, idempotencyKey string, rec sf.BookingRecord) (*d.Booking, error)
	List(ctx context.Context, userID string) ([]*d.Booking, error)
	Get(ctx context.Context, userID, id string) (*d.Booking, error)
	Cancel(ctx context.Context, userID, id string) error
}

type BookingHandler struct {
	service BookingService
	timeout time.Duration
	log     *logger.Logger
}

func NewBookingHandler(service BookingService, timeout time.Duration, log *logger.Logger) *BookingHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &BookingHandler{service: service, timeout: timeout, log: log}
}

func (h *BookingHandler) Routes(r chi.Router) {
	r.Route("/api/v1/bookings", func(r chi.Router) {
		r.Use(httpx.RequireIdentity)
		r.Post("/", h.Place)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Cancel)
	})
}

func (h *BookingHandler) Place(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	id, _ := httpx.IdentityFromContext(r.Context())

	var rec sf.BookingRecord
	if err := httpx.DecodeJSON(r, &rec); err != nil {
		httpx.RespondErrorDetails(w, http.StatusBadRequest, "invalid_request", "invalid booking", err.Error())
		return
	}

	caller := service.Caller{UserID: id.UserID, Email: id.Email}
	b, err := h.service.Place(ctx, caller, r.Header.Get(HeaderIdempotencyKey), rec)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusCreated, sf.Confirmation{ID: b.ID, PlacedAt: b.PlacedAt})
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	id, _ := httpx.IdentityFromContext(r.Context())

	bookings, err := h.service.List(ctx, id.UserID)
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}
	out := make([]sf.BookingRecord, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, b.Record)
	}
	httpx.RespondJSON(w, http.StatusOK, out)
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	id, _ := httpx.IdentityFromContext(r.Context())

	b, err := h.service.Get(ctx, id.UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(ctx, w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, b.Record)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	id, _ := httpx.IdentityFromContext(r.Context())

	if err := h.service.Cancel(ctx, id.UserID, chi.URLParam(r, "id")); err != nil {
		h.handleError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookingHandler) handleError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidBooking):
		httpx.RespondErrorDetails(w, http.StatusBadRequest, "invalid_booking", "invalid booking", err.Error())
	case errors.Is(err, service.ErrTotalsMismatch):
		httpx.RespondErrorDetails(w, http.StatusUnprocessableEntity, "totals_mismatch", "booking charges do not match", err.Error())
	case errors.Is(err, repository.ErrBookingNotFound):
		httpx.RespondError(w, http.StatusNotFound, "not_found", "booking not found")
	case errors.Is(err, context.DeadlineExceeded):
		httpx.RespondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		h.log.Error(ctx, "booking request failed", err)
		httpx.RespondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
