package http

import (
	"net/http"
	"net/url"
	"time"

	"github.com/fjod/homeservices/pkg/httpx"
	"github.com/fjod/homeservices/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Upstreams struct {
	Cart    *url.URL
	Booking *url.URL
	Catalog *url.URL
}

type RouterOptions struct {
	Auth           *Authenticator
	Upstreams      Upstreams
	RequestTimeout time.Duration
	// Transport is the base round tripper for upstream calls, nil means
	// http.DefaultTransport.
	Transport http.RoundTripper
	Log       *logger.Logger
	// Middlewares run after request id and recovery, before auth.
	Middlewares []func(http.Handler) http.Handler
}

// NewRouter mounts the public API. Cart and booking routes need a token,
// catalog routes accept anonymous callers.
func NewRouter(opts RouterOptions) chi.Router {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}

	cart := NewProxy(Upstream{Name: "cart-service", URL: opts.Upstreams.Cart}, opts.Transport, log)
	booking := NewProxy(Upstream{Name: "booking-service", URL: opts.Upstreams.Booking}, opts.Transport, log)
	catalog := NewProxy(Upstream{
		Name:          "catalog-service",
		URL:           opts.Upstreams.Catalog,
		StripPrefix:   "/api/v1/catalog",
		ReplacePrefix: "/api/v1",
	}, opts.Transport, log)

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestLogger(log))
	r.Use(opts.Middlewares...)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.Get("/health", httpx.Health)

	r.Group(func(r chi.Router) {
		r.Use(opts.Auth.Required)
		r.Handle("/api/v1/cart", cart)
		r.Handle("/api/v1/cart/*", cart)
		r.Handle("/api/v1/bookings", booking)
		r.Handle("/api/v1/bookings/*", booking)
	})
	r.Group(func(r chi.Router) {
		r.Use(opts.Auth.Optional)
		r.Handle("/api/v1/catalog/*", catalog)
	})
	return r
}
