package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/homeservices/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
)

// NewServer returns a server with the timeouts every service uses.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Serve runs srv until ctx is cancelled and then shuts it down, giving
// in-flight requests up to shutdownTimeout to finish.
func Serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, log *logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "listening on "+srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info(ctx, "shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// RequestLogger attaches the request id and, when present, the caller's
// user id to the request's logger and logs each completed request.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()
			reqID := r.Header.Get(HeaderRequestID)
			if reqID == "" {
				reqID = middleware.GetReqID(ctx)
			}
			if reqID != "" {
				ctx = log.WithRequestID(ctx, reqID)
			}
			if userID := r.Header.Get(HeaderUserID); userID != "" {
				ctx = log.WithUserID(ctx, userID)
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			ctx = log.WithField(ctx, "status", ww.Status())
			ctx = log.WithField(ctx, "duration_ms", time.Since(start).Milliseconds())
			log.Debug(ctx, r.Method+" "+r.URL.Path)
		})
	}
}
