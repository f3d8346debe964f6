package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/fjod/homeservices/pkg/circuitbreaker"
	"github.com/fjod/homeservices/pkg/httpx"
	"github.com/fjod/homeservices/pkg/logger"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Upstream is one backend service the gateway forwards to.
type Upstream struct {
	Name string
	URL  *url.URL
	// StripPrefix is replaced by ReplacePrefix before forwarding.
	StripPrefix   string
	ReplacePrefix string
}

// NewProxy returns a reverse proxy to u. Calls go through a circuit breaker
// per upstream, so a dead service answers 503 quickly.
func NewProxy(u Upstream, base http.RoundTripper, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.Nop()
	}
	breaker := circuitbreaker.NewTransport(base, circuitbreaker.Settings{Name: u.Name})
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u.URL)
			pr.SetXForwarded()
			if u.StripPrefix != "" {
				rewritePath(pr.Out.URL, u.StripPrefix, u.ReplacePrefix)
			}
		},
		Transport: otelhttp.NewTransport(breaker),
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			switch {
			case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
				httpx.RespondError(w, http.StatusServiceUnavailable, "unavailable", u.Name+" is unavailable")
			case errors.Is(err, context.DeadlineExceeded):
				httpx.RespondError(w, http.StatusGatewayTimeout, "timeout", u.Name+" timed out")
			case errors.Is(err, context.Canceled):
				// client went away
			default:
				log.Warn(r.Context(), fmt.Sprintf("proxy to %s failed", u.Name), err)
				httpx.RespondError(w, http.StatusBadGateway, "bad_gateway", u.Name+" is unreachable")
			}
		},
	}
}

func rewritePath(u *url.URL, strip, replace string) {
	if rest, ok := strings.CutPrefix(u.Path, strip); ok {
		u.Path = replace + rest
		u.RawPath = ""
	}
}
