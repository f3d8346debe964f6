// Package circuitbreaker guards outbound HTTP calls with a gobreaker
// circuit so a dead upstream fails fast instead of stacking timeouts.
package circuitbreaker

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Settings mirrors the handful of gobreaker knobs the clients care about.
type Settings struct {
	Name string
	// consecutive failures before the circuit opens
	MaxFailures uint32
	// how long the circuit stays open before a half-open probe
	OpenTimeout time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	return s
}

// Transport is an http.RoundTripper that counts 5xx responses and transport
// errors as failures.
type Transport struct {
	next http.RoundTripper
	cb   *gobreaker.CircuitBreaker[*http.Response]
}

func NewTransport(next http.RoundTripper, s Settings) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	s = s.withDefaults()
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    s.Name,
		Timeout: s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.MaxFailures
		},
	})
	return &Transport{next: next, cb: cb}
}

// serverError lets a 5xx response count against the breaker while still
// reaching the caller untouched.
type serverError struct {
	resp *http.Response
}

func (e *serverError) Error() string {
	return fmt.Sprintf("upstream returned %d", e.resp.StatusCode)
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.cb.Execute(func() (*http.Response, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, &serverError{resp: resp}
		}
		return resp, nil
	})
	var se *serverError
	if errors.As(err, &se) {
		return se.resp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.cb.Name(), err)
	}
	return resp, nil
}

func (t *Transport) State() gobreaker.State {
	return t.cb.State()
}
