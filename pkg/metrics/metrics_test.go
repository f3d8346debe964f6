package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetrics_CountsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg, "cart-service")

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/items/{id}", "418"))
	assert.Equal(t, float64(2), got)
}

func TestSyncMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewSyncMetrics(reg)
	s.Success("push_add")
	s.Failure("push_add")
	s.Failure("push_add")

	assert.Equal(t, float64(1), testutil.ToFloat64(s.ops.WithLabelValues("push_add", "success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(s.ops.WithLabelValues("push_add", "failure")))
}

func TestNilSafe(t *testing.T) {
	var s *SyncMetrics
	s.Success("x")
	m := NewHTTPMetrics(nil, "svc")
	h := m.Middleware(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
