package httpx

import (
	"net/http"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

var propagatorOnce sync.Once

// Instrument wraps h in an otelhttp handler named after the service and
// installs W3C trace context propagation so spans continue across the
// gateway and the services behind it.
func Instrument(h http.Handler, service string) http.Handler {
	propagatorOnce.Do(func() {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	})
	return otelhttp.NewHandler(h, service)
}
