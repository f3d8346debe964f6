package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	gatewayhttp "github.com/fjod/homeservices/api-gateway/internal/http"
	"github.com/fjod/homeservices/pkg/config"
	"github.com/fjod/homeservices/pkg/httpx"
	"github.com/fjod/homeservices/pkg/logger"
	"github.com/fjod/homeservices/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Config is read from GATEWAY_* variables.
type Config struct {
	config.Logging
	HTTPPort        string        `envconfig:"HTTP_PORT" default:"8080"`
	JWTSecret       string        `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer       string        `envconfig:"JWT_ISSUER"`
	CartURL         string        `envconfig:"CART_URL" default:"http://localhost:8082"`
	BookingURL      string        `envconfig:"BOOKING_URL" default:"http://localhost:8083"`
	CatalogURL      string        `envconfig:"CATALOG_URL" default:"http://localhost:8081"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func main() {
	var cfg Config
	if err := config.Load("GATEWAY", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{
		ServiceName: "api-gateway",
		Level:       logger.ParseLevel(cfg.Level),
		Format:      cfg.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "api gateway failed", err)
		os.Exit(1)
	}
	log.Info(ctx, "api gateway stopped")
}

func run(ctx context.Context, cfg Config, log *logger.Logger) error {
	var upstreams gatewayhttp.Upstreams
	for _, u := range []struct {
		raw string
		dst **url.URL
	}{
		{cfg.CartURL, &upstreams.Cart},
		{cfg.BookingURL, &upstreams.Booking},
		{cfg.CatalogURL, &upstreams.Catalog},
	} {
		parsed, err := url.Parse(u.raw)
		if err != nil {
			return fmt.Errorf("invalid upstream url %q: %w", u.raw, err)
		}
		*u.dst = parsed
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	httpMetrics := metrics.NewHTTPMetrics(reg, "api-gateway")

	r := gatewayhttp.NewRouter(gatewayhttp.RouterOptions{
		Auth:           gatewayhttp.NewAuthenticator([]byte(cfg.JWTSecret), cfg.JWTIssuer),
		Upstreams:      upstreams,
		RequestTimeout: cfg.RequestTimeout,
		Log:            log,
		Middlewares:    []func(next http.Handler) http.Handler{httpMetrics.Middleware},
	})
	r.Handle("/metrics", metrics.Handler(reg))

	log.Info(ctx, fmt.Sprintf("forwarding to cart=%s booking=%s catalog=%s", cfg.CartURL, cfg.BookingURL, cfg.CatalogURL))
	srv := httpx.NewServer(":"+cfg.HTTPPort, httpx.Instrument(r, "api-gateway"))
	return httpx.Serve(ctx, srv, cfg.ShutdownTimeout, log)
}
