package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cataloghttp "github.com/fjod/homeservices/catalog-service/internal/http"
	"github.com/fjod/homeservices/catalog-service/internal/repository"
	"github.com/fjod/homeservices/pkg/config"
	"github.com/fjod/homeservices/pkg/httpx"
	"github.com/fjod/homeservices/pkg/logger"
	"github.com/fjod/homeservices/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Config is read from CATALOG_* variables.
type Config struct {
	config.Logging
	HTTPPort        string        `envconfig:"HTTP_PORT" default:"8081"`
	DBPath          string        `envconfig:"DB_PATH" default:"./internal/repository/catalog.db"`
	MigrationsPath  string        `envconfig:"MIGRATIONS_PATH" default:"./internal/repository/migrations"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"5s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func main() {
	var cfg Config
	if err := config.Load("CATALOG", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{
		ServiceName: "catalog-service",
		Level:       logger.ParseLevel(cfg.Level),
		Format:      cfg.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "catalog service failed", err)
		os.Exit(1)
	}
	log.Info(ctx, "catalog service stopped")
}

func run(ctx context.Context, cfg Config, log *logger.Logger) error {
	repo, err := repository.NewRepository(cfg.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.RunMigrations(cfg.MigrationsPath); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info(ctx, "migrations completed successfully")

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	httpMetrics := metrics.NewHTTPMetrics(reg, "catalog-service")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestLogger(log))
	r.Use(httpMetrics.Middleware)
	r.Get("/health", httpx.Health)
	r.Handle("/metrics", metrics.Handler(reg))
	cataloghttp.NewCatalogHandler(repo, cfg.RequestTimeout, log).Routes(r)

	srv := httpx.NewServer(":"+cfg.HTTPPort, httpx.Instrument(r, "catalog-service"))
	return httpx.Serve(ctx, srv, cfg.ShutdownTimeout, log)
}
