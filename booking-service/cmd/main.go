package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	bookinghttp "github.com/fjod/homeservices/booking-service/internal/http"
	"github.com/fjod/homeservices/booking-service/internal/publisher"
	"github.com/fjod/homeservices/booking-service/internal/repository"
	"github.com/fjod/homeservices/booking-service/internal/service"
	"github.com/fjod/homeservices/pkg/config"
	"github.com/fjod/homeservices/pkg/httpx"
	"github.com/fjod/homeservices/pkg/logger"
	"github.com/fjod/homeservices/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Config is read from BOOKING_* variables.
type Config struct {
	config.Logging
	HTTPPort        string        `envconfig:"HTTP_PORT" default:"8083"`
	DBHost          string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort          int           `envconfig:"DB_PORT" default:"5432"`
	DBUser          string        `envconfig:"DB_USER" default:"postgres"`
	DBPassword      string        `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName          string        `envconfig:"DB_NAME" default:"bookings"`
	MigrationsPath  string        `envconfig:"MIGRATIONS_PATH" default:"./internal/repository/migrations"`
	KafkaBrokers    []string      `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"5s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func main() {
	var cfg Config
	if err := config.Load("BOOKING", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{
		ServiceName: "booking-service",
		Level:       logger.ParseLevel(cfg.Level),
		Format:      cfg.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "booking service failed", err)
		os.Exit(1)
	}
	log.Info(ctx, "booking service stopped")
}

func run(ctx context.Context, cfg Config, log *logger.Logger) error {
	creds := &repository.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	repo, err := repository.NewRepository(creds)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.RunMigrations(creds); err != nil {
		return err
	}
	log.Info(ctx, "database migrations completed")

	outbox := publisher.NewOutboxPoller(repo, log, cfg.KafkaBrokers...)
	defer outbox.Close()
	go outbox.Run(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	httpMetrics := metrics.NewHTTPMetrics(reg, "booking-service")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestLogger(log))
	r.Use(httpMetrics.Middleware)
	r.Get("/health", httpx.Health)
	r.Handle("/metrics", metrics.Handler(reg))
	bookinghttp.NewBookingHandler(service.NewBookingService(repo, log), cfg.RequestTimeout, log).Routes(r)

	srv := httpx.NewServer(":"+cfg.HTTPPort, httpx.Instrument(r, "booking-service"))
	return httpx.Serve(ctx, srv, cfg.ShutdownTimeout, log)
}
