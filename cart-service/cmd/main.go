package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	c "github.com/fjod/homeservices/cart-service/internal/cache"
	carthttp "github.com/fjod/homeservices/cart-service/internal/http"
	"github.com/fjod/homeservices/cart-service/internal/poller"
	"github.com/fjod/homeservices/cart-service/internal/repository"
	s "github.com/fjod/homeservices/cart-service/internal/service"
	"github.com/fjod/homeservices/pkg/config"
	"github.com/fjod/homeservices/pkg/httpx"
	"github.com/fjod/homeservices/pkg/logger"
	"github.com/fjod/homeservices/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Config is read from CART_* variables.
type Config struct {
	config.Logging
	HTTPPort        string        `envconfig:"HTTP_PORT" default:"8082"`
	MongoURI        string        `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDBName     string        `envconfig:"MONGO_DB_NAME" default:"cartdb"`
	MongoMaxPool    uint64        `envconfig:"MONGO_MAX_POOL" default:"100"`
	MongoMinPool    uint64        `envconfig:"MONGO_MIN_POOL" default:"10"`
	RedisAddr       string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword   string        `envconfig:"REDIS_PASSWORD"`
	RedisDB         int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL        time.Duration `envconfig:"CACHE_TTL" default:"15m"`
	KafkaBrokers    []string      `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"5s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func main() {
	var cfg Config
	if err := config.Load("CART", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{
		ServiceName: "cart-service",
		Level:       logger.ParseLevel(cfg.Level),
		Format:      cfg.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "cart service failed", err)
		os.Exit(1)
	}
	log.Info(ctx, "cart service stopped")
}

func run(ctx context.Context, cfg Config, log *logger.Logger) error {
	mongoDB, err := repository.ConnectMongoDB(ctx, repository.MongoConfig{
		URI:         cfg.MongoURI,
		Database:    cfg.MongoDBName,
		MaxPoolSize: cfg.MongoMaxPool,
		MinPoolSize: cfg.MongoMinPool,
		AppName:     "cart-service",
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := mongoDB.Client().Disconnect(context.WithoutCancel(ctx)); err != nil {
			log.Warn(ctx, "mongo disconnect", err)
		}
	}()

	repo := repository.NewMongoRepository(mongoDB)
	if err := repo.CreateIndexes(ctx); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}
	log.Info(ctx, "connected to MongoDB")

	redisClient, err := c.ConnectRedis(ctx, c.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return err
	}
	defer redisClient.Close()

	cache := c.NewRedisCache(redisClient, cfg.CacheTTL)
	service := s.NewCartService(repo, cache, log)

	bookings := poller.NewPoller(service, log, cfg.KafkaBrokers...)
	defer bookings.Close()
	go bookings.Run(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	httpMetrics := metrics.NewHTTPMetrics(reg, "cart-service")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestLogger(log))
	r.Use(httpMetrics.Middleware)
	r.Get("/health", httpx.Health)
	r.Handle("/metrics", metrics.Handler(reg))
	carthttp.NewCartHandler(service, cfg.RequestTimeout, log).Routes(r)

	srv := httpx.NewServer(":"+cfg.HTTPPort, httpx.Instrument(r, "cart-service"))
	return httpx.Serve(ctx, srv, cfg.ShutdownTimeout, log)
}
