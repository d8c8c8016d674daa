package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/plugin/opentelemetry/tracing"

	"blogfeed/cache"
	"blogfeed/config"
	"blogfeed/events"
	"blogfeed/feed"
	"blogfeed/handlers"
	"blogfeed/media"
	"blogfeed/metrics"
	"blogfeed/posts"
	"blogfeed/store"
	"blogfeed/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.GinMode == gin.ReleaseMode {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, opts)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(c)
	}()

	db, err := store.Open(cfg.DB)
	if err != nil {
		return err
	}
	if cfg.OTLPEndpoint != "" {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			slog.Warn("Failed to enable database tracing", "error", err)
		}
	}
	st := store.New(db)

	pageCache, err := initCache(ctx, cfg)
	if err != nil {
		return err
	}
	storage, err := initMedia(ctx, cfg)
	if err != nil {
		return err
	}

	var pub events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		pub = events.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		slog.Info("Publishing post events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	defer pub.Close()

	deps := handlers.Deps{
		Store:  st,
		Feed:   feed.NewService(st, cfg.PostsPerPage),
		Posts:  posts.NewService(st, pub),
		Cache:  pageCache,
		Config: cfg,
	}
	if storage != nil {
		deps.Media = storage
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", cache.HeaderCache},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	handlers.New(deps).Register(r)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(r, "http.server"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Listening", "addr", cfg.HTTPAddr)
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

	slog.Info("Shutting down")
	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(c)
}

// initCache uses Redis when an address is configured and an in-process cache
// otherwise.
func initCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	if cfg.Redis.Addr == "" {
		slog.Info("Using in-memory page cache")
		return cache.NewMemory(cfg.CacheMaxEntries, cfg.CacheTTL), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	slog.Info("Using redis page cache", "addr", cfg.Redis.Addr)
	return cache.NewRedis(rdb, cfg.CachePrefix), nil
}

// initMedia returns nil when no object store is configured, which disables
// image uploads.
func initMedia(ctx context.Context, cfg *config.Config) (*media.Minio, error) {
	if cfg.Minio.Endpoint == "" {
		slog.Info("Image uploads disabled")
		return nil, nil
	}
	m, err := media.NewMinio(cfg.Minio)
	if err != nil {
		return nil, err
	}
	if err := m.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return m, nil
}
