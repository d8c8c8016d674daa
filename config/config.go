package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string
	GinMode  string
	LogLevel string

	DB    DB
	Redis Redis
	Minio Minio
	Kafka Kafka

	// CacheTTL bounds how stale a cached index page may get.
	CacheTTL    time.Duration
	CachePrefix string

	// CacheMaxEntries caps the in-memory cache; Redis brings its own limits.
	CacheMaxEntries int

	PostsPerPage int

	JWTSecret  string
	TokenTTL   time.Duration
	AdminToken string
	LoginURL   string

	CORSOrigins []string

	OTLPEndpoint string
	ServiceName  string
}

type DB struct {
	Driver string // mysql, postgres or sqlite
	DSN    string
	Debug  bool
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Minio struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

type Kafka struct {
	Brokers []string
	Topic   string
}

// Load reads the configuration from the environment. A .env file in the
// working directory, when present, is loaded first and never overrides
// variables that are already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg := &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DB: DB{
			Driver: getEnv("DB_DRIVER", "mysql"),
			DSN:    getEnv("DB_DSN", "root:123456@tcp(127.0.0.1:3306)/blogfeed?charset=utf8mb4&parseTime=True&loc=Local"),
			Debug:  getBool("DB_DEBUG", false),
		},
		Redis: Redis{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Minio: Minio{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "blogfeed"),
			UseSSL:    getBool("MINIO_USE_SSL", false),
			PublicURL: getEnv("MINIO_PUBLIC_URL", ""),
		},
		Kafka: Kafka{
			Brokers: getList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "posts.events"),
		},
		CacheTTL:     getDuration("CACHE_TTL", 20*time.Second),
		CachePrefix:  getEnv("CACHE_PREFIX", "index_page"),

		CacheMaxEntries: getInt("CACHE_MAX_ENTRIES", 10000),

		PostsPerPage: getInt("POSTS_PER_PAGE", 10),
		JWTSecret:    getEnv("JWT_SECRET", "my_secret_key"),
		TokenTTL:     getDuration("TOKEN_TTL", 24*time.Hour),
		AdminToken:   getEnv("ADMIN_TOKEN", ""),
		LoginURL:     getEnv("LOGIN_URL", "/auth/login/"),
		CORSOrigins:  getList("CORS_ORIGINS"),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  getEnv("OTEL_SERVICE_NAME", "blogfeed"),
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.PostsPerPage <= 0 {
		return fmt.Errorf("POSTS_PER_PAGE must be positive, got %d", c.PostsPerPage)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative, got %s", c.CacheTTL)
	}
	if c.CacheMaxEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive, got %d", c.CacheMaxEntries)
	}
	switch c.DB.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	return nil
}

// SlogLevel maps LogLevel onto slog, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}

func getList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
