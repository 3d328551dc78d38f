package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Storage  StorageConfig
	Sweep    SweepConfig
	Catalog  CatalogConfig
	Events   EventsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig points at the S3-compatible bucket holding uploaded evidence.
type StorageConfig struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
	UploadURLTTL   time.Duration
	DownloadURLTTL time.Duration
	TicketSecret   string
	TicketTTL      time.Duration
	CleanupWorkers int
	CleanupRetries int
}

// SweepConfig controls the deadline sweep loop.
type SweepConfig struct {
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration
}

// CatalogConfig governs caching of process document catalogs.
type CatalogConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// EventsConfig configures outcome event publishing. Empty brokers disable it.
type EventsConfig struct {
	Brokers []string
	Topic   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Storage = StorageConfig{
		Endpoint:       v.GetString("STORAGE_ENDPOINT"),
		AccessKey:      v.GetString("STORAGE_ACCESS_KEY"),
		SecretKey:      v.GetString("STORAGE_SECRET_KEY"),
		Bucket:         v.GetString("STORAGE_BUCKET"),
		UseSSL:         v.GetBool("STORAGE_USE_SSL"),
		UploadURLTTL:   parseDuration(v.GetString("STORAGE_UPLOAD_URL_TTL"), 60*time.Second),
		DownloadURLTTL: parseDuration(v.GetString("STORAGE_DOWNLOAD_URL_TTL"), 5*time.Minute),
		TicketSecret:   v.GetString("STORAGE_TICKET_SECRET"),
		TicketTTL:      parseDuration(v.GetString("STORAGE_TICKET_TTL"), 30*time.Minute),
		CleanupWorkers: v.GetInt("STORAGE_CLEANUP_WORKERS"),
		CleanupRetries: v.GetInt("STORAGE_CLEANUP_RETRIES"),
	}

	cfg.Sweep = SweepConfig{
		Enabled:  v.GetBool("ENABLE_SWEEP"),
		Interval: parseDuration(v.GetString("SWEEP_INTERVAL"), 5*time.Minute),
		Timeout:  parseDuration(v.GetString("SWEEP_TIMEOUT"), 30*time.Second),
	}

	cfg.Catalog = CatalogConfig{
		CacheEnabled: v.GetBool("ENABLE_CATALOG_CACHE"),
		CacheTTL:     parseDuration(v.GetString("CATALOG_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Events = EventsConfig{
		Brokers: splitAndTrim(v.GetString("EVENTS_KAFKA_BROKERS")),
		Topic:   v.GetString("EVENTS_TOPIC"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "admissions")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "admissions-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_ENDPOINT", "localhost:9000")
	v.SetDefault("STORAGE_ACCESS_KEY", "minioadmin")
	v.SetDefault("STORAGE_SECRET_KEY", "minioadmin")
	v.SetDefault("STORAGE_BUCKET", "admission-documents")
	v.SetDefault("STORAGE_USE_SSL", false)
	v.SetDefault("STORAGE_UPLOAD_URL_TTL", "60s")
	v.SetDefault("STORAGE_DOWNLOAD_URL_TTL", "5m")
	v.SetDefault("STORAGE_TICKET_SECRET", "dev_upload_ticket_secret")
	v.SetDefault("STORAGE_TICKET_TTL", "30m")
	v.SetDefault("STORAGE_CLEANUP_WORKERS", 1)
	v.SetDefault("STORAGE_CLEANUP_RETRIES", 5)

	v.SetDefault("ENABLE_SWEEP", true)
	v.SetDefault("SWEEP_INTERVAL", "5m")
	v.SetDefault("SWEEP_TIMEOUT", "30s")

	v.SetDefault("ENABLE_CATALOG_CACHE", false)
	v.SetDefault("CATALOG_CACHE_TTL", "10m")

	v.SetDefault("EVENTS_KAFKA_BROKERS", "")
	v.SetDefault("EVENTS_TOPIC", "admissions.application-events")
}

// SetConfigFile surfaces a missing .env as a path error rather than ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
