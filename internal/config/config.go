package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gatherspace/server/internal/validation"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Auth           AuthConfig
	Logging        LoggingConfig
	CORS           CORSConfig
	Email          EmailConfig
	Cache          CacheConfig
	RateLimit      RateLimitConfig
	AdminBootstrap AdminBootstrapConfig
	Jobs           JobsConfig
	Tracing        TracingConfig
	Environment    string
}

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string
}

type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

type AuthConfig struct {
	JWTSecret string
	JWTExpiry time.Duration
	Issuer    string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	AllowedOrigins  []string
	AllowAllOrigins bool
}

type EmailConfig struct {
	Enabled  bool
	APIKey   string
	From     string
	FromName string
}

type CacheConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

type RateLimitConfig struct {
	PublicPerMinute   int
	MemberPerMinute   int
	AdminPerMinute    int
	TrustedProxyCIDRs []string
}

type AdminBootstrapConfig struct {
	Email    string
	Password string
	Name     string
}

type JobsConfig struct {
	StatusInterval   time.Duration
	ReminderInterval time.Duration
	ReminderWindow   time.Duration
	CleanupInterval  time.Duration
	CleanupRetention time.Duration
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	return LoadWithFile("")
}

// LoadWithFile reads configuration from the environment, falling back
// to values from an optional YAML file of KEY: value pairs using the
// same names as the environment variables. Environment variables win
// over file values.
func LoadWithFile(path string) (Config, error) {
	if path != "" {
		values, err := readConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		fileValues = values
		defer func() { fileValues = nil }()
	}

	cfg := Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvInt("SERVER_PORT", 8080),
			BaseURL: getEnv("SERVER_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt("DATABASE_MAX_CONNS", 25),
			MinConns: getEnvInt("DATABASE_MIN_CONNS", 2),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTExpiry: time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
			Issuer:    getEnv("JWT_ISSUER", "gatherspace"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Email: EmailConfig{
			Enabled:  getEnvBool("EMAIL_ENABLED", false),
			APIKey:   getEnv("RESEND_API_KEY", ""),
			From:     getEnv("EMAIL_FROM", "no-reply@gatherspace.io"),
			FromName: getEnv("EMAIL_FROM_NAME", "GatherSpace"),
		},
		Cache: CacheConfig{
			TTL:             time.Duration(getEnvInt("CACHE_TTL_SECONDS", 300)) * time.Second,
			CleanupInterval: time.Duration(getEnvInt("CACHE_CLEANUP_SECONDS", 600)) * time.Second,
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute:   getEnvInt("RATE_LIMIT_PUBLIC", 60),
			MemberPerMinute:   getEnvInt("RATE_LIMIT_MEMBER", 300),
			AdminPerMinute:    getEnvInt("RATE_LIMIT_ADMIN", 0),
			TrustedProxyCIDRs: getEnvList("RATE_LIMIT_TRUSTED_PROXIES"),
		},
		AdminBootstrap: AdminBootstrapConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
			Name:     getEnv("ADMIN_NAME", "Administrator"),
		},
		Jobs: JobsConfig{
			StatusInterval:   time.Duration(getEnvInt("JOB_STATUS_INTERVAL_MINUTES", 5)) * time.Minute,
			ReminderInterval: time.Duration(getEnvInt("JOB_REMINDER_INTERVAL_MINUTES", 60)) * time.Minute,
			ReminderWindow:   time.Duration(getEnvInt("JOB_REMINDER_WINDOW_HOURS", 24)) * time.Hour,
			CleanupInterval:  time.Duration(getEnvInt("JOB_CLEANUP_INTERVAL_HOURS", 24)) * time.Hour,
			CleanupRetention: time.Duration(getEnvInt("JOB_CLEANUP_RETENTION_DAYS", 90)) * 24 * time.Hour,
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			Exporter:     getEnv("TRACING_EXPORTER", "none"),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "gatherspace-server"),
			OTLPEndpoint: getEnv("TRACING_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 1.0),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	cfg.CORS = loadCORS(cfg.Environment)

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Environment == "production" && len(cfg.Auth.JWTSecret) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	if cfg.Environment == "production" && !cfg.CORS.AllowAllOrigins && len(cfg.CORS.AllowedOrigins) == 0 {
		return Config{}, fmt.Errorf("CORS_ALLOWED_ORIGINS is required in production")
	}
	if cfg.Email.Enabled && cfg.Email.APIKey == "" {
		return Config{}, fmt.Errorf("RESEND_API_KEY is required when EMAIL_ENABLED is true")
	}
	if err := validation.ValidateBaseURL(cfg.Server.BaseURL, "SERVER_BASE_URL", false); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadCORS(environment string) CORSConfig {
	if environment == "development" || environment == "test" {
		return CORSConfig{AllowAllOrigins: true}
	}

	raw := getEnv("CORS_ALLOWED_ORIGINS", "")
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return CORSConfig{AllowedOrigins: origins}
}

// fileValues holds the parsed config file for the duration of a
// LoadWithFile call. Load runs once at startup, so a package-level map
// keeps the env helpers free of plumbing.
var fileValues map[string]string

func readConfigFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	parsed := map[string]any{}
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	values := make(map[string]string, len(parsed))
	for key, value := range parsed {
		switch typed := value.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(typed))
			for _, item := range typed {
				parts = append(parts, fmt.Sprint(item))
			}
			values[key] = strings.Join(parts, ",")
		default:
			values[key] = fmt.Sprint(typed)
		}
	}
	return values, nil
}

func lookup(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fileValues[key]
}

func getEnv(key, fallback string) string {
	if value := lookup(key); value != "" {
		return value
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := lookup(key)
	if raw == "" {
		return nil
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func getEnvInt(key string, fallback int) int {
	value := lookup(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := lookup(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := lookup(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
