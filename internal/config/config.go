package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the triage assistant service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	SessionEndedRetention    time.Duration
	JanitorInterval          time.Duration
	MetricsNamespace         string
	LogLevel                 string

	AllowedOrigins []string

	// AnalysisURL is the classifier endpoint. Empty selects the local mock classifier.
	AnalysisURL     string
	AnalysisMode    string
	AnalysisTimeout time.Duration

	// JWTSecret enables HS256 verification of bearer credentials when set.
	JWTSecret string

	// DatabaseURL selects the conversation blob store (postgres://, sqlite://, or empty for memory).
	DatabaseURL string

	ComplaintFormURL    string
	ComplaintFormFields []string

	MaxAttachmentBytes int64
}

// Load reads the optional .env file and environment variables and applies safe defaults.
func Load() (Config, error) {
	if err := loadDotEnv(envOrDefault("APP_ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}

	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "triage"),
		LogLevel:                 envOrDefault("LOG_LEVEL", "info"),
		AllowedOrigins:           listFromEnv("APP_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		AnalysisURL:              stringsTrimSpace("ANALYSIS_URL"),
		AnalysisMode:             envOrDefault("ANALYSIS_MODE", "auto"),
		JWTSecret:                stringsTrimSpace("JWT_SECRET"),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		ComplaintFormURL:         envOrDefault("COMPLAINT_FORM_URL", "/user-dashboard/complaint"),
		ComplaintFormFields:      listFromEnv("COMPLAINT_FORM_FIELDS", []string{"title", "category", "description"}),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		SessionEndedRetention:    10 * time.Minute,
		JanitorInterval:          30 * time.Second,
		AnalysisTimeout:          60 * time.Second,
		MaxAttachmentBytes:       10 << 20,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionEndedRetention, err = durationFromEnv("APP_SESSION_ENDED_RETENTION", cfg.SessionEndedRetention)
	if err != nil {
		return Config{}, err
	}
	cfg.JanitorInterval, err = durationFromEnv("APP_JANITOR_INTERVAL", cfg.JanitorInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.AnalysisTimeout, err = durationFromEnv("ANALYSIS_TIMEOUT", cfg.AnalysisTimeout)
	if err != nil {
		return Config{}, err
	}
	maxBytes, err := intFromEnv("ATTACHMENT_MAX_BYTES", int(cfg.MaxAttachmentBytes))
	if err != nil {
		return Config{}, err
	}
	cfg.MaxAttachmentBytes = int64(maxBytes)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.SessionEndedRetention <= 0 {
		return fmt.Errorf("APP_SESSION_ENDED_RETENTION must be positive")
	}
	if c.AnalysisTimeout <= 0 {
		return fmt.Errorf("ANALYSIS_TIMEOUT must be positive")
	}
	if c.MaxAttachmentBytes <= 0 {
		return fmt.Errorf("ATTACHMENT_MAX_BYTES must be positive")
	}
	switch strings.ToLower(c.AnalysisMode) {
	case "auto", "http", "mock":
	default:
		return fmt.Errorf("ANALYSIS_MODE %q is invalid (expected auto|http|mock)", c.AnalysisMode)
	}
	if strings.EqualFold(c.AnalysisMode, "http") && c.AnalysisURL == "" {
		return fmt.Errorf("ANALYSIS_URL is required when ANALYSIS_MODE=http")
	}
	if len(c.ComplaintFormFields) == 0 {
		return fmt.Errorf("COMPLAINT_FORM_FIELDS must name at least one field")
	}
	return nil
}

// loadDotEnv never overrides variables already present in the environment.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string, fallback []string) []string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
