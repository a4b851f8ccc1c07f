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
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"
)

// DevSessionSecret signs session cookies when SESSION_SECRET is unset. It is
// refused in production.
const DevSessionSecret = "dev-insecure-session-secret"

// Config holds the application configuration.
type Config struct {
	Port           int
	DatabaseURL    string
	Env            string
	BaseURL        string
	AllowedOrigins []string
	LogLevel       string

	SessionSecret string
	SessionStore  string // "memory" or "redis"
	RedisURL      string
	SessionTTL    time.Duration

	ResendAPIKey string
	MailFrom     string
	BcryptCost   int

	ImageFetchTimeout time.Duration
	ImageMaxBytes     int64

	SweepSchedule string
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load builds the configuration from defaults, an optional .env file
// (ENV_FILE, default ".env"), environment variables and finally the
// command-line flags in args. Real environment variables win over the file.
func Load(args []string) (*Config, error) {
	env, err := readEnvFile(getEnv(os.LookupEnv, "ENV_FILE", ".env"))
	if err != nil {
		return nil, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := env[key]
		return v, ok
	}

	cfg := &Config{
		DatabaseURL:   getEnv(lookup, "DATABASE_URL", "file:./bookmarks.db"),
		Env:           getEnv(lookup, "APP_ENV", "development"),
		BaseURL:       getEnv(lookup, "APP_BASE_URL", "http://localhost:5173"),
		LogLevel:      getEnv(lookup, "LOG_LEVEL", "info"),
		SessionSecret: getEnv(lookup, "SESSION_SECRET", DevSessionSecret),
		SessionStore:  getEnv(lookup, "SESSION_STORE", "memory"),
		RedisURL:      getEnv(lookup, "REDIS_URL", ""),
		ResendAPIKey:  getEnv(lookup, "RESEND_API_KEY", ""),
		MailFrom:      getEnv(lookup, "MAIL_FROM", "Bookmarks <onboarding@resend.dev>"),
		SweepSchedule: getEnv(lookup, "SWEEP_SCHEDULE", "@hourly"),
	}
	cfg.AllowedOrigins = splitList(getEnv(lookup, "ALLOWED_ORIGINS", cfg.BaseURL))

	if cfg.Port, err = getEnvInt(lookup, "PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.BcryptCost, err = getEnvInt(lookup, "BCRYPT_COST", bcrypt.DefaultCost); err != nil {
		return nil, err
	}
	maxBytes, err := getEnvInt(lookup, "IMAGE_MAX_BYTES", 5<<20)
	if err != nil {
		return nil, err
	}
	cfg.ImageMaxBytes = int64(maxBytes)
	if cfg.SessionTTL, err = getEnvDuration(lookup, "SESSION_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ImageFetchTimeout, err = getEnvDuration(lookup, "IMAGE_FETCH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	flags := pflag.NewFlagSet("bookmarks", pflag.ContinueOnError)
	flags.IntVarP(&cfg.Port, "port", "p", cfg.Port, "HTTP listen port")
	flags.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "SQLite path or postgres:// URL")
	flags.StringVar(&cfg.Env, "env", cfg.Env, "runtime environment (development or production)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&cfg.SessionStore, "session-store", cfg.SessionStore, "session backend (memory or redis)")
	flags.StringVar(&cfg.SweepSchedule, "sweep-schedule", cfg.SweepSchedule, "cron schedule for maintenance sweeps")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.IsProduction() && (c.SessionSecret == DevSessionSecret || len(c.SessionSecret) < 32) {
		return errors.New("SESSION_SECRET must be set to at least 32 characters in production")
	}
	switch c.SessionStore {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("unknown session store %q", c.SessionStore)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.ImageMaxBytes <= 0 {
		return errors.New("IMAGE_MAX_BYTES must be positive")
	}
	return nil
}

// readEnvFile parses a dotenv file without touching the process
// environment. A missing file is not an error.
func readEnvFile(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return env, nil
}

// Helper to get an environment variable with a default value.
func getEnv(lookup func(string) (string, bool), key, fallback string) string {
	if value, exists := lookup(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	s := getEnv(lookup, key, "")
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	s := getEnv(lookup, key, "")
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
