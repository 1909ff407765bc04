package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all environment configuration values for the application.
// Values come from the process environment, optionally seeded from a .env file.
type Config struct {
	// ServerPort is the port the HTTP server listens on
	ServerPort string `env:"PORT" envDefault:"8080"`

	// BackendURL is the RAG backend's API root, e.g. http://localhost:8000/api
	BackendURL string `env:"RAG_API_BASE_URL" envDefault:"http://localhost:8000/api"`

	// BackendTimeout bounds every request to the backend. Answers can take a while.
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"60s"`

	// CORSOrigins are the browser origins allowed to call the view API
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:3000"`

	// DBPath is the sqlite file for persisted sessions; empty means ~/.ragdesk/ragdesk.db
	DBPath string `env:"RAGDESK_DB_PATH"`

	// Idle views are closed after ViewIdleTimeout; the sweeper runs every CleanupInterval
	ViewIdleTimeout time.Duration `env:"VIEW_IDLE_TIMEOUT" envDefault:"30m"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1m"`

	// SessionRetention is how long an untouched persisted session is kept
	SessionRetention time.Duration `env:"SESSION_RETENTION" envDefault:"720h"`

	// MaxUploadBytes caps document uploads
	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	// SecureCookies marks the desk session cookie Secure (HTTPS deployments)
	SecureCookies bool `env:"SESSION_COOKIE_SECURE" envDefault:"false"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// DotEnvLoaded reports whether a .env file was found
	DotEnvLoaded bool
}

// Load reads a .env file if present, then parses the environment.
// A missing .env file is not an error; production runs with real variables.
func Load() (*Config, error) {
	loaded := godotenv.Load() == nil

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	cfg.DotEnvLoaded = loaded

	cfg.BackendURL = strings.TrimRight(strings.TrimSpace(cfg.BackendURL), "/")
	origins := cfg.CORSOrigins[:0]
	for _, o := range cfg.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.CORSOrigins = origins

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("RAG_API_BASE_URL %q is not an absolute url", c.BackendURL)
	}

	var errs []error
	for name, d := range map[string]time.Duration{
		"BACKEND_TIMEOUT":   c.BackendTimeout,
		"VIEW_IDLE_TIMEOUT": c.ViewIdleTimeout,
		"CLEANUP_INTERVAL":  c.CleanupInterval,
		"SESSION_RETENTION": c.SessionRetention,
		"SHUTDOWN_TIMEOUT":  c.ShutdownTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes))
	}
	return errors.Join(errs...)
}
