package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const dockerSecretPGPKey = "/run/secrets/pgp_public_key"

type Config struct {
	// Server
	Port string
	Env  string // development, production

	// Database
	DatabaseURL string

	// Security
	SettingsEncryptionKey string

	// Logs and bundles
	LogDir          string
	BundleDir       string
	BundleRetention time.Duration
	MaxLogBytes     int64

	// SMTP
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPass         string
	SMTPFromEmail    string
	SMTPFromName     string
	DestinationEmail string
	PGPPublicKeyPath string

	// Workflow
	SessionTTL         time.Duration
	AttemptTimeout     time.Duration
	RateLimitPerMinute int

	Cors struct {
		TrustedOrigins []string
	}
}

// Load reads .env (if present), the environment and then args, which override
// the environment for the keys they cover.
func Load(args []string) (*Config, error) {
	// Load .env file if it exists (don't error if missing)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []error

	fs := flag.NewFlagSet("supportd", flag.ContinueOnError)
	fs.StringVar(&cfg.Port, "port", getEnv("PORT", "8080"), "Server port")
	fs.StringVar(&cfg.Env, "env", getEnv("ENV", "development"), "Environment (development, production)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", getEnv("DATABASE_URL", "file:support.db"), "SQLite file or PostgreSQL connection string")
	fs.StringVar(&cfg.LogDir, "log-dir", getEnv("LOG_DIR", "logs"), "Directory holding application *.log files")
	fs.StringVar(&cfg.BundleDir, "bundle-dir", getEnv("BUNDLE_DIR", "bundles"), "Directory log bundles are written to")

	cfg.SettingsEncryptionKey = getEnv("SETTINGS_ENCRYPTION_KEY", "")
	cfg.SMTPHost = getEnv("SMTP_HOST", "")
	cfg.SMTPPort = getInt("SMTP_PORT", 587, &errs)
	cfg.SMTPUser = getEnv("SMTP_USER", "")
	cfg.SMTPPass = getEnv("SMTP_PASS", "")
	cfg.SMTPFromEmail = getEnv("SMTP_FROM_EMAIL", "")
	cfg.SMTPFromName = getEnv("SMTP_FROM_NAME", "")
	cfg.DestinationEmail = getEnv("DESTINATION_EMAIL", "")
	cfg.PGPPublicKeyPath = getEnv("PGP_PUBLIC_KEY_PATH", "")
	cfg.BundleRetention = getDuration("BUNDLE_RETENTION", 72*time.Hour, &errs)
	cfg.MaxLogBytes = int64(getInt("MAX_LOG_BYTES", 5<<20, &errs))
	cfg.SessionTTL = getDuration("SESSION_TTL", 30*time.Minute, &errs)
	cfg.AttemptTimeout = getDuration("ATTEMPT_TIMEOUT", 2*time.Minute, &errs)
	cfg.RateLimitPerMinute = getInt("RATE_LIMIT_PER_MINUTE", 30, &errs)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	// Parse CORS trusted origins from comma-separated env var
	if origins := getEnv("CORS_TRUSTED_ORIGINS", ""); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				cfg.Cors.TrustedOrigins = append(cfg.Cors.TrustedOrigins, trimmed)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if len(c.SettingsEncryptionKey) < 32 {
		return fmt.Errorf("SETTINGS_ENCRYPTION_KEY must be at least 32 characters")
	}
	if c.BundleDir == "" {
		return fmt.Errorf("BUNDLE_DIR is required")
	}
	if c.SMTPHost != "" && c.DestinationEmail == "" {
		return fmt.Errorf("DESTINATION_EMAIL is required when SMTP_HOST is set")
	}
	if c.SessionTTL <= 0 || c.AttemptTimeout <= 0 {
		return fmt.Errorf("SESSION_TTL and ATTEMPT_TIMEOUT must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// PGPPublicKey returns the armored key from PGPPublicKeyPath, falling back to
// the Docker secret. An empty string means reports are sent unencrypted.
func (c *Config) PGPPublicKey() (string, error) {
	if c.PGPPublicKeyPath != "" {
		path := c.PGPPublicKeyPath
		if !filepath.IsAbs(path) {
			cwd, _ := os.Getwd()
			path = filepath.Join(cwd, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read PGP public key at %s: %w", path, err)
		}
		return string(data), nil
	}

	if data, err := os.ReadFile(dockerSecretPGPKey); err == nil {
		return string(data), nil
	}
	return "", nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
