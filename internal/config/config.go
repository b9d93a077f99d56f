package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config represents the application configuration
type Config struct {
	Environment string         `yaml:"environment"`
	Server      ServerConfig   `yaml:"server"`
	Database    DatabaseConfig `yaml:"database"`
	Logger      LoggerConfig   `yaml:"logger"`
	Strava      StravaConfig   `yaml:"strava"`
	Webhook     WebhookConfig  `yaml:"webhook"`
	Athletes    AthleteConfig  `yaml:"athletes"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds the SQLite location
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggerConfig holds log settings
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// StravaConfig holds Strava API credentials and webhook settings
type StravaConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	VerifyToken  string `yaml:"verify_token"`
	CallbackURL  string `yaml:"callback_url"` // public webhook URL; empty disables subscription management
	StateSecret  string `yaml:"state_secret"` // signs OAuth state; falls back to ClientSecret
	APIBaseURL   string `yaml:"api_base_url"`
	AuthURL      string `yaml:"auth_url"`
	TokenURL     string `yaml:"token_url"`
}

// WebhookConfig sizes the background event worker pool
type WebhookConfig struct {
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	EventTimeout time.Duration `yaml:"event_timeout"`
}

// AthleteConfig holds onboarding settings
type AthleteConfig struct {
	DefaultPrefix string `yaml:"default_prefix"`
	BcryptCost    int    `yaml:"bcrypt_cost"`
}

const (
	placeholderClientID     = "YOUR_CLIENT_ID"
	placeholderClientSecret = "YOUR_CLIENT_SECRET"
)

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Environment: "production",
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "data/fitleague.db",
		},
		Logger: LoggerConfig{
			Level: "info",
		},
		Strava: StravaConfig{
			APIBaseURL: "https://www.strava.com/api/v3",
			AuthURL:    "https://www.strava.com/oauth/authorize",
			TokenURL:   "https://www.strava.com/oauth/token",
		},
		Webhook: WebhookConfig{
			Workers:      4,
			QueueSize:    256,
			EventTimeout: 30 * time.Second,
		},
		Athletes: AthleteConfig{
			DefaultPrefix: "FIT",
			BcryptCost:    10,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then a .env file in the working directory,
// then environment variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(os.ExpandEnv(path))
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"APP_ENV":              &cfg.Environment,
		"HTTP_ADDR":            &cfg.Server.Addr,
		"DATABASE_PATH":        &cfg.Database.Path,
		"LOG_LEVEL":            &cfg.Logger.Level,
		"STRAVA_CLIENT_ID":     &cfg.Strava.ClientID,
		"STRAVA_CLIENT_SECRET": &cfg.Strava.ClientSecret,
		"STRAVA_REDIRECT_URI":  &cfg.Strava.RedirectURL,
		"STRAVA_VERIFY_TOKEN":  &cfg.Strava.VerifyToken,
		"STRAVA_CALLBACK_URL":  &cfg.Strava.CallbackURL,
		"STRAVA_STATE_SECRET":  &cfg.Strava.StateSecret,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("WEBHOOK_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid WEBHOOK_WORKERS: %s", v)
		}
		cfg.Webhook.Workers = n
	}
	return nil
}

// StravaEnabled reports whether real provider credentials are configured
func (c *Config) StravaEnabled() bool {
	return c.Strava.ClientID != "" && c.Strava.ClientID != placeholderClientID &&
		c.Strava.ClientSecret != "" && c.Strava.ClientSecret != placeholderClientSecret
}

// StateSigningKey returns the key used to sign OAuth state
func (c *Config) StateSigningKey() []byte {
	if c.Strava.StateSecret != "" {
		return []byte(c.Strava.StateSecret)
	}
	return []byte(c.Strava.ClientSecret)
}

// Validate checks the configuration for required fields and sane values.
// Strava credentials are optional, but a half-configured Strava section is
// an error.
func (c *Config) Validate() error {
	switch c.Environment {
	case "dev", "development", "staging", "prod", "production":
	default:
		return fmt.Errorf("environment must be one of dev, development, staging, prod, production; got %q", c.Environment)
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}

	if c.Strava.ClientID != "" || c.Strava.ClientSecret != "" {
		if c.Strava.ClientID == "" || c.Strava.ClientID == placeholderClientID {
			return errors.New("strava.client_id is required - get it from https://www.strava.com/settings/api")
		}
		if c.Strava.ClientSecret == "" || c.Strava.ClientSecret == placeholderClientSecret {
			return errors.New("strava.client_secret is required - get it from https://www.strava.com/settings/api")
		}
	}
	if c.Strava.CallbackURL != "" && c.Strava.VerifyToken == "" {
		return errors.New("strava.verify_token is required when strava.callback_url is set")
	}

	if c.Webhook.Workers <= 0 {
		return fmt.Errorf("webhook.workers must be positive, got %d", c.Webhook.Workers)
	}
	if c.Webhook.QueueSize <= 0 {
		return fmt.Errorf("webhook.queue_size must be positive, got %d", c.Webhook.QueueSize)
	}

	if c.Athletes.DefaultPrefix == "" {
		return errors.New("athletes.default_prefix is required")
	}
	if c.Athletes.BcryptCost < 4 || c.Athletes.BcryptCost > 31 {
		return fmt.Errorf("athletes.bcrypt_cost must be between 4 and 31, got %d", c.Athletes.BcryptCost)
	}

	return nil
}
