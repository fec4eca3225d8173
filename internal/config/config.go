package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Env      string         `yaml:"env" env:"APP_ENV"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Tracking TrackingConfig `yaml:"tracking"`
	Sending  SendingConfig  `yaml:"sending"`
	Export   ExportConfig   `yaml:"export"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port           int      `yaml:"port" env:"PORT"`
	Host           string   `yaml:"host" env:"SERVER_HOST"`
	TrackingPort   int      `yaml:"tracking_port" env:"TRACKING_PORT"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	// ReadTimeoutSeconds also bounds write time for non-streaming handlers.
	ReadTimeoutSeconds int `yaml:"read_timeout_seconds"`
}

type DatabaseConfig struct {
	URL          string `yaml:"url" env:"DATABASE_URL"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	// Memory switches every repository to the in-process store (dev only).
	Memory bool `yaml:"memory" env:"DB_MEMORY"`
}

type RedisConfig struct {
	URL      string `yaml:"url" env:"REDIS_URL"`
	QueueKey string `yaml:"queue_key"`
}

type AuthConfig struct {
	JWTSecret          string `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTLHours      int    `yaml:"token_ttl_hours"`
	GoogleClientID     string `yaml:"google_client_id" env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `yaml:"google_client_secret" env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `yaml:"google_redirect_url" env:"GOOGLE_REDIRECT_URL"`
}

// GoogleEnabled reports whether Google sign-in is configured.
func (a AuthConfig) GoogleEnabled() bool {
	return a.GoogleClientID != "" && a.GoogleClientSecret != ""
}

// TokenTTL is the lifetime of issued API tokens.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLHours) * time.Hour
}

type TrackingConfig struct {
	BaseURL   string `yaml:"base_url" env:"TRACKING_BASE_URL"`
	Secret    string `yaml:"secret" env:"TRACKING_SECRET"`
	Transport string `yaml:"transport" env:"TRACKING_TRANSPORT"` // redis or sqs
	SQSURL    string `yaml:"sqs_queue_url" env:"TRACKING_SQS_URL"`
	SQSRegion string `yaml:"sqs_region"`
	GeoIPPath string `yaml:"geoip_db" env:"GEOIP_DB_PATH"`
}

type SendingConfig struct {
	Provider     string `yaml:"provider" env:"SEND_PROVIDER"` // ses, resend or log
	SESRegion    string `yaml:"ses_region" env:"AWS_SES_REGION"`
	SESAccessKey string `yaml:"ses_access_key" env:"AWS_SES_ACCESS_KEY"`
	SESSecretKey string `yaml:"ses_secret_key" env:"AWS_SES_SECRET_KEY"`
	SESConfigSet string `yaml:"ses_configuration_set"`
	ResendAPIKey string `yaml:"resend_api_key" env:"RESEND_API_KEY"`
	DefaultFrom  string `yaml:"default_from" env:"DEFAULT_FROM"`
}

type ExportConfig struct {
	S3Bucket string `yaml:"s3_bucket" env:"EXPORT_S3_BUCKET"`
	S3Region string `yaml:"s3_region" env:"EXPORT_S3_REGION"`
	S3Prefix string `yaml:"s3_prefix"`
}

type WorkerConfig struct {
	Concurrency         int `yaml:"concurrency" env:"WORKER_CONCURRENCY"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	MaxAttempts         int `yaml:"max_attempts"`
	BatchSize           int `yaml:"batch_size"`
}

// PollInterval is how often the scheduler looks for due enrollments.
func (w WorkerConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSeconds) * time.Second
}

type LogConfig struct {
	Level     string `yaml:"level" env:"LOG_LEVEL"`
	RedactPII bool   `yaml:"redact_pii" env:"LOG_REDACT_PII"`
}

// Address returns host:port for the API listener.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TrackingAddress returns host:port for the standalone tracking listener.
func (s ServerConfig) TrackingAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.TrackingPort)
}

// Load reads the YAML file at path and fills in defaults. An empty path
// yields a defaults-only config.
func Load(path string) (*Config, error) {
	cfg := Config{Log: LogConfig{RedactPII: true}}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads .env (if present), then the YAML file, then applies
// environment overrides.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.TrackingPort == 0 {
		c.Server.TrackingPort = 8081
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Redis.QueueKey == "" {
		c.Redis.QueueKey = "mailcraft:jobs"
	}
	if c.Auth.TokenTTLHours == 0 {
		c.Auth.TokenTTLHours = 24
	}
	if c.Tracking.Transport == "" {
		c.Tracking.Transport = "redis"
	}
	if c.Tracking.BaseURL == "" {
		c.Tracking.BaseURL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	c.Tracking.BaseURL = strings.TrimRight(c.Tracking.BaseURL, "/")
	if c.Sending.Provider == "" {
		c.Sending.Provider = "log"
	}
	if c.Sending.SESRegion == "" {
		c.Sending.SESRegion = "us-west-2"
	}
	if c.Export.S3Region == "" {
		c.Export.S3Region = c.Sending.SESRegion
	}
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 4
	}
	if c.Worker.PollIntervalSeconds == 0 {
		c.Worker.PollIntervalSeconds = 30
	}
	if c.Worker.MaxAttempts == 0 {
		c.Worker.MaxAttempts = 5
	}
	if c.Worker.BatchSize == 0 {
		c.Worker.BatchSize = 200
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// IsProduction reports whether the config targets production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate rejects configurations that cannot run safely. Development mode
// tolerates missing secrets; production does not.
func (c *Config) Validate() error {
	var errs []error
	if !c.Database.Memory && c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	switch c.Tracking.Transport {
	case "redis":
	case "sqs":
		if c.Tracking.SQSURL == "" {
			errs = append(errs, errors.New("tracking.sqs_queue_url is required for sqs transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("tracking.transport %q is not redis or sqs", c.Tracking.Transport))
	}
	switch c.Sending.Provider {
	case "ses", "log":
	case "resend":
		if c.Sending.ResendAPIKey == "" {
			errs = append(errs, errors.New("sending.resend_api_key is required for resend"))
		}
	default:
		errs = append(errs, fmt.Errorf("sending.provider %q is not ses, resend or log", c.Sending.Provider))
	}
	if c.IsProduction() {
		if len(c.Auth.JWTSecret) < 32 {
			errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes"))
		}
		if len(c.Tracking.Secret) < 32 {
			errs = append(errs, errors.New("tracking.secret must be at least 32 bytes"))
		}
		if c.Sending.Provider == "log" {
			errs = append(errs, errors.New("sending.provider log is not allowed in production"))
		}
	}
	return errors.Join(errs...)
}

// DevSecrets fills missing secrets with fixed development values. It is a
// no-op in production, where Validate refuses to start instead.
func (c *Config) DevSecrets() {
	if c.IsProduction() {
		return
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = "dev-jwt-secret-not-for-production"
	}
	if c.Tracking.Secret == "" {
		c.Tracking.Secret = "dev-tracking-secret-not-for-production"
	}
}
