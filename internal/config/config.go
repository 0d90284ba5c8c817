package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type ServerConfig struct {
	Port           int             `yaml:"port" envconfig:"PORT"`
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second" envconfig:"RATE_LIMIT_RPS"`
	Burst             int           `yaml:"burst" envconfig:"RATE_LIMIT_BURST"`
	TTL               time.Duration `yaml:"ttl" envconfig:"RATE_LIMIT_TTL"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"url" envconfig:"DATABASE_URL"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"DATABASE_CONN_MAX_LIFETIME"`
}

type RedisConfig struct {
	URL           string `yaml:"url" envconfig:"REDIS_URL"`
	SkipTLSVerify bool   `yaml:"skip_tls_verify" envconfig:"REDIS_SKIP_TLS_VERIFY"`
}

type JWTConfig struct {
	Secret string        `yaml:"secret" envconfig:"ACCESS_TOKEN_SECRET"`
	Leeway time.Duration `yaml:"leeway" envconfig:"JWT_LEEWAY"`
}

type S3Config struct {
	Region          string        `yaml:"region" envconfig:"AWS_REGION"`
	Bucket          string        `yaml:"bucket" envconfig:"KYC_BUCKET"`
	AccessKeyID     string        `yaml:"access_key_id" envconfig:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string        `yaml:"secret_access_key" envconfig:"AWS_SECRET_ACCESS_KEY"`
	Endpoint        string        `yaml:"endpoint" envconfig:"S3_ENDPOINT"`
	ForcePathStyle  bool          `yaml:"force_path_style" envconfig:"S3_FORCE_PATH_STYLE"`
	UploadURLTTL    time.Duration `yaml:"upload_url_ttl" envconfig:"KYC_UPLOAD_URL_TTL"`
	ViewURLTTL      time.Duration `yaml:"view_url_ttl" envconfig:"KYC_VIEW_URL_TTL"`
}

type TelegramConfig struct {
	BotToken      string `yaml:"bot_token" envconfig:"TEAM_TELEGRAM_BOT_TOKEN"`
	SupportChatID int64  `yaml:"support_chat_id" envconfig:"TEAM_TELEGRAM_CHAT_ID"`
	APIEndpoint   string `yaml:"api_endpoint" envconfig:"TELEGRAM_API_ENDPOINT"`
}

type KYCConfig struct {
	MaxAttempts      int           `yaml:"max_attempts" envconfig:"KYC_MAX_ATTEMPTS"`
	DraftTTL         time.Duration `yaml:"draft_ttl" envconfig:"KYC_DRAFT_TTL"`
	MaxFileSizeBytes int64         `yaml:"max_file_size_bytes" envconfig:"KYC_MAX_FILE_SIZE_BYTES"`
	SubmitLockTTL    time.Duration `yaml:"submit_lock_ttl" envconfig:"KYC_SUBMIT_LOCK_TTL"`
}

type CacheConfig struct {
	CatalogTTL time.Duration `yaml:"catalog_ttl" envconfig:"CATALOG_CACHE_TTL"`
}

type WorkersConfig struct {
	Concurrency      int           `yaml:"concurrency" envconfig:"WORKERS_CONCURRENCY"`
	AlertRetrySpec   string        `yaml:"alert_retry_spec" envconfig:"ALERT_RETRY_SPEC"`
	AlertMaxAttempts int           `yaml:"alert_max_attempts" envconfig:"ALERT_MAX_ATTEMPTS"`
	AlertRetryPause  time.Duration `yaml:"alert_retry_pause" envconfig:"ALERT_RETRY_PAUSE"`
	MetricsAddr      string        `yaml:"metrics_addr" envconfig:"WORKERS_METRICS_ADDR"`
}

// Config is built once at start and handed to constructors by value or pointer;
// nothing mutates it afterwards.
type Config struct {
	Env      string         `yaml:"env" envconfig:"ACTIVE_ENV"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	S3       S3Config       `yaml:"s3"`
	Telegram TelegramConfig `yaml:"telegram"`
	KYC      KYCConfig      `yaml:"kyc"`
	Cache    CacheConfig    `yaml:"cache"`
	Workers  WorkersConfig  `yaml:"workers"`
}

func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}

// Load reads .env (if any), then the YAML file (if any), then environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.Warnf("[config] .env not loaded: %v", err)
	}

	var cfg Config
	if path != "" {
		f, err := os.Open(path)
		switch {
		case err == nil:
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			logrus.Infof("[config] %s not found, using environment only", path)
		default:
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
	}

	if err := envconfig.Process("korner", &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := cfg.validateAndAddDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	return cfg
}

func (c *Config) validateAndAddDefaults() error {
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3004
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"https://korner.pro", "https://korner.lol", "http://localhost:6969"}
	}
	if c.Server.RateLimit.RequestsPerSecond == 0 {
		c.Server.RateLimit.RequestsPerSecond = 1
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = 10
	}
	if c.Server.RateLimit.TTL == 0 {
		c.Server.RateLimit.TTL = time.Hour
	}

	if c.Database.DSN == "" {
		return errors.New("database url is required")
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}

	if c.Redis.URL == "" {
		c.Redis.URL = "localhost:6379"
	}

	if c.JWT.Secret == "" {
		return errors.New("jwt secret is required")
	}
	if c.JWT.Leeway == 0 {
		c.JWT.Leeway = 2 * time.Minute
	}

	if c.S3.Region == "" {
		c.S3.Region = "us-east-1"
	}
	if c.S3.Bucket == "" {
		if c.IsProduction() {
			c.S3.Bucket = "korner-pro-private"
		} else {
			c.S3.Bucket = "korner-lol-private"
		}
	}
	if c.S3.UploadURLTTL == 0 {
		c.S3.UploadURLTTL = time.Hour
	}
	if c.S3.ViewURLTTL == 0 {
		c.S3.ViewURLTTL = 15 * time.Minute
	}

	if c.KYC.MaxAttempts == 0 {
		c.KYC.MaxAttempts = 3
	}
	if c.KYC.DraftTTL == 0 {
		c.KYC.DraftTTL = 24 * time.Hour
	}
	if c.KYC.MaxFileSizeBytes == 0 {
		c.KYC.MaxFileSizeBytes = 5 * 1024 * 1024
	}
	if c.KYC.SubmitLockTTL == 0 {
		c.KYC.SubmitLockTTL = 10 * time.Second
	}

	if c.Cache.CatalogTTL == 0 {
		c.Cache.CatalogTTL = 30 * 24 * time.Hour
	}

	if c.Workers.Concurrency == 0 {
		c.Workers.Concurrency = 2
	}
	if c.Workers.AlertRetrySpec == "" {
		c.Workers.AlertRetrySpec = "@every 30m"
	}
	if c.Workers.AlertMaxAttempts == 0 {
		c.Workers.AlertMaxAttempts = 3
	}
	if c.Workers.AlertRetryPause == 0 {
		c.Workers.AlertRetryPause = time.Second
	}
	if c.Workers.MetricsAddr == "" {
		c.Workers.MetricsAddr = ":9091"
	}

	if c.KYC.MaxAttempts < 1 {
		return fmt.Errorf("kyc.max_attempts must be positive, got %d", c.KYC.MaxAttempts)
	}
	return nil
}

// SetupLogger configures the global logrus logger for the given environment.
func SetupLogger(cfg *Config) {
	if cfg.IsProduction() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(logrus.DebugLevel)
}
