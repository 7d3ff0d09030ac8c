package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type AdminConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type TBankConfig struct {
	TerminalKey     string `yaml:"terminal_key"`
	SecretKey       string `yaml:"secret_key"`
	BaseURL         string `yaml:"base_url"`
	SuccessURL      string `yaml:"success_url"`
	FailURL         string `yaml:"fail_url"`
	NotificationURL string `yaml:"notification_url"`
}

type PaymentConfig struct {
	TBank TBankConfig `yaml:"tbank"`

	// SBPMinAmount is the smallest amount (minor units) the SBP rail accepts.
	SBPMinAmount int64 `yaml:"sbp_min_amount"`
	// QRTTL bounds how long a QR code or hosted form stays payable.
	QRTTL time.Duration `yaml:"qr_ttl"`
	// Client-driven status polling policy.
	PollInterval    time.Duration `yaml:"poll_interval"`
	PollMaxAttempts int           `yaml:"poll_max_attempts"`
	// DescriptionMaxLen caps the order description sent to the provider.
	DescriptionMaxLen int `yaml:"description_max_len"`
}

type ReconcilerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	HTTP       HTTPConfig       `yaml:"http"`
	Admin      AdminConfig      `yaml:"admin"`
	Auth       AuthConfig       `yaml:"auth"`
	Payment    PaymentConfig    `yaml:"payment"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Security   SecurityConfig   `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8081
	}
	if cfg.Payment.SBPMinAmount <= 0 {
		cfg.Payment.SBPMinAmount = 1000 // 10 RUB in kopecks
	}
	if cfg.Payment.QRTTL <= 0 {
		cfg.Payment.QRTTL = 15 * time.Minute
	}
	if cfg.Payment.PollInterval <= 0 {
		cfg.Payment.PollInterval = 3 * time.Second
	}
	if cfg.Payment.PollMaxAttempts <= 0 {
		cfg.Payment.PollMaxAttempts = 100
	}
	if cfg.Payment.DescriptionMaxLen <= 0 {
		cfg.Payment.DescriptionMaxLen = 140
	}
	if cfg.Reconciler.Interval <= 0 {
		cfg.Reconciler.Interval = time.Minute
	}
	if cfg.Reconciler.StaleAfter <= 0 {
		cfg.Reconciler.StaleAfter = 10 * time.Minute
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Payment.TBank.TerminalKey == "" {
		return nil, errors.New("payment.tbank.terminal_key is required")
	}
	if cfg.Payment.TBank.SecretKey == "" {
		return nil, errors.New("payment.tbank.secret_key is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
