// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"oasis-billing/internal/domain"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type SNAPConfig struct {
	Secret           string `yaml:"secret"`
	EndpointPath     string `yaml:"endpoint_path"`
	AccessToken      string `yaml:"access_token"`
	RequireSignature *bool  `yaml:"require_signature"`
}

type FaspayConfig struct {
	MerchantID string     `yaml:"merchant_id"`
	Password   string     `yaml:"password"`
	SNAP       SNAPConfig `yaml:"snap"`
}

type XenditConfig struct {
	SecretKey          string `yaml:"secret_key"`
	WebhookToken       string `yaml:"webhook_token"`
	BaseURL            string `yaml:"base_url"`
	SuccessRedirectURL string `yaml:"success_redirect_url"`
	FailureRedirectURL string `yaml:"failure_redirect_url"`
}

type BillingConfig struct {
	OrderPrefix  string        `yaml:"order_prefix"`
	FallbackPlan string        `yaml:"fallback_plan"`
	StoreTimeout time.Duration `yaml:"store_timeout"`
	Currency     string        `yaml:"currency"`
}

type AdminConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type TelegramAlertConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type AlertConfig struct {
	Telegram TelegramAlertConfig `yaml:"telegram"`
}

type ReplayConfig struct {
	Interval          time.Duration `yaml:"interval"`
	MaxAttempts       int           `yaml:"max_attempts"`
	BatchSize         int           `yaml:"batch_size"`
	StalePendingAfter time.Duration `yaml:"stale_pending_after"` // pending longer than this is reported
}

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Faspay   FaspayConfig   `yaml:"faspay"`
	Xendit   XenditConfig   `yaml:"xendit"`
	Billing  BillingConfig  `yaml:"billing"`
	Admin    AdminConfig    `yaml:"admin"`
	Alert    AlertConfig    `yaml:"alert"`
	Replay   ReplayConfig   `yaml:"replay"`

	Runtime RuntimeConfig `yaml:"-"`
}

// GatewaySecrets is the immutable view of the signing material handed to the
// callback verifiers.
type GatewaySecrets struct {
	FaspayMerchantID     string
	FaspayPassword       string
	SNAPSecret           string
	SNAPEndpointPath     string
	SNAPAccessToken      string
	SNAPRequireSignature bool
	XenditCallbackToken  string
}

// Secrets copies the gateway secrets out of the config.
func (c *Config) Secrets() GatewaySecrets {
	return GatewaySecrets{
		FaspayMerchantID:     c.Faspay.MerchantID,
		FaspayPassword:       c.Faspay.Password,
		SNAPSecret:           c.Faspay.SNAP.Secret,
		SNAPEndpointPath:     c.Faspay.SNAP.EndpointPath,
		SNAPAccessToken:      c.Faspay.SNAP.AccessToken,
		SNAPRequireSignature: c.Faspay.SNAP.RequireSignature == nil || *c.Faspay.SNAP.RequireSignature,
		XenditCallbackToken:  c.Xendit.WebhookToken,
	}
}

// LoadConfig parses -config and -dev flags and loads the file.
func LoadConfig() (*Config, error) {
	var configPath string = ""
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// envRef matches ${NAME}. A bare $ is literal so secrets may contain it.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(b []byte) []byte {
	return envRef.ReplaceAllFunc(b, func(m []byte) []byte {
		return []byte(os.Getenv(string(m[2 : len(m)-1])))
	})
}

// Parse expands ${ENV} references, unmarshals, applies defaults and validates.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(expandEnv(b), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 60 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Faspay.SNAP.EndpointPath == "" {
		cfg.Faspay.SNAP.EndpointPath = "/callback/payment"
	}
	if cfg.Faspay.SNAP.RequireSignature == nil {
		v := true
		cfg.Faspay.SNAP.RequireSignature = &v
	}
	if cfg.Xendit.BaseURL == "" {
		cfg.Xendit.BaseURL = "https://api.xendit.co"
	}

	if cfg.Billing.OrderPrefix == "" {
		cfg.Billing.OrderPrefix = "OASIS"
	}
	cfg.Billing.OrderPrefix = strings.ToUpper(cfg.Billing.OrderPrefix)
	if cfg.Billing.FallbackPlan == "" {
		cfg.Billing.FallbackPlan = "starter"
	}
	if cfg.Billing.StoreTimeout <= 0 {
		cfg.Billing.StoreTimeout = 30 * time.Second
	}
	if cfg.Billing.Currency == "" {
		cfg.Billing.Currency = "IDR"
	}

	if cfg.Replay.Interval <= 0 {
		cfg.Replay.Interval = time.Minute
	}
	if cfg.Replay.MaxAttempts <= 0 {
		cfg.Replay.MaxAttempts = 5
	}
	if cfg.Replay.BatchSize <= 0 {
		cfg.Replay.BatchSize = 50
	}
	if cfg.Replay.StalePendingAfter <= 0 {
		cfg.Replay.StalePendingAfter = 24 * time.Hour
	}
}

// Validate fails fast on configuration the service cannot run without.
func (c *Config) Validate() error {
	if c.Faspay.MerchantID == "" {
		return fmt.Errorf("faspay.merchant_id: %w", domain.ErrConfigMissingSecret)
	}
	if c.Faspay.Password == "" {
		return fmt.Errorf("faspay.password: %w", domain.ErrConfigMissingSecret)
	}
	if c.Xendit.WebhookToken == "" {
		return fmt.Errorf("xendit.webhook_token: %w", domain.ErrConfigMissingSecret)
	}
	if !c.Runtime.Dev {
		if c.Database.URL == "" {
			return errors.New("database.url is required")
		}
		if c.Admin.JWTSecret == "" {
			return fmt.Errorf("admin.jwt_secret: %w", domain.ErrConfigMissingSecret)
		}
	}
	if !strings.HasPrefix(c.Faspay.SNAP.EndpointPath, "/") {
		return errors.New("faspay.snap.endpoint_path must start with /")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
