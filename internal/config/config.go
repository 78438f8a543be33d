package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is loaded from an optional YAML file, then overridden by
// environment variables. Defaults are safe for local development with the
// in-memory store.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	HTTP     HTTPConfig     `yaml:"http"`
	Store    StoreConfig    `yaml:"store"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Checkout CheckoutConfig `yaml:"checkout"`
	Payment  PaymentConfig  `yaml:"payment"`
	Auth     AuthConfig     `yaml:"auth"`
	Limits   LimitConfig    `yaml:"limits"`
	Cache    CacheConfig    `yaml:"cache"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

type ServiceConfig struct {
	Name string `yaml:"name"`
	Env  string `yaml:"env"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StoreConfig struct {
	// Driver selects the persistence backend: "memory" or "mysql".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type RedisConfig struct {
	// Addr empty disables redis; rate limiting and caching fall back to
	// in-process implementations.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	// Brokers empty keeps the in-memory event bus; otherwise confirmed-order
	// events are mirrored to the topic.
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type TracingConfig struct {
	// JaegerEndpoint empty disables span export.
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
}

type CheckoutConfig struct {
	Currency       string        `yaml:"currency"`
	GatewayTimeout time.Duration `yaml:"gateway_timeout"`
	GatewayRetries int           `yaml:"gateway_retries"`
	CommitRetries  int           `yaml:"commit_retries"`
}

type PaymentConfig struct {
	// DeclineRate is the simulated processors' probability of a business
	// decline, in [0,1].
	DeclineRate float64       `yaml:"decline_rate"`
	Latency     time.Duration `yaml:"latency"`
}

type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
	// AllowSelfIssue enables the development-only token endpoint.
	AllowSelfIssue bool `yaml:"allow_self_issue"`
}

type LimitConfig struct {
	Window      time.Duration `yaml:"window"`
	MaxRequests int           `yaml:"max_requests"`
}

type CacheConfig struct {
	ProductListTTL time.Duration `yaml:"product_list_ttl"`
}

type JobsConfig struct {
	AbandonedSweepSchedule string        `yaml:"abandoned_sweep_schedule"`
	AbandonedMaxAge        time.Duration `yaml:"abandoned_max_age"`
	ReconciliationSchedule string        `yaml:"reconciliation_schedule"`
}

func Default() Config {
	return Config{
		Service: ServiceConfig{Name: "storefront", Env: "dev"},
		HTTP:    HTTPConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Store:   StoreConfig{Driver: "memory"},
		Checkout: CheckoutConfig{
			Currency:       "USD",
			GatewayTimeout: 5 * time.Second,
			GatewayRetries: 2,
			CommitRetries:  3,
		},
		Payment: PaymentConfig{DeclineRate: 0.1, Latency: 150 * time.Millisecond},
		Auth:    AuthConfig{TokenTTL: time.Hour, AllowSelfIssue: true},
		Limits:  LimitConfig{Window: 15 * time.Minute, MaxRequests: 100},
		Cache:   CacheConfig{ProductListTTL: 5 * time.Minute},
		Jobs: JobsConfig{
			AbandonedSweepSchedule: "@hourly",
			AbandonedMaxAge:        24 * time.Hour,
			ReconciliationSchedule: "@every 15m",
		},
	}
}

// Load reads the YAML file at path when it exists, then applies environment
// overrides. An empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case "memory":
	case "mysql":
		if c.Store.DSN == "" {
			return fmt.Errorf("config: store.dsn is required for the mysql driver")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Checkout.GatewayTimeout <= 0 {
		return fmt.Errorf("config: checkout.gateway_timeout must be positive")
	}
	if c.Payment.DeclineRate < 0 || c.Payment.DeclineRate > 1 {
		return fmt.Errorf("config: payment.decline_rate must be within [0,1]")
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("SERVICE_NAME", &cfg.Service.Name)
	setString("ENV", &cfg.Service.Env)
	setString("HTTP_ADDR", &cfg.HTTP.Addr)
	setString("STORE_DRIVER", &cfg.Store.Driver)
	setString("STORE_DSN", &cfg.Store.DSN)
	setString("REDIS_ADDR", &cfg.Redis.Addr)
	setString("REDIS_PASSWORD", &cfg.Redis.Password)
	setString("KAFKA_TOPIC", &cfg.Kafka.Topic)
	setString("JAEGER_ENDPOINT", &cfg.Tracing.JaegerEndpoint)
	setString("AUTH_SECRET", &cfg.Auth.Secret)
	setString("CHECKOUT_CURRENCY", &cfg.Checkout.Currency)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitCSV(v)
	}
	if v := os.Getenv("GATEWAY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Checkout.GatewayTimeout = d
		}
	}
	if v := os.Getenv("PAYMENT_DECLINE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Payment.DeclineRate = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MaxRequests = n
		}
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
