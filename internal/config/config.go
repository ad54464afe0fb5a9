// Package config loads the registry service configuration.
//
// Sources are applied in order, later ones winning:
//  1. built-in defaults
//  2. an optional YAML file
//  3. a .env file, if present
//  4. REGISTRY_* environment variables
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Payout modes.
const (
	PayoutLedger = "ledger"
	PayoutNEP17  = "nep17"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Registry  RegistryConfig  `yaml:"registry"`
	Payout    PayoutConfig    `yaml:"payout"`
	Chain     ChainConfig     `yaml:"chain"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Events    EventsConfig    `yaml:"events"`
	CORS      CORSConfig      `yaml:"cors"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"REGISTRY_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"REGISTRY_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"REGISTRY_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"REGISTRY_SHUTDOWN_TIMEOUT"`
}

type DatabaseConfig struct {
	Driver  string `yaml:"driver" env:"REGISTRY_DB_DRIVER"`
	DSN     string `yaml:"dsn" env:"REGISTRY_DB_DSN"`
	Migrate bool   `yaml:"migrate" env:"REGISTRY_DB_MIGRATE"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"REGISTRY_LOG_LEVEL"`
	Format string `yaml:"format" env:"REGISTRY_LOG_FORMAT"`
}

// RegistryConfig holds the initial owner. It is only applied when the
// store has never had an owner.
type RegistryConfig struct {
	InitialOwner string `yaml:"initial_owner" env:"REGISTRY_INITIAL_OWNER"`
	StatsCron    string `yaml:"stats_cron" env:"REGISTRY_STATS_CRON"`
}

type PayoutConfig struct {
	Mode string `yaml:"mode" env:"REGISTRY_PAYOUT_MODE"`
}

type ChainConfig struct {
	RPCURL       string        `yaml:"rpc_url" env:"REGISTRY_CHAIN_RPC_URL"`
	NetworkID    uint32        `yaml:"network_id" env:"REGISTRY_CHAIN_NETWORK_ID"`
	Token        string        `yaml:"token" env:"REGISTRY_CHAIN_TOKEN"`
	WIF          string        `yaml:"wif" env:"REGISTRY_CHAIN_WIF"`
	PrivateKey   string        `yaml:"private_key" env:"REGISTRY_CHAIN_PRIVATE_KEY"`
	Timeout      time.Duration `yaml:"timeout" env:"REGISTRY_CHAIN_TIMEOUT"`
	WaitTimeout  time.Duration `yaml:"wait_timeout" env:"REGISTRY_CHAIN_WAIT_TIMEOUT"`
	PollInterval time.Duration `yaml:"poll_interval" env:"REGISTRY_CHAIN_POLL_INTERVAL"`
	ValidBlocks  uint32        `yaml:"valid_blocks" env:"REGISTRY_CHAIN_VALID_BLOCKS"`
}

type AuthConfig struct {
	PublicKeyPath string `yaml:"public_key_path" env:"REGISTRY_JWT_PUBLIC_KEY_PATH"`
	PublicKeyPEM  string `yaml:"public_key_pem" env:"REGISTRY_JWT_PUBLIC_KEY"`
	Issuer        string `yaml:"issuer" env:"REGISTRY_JWT_ISSUER"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" env:"REGISTRY_RATE_LIMIT_ENABLED"`
	RPS     float64 `yaml:"rps" env:"REGISTRY_RATE_LIMIT_RPS"`
	Burst   int     `yaml:"burst" env:"REGISTRY_RATE_LIMIT_BURST"`
}

type EventsConfig struct {
	RedisURL     string `yaml:"redis_url" env:"REGISTRY_REDIS_URL"`
	RedisChannel string `yaml:"redis_channel" env:"REGISTRY_REDIS_CHANNEL"`
	Log          bool   `yaml:"log" env:"REGISTRY_EVENTS_LOG"`
	Stream       bool   `yaml:"stream" env:"REGISTRY_EVENTS_STREAM"`
}

type CORSConfig struct {
	// AllowedOrigins is a comma separated list, "*" for any.
	AllowedOrigins string `yaml:"allowed_origins" env:"REGISTRY_CORS_ORIGINS"`
}

// Origins splits AllowedOrigins.
func (c CORSConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Driver: DriverMemory},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Registry: RegistryConfig{StatsCron: "@every 1m"},
		Payout:   PayoutConfig{Mode: PayoutLedger},
		Chain: ChainConfig{
			Timeout:      30 * time.Second,
			WaitTimeout:  2 * time.Minute,
			PollInterval: 2 * time.Second,
			ValidBlocks:  100,
		},
		RateLimit: RateLimitConfig{Enabled: true, RPS: 20, Burst: 40},
		Events:    EventsConfig{RedisChannel: "cause_registry.events", Log: true, Stream: true},
		CORS:      CORSConfig{AllowedOrigins: "*"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (may
// be empty), .env and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}

	switch c.Payout.Mode {
	case PayoutLedger:
	case PayoutNEP17:
		if c.Chain.RPCURL == "" {
			errs = append(errs, errors.New("chain.rpc_url is required for nep17 payouts"))
		}
		if c.Chain.WIF == "" && c.Chain.PrivateKey == "" {
			errs = append(errs, errors.New("chain.wif or chain.private_key is required for nep17 payouts"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown payout.mode %q", c.Payout.Mode))
	}

	if c.Auth.PublicKeyPath == "" && c.Auth.PublicKeyPEM == "" {
		errs = append(errs, errors.New("auth.public_key_path or auth.public_key_pem is required"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate_limit.rps and rate_limit.burst must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// JWTPublicKey returns the PEM encoded RS256 verification key.
func (c AuthConfig) JWTPublicKey() ([]byte, error) {
	if c.PublicKeyPEM != "" {
		return []byte(c.PublicKeyPEM), nil
	}
	data, err := os.ReadFile(c.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read jwt public key: %w", err)
	}
	return data, nil
}
