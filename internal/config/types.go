package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMissingGeniusToken is returned by Validate when no upstream API token is
// configured. The service cannot start without one.
var ErrMissingGeniusToken = errors.New("config: genius.token required")

// Config holds every option the service reads at startup.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Genius       GeniusConfig       `koanf:"genius"`
	Cache        CacheConfig        `koanf:"cache"`
	Transactions TransactionsConfig `koanf:"transactions"`
	Tracing      TracingConfig      `koanf:"tracing"`
}

// ServerConfig collects listener, logging and request handling knobs.
type ServerConfig struct {
	Listen  ListenConfig  `koanf:"listen"`
	Logging LoggingConfig `koanf:"logging"`
	// FulfillTimeoutSeconds bounds the upstream, log and cache work of one
	// cache miss. It keeps running after the client goes away.
	FulfillTimeoutSeconds int `koanf:"fulfillTimeoutSeconds"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level, format, and correlation ID wiring.
type LoggingConfig struct {
	Level             string `koanf:"level"`
	Format            string `koanf:"format"`
	CorrelationHeader string `koanf:"correlationHeader"`
}

// GeniusConfig points the upstream client at the provider.
type GeniusConfig struct {
	BaseURL        string `koanf:"baseURL"`
	Token          string `koanf:"token"`
	TimeoutSeconds int    `koanf:"timeoutSeconds"`
}

type CacheConfig struct {
	Backend    string           `koanf:"backend"`
	TTLSeconds int              `koanf:"ttlSeconds"`
	FailOpen   bool             `koanf:"failOpen"`
	Redis      RedisCacheConfig `koanf:"redis"`
}

type RedisCacheConfig struct {
	Address  string         `koanf:"address"`
	Username string         `koanf:"username"`
	Password string         `koanf:"password"`
	DB       int            `koanf:"db"`
	TLS      RedisTLSConfig `koanf:"tls"`
}

type RedisTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// TransactionsConfig selects the durable audit store.
type TransactionsConfig struct {
	Backend              string         `koanf:"backend"`
	TTLDays              int            `koanf:"ttlDays"`
	SweepIntervalSeconds int            `koanf:"sweepIntervalSeconds"`
	DynamoDB             DynamoDBConfig `koanf:"dynamodb"`
	Postgres             PostgresConfig `koanf:"postgres"`
	SQLite               SQLiteConfig   `koanf:"sqlite"`
}

type DynamoDBConfig struct {
	Region       string `koanf:"region"`
	Endpoint     string `koanf:"endpoint"`
	Table        string `koanf:"table"`
	TTLAttribute string `koanf:"ttlAttribute"`
}

type PostgresConfig struct {
	DSN string `koanf:"dsn"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// TracingConfig enables OTLP/HTTP span export.
type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	ServiceName string `koanf:"serviceName"`
}

// TTL is the default artist cache expiry.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// TTL is how long an audit record is retained.
func (c TransactionsConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

func (c TransactionsConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c GeniusConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c ServerConfig) FulfillTimeout() time.Duration {
	return time.Duration(c.FulfillTimeoutSeconds) * time.Second
}

// Validate enforces invariants that keep the runtime predictable before serving traffic.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if c.Server.Listen.Port < 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port invalid: %d", c.Server.Listen.Port)
	}
	if c.Server.FulfillTimeoutSeconds <= 0 {
		return fmt.Errorf("config: server.fulfillTimeoutSeconds invalid: %d", c.Server.FulfillTimeoutSeconds)
	}
	if strings.TrimSpace(c.Genius.Token) == "" {
		return ErrMissingGeniusToken
	}
	if c.Genius.TimeoutSeconds < 0 {
		return fmt.Errorf("config: genius.timeoutSeconds invalid: %d", c.Genius.TimeoutSeconds)
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("config: cache.ttlSeconds invalid: %d", c.Cache.TTLSeconds)
	}
	switch strings.TrimSpace(strings.ToLower(c.Cache.Backend)) {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Address) == "" {
			return errors.New("config: cache.redis.address required for redis backend")
		}
	default:
		return fmt.Errorf("config: cache.backend unsupported: %s", c.Cache.Backend)
	}
	if c.Transactions.TTLDays <= 0 {
		return fmt.Errorf("config: transactions.ttlDays invalid: %d", c.Transactions.TTLDays)
	}
	if c.Transactions.SweepIntervalSeconds < 0 {
		return fmt.Errorf("config: transactions.sweepIntervalSeconds invalid: %d", c.Transactions.SweepIntervalSeconds)
	}
	switch strings.TrimSpace(strings.ToLower(c.Transactions.Backend)) {
	case "", "memory":
	case "dynamodb":
		if strings.TrimSpace(c.Transactions.DynamoDB.Table) == "" {
			return errors.New("config: transactions.dynamodb.table required for dynamodb backend")
		}
	case "postgres":
		if strings.TrimSpace(c.Transactions.Postgres.DSN) == "" {
			return errors.New("config: transactions.postgres.dsn required for postgres backend")
		}
	case "sqlite":
		if strings.TrimSpace(c.Transactions.SQLite.Path) == "" {
			return errors.New("config: transactions.sqlite.path required for sqlite backend")
		}
	default:
		return fmt.Errorf("config: transactions.backend unsupported: %s", c.Transactions.Backend)
	}
	if c.Tracing.Enabled && strings.TrimSpace(c.Tracing.Endpoint) == "" {
		return errors.New("config: tracing.endpoint required when tracing is enabled")
	}
	return nil
}

// DefaultConfig returns the baseline values. Only genius.token has no usable default.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:             "info",
				Format:            "json",
				CorrelationHeader: "X-Request-ID",
			},
			FulfillTimeoutSeconds: 30,
		},
		Genius: GeniusConfig{
			BaseURL:        "https://api.genius.com",
			TimeoutSeconds: 20,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			TTLSeconds: 7 * 24 * 60 * 60,
		},
		Transactions: TransactionsConfig{
			Backend:              "memory",
			TTLDays:              8,
			SweepIntervalSeconds: 3600,
			DynamoDB: DynamoDBConfig{
				Region:       "us-east-1",
				Table:        "artist_transactions",
				TTLAttribute: "expires_at",
			},
			SQLite: SQLiteConfig{
				Path: "./data/transactions.db",
			},
		},
		Tracing: TracingConfig{
			ServiceName: "toptracks",
		},
	}
}
