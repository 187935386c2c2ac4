package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting
// prefixed env > file > legacy env > default precedence.
type Loader struct {
	envPrefix string
	files     []string
	lookupEnv func(string) (string, bool)
}

// NewLoader prepares a config hydrator for the given env prefix and optional files.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
		lookupEnv: os.LookupEnv,
	}
}

// Load assembles the effective snapshot and validates it.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	legacy, err := legacyEnvMap(l.lookupEnv)
	if err != nil {
		return Config{}, err
	}
	if len(legacy) > 0 {
		if err := k.Load(confmap.Provider(legacy, "."), nil); err != nil {
			return Config{}, fmt.Errorf("config: load legacy env: %w", err)
		}
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		canonical := map[string]string{
			"server.logging.correlationheader":   "server.logging.correlationHeader",
			"server.fulfilltimeoutseconds":       "server.fulfillTimeoutSeconds",
			"genius.baseurl":                     "genius.baseURL",
			"genius.timeoutseconds":              "genius.timeoutSeconds",
			"cache.ttlseconds":                   "cache.ttlSeconds",
			"cache.failopen":                     "cache.failOpen",
			"cache.redis.tls.cafile":             "cache.redis.tls.caFile",
			"transactions.ttldays":               "transactions.ttlDays",
			"transactions.sweepintervalseconds":  "transactions.sweepIntervalSeconds",
			"transactions.dynamodb.ttlattribute": "transactions.dynamodb.ttlAttribute",
			"tracing.servicename":                "tracing.serviceName",
		}
		transform := func(s string) string {
			// Double underscores signal a nested path (TOPTRACKS_SERVER__LISTEN__PORT -> server.listen.port).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			// Single underscores are removed so CACHE__TTL_SECONDS collapses into cache.ttlseconds.
			key = strings.ReplaceAll(key, "_", "")
			lower = strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			return lower
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Genius.Token = strings.TrimSpace(c.Genius.Token)
	c.Genius.BaseURL = strings.TrimRight(strings.TrimSpace(c.Genius.BaseURL), "/")
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	c.Transactions.Backend = strings.ToLower(strings.TrimSpace(c.Transactions.Backend))
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return json.Parser()
	case ".toml":
		return toml.Parser()
	default:
		return yaml.Parser()
	}
}

// legacyEnvMap maps the flat variables older deployments set (GENIUS_TOKEN,
// REDIS_HOST, DDB_TABLE, ...) onto config keys. Setting REDIS_HOST or
// DDB_TABLE also selects the matching backend.
func legacyEnvMap(lookup func(string) (string, bool)) (map[string]any, error) {
	if lookup == nil {
		return nil, nil
	}
	get := func(name string) (string, bool) {
		v, ok := lookup(name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	out := map[string]any{}

	if v, ok := get("GENIUS_TOKEN"); ok {
		out["genius.token"] = v
	}
	if v, ok := get("GENIUS_BASE_URL"); ok {
		out["genius.baseURL"] = v
	}

	if host, ok := get("REDIS_HOST"); ok {
		port, hasPort := get("REDIS_PORT")
		if !hasPort {
			port = "6379"
		}
		out["cache.backend"] = "redis"
		out["cache.redis.address"] = net.JoinHostPort(host, port)
	}
	if v, ok := get("REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: REDIS_DB invalid: %q", v)
		}
		out["cache.redis.db"] = db
	}
	if v, ok := get("CACHE_TTL_SECONDS"); ok {
		ttl, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: CACHE_TTL_SECONDS invalid: %q", v)
		}
		out["cache.ttlSeconds"] = ttl
	}

	if v, ok := get("AWS_REGION"); ok {
		out["transactions.dynamodb.region"] = v
	}
	if v, ok := get("DDB_TABLE"); ok {
		out["transactions.backend"] = "dynamodb"
		out["transactions.dynamodb.table"] = v
	}
	if v, ok := get("AWS_ENDPOINT_URL_DYNAMODB"); ok {
		out["transactions.dynamodb.endpoint"] = v
	}
	return out, nil
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":             cfg.Server.Logging.Level,
				"format":            cfg.Server.Logging.Format,
				"correlationHeader": cfg.Server.Logging.CorrelationHeader,
			},
			"fulfillTimeoutSeconds": cfg.Server.FulfillTimeoutSeconds,
		},
		"genius": map[string]any{
			"baseURL":        cfg.Genius.BaseURL,
			"token":          cfg.Genius.Token,
			"timeoutSeconds": cfg.Genius.TimeoutSeconds,
		},
		"cache": map[string]any{
			"backend":    cfg.Cache.Backend,
			"ttlSeconds": cfg.Cache.TTLSeconds,
			"failOpen":   cfg.Cache.FailOpen,
			"redis": map[string]any{
				"address":  cfg.Cache.Redis.Address,
				"username": cfg.Cache.Redis.Username,
				"password": cfg.Cache.Redis.Password,
				"db":       cfg.Cache.Redis.DB,
				"tls": map[string]any{
					"enabled": cfg.Cache.Redis.TLS.Enabled,
					"caFile":  cfg.Cache.Redis.TLS.CAFile,
				},
			},
		},
		"transactions": map[string]any{
			"backend":              cfg.Transactions.Backend,
			"ttlDays":              cfg.Transactions.TTLDays,
			"sweepIntervalSeconds": cfg.Transactions.SweepIntervalSeconds,
			"dynamodb": map[string]any{
				"region":       cfg.Transactions.DynamoDB.Region,
				"endpoint":     cfg.Transactions.DynamoDB.Endpoint,
				"table":        cfg.Transactions.DynamoDB.Table,
				"ttlAttribute": cfg.Transactions.DynamoDB.TTLAttribute,
			},
			"postgres": map[string]any{
				"dsn": cfg.Transactions.Postgres.DSN,
			},
			"sqlite": map[string]any{
				"path": cfg.Transactions.SQLite.Path,
			},
		},
		"tracing": map[string]any{
			"enabled":     cfg.Tracing.Enabled,
			"endpoint":    cfg.Tracing.Endpoint,
			"serviceName": cfg.Tracing.ServiceName,
		},
	}
}
