// Package config loads the caching layer's startup configuration: which
// key-value backend to use, the TTL per resource kind, and the budget and
// failure mode per external API. Everything is validated at load — a
// malformed TTL or rate limit fails the deploy instead of silently
// defaulting.
package config

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"

	"github.com/travelblogr/go-common/cache"
	"github.com/travelblogr/go-common/logger"
	"github.com/travelblogr/go-common/ratelimit"
	"github.com/travelblogr/go-common/store"
)

// StoreConfig selects and configures the key-value backend. Backend
// "redis" talks to the hosted store; "memory" keeps entries in-process
// (local development, tests).
type StoreConfig struct {
	Backend string `yaml:"backend"`
	// URL is a redis:// or rediss:// connection URL. Takes precedence
	// over Addr/Password when set. Usually supplied via environment
	// expansion, e.g. ${TRAVELBLOGR_REDIS_URL}.
	URL       string `yaml:"url"`
	Addr      string `yaml:"addr"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Prefix    string `yaml:"prefix"`
	OpTimeout string `yaml:"op_timeout"`
}

// RateLimitConfig is one API's budget in the rate_limits table.
type RateLimitConfig struct {
	Limit        int64  `yaml:"limit"`
	Window       string `yaml:"window"`
	OnStoreError string `yaml:"on_store_error"`
}

// Config is the full startup configuration. Durations are human-readable
// strings ("5m", "12h", "7d").
type Config struct {
	LogLevel   string                     `yaml:"log_level"`
	LogFormat  string                     `yaml:"log_format"`
	Store      StoreConfig                `yaml:"store"`
	TTL        map[string]string          `yaml:"ttl"`
	RateLimits map[string]RateLimitConfig `yaml:"rate_limits"`
}

// Load reads, env-expands, parses, and validates a YAML config file.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: read %s", path)
	}
	return Parse(buf)
}

// Parse parses and validates YAML config bytes. ${VAR} references are
// expanded from the environment first, so credentials never live in the
// file itself.
func Parse(buf []byte) (*Config, error) {
	expanded := os.Expand(string(buf), os.Getenv)
	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.Wrap(err, "config: parse yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks everything the constructors will need. It parses every
// duration and failure mode so a bad value surfaces at startup.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "redis":
		if c.Store.URL == "" && c.Store.Addr == "" {
			return errors.New("config: redis backend requires url or addr")
		}
	case "memory":
	case "":
		return errors.New("config: store.backend is required (redis or memory)")
	default:
		return errors.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Store.OpTimeout != "" {
		if _, err := str2duration.ParseDuration(c.Store.OpTimeout); err != nil {
			return errors.Wrap(err, "config: store.op_timeout")
		}
	}
	if _, err := c.TTLPolicy(); err != nil {
		return err
	}
	if _, err := c.Limits(); err != nil {
		return err
	}
	return nil
}

// TTLPolicy builds the resource-kind TTL table.
func (c *Config) TTLPolicy() (*cache.Policy, error) {
	if len(c.TTL) == 0 {
		return nil, errors.New("config: ttl table is required")
	}
	ttls := make(map[cache.Kind]time.Duration, len(c.TTL))
	for kind, raw := range c.TTL {
		d, err := str2duration.ParseDuration(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "config: ttl for kind %q", kind)
		}
		ttls[cache.Kind(kind)] = d
	}
	return cache.NewPolicy(ttls)
}

// Limits builds the per-API rate-limit table.
func (c *Config) Limits() (map[string]ratelimit.APILimit, error) {
	if len(c.RateLimits) == 0 {
		return nil, errors.New("config: rate_limits table is required")
	}
	limits := make(map[string]ratelimit.APILimit, len(c.RateLimits))
	for api, rl := range c.RateLimits {
		window, err := str2duration.ParseDuration(rl.Window)
		if err != nil {
			return nil, errors.Wrapf(err, "config: rate limit window for %q", api)
		}
		mode := ratelimit.FailOpen
		if rl.OnStoreError != "" {
			mode, err = ratelimit.ParseFailureMode(rl.OnStoreError)
			if err != nil {
				return nil, errors.Wrapf(err, "config: rate limit for %q", api)
			}
		}
		if rl.Limit <= 0 {
			return nil, errors.Errorf("config: rate limit for %q must be positive, got %d", api, rl.Limit)
		}
		limits[api] = ratelimit.APILimit{
			Limit:        rl.Limit,
			Window:       window,
			OnStoreError: mode,
		}
	}
	return limits, nil
}

// NewStore builds the configured key-value backend.
func (c *Config) NewStore(ctx context.Context) (store.Store, error) {
	var opts []store.Option
	if c.Store.Prefix != "" {
		opts = append(opts, store.WithPrefix(c.Store.Prefix))
	}
	if c.Store.OpTimeout != "" {
		d, err := str2duration.ParseDuration(c.Store.OpTimeout)
		if err != nil {
			return nil, errors.Wrap(err, "config: store.op_timeout")
		}
		opts = append(opts, store.WithOpTimeout(d))
	}
	switch c.Store.Backend {
	case "memory":
		return store.NewMemory(ctx, opts...), nil
	case "redis":
		var ropts *redis.Options
		if c.Store.URL != "" {
			parsed, err := redis.ParseURL(c.Store.URL)
			if err != nil {
				return nil, errors.Wrap(err, "config: store.url")
			}
			ropts = parsed
		} else {
			ropts = &redis.Options{
				Addr:     c.Store.Addr,
				Username: c.Store.Username,
				Password: c.Store.Password,
			}
		}
		return store.NewRedis(redis.NewClient(ropts), opts...), nil
	default:
		return nil, errors.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
}

// NewLogger builds the configured logger. Format "json" is for production;
// anything else gets the console logger.
func (c *Config) NewLogger() logger.Logger {
	level := logger.GetLevelFromEnv()
	switch c.LogLevel {
	case "trace":
		level = logger.LevelTrace
	case "debug":
		level = logger.LevelDebug
	case "info":
		level = logger.LevelInfo
	case "warn":
		level = logger.LevelWarn
	case "error":
		level = logger.LevelError
	}
	if c.LogFormat == "json" {
		return logger.NewJSONLogger(level)
	}
	return logger.NewConsoleLogger(level)
}
