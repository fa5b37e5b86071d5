// Package config loads the genie host configuration from a YAML file and
// GENIE_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/genie"
	"github.com/aretw0/genie/internal/logging"
	"github.com/aretw0/genie/pkg/content"
	"github.com/aretw0/genie/pkg/flow"
	"github.com/aretw0/genie/pkg/persistence/middleware"
	"github.com/aretw0/genie/pkg/runner"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "GENIE_"

// Config is the full host configuration.
type Config struct {
	// Flow is a local flow file or Loam directory. Ignored when ContentURL is set.
	Flow string `yaml:"flow"`
	// ContentURL is the base URL of the remote content API.
	ContentURL string `yaml:"content_url"`

	Log          LogConfig           `yaml:"log"`
	Server       ServerConfig        `yaml:"server"`
	Redis        RedisConfig         `yaml:"redis"`
	Store        StoreConfig         `yaml:"store"`
	Security     SecurityConfig      `yaml:"security"`
	Input        InputConfig         `yaml:"input"`
	Timeouts     content.Timeouts    `yaml:"timeouts"`
	Intents      content.IntentTable `yaml:"intents"`
	Conversation flow.Settings       `yaml:"conversation"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Metrics         bool          `yaml:"metrics"`
}

// RedisConfig selects the Redis conversation store. An empty Addr keeps
// conversations in memory.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// StoreConfig selects the file conversation store, used when Redis is not
// configured. An empty Dir keeps conversations in memory.
type StoreConfig struct {
	Dir string `yaml:"dir"`
}

// SecurityConfig protects stored snapshots.
type SecurityConfig struct {
	// EncryptionKey is a base64 AES-256 key. Empty disables encryption.
	EncryptionKey string   `yaml:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys"`
	MaskPII       bool     `yaml:"mask_pii"`
	PIIPatterns   []string `yaml:"pii_patterns"`
}

// InputConfig bounds what a visitor may type in the terminal runner.
type InputConfig struct {
	MaxSize int `yaml:"max_size"`
}

// Default returns the production configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
			Metrics:         true,
		},
		Redis: RedisConfig{
			Prefix:  "genie:conversation:",
			TTL:     24 * time.Hour,
			LockTTL: 30 * time.Second,
		},
		Input:        InputConfig{MaxSize: runner.DefaultMaxInputSize},
		Timeouts:     content.DefaultTimeouts(),
		Intents:      content.DefaultIntentTable(),
		Conversation: flow.DefaultSettings(),
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	str("FLOW", &c.Flow)
	str("CONTENT_URL", &c.ContentURL)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("ADDR", &c.Server.Addr)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("REDIS_PREFIX", &c.Redis.Prefix)
	str("STORE_DIR", &c.Store.Dir)
	str("ENCRYPTION_KEY", &c.Security.EncryptionKey)

	if v, ok := lookup(EnvPrefix + "REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sREDIS_DB: %w", EnvPrefix, err)
		}
		c.Redis.DB = db
	}
	if v, ok := lookup(EnvPrefix + "MAX_INPUT_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_INPUT_SIZE: %w", EnvPrefix, err)
		}
		c.Input.MaxSize = n
	}
	if v, ok := lookup(EnvPrefix + "REDIS_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sREDIS_TTL: %w", EnvPrefix, err)
		}
		c.Redis.TTL = d
	}
	if v, ok := lookup(EnvPrefix + "METRICS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sMETRICS: %w", EnvPrefix, err)
		}
		c.Server.Metrics = b
	}
	if v, ok := lookup(EnvPrefix + "MASK_PII"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sMASK_PII: %w", EnvPrefix, err)
		}
		c.Security.MaskPII = b
	}
	return nil
}

// Validate rejects values the hosts cannot start with.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Input.MaxSize <= 0 {
		return fmt.Errorf("input max_size must be positive, got %d", c.Input.MaxSize)
	}
	if c.Redis.TTL < 0 || c.Redis.LockTTL < 0 {
		return fmt.Errorf("redis durations must not be negative")
	}
	if _, err := c.StoreMiddleware(); err != nil {
		return err
	}
	for _, b := range c.Conversation.Beats {
		if b.From > b.To {
			return fmt.Errorf("beat %q: from %d is after to %d", b.Name, b.From, b.To)
		}
	}
	return nil
}

// Logger builds the configured logger on stderr.
func (c Config) Logger() *slog.Logger {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	return logging.NewWithOptions(logging.Options{
		Level:  level,
		Format: c.Log.Format,
		Output: os.Stderr,
	})
}

// StoreMiddleware builds the snapshot protection chain: PII masking first,
// then encryption.
func (c Config) StoreMiddleware() ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if c.Security.MaskPII {
		patterns := c.Security.PIIPatterns
		if len(patterns) == 0 {
			patterns = middleware.DefaultPIIPatterns
		}
		mw, err := middleware.NewPIIMiddleware(patterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	if c.Security.EncryptionKey != "" {
		keys, err := middleware.ParseKeys(c.Security.EncryptionKey, c.Security.FallbackKeys...)
		if err != nil {
			return nil, err
		}
		mw, err := middleware.NewEncryptionMiddleware(keys)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	return mws, nil
}

// EngineOptions maps the conversation tuning onto engine options.
func (c Config) EngineOptions(logger *slog.Logger) []genie.Option {
	return []genie.Option{
		genie.WithSettings(c.Conversation),
		genie.WithIntentTable(c.Intents),
		genie.WithTimeouts(c.Timeouts),
		genie.WithLogger(logger),
	}
}
