package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/RichardoC/pawtrack/internal/purge"
)

// Config is the runtime configuration shared by the server, the reference
// message store and the CLI.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Purge    PurgeConfig    `mapstructure:"purge"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	MsgStore MsgStoreConfig `mapstructure:"msgstore"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// BackendConfig points at the upstream message API.
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"` // per request
}

type AuthConfig struct {
	CookieName string `mapstructure:"cookie_name"`
}

type PurgeConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	MaxPages    int           `mapstructure:"max_pages"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// MsgStoreConfig configures the reference message store.
type MsgStoreConfig struct {
	Addr  string `mapstructure:"addr"`
	Token string `mapstructure:"token"`
}

const (
	MaxConcurrency = 200
	envPrefix      = "PAWTRACK"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8100")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("backend.base_url", "http://localhost:8200")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("auth.cookie_name", "token")
	v.SetDefault("purge.concurrency", 20)
	v.SetDefault("purge.max_pages", 1000)
	v.SetDefault("purge.timeout", purge.DefaultTimeout)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.path", "pawtrack.db")
	v.SetDefault("msgstore.addr", ":8200")
	v.SetDefault("msgstore.token", "")
}

// Load reads configuration from configPath (if set) or from config.yaml in
// ./configs or the working directory. A missing default file is not an
// error; every key has a default and can be overridden with PAWTRACK_*
// environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks the values that cannot be defaulted sensibly.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend.base_url: %q", c.Backend.BaseURL)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}
	if c.Purge.Concurrency < 1 || c.Purge.Concurrency > MaxConcurrency {
		return fmt.Errorf("purge.concurrency must be between 1 and %d, got %d", MaxConcurrency, c.Purge.Concurrency)
	}
	if c.Purge.MaxPages < 1 {
		return fmt.Errorf("purge.max_pages must be at least 1")
	}
	if c.Purge.Timeout <= 0 {
		return fmt.Errorf("purge.timeout must be positive")
	}
	if c.Auth.CookieName == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("invalid log format: %s, must be 'json' or 'console'", c.Log.Format)
	}

	return nil
}
