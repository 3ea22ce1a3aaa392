// Package config loads runtask settings from an optional YAML file,
// RUNTASK_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. RUNTASK_API_BASE_URL.
const EnvPrefix = "RUNTASK"

type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Poll    PollConfig    `mapstructure:"poll"`
	Display DisplayConfig `mapstructure:"display"`
	Logger  LoggerConfig  `mapstructure:"logger"`
	Update  UpdateConfig  `mapstructure:"update"`
}

type APIConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Token           string        `mapstructure:"token"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RequestIDHeader string        `mapstructure:"request_id_header"`
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	PageSize int           `mapstructure:"page_size"`
}

type DisplayConfig struct {
	// Host replaces the {WINDOW_HOSTNAME} placeholder in task output.
	// Empty means the host[:port] of api.base_url.
	Host string `mapstructure:"host"`
}

type LoggerConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

type UpdateConfig struct {
	Check bool `mapstructure:"check"`
}

// Defaults.
const (
	DefaultBaseURL         = "http://127.0.0.1:8080"
	DefaultRequestIDHeader = "X-Request-ID"
	DefaultPollInterval    = time.Second
	DefaultPageSize        = 200
)

// FlagKeys maps persistent flag names to config keys for BindFlags.
var FlagKeys = map[string]string{
	"api":       "api.base_url",
	"token":     "api.token",
	"log-level": "logger.level",
	"interval":  "poll.interval",
	"host":      "display.host",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", DefaultBaseURL)
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", time.Duration(0))
	v.SetDefault("api.request_id_header", DefaultRequestIDHeader)
	v.SetDefault("poll.interval", DefaultPollInterval)
	v.SetDefault("poll.page_size", DefaultPageSize)
	v.SetDefault("display.host", "")
	v.SetDefault("logger.level", "warn")
	v.SetDefault("logger.encoding", "console")
	v.SetDefault("logger.output_paths", []string{"stderr"})
	v.SetDefault("logger.error_output_paths", []string{"stderr"})
	v.SetDefault("update.check", true)
}

// Dir returns the runtask configuration directory, honoring XDG_CONFIG_HOME.
// Returns "" when no home directory can be determined.
func Dir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "runtask")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "runtask")
}

// Load reads configuration. An explicit path must exist; without one the
// default config.yaml in Dir() is used when present. Flags in fs that appear
// in FlagKeys override file and environment values when set.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range FlagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if dir := Dir(); dir != "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at request time.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api.base_url %q", c.API.BaseURL)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive, got %v", c.Poll.Interval)
	}
	if c.Poll.PageSize <= 0 {
		return fmt.Errorf("poll.page_size must be positive, got %d", c.Poll.PageSize)
	}
	return nil
}

// DisplayHost returns the value substituted for the host placeholder.
func (c *Config) DisplayHost() string {
	if c.Display.Host != "" {
		return c.Display.Host
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}
