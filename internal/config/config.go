// Package config provides configuration types, defaults and loading for
// rulepack.
//
// Values are layered, lowest precedence first: built-in defaults, the
// config file, then RULEPACK_* environment variables (RULEPACK_DB_PATH,
// RULEPACK_CACHE_TTL, ...). The config file is the one given explicitly,
// else .rulepack/config.yaml in the current directory, else
// ~/.config/rulepack/config.yaml.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/rulepack/internal/codec"
)

// LocalConfigPath is the project-local config file location.
const LocalConfigPath = ".rulepack/config.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RULEPACK"

// Config holds all configuration options for rulepack.
type Config struct {
	DBPath   string      `mapstructure:"db_path"`
	Framing  string      `mapstructure:"framing"`   // "framed" (default) or "wrapped"
	LogLevel string      `mapstructure:"log_level"` // debug, info, warn or error
	Dialects []string    `mapstructure:"dialects"`  // Dialects package sources may use
	Cache    CacheConfig `mapstructure:"cache"`
}

// CacheConfig tunes the registry's in-memory package cache.
type CacheConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		DBPath:   ".rulepack/packages.db",
		Framing:  codec.Framed.String(),
		LogLevel: "warn",
		Dialects: []string{"cue"},
		Cache: CacheConfig{
			TTL:             10 * time.Minute,
			CleanupInterval: 30 * time.Minute,
		},
	}
}

// SetDefaults registers every default with v so environment overrides
// apply to all keys.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("framing", d.Framing)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("dialects", d.Dialects)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.cleanup_interval", d.Cache.CleanupInterval)
}

// Load reads configuration into v and decodes it. path names an explicit
// config file and must exist; when empty the usual locations are searched
// and a missing file is not an error. The returned string is the file
// that was read, or empty.
func Load(v *viper.Viper, path string) (Config, string, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else if _, err := os.Stat(LocalConfigPath); err == nil {
		v.SetConfigFile(LocalConfigPath)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "rulepack"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, "", fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, "", err
	}
	return cfg, v.ConfigFileUsed(), nil
}

// Validate rejects values the rest of the program cannot act on.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if _, err := codec.ParseFraming(c.Framing); err != nil {
		return fmt.Errorf("framing: %w", err)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if len(c.Dialects) == 0 {
		return errors.New("dialects: at least one dialect is required")
	}
	if c.Cache.CleanupInterval < 0 {
		return fmt.Errorf("cache.cleanup_interval must not be negative, got %s", c.Cache.CleanupInterval)
	}
	return nil
}

// FramingMode returns the parsed framing. Call Validate first.
func (c Config) FramingMode() codec.Framing {
	f, _ := codec.ParseFraming(c.Framing)
	return f
}

// Level returns the parsed log level, or slog.LevelWarn if it is invalid.
func (c Config) Level() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelWarn
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level: invalid level %q: must be debug, info, warn or error", s)
	}
	return l, nil
}
