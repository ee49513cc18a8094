package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultHeader = `# rulepack configuration
#
# Every key can be overridden with a RULEPACK_ environment variable,
# e.g. RULEPACK_DB_PATH or RULEPACK_CACHE_TTL.

`

// fileConfig is the on-disk shape of Config. Durations are written in
// their string form so viper reads them back unchanged.
type fileConfig struct {
	DBPath   string    `yaml:"db_path"`
	Framing  string    `yaml:"framing"`
	LogLevel string    `yaml:"log_level"`
	Dialects []string  `yaml:"dialects"`
	Cache    fileCache `yaml:"cache"`
}

type fileCache struct {
	TTL             string `yaml:"ttl"`
	CleanupInterval string `yaml:"cleanup_interval"`
}

// Marshal returns c as a YAML config file.
func (c Config) Marshal() ([]byte, error) {
	fc := fileConfig{
		DBPath:   c.DBPath,
		Framing:  c.Framing,
		LogLevel: c.LogLevel,
		Dialects: c.Dialects,
		Cache: fileCache{
			TTL:             c.Cache.TTL.String(),
			CleanupInterval: c.Cache.CleanupInterval.String(),
		},
	}

	var buf bytes.Buffer
	buf.WriteString(defaultHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fc); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteDefault creates a config file at path holding the default settings.
// Creates the parent directory if it doesn't exist. An existing file is
// left untouched and reported as an error.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	data, err := Defaults().Marshal()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
