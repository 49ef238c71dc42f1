// Package config loads the database configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-yaml"
	"reduction.dev/mergekv/util/size"
)

// LocationEnv names the environment variable used when the configuration
// doesn't set a storage location.
const LocationEnv = "MERGEKV_LOCATION"

type Config struct {
	// Where tables are stored: memory://, s3://bucket/prefix, or a local path.
	Location          string    `yaml:"location"`
	MemTableSize      uint64    `yaml:"memtable_size"`
	TargetTableSize   uint64    `yaml:"target_table_size"`
	CompactionTrigger int       `yaml:"compaction_trigger"`
	Log               LogConfig `yaml:"log"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Default() Config {
	return Config{
		MemTableSize:      64 * size.MB,
		TargetTableSize:   256 * size.MB,
		CompactionTrigger: 4,
		Log: LogConfig{
			Level: "WARN",
		},
	}
}

// Unmarshal parses a YAML document. Fields missing from the document keep
// their default values, and an empty document is the default configuration.
func Unmarshal(data []byte) (*Config, error) {
	c := Default()
	if !isEmptyDocument(data) {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid config document format: %v", err)
		}
		// A document of only comments decodes to null, which would zero c.
		if doc != nil {
			if err := yaml.Unmarshal(data, &c); err != nil {
				return nil, fmt.Errorf("invalid config document format: %v", err)
			}
		}
	}
	if c.Location == "" {
		c.Location = os.Getenv(LocationEnv)
	}
	return &c, nil
}

func isEmptyDocument(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("---"))
}

// Load reads the configuration at path. When the file doesn't exist the
// default configuration is used.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("config file not found, using default config", "path", path)
		return Unmarshal(nil)
	}
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

func (c *Config) Validate() (err error) {
	if c.Location == "" {
		err = errors.Join(err, fmt.Errorf("location is required (or set %s)", LocationEnv))
	}
	if c.MemTableSize == 0 {
		err = errors.Join(err, errors.New("memtable_size must be positive"))
	}
	if c.TargetTableSize == 0 {
		err = errors.Join(err, errors.New("target_table_size must be positive"))
	}
	if c.CompactionTrigger < 1 {
		err = errors.Join(err, fmt.Errorf("compaction_trigger must be at least 1 but was %d", c.CompactionTrigger))
	}
	if _, levelErr := c.LogLevel(); levelErr != nil {
		err = errors.Join(err, levelErr)
	}
	return err
}

// LogLevel parses the configured level, such as "debug" or "WARN".
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
