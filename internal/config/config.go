// Package config loads convstore settings from a YAML file, a .env file and
// the process environment, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/convstore/internal/consolidate"
	"github.com/roach88/convstore/internal/guard"
	"github.com/roach88/convstore/internal/schema"
)

// Environment variables that override file settings.
const (
	EnvDriver    = "CONVSTORE_DB_DRIVER"
	EnvDSN       = "CONVSTORE_DB_DSN"
	EnvDBURL     = "DB_URL"
	EnvMaxTags   = "CONVSTORE_MAX_TAGS"
	EnvSelfPairs = "CONVSTORE_SELF_PAIRS"
	EnvLogLevel  = "CONVSTORE_LOG_LEVEL"
)

// DefaultDSN is the SQLite database used when nothing else is configured.
const DefaultDSN = "convstore.db"

// Config is the full settings tree.
type Config struct {
	Database    Database    `yaml:"database"`
	Guard       Guard       `yaml:"guard"`
	Consolidate Consolidate `yaml:"consolidate"`
	Log         Log         `yaml:"log"`
}

// Database selects the store.
type Database struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// DSN is a file path for SQLite or a connection URL for PostgreSQL.
	DSN string `yaml:"dsn"`
}

// Guard configures the tag limit.
type Guard struct {
	MaxTagsPerPost int `yaml:"max_tags_per_post"`
}

// Consolidate configures conversation backfill.
type Consolidate struct {
	// SelfPairs is "keep" or "reject".
	SelfPairs string `yaml:"self_pairs"`
}

// Log configures the default logger.
type Log struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Database:    Database{Driver: string(schema.SQLite), DSN: DefaultDSN},
		Guard:       Guard{MaxTagsPerPost: guard.DefaultMaxTagsPerPost},
		Consolidate: Consolidate{SelfPairs: string(consolidate.SelfPairKeep)},
		Log:         Log{Level: "info"},
	}
}

// Load builds a Config from defaults, then the YAML file at path (skipped
// when path is empty), then environment overrides. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true) // Reject unknown fields
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the named .env files into the process
// environment without overriding variables already set. Missing files are
// ignored; with no names, ".env" is tried.
func LoadDotEnv(names ...string) error {
	if len(names) == 0 {
		names = []string{".env"}
	}
	for _, name := range names {
		if err := godotenv.Load(name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDriver); ok && v != "" {
		c.Database.Driver = v
	}
	if v, ok := lookup(EnvDBURL); ok && v != "" {
		c.Database.DSN = v
		if _, set := lookup(EnvDriver); !set {
			c.Database.Driver = string(schema.Postgres)
		}
	}
	if v, ok := lookup(EnvDSN); ok && v != "" {
		c.Database.DSN = v
	}
	if v, ok := lookup(EnvMaxTags); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxTags, err)
		}
		c.Guard.MaxTagsPerPost = n
	}
	if v, ok := lookup(EnvSelfPairs); ok && v != "" {
		c.Consolidate.SelfPairs = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks every field.
func (c Config) Validate() error {
	if _, err := schema.ParseFlavor(c.Database.Driver); err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Guard.MaxTagsPerPost < 1 {
		return fmt.Errorf("guard.max_tags_per_post must be at least 1, got %d", c.Guard.MaxTagsPerPost)
	}
	if _, err := consolidate.ParseSelfPairPolicy(c.Consolidate.SelfPairs); err != nil {
		return fmt.Errorf("consolidate.self_pairs: %w", err)
	}
	if _, err := c.SlogLevel(); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Flavor returns the parsed database driver.
func (c Config) Flavor() schema.Flavor {
	f, _ := schema.ParseFlavor(c.Database.Driver)
	return f
}

// SelfPairPolicy returns the parsed self-pair policy.
func (c Config) SelfPairPolicy() consolidate.SelfPairPolicy {
	p, _ := consolidate.ParseSelfPairPolicy(c.Consolidate.SelfPairs)
	return p
}

// SlogLevel parses Log.Level.
func (c Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.Log.Level))); err != nil {
		return slog.LevelInfo, err
	}
	return l, nil
}
