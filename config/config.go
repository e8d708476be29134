// Package config provides configuration loading and management for semtypes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/semtypes/storage"
)

// Config represents the complete semtypes configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	NATS    NATSConfig    `yaml:"nats"`
	Search  SearchConfig  `yaml:"search"`
	Watch   WatchConfig   `yaml:"watch"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	// Addr is the listen address (default: :8080)
	Addr string `yaml:"addr"`
	// Prefix is the path the catalog API is mounted under (default: /semtypes/)
	Prefix string `yaml:"prefix"`
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the document store
type StorageConfig struct {
	// Backend is one of nats, bolt or memory
	Backend string `yaml:"backend"`
	// BoltPath is the database file of the bolt backend
	BoltPath string        `yaml:"bolt_path"`
	Buckets  BucketsConfig `yaml:"buckets"`
}

// BucketsConfig names the bucket of each document kind
type BucketsConfig struct {
	Types     string `yaml:"types"`
	Columns   string `yaml:"columns"`
	Models    string `yaml:"models"`
	Relations string `yaml:"relations"`
	Features  string `yaml:"features"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL, used by the nats backend
	URL string `yaml:"url"`
}

// SearchConfig configures the feature search indexes
type SearchConfig struct {
	// IndexDir holds one index per feature set (empty = in memory)
	IndexDir string `yaml:"index_dir"`
}

// WatchConfig configures the model drop-directory watcher
type WatchConfig struct {
	// Debounce is how long a file must be quiet before it is ingested
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			Prefix:          "/semtypes/",
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Backend:  storage.BackendNATS,
			BoltPath: ".semtypes/semtypes.db",
			Buckets: BucketsConfig{
				Types:     storage.BucketTypes,
				Columns:   storage.BucketColumns,
				Models:    storage.BucketModels,
				Relations: storage.BucketRelations,
				Features:  storage.BucketFeatures,
			},
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if !strings.HasPrefix(c.Server.Prefix, "/") {
		return fmt.Errorf("server.prefix must start with /")
	}
	if err := storage.ValidateBackend(c.Storage.Backend); err != nil {
		return fmt.Errorf("storage.backend: %w", err)
	}
	switch strings.ToLower(c.Storage.Backend) {
	case storage.BackendBolt:
		if c.Storage.BoltPath == "" {
			return fmt.Errorf("storage.bolt_path is required for the bolt backend")
		}
	case storage.BackendNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("nats.url is required for the nats backend")
		}
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Server
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.Prefix != "" {
		c.Server.Prefix = other.Server.Prefix
	}
	if other.Server.ShutdownTimeout != 0 {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}

	// Storage
	if other.Storage.Backend != "" {
		c.Storage.Backend = other.Storage.Backend
	}
	if other.Storage.BoltPath != "" {
		c.Storage.BoltPath = other.Storage.BoltPath
	}
	mergeString(&c.Storage.Buckets.Types, other.Storage.Buckets.Types)
	mergeString(&c.Storage.Buckets.Columns, other.Storage.Buckets.Columns)
	mergeString(&c.Storage.Buckets.Models, other.Storage.Buckets.Models)
	mergeString(&c.Storage.Buckets.Relations, other.Storage.Buckets.Relations)
	mergeString(&c.Storage.Buckets.Features, other.Storage.Buckets.Features)

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	// Search
	if other.Search.IndexDir != "" {
		c.Search.IndexDir = other.Search.IndexDir
	}

	// Watch
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
