package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %s", cfg.Server.Addr)
	}
	if cfg.Server.Prefix != "/semtypes/" {
		t.Errorf("expected default prefix /semtypes/, got %s", cfg.Server.Prefix)
	}
	if cfg.Storage.Backend != "nats" {
		t.Errorf("expected nats backend by default, got %s", cfg.Storage.Backend)
	}
	if cfg.Storage.Buckets.Types != "SEMTYPES_TYPES" {
		t.Errorf("expected types bucket SEMTYPES_TYPES, got %s", cfg.Storage.Buckets.Types)
	}
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("expected debounce 500ms, got %v", cfg.Watch.Debounce)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing addr",
			modify:  func(c *Config) { c.Server.Addr = "" },
			wantErr: true,
		},
		{
			name:    "relative prefix",
			modify:  func(c *Config) { c.Server.Prefix = "semtypes" },
			wantErr: true,
		},
		{
			name:    "unknown backend",
			modify:  func(c *Config) { c.Storage.Backend = "postgres" },
			wantErr: true,
		},
		{
			name: "bolt without path",
			modify: func(c *Config) {
				c.Storage.Backend = "bolt"
				c.Storage.BoltPath = ""
			},
			wantErr: true,
		},
		{
			name:    "nats without url",
			modify:  func(c *Config) { c.NATS.URL = "" },
			wantErr: true,
		},
		{
			name: "memory needs nothing",
			modify: func(c *Config) {
				c.Storage.Backend = "MEMORY"
				c.NATS.URL = ""
			},
			wantErr: false,
		},
		{
			name:    "negative debounce",
			modify:  func(c *Config) { c.Watch.Debounce = -time.Second },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temp file with config
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
server:
  addr: ":9090"
  prefix: "/api/semtypes/"
storage:
  backend: bolt
  bolt_path: "/var/lib/semtypes.db"
  buckets:
    models: "MY_MODELS"
nats:
  url: "nats://test:4222"
search:
  index_dir: "/var/lib/semtypes-index"
watch:
  debounce: 2s
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("expected addr :9090, got %s", cfg.Server.Addr)
	}
	if cfg.Server.Prefix != "/api/semtypes/" {
		t.Errorf("expected prefix /api/semtypes/, got %s", cfg.Server.Prefix)
	}
	if cfg.Storage.Backend != "bolt" {
		t.Errorf("expected bolt backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Storage.Buckets.Models != "MY_MODELS" {
		t.Errorf("expected models bucket MY_MODELS, got %s", cfg.Storage.Buckets.Models)
	}
	// Unset buckets keep their defaults.
	if cfg.Storage.Buckets.Columns != "SEMTYPES_COLUMNS" {
		t.Errorf("expected default columns bucket, got %s", cfg.Storage.Buckets.Columns)
	}
	if cfg.NATS.URL != "nats://test:4222" {
		t.Errorf("expected NATS URL nats://test:4222, got %s", cfg.NATS.URL)
	}
	if cfg.Search.IndexDir != "/var/lib/semtypes-index" {
		t.Errorf("expected index dir, got %s", cfg.Search.IndexDir)
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("expected debounce 2s, got %v", cfg.Watch.Debounce)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Server: ServerConfig{
			Addr: ":7000",
		},
		Storage: StorageConfig{
			Buckets: BucketsConfig{Relations: "RELS"},
		},
	}

	base.Merge(override)

	if base.Server.Addr != ":7000" {
		t.Errorf("expected addr :7000, got %s", base.Server.Addr)
	}
	// Prefix should remain from base since override didn't set it
	if base.Server.Prefix != "/semtypes/" {
		t.Errorf("expected prefix to remain default, got %s", base.Server.Prefix)
	}
	if base.Storage.Buckets.Relations != "RELS" {
		t.Errorf("expected relations bucket RELS, got %s", base.Storage.Buckets.Relations)
	}
	if base.Storage.Buckets.Types != "SEMTYPES_TYPES" {
		t.Errorf("expected types bucket to remain default, got %s", base.Storage.Buckets.Types)
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Storage.Backend = "memory"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	// Verify file was created
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	// Load and verify
	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Storage.Backend != "memory" {
		t.Errorf("expected memory backend, got %s", loaded.Storage.Backend)
	}
	if loaded.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected shutdown timeout 10s, got %v", loaded.Server.ShutdownTimeout)
	}
}
