// Package config loads and hot-reloads the gateway's YAML configuration
// file, with environment-variable overrides and an optional
// JSON-with-comments (HuJSON) override file for hand-edited deployments.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// Config is the gateway's top-level configuration (spec.md §6 external
// interfaces, plus the ambient knobs the command surface reads).
type Config struct {
	Listen string `yaml:"listen"`

	AuthDir string `yaml:"auth_dir"`

	SecretStore SecretStoreConfig `yaml:"secret_store"`

	Log LogConfig `yaml:"log"`

	OAuthCallback OAuthCallbackConfig `yaml:"oauth_callback"`
}

// SecretStoreConfig selects and configures the account-blob persistence
// backend (internal/secretstore).
type SecretStoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`

	Backup BackupConfig `yaml:"backup"`
}

// BackupConfig configures the optional S3-compatible snapshot exporter.
type BackupConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// LogConfig configures structured logging and file rotation.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// OAuthCallbackConfig configures the local callback listener the CLI
// command surface starts during `login` (spec.md §4.7.1).
type OAuthCallbackConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

func defaults() Config {
	return Config{
		Listen:  ":8089",
		AuthDir: "./data",
		SecretStore: SecretStoreConfig{
			Driver: "sqlite",
			DSN:    "./data/accounts.db",
		},
		Log: LogConfig{
			Level:      "info",
			File:       "./logs/vendorgate.log",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		OAuthCallback: OAuthCallbackConfig{TimeoutSeconds: 300},
	}
}

// Load reads path (YAML), applies an optional "<path>.local.jsonc"
// HuJSON override file if present, then applies environment overrides
// from a sibling ".env" file (godotenv), falling back to defaults for
// anything unset.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	overridePath := path + ".local.jsonc"
	if data, err := os.ReadFile(overridePath); err == nil {
		standard, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", overridePath, err)
		}
		if err := yamlOrJSONMerge(standard, &cfg); err != nil {
			return nil, fmt.Errorf("config: merge %s: %w", overridePath, err)
		}
	}

	envPath := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			log.WithError(err).WithField("path", envPath).Warn("config: failed to load .env overrides")
		}
	}
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// yamlOrJSONMerge decodes standardized JSON (HuJSON output is plain JSON,
// which yaml.Unmarshal also accepts) into cfg, overwriting only the fields
// present in data.
func yamlOrJSONMerge(data []byte, cfg *Config) error {
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VENDORGATE_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("VENDORGATE_AUTH_DIR"); v != "" {
		cfg.AuthDir = v
	}
	if v := os.Getenv("VENDORGATE_SECRET_STORE_DSN"); v != "" {
		cfg.SecretStore.DSN = v
	}
	if v := os.Getenv("VENDORGATE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Watcher hot-reloads Config from disk on file change (fsnotify), per
// spec.md §6's "config hot-reload" ambient requirement. Callers read the
// current value via Current(); Close stops the underlying watcher.
type Watcher struct {
	path    string
	current atomic.Pointer[Config]
	watcher *fsnotify.Watcher
	mu      sync.Mutex
	closed  bool
}

// NewWatcher loads path once, then watches it (and its HuJSON override
// sibling) for changes, reloading on write events.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", dir, err)
	}

	w := &Watcher{path: path, watcher: fw}
	w.current.Store(cfg)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	base := filepath.Base(w.path)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				log.WithError(err).WithField("path", w.path).Warn("config: reload failed, keeping previous config")
				continue
			}
			w.current.Store(cfg)
			log.WithField("path", w.path).Info("config: reloaded")
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("config: watcher error")
		}
	}
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.watcher.Close()
}
