package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Observer is notified whenever a Loader's watched config file changes
// and re-validates successfully.
type Observer interface {
	OnConfigChange(ctx context.Context, cfg *ComputerConfig)
}

// Loader reads a Computer's ComputerConfig from disk via viper and,
// once Watch is called, re-reads and re-validates it on every write,
// notifying registered Observers with the new value. This mirrors the
// teacher's MCPServersConfig.Notify fan-out, generalized from a
// broker-side upstream list to a Computer-side server config.
type Loader struct {
	v      *viper.Viper
	logger *slog.Logger

	mu        sync.RWMutex
	current   *ComputerConfig
	observers []Observer
}

// NewLoader constructs a Loader reading from path. The format is
// inferred by viper from the file extension (json, yaml, toml, ...).
func NewLoader(path string, logger *slog.Logger) *Loader {
	v := viper.New()
	v.SetConfigFile(path)
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{v: v, logger: logger}
}

// Load reads and validates the config file, storing the result as the
// current config.
func (l *Loader) Load() (*ComputerConfig, error) {
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	// viper's own Unmarshal decodes by mapstructure tags; round-trip
	// through encoding/json so ComputerConfig's json tags name the keys.
	raw, err := json.Marshal(l.v.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	var cfg ComputerConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	l.mu.Lock()
	l.current = &cfg
	l.mu.Unlock()
	return &cfg, nil
}

// Current returns the most recently loaded config, or nil if Load has
// not yet succeeded.
func (l *Loader) Current() *ComputerConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// RegisterObserver registers obs to be notified of future config
// changes picked up by Watch.
func (l *Loader) RegisterObserver(obs Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, obs)
}

// Watch starts an fsnotify watch on the config file via viper, calling
// Load on every write event and notifying observers with the new
// config. Invalid rewrites are logged and ignored, leaving Current
// unchanged, so a bad edit never tears down a running Computer.
func (l *Loader) Watch(ctx context.Context) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.Load()
		if err != nil {
			l.logger.Warn("config reload failed, keeping previous config", "file", e.Name, "error", err)
			return
		}
		l.logger.Info("config reloaded", "file", e.Name, "servers", len(cfg.Servers))
		l.notify(ctx, cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) notify(ctx context.Context, cfg *ComputerConfig) {
	l.mu.RLock()
	observers := make([]Observer, len(l.observers))
	copy(observers, l.observers)
	l.mu.RUnlock()

	for _, obs := range observers {
		go obs.OnConfigChange(ctx, cfg)
	}
}
