package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// Component selects which detection component the daemon hosts.
type Component string

const (
	ComponentObserver Component = "observer" // Heuristic media-store observer
	ComponentNotifier Component = "notifier" // Native screenshot signal relay
)

// Config holds the daemon configuration
type Config struct {
	Component  Component `json:"component"`            // "observer" or "notifier"
	ListenAddr string    `json:"listen_addr"`          // Host channel address
	WatchDirs  []string  `json:"watch_dirs,omitempty"` // Observer roots; empty means platform picture dirs
	Signal     string    `json:"signal"`               // Notifier hook signal
	AutoStart  bool      `json:"auto_start,omitempty"` // Start detection without waiting for the host
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		Component:  ComponentObserver,
		ListenAddr: "127.0.0.1:4466",
		Signal:     "SIGUSR1",
	}
}

// Dir returns ~/.config/screencap
func Dir() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "screencap")
}

// Path returns ~/.config/screencap/config.json
func Path() string {
	return filepath.Join(Dir(), "config.json")
}

// Load reads the user config, falling back to Default when the file does
// not exist, then applies environment overrides and validates.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom is Load for an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from SCREENCAP_* variables
func (c *Config) applyEnv() {
	if v := os.Getenv("SCREENCAP_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("SCREENCAP_COMPONENT"); v != "" {
		c.Component = Component(strings.ToLower(strings.TrimSpace(v)))
	}
}

// Save writes cfg to ~/.config/screencap/config.json
func Save(cfg *Config) error {
	return SaveTo(Path(), cfg)
}

// SaveTo validates cfg and writes it to path
func SaveTo(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// Validate checks Config for validity
func (c *Config) Validate() error {
	switch c.Component {
	case ComponentObserver, ComponentNotifier:
	default:
		return fmt.Errorf("component must be %q or %q, got %q", ComponentObserver, ComponentNotifier, c.Component)
	}

	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("listen_addr %q is not host:port: %w", c.ListenAddr, err)
	}

	if c.Component == ComponentNotifier && strings.TrimSpace(c.Signal) == "" {
		return fmt.Errorf("signal is required for the notifier component")
	}

	for _, dir := range c.WatchDirs {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("watch_dirs must not contain empty entries")
		}
	}

	return nil
}

// ResolveWatchDirs expands a leading ~ in the configured directories. It
// returns nil when none are configured, leaving the choice to the caller.
func (c *Config) ResolveWatchDirs() []string {
	if len(c.WatchDirs) == 0 {
		return nil
	}
	home := os.Getenv("HOME")
	dirs := make([]string, 0, len(c.WatchDirs))
	for _, dir := range c.WatchDirs {
		if dir == "~" {
			dir = home
		} else if strings.HasPrefix(dir, "~/") {
			dir = filepath.Join(home, dir[2:])
		}
		dirs = append(dirs, dir)
	}
	return dirs
}
