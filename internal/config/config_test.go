package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// ─────────────────────────────────────────────────────────────────────────────
// Validate
// ─────────────────────────────────────────────────────────────────────────────

func TestValidate_default(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestValidate_errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown component", func(c *Config) { c.Component = "poller" }, "component"},
		{"empty component", func(c *Config) { c.Component = "" }, "component"},
		{"listen addr without port", func(c *Config) { c.ListenAddr = "localhost" }, "listen_addr"},
		{"notifier without signal", func(c *Config) { c.Component = ComponentNotifier; c.Signal = " " }, "signal"},
		{"empty watch dir", func(c *Config) { c.WatchDirs = []string{"/tmp", ""} }, "watch_dirs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_observerWithoutSignal(t *testing.T) {
	cfg := Default()
	cfg.Signal = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("observer does not need a signal: %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Load / Save
// ─────────────────────────────────────────────────────────────────────────────

func TestLoadFrom_missingFileUsesDefaults(t *testing.T) {
	t.Setenv("SCREENCAP_LISTEN_ADDR", "")
	t.Setenv("SCREENCAP_COMPONENT", "")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("got %+v, want defaults", cfg)
	}
}

func TestLoadFrom_partialFileKeepsDefaults(t *testing.T) {
	t.Setenv("SCREENCAP_LISTEN_ADDR", "")
	t.Setenv("SCREENCAP_COMPONENT", "")

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"component":"notifier"}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Component != ComponentNotifier {
		t.Errorf("component = %q", cfg.Component)
	}
	if cfg.ListenAddr != Default().ListenAddr {
		t.Errorf("listen_addr = %q, want default", cfg.ListenAddr)
	}
	if cfg.Signal != "SIGUSR1" {
		t.Errorf("signal = %q, want default", cfg.Signal)
	}
}

func TestLoadFrom_invalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{not json`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestLoadFrom_envOverrides(t *testing.T) {
	t.Setenv("SCREENCAP_LISTEN_ADDR", "0.0.0.0:9999")
	t.Setenv("SCREENCAP_COMPONENT", " Notifier ")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:9999" {
		t.Errorf("listen_addr = %q", cfg.ListenAddr)
	}
	if cfg.Component != ComponentNotifier {
		t.Errorf("component = %q", cfg.Component)
	}
}

func TestLoadFrom_envOverrideValidated(t *testing.T) {
	t.Setenv("SCREENCAP_COMPONENT", "bogus")
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected validation error for bogus component")
	}
}

func TestSaveAndLoad(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SCREENCAP_LISTEN_ADDR", "")
	t.Setenv("SCREENCAP_COMPONENT", "")

	cfg := Default()
	cfg.WatchDirs = []string{"~/Pictures/Screenshots"}
	cfg.AutoStart = true
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".config", "screencap", "config.json")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(loaded, cfg) {
		t.Errorf("loaded %+v, want %+v", loaded, cfg)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	cfg := Default()
	cfg.Component = "nope"
	if err := SaveTo(filepath.Join(t.TempDir(), "c.json"), cfg); err == nil {
		t.Error("expected validation error")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ResolveWatchDirs
// ─────────────────────────────────────────────────────────────────────────────

func TestResolveWatchDirs(t *testing.T) {
	t.Setenv("HOME", "/home/alex")

	cfg := Default()
	if dirs := cfg.ResolveWatchDirs(); dirs != nil {
		t.Errorf("no dirs configured: got %v, want nil", dirs)
	}

	cfg.WatchDirs = []string{"~", "~/Pictures", "/srv/shots"}
	want := []string{"/home/alex", "/home/alex/Pictures", "/srv/shots"}
	if got := cfg.ResolveWatchDirs(); !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveWatchDirs() = %v, want %v", got, want)
	}
}
