package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("log:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader().WithConfigFile(configPath)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	reloaded := make(chan *Config, 4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := loader.Watch(func(cfg *Config) { reloaded <- cfg }, logger)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(configPath, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Log.Level != "debug" {
			t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestWatch_RejectsInvalidReload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("log:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader().WithConfigFile(configPath)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	reloaded := make(chan *Config, 4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := loader.Watch(func(cfg *Config) { reloaded <- cfg }, logger)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	// A reload that fails validation must not reach the callback.
	if err := os.WriteFile(configPath, []byte("log:\n  level: shout\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		t.Fatalf("invalid config delivered: %+v", cfg)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatch_RequiresConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	loader := NewLoader()
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := loader.Watch(func(*Config) {}, logger); err == nil {
		t.Fatal("Watch() succeeded without a config file")
	}
}
