package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFailsWithoutDatabaseURI(t *testing.T) {
	os.Unsetenv("GRAPHCORE_DATABASE_URI")
	cfg, err := Load("")
	if err == nil {
		t.Fatal("expected validation error: database_uri is required and unset")
	}
	_ = cfg
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "database_uri: postgres://localhost/graphcore\nhttp_addr: \":9999\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("expected file value to override default, got %q", cfg.HTTPAddr)
	}
	if cfg.TaskTimeout != 30*time.Second {
		t.Fatalf("expected default task timeout to survive, got %v", cfg.TaskTimeout)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "database_uri: postgres://localhost/graphcore\nhttp_addr: \":9999\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	os.Setenv("GRAPHCORE_HTTP_ADDR", ":7777")
	defer os.Unsetenv("GRAPHCORE_HTTP_ADDR")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":7777" {
		t.Fatalf("expected env to override file value, got %q", cfg.HTTPAddr)
	}
}
