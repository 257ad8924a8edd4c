package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sobelf.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.BlurSize != 5 || cfg.Threshold != 20 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
pipeline: edge
threshold: 7
endpoints:
  - tcp://127.0.0.1:6000
  - tcp://127.0.0.1:6001
ui_rate: 250ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline != "edge" || cfg.Threshold != 7 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.BlurSize != 5 || cfg.LogEvery != 100 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if len(cfg.Endpoints) != 2 || cfg.UIRate != 250*time.Millisecond {
		t.Fatalf("unexpected endpoints/ui_rate: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, "blur_sise: 3\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pipeline != "composite" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		want   string
	}{
		{"pipeline", func(c *AppConfig) { c.Pipeline = "emboss" }, "pipeline"},
		{"blur size", func(c *AppConfig) { c.BlurSize = 0 }, "blur_size"},
		{"threads", func(c *AppConfig) { c.Threads = -1 }, "threads"},
		{"workers", func(c *AppConfig) { c.Workers = 0 }, "workers"},
		{"ranks", func(c *AppConfig) { c.Ranks = 0 }, "ranks"},
		{"port", func(c *AppConfig) { c.StatusPort = 70000 }, "status_port"},
		{"duplicate endpoint", func(c *AppConfig) { c.Endpoints = []string{"tcp://a:1", "tcp://a:1"} }, "listed for ranks"},
		{"empty endpoint", func(c *AppConfig) { c.Endpoints = []string{""} }, "empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("got %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}
