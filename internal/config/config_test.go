package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Batch.Debounce != 50*time.Millisecond {
		t.Errorf("expected default debounce 50ms, got %v", cfg.Batch.Debounce)
	}
	if cfg.Batch.MaxWait != 3*time.Second {
		t.Errorf("expected default max wait 3s, got %v", cfg.Batch.MaxWait)
	}
	if cfg.Batch.MaxFragmentLen != 1000 {
		t.Errorf("expected default max fragment len 1000, got %d", cfg.Batch.MaxFragmentLen)
	}
	if cfg.Stream.HeartbeatInterval != 15*time.Second {
		t.Errorf("expected default heartbeat 15s, got %v", cfg.Stream.HeartbeatInterval)
	}
	if cfg.SessionLog.Capacity != 1000 {
		t.Errorf("expected default capacity 1000, got %d", cfg.SessionLog.Capacity)
	}
	if cfg.Translator.Mode != "stub" {
		t.Errorf("expected default translator mode stub, got %s", cfg.Translator.Mode)
	}
	if !cfg.LangSupported("it") {
		t.Error("expected it in default supported languages")
	}
	if cfg.LangSupported("xx") {
		t.Error("did not expect xx in supported languages")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	content := []byte(`
server:
  port: "9090"
  supported_langs: ["en", "it"]
batch:
  debounce: 25ms
  max_wait: 1s
translator:
  mode: http
  base_url: http://gateway:5000
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Batch.Debounce != 25*time.Millisecond {
		t.Errorf("expected debounce 25ms, got %v", cfg.Batch.Debounce)
	}
	if cfg.Translator.BaseURL != "http://gateway:5000" {
		t.Errorf("unexpected base url: %s", cfg.Translator.BaseURL)
	}
	if cfg.LangSupported("fr") {
		t.Error("fr should not be supported with overridden language set")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: "8080", SupportedLangs: []string{"en"}},
			Batch: BatchConfig{
				Debounce:       50 * time.Millisecond,
				MaxWait:        3 * time.Second,
				MaxFragmentLen: 1000,
			},
			Stream:     StreamConfig{HeartbeatInterval: 15 * time.Second, SendBuffer: 32},
			SessionLog: SessionLogConfig{Capacity: 1000},
			Translator: TranslatorConfig{Mode: "stub"},
			Ingest:     IngestConfig{RatePerSecond: 50, Burst: 100},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid stub", func(c *Config) {}, false},
		{"valid http", func(c *Config) {
			c.Translator.Mode = "http"
			c.Translator.BaseURL = "http://gw:5000"
			c.Translator.RatePerSecond = 5
		}, false},
		{"empty port", func(c *Config) { c.Server.Port = "" }, true},
		{"no languages", func(c *Config) { c.Server.SupportedLangs = nil }, true},
		{"zero debounce", func(c *Config) { c.Batch.Debounce = 0 }, true},
		{"max wait below debounce", func(c *Config) { c.Batch.MaxWait = 10 * time.Millisecond }, true},
		{"zero fragment len", func(c *Config) { c.Batch.MaxFragmentLen = 0 }, true},
		{"bad translator mode", func(c *Config) { c.Translator.Mode = "grpc" }, true},
		{"http mode without base url", func(c *Config) {
			c.Translator.Mode = "http"
			c.Translator.BaseURL = ""
		}, true},
		{"zero ingest rate", func(c *Config) { c.Ingest.RatePerSecond = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
