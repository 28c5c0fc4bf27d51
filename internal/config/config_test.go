package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg := m.Get(context.Background())
	if cfg.Server.Port != 8090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Memory.Window != 10 {
		t.Errorf("memory window = %d", cfg.Memory.Window)
	}
	if cfg.Analytics.ForecastHorizonDays != 7 {
		t.Errorf("forecast horizon = %d", cfg.Analytics.ForecastHorizonDays)
	}
	if err := m.Validate(context.Background()); err != nil {
		t.Errorf("defaults failed validation: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9000
  rate_limit_rps: 5
llm:
  model: mistral
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	m := NewManager(path)
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg := m.Get(context.Background())
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.RateLimitRPS != 5 {
		t.Errorf("rps = %v, want 5", cfg.Server.RateLimitRPS)
	}
	if cfg.LLM.Model != "mistral" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
	// Untouched keys keep defaults.
	if cfg.Database.SQLitePath != "insight.db" {
		t.Errorf("sqlite path = %q", cfg.Database.SQLitePath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INSIGHT_LLM_API_KEY", "sk-secret")
	t.Setenv("INSIGHT_SERVER_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	m := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg := m.Get(context.Background())
	if cfg.LLM.APIKey != "sk-secret" {
		t.Errorf("api key = %q", cfg.LLM.APIKey)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("origins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestReloadPicksUpFileChanges(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	m := NewManager(path)
	if err := m.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Get(ctx).Server.Port; got != 9000 {
		t.Fatalf("port = %d, want 9000", got)
	}

	if err := os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := m.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	cfg := m.Get(ctx)
	if cfg.Server.Port != 9100 {
		t.Errorf("port after reload = %d, want 9100", cfg.Server.Port)
	}
	// Untouched keys keep defaults across reloads.
	if cfg.LLM.Model != "llama3.1" {
		t.Errorf("model after reload = %q", cfg.LLM.Model)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	cfg.Logging.Level = "loud"
	cfg.LLM.Model = ""

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(errs), errs)
	}
}
