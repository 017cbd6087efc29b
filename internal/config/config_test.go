package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COMUNICACION_HOST", "")
	t.Setenv("COMUNICACION_PORT", "")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("COMUNICACION_CONFIG_FILE", "")
	t.Setenv("COMUNICACION_PROVIDER_TIMEOUT_MS", "")

	cfg := Load()
	if cfg.Host != "127.0.0.1" || cfg.Port != "8090" {
		t.Fatalf("unexpected listen defaults: %s:%s", cfg.Host, cfg.Port)
	}
	if cfg.OpenAIModel != "gpt-4o-mini" {
		t.Fatalf("unexpected default model: %q", cfg.OpenAIModel)
	}
	if cfg.ProviderTimeoutMS != 0 {
		t.Fatalf("unexpected default timeout: %d", cfg.ProviderTimeoutMS)
	}
}

func TestLoadEnvValues(t *testing.T) {
	t.Setenv("COMUNICACION_HOST", "0.0.0.0")
	t.Setenv("COMUNICACION_PORT", "9000")
	t.Setenv("SUPABASE_URL", "https://demo.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", " anon-key ")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("COMUNICACION_PROVIDER_TIMEOUT_MS", "2500")
	t.Setenv("COMUNICACION_CONFIG_FILE", "")

	cfg := Load()
	if cfg.Host != "0.0.0.0" || cfg.Port != "9000" {
		t.Fatalf("unexpected listen values: %s:%s", cfg.Host, cfg.Port)
	}
	if cfg.SupabaseAnonKey != "anon-key" {
		t.Fatalf("expected trimmed anon key, got %q", cfg.SupabaseAnonKey)
	}
	if cfg.ProviderTimeoutMS != 2500 {
		t.Fatalf("unexpected timeout: %d", cfg.ProviderTimeoutMS)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	overlay := "port: \"7070\"\nopenai_model: gpt-4o\nprovider_timeout_ms: 1500\n"
	if err := os.WriteFile(path, []byte(overlay), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	t.Setenv("COMUNICACION_PORT", "9000")
	t.Setenv("COMUNICACION_HOST", "")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("COMUNICACION_PROVIDER_TIMEOUT_MS", "")
	t.Setenv("COMUNICACION_CONFIG_FILE", path)

	cfg := Load()
	if cfg.Port != "7070" {
		t.Fatalf("overlay should win over env, got %q", cfg.Port)
	}
	if cfg.OpenAIModel != "gpt-4o" {
		t.Fatalf("unexpected model: %q", cfg.OpenAIModel)
	}
	if cfg.ProviderTimeoutMS != 1500 {
		t.Fatalf("unexpected timeout: %d", cfg.ProviderTimeoutMS)
	}
	if cfg.Host != "127.0.0.1" {
		t.Fatalf("host default should survive overlay, got %q", cfg.Host)
	}
}

func TestLoadIgnoresBrokenOverlay(t *testing.T) {
	t.Setenv("COMUNICACION_PORT", "9000")
	t.Setenv("COMUNICACION_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load()
	if cfg.Port != "9000" {
		t.Fatalf("missing overlay must be ignored, got %q", cfg.Port)
	}
}
