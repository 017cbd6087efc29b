package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Host string
	Port string

	SupabaseURL     string
	SupabaseAnonKey string
	DatabaseURL     string

	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	ProviderTimeoutMS int
}

// fileConfig is the optional YAML overlay. Secrets stay env-only.
type fileConfig struct {
	Host              string `yaml:"host"`
	Port              string `yaml:"port"`
	OpenAIBaseURL     string `yaml:"openai_base_url"`
	OpenAIModel       string `yaml:"openai_model"`
	ProviderTimeoutMS int    `yaml:"provider_timeout_ms"`
}

func Load() Config {
	host := os.Getenv("COMUNICACION_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := os.Getenv("COMUNICACION_PORT")
	if port == "" {
		port = "8090"
	}
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	cfg := Config{
		Host:              host,
		Port:              port,
		SupabaseURL:       strings.TrimSpace(os.Getenv("SUPABASE_URL")),
		SupabaseAnonKey:   strings.TrimSpace(os.Getenv("SUPABASE_ANON_KEY")),
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		OpenAIAPIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:     strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		OpenAIModel:       model,
		ProviderTimeoutMS: parseEnvInt("COMUNICACION_PROVIDER_TIMEOUT_MS"),
	}
	applyFileOverlay(&cfg, strings.TrimSpace(os.Getenv("COMUNICACION_CONFIG_FILE")))
	return cfg
}

func applyFileOverlay(cfg *Config, path string) {
	if path == "" {
		return
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Printf("config file %s not readable, ignoring: %v", path, err)
		return
	}
	var overlay fileConfig
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		log.Printf("config file %s is not valid yaml, ignoring: %v", path, err)
		return
	}
	if overlay.Host != "" {
		cfg.Host = overlay.Host
	}
	if overlay.Port != "" {
		cfg.Port = overlay.Port
	}
	if overlay.OpenAIBaseURL != "" {
		cfg.OpenAIBaseURL = overlay.OpenAIBaseURL
	}
	if overlay.OpenAIModel != "" {
		cfg.OpenAIModel = overlay.OpenAIModel
	}
	if overlay.ProviderTimeoutMS > 0 {
		cfg.ProviderTimeoutMS = overlay.ProviderTimeoutMS
	}
}

func parseEnvInt(key string) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		log.Printf("invalid %s=%q, ignoring", key, raw)
		return 0
	}
	return value
}
