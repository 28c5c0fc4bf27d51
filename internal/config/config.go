package config

import "fmt"

// Package config provides configuration management for the insight service.
//
// Sources (priority order, high to low):
//   1. Environment variables (INSIGHT_* prefix)
//   2. YAML config file (default: config.yaml)
//   3. Built-in defaults

// Config contains all configuration fields.
type Config struct {
	// Server configuration
	Server struct {
		Host string
		Port int
		// AllowedOrigins lists origins permitted for CORS and WebSocket
		// upgrades. Use ["*"] to allow any origin (development only).
		AllowedOrigins []string
		// RateLimitRPS is the per-client request rate; RateLimitBurst is
		// the burst allowance.
		RateLimitRPS   float64
		RateLimitBurst int
	}

	// Database configuration
	Database struct {
		SQLitePath string
	}

	// LLM provider configuration (OpenAI-compatible endpoint)
	LLM struct {
		BaseURL        string
		Model          string
		APIKey         string
		TimeoutSeconds int
		Temperature    float64
		MaxTokens      int
	}

	// Conversation memory configuration
	Memory struct {
		// Window is the number of exchange pairs retained per session.
		Window int
		// CacheSize caps cache entries; CacheTTLSeconds bounds their life.
		CacheSize       int
		CacheTTLSeconds int
	}

	// Analytics configuration
	Analytics struct {
		QueryLimit          int
		ForecastHorizonDays int
	}

	// Logging configuration
	Logging struct {
		Level  string // debug | info | warn | error
		Format string // json | console
		// File enables rotating file output when non-empty.
		File       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8090
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	cfg.Server.RateLimitRPS = 20
	cfg.Server.RateLimitBurst = 40

	cfg.Database.SQLitePath = "insight.db"

	cfg.LLM.BaseURL = "http://localhost:11434"
	cfg.LLM.Model = "llama3.1"
	cfg.LLM.TimeoutSeconds = 30
	cfg.LLM.Temperature = 0.7
	cfg.LLM.MaxTokens = 1024

	cfg.Memory.Window = 10
	cfg.Memory.CacheSize = 4096
	cfg.Memory.CacheTTLSeconds = 86400

	cfg.Analytics.QueryLimit = 100
	cfg.Analytics.ForecastHorizonDays = 7

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 3
	cfg.Logging.MaxAgeDays = 28

	return cfg
}

// Validate reports every configuration problem found.
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimitRPS <= 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit_rps must be positive"))
	}
	if c.Database.SQLitePath == "" {
		errs = append(errs, fmt.Errorf("database.sqlite_path required"))
	}
	if c.LLM.BaseURL == "" {
		errs = append(errs, fmt.Errorf("llm.base_url required"))
	}
	if c.LLM.Model == "" {
		errs = append(errs, fmt.Errorf("llm.model required"))
	}
	if c.LLM.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("llm.timeout_seconds must be positive"))
	}
	if c.Memory.Window <= 0 {
		errs = append(errs, fmt.Errorf("memory.window must be positive"))
	}
	if c.Analytics.QueryLimit <= 0 {
		errs = append(errs, fmt.Errorf("analytics.query_limit must be positive"))
	}
	if c.Analytics.ForecastHorizonDays <= 0 {
		errs = append(errs, fmt.Errorf("analytics.forecast_horizon_days must be positive"))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q invalid", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q invalid", c.Logging.Format))
	}

	return errs
}
