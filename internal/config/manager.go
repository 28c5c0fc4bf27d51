package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Manager loads, validates, and watches configuration.
type Manager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// NewManager creates a config manager reading from configPath. The file is
// optional; defaults plus INSIGHT_* environment variables suffice.
func NewManager(configPath string) *Manager {
	return &Manager{
		configPath: configPath,
		watchChan:  make(chan Config, 1),
	}
}

// Load loads configuration from all sources.
func (m *Manager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("INSIGHT")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if err := m.viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults + env vars apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		} else if os.IsNotExist(err) {
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	m.unmarshalConfig()
	m.applyEnvOverrides()
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate checks the loaded configuration is correct and complete.
func (m *Manager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var msgs []string
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
	}
	return nil
}

// Watch emits updated configs when the file changes on disk.
func (m *Manager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		m.unmarshalConfig()
		m.applyEnvOverrides()
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})
	return m.watchChan
}

// Reload re-reads configuration from sources.
func (m *Manager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	m.unmarshalConfig()
	m.applyEnvOverrides()
	return nil
}

// setDefaults sets default values in viper.
func (m *Manager) setDefaults() {
	defaults := DefaultConfig()

	m.viper.SetDefault("server.host", defaults.Server.Host)
	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)
	m.viper.SetDefault("server.rate_limit_rps", defaults.Server.RateLimitRPS)
	m.viper.SetDefault("server.rate_limit_burst", defaults.Server.RateLimitBurst)

	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)

	m.viper.SetDefault("llm.base_url", defaults.LLM.BaseURL)
	m.viper.SetDefault("llm.model", defaults.LLM.Model)
	m.viper.SetDefault("llm.api_key", "")
	m.viper.SetDefault("llm.timeout_seconds", defaults.LLM.TimeoutSeconds)
	m.viper.SetDefault("llm.temperature", defaults.LLM.Temperature)
	m.viper.SetDefault("llm.max_tokens", defaults.LLM.MaxTokens)

	m.viper.SetDefault("memory.window", defaults.Memory.Window)
	m.viper.SetDefault("memory.cache_size", defaults.Memory.CacheSize)
	m.viper.SetDefault("memory.cache_ttl_seconds", defaults.Memory.CacheTTLSeconds)

	m.viper.SetDefault("analytics.query_limit", defaults.Analytics.QueryLimit)
	m.viper.SetDefault("analytics.forecast_horizon_days", defaults.Analytics.ForecastHorizonDays)

	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.file", "")
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
}

// unmarshalConfig copies viper state into the Config struct.
func (m *Manager) unmarshalConfig() {
	cfg := &Config{}

	cfg.Server.Host = m.viper.GetString("server.host")
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")
	cfg.Server.RateLimitRPS = m.viper.GetFloat64("server.rate_limit_rps")
	cfg.Server.RateLimitBurst = m.viper.GetInt("server.rate_limit_burst")

	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")

	cfg.LLM.BaseURL = m.viper.GetString("llm.base_url")
	cfg.LLM.Model = m.viper.GetString("llm.model")
	cfg.LLM.APIKey = m.viper.GetString("llm.api_key")
	cfg.LLM.TimeoutSeconds = m.viper.GetInt("llm.timeout_seconds")
	cfg.LLM.Temperature = m.viper.GetFloat64("llm.temperature")
	cfg.LLM.MaxTokens = m.viper.GetInt("llm.max_tokens")

	cfg.Memory.Window = m.viper.GetInt("memory.window")
	cfg.Memory.CacheSize = m.viper.GetInt("memory.cache_size")
	cfg.Memory.CacheTTLSeconds = m.viper.GetInt("memory.cache_ttl_seconds")

	cfg.Analytics.QueryLimit = m.viper.GetInt("analytics.query_limit")
	cfg.Analytics.ForecastHorizonDays = m.viper.GetInt("analytics.forecast_horizon_days")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.File = m.viper.GetString("logging.file")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")

	m.config = cfg
}

// applyEnvOverrides applies overrides for sensitive or commonly-set values.
func (m *Manager) applyEnvOverrides() {
	if apiKey := os.Getenv("INSIGHT_LLM_API_KEY"); apiKey != "" {
		m.config.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("INSIGHT_LLM_BASE_URL"); baseURL != "" {
		m.config.LLM.BaseURL = baseURL
	}
	if model := os.Getenv("INSIGHT_LLM_MODEL"); model != "" {
		m.config.LLM.Model = model
	}
	if path := os.Getenv("INSIGHT_DATABASE_SQLITE_PATH"); path != "" {
		m.config.Database.SQLitePath = path
	}
	if origins := os.Getenv("INSIGHT_SERVER_ALLOWED_ORIGINS"); origins != "" {
		var list []string
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				list = append(list, o)
			}
		}
		if len(list) > 0 {
			m.config.Server.AllowedOrigins = list
		}
	}
}
