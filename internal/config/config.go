package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Stream     StreamConfig     `mapstructure:"stream"`
	SessionLog SessionLogConfig `mapstructure:"sessionlog"`
	Translator TranslatorConfig `mapstructure:"translator"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	SupportedLangs []string `mapstructure:"supported_langs"`
	WSEnabled      bool     `mapstructure:"ws_enabled"`
}

type BatchConfig struct {
	Debounce       time.Duration `mapstructure:"debounce"`
	MaxWait        time.Duration `mapstructure:"max_wait"`
	MaxFragmentLen int           `mapstructure:"max_fragment_len"`
}

type StreamConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	SendBuffer        int           `mapstructure:"send_buffer"`
}

type SessionLogConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type TranslatorConfig struct {
	Mode          string `mapstructure:"mode"` // "stub" or "http"
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
}

type IngestConfig struct {
	RatePerSecond int `mapstructure:"rate_per_second"`
	Burst         int `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.supported_langs", []string{"en", "es", "fr", "de", "it", "pt", "ja", "zh"})
	v.SetDefault("server.ws_enabled", true)
	v.SetDefault("batch.debounce", "50ms")
	v.SetDefault("batch.max_wait", "3s")
	v.SetDefault("batch.max_fragment_len", 1000)
	v.SetDefault("stream.heartbeat_interval", "15s")
	v.SetDefault("stream.send_buffer", 32)
	v.SetDefault("sessionlog.capacity", 1000)
	v.SetDefault("translator.mode", "stub")
	v.SetDefault("translator.base_url", "http://localhost:5000")
	v.SetDefault("translator.timeout_sec", 10)
	v.SetDefault("translator.rate_per_second", 10)
	v.SetDefault("ingest.rate_per_second", 50)
	v.SetDefault("ingest.burst", 100)
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("GLOTCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested keys to env vars
	_ = v.BindEnv("translator.api_key", "GLOTCAST_TRANSLATOR_API_KEY")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if len(c.Server.SupportedLangs) == 0 {
		return fmt.Errorf("server.supported_langs must not be empty")
	}
	if c.Batch.Debounce <= 0 {
		return fmt.Errorf("batch.debounce must be positive")
	}
	if c.Batch.MaxWait <= c.Batch.Debounce {
		return fmt.Errorf("batch.max_wait must be greater than batch.debounce")
	}
	if c.Batch.MaxFragmentLen < 1 {
		return fmt.Errorf("batch.max_fragment_len must be >= 1")
	}
	if c.Stream.HeartbeatInterval <= 0 {
		return fmt.Errorf("stream.heartbeat_interval must be positive")
	}
	if c.SessionLog.Capacity < 1 {
		return fmt.Errorf("sessionlog.capacity must be >= 1")
	}
	switch c.Translator.Mode {
	case "stub":
	case "http":
		if c.Translator.BaseURL == "" {
			return fmt.Errorf("translator.base_url is required in http mode")
		}
		if c.Translator.RatePerSecond < 1 {
			return fmt.Errorf("translator.rate_per_second must be >= 1")
		}
	default:
		return fmt.Errorf("invalid translator.mode: %s (must be 'stub' or 'http')", c.Translator.Mode)
	}
	if c.Ingest.RatePerSecond < 1 {
		return fmt.Errorf("ingest.rate_per_second must be >= 1")
	}
	return nil
}

// LangSupported reports whether a language tag is in the supported set.
func (c *Config) LangSupported(lang string) bool {
	for _, l := range c.Server.SupportedLangs {
		if l == lang {
			return true
		}
	}
	return false
}
