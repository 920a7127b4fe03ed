package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. SCRIBE_DATABASE_URL.
const EnvPrefix = "SCRIBE"

// keys without a default still need binding so AutomaticEnv values reach Unmarshal.
var boundKeys = []string{
	"database.url",
	"auth.jwt_secret",
	"llm.gemini_api_key",
	"llm.openai_api_key",
	"llm.base_url",
	"llm.outline_prompt_template_path",
	"llm.scene_prompt_template_path",
	"events.redis_url",
	"events.amqp_url",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 0.8)
	v.SetDefault("llm.max_output_tokens", 8192)
	v.SetDefault("llm.request_timeout", "120s")

	v.SetDefault("writing.max_retries", 10)
	v.SetDefault("writing.recovery_delay", "30s")
	v.SetDefault("writing.outline_delay", "2s")
	v.SetDefault("writing.scene_delay", "5s")
	v.SetDefault("writing.lease_duration", "5m")
	v.SetDefault("writing.stall_timeout", "30m")
	v.SetDefault("writing.placeholder_scenes_per_chapter", 5)
	v.SetDefault("writing.preceding_context_chars", 4000)
	v.SetDefault("writing.outline_credit_cost", 1)
	v.SetDefault("writing.scene_credit_cost", 2)
	v.SetDefault("writing.default_monthly_quota", 500)

	v.SetDefault("runtime.worker_count", 4)
	v.SetDefault("runtime.queue_size", 256)
	v.SetDefault("runtime.discovery_interval", "30s")
	v.SetDefault("runtime.reaper_interval", "1m")
	v.SetDefault("runtime.watchdog_interval", "30s")
	v.SetDefault("runtime.watchdog_stall", "3m")

	v.SetDefault("events.backend", "memory")
	v.SetDefault("events.redis_channel_prefix", "scribe:progress")
	v.SetDefault("events.amqp_exchange", "scribe.progress")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range boundKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
