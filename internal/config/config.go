package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
	Writing  WritingConfig  `mapstructure:"writing"  validate:"required"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"  validate:"required"`
	Events   EventsConfig   `mapstructure:"events"   validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"             validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level"        validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url"            validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=1"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0,lt=44640"`
}

// LLMConfig selects and configures the text generation provider.
type LLMConfig struct {
	Provider                  string        `mapstructure:"provider"                     validate:"required,oneof=gemini openai"`
	GeminiAPIKey              string        `mapstructure:"gemini_api_key"               validate:"required_if=Provider gemini"`
	OpenAIAPIKey              string        `mapstructure:"openai_api_key"               validate:"required_if=Provider openai"`
	BaseURL                   string        `mapstructure:"base_url"                     validate:"omitempty,url"`
	ModelName                 string        `mapstructure:"model_name"                   validate:"required"`
	Temperature               float32       `mapstructure:"temperature"                  validate:"gte=0,lte=2"`
	MaxOutputTokens           int32         `mapstructure:"max_output_tokens"            validate:"gt=0"`
	RequestTimeout            time.Duration `mapstructure:"request_timeout"              validate:"gt=0"`
	OutlinePromptTemplatePath string        `mapstructure:"outline_prompt_template_path" validate:"omitempty,file"`
	ScenePromptTemplatePath   string        `mapstructure:"scene_prompt_template_path"   validate:"omitempty,file"`
}

// WritingConfig tunes the generation pipeline.
type WritingConfig struct {
	MaxRetries                  int           `mapstructure:"max_retries"                    validate:"gt=0"`
	RecoveryDelay               time.Duration `mapstructure:"recovery_delay"                 validate:"gt=0"`
	OutlineDelay                time.Duration `mapstructure:"outline_delay"                  validate:"gte=0"`
	SceneDelay                  time.Duration `mapstructure:"scene_delay"                    validate:"gte=0"`
	LeaseDuration               time.Duration `mapstructure:"lease_duration"                 validate:"gt=0"`
	StallTimeout                time.Duration `mapstructure:"stall_timeout"                  validate:"gte=0"`
	PlaceholderScenesPerChapter int           `mapstructure:"placeholder_scenes_per_chapter" validate:"gt=0"`
	PrecedingContextChars       int           `mapstructure:"preceding_context_chars"        validate:"gte=0"`
	OutlineCreditCost           int           `mapstructure:"outline_credit_cost"            validate:"gte=0"`
	SceneCreditCost             int           `mapstructure:"scene_credit_cost"              validate:"gte=0"`
	DefaultMonthlyQuota         int           `mapstructure:"default_monthly_quota"          validate:"gte=0"`
}

// RuntimeConfig sizes the server-owned worker pool and its background loops.
type RuntimeConfig struct {
	WorkerCount       int           `mapstructure:"worker_count"       validate:"gt=0"`
	QueueSize         int           `mapstructure:"queue_size"         validate:"gt=0"`
	DiscoveryInterval time.Duration `mapstructure:"discovery_interval" validate:"gt=0"`
	ReaperInterval    time.Duration `mapstructure:"reaper_interval"    validate:"gt=0"`
	WatchdogInterval  time.Duration `mapstructure:"watchdog_interval"  validate:"gt=0"`
	WatchdogStall     time.Duration `mapstructure:"watchdog_stall"     validate:"gt=0"`
}

// EventsConfig selects where progress events are published besides the
// in-process subscribers.
type EventsConfig struct {
	Backend            string `mapstructure:"backend"              validate:"required,oneof=memory redis rabbitmq"`
	RedisURL           string `mapstructure:"redis_url"            validate:"required_if=Backend redis"`
	RedisChannelPrefix string `mapstructure:"redis_channel_prefix"`
	AMQPURL            string `mapstructure:"amqp_url"             validate:"required_if=Backend rabbitmq"`
	AMQPExchange       string `mapstructure:"amqp_exchange"        validate:"required_if=Backend rabbitmq"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"omitempty,startswith=/"`
}
