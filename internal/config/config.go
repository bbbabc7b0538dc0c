package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig              `mapstructure:"server"`
	Database       DatabaseConfig            `mapstructure:"database"`
	Logging        LoggingConfig             `mapstructure:"logging"`
	Providers      map[string]ProviderConfig `mapstructure:"providers"`
	Orchestrator   OrchestratorConfig        `mapstructure:"orchestrator"`
	Routing        RoutingConfig             `mapstructure:"routing"`
	Privacy        PrivacyConfig             `mapstructure:"privacy"`
	Batching       BatchingConfig            `mapstructure:"batching"`
	Retry          RetryConfig               `mapstructure:"retry"`
	CircuitBreaker CircuitBreakerConfig      `mapstructure:"circuit_breaker"`
	Management     ManagementConfig          `mapstructure:"management"`
	Tracing        TracingConfig             `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	MongoDB       MongoDBConfig  `mapstructure:"mongodb"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ProviderConfig holds per-destination settings. Adapters receive it
// read-only; the orchestrator owns the map.
type ProviderConfig struct {
	Type          string            `mapstructure:"type"` // webhook, kafka
	Enabled       bool              `mapstructure:"enabled"`
	Debug         bool              `mapstructure:"debug"`
	Priority      int               `mapstructure:"priority"`
	Category      string            `mapstructure:"category"` // consent category
	Endpoint      string            `mapstructure:"endpoint"`
	BatchEndpoint string            `mapstructure:"batch_endpoint"`
	APIKey        string            `mapstructure:"api_key"`
	Headers       map[string]string `mapstructure:"headers"`
	Brokers       []string          `mapstructure:"brokers"`
	Topic         string            `mapstructure:"topic"`
	BatchSize     int               `mapstructure:"batch_size"`
	FlushInterval time.Duration     `mapstructure:"flush_interval"`
}

type OrchestratorConfig struct {
	Strategy         string        `mapstructure:"strategy"` // parallel, sequential, failover
	DispatchTimeout  time.Duration `mapstructure:"dispatch_timeout"`
	ContinueOnError  bool          `mapstructure:"continue_on_error"`
	DefaultProviders []string      `mapstructure:"default_providers"`
}

type RoutingConfig struct {
	Fallback FallbackConfig `mapstructure:"fallback"`
	Reload   ReloadConfig   `mapstructure:"reload"`
}

type FallbackConfig struct {
	OnEmpty string `mapstructure:"on_empty"` // "all", "defaults", "none" (default: "defaults")
}

type ReloadConfig struct {
	IntervalSeconds       int `mapstructure:"interval_seconds"`
	JitterMaxMilliseconds int `mapstructure:"jitter_max_milliseconds"`
}

type PrivacyConfig struct {
	RespectDoNotTrack    bool   `mapstructure:"respect_do_not_track"`
	RequireCookieConsent bool   `mapstructure:"require_cookie_consent"`
	CCPAMode             bool   `mapstructure:"ccpa_mode"`
	HashSalt             string `mapstructure:"hash_salt"`
}

type BatchingConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxSize       int           `mapstructure:"max_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	ItemRetryCap  int           `mapstructure:"item_retry_cap"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

type ManagementConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
