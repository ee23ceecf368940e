package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Telegram       TelegramConfig
	Database       DatabaseConfig
	Broker         BrokerConfig
	Logging        LoggingConfig
	Relay          RelayConfig
	Webhook        WebhookConfig
	Media          MediaConfig
	CircuitBreaker CircuitBreakerConfig
}

type ServerConfig struct {
	Port                int             `mapstructure:"port"`
	ReadTimeoutSeconds  int             `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int             `mapstructure:"write_timeout_seconds"`
	RateLimit           RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type TelegramConfig struct {
	Token              string `mapstructure:"token"`
	PollTimeoutSeconds int    `mapstructure:"poll_timeout_seconds"`
}

type DatabaseConfig struct {
	MongoDB MongoDBConfig
	Redis   RedisConfig
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type RedisConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

type BrokerConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RelayConfig carries the pipeline policy knobs.
//
// IncludeOutgoing keeps the operator's own outgoing messages in the relay;
// the default drops them to avoid feedback loops. ForwardDuplicates controls
// whether an already-logged message is still delivered to the webhook.
type RelayConfig struct {
	IncludeOutgoing     bool    `mapstructure:"include_outgoing"`
	ForwardDuplicates   bool    `mapstructure:"forward_duplicates"`
	DenylistedSenderIDs []int64 `mapstructure:"denylisted_sender_ids"`
	FilterExpression    string  `mapstructure:"filter_expression"`
	FilterFallback      string  `mapstructure:"filter_fallback"`
}

type WebhookConfig struct {
	URL            string `mapstructure:"url"`
	MaxConcurrent  int64  `mapstructure:"max_concurrent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type MediaConfig struct {
	Dir      string `mapstructure:"dir"`
	MaxBytes int64  `mapstructure:"max_bytes"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
