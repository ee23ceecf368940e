package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"tgrelay/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ApplyDefaults fills in the values a minimal config file leaves out.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 15
	}

	if cfg.Telegram.PollTimeoutSeconds == 0 {
		cfg.Telegram.PollTimeoutSeconds = constants.DefaultPollTimeoutSeconds
	}

	if cfg.Database.MongoDB.Database == "" {
		cfg.Database.MongoDB.Database = constants.DefaultMongoDBName
	}
	if cfg.Database.MongoDB.Collection == "" {
		cfg.Database.MongoDB.Collection = constants.MessagesCollection
	}
	if cfg.Database.Redis.TTLSeconds == 0 {
		cfg.Database.Redis.TTLSeconds = constants.DefaultDedupCacheTTLs
	}

	if cfg.Webhook.MaxConcurrent == 0 {
		cfg.Webhook.MaxConcurrent = constants.DefaultWebhookMaxConcurrent
	}
	if cfg.Webhook.TimeoutSeconds == 0 {
		cfg.Webhook.TimeoutSeconds = int(constants.DefaultWebhookTimeout / time.Second)
	}

	if cfg.Relay.FilterFallback == "" {
		cfg.Relay.FilterFallback = constants.FallbackAllow
	}

	if cfg.Media.Dir == "" {
		cfg.Media.Dir = os.TempDir()
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateTelegram(cfg.Telegram); err != nil {
		errors = append(errors, err)
	}

	if err := validateWebhook(cfg.Webhook); err != nil {
		errors = append(errors, err)
	}

	if err := validateRelay(cfg.Relay); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateMedia(cfg.Media); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateTelegram(cfg TelegramConfig) error {
	if cfg.Token == "" {
		return &ValidationError{
			Field:   "telegram.token",
			Message: "telegram token is required",
		}
	}

	if cfg.PollTimeoutSeconds < 0 {
		return &ValidationError{
			Field:   "telegram.poll_timeout_seconds",
			Message: "poll timeout must be non-negative",
		}
	}

	return nil
}

func validateWebhook(cfg WebhookConfig) error {
	if cfg.URL != "" {
		u, err := url.Parse(cfg.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &ValidationError{
				Field:   "webhook.url",
				Message: fmt.Sprintf("invalid webhook URL: %s", cfg.URL),
			}
		}
	}

	if cfg.MaxConcurrent < 1 {
		return &ValidationError{
			Field:   "webhook.max_concurrent",
			Message: fmt.Sprintf("max_concurrent must be at least 1, got %d", cfg.MaxConcurrent),
		}
	}

	if cfg.TimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "webhook.timeout_seconds",
			Message: "timeout must be positive",
		}
	}

	return nil
}

func validateRelay(cfg RelayConfig) error {
	switch cfg.FilterFallback {
	case constants.FallbackAllow, constants.FallbackDeny:
	default:
		return &ValidationError{
			Field:   "relay.filter_fallback",
			Message: fmt.Sprintf("must be 'allow' or 'deny', got %q", cfg.FilterFallback),
		}
	}

	for i, id := range cfg.DenylistedSenderIDs {
		if id <= 0 {
			return &ValidationError{
				Field:   fmt.Sprintf("relay.denylisted_sender_ids[%d]", i),
				Message: "sender id must be positive",
			}
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil // mirror disabled
	}

	for i, broker := range cfg.Kafka.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.Kafka.Topic == "" {
		return &ValidationError{
			Field:   "broker.kafka.topic",
			Message: "topic is required when brokers are configured",
		}
	}

	return nil
}

func validateMedia(cfg MediaConfig) error {
	if cfg.MaxBytes < 0 {
		return &ValidationError{
			Field:   "media.max_bytes",
			Message: "max_bytes must be non-negative",
		}
	}

	return nil
}
