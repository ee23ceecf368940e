package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func bindEnvVariables() {
	viper.BindEnv("telegram.token", "TELEGRAM_TOKEN")
	viper.BindEnv("telegram.poll_timeout_seconds", "TELEGRAM_POLL_TIMEOUT_SECONDS")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")
	viper.BindEnv("database.mongodb.collection", "DATABASE_MONGODB_COLLECTION")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.topic", "BROKER_KAFKA_TOPIC")

	viper.BindEnv("webhook.url", "WEBHOOK_URL")
	viper.BindEnv("webhook.max_concurrent", "WEBHOOK_MAX_CONCURRENT")
	viper.BindEnv("webhook.timeout_seconds", "WEBHOOK_TIMEOUT_SECONDS")

	viper.BindEnv("relay.include_outgoing", "RELAY_INCLUDE_OUTGOING")
	viper.BindEnv("relay.forward_duplicates", "RELAY_FORWARD_DUPLICATES")
	viper.BindEnv("relay.denylisted_sender_ids", "RELAY_DENYLISTED_SENDER_IDS")
	viper.BindEnv("relay.filter_expression", "RELAY_FILTER_EXPRESSION")

	viper.BindEnv("media.dir", "MEDIA_DIR")
	viper.BindEnv("media.max_bytes", "MEDIA_MAX_BYTES")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	return nil
}
