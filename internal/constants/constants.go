package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultWebhookTimeout       = 60 * time.Second
	DefaultWebhookMaxConcurrent = 3
)

const (
	CacheKeyPrefixDedup = "dedup:"
)

const (
	DefaultMongoDBName    = "telegram_logs"
	MessagesCollection    = "messages"
	DefaultDedupCacheTTLs = 86400
)

const (
	DefaultPollTimeoutSeconds = 60
)

const (
	ShutdownTimeout = 5 * time.Second
	DrainTimeout    = 90 * time.Second
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 400
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)
