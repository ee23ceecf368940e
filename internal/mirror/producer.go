package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"tgrelay/internal/config"
	"tgrelay/internal/constants"
	"tgrelay/internal/logger"
	"tgrelay/internal/relay"
)

// Envelope wraps a LogRecord on the wire. The event id lets consumers
// dedup replays independently of the (chat_id, message_id) pair.
type Envelope struct {
	EventID   string           `json:"event_id"`
	Source    string           `json:"source"`
	EmittedAt time.Time        `json:"emitted_at"`
	Record    *relay.LogRecord `json:"record"`
}

// Producer mirrors persisted LogRecords to a Kafka topic so downstream
// consumers can react to logged traffic without touching the document
// store. Publishing is best-effort: the relay never depends on it.
type Producer struct {
	writer *kafka.Writer
	topic  string
	logger logger.Logger
}

func New(cfg config.KafkaConfig, log logger.Logger) *Producer {
	if len(cfg.Brokers) == 0 {
		log.Infow("Stream mirror disabled, no brokers configured")
		return &Producer{logger: log}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,
	}

	return &Producer{
		writer: w,
		topic:  cfg.Topic,
		logger: log,
	}
}

func (p *Producer) Enabled() bool {
	return p.writer != nil
}

func (p *Producer) Publish(ctx context.Context, rec *relay.LogRecord) error {
	if p.writer == nil {
		return nil
	}

	body, err := json.Marshal(Envelope{
		EventID:   uuid.New().String(),
		Source:    "relay-service",
		EmittedAt: time.Now().UTC(),
		Record:    rec,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal log record: %w", err)
	}

	err = p.writer.WriteMessages(ctx,
		kafka.Message{
			Topic: p.topic,
			Key:   []byte(fmt.Sprintf("%d:%d", rec.ChatID, rec.MessageID)),
			Value: body,
			Time:  time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	return nil
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
