package integration

import (
	"time"

	"tgrelay/internal/logger"
	"tgrelay/internal/relay"
)

const (
	containerStartupTimeout = 60
)

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestRecord(chatID, messageID int64) *relay.LogRecord {
	title := "test chat"
	fromID := int64(42)
	username := "tester"
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &relay.LogRecord{
		ChatID:     chatID,
		MessageID:  messageID,
		ChatTitle:  &title,
		FromUserID: &fromID,
		Username:   &username,
		Text:       "integration test message",
		HasMedia:   false,
		Date:       &now,
	}
}
