package logging

import (
	"context"
)

const (
	ChatIDKey      = "chat_id"
	MessageIDKey   = "message_id"
	ServiceNameKey = "service_name"
)

type chatIDCtxKey struct{}
type messageIDCtxKey struct{}
type serviceNameCtxKey struct{}

// WithEvent attaches the identifying pair of a relayed message to the context
// so every log line emitted while handling it carries both identifiers.
func WithEvent(ctx context.Context, chatID, messageID int64) context.Context {
	ctx = context.WithValue(ctx, chatIDCtxKey{}, chatID)
	return context.WithValue(ctx, messageIDCtxKey{}, messageID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, serviceNameCtxKey{}, serviceName)
}

func GetChatID(ctx context.Context) (int64, bool) {
	chatID, ok := ctx.Value(chatIDCtxKey{}).(int64)
	return chatID, ok
}

func GetMessageID(ctx context.Context) (int64, bool) {
	messageID, ok := ctx.Value(messageIDCtxKey{}).(int64)
	return messageID, ok
}

func GetServiceName(ctx context.Context) string {
	if serviceName, ok := ctx.Value(serviceNameCtxKey{}).(string); ok {
		return serviceName
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 6)

	if chatID, ok := GetChatID(ctx); ok {
		fields = append(fields, ChatIDKey, chatID)
	}

	if messageID, ok := GetMessageID(ctx); ok {
		fields = append(fields, MessageIDKey, messageID)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, ServiceNameKey, serviceName)
	}

	return fields
}
