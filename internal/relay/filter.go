package relay

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// MessageFilter evaluates a CEL expression over a LogRecord. The expression
// is compiled once at construction; records it rejects are relayed to
// neither sink.
type MessageFilter struct {
	program cel.Program
}

func NewMessageFilter(expression string) (*MessageFilter, error) {
	env, err := cel.NewEnv(
		cel.Variable("chat_id", cel.IntType),
		cel.Variable("message_id", cel.IntType),
		cel.Variable("chat_title", cel.StringType),
		cel.Variable("from_user_id", cel.IntType),
		cel.Variable("username", cel.StringType),
		cel.Variable("first_name", cel.StringType),
		cel.Variable("text", cel.StringType),
		cel.Variable("has_media", cel.BoolType),
		cel.Variable("media_type", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile filter expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &MessageFilter{program: program}, nil
}

// Allow reports whether the record passes the filter.
func (f *MessageFilter) Allow(ctx context.Context, rec *LogRecord) (bool, error) {
	vars := map[string]interface{}{
		"chat_id":      rec.ChatID,
		"message_id":   rec.MessageID,
		"chat_title":   derefString(rec.ChatTitle),
		"from_user_id": derefInt64(rec.FromUserID),
		"username":     derefString(rec.Username),
		"first_name":   derefString(rec.FirstName),
		"text":         rec.Text,
		"has_media":    rec.HasMedia,
		"media_type":   derefString(rec.MediaType),
	}

	result, _, err := f.program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt64(i *int64) int64 {
	if i == nil {
		return 0
	}
	return *i
}
