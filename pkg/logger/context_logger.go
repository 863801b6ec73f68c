package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const (
	// ContextKeyConversation carries the conversation context id.
	ContextKeyConversation contextKey = "conversation_id"
	// ContextKeyIdentity carries the local rtc identity.
	ContextKeyIdentity contextKey = "rtc_identity"
	// ContextKeyRequest carries an HTTP request id.
	ContextKeyRequest contextKey = "request_id"
)

// ContextLogger enriches log entries with fields stored in a context.
type ContextLogger struct {
	logger *zap.Logger
}

// NewContextLogger creates a new context logger.
func NewContextLogger(logger *zap.Logger) *ContextLogger {
	return &ContextLogger{logger: logger}
}

// WithContext adds context fields to the logger.
func (cl *ContextLogger) WithContext(ctx context.Context) *zap.Logger {
	fields := []zapcore.Field{}

	for _, key := range []contextKey{ContextKeyConversation, ContextKeyIdentity, ContextKeyRequest} {
		if v := ctx.Value(key); v != nil {
			if s, ok := v.(string); ok {
				fields = append(fields, zap.String(string(key), s))
			}
		}
	}

	if len(fields) == 0 {
		return cl.logger
	}
	return cl.logger.With(fields...)
}

// WithError adds an error to the logger.
func (cl *ContextLogger) WithError(err error) *zap.Logger {
	return cl.logger.With(zap.Error(err))
}
