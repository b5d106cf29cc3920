package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	FieldComponent = "component"
	FieldProvider  = "ai_provider"
	FieldModel     = "ai_model"
)

// WithComponent tags every entry of the returned logger with the component name.
func WithComponent(logger *zap.Logger, name string) *zap.Logger {
	return with(logger, nonEmpty(FieldComponent, name)...)
}

// WithCommonFields attaches the AI provider and model. Empty values are left out.
func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	fields := append(nonEmpty(FieldProvider, provider), nonEmpty(FieldModel, model)...)
	return with(logger, fields...)
}

func nonEmpty(key, value string) []zap.Field {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return []zap.Field{zap.String(key, value)}
}

func with(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
