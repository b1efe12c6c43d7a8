package hooks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LoggerHook logs failed and slow statements, and every statement when logAll is set.
type LoggerHook struct {
	logger        *zap.Logger
	logAll        bool
	slowThreshold time.Duration
}

// NewLoggerHook creates a new logger hook. A zero slowThreshold disables slow-query warnings.
func NewLoggerHook(logger *zap.Logger, logAll bool, slowThreshold time.Duration) *LoggerHook {
	return &LoggerHook{
		logger:        logger,
		logAll:        logAll,
		slowThreshold: slowThreshold,
	}
}

// BeforeQuery is called before a query is executed
func (h *LoggerHook) BeforeQuery(ctx context.Context, event *QueryEvent) context.Context {
	return ctx
}

// AfterQuery is called after a query is executed
func (h *LoggerHook) AfterQuery(ctx context.Context, event *QueryEvent) {
	duration := event.Duration()
	slow := h.slowThreshold > 0 && duration >= h.slowThreshold

	if event.Err == nil && !slow && !h.logAll {
		return
	}

	fields := []zap.Field{
		zap.String("op", event.Op),
		zap.String("operation", OperationType(event.Query)),
		zap.String("statement", Preview(event.Query, PreviewLength)),
		zap.Duration("duration", duration),
		zap.Int64("rows", event.Rows),
	}
	if table := TableName(event.Query); table != "" {
		fields = append(fields, zap.String("table", table))
	}

	switch {
	case event.Err != nil:
		h.logger.Error("database query failed", append(fields, zap.Error(event.Err))...)
	case slow:
		h.logger.Warn("slow database query", fields...)
	default:
		h.logger.Debug("database query", fields...)
	}
}
