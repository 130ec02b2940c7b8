package embeddedmqtt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newSlogLogger adapts zap for the broker, which only logs through slog.
func newSlogLogger(logger *zap.Logger) *slog.Logger {
	return slog.New(&zapHandler{logger: logger})
}

type zapHandler struct {
	logger *zap.Logger
}

func (h *zapHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.Core().Enabled(zapLevel(level))
}

func (h *zapHandler) Handle(_ context.Context, record slog.Record) error {
	level := zapLevel(record.Level)
	fields := make([]zap.Field, 0, record.NumAttrs())
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == "error" && isDisconnect(attr.Value) {
			// Subscribers going away between polls is routine.
			level = zapcore.DebugLevel
		}
		fields = append(fields, zapField(attr))
		return true
	})
	if ce := h.logger.Check(level, record.Message); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

func (h *zapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make([]zap.Field, 0, len(attrs))
	for _, attr := range attrs {
		fields = append(fields, zapField(attr))
	}
	return &zapHandler{logger: h.logger.With(fields...)}
}

func (h *zapHandler) WithGroup(name string) slog.Handler {
	return &zapHandler{logger: h.logger.Named(name)}
}

func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

func zapField(attr slog.Attr) zap.Field {
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindString {
		return zap.String(attr.Key, value.String())
	}
	return zap.Any(attr.Key, value.Any())
}

func isDisconnect(value slog.Value) bool {
	value = value.Resolve()
	if err, ok := value.Any().(error); ok {
		return errors.Is(err, io.EOF) || strings.HasSuffix(err.Error(), "EOF")
	}
	return value.Kind() == slog.KindString && strings.HasSuffix(value.String(), "EOF")
}
