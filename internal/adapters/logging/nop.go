// Package logging provides implementations of the ports.Logger interface:
// a NopLogger, a ConsoleLogger for text or JSON output, and a ZapLogger
// backed by go.uber.org/zap.
package logging

import (
	"context"
	"os"
	"strings"

	"github.com/usefultools/toolbox/internal/ports"
)

// NopLogger is a no-op logger that discards all messages.
type NopLogger struct {
	level ports.Level
}

// NewNopLogger creates a new no-op logger.
func NewNopLogger() *NopLogger {
	return &NopLogger{level: ports.LevelInfo}
}

// Debug does nothing.
func (l *NopLogger) Debug(_ context.Context, _ string, _ ...ports.Field) {}

// Info does nothing.
func (l *NopLogger) Info(_ context.Context, _ string, _ ...ports.Field) {}

// Warn does nothing.
func (l *NopLogger) Warn(_ context.Context, _ string, _ ...ports.Field) {}

// Error does nothing.
func (l *NopLogger) Error(_ context.Context, _ string, _ ...ports.Field) {}

// With returns itself.
func (l *NopLogger) With(_ ...ports.Field) ports.Logger {
	return l
}

// Level returns the log level.
func (l *NopLogger) Level() ports.Level {
	return l.level
}

// SetLevel sets the log level.
func (l *NopLogger) SetLevel(level ports.Level) {
	l.level = level
}

// Ensure NopLogger implements Logger.
var _ ports.Logger = (*NopLogger)(nil)

// Format names accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatZap  = "zap"
)

// New builds a logger writing to stderr for the given format and level.
// Unknown formats fall back to text.
func New(format string, level ports.Level) (ports.Logger, error) {
	switch strings.ToLower(format) {
	case FormatZap:
		return NewZapLogger(ZapConfig{Level: level, Development: false})
	case FormatJSON:
		return NewConsoleLogger(WithOutput(os.Stderr), WithLevel(level), WithJSONFormat(true)), nil
	default:
		return NewConsoleLogger(WithOutput(os.Stderr), WithLevel(level), WithTimestamp(false)), nil
	}
}
