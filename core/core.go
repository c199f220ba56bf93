package core

import (
	"errors"

	"github.com/hupe1980/agentpipe/logging"
)

// ErrModelCallLimit is returned once a run exceeds its configured model call budget.
var ErrModelCallLimit = errors.New("model call limit exceeded")

// Control is the explicit termination signal returned by every pipeline step.
// Stop travels upward until the nearest enclosing loop consumes it.
type Control int

const (
	// Continue lets the enclosing composite proceed normally.
	Continue Control = iota
	// Stop requests termination of the nearest enclosing loop.
	Stop
)

// String returns the string representation of the control signal.
func (c Control) String() string {
	switch c {
	case Continue:
		return "continue"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Control) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// loggerAdapter wraps a logging.Logger and exposes LogDebug/LogInfo/LogWarn/LogError.
// A nil logger is replaced with a NoOpLogger.
type loggerAdapter struct {
	logger logging.Logger
}

func newLoggerAdapter(l logging.Logger) *loggerAdapter {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	return &loggerAdapter{logger: l}
}

// Logger returns the underlying logger.
func (l *loggerAdapter) Logger() logging.Logger { return l.logger }

// LogDebug logs a debug message.
func (l *loggerAdapter) LogDebug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// LogInfo logs an info message.
func (l *loggerAdapter) LogInfo(msg string, args ...any) { l.logger.Info(msg, args...) }

// LogWarn logs a warning message.
func (l *loggerAdapter) LogWarn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// LogError logs an error message.
func (l *loggerAdapter) LogError(msg string, args ...any) { l.logger.Error(msg, args...) }
