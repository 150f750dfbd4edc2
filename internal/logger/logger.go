package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with application-specific methods
type Logger struct {
	zerolog.Logger
}

// New creates a new Logger writing to stdout
func New(level string, format string) *Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter creates a Logger that writes to w. format "text" or
// "console" selects human-readable output, anything else JSON.
func NewWithWriter(w io.Writer, level string, format string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if format == "text" || format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(w).Level(lvl).With().Timestamp().Caller().Logger()

	return &Logger{Logger: logger}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// WithRequestID returns a new logger with the request ID attached
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{Logger: l.With().Str("request_id", requestID).Logger()}
}

// WithComponent returns a new logger with the component name attached
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.With().Str("component", component).Logger()}
}

// HTTPRequest logs a served request. 5xx responses log at error level.
func (l *Logger) HTTPRequest(method, route string, statusCode int, duration time.Duration, clientIP string) {
	event := l.Info()
	if statusCode >= 500 {
		event = l.Error()
	}
	event.
		Str("method", method).
		Str("path", route).
		Int("status", statusCode).
		Dur("duration", duration).
		Str("client_ip", clientIP).
		Msg("HTTP request")
}

// AuditLog writes an account event to the log stream. userID may be empty
// for events about unknown accounts.
func (l *Logger) AuditLog(action, userID, clientIP string, metadata map[string]interface{}) {
	event := l.Info().
		Bool("audit", true).
		Str("action", action).
		Str("client_ip", clientIP)
	if userID != "" {
		event.Str("user_id", userID)
	}
	if len(metadata) > 0 {
		event.Fields(metadata)
	}
	event.Msg("account event")
}

// EmailSent logs the outcome of a communication event. Addresses are not
// logged, only the event code and the user it concerns.
func (l *Logger) EmailSent(code, userID string, err error) {
	if err != nil {
		l.Error().Err(err).Str("code", code).Str("user_id", userID).Msg("email not sent")
		return
	}
	l.Debug().Str("code", code).Str("user_id", userID).Msg("email sent")
}
