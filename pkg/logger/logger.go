// Package logger configures the structured logger used across the
// service. Log level comes from MALIPO_LOG_LEVEL; development gets a
// console writer, everything else JSON on stdout.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger embeds zerolog.Logger so call sites use the zerolog API
// directly; the With* methods attach the fields our log pipeline
// indexes on.
type Logger struct {
	zerolog.Logger
}

// New builds the service logger. Every line carries the service name.
func New(serviceName string, environment string) *Logger {
	var output io.Writer = os.Stdout
	if environment == "development" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	l := zerolog.New(output).
		Level(levelFromEnv()).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	return &Logger{Logger: l}
}

// levelFromEnv reads MALIPO_LOG_LEVEL. Unknown or empty values mean
// info.
func levelFromEnv() zerolog.Level {
	switch strings.ToLower(os.Getenv("MALIPO_LOG_LEVEL")) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithTenantID stamps every line with the tenant.
func (l *Logger) WithTenantID(tenantID string) *Logger {
	return &Logger{Logger: l.Logger.With().Str("tenant_id", tenantID).Logger()}
}

// WithRunID stamps every line with the payroll run.
func (l *Logger) WithRunID(runID string) *Logger {
	return &Logger{Logger: l.Logger.With().Str("run_id", runID).Logger()}
}

// WithCorrelationID stamps every line with the correlation ID that
// ties a message's processing back to the request that published it.
func (l *Logger) WithCorrelationID(correlationID string) *Logger {
	return &Logger{Logger: l.Logger.With().Str("correlation_id", correlationID).Logger()}
}

// WithComponent names the subsystem emitting the line.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With().Str("component", component).Logger()}
}
