// Package logger configures the application's logging,
// monitoring, and observability.
//
// It uses *ZeroLog* for logging and integrates with
// *New Relic* to instrument the codebase, forwarding logs,
// metrics, and traces for debugging
package logger

import (
	"os"

	"github.com/constructhq/construct/internal/config"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
)

// New builds the application's main structured logger from config.
//
// Format "console" gives human-friendly output (local dev); anything else
// emits JSON for log pipelines. The level comes from the observability
// block, with environment-appropriate defaults.
func New(cfg *config.Config) *zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Observability.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.Observability.Logging.Format == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log = zerolog.New(os.Stderr)
	}

	log = log.Level(level).With().
		Timestamp().
		Str("service", cfg.Observability.ServiceName).
		Str("env", cfg.Observability.Environment).
		Logger()

	return &log
}

// LoggerService wraps the optional New Relic application instance.
//
// When New Relic is not configured (empty license key), the service exists
// but GetApplication returns nil and every integration degrades to a no-op.
type LoggerService struct {
	nrApp *newrelic.Application
}

// NewLoggerService initializes New Relic from config.
//
// An empty license key is not an error; it simply disables the agent.
func NewLoggerService(cfg *config.Config, log *zerolog.Logger) (*LoggerService, error) {
	nr := cfg.Observability.NewRelic
	if nr.LicenseKey == "" {
		log.Info().Msg("New Relic not configured; tracing disabled")
		return &LoggerService{}, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.Observability.ServiceName),
		newrelic.ConfigLicense(nr.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(nr.DistributedTracingEnabled),
		newrelic.ConfigAppLogForwardingEnabled(nr.AppLogForwardingEnabled),
	)
	if err != nil {
		return nil, err
	}

	log.Info().Msg("New Relic application initialized")
	return &LoggerService{nrApp: app}, nil
}

// GetApplication returns the New Relic application, or nil when disabled.
func (ls *LoggerService) GetApplication() *newrelic.Application {
	if ls == nil {
		return nil
	}
	return ls.nrApp
}

// WithTraceContext adds trace.id and span.id fields to a logger so log
// lines can be correlated with distributed traces.
func WithTraceContext(log zerolog.Logger, txn *newrelic.Transaction) zerolog.Logger {
	if txn == nil {
		return log
	}
	md := txn.GetTraceMetadata()
	builder := log.With()
	if md.TraceID != "" {
		builder = builder.Str("trace.id", md.TraceID)
	}
	if md.SpanID != "" {
		builder = builder.Str("span.id", md.SpanID)
	}
	return builder.Logger()
}

// NewPgxLogger creates the logger used for SQL query tracing.
//
// It writes console output so queries and parameters stay readable during
// local development, which is the only environment that enables it.
func NewPgxLogger(level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Str("component", "pgx").
		Logger()
}

// GetPgxTraceLogLevel maps a zerolog level to the pgx tracelog level scale.
// The returned int is cast to tracelog.LogLevel at the call site.
func GetPgxTraceLogLevel(level zerolog.Level) int {
	// tracelog levels: 0 none, 1 error, 2 warn, 3 info, 4 debug, 5 trace
	switch level {
	case zerolog.TraceLevel:
		return 5
	case zerolog.DebugLevel:
		return 4
	case zerolog.InfoLevel:
		return 3
	case zerolog.WarnLevel:
		return 2
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return 1
	default:
		return 0
	}
}
