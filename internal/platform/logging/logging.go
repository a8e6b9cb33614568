// Package logging provides structured logging for the engine, built on
// logrus. Unlike a global logger, a *logrus.Logger is constructed once at
// startup and threaded through every component's constructor.
package logging

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Config configures the structured logger.
type Config struct {
	Level  string // "debug", "info", "warn", "error", "fatal", "panic"
	Format string // "json", "text"
	Output string // "stdout", "stderr", or a file path
}

// New builds a *logrus.Logger from Config. An unparseable level falls back
// to info rather than failing startup.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	return logger
}

// requestContextKey namespaces context values carrying request-scoped
// log fields, mirroring the teacher's correlation-id context key pattern
// without a global correlation registry.
type requestContextKey struct{}

// RequestFields are the per-call identifiers attached to every log line
// for a patient assessment: which patient, which audit session, and
// (once routing has picked an adverse event) which one is being scored.
type RequestFields struct {
	PatientID    string
	SessionID    string
	AdverseEvent string
}

// WithRequest returns a context carrying request-scoped log fields.
func WithRequest(ctx context.Context, f RequestFields) context.Context {
	return context.WithValue(ctx, requestContextKey{}, f)
}

// FromContext builds a *logrus.Entry with whatever request-scoped fields
// were attached via WithRequest. Fields left blank are omitted.
func FromContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	f, ok := ctx.Value(requestContextKey{}).(RequestFields)
	if !ok {
		return logrus.NewEntry(logger)
	}

	fields := logrus.Fields{}
	if f.PatientID != "" {
		fields["patient_id"] = f.PatientID
	}
	if f.SessionID != "" {
		fields["session_id"] = f.SessionID
	}
	if f.AdverseEvent != "" {
		fields["adverse_event"] = f.AdverseEvent
	}

	return logger.WithFields(fields)
}
