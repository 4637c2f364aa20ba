// Package obslog is the fabric's single structured-logging sink. Every
// adapter and component logs through it with allow-listed fields instead of
// free-form strings.
//
// ErrorCause is for observability only and
// must never be read back to drive retry, continuation, or abort
// decisions; that authority belongs exclusively to
// pkg/failure.ClassifiedError.
package obslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ErrorCause is a closed, canonical classification used exclusively for
// observability (logging, metrics, reporting). It must never be used to
// derive retry, continuation, or abort decisions; see internal/classify
// for the component that actually owns those decisions.
type ErrorCause int

const (
	CauseUnknown ErrorCause = iota
	CauseNetworkFailure
	CausePolicyDisallow
	CauseContentInvalid
	CauseStorageFailure
	CauseRateLimited
	CauseInvariantViolation
)

func (c ErrorCause) String() string {
	switch c {
	case CauseNetworkFailure:
		return "network_failure"
	case CausePolicyDisallow:
		return "policy_disallow"
	case CauseContentInvalid:
		return "content_invalid"
	case CauseStorageFailure:
		return "storage_failure"
	case CauseRateLimited:
		return "rate_limited"
	case CauseInvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

// Fields is an allow-listed set of key/value attributes attached to a log
// event. Only primitive values belong here: URLs and hashes as strings,
// never objects with behavior.
type Fields map[string]string

// Logger wraps a zerolog.Logger scoped to one component (e.g. "lease",
// "fetch", "worker"). Construct one per component at startup and pass it
// down; never build loggers ad hoc inside hot paths.
type Logger struct {
	zl zerolog.Logger
}

// New builds a JSON-structured logger writing to w, tagged with component.
// Pass os.Stdout for production; tests typically pass io.Discard or a
// buffer they can assert against.
func New(component string, w io.Writer, level zerolog.Level) *Logger {
	zl := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
	return &Logger{zl: zl}
}

// NewDefault builds a production logger writing JSON lines to stdout.
func NewDefault(component string) *Logger {
	return New(component, os.Stdout, zerolog.InfoLevel)
}

// With returns a child logger for a sub-component (e.g. "fetch.classify"),
// inheriting the parent's writer and level.
func (l *Logger) With(subComponent string) *Logger {
	return &Logger{zl: l.zl.With().Str("subcomponent", subComponent).Logger()}
}

// Info logs a structured informational event.
func (l *Logger) Info(action string, fields Fields) {
	ev := l.zl.Info().Str("action", action)
	applyFields(ev, fields)
	ev.Msg(action)
}

// Error logs an observational error event. cause is the canonical,
// observability-only classification; it carries no retry semantics.
func (l *Logger) Error(cause ErrorCause, component, action string, err error, fields Fields) {
	ev := l.zl.Error().
		Str("action", action).
		Str("cause", cause.String()).
		Str("err_component", component).
		Err(err)
	applyFields(ev, fields)
	ev.Msg(action)
}

// Debug logs a structured debug event.
func (l *Logger) Debug(action string, fields Fields) {
	ev := l.zl.Debug().Str("action", action)
	applyFields(ev, fields)
	ev.Msg(action)
}

// Duration logs a timing event, e.g. a completed fetch or store operation.
func (l *Logger) Duration(action string, d time.Duration, fields Fields) {
	ev := l.zl.Info().Str("action", action).Dur("duration", d)
	applyFields(ev, fields)
	ev.Msg(action)
}

func applyFields(ev *zerolog.Event, fields Fields) {
	for k, v := range fields {
		ev.Str(k, v)
	}
}
