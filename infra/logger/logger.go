// Package logger provides the zerolog implementation of the core Logger.
package logger

import corelogger "github.com/kilianp07/vrf/core/logger"

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)         {}
func (NopLogger) Debugw(string, map[string]any) {}
func (NopLogger) Infof(string, ...any)          {}
func (NopLogger) Warnf(string, ...any)          {}
func (NopLogger) Errorf(string, ...any)         {}

// New returns a Logger for the given component. The output format follows
// APP_ENV and the minimum level follows LOG_LEVEL (default info).
func New(component string) Logger {
	return NewZerologLogger(component)
}

// ForRun returns a component logger whose lines carry the run identifier.
func ForRun(component, runID string) Logger {
	return NewZerologLogger(component).With(map[string]any{"run_id": runID})
}

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}
