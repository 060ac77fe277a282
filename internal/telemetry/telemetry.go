// Package telemetry reports non-fatal errors from background work.
//
// Nothing leaves the device by default: the Nop reporter discards everything
// and the Log reporter writes to the local structured log only.
package telemetry

import (
	"sync/atomic"

	"github.com/kimhsiao/storesync/backend/internal/logging"
)

// Reporter receives errors that are handled locally but worth surfacing.
type Reporter interface {
	TrackError(err error, context map[string]interface{})
	TrackEvent(name string, properties map[string]interface{})
}

// Nop discards everything.
type Nop struct{}

// TrackError is a no-op.
func (Nop) TrackError(error, map[string]interface{}) {}

// TrackEvent is a no-op.
func (Nop) TrackEvent(string, map[string]interface{}) {}

// Log writes reports to a logging.Logger and counts them.
type Log struct {
	logger *logging.Logger
	errors atomic.Int64
	events atomic.Int64
}

// NewLog returns a reporter that logs through logger (or the global logger when nil).
func NewLog(logger *logging.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) log() *logging.Logger {
	if l.logger != nil {
		return l.logger
	}
	return logging.Get()
}

// TrackError logs err at error level.
func (l *Log) TrackError(err error, context map[string]interface{}) {
	l.errors.Add(1)
	l.log().Error("background error", err, context)
}

// TrackEvent logs an event at debug level.
func (l *Log) TrackEvent(name string, properties map[string]interface{}) {
	l.events.Add(1)
	l.log().Debug("event: "+name, properties)
}

// ErrorCount returns the number of errors tracked.
func (l *Log) ErrorCount() int64 { return l.errors.Load() }

// EventCount returns the number of events tracked.
func (l *Log) EventCount() int64 { return l.events.Load() }

// OrNop returns r, or Nop when r is nil.
func OrNop(r Reporter) Reporter {
	if r == nil {
		return Nop{}
	}
	return r
}
