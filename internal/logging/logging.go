// Package logging defines the event sink the protocol core reports to.
// The driver narrates every retry, variant attempt and terminal outcome
// through this interface; how the events are displayed or persisted is
// the caller's business.
package logging

import "github.com/rs/zerolog"

// Logger accepts (message, severity) events with optional alternating
// key/value pairs. Implementations must be safe for concurrent use.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Success(msg string, keysAndValues ...interface{})
}

// Nop returns a Logger that discards everything.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})   {}
func (nopLogger) Info(string, ...interface{})    {}
func (nopLogger) Warn(string, ...interface{})    {}
func (nopLogger) Error(string, ...interface{})   {}
func (nopLogger) Success(string, ...interface{}) {}

// Zerolog adapts a zerolog.Logger. Success events are emitted at info
// level carrying a success marker field, since zerolog has no native
// success level.
func Zerolog(zl zerolog.Logger) Logger { return &zerologSink{zl: zl} }

type zerologSink struct{ zl zerolog.Logger }

func (s *zerologSink) Debug(msg string, kv ...interface{}) { emit(s.zl.Debug(), msg, kv) }
func (s *zerologSink) Info(msg string, kv ...interface{})  { emit(s.zl.Info(), msg, kv) }
func (s *zerologSink) Warn(msg string, kv ...interface{})  { emit(s.zl.Warn(), msg, kv) }
func (s *zerologSink) Error(msg string, kv ...interface{}) { emit(s.zl.Error(), msg, kv) }
func (s *zerologSink) Success(msg string, kv ...interface{}) {
	emit(s.zl.Info().Bool("success", true), msg, kv)
}

func emit(e *zerolog.Event, msg string, kv []interface{}) {
	if len(kv) > 0 {
		e = e.Fields(kv)
	}
	e.Msg(msg)
}

// Tee fans every event out to each sink in order.
func Tee(sinks ...Logger) Logger { return teeLogger(sinks) }

type teeLogger []Logger

func (t teeLogger) Debug(msg string, kv ...interface{}) {
	for _, l := range t {
		l.Debug(msg, kv...)
	}
}

func (t teeLogger) Info(msg string, kv ...interface{}) {
	for _, l := range t {
		l.Info(msg, kv...)
	}
}

func (t teeLogger) Warn(msg string, kv ...interface{}) {
	for _, l := range t {
		l.Warn(msg, kv...)
	}
}

func (t teeLogger) Error(msg string, kv ...interface{}) {
	for _, l := range t {
		l.Error(msg, kv...)
	}
}

func (t teeLogger) Success(msg string, kv ...interface{}) {
	for _, l := range t {
		l.Success(msg, kv...)
	}
}
