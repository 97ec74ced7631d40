// Package logger is the structured logging contract shared by the SDK packages.
// The SDK never logs through a package-level logger; every component receives one.
package logger

import "time"

// Logger creates leveled log events and derives child loggers.
type Logger interface {
	Info() LogEvent
	Error() LogEvent
	Debug() LogEvent
	Warn() LogEvent
	Fatal() LogEvent
	WithContext(ctx any) Logger
	WithFields(fields map[string]any) Logger
}

// LogEvent is a single log entry under construction. Nothing is written until Msg or Msgf.
type LogEvent interface {
	Msg(msg string)
	Msgf(format string, args ...any)
	Err(err error) LogEvent
	Str(key, value string) LogEvent
	Int(key string, value int) LogEvent
	Int64(key string, value int64) LogEvent
	Uint64(key string, value uint64) LogEvent
	Dur(key string, d time.Duration) LogEvent
	Interface(key string, i any) LogEvent
	Bytes(key string, val []byte) LogEvent
}
