package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// LogEventAdapter adapts a zerolog event to LogEvent.
type LogEventAdapter struct {
	event  *zerolog.Event
	filter *SensitiveDataFilter
}

func (lea *LogEventAdapter) with(e *zerolog.Event) LogEvent {
	return &LogEventAdapter{event: e, filter: lea.filter}
}

// Msg sends the event
func (lea *LogEventAdapter) Msg(msg string) {
	lea.event.Msg(msg)
}

// Msgf sends the event with a formatted message
func (lea *LogEventAdapter) Msgf(format string, args ...any) {
	lea.event.Msgf(format, args...)
}

func (lea *LogEventAdapter) Err(err error) LogEvent {
	return lea.with(lea.event.Err(err))
}

// Str adds a string field; values under sensitive keys are masked.
func (lea *LogEventAdapter) Str(key, value string) LogEvent {
	if lea.filter != nil {
		value = lea.filter.FilterString(key, value)
	}
	return lea.with(lea.event.Str(key, value))
}

func (lea *LogEventAdapter) Int(key string, value int) LogEvent {
	return lea.with(lea.event.Int(key, value))
}

func (lea *LogEventAdapter) Int64(key string, value int64) LogEvent {
	return lea.with(lea.event.Int64(key, value))
}

func (lea *LogEventAdapter) Uint64(key string, value uint64) LogEvent {
	return lea.with(lea.event.Uint64(key, value))
}

func (lea *LogEventAdapter) Dur(key string, d time.Duration) LogEvent {
	return lea.with(lea.event.Dur(key, d))
}

// Interface adds an arbitrary value; maps and structs are filtered recursively.
func (lea *LogEventAdapter) Interface(key string, i any) LogEvent {
	if lea.filter != nil {
		i = lea.filter.FilterValue(key, i)
	}
	return lea.with(lea.event.Interface(key, i))
}

func (lea *LogEventAdapter) Bytes(key string, val []byte) LogEvent {
	return lea.with(lea.event.Bytes(key, val))
}

// Info creates an info-level log event
func (l *ZeroLogger) Info() LogEvent {
	return &LogEventAdapter{event: l.zlog.Info(), filter: l.filter}
}

// Error creates an error-level log event
func (l *ZeroLogger) Error() LogEvent {
	return &LogEventAdapter{event: l.zlog.Error(), filter: l.filter}
}

// Debug creates a debug-level log event
func (l *ZeroLogger) Debug() LogEvent {
	return &LogEventAdapter{event: l.zlog.Debug(), filter: l.filter}
}

// Warn creates a warning-level log event
func (l *ZeroLogger) Warn() LogEvent {
	return &LogEventAdapter{event: l.zlog.Warn(), filter: l.filter}
}

// Fatal creates a fatal-level log event
func (l *ZeroLogger) Fatal() LogEvent {
	return &LogEventAdapter{event: l.zlog.Fatal(), filter: l.filter}
}
