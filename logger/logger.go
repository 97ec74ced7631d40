package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ZeroLogger is the zerolog-backed Logger. String and interface fields pass through
// a SensitiveDataFilter so bearer tokens and API keys never reach the output.
type ZeroLogger struct {
	zlog   *zerolog.Logger
	filter *SensitiveDataFilter
}

var _ Logger = (*ZeroLogger)(nil)

var callerMarshalOnce sync.Once

// New creates a logger writing to stdout at the given level.
// Unknown levels fall back to info. pretty switches to zerolog's console writer.
func New(level string, pretty bool) *ZeroLogger {
	return NewWithWriter(os.Stdout, level, pretty, nil)
}

// NewWithWriter creates a logger writing to w. A nil filterConfig uses DefaultFilterConfig.
func NewWithWriter(w io.Writer, level string, pretty bool, filterConfig *FilterConfig) *ZeroLogger {
	callerMarshalOnce.Do(func() {
		zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
			base := filepath.Base(file)
			parent := filepath.Base(filepath.Dir(file))
			if parent != "." && parent != "" {
				return parent + "/" + base + ":" + strconv.Itoa(line)
			}
			return base + ":" + strconv.Itoa(line)
		}
	})

	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(out).With().Timestamp().CallerWithSkipFrameCount(3).Logger()

	zLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		zLevel = zerolog.InfoLevel
	}
	l = l.Level(zLevel)

	return &ZeroLogger{zlog: &l, filter: NewSensitiveDataFilter(filterConfig)}
}

// NewNop returns a logger that discards everything.
func NewNop() *ZeroLogger {
	l := zerolog.Nop()
	return &ZeroLogger{zlog: &l, filter: NewSensitiveDataFilter(nil)}
}

// WithContext returns the zerolog logger stored in ctx (see zerolog.Ctx) when there is an
// enabled one, otherwise the receiver.
func (l *ZeroLogger) WithContext(ctx any) Logger {
	if c, ok := ctx.(context.Context); ok {
		zl := zerolog.Ctx(c)
		if zl == nil || zl.GetLevel() == zerolog.Disabled {
			return l
		}
		return &ZeroLogger{zlog: zl, filter: l.filter}
	}
	return l
}

// WithFields returns a child logger with fields attached to every entry.
func (l *ZeroLogger) WithFields(fields map[string]any) Logger {
	if l.filter != nil {
		fields = l.filter.FilterFields(fields)
	}
	log := l.zlog.With().Fields(fields).Logger()
	return &ZeroLogger{zlog: &log, filter: l.filter}
}
