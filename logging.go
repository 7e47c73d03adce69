// Package-level structured logging for scheduler, delivery-queue, and
// pipeline-lifecycle events.
//
// Usage:
//
//	sched, err := pipeline.NewScheduler(pipeline.WithLogger(pipeline.NewDefaultLogger(pipeline.LevelInfo)))
//
// A caller that uses github.com/joeycumines/logiface can instead build a
// logiface logger over this package's event type (NewLogifaceEventFactory)
// with the writer of their choice and wrap it via NewLogifaceLogger. A
// logiface Logger[E] built over any other event type cannot be adapted.
package pipeline

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// LogLevel represents the severity of a log message.
type LogLevel int32

const (
	// LevelDebug for detailed diagnostic information.
	LevelDebug LogLevel = iota
	// LevelInfo for general informational messages.
	LevelInfo
	// LevelWarn for warning conditions.
	LevelWarn
	// LevelError for error conditions.
	LevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// LogEntry is a single structured log record. Category is one of
// "scheduler", "delivery", "emitter", "pipeline".
type LogEntry struct {
	Level      LogLevel
	Category   string
	ElementID  string
	ReceiverID int64
	Context    map[string]any
	Message    string
	Err        error
	Timestamp  time.Time
}

// Logger is the structured logging interface used throughout the package.
type Logger interface {
	Log(entry LogEntry)
	IsEnabled(level LogLevel) bool
}

// noopLogger discards every entry; it is the default when no Logger option
// is supplied.
type noopLogger struct{}

func (noopLogger) Log(LogEntry) {}

func (noopLogger) IsEnabled(LogLevel) bool { return false }

// DefaultLogger writes plain-text entries to an *os.File, gated by a
// dynamically adjustable minimum level.
type DefaultLogger struct {
	level atomic.Int32
	mu    sync.Mutex
	Out   *os.File
}

// NewDefaultLogger creates a logger writing to os.Stdout at the given
// minimum level.
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	l := &DefaultLogger{Out: os.Stdout}
	l.level.Store(int32(level))
	return l
}

// SetLevel dynamically changes the minimum log level.
func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

// IsEnabled reports whether the given level would be logged.
func (l *DefaultLogger) IsEnabled(level LogLevel) bool {
	return level >= LogLevel(l.level.Load())
}

// Log writes a structured log entry.
func (l *DefaultLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.Out, "[%s] [%s] [%-9s] %s",
		entry.Level.String(),
		entry.Timestamp.Format("15:04:05.000"),
		entry.Category,
		entry.Message,
	)
	if entry.ElementID != "" {
		fmt.Fprintf(l.Out, " element=%s", entry.ElementID)
	}
	if entry.ReceiverID != 0 {
		fmt.Fprintf(l.Out, " receiver=%d", entry.ReceiverID)
	}
	for k, v := range entry.Context {
		fmt.Fprintf(l.Out, " %s=%v", k, v)
	}
	if entry.Err != nil {
		fmt.Fprintf(l.Out, " err=%v\n", entry.Err)
	} else {
		fmt.Fprintln(l.Out)
	}
}

// schedulerEvent is the logiface.Event implementation backing
// NewLogifaceLogger. It buffers exactly one LogEntry's worth of fields
// before being flushed into the adapted Logger.
type schedulerEvent struct {
	logiface.UnimplementedEvent
	level logiface.Level
	entry LogEntry
}

func (e *schedulerEvent) Level() logiface.Level { return e.level }

func (e *schedulerEvent) AddField(key string, val any) {
	if e.entry.Context == nil {
		e.entry.Context = make(map[string]any, 4)
	}
	e.entry.Context[key] = val
}

func (e *schedulerEvent) AddMessage(msg string) bool {
	e.entry.Message = msg
	return true
}

func (e *schedulerEvent) AddError(err error) bool {
	e.entry.Err = err
	return true
}

func (e *schedulerEvent) AddString(key, val string) bool {
	e.AddField(key, val)
	return true
}

func (e *schedulerEvent) AddInt(key string, val int) bool {
	e.AddField(key, val)
	return true
}

var pipelineLevelToLogiface = map[LogLevel]logiface.Level{
	LevelDebug: logiface.LevelDebug,
	LevelInfo:  logiface.LevelInformational,
	LevelWarn:  logiface.LevelWarning,
	LevelError: logiface.LevelError,
}

func logifaceLevelToPipeline(l logiface.Level) LogLevel {
	switch {
	case l <= logiface.LevelDebug:
		return LevelDebug
	case l <= logiface.LevelInformational:
		return LevelInfo
	case l <= logiface.LevelWarning:
		return LevelWarn
	default:
		return LevelError
	}
}

// logifaceAdapter adapts a *logiface.Logger[E] into the Logger interface by
// driving it through a dedicated schedulerEvent implementation, so a caller
// can plug any logiface-compatible writer (stumpy, zerolog, slog, logrus) in
// as the pipeline's logging backend.
type logifaceAdapter struct {
	logger *logiface.Logger[*schedulerEvent]
}

// NewLogifaceLogger adapts an existing logiface.Logger into the package's
// Logger interface. The logiface logger must have been constructed with an
// EventFactory producing *schedulerEvent (see NewLogifaceEventFactory).
func NewLogifaceLogger(l *logiface.Logger[*schedulerEvent]) Logger {
	return &logifaceAdapter{logger: l}
}

// NewLogifaceEventFactory returns the logiface.EventFactory required to
// construct a logger usable with NewLogifaceLogger.
func NewLogifaceEventFactory() logiface.EventFactory[*schedulerEvent] {
	return func(level logiface.Level) *schedulerEvent {
		return &schedulerEvent{level: level}
	}
}

func (a *logifaceAdapter) IsEnabled(level LogLevel) bool {
	lvl, ok := pipelineLevelToLogiface[level]
	if !ok {
		lvl = logiface.LevelInformational
	}
	return a.logger.Level() >= lvl
}

func (a *logifaceAdapter) Log(entry LogEntry) {
	lvl, ok := pipelineLevelToLogiface[entry.Level]
	if !ok {
		lvl = logiface.LevelInformational
	}
	b := a.logger.Build(lvl)
	if b == nil {
		return
	}
	if entry.ElementID != "" {
		b = b.Str("element", entry.ElementID)
	}
	if entry.ReceiverID != 0 {
		b = b.Int64("receiver", entry.ReceiverID)
	}
	for k, v := range entry.Context {
		b = b.Any(k, v)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}

// logDebug is a small helper used throughout the package to avoid
// allocating a LogEntry when the level is disabled.
func logDebug(l Logger, category string, fields func() LogEntry) {
	if l == nil || !l.IsEnabled(LevelDebug) {
		return
	}
	l.Log(fields())
}
