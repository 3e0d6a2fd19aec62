package log

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	ebmerrors "github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// ZerologLogger implements Logger on top of a zerolog.Logger.
// All loggers derived from one provider share its level.
type ZerologLogger struct {
	zl    zerolog.Logger
	level *atomic.Int32
}

// Debug implements Logger.Debug.
func (l *ZerologLogger) Debug(msg string, fields ...any) {
	l.emit(LevelDebug, msg, fields)
}

// Info implements Logger.Info.
func (l *ZerologLogger) Info(msg string, fields ...any) {
	l.emit(LevelInfo, msg, fields)
}

// Warn implements Logger.Warn.
func (l *ZerologLogger) Warn(msg string, fields ...any) {
	l.emit(LevelWarn, msg, fields)
}

// Error implements Logger.Error.
func (l *ZerologLogger) Error(msg string, fields ...any) {
	l.emit(LevelError, msg, fields)
}

// With implements Logger.With.
func (l *ZerologLogger) With(fields ...any) Logger {
	return &ZerologLogger{
		zl:    l.zl.With().Fields(normalizeFields(fields)).Logger(),
		level: l.level,
	}
}

// Enabled implements Logger.Enabled.
func (l *ZerologLogger) Enabled(_ context.Context, level Level) bool {
	return level >= Level(l.level.Load())
}

func (l *ZerologLogger) emit(level Level, msg string, fields []any) {
	if !l.Enabled(context.Background(), level) {
		return
	}
	var ev *zerolog.Event
	switch level {
	case LevelDebug:
		ev = l.zl.Debug()
	case LevelInfo:
		ev = l.zl.Info()
	case LevelWarn:
		ev = l.zl.Warn()
	default:
		ev = l.zl.Error()
	}
	fields = normalizeFields(fields)
	for i := 1; i < len(fields); i += 2 {
		if err, ok := fields[i].(error); ok {
			if st := extractStacktrace(err); st != "" {
				ev = ev.Str(StacktraceKey, st)
			}
		}
	}
	ev.Fields(fields).Msg(msg)
}

// normalizeFields turns a leading bare error into an ErrorKey pair and drops a
// trailing key without value.
func normalizeFields(fields []any) []any {
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			fields = append([]any{ErrorKey, err}, fields[1:]...)
		}
	}
	if len(fields)%2 == 1 {
		fields = fields[:len(fields)-1]
	}
	return fields
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}

// ZerologProvider implements LoggerProvider.
type ZerologProvider struct {
	root  zerolog.Logger
	level *atomic.Int32
}

// NewZerologProvider creates a provider writing JSON records to w.
func NewZerologProvider(w io.Writer, level Level) *ZerologProvider {
	lv := &atomic.Int32{}
	lv.Store(int32(level))
	return &ZerologProvider{
		root:  zerolog.New(w).With().Timestamp().Logger(),
		level: lv,
	}
}

// NewConsoleProvider creates a provider with human-readable output, used by the CLI.
func NewConsoleProvider(w io.Writer, level Level) *ZerologProvider {
	p := NewZerologProvider(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}, level)
	return p
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *ZerologProvider) GetLogger() Logger {
	return &ZerologLogger{zl: p.root, level: p.level}
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return &ZerologLogger{
		zl:    p.root.With().Str(ComponentKey, name).Logger(),
		level: p.level,
	}
}

// SetLevel implements LoggerProvider.SetLevel.
func (p *ZerologProvider) SetLevel(level Level) {
	p.level.Store(int32(level))
}

var (
	providerMu sync.RWMutex
	provider   LoggerProvider = NewZerologProvider(os.Stderr, LevelInfo)
)

func init() {
	ebmerrors.SetZerologWarnFunc(func(w error) {
		GetLoggerWithName("warnings").Warn(w.Error(), WarningKey, w)
	})
}

// SetProvider replaces the process-wide provider.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	provider = p
}

// GetLogger returns the default logger of the current provider.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLogger()
}

// GetLoggerWithName returns a component logger of the current provider.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider.GetLoggerWithName(name)
}

// SetLevel sets the minimum level on the current provider.
func SetLevel(level Level) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	provider.SetLevel(level)
}
