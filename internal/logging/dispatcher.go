package logging

import (
	"time"

	"github.com/rs/zerolog"
)

// DispatcherLogger writes dispatcher diagnostics through zerolog. It
// satisfies dispatcher.Logger.
type DispatcherLogger struct {
	logger zerolog.Logger
}

// NewDispatcherLogger wraps logger.
func NewDispatcherLogger(logger zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{logger: logger}
}

// WithContext returns a logger that stamps every entry with the mission
// context, the same attributes the slog side carries.
func (l *DispatcherLogger) WithContext(provider ContextProvider) *DispatcherLogger {
	if provider == nil {
		return l
	}
	return &DispatcherLogger{logger: l.logger.Hook(contextHook(provider))}
}

func (l *DispatcherLogger) Debug(msg string, keysAndValues ...any) {
	emit(l.logger.Debug(), msg, keysAndValues)
}

func (l *DispatcherLogger) Info(msg string, keysAndValues ...any) {
	emit(l.logger.Info(), msg, keysAndValues)
}

func (l *DispatcherLogger) Error(msg string, keysAndValues ...any) {
	emit(l.logger.Error(), msg, keysAndValues)
}

// emit adds slog-style pairs to e. A trailing key without a value and
// non-string keys are dropped.
func emit(e *zerolog.Event, msg string, kv []any) {
	if e == nil {
		return
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case error:
			e.AnErr(key, v)
		case time.Duration:
			e.Dur(key, v)
		case string:
			e.Str(key, v)
		default:
			e.Interface(key, v)
		}
	}
	e.Msg(msg)
}

func contextHook(provider ContextProvider) zerolog.HookFunc {
	return func(e *zerolog.Event, _ zerolog.Level, _ string) {
		for _, a := range provider().Attrs() {
			e.Interface(a.Key, a.Value.Any())
		}
	}
}
