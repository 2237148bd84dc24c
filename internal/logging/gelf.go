package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
)

// MessageWriter is the part of gelf.Writer the handler needs.
type MessageWriter interface {
	WriteMessage(m *gelf.Message) error
}

// GelfHandler ships slog records to Graylog as GELF messages.
type GelfHandler struct {
	writer   MessageWriter
	level    slog.Leveler
	facility string
	host     string
	extra    map[string]any
	group    string
}

// NewGelfHandler dials a UDP GELF writer at addr.
func NewGelfHandler(addr, facility string, level slog.Leveler) (*GelfHandler, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create GELF writer: %w", err)
	}
	w.Facility = facility
	return NewGelfHandlerWithWriter(w, facility, level), nil
}

// NewGelfHandlerWithWriter builds a handler on an existing writer.
func NewGelfHandlerWithWriter(w MessageWriter, facility string, level slog.Leveler) *GelfHandler {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &GelfHandler{
		writer:   w,
		level:    level,
		facility: facility,
		host:     host,
	}
}

// Enabled reports whether the level passes the handler's threshold.
func (h *GelfHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle converts the record and writes it.
func (h *GelfHandler) Handle(_ context.Context, r slog.Record) error {
	extra := make(map[string]any, len(h.extra)+r.NumAttrs())
	for k, v := range h.extra {
		extra[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		addExtra(extra, h.group, a)
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	return h.writer.WriteMessage(&gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    r.Message,
		TimeUnix: float64(ts.UnixNano()) / float64(time.Second),
		Level:    syslogLevel(r.Level),
		Facility: h.facility,
		Extra:    extra,
	})
}

// WithAttrs returns a handler carrying the given attributes.
func (h *GelfHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.extra = make(map[string]any, len(h.extra)+len(attrs))
	for k, v := range h.extra {
		next.extra[k] = v
	}
	for _, a := range attrs {
		addExtra(next.extra, h.group, a)
	}
	return &next
}

// WithGroup prefixes subsequent attribute keys.
func (h *GelfHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		next.group = h.group + "." + name
	} else {
		next.group = name
	}
	return &next
}

// GELF additional fields must start with an underscore.
func addExtra(extra map[string]any, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			addExtra(extra, key, ga)
		}
		return
	}
	if err, ok := a.Value.Any().(error); ok {
		extra["_"+key] = err.Error()
		return
	}
	extra["_"+key] = a.Value.Any()
}

func syslogLevel(l slog.Level) int32 {
	switch {
	case l >= slog.LevelError:
		return 3
	case l >= slog.LevelWarn:
		return 4
	case l >= slog.LevelInfo:
		return 6
	default:
		return 7
	}
}
