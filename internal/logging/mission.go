package logging

import (
	"context"
	"log/slog"

	"github.com/fowlengine/missioncore/pkg/core"
)

// MissionContext is the running session as log records see it. The zero
// value means no mission is loaded.
type MissionContext struct {
	Session string
	Mission string
	Tick    core.Tick
	Ticked  bool
}

// Attrs returns the attributes stamped on each record, none outside a
// mission. tick is left out until the first tick has run.
func (c MissionContext) Attrs() []slog.Attr {
	if c.Session == "" {
		return nil
	}
	attrs := make([]slog.Attr, 0, 3)
	attrs = append(attrs, slog.String("session", c.Session))
	if c.Mission != "" {
		attrs = append(attrs, slog.String("mission", c.Mission))
	}
	if c.Ticked {
		attrs = append(attrs, slog.Uint64("tick", uint64(c.Tick)))
	}
	return attrs
}

// ContextProvider reports the mission context at the time a record is
// written.
type ContextProvider func() MissionContext

// missionHandler stamps the current mission context on every record.
type missionHandler struct {
	inner    slog.Handler
	provider ContextProvider
}

func newMissionHandler(inner slog.Handler, provider ContextProvider) slog.Handler {
	if provider == nil {
		return inner
	}
	return &missionHandler{inner: inner, provider: provider}
}

func (h *missionHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *missionHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(h.provider().Attrs()...)
	return h.inner.Handle(ctx, r)
}

func (h *missionHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &missionHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider}
}

func (h *missionHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &missionHandler{inner: h.inner.WithGroup(name), provider: h.provider}
}
