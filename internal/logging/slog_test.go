package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

func TestSetup_FileOnly_NoStdout(t *testing.T) {
	// Capture stdout to verify nothing is written there
	origStdout := captureStdout(t)

	var fileBuf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&fileBuf, "info", nil)
	m.Logger().Info("hello file")

	stdout := origStdout()

	assert.Contains(t, fileBuf.String(), "hello file", "log should appear in file")
	// The "Logging initialized" message from Setup also goes to file, not stdout
	assert.Empty(t, stdout, "nothing should be written to stdout when file is provided")
}

func TestSetup_NoFile_WritesToStdout(t *testing.T) {
	origStdout := captureStdout(t)

	m := NewSlogManager()
	m.Setup(nil, "info", nil)
	m.Logger().Info("hello console")

	stdout := origStdout()

	assert.Contains(t, stdout, "hello console", "log should appear on stdout")
}

func TestSetup_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&buf, "debug", nil)

	m.Logger().Debug("debug msg")
	m.Logger().Info("info msg")

	output := buf.String()
	assert.Contains(t, output, "debug msg")
	assert.Contains(t, output, "info msg")
}

func TestSetup_InfoLevel_FiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&buf, "info", nil)

	m.Logger().Debug("should be filtered")
	m.Logger().Info("should appear")

	output := buf.String()
	assert.NotContains(t, output, "should be filtered")
	assert.Contains(t, output, "should appear")
}

func TestSetup_ReplacesLogger(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	m := NewSlogManager()

	m.Setup(&buf1, "info", nil)
	m.Logger().Info("first")

	m.Setup(&buf2, "info", nil)
	m.Logger().Info("second")

	assert.Contains(t, buf1.String(), "first")
	assert.NotContains(t, buf1.String(), "second", "old file should not receive new logs")
	assert.Contains(t, buf2.String(), "second")
}

func TestLogger_DefaultBeforeSetup(t *testing.T) {
	m := NewSlogManager()
	logger := m.Logger()
	assert.Equal(t, slog.Default(), logger)
}

func TestFlush_NilProvider(t *testing.T) {
	m := NewSlogManager()
	err := m.Flush(context.Background())
	assert.NoError(t, err)
}

func TestWriteLog_AllLevels(t *testing.T) {
	levels := []struct {
		level    string
		contains string
	}{
		{"debug", "debug message"},
		{"info", "info message"},
		{"warn", "warn message"},
		{"error", "error message"},
		{"unknown", "unknown message"}, // defaults to info
	}

	for _, tt := range levels {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewSlogManager()
			m.Setup(&buf, "debug", nil)

			m.WriteLog("testFunc", tt.level+" message", tt.level)

			output := buf.String()
			assert.Contains(t, output, tt.contains)
			assert.Contains(t, output, "testFunc")
		})
	}
}

func TestWriteLog_NilLogger(t *testing.T) {
	m := NewSlogManager()
	// Should not panic
	m.WriteLog("fn", "data", "info")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestFanout(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h1 := slog.NewTextHandler(&buf1, &slog.HandlerOptions{Level: slog.LevelInfo})
	h2 := slog.NewTextHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelInfo})

	f := newFanout(nil, h1, nil, h2)
	require.Len(t, f, 2)

	logger := slog.New(f)
	logger.Info("zone captured", "zone", "Hill")
	assert.Contains(t, buf1.String(), "zone=Hill")
	assert.Contains(t, buf2.String(), "zone=Hill")
}

func TestFanoutEnabled(t *testing.T) {
	infoHandler := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugHandler := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug})

	assert.False(t, newFanout(infoHandler).Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, newFanout(infoHandler, debugHandler).Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, newFanout().Enabled(context.Background(), slog.LevelError))
}

func TestFanoutAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	f := newFanout(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger := slog.New(f.WithAttrs([]slog.Attr{slog.String("stage", "logistics")}).WithGroup("route"))
	logger.Info("interdicted", "name", "Depot-Outpost")

	assert.Contains(t, buf.String(), "stage=logistics")
	assert.Contains(t, buf.String(), "route.name=Depot-Outpost")
	assert.Equal(t, f, f.WithGroup(""))
}

func TestFlush_WithProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider() // no exporter, just validates non-nil path
	m := NewSlogManager()

	var buf bytes.Buffer
	m.Setup(&buf, "info", provider)

	err := m.Flush(context.Background())
	assert.NoError(t, err)
}

// errorHandler is a slog.Handler that always returns an error from Handle.
type errorHandler struct {
	slog.Handler
}

func (h *errorHandler) Handle(_ context.Context, _ slog.Record) error {
	return errors.New("handler error")
}

func (h *errorHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func TestFanoutHandleError(t *testing.T) {
	var buf bytes.Buffer
	spy := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	f := newFanout(&errorHandler{}, spy)
	r := slog.NewRecord(time.Now(), slog.LevelInfo, "should reach spy", 0)
	err := f.Handle(context.Background(), r)

	assert.EqualError(t, err, "handler error")
	assert.Contains(t, buf.String(), "should reach spy")
}

func TestSetup_WithOTelProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()

	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&buf, "info", provider)

	m.Logger().Info("otel integrated")
	assert.Contains(t, buf.String(), "otel integrated")
}

// captureStdout redirects os.Stdout to a pipe and returns a function
// that restores stdout and returns what was captured.
func captureStdout(t *testing.T) func() string {
	t.Helper()

	r, w, err := osPipe()
	require.NoError(t, err)

	origStdout := osStdout
	osStdout = w

	return func() string {
		w.Close()
		osStdout = origStdout
		var buf bytes.Buffer
		buf.ReadFrom(r)
		r.Close()
		return buf.String()
	}
}

func TestSetup_WithMissionContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := MissionContext{Session: "s-42", Mission: "Op Anvil"}
	m := NewSlogManager().WithContext(func() MissionContext { return ctx })
	m.Setup(&buf, "info", nil)

	m.Logger().Info("mission started")
	assert.Contains(t, buf.String(), "session=s-42")
	assert.Contains(t, buf.String(), `mission="Op Anvil"`)
	assert.NotContains(t, buf.String(), "tick=")

	ctx.Tick, ctx.Ticked = 9, true
	m.Logger().Info("tick complete")
	assert.Contains(t, buf.String(), "tick=9")
}

func TestSetup_ExtraHandlerReceivesRecords(t *testing.T) {
	var buf bytes.Buffer
	w := &fakeGelfWriter{}
	m := NewSlogManager()
	m.Setup(&buf, "info", nil, NewGelfHandlerWithWriter(w, "missioncore", slog.LevelInfo))

	m.Logger().Info("shipped")

	require.NotEmpty(t, w.messages)
	assert.Equal(t, "shipped", w.messages[len(w.messages)-1].Short)
}

func TestMissionHandlerKeepsProvider(t *testing.T) {
	var buf bytes.Buffer
	calls := 0
	h := newMissionHandler(slog.NewTextHandler(&buf, nil), func() MissionContext {
		calls++
		return MissionContext{Session: "s", Tick: core.Tick(calls), Ticked: true}
	})

	logger := slog.New(h).With("component", "engine").WithGroup("")
	logger.Info("one")
	logger.Info("two")

	assert.Equal(t, 2, calls)
	assert.Contains(t, buf.String(), "component=engine")
	assert.Contains(t, buf.String(), "tick=2")
}

func TestMissionHandlerWithoutProvider(t *testing.T) {
	inner := slog.NewTextHandler(&bytes.Buffer{}, nil)
	assert.Equal(t, slog.Handler(inner), newMissionHandler(inner, nil))
}

func TestMissionContextAttrs(t *testing.T) {
	assert.Nil(t, MissionContext{Tick: 4, Ticked: true}.Attrs())

	attrs := MissionContext{Session: "s-1", Tick: 0, Ticked: true}.Attrs()
	require.Len(t, attrs, 2)
	assert.Equal(t, "session", attrs[0].Key)
	assert.Equal(t, "tick", attrs[1].Key)
	assert.Equal(t, uint64(0), attrs[1].Value.Uint64())
}
