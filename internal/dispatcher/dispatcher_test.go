package dispatcher

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.messages))
	copy(out, l.messages)
	return out
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	t.Helper()
	logger := &testLogger{}

	d, err := New(logger)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	return d, logger
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Register(":TICK:", func(e Event) (any, error) {
		got = e
		return "result", nil
	})

	result, err := d.Dispatch(Event{Command: ":TICK:", Args: []string{`{"tick":1}`}})

	require.NoError(t, err)
	assert.Equal(t, "result", result)
	assert.Equal(t, []string{`{"tick":1}`}, got.Args)
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(Event{Command: ":UNKNOWN:"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	d.Register(":METRIC:", func(e Event) (any, error) {
		processed.Add(1)
		wg.Done()
		return nil, nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		result, err := d.Dispatch(Event{Command: ":METRIC:"})
		require.NoError(t, err)
		assert.Equal(t, "queued", result)
	}

	wg.Wait()
	assert.Equal(t, int32(3), processed.Load())
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{}, 1)
	block := make(chan struct{})
	d.Register(":FULL:", func(e Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(2))

	// first event is picked up by the worker
	_, err := d.Dispatch(Event{Command: ":FULL:"})
	require.NoError(t, err)
	<-started

	// two more fill the queue
	_, err = d.Dispatch(Event{Command: ":FULL:"})
	require.NoError(t, err)
	_, err = d.Dispatch(Event{Command: ":FULL:"})
	require.NoError(t, err)

	_, err = d.Dispatch(Event{Command: ":FULL:"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")

	close(block)
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{}, 1)
	block := make(chan struct{})
	d.Register(":BLOCKING:", func(e Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(1), Blocking())

	d.Dispatch(Event{Command: ":BLOCKING:"})
	<-started
	d.Dispatch(Event{Command: ":BLOCKING:"})

	done := make(chan struct{})
	go func() {
		d.Dispatch(Event{Command: ":BLOCKING:"})
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-done
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":STATE:", func(e Event) (any, error) {
		return "ok", nil
	}, Logged())

	_, err := d.Dispatch(Event{Command: ":STATE:", Args: []string{"a", "b"}})
	require.NoError(t, err)

	msgs := logger.snapshot()
	require.Len(t, msgs, 2)
	assert.True(t, strings.HasPrefix(msgs[0], "DEBUG: handling event"))
	assert.True(t, strings.HasPrefix(msgs[1], "DEBUG: event complete"))
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":ERROR:", func(e Event) (any, error) {
		return nil, fmt.Errorf("test error")
	}, Logged())

	_, err := d.Dispatch(Event{Command: ":ERROR:"})
	require.Error(t, err)

	hasError := false
	for _, msg := range logger.snapshot() {
		if strings.HasPrefix(msg, "ERROR: event failed") {
			hasError = true
		}
	}
	assert.True(t, hasError, "expected error log message")
}

func TestDispatcher_GuardedRecoversPanic(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":PANIC:", func(e Event) (any, error) {
		var m map[string]int
		m["boom"]++
		return nil, nil
	}, Guarded())

	result, err := d.Dispatch(Event{Command: ":PANIC:"})

	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "internal error handling :PANIC:")

	found := false
	for _, msg := range logger.snapshot() {
		if strings.HasPrefix(msg, "ERROR: handler panicked") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDispatcher_HasHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(":EXISTS:", func(e Event) (any, error) { return nil, nil })

	assert.True(t, d.HasHandler(":EXISTS:"))
	assert.False(t, d.HasHandler(":NOT_EXISTS:"))
}

func TestDispatcher_Commands(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(":B:", func(e Event) (any, error) { return nil, nil })
	d.Register(":A:", func(e Event) (any, error) { return nil, nil })

	cmds := d.Commands()
	sort.Strings(cmds)
	assert.Equal(t, []string{":A:", ":B:"}, cmds)
}

func TestDispatcher_CloseDrainsBuffers(t *testing.T) {
	logger := &testLogger{}
	d, err := New(logger)
	require.NoError(t, err)

	var processed atomic.Int32
	d.Register(":METRIC:", func(e Event) (any, error) {
		processed.Add(1)
		return nil, nil
	}, Buffered(10), Blocking())

	for i := 0; i < 5; i++ {
		_, err := d.Dispatch(Event{Command: ":METRIC:"})
		require.NoError(t, err)
	}

	d.Close()
	assert.Equal(t, int32(5), processed.Load())

	_, err = d.Dispatch(Event{Command: ":METRIC:"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatcher closed")

	// closing twice is a no-op
	d.Close()
}

func TestDispatcher_CombinedOptions(t *testing.T) {
	d, logger := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)

	d.Register(":COMBINED:", func(e Event) (any, error) {
		processed.Add(1)
		wg.Done()
		return "done", nil
	}, Buffered(100), Logged(), Guarded())

	result, err := d.Dispatch(Event{Command: ":COMBINED:"})

	require.NoError(t, err)
	assert.Equal(t, "queued", result)

	wg.Wait()

	assert.Equal(t, int32(1), processed.Load())
	assert.GreaterOrEqual(t, len(logger.snapshot()), 2)
}
