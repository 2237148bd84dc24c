// Package websocket streams a running session to a remote server. It
// implements storage.Backend but not storage.Uploadable.
package websocket

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/fowlengine/missioncore/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams session data over WebSocket.
type Backend struct {
	conn *connection
	cfg  Config

	mu      sync.Mutex
	session string
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// Dropped returns how many messages were discarded while the connection was
// down or backed up.
func (b *Backend) Dropped() uint64 {
	return b.conn.dropped.Load()
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	b.conn.send(data)
	return nil
}

// StartSession announces the session, waits for the server ack and keeps
// the message for replay after reconnects.
func (b *Backend) StartSession(session *core.Session) error {
	data, err := streaming.Marshal(streaming.TypeStartSession, streaming.StartSessionPayload{Session: session})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", streaming.TypeStartSession, err)
	}
	b.conn.rememberSession(data)

	b.mu.Lock()
	b.session = session.ID
	b.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for the server ack.
func (b *Backend) EndSession(lastTick core.Tick, victor core.Faction) error {
	b.mu.Lock()
	id := b.session
	b.session = ""
	b.mu.Unlock()

	data, err := streaming.Marshal(streaming.TypeEndSession, streaming.EndSessionPayload{
		Session:  id,
		LastTick: lastTick,
		Victor:   victor,
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", streaming.TypeEndSession, err)
	}
	b.conn.rememberSession(nil)
	return b.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)
}

// RecordTick streams the tick report.
func (b *Backend) RecordTick(r *core.TickReport) error {
	return b.sendEnvelope(streaming.TypeTick, r)
}

// RecordZoneStates streams the zone projections.
func (b *Backend) RecordZoneStates(tick core.Tick, zones []core.ZoneView) error {
	return b.sendEnvelope(streaming.TypeZoneStates, streaming.ZoneStatesPayload{Tick: tick, Zones: zones})
}

// RecordEvents streams the events of one tick. Empty batches are skipped.
func (b *Backend) RecordEvents(events []core.Event) error {
	if len(events) == 0 {
		return nil
	}
	return b.sendEnvelope(streaming.TypeEvents, streaming.EventsPayload{Events: events})
}
