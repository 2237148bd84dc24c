// Package streaming defines the messages a live session is streamed with.
// Every message travels in an Envelope; the server acknowledges the ones the
// sender waits for.
package streaming

import (
	"encoding/json"

	"github.com/fowlengine/missioncore/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeTick         = "tick"
	TypeZoneStates   = "zone_states"
	TypeEvents       = "events"
	TypeAck          = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload announces a session.
type StartSessionPayload struct {
	Session *core.Session `json:"session"`
}

// EndSessionPayload closes a session.
type EndSessionPayload struct {
	Session  string       `json:"session"`
	LastTick core.Tick    `json:"lastTick"`
	Victor   core.Faction `json:"victor,omitempty"`
}

// ZoneStatesPayload carries the zone projections of one tick.
type ZoneStatesPayload struct {
	Tick  core.Tick       `json:"tick"`
	Zones []core.ZoneView `json:"zones"`
}

// EventsPayload carries the events of one tick in emission order.
type EventsPayload struct {
	Events []core.Event `json:"events"`
}

// Marshal builds a JSON-encoded Envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
