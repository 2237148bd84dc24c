package hostapi

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fowlengine/missioncore/internal/queue"
)

// ErrNoSnapshot is returned when the core asks for a tick the host has not
// pushed yet.
var ErrNoSnapshot = errors.New("no snapshot pushed for this tick")

// Effect kinds queued for the host.
const (
	EffectFire    = "fire"
	EffectSpawn   = "spawn"
	EffectDespawn = "despawn"
)

// Effect is one outbound call the host has to carry out.
type Effect struct {
	Kind  string        `json:"kind"`
	Fire  *FireEffect   `json:"fire,omitempty"`
	Spawn *SpawnRequest `json:"spawn,omitempty"`
	Name  string        `json:"name,omitempty"`
}

// Bridge adapts a push-style scripting host to the Host interface. The host
// pushes a snapshot before each tick and drains the queued effects from the
// tick's response.
type Bridge struct {
	mu      sync.Mutex
	pending *Snapshot
	spawned uint64

	outbox *queue.Queue[Effect]
}

// NewBridge creates an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{outbox: queue.New[Effect]()}
}

// Push stores the snapshot for the next Snapshot call.
func (b *Bridge) Push(s Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = &s
}

// Snapshot returns the pushed snapshot once.
func (b *Bridge) Snapshot(_ context.Context) (Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return Snapshot{}, ErrNoSnapshot
	}
	s := *b.pending
	b.pending = nil
	return s, nil
}

// IssueFireEffect queues the effect for the host.
func (b *Bridge) IssueFireEffect(_ context.Context, fx FireEffect) error {
	b.outbox.Push(Effect{Kind: EffectFire, Fire: &fx})
	return nil
}

// SpawnUnit queues a spawn and returns the name the host must give the unit.
func (b *Bridge) SpawnUnit(_ context.Context, req SpawnRequest) (string, error) {
	b.mu.Lock()
	b.spawned++
	name := fmt.Sprintf("%s-%s-%d", req.Zone, req.Template, b.spawned)
	b.mu.Unlock()

	b.outbox.Push(Effect{Kind: EffectSpawn, Spawn: &req, Name: name})
	return name, nil
}

// DespawnUnit queues a despawn.
func (b *Bridge) DespawnUnit(_ context.Context, name string) error {
	b.outbox.Push(Effect{Kind: EffectDespawn, Name: name})
	return nil
}

// Drain returns and clears the queued effects.
func (b *Bridge) Drain() []Effect {
	return b.outbox.GetAndEmpty()
}
