// Package snapshot translates the host's per-tick world state into the
// core's entity views. Anything the host reports that does not fit the
// current mission is skipped for the tick and reported as inconsistent.
package snapshot

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/fowlengine/missioncore/internal/mission"
	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/fowlengine/missioncore/pkg/hostapi"
)

// ErrStaleTick is returned when the host repeats or rewinds the tick counter.
var ErrStaleTick = errors.New("snapshot tick is not after the previous tick")

// Units maps host unit names to stable IDs for the whole session. Command
// parsing reads it while a tick assigns new IDs.
type Units struct {
	mu     sync.RWMutex
	byName map[string]core.UnitID
	names  []string
}

// NewUnits creates an empty unit arena.
func NewUnits() *Units {
	return &Units{byName: make(map[string]core.UnitID)}
}

// Resolve returns the ID for name, assigning the next one on first sight.
func (u *Units) Resolve(name string) core.UnitID {
	u.mu.Lock()
	defer u.mu.Unlock()
	if id, ok := u.byName[name]; ok {
		return id
	}
	u.names = append(u.names, name)
	id := core.UnitID(len(u.names))
	u.byName[name] = id
	return id
}

// Lookup returns the ID of a unit seen before.
func (u *Units) Lookup(name string) (core.UnitID, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	id, ok := u.byName[name]
	return id, ok
}

// Name returns the host name of a unit ID, or "" if unknown.
func (u *Units) Name(id core.UnitID) string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if id == 0 || int(id) > len(u.names) {
		return ""
	}
	return u.names[id-1]
}

// World is the read-only view of one tick. Dead units are kept so later
// stages can tell a destroyed unit from one that left the snapshot.
type World struct {
	Tick    core.Tick
	Blocked map[core.RouteID]bool
	Skipped int

	units   map[core.UnitID]core.Unit
	order   []core.UnitID
	zonesOf map[core.UnitID][]core.ZoneID
	inZone  map[core.ZoneID][]core.UnitID
	names   *Units
}

// NewWorld builds a world directly from units, placing them with zonesAt.
// The adapter uses it; tests use it to skip the host format.
func NewWorld(tick core.Tick, names *Units, units []core.Unit, zonesAt func(core.Position) []core.ZoneID) *World {
	w := &World{
		Tick:    tick,
		Blocked: make(map[core.RouteID]bool),
		units:   make(map[core.UnitID]core.Unit, len(units)),
		zonesOf: make(map[core.UnitID][]core.ZoneID),
		inZone:  make(map[core.ZoneID][]core.UnitID),
		names:   names,
	}
	for _, u := range units {
		w.units[u.ID] = u
		w.order = append(w.order, u.ID)
	}
	sort.Slice(w.order, func(i, j int) bool { return w.order[i] < w.order[j] })

	if zonesAt == nil {
		return w
	}
	for _, id := range w.order {
		u := w.units[id]
		if !u.Alive() {
			continue
		}
		for _, z := range zonesAt(u.Position) {
			w.zonesOf[id] = append(w.zonesOf[id], z)
			w.inZone[z] = append(w.inZone[z], id)
		}
	}
	return w
}

// Unit returns a unit present in this tick.
func (w *World) Unit(id core.UnitID) (core.Unit, bool) {
	u, ok := w.units[id]
	return u, ok
}

// UnitByName returns a unit present in this tick by host name.
func (w *World) UnitByName(name string) (core.Unit, bool) {
	if w.names == nil {
		return core.Unit{}, false
	}
	id, ok := w.names.Lookup(name)
	if !ok {
		return core.Unit{}, false
	}
	return w.Unit(id)
}

// Name returns the host name of a unit.
func (w *World) Name(id core.UnitID) string {
	if w.names == nil {
		return ""
	}
	return w.names.Name(id)
}

// Units returns all units of the tick in ID order.
func (w *World) Units() []core.Unit {
	out := make([]core.Unit, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.units[id])
	}
	return out
}

// Len is the number of units accepted this tick.
func (w *World) Len() int {
	return len(w.order)
}

// InZone returns the living units inside a zone, in ID order.
func (w *World) InZone(z core.ZoneID) []core.Unit {
	ids := w.inZone[z]
	out := make([]core.Unit, 0, len(ids))
	for _, id := range ids {
		out = append(out, w.units[id])
	}
	return out
}

// ZonesOf returns the zones a living unit stands in.
func (w *World) ZonesOf(id core.UnitID) []core.ZoneID {
	return w.zonesOf[id]
}

// Adapter turns host snapshots into worlds for one session.
type Adapter struct {
	registry *mission.Registry
	units    *Units
	logger   *slog.Logger

	lastTick core.Tick
	started  bool
}

// NewAdapter creates an adapter for the zones and routes in reg.
func NewAdapter(reg *mission.Registry, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{registry: reg, units: NewUnits(), logger: logger}
}

// Units returns the session's unit arena.
func (a *Adapter) Units() *Units {
	return a.units
}

// Translate validates a snapshot and builds the tick's world. Zone geometry
// updates are applied to the registry. Only a stale tick fails the whole
// snapshot; every other problem skips the entity concerned.
func (a *Adapter) Translate(tc *core.TickContext, s hostapi.Snapshot) (*World, error) {
	if a.started && s.Tick <= a.lastTick {
		return nil, fmt.Errorf("%w: got %d, last %d", ErrStaleTick, s.Tick, a.lastTick)
	}
	a.started = true
	a.lastTick = s.Tick

	skipped := 0
	skip := func(reason string, args ...any) {
		skipped++
		msg := fmt.Sprintf(reason, args...)
		a.logger.Warn("inconsistent snapshot entry skipped", "tick", s.Tick, "reason", msg)
		tc.Emit(core.Event{Kind: core.EventInconsistentSnapshot, Reason: msg})
	}

	for _, g := range s.ZoneGeometry {
		a.applyGeometry(g, skip)
	}

	seen := make(map[string]bool, len(s.Units))
	units := make([]core.Unit, 0, len(s.Units))
	for _, hu := range s.Units {
		if hu.Name == "" {
			skip("unit without a name")
			continue
		}
		if seen[hu.Name] {
			skip("unit %q reported twice", hu.Name)
			continue
		}
		seen[hu.Name] = true

		u, err := a.unit(hu)
		if err != nil {
			skip("unit %q: %v", hu.Name, err)
			continue
		}
		units = append(units, u)
	}

	w := NewWorld(s.Tick, a.units, units, a.registry.ZonesAt)

	for _, name := range s.BlockedRoutes {
		id, ok := a.registry.RouteID(name)
		if !ok {
			skip("blocked route %q is not in the layout", name)
			continue
		}
		w.Blocked[id] = true
	}

	w.Skipped = skipped
	return w, nil
}

func (a *Adapter) unit(hu hostapi.Unit) (core.Unit, error) {
	faction, err := core.ParseFaction(hu.Faction)
	if err != nil {
		return core.Unit{}, err
	}
	role, err := core.ParseRole(hu.Role)
	if err != nil {
		return core.Unit{}, err
	}
	if !hu.Position.Valid() {
		return core.Unit{}, errors.New("position is not finite")
	}
	if math.IsNaN(hu.Strength) || hu.Strength < 0 || hu.Strength > 1 {
		return core.Unit{}, fmt.Errorf("strength %v outside [0,1]", hu.Strength)
	}
	if hu.Range < 0 || math.IsNaN(hu.Range) || math.IsInf(hu.Range, 0) {
		return core.Unit{}, fmt.Errorf("range %v is not valid", hu.Range)
	}

	return core.Unit{
		ID:           a.units.Resolve(hu.Name),
		Name:         hu.Name,
		Faction:      faction,
		Role:         role,
		Position:     hu.Position,
		Strength:     hu.Strength,
		CanDesignate: hu.CanDesignate,
		Range:        hu.Range,
	}, nil
}

func (a *Adapter) applyGeometry(g hostapi.ZoneGeometry, skip func(string, ...any)) {
	id, ok := a.registry.ZoneID(g.Zone)
	if !ok {
		skip("geometry for unknown zone %q", g.Zone)
		return
	}

	var b core.Boundary
	switch {
	case g.Circle != nil:
		b = core.Boundary{Kind: core.BoundaryCircle, Center: g.Circle.Center, Radius: g.Circle.Radius}
	case len(g.Polygon) > 0:
		b = core.Boundary{Kind: core.BoundaryPolygon, Points: g.Polygon}
	default:
		skip("geometry for zone %q has no shape", g.Zone)
		return
	}

	if err := a.registry.SetBoundary(id, b); err != nil {
		skip("geometry for zone %q: %v", g.Zone, err)
	}
}
