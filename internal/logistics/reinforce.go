package logistics

import (
	"context"
	"log/slog"

	"github.com/fowlengine/missioncore/internal/mission"
	"github.com/fowlengine/missioncore/internal/snapshot"
	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/fowlengine/missioncore/pkg/hostapi"
)

type spawnedUnit struct {
	name string
	// seen counts the snapshots pruned since the spawn.
	seen int
}

// Reinforcer spends spare supply on the units a zone's layout entry names
// and removes them again when the zone changes hands.
type Reinforcer struct {
	registry *mission.Registry
	graph    *Graph
	host     hostapi.Host
	units    *snapshot.Units
	logger   *slog.Logger

	spawned   map[core.ZoneID][]spawnedUnit
	lastSpawn map[core.ZoneID]core.Tick
}

// NewReinforcer creates a reinforcer that spends from g and spawns through
// host. units, if set, gives spawned units their IDs up front.
func NewReinforcer(reg *mission.Registry, g *Graph, host hostapi.Host, units *snapshot.Units, logger *slog.Logger) *Reinforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reinforcer{
		registry:  reg,
		graph:     g,
		host:      host,
		units:     units,
		logger:    logger,
		spawned:   make(map[core.ZoneID][]spawnedUnit),
		lastSpawn: make(map[core.ZoneID]core.Tick),
	}
}

// Tracked returns the host names of units spawned for a zone that are still
// counted against its limit.
func (r *Reinforcer) Tracked(z core.ZoneID) []string {
	out := make([]string, 0, len(r.spawned[z]))
	for _, s := range r.spawned[z] {
		out = append(out, s.name)
	}
	return out
}

// Run despawns the units of zones that flipped this tick, then spawns for
// every zone that is due. Host failures are logged and the zone is skipped.
func (r *Reinforcer) Run(ctx context.Context, tc *core.TickContext, w *snapshot.World, deltas []core.OwnershipDelta) {
	for _, d := range deltas {
		if d.Flipped {
			r.despawn(ctx, tc, d.Zone)
		}
	}

	for _, z := range r.registry.Zones() {
		r.prune(z.ID, w)

		rf := z.Reinforcement
		if rf == nil || rf.EveryTicks == 0 || z.Owner == core.FactionNeutral || z.Threatened {
			continue
		}
		if last, ok := r.lastSpawn[z.ID]; ok && tc.Tick-last < rf.EveryTicks {
			continue
		}
		if len(r.spawned[z.ID]) >= rf.MaxAlive || z.Available() < rf.Cost {
			continue
		}
		r.spawn(ctx, tc, z)
	}
}

func (r *Reinforcer) spawn(ctx context.Context, tc *core.TickContext, z *core.Zone) {
	rf := z.Reinforcement
	name, err := r.host.SpawnUnit(ctx, hostapi.SpawnRequest{
		Template: rf.Template,
		Faction:  z.Owner.String(),
		Zone:     z.Name,
		Position: z.Boundary.Center,
	})
	if err != nil {
		r.logger.Warn("reinforcement spawn failed", "tick", tc.Tick, "zone", z.Name, "template", rf.Template, "error", err)
		return
	}
	if err := r.graph.Spend(z.ID, rf.Cost); err != nil {
		r.logger.Error("reinforcement spawned without supply", "tick", tc.Tick, "zone", z.Name, "error", err)
	}

	r.lastSpawn[z.ID] = tc.Tick
	r.spawned[z.ID] = append(r.spawned[z.ID], spawnedUnit{name: name})

	var id core.UnitID
	if r.units != nil {
		id = r.units.Resolve(name)
	}
	tc.Emit(core.Event{
		Kind:    core.EventReinforcementSpawned,
		Zone:    z.ID,
		Unit:    id,
		Faction: z.Owner,
		Amount:  rf.Cost,
		Reason:  name,
	})
}

func (r *Reinforcer) despawn(ctx context.Context, tc *core.TickContext, zone core.ZoneID) {
	for _, s := range r.spawned[zone] {
		if err := r.host.DespawnUnit(ctx, s.name); err != nil {
			r.logger.Warn("reinforcement despawn failed", "tick", tc.Tick, "unit", s.name, "error", err)
			continue
		}
		var id core.UnitID
		if r.units != nil {
			id, _ = r.units.Lookup(s.name)
		}
		tc.Emit(core.Event{Kind: core.EventReinforcementRemoved, Zone: zone, Unit: id, Reason: s.name})
	}
	delete(r.spawned, zone)
	delete(r.lastSpawn, zone)
}

// prune drops units that died or vanished. A unit missing from the first
// snapshot after its spawn may not have reached the host yet and is kept.
func (r *Reinforcer) prune(zone core.ZoneID, w *snapshot.World) {
	list := r.spawned[zone]
	kept := list[:0]
	for _, s := range list {
		s.seen++
		u, ok := w.UnitByName(s.name)
		switch {
		case ok && u.Alive():
			kept = append(kept, s)
		case !ok && s.seen == 1:
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(r.spawned, zone)
		return
	}
	r.spawned[zone] = kept
}
