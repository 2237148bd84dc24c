package ownership

import (
	"github.com/fowlengine/missioncore/internal/snapshot"
	"github.com/fowlengine/missioncore/pkg/core"
)

// threatDistance is how close a unit of role r must come to a boundary to
// threaten the zone. Zero disables the role.
func (e *Engine) threatDistance(r core.Role) float64 {
	return e.cfg.ThreatDistance[r.String()]
}

// updateThreat flags owned zones with enemies near their boundary and
// clears the flag once the zone has been quiet for the cooldown.
func (e *Engine) updateThreat(tc *core.TickContext, w *snapshot.World) {
	units := w.Units()

	for _, z := range e.registry.Zones() {
		if z.Owner == core.FactionNeutral {
			z.Threatened = false
			continue
		}
		shape := e.registry.Shape(z.ID)

		var threat *core.Unit
		for i := range units {
			u := &units[i]
			if !u.Alive() || u.Faction == core.FactionNeutral || u.Faction == z.Owner {
				continue
			}
			limit := e.threatDistance(u.Role)
			if limit <= 0 {
				continue
			}
			if shape.Distance(u.Position) <= limit {
				threat = u
				break
			}
		}

		if threat != nil {
			z.LastThreatTick = tc.Tick
			if !z.Threatened {
				z.Threatened = true
				tc.Emit(core.Event{Kind: core.EventZoneThreatened, Zone: z.ID, Faction: threat.Faction, Unit: threat.ID})
			}
			continue
		}

		if z.Threatened && tc.Tick-z.LastThreatTick >= e.cfg.ThreatCooldownTicks {
			z.Threatened = false
			tc.Emit(core.Event{Kind: core.EventZoneCleared, Zone: z.ID, Faction: z.Owner})
		}
	}
}
