package firesupport

import (
	"context"
	"math"
	"sort"

	"github.com/fowlengine/missioncore/internal/snapshot"
	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/fowlengine/missioncore/pkg/hostapi"
)

// Run is the per-tick pass: pending cancels, expiry, unit and target loss,
// resolution, launch, then allocation of queued missions.
func (c *Coordinator) Run(ctx context.Context, tc *core.TickContext, w *snapshot.World) {
	for _, m := range c.missions {
		if m.CancelPending && !m.State.Terminal() {
			c.cancel(tc, m, m.CancelReason)
		}
	}

	for _, m := range c.missions {
		if m.State.Terminal() {
			continue
		}
		d := c.Designation(m.Designation)
		if tc.Tick >= d.ExpiryTick {
			tc.Emit(core.Event{Kind: core.EventExpired, Designation: d.ID, Mission: m.ID, Faction: m.Faction})
			c.cancel(tc, m, core.CancelExpired)
		}
	}

	for _, m := range c.missions {
		if !m.State.Terminal() {
			c.checkLoss(tc, w, m)
		}
	}

	for _, m := range c.missions {
		if m.State == core.MissionInFlight && tc.Tick >= m.ETA {
			c.resolve(ctx, tc, w, m)
		}
	}

	for _, m := range c.missions {
		if m.State == core.MissionAllocated && tc.Tick >= m.AllocatedTick+c.cfg.FireDelayTicks {
			c.launch(tc, m)
		}
	}

	c.allocate(tc, w)
}

func (c *Coordinator) checkLoss(tc *core.TickContext, w *snapshot.World, m *core.FireMission) {
	if m.State == core.MissionAllocated || m.State == core.MissionInFlight {
		fu, ok := w.Unit(m.FiringUnit)
		if !ok || !fu.Alive() {
			c.cancel(tc, m, core.CancelUnitLost)
			return
		}
	}

	d := c.Designation(m.Designation)
	if d.TargetUnit == 0 || m.State == core.MissionInFlight {
		return
	}
	tu, ok := w.Unit(d.TargetUnit)
	if !ok || !tu.Alive() {
		c.cancel(tc, m, core.CancelTargetLost)
		return
	}
	d.Target = tu.Position
	m.Target = tu.Position
}

func (c *Coordinator) resolve(ctx context.Context, tc *core.TickContext, w *snapshot.World, m *core.FireMission) {
	d := c.Designation(m.Designation)
	if c.host != nil {
		err := c.host.IssueFireEffect(ctx, hostapi.FireEffect{
			Mission:   m.ID,
			Unit:      w.Name(m.FiringUnit),
			Target:    m.Target,
			Rounds:    d.Rounds,
			LaserCode: d.LaserCode,
			ETA:       m.ETA,
		})
		if err != nil {
			c.logger.Warn("host rejected fire effect", "tick", tc.Tick, "mission", m.ID, "error", err)
			c.cancel(tc, m, core.CancelHostError)
			return
		}
	}

	if !c.transition(tc, m, core.MissionResolved) {
		return
	}
	m.ClosedTick = tc.Tick
	d.Active = false
	tc.Emit(core.Event{
		Kind:        core.EventMissionResolved,
		Designation: d.ID,
		Mission:     m.ID,
		Unit:        m.FiringUnit,
		Zone:        m.FiringZone,
		Faction:     m.Faction,
	})
}

// launch debits the ammunition. A zone short of stock keeps the mission
// allocated until it can pay.
func (c *Coordinator) launch(tc *core.TickContext, m *core.FireMission) {
	if !c.allowed(tc, m, core.MissionInFlight) {
		return
	}
	if err := c.ledger.Debit(m.FiringZone, m.RequiredSupply); err != nil {
		c.logger.Debug("fire mission waiting for ammunition", "tick", tc.Tick, "mission", m.ID, "error", err)
		return
	}
	m.Debited = true
	c.transition(tc, m, core.MissionInFlight)
	m.LaunchTick = tc.Tick
	m.ETA = tc.Tick + c.cfg.TimeOfFlightTicks
	tc.Emit(core.Event{
		Kind:        core.EventMissionLaunched,
		Designation: m.Designation,
		Mission:     m.ID,
		Unit:        m.FiringUnit,
		Zone:        m.FiringZone,
		Faction:     m.Faction,
		Amount:      m.RequiredSupply,
	})
}

// allocate hands queued missions the closest eligible firing unit, highest
// priority first.
func (c *Coordinator) allocate(tc *core.TickContext, w *snapshot.World) {
	var queued []*core.FireMission
	for _, m := range c.missions {
		if m.State == core.MissionQueued {
			queued = append(queued, m)
		}
	}
	sort.SliceStable(queued, func(i, j int) bool {
		a, b := c.Designation(queued[i].Designation), c.Designation(queued[j].Designation)
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.ExpiryTick != b.ExpiryTick {
			return a.ExpiryTick < b.ExpiryTick
		}
		return queued[i].ID < queued[j].ID
	})

	units := w.Units()
	for _, m := range queued {
		if !c.allowed(tc, m, core.MissionAllocated) {
			continue
		}
		unit, zone, ok := c.pick(w, units, m)
		if !ok {
			continue
		}
		if err := c.ledger.Reserve(zone, m.RequiredSupply); err != nil {
			c.logger.Warn("fire mission reservation failed", "tick", tc.Tick, "mission", m.ID, "error", err)
			continue
		}

		c.transition(tc, m, core.MissionAllocated)
		m.FiringUnit = unit
		m.FiringZone = zone
		m.AllocatedTick = tc.Tick
		c.reserved[unit] = m.ID
		c.zoneLoad[zone]++
		tc.Emit(core.Event{
			Kind:        core.EventMissionAllocated,
			Designation: m.Designation,
			Mission:     m.ID,
			Unit:        unit,
			Zone:        zone,
			Faction:     m.Faction,
			Amount:      m.RequiredSupply,
		})
	}
}

// pick finds the closest free artillery unit of the mission's faction that
// can reach the target from a zone able to supply and crew the mission.
func (c *Coordinator) pick(w *snapshot.World, units []core.Unit, m *core.FireMission) (core.UnitID, core.ZoneID, bool) {
	var (
		best     core.UnitID
		bestZone core.ZoneID
		bestDist = math.Inf(1)
	)
	for _, u := range units {
		if u.Role != core.RoleArtillery || u.Faction != m.Faction || !u.Alive() {
			continue
		}
		if _, taken := c.reserved[u.ID]; taken {
			continue
		}
		if !c.inRange(u, m.Target) {
			continue
		}
		zone, ok := c.firingZone(w, u, m.RequiredSupply)
		if !ok {
			continue
		}
		if d := u.Position.Distance(m.Target); d < bestDist {
			best, bestZone, bestDist = u.ID, zone, d
		}
	}
	return best, bestZone, best != 0
}

func (c *Coordinator) firingZone(w *snapshot.World, u core.Unit, required float64) (core.ZoneID, bool) {
	for _, id := range w.ZonesOf(u.ID) {
		z := c.registry.Zone(id)
		if z == nil || z.Owner != u.Faction || z.Available() < required {
			continue
		}
		limit := int(math.Floor(z.StrengthMultiplier * float64(c.cfg.MaxMissionsPerZone)))
		if c.zoneLoad[id] >= limit {
			continue
		}
		return id, true
	}
	return 0, false
}

// cancel closes a mission. Allocated stock goes back to the zone; stock
// already debited at launch stays spent.
func (c *Coordinator) cancel(tc *core.TickContext, m *core.FireMission, reason core.CancelReason) {
	if m.State.Terminal() {
		return
	}
	if m.State == core.MissionAllocated {
		c.ledger.Release(m.FiringZone, m.RequiredSupply)
	}
	if !c.transition(tc, m, core.MissionCancelled) {
		return
	}
	m.CancelPending = false
	m.CancelReason = reason
	m.ClosedTick = tc.Tick
	if d := c.Designation(m.Designation); d != nil {
		d.Active = false
	}

	c.logger.Debug("fire mission cancelled", "tick", tc.Tick, "mission", m.ID, "reason", string(reason))
	tc.Emit(core.Event{
		Kind:        core.EventMissionCancelled,
		Designation: m.Designation,
		Mission:     m.ID,
		Unit:        m.FiringUnit,
		Faction:     m.Faction,
		Reason:      string(reason),
	})
}

// allowed reports whether m may move to next, logging a refused move.
func (c *Coordinator) allowed(tc *core.TickContext, m *core.FireMission, next core.MissionState) bool {
	if m.State.CanTransition(next) {
		return true
	}
	c.logger.Error("refused fire mission transition",
		"tick", tc.Tick, "mission", m.ID, "from", m.State.String(), "to", next.String())
	return false
}

// transition moves m to next. Leaving the allocated or in-flight states for
// a terminal one frees the firing unit and the zone slot.
func (c *Coordinator) transition(tc *core.TickContext, m *core.FireMission, next core.MissionState) bool {
	if !c.allowed(tc, m, next) {
		return false
	}
	if next.Terminal() {
		c.free(m)
	}
	m.State = next
	return true
}

// free drops the unit reservation and zone load of an allocated or
// in-flight mission.
func (c *Coordinator) free(m *core.FireMission) {
	if m.State != core.MissionAllocated && m.State != core.MissionInFlight {
		return
	}
	if c.reserved[m.FiringUnit] == m.ID {
		delete(c.reserved, m.FiringUnit)
	}
	if c.zoneLoad[m.FiringZone] > 0 {
		c.zoneLoad[m.FiringZone]--
	}
}
