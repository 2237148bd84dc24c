// Package firesupport turns JTAC designations into artillery fire missions
// and walks each mission through its lifecycle, one pass per tick.
package firesupport

import (
	"log/slog"
	"math"

	"github.com/fowlengine/missioncore/internal/config"
	"github.com/fowlengine/missioncore/internal/mission"
	"github.com/fowlengine/missioncore/internal/snapshot"
	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/fowlengine/missioncore/pkg/hostapi"
)

// DefaultMaxMissionsPerZone is the per-zone mission limit used when the
// configured one is not positive.
const DefaultMaxMissionsPerZone = 4

// Ledger is the stock bookkeeping a fire mission draws on.
type Ledger interface {
	Reserve(zone core.ZoneID, amount float64) error
	Release(zone core.ZoneID, amount float64)
	Debit(zone core.ZoneID, amount float64) error
}

// Coordinator owns all designations and fire missions of a session.
// Designations and missions are arenas: an ID is its index plus one.
type Coordinator struct {
	cfg      config.FireSupportConfig
	registry *mission.Registry
	ledger   Ledger
	host     hostapi.Host
	logger   *slog.Logger

	designations []*core.Designation
	missions     []*core.FireMission

	reserved map[core.UnitID]core.MissionID
	zoneLoad map[core.ZoneID]int
}

// New creates a coordinator. host may be nil in which case resolved
// missions are only recorded.
func New(cfg config.FireSupportConfig, reg *mission.Registry, ledger Ledger, host hostapi.Host, logger *slog.Logger) *Coordinator {
	if cfg.DefaultRounds <= 0 {
		cfg.DefaultRounds = 1
	}
	if cfg.MaxMissionsPerZone <= 0 {
		cfg.MaxMissionsPerZone = DefaultMaxMissionsPerZone
	}
	if cfg.MaxRounds < cfg.DefaultRounds {
		cfg.MaxRounds = cfg.DefaultRounds
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:      cfg,
		registry: reg,
		ledger:   ledger,
		host:     host,
		logger:   logger,
		reserved: make(map[core.UnitID]core.MissionID),
		zoneLoad: make(map[core.ZoneID]int),
	}
}

// Designation returns a designation record or nil.
func (c *Coordinator) Designation(id core.DesignationID) *core.Designation {
	if id == 0 || int(id) > len(c.designations) {
		return nil
	}
	return c.designations[id-1]
}

// Mission returns a fire mission record or nil.
func (c *Coordinator) Mission(id core.MissionID) *core.FireMission {
	if id == 0 || int(id) > len(c.missions) {
		return nil
	}
	return c.missions[id-1]
}

// ActiveDesignations returns copies of the designations still in play.
func (c *Coordinator) ActiveDesignations() []core.Designation {
	var out []core.Designation
	for _, d := range c.designations {
		if d.Active {
			out = append(out, *d)
		}
	}
	return out
}

// OpenMissions returns copies of the missions not yet resolved or cancelled.
func (c *Coordinator) OpenMissions() []core.FireMission {
	var out []core.FireMission
	for _, m := range c.missions {
		if !m.State.Terminal() {
			out = append(out, *m)
		}
	}
	return out
}

// ReservedBy reports the mission holding a firing unit, if any.
func (c *Coordinator) ReservedBy(unit core.UnitID) (core.MissionID, bool) {
	m, ok := c.reserved[unit]
	return m, ok
}

// ZoneLoad is the number of allocated or in-flight missions firing from z.
func (c *Coordinator) ZoneLoad(z core.ZoneID) int {
	return c.zoneLoad[z]
}

func (c *Coordinator) activeFor(f core.Faction) int {
	n := 0
	for _, d := range c.designations {
		if d.Active && d.Faction == f {
			n++
		}
	}
	return n
}

// Designate validates a designation against the current world and queues
// a fire mission for it.
func (c *Coordinator) Designate(tc *core.TickContext, w *snapshot.World, cmd core.SubmitDesignation) (core.DesignationID, core.MissionID, *core.CommandError) {
	kind := cmd.Kind()

	req, ok := w.Unit(cmd.Requester)
	if !ok {
		return 0, 0, core.Invalid(kind, "requester %d is not in the current snapshot", cmd.Requester)
	}
	if !req.Alive() {
		return 0, 0, core.Invalid(kind, "requester %q is not alive", req.Name)
	}
	if !req.JTACCapable() {
		return 0, 0, core.Invalid(kind, "requester %q cannot designate targets", req.Name)
	}
	if req.Faction == core.FactionNeutral {
		return 0, 0, core.Invalid(kind, "requester %q has no faction", req.Name)
	}

	var target core.Position
	if cmd.TargetUnit != 0 {
		tu, ok := w.Unit(cmd.TargetUnit)
		if !ok {
			return 0, 0, core.Invalid(kind, "target unit %d is not in the current snapshot", cmd.TargetUnit)
		}
		if !tu.Alive() {
			return 0, 0, core.Invalid(kind, "target unit %q is not alive", tu.Name)
		}
		if tu.Faction == req.Faction {
			return 0, 0, core.Invalid(kind, "target unit %q is friendly", tu.Name)
		}
		target = tu.Position
	} else {
		target = *cmd.Target
	}

	if c.cfg.MaxTTL > 0 && cmd.TTL > c.cfg.MaxTTL {
		return 0, 0, core.Invalid(kind, "ttl %d exceeds the limit of %d ticks", cmd.TTL, c.cfg.MaxTTL)
	}
	if c.cfg.MaxPriority > 0 && cmd.Priority > c.cfg.MaxPriority {
		return 0, 0, core.Invalid(kind, "priority %d exceeds the limit of %d", cmd.Priority, c.cfg.MaxPriority)
	}
	rounds := cmd.Rounds
	if rounds == 0 {
		rounds = c.cfg.DefaultRounds
	}
	if rounds > c.cfg.MaxRounds {
		return 0, 0, core.Invalid(kind, "%d rounds exceeds the limit of %d", rounds, c.cfg.MaxRounds)
	}
	if c.cfg.MaxDesignationsPerFaction > 0 && c.activeFor(req.Faction) >= c.cfg.MaxDesignationsPerFaction {
		return 0, 0, core.Exhausted(kind, "%s already has %d active designations", req.Faction, c.cfg.MaxDesignationsPerFaction)
	}

	laser := cmd.LaserCode
	if laser == 0 {
		laser = core.DefaultLaserCode
	}

	d := &core.Designation{
		ID:         core.DesignationID(len(c.designations) + 1),
		Faction:    req.Faction,
		Requester:  req.ID,
		Target:     target,
		TargetUnit: cmd.TargetUnit,
		Priority:   cmd.Priority,
		LaserCode:  laser,
		Rounds:     rounds,
		SubmitTick: tc.Tick,
		ExpiryTick: expiryTick(tc.Tick, cmd.TTL),
		Active:     true,
	}
	m := &core.FireMission{
		ID:             core.MissionID(len(c.missions) + 1),
		Designation:    d.ID,
		Faction:        d.Faction,
		State:          core.MissionQueued,
		Target:         target,
		RequiredSupply: float64(rounds) * c.cfg.AmmoPerRound,
		QueuedTick:     tc.Tick,
	}
	d.Mission = m.ID
	c.designations = append(c.designations, d)
	c.missions = append(c.missions, m)

	tc.Emit(core.Event{
		Kind:        core.EventDesignationCreated,
		Designation: d.ID,
		Mission:     m.ID,
		Unit:        req.ID,
		Faction:     d.Faction,
	})
	return d.ID, m.ID, nil
}

// expiryTick adds ttl to now, saturating at the largest tick.
func expiryTick(now, ttl core.Tick) core.Tick {
	if ttl > math.MaxUint64-now {
		return math.MaxUint64
	}
	return now + ttl
}

// RequestCancel marks a mission for cancellation at the next pass.
func (c *Coordinator) RequestCancel(cmd core.CancelFireMission) *core.CommandError {
	kind := cmd.Kind()
	m := c.Mission(cmd.Mission)
	if m == nil {
		return core.Invalid(kind, "unknown fire mission %d", cmd.Mission)
	}
	if m.State == core.MissionCancelled || m.CancelPending {
		return core.Invalid(kind, "fire mission %d already cancelled", m.ID)
	}
	if m.State == core.MissionResolved {
		return core.Invalid(kind, "fire mission %d already resolved", m.ID)
	}
	m.CancelPending = true
	m.CancelReason = core.CancelRequested
	return nil
}

// CancelDesignation withdraws a designation and marks its mission for
// cancellation at the next pass.
func (c *Coordinator) CancelDesignation(cmd core.CancelDesignation) *core.CommandError {
	kind := cmd.Kind()
	d := c.Designation(cmd.Designation)
	if d == nil {
		return core.Invalid(kind, "unknown designation %d", cmd.Designation)
	}
	m := c.Mission(d.Mission)
	if !d.Active || m.State.Terminal() || m.CancelPending {
		return core.Invalid(kind, "designation %d already cancelled or closed", d.ID)
	}
	m.CancelPending = true
	m.CancelReason = core.CancelWithdrawn
	return nil
}

// Adjust shifts the aim point of a queued or allocated mission relative to
// the line from the requester to the target.
func (c *Coordinator) Adjust(w *snapshot.World, cmd core.AdjustFire) *core.CommandError {
	kind := cmd.Kind()
	m := c.Mission(cmd.Mission)
	if m == nil {
		return core.Invalid(kind, "unknown fire mission %d", cmd.Mission)
	}
	if m.CancelPending {
		return core.Invalid(kind, "fire mission %d is being cancelled", m.ID)
	}
	if m.State != core.MissionQueued && m.State != core.MissionAllocated {
		return core.Invalid(kind, "fire mission %d is %s and can no longer be adjusted", m.ID, m.State)
	}
	d := c.Designation(m.Designation)
	if d.TargetUnit != 0 {
		return core.Invalid(kind, "fire mission %d tracks a unit and cannot be adjusted", m.ID)
	}
	req, ok := w.Unit(d.Requester)
	if !ok {
		return core.Invalid(kind, "requester %d is not in the current snapshot", d.Requester)
	}

	next := offset(req.Position, m.Target, cmd.Along, cmd.Across)

	if m.State == core.MissionAllocated {
		if fu, ok := w.Unit(m.FiringUnit); ok && !c.inRange(fu, next) {
			return core.Invalid(kind, "adjusted target is out of range of %q", fu.Name)
		}
	}

	m.Target = next
	d.Target = next
	return nil
}

// offset moves target along the observer-target line and across it, to the
// right of the observer. A zero-length line is taken as pointing north.
func offset(observer, target core.Position, along, across float64) core.Position {
	dx, dy := target.X-observer.X, target.Y-observer.Y
	dist := math.Hypot(dx, dy)
	ux, uy := 0.0, 1.0
	if dist > 0 {
		ux, uy = dx/dist, dy/dist
	}
	return core.Position{
		X:   target.X + along*ux + across*uy,
		Y:   target.Y + along*uy - across*ux,
		Alt: target.Alt,
	}
}

func (c *Coordinator) maxRange(u core.Unit) float64 {
	if u.Range > 0 {
		return u.Range
	}
	return c.cfg.MaxRange
}

func (c *Coordinator) inRange(u core.Unit, target core.Position) bool {
	d := u.Position.Distance(target)
	return d >= c.cfg.MinRange && d <= c.maxRange(u)
}
