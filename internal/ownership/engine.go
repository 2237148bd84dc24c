// Package ownership runs the zone capture state machine and the threat
// tracker. Both read the units each zone contains and update the zone
// records in the mission registry.
package ownership

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/fowlengine/missioncore/internal/config"
	"github.com/fowlengine/missioncore/internal/mission"
	"github.com/fowlengine/missioncore/internal/snapshot"
	"github.com/fowlengine/missioncore/pkg/core"
)

// DefaultWeightExpr counts every unit by its remaining strength.
const DefaultWeightExpr = "strength"

// WeightEnv is what a presence-weight expression can read about one unit.
type WeightEnv struct {
	Strength  float64 `expr:"strength"`
	Role      string  `expr:"role"`
	Infantry  bool    `expr:"infantry"`
	Armor     bool    `expr:"armor"`
	Logistics bool    `expr:"logistics"`
	Artillery bool    `expr:"artillery"`
	JTAC      bool    `expr:"jtac"`
}

func weightEnv(u core.Unit) WeightEnv {
	return WeightEnv{
		Strength:  u.Strength,
		Role:      u.Role.String(),
		Infantry:  u.Role == core.RoleInfantry,
		Armor:     u.Role == core.RoleArmor,
		Logistics: u.Role == core.RoleLogistics,
		Artillery: u.Role == core.RoleArtillery,
		JTAC:      u.Role == core.RoleJTAC,
	}
}

// Presence is one faction's aggregate inside a zone.
type Presence struct {
	Faction  core.Faction
	Weight   float64
	Strength float64
}

// Engine evaluates zone ownership once per tick.
type Engine struct {
	cfg      config.OwnershipConfig
	registry *mission.Registry
	weight   *vm.Program
	logger   *slog.Logger

	// captureTicks is the shortest unbroken contest that can take an owned
	// zone.
	captureTicks int
}

// New compiles the weight expression and returns an engine over reg.
func New(cfg config.OwnershipConfig, reg *mission.Registry, logger *slog.Logger) (*Engine, error) {
	if cfg.WeightExpr == "" {
		cfg.WeightExpr = DefaultWeightExpr
	}
	if cfg.Margin < 0 {
		return nil, fmt.Errorf("ownership margin must not be negative, got %v", cfg.Margin)
	}
	if cfg.DecayRate <= 0 {
		return nil, fmt.Errorf("ownership decay rate must be positive, got %v", cfg.DecayRate)
	}
	if cfg.MidValue <= 0 || cfg.MidValue > core.ProgressMax {
		return nil, fmt.Errorf("ownership mid value must be in (0,%v], got %v", core.ProgressMax, cfg.MidValue)
	}

	prog, err := expr.Compile(cfg.WeightExpr, expr.Env(WeightEnv{}))
	if err != nil {
		return nil, fmt.Errorf("compile weight expression %q: %w", cfg.WeightExpr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:          cfg,
		registry:     reg,
		weight:       prog,
		logger:       logger,
		captureTicks: int(math.Ceil(core.ProgressMax / cfg.DecayRate)),
	}, nil
}

// CaptureTicks is how many consecutive contested ticks an owned zone needs
// before it can flip.
func (e *Engine) CaptureTicks() int {
	return e.captureTicks
}

// Weight is the presence weight one unit contributes. Expression failures
// and negative results count as zero.
func (e *Engine) Weight(u core.Unit) float64 {
	out, err := expr.Run(e.weight, weightEnv(u))
	if err != nil {
		e.logger.Warn("weight expression failed", "unit", u.Name, "error", err)
		return 0
	}

	var w float64
	switch v := out.(type) {
	case float64:
		w = v
	case int:
		w = float64(v)
	case int64:
		w = float64(v)
	case bool:
		if v {
			w = 1
		}
	default:
		e.logger.Warn("weight expression returned a non-number", "unit", u.Name, "type", fmt.Sprintf("%T", out))
		return 0
	}
	if w < 0 {
		return 0
	}
	return w
}

// Rank aggregates presence per faction and orders it by weight, then
// strength, then faction. Neutral and dead units do not count.
func (e *Engine) Rank(units []core.Unit, injected map[core.Faction]float64) []Presence {
	byFaction := make(map[core.Faction]*Presence)
	get := func(f core.Faction) *Presence {
		p, ok := byFaction[f]
		if !ok {
			p = &Presence{Faction: f}
			byFaction[f] = p
		}
		return p
	}

	for _, u := range units {
		if !u.Alive() || u.Faction == core.FactionNeutral {
			continue
		}
		p := get(u.Faction)
		p.Weight += e.Weight(u)
		p.Strength += u.Strength
	}
	for f, w := range injected {
		if f == core.FactionNeutral || w <= 0 {
			continue
		}
		get(f).Weight += w
	}

	ranked := make([]Presence, 0, len(byFaction))
	for _, p := range byFaction {
		ranked = append(ranked, *p)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if a.Strength != b.Strength {
			return a.Strength > b.Strength
		}
		return a.Faction < b.Faction
	})
	return ranked
}

// contesting picks the faction that controls the zone this tick, if any.
func (e *Engine) contesting(owner core.Faction, ranked []Presence) (core.Faction, bool) {
	leader := ranked[0]
	var runner Presence
	if len(ranked) > 1 {
		runner = ranked[1]
	}

	if e.cfg.Margin > 0 {
		if leader.Weight >= runner.Weight+e.cfg.Margin {
			return leader.Faction, true
		}
		return core.FactionNeutral, false
	}

	switch {
	case leader.Weight > runner.Weight:
		return leader.Faction, true
	case leader.Strength > runner.Strength:
		return leader.Faction, true
	case owner != core.FactionNeutral:
		return owner, true
	default:
		return core.FactionNeutral, false
	}
}

// Evaluate computes the zone's next ownership state from the units inside
// it. The zone is not modified. Any tick the contesting faction does not win
// breaks its streak; progress only freezes on empty ticks. An owned zone
// flips once progress is spent and the streak reaches CaptureTicks. Neutral
// zones have no holder to displace and fall on the first contesting tick.
func (e *Engine) Evaluate(z *core.Zone, units []core.Unit, injected map[core.Faction]float64) core.OwnershipDelta {
	d := core.OwnershipDelta{
		Zone:             z.ID,
		PreviousOwner:    z.Owner,
		Owner:            z.Owner,
		PreviousProgress: z.Progress,
		Progress:         z.Progress,
	}

	ranked := e.Rank(units, injected)
	if len(ranked) == 0 || ranked[0].Weight <= 0 {
		d.Frozen = true
		return d
	}

	faction, ok := e.contesting(z.Owner, ranked)
	if !ok {
		d.Contested = true
		return d
	}
	d.Contesting = faction

	if faction == z.Owner {
		d.Progress = core.ProgressMax
		return d
	}

	d.Capturing = true
	d.Streak = 1
	if z.StreakFaction == faction {
		d.Streak = z.Streak + 1
	}
	progress := math.Max(0, z.Progress-e.cfg.DecayRate)
	if progress == 0 && (z.Owner == core.FactionNeutral || d.Streak >= e.captureTicks) {
		d.Owner = faction
		d.Progress = e.cfg.MidValue
		d.Flipped = true
		d.Streak = 0
		return d
	}
	d.Progress = progress
	return d
}

// Apply writes a delta back to its zone and emits the capture event.
func (e *Engine) Apply(tc *core.TickContext, d core.OwnershipDelta) {
	z := e.registry.Zone(d.Zone)
	if z == nil {
		return
	}
	z.Owner = d.Owner
	z.Progress = d.Progress
	z.Streak = d.Streak
	z.StreakFaction = core.FactionNeutral
	if d.Streak > 0 {
		z.StreakFaction = d.Contesting
	}
	if !d.Flipped {
		return
	}

	z.Threatened = false
	z.LastThreatTick = 0
	e.logger.Info("zone captured", "tick", tc.Tick, "zone", z.Name, "faction", d.Owner.String(), "previous", d.PreviousOwner.String())
	tc.Emit(core.Event{
		Kind:     core.EventZoneCaptured,
		Zone:     z.ID,
		Faction:  d.Owner,
		Previous: d.PreviousOwner,
	})
}

// Run evaluates and applies every zone in ID order, then updates threat
// flags. injected holds RequestCapture weight accepted this tick.
func (e *Engine) Run(tc *core.TickContext, w *snapshot.World, injected map[core.ZoneID]map[core.Faction]float64) []core.OwnershipDelta {
	zones := e.registry.Zones()
	deltas := make([]core.OwnershipDelta, 0, len(zones))
	for _, z := range zones {
		d := e.Evaluate(z, w.InZone(z.ID), injected[z.ID])
		e.Apply(tc, d)
		deltas = append(deltas, d)
	}
	e.updateThreat(tc, w)
	return deltas
}
