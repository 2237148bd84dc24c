// Package logistics moves supply between zones over the route graph:
// production, explicit resupply orders, automatic push from producers,
// consumption and decay. It also owns the stock ledger that fire missions
// and reinforcements draw from.
package logistics

import (
	"log/slog"
	"math"
	"sort"

	"github.com/fowlengine/missioncore/internal/config"
	"github.com/fowlengine/missioncore/internal/mission"
	"github.com/fowlengine/missioncore/pkg/core"
)

// amounts below this are treated as nothing to move
const epsilon = 1e-9

// Order is a resupply transfer accepted for the current tick.
type Order struct {
	Route  core.RouteID
	Amount float64
}

// Graph recomputes supply once per tick over the registry's zones and routes.
type Graph struct {
	cfg      config.LogisticsConfig
	registry *mission.Registry
	logger   *slog.Logger

	orders     []Order
	pendingOut map[core.ZoneID]float64
	pendingIn  map[core.ZoneID]float64
}

// NewGraph creates a graph over reg.
func NewGraph(cfg config.LogisticsConfig, reg *mission.Registry, logger *slog.Logger) *Graph {
	if cfg.InterdictionTicks < 1 {
		cfg.InterdictionTicks = 1
	}
	if cfg.MinStrengthMultiplier < 0 || cfg.MinStrengthMultiplier > 1 {
		cfg.MinStrengthMultiplier = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		cfg:        cfg,
		registry:   reg,
		logger:     logger,
		pendingOut: make(map[core.ZoneID]float64),
		pendingIn:  make(map[core.ZoneID]float64),
	}
}

// BeginTick clears last tick's flows and orders, counts interdictions down
// and interdicts the routes the host reports as blocked. It runs before any
// command of the tick is applied.
func (g *Graph) BeginTick(tc *core.TickContext, blocked map[core.RouteID]bool) {
	g.orders = g.orders[:0]
	clear(g.pendingOut)
	clear(g.pendingIn)

	for _, r := range g.registry.Routes() {
		r.Flow = 0
		r.Interdicted = r.InterdictTicksLeft > 0
		if r.InterdictTicksLeft > 0 {
			r.InterdictTicksLeft--
		}
		r.Blocked = blocked[r.ID]
		if r.Blocked {
			g.interdict(tc, r, "blocked")
		}
	}
}

// interdict closes a route for this tick and the configured number of
// further ticks.
func (g *Graph) interdict(tc *core.TickContext, r *core.SupplyRoute, reason string) {
	if r.InterdictTicksLeft < g.cfg.InterdictionTicks {
		r.InterdictTicksLeft = g.cfg.InterdictionTicks
	}
	if r.Interdicted {
		return
	}
	r.Interdicted = true
	g.logger.Debug("route interdicted", "tick", tc.Tick, "route", r.Name, "reason", reason)
	tc.Emit(core.Event{Kind: core.EventRouteInterdicted, Route: r.ID, Reason: reason})
}

// ScheduleResupply accepts a transfer for this tick if the route, both ends
// and every order already accepted this tick leave room for it.
func (g *Graph) ScheduleResupply(cmd core.RequestResupply) *core.CommandError {
	kind := cmd.Kind()
	r := g.registry.Route(cmd.Route)
	if r == nil {
		return core.Invalid(kind, "unknown route %d", cmd.Route)
	}
	from, to := g.registry.Zone(r.From), g.registry.Zone(r.To)
	if from.Owner == core.FactionNeutral || from.Owner != to.Owner {
		return core.Invalid(kind, "route %q does not connect zones held by one faction", r.Name)
	}
	if r.Interdicted {
		return core.Exhausted(kind, "route %q is interdicted", r.Name)
	}
	if r.Flow+cmd.Amount > r.Capacity+epsilon {
		return core.Exhausted(kind, "route %q has %v of %v capacity left", r.Name, r.Residual(), r.Capacity)
	}
	if from.Available()-g.pendingOut[from.ID] < cmd.Amount-epsilon {
		return core.Exhausted(kind, "zone %q has %v unreserved supply", from.Name, math.Max(0, from.Available()-g.pendingOut[from.ID]))
	}
	if to.Headroom()-g.pendingIn[to.ID] < cmd.Amount-epsilon {
		return core.Exhausted(kind, "zone %q has room for %v", to.Name, math.Max(0, to.Headroom()-g.pendingIn[to.ID]))
	}

	r.Flow += cmd.Amount
	g.pendingOut[from.ID] += cmd.Amount
	g.pendingIn[to.ID] += cmd.Amount
	g.orders = append(g.orders, Order{Route: r.ID, Amount: cmd.Amount})
	return nil
}

// Orders returns the transfers accepted so far this tick.
func (g *Graph) Orders() []Order {
	return g.orders
}

// Recompute runs the logistics stages for the tick in order: interdiction,
// scheduled orders, production, automatic push, consumption, decay.
func (g *Graph) Recompute(tc *core.TickContext, deltas []core.OwnershipDelta) core.FlowResult {
	var res core.FlowResult

	g.interdictUnsettled(tc, deltas)
	for _, r := range g.registry.Routes() {
		if r.Interdicted {
			res.Interdicted = append(res.Interdicted, r.ID)
		}
	}

	g.deliverOrders(tc, &res)
	g.produce(&res)

	reached := make(map[core.Faction]map[core.ZoneID]bool, len(core.Factions))
	for _, f := range core.Factions {
		reached[f] = g.push(f, &res)
	}

	g.consume(&res)
	g.decay(reached, &res)
	return res
}

func (g *Graph) interdictUnsettled(tc *core.TickContext, deltas []core.OwnershipDelta) {
	for _, d := range deltas {
		var reason string
		switch {
		case d.Flipped:
			reason = "zone_captured"
		case d.Capturing:
			reason = "zone_capturing"
		case d.Contested:
			reason = "zone_contested"
		default:
			continue
		}
		for _, r := range g.registry.Touching(d.Zone) {
			g.interdict(tc, r, reason)
		}
	}
}

func (g *Graph) deliverOrders(tc *core.TickContext, res *core.FlowResult) {
	for _, o := range g.orders {
		r := g.registry.Route(o.Route)
		from, to := g.registry.Zone(r.From), g.registry.Zone(r.To)

		if r.Interdicted {
			r.Flow = math.Max(0, r.Flow-o.Amount)
			tc.Emit(core.Event{Kind: core.EventResupplyAborted, Route: r.ID, Zone: to.ID, Amount: o.Amount, Reason: "route_interdicted"})
			continue
		}

		amount := math.Min(o.Amount, math.Min(from.Available(), to.Headroom()))
		if amount < o.Amount {
			r.Flow = math.Max(0, r.Flow-(o.Amount-amount))
		}
		if amount <= epsilon {
			tc.Emit(core.Event{Kind: core.EventResupplyAborted, Route: r.ID, Zone: to.ID, Amount: o.Amount, Reason: "no_stock"})
			continue
		}
		from.Storage -= amount
		to.Storage += amount
		res.Ordered += amount
		res.Delivered += amount
		tc.Emit(core.Event{Kind: core.EventResupplyDelivered, Route: r.ID, Zone: to.ID, Faction: to.Owner, Amount: amount})
	}
}

func (g *Graph) produce(res *core.FlowResult) {
	for _, z := range g.registry.Zones() {
		if z.Owner == core.FactionNeutral || !z.Producer() {
			continue
		}
		add := math.Min(z.ProductionRate, z.Headroom())
		z.Storage += add
		res.Produced += add
	}
}

// usable reports whether faction f can move supply over r this tick.
func (g *Graph) usable(r *core.SupplyRoute, f core.Faction) bool {
	if r.Interdicted {
		return false
	}
	return g.registry.Zone(r.From).Owner == f && g.registry.Zone(r.To).Owner == f
}

// push spreads a faction's supply outward from its producers, one BFS layer
// at a time, evening out fill ratios across each usable route. It returns
// the zones reachable from a producer.
func (g *Graph) push(f core.Faction, res *core.FlowResult) map[core.ZoneID]bool {
	dist := make(map[core.ZoneID]int)
	var order []core.ZoneID
	for _, z := range g.registry.Zones() {
		if z.Owner == f && z.Producer() {
			dist[z.ID] = 0
			order = append(order, z.ID)
		}
	}
	for i := 0; i < len(order); i++ {
		u := order[i]
		for _, r := range g.registry.Outgoing(u) {
			if !g.usable(r, f) {
				continue
			}
			if _, seen := dist[r.To]; !seen {
				dist[r.To] = dist[u] + 1
				order = append(order, r.To)
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		if dist[order[i]] != dist[order[j]] {
			return dist[order[i]] < dist[order[j]]
		}
		return order[i] < order[j]
	})

	for _, id := range order {
		u := g.registry.Zone(id)
		for _, r := range g.registry.Outgoing(id) {
			if !g.usable(r, f) || dist[r.To] != dist[id]+1 {
				continue
			}
			v := g.registry.Zone(r.To)
			x := equalise(u, v)
			x = math.Min(x, math.Min(r.Residual(), math.Min(u.Available(), v.Headroom())))
			if x <= epsilon {
				continue
			}
			u.Storage -= x
			v.Storage += x
			r.Flow += x
			res.Delivered += x
		}
	}

	reached := make(map[core.ZoneID]bool, len(dist))
	for id := range dist {
		reached[id] = true
	}
	return reached
}

// equalise is the amount that brings u and v to the same fill ratio.
func equalise(u, v *core.Zone) float64 {
	total := u.StorageCap + v.StorageCap
	if total <= 0 {
		return 0
	}
	return (u.Storage*v.StorageCap - v.Storage*u.StorageCap) / total
}

func (g *Graph) consume(res *core.FlowResult) {
	for _, z := range g.registry.Zones() {
		z.StrengthMultiplier = 1
		if z.Owner == core.FactionNeutral || !z.Consumer() {
			continue
		}
		demand := -z.ProductionRate
		met := math.Min(demand, z.Available())
		z.Storage -= met
		res.Consumed += met
		if met < demand {
			res.Unmet += demand - met
			z.StrengthMultiplier = math.Max(g.cfg.MinStrengthMultiplier, met/demand)
		}
	}
}

// decay drains zones cut off from their faction's production. Reserved
// stock is left alone.
func (g *Graph) decay(reached map[core.Faction]map[core.ZoneID]bool, res *core.FlowResult) {
	if g.cfg.DecayRate <= 0 {
		return
	}
	for _, z := range g.registry.Zones() {
		if z.Owner != core.FactionNeutral && (z.Producer() || reached[z.Owner][z.ID]) {
			continue
		}
		amount := math.Min(g.cfg.DecayRate, z.Available())
		if amount <= 0 {
			continue
		}
		z.Storage -= amount
		res.Decayed += amount
	}
}

// SupplyStatus totals storage and capacity per faction.
func (g *Graph) SupplyStatus() map[core.Faction]core.SupplyStatus {
	out := make(map[core.Faction]core.SupplyStatus, len(core.Factions))
	for _, f := range core.Factions {
		out[f] = core.SupplyStatus{}
	}
	for _, z := range g.registry.Zones() {
		if z.Owner == core.FactionNeutral {
			continue
		}
		s := out[z.Owner]
		s.Zones++
		s.Storage += z.Storage
		s.Capacity += z.StorageCap
		if s.Capacity > 0 {
			s.Percent = 100 * s.Storage / s.Capacity
		}
		out[z.Owner] = s
	}
	return out
}
