package logistics

import (
	"errors"
	"testing"

	"github.com/fowlengine/missioncore/internal/config"
	"github.com/fowlengine/missioncore/internal/mission"
	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.LogisticsConfig {
	return config.LogisticsConfig{
		InterdictionTicks:     1,
		DecayRate:             1,
		MinStrengthMultiplier: 0.25,
		Reinforcements:        true,
	}
}

type zoneSpec struct {
	name    string
	owner   core.Faction
	rate    float64
	storage float64
	cap     float64
}

func addZone(t *testing.T, reg *mission.Registry, i int, s zoneSpec) core.ZoneID {
	t.Helper()
	id, err := reg.AddZone(core.Zone{
		Name:           s.name,
		Owner:          s.owner,
		Progress:       core.ProgressMax,
		ProductionRate: s.rate,
		Storage:        s.storage,
		StorageCap:     s.cap,
		Boundary:       core.Boundary{Kind: core.BoundaryCircle, Center: core.Position{X: float64(i) * 10000}, Radius: 500},
	})
	require.NoError(t, err)
	return id
}

func addRoute(t *testing.T, reg *mission.Registry, from, to core.ZoneID, capacity float64) core.RouteID {
	t.Helper()
	id, err := reg.AddRoute(core.SupplyRoute{From: from, To: to, Capacity: capacity})
	require.NoError(t, err)
	return id
}

// depot -> forward, both blue
func twoZones(t *testing.T, depot, forward zoneSpec, capacity float64) (*Graph, *mission.Registry, core.ZoneID, core.ZoneID, core.RouteID) {
	t.Helper()
	reg := mission.NewRegistry()
	a := addZone(t, reg, 0, depot)
	b := addZone(t, reg, 1, forward)
	r := addRoute(t, reg, a, b, capacity)
	return NewGraph(testConfig(), reg, nil), reg, a, b, r
}

func kinds(tc *core.TickContext, kind core.EventKind) []core.Event {
	var out []core.Event
	for _, e := range tc.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestCapacityScenarioTwoOrders(t *testing.T) {
	g, reg, _, _, r := twoZones(t,
		zoneSpec{name: "Depot", owner: core.FactionBlue, storage: 50, cap: 100},
		zoneSpec{name: "Forward", owner: core.FactionBlue, cap: 100},
		10)
	tc := core.NewTickContext("s", 1)
	g.BeginTick(tc, nil)

	require.Nil(t, g.ScheduleResupply(core.RequestResupply{Route: r, Amount: 8}))
	assert.Equal(t, 8.0, reg.Route(r).Flow)

	err := g.ScheduleResupply(core.RequestResupply{Route: r, Amount: 8})
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, core.KindResourceExhausted))
	assert.Equal(t, 8.0, reg.Route(r).Flow)
	assert.Len(t, g.Orders(), 1)
}

func TestScheduleResupplyValidation(t *testing.T) {
	tests := []struct {
		name    string
		depot   zoneSpec
		forward zoneSpec
		setup   func(g *Graph, reg *mission.Registry, r core.RouteID)
		amount  float64
		route   core.RouteID
		kind    core.ErrorKind
	}{
		{
			name:    "unknown route",
			depot:   zoneSpec{name: "A", owner: core.FactionBlue, storage: 10, cap: 10},
			forward: zoneSpec{name: "B", owner: core.FactionBlue, cap: 10},
			route:   99,
			amount:  1,
			kind:    core.KindValidation,
		},
		{
			name:    "endpoints held by different factions",
			depot:   zoneSpec{name: "A", owner: core.FactionBlue, storage: 10, cap: 10},
			forward: zoneSpec{name: "B", owner: core.FactionRed, cap: 10},
			amount:  1,
			kind:    core.KindValidation,
		},
		{
			name:    "neutral endpoints",
			depot:   zoneSpec{name: "A", storage: 10, cap: 10},
			forward: zoneSpec{name: "B", cap: 10},
			amount:  1,
			kind:    core.KindValidation,
		},
		{
			name:    "interdicted route",
			depot:   zoneSpec{name: "A", owner: core.FactionBlue, storage: 10, cap: 10},
			forward: zoneSpec{name: "B", owner: core.FactionBlue, cap: 10},
			setup: func(g *Graph, reg *mission.Registry, r core.RouteID) {
				reg.Route(r).Interdicted = true
			},
			amount: 1,
			kind:   core.KindResourceExhausted,
		},
		{
			name:    "source short of unreserved stock",
			depot:   zoneSpec{name: "A", owner: core.FactionBlue, storage: 10, cap: 10},
			forward: zoneSpec{name: "B", owner: core.FactionBlue, cap: 10},
			setup: func(g *Graph, reg *mission.Registry, r core.RouteID) {
				reg.Zone(reg.Route(r).From).Reserved = 8
			},
			amount: 5,
			kind:   core.KindResourceExhausted,
		},
		{
			name:    "destination full",
			depot:   zoneSpec{name: "A", owner: core.FactionBlue, storage: 10, cap: 10},
			forward: zoneSpec{name: "B", owner: core.FactionBlue, storage: 8, cap: 10},
			amount:  5,
			kind:    core.KindResourceExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, reg, _, _, r := twoZones(t, tt.depot, tt.forward, 100)
			g.BeginTick(core.NewTickContext("s", 1), nil)
			if tt.setup != nil {
				tt.setup(g, reg, r)
			}
			route := r
			if tt.route != 0 {
				route = tt.route
			}
			err := g.ScheduleResupply(core.RequestResupply{Route: route, Amount: tt.amount})
			require.NotNil(t, err)
			assert.Equal(t, tt.kind, err.Kind)
			assert.Empty(t, g.Orders())
		})
	}
}

func TestScheduleCountsEarlierOrders(t *testing.T) {
	reg := mission.NewRegistry()
	a := addZone(t, reg, 0, zoneSpec{name: "A", owner: core.FactionBlue, storage: 10, cap: 10})
	b := addZone(t, reg, 1, zoneSpec{name: "B", owner: core.FactionBlue, cap: 100})
	c := addZone(t, reg, 2, zoneSpec{name: "C", owner: core.FactionBlue, cap: 100})
	ab := addRoute(t, reg, a, b, 100)
	ac := addRoute(t, reg, a, c, 100)
	g := NewGraph(testConfig(), reg, nil)
	g.BeginTick(core.NewTickContext("s", 1), nil)

	require.Nil(t, g.ScheduleResupply(core.RequestResupply{Route: ab, Amount: 7}))
	err := g.ScheduleResupply(core.RequestResupply{Route: ac, Amount: 7})
	require.NotNil(t, err)
	assert.Equal(t, core.KindResourceExhausted, err.Kind)
	assert.Nil(t, g.ScheduleResupply(core.RequestResupply{Route: ac, Amount: 3}))
}

func TestRecomputeDeliversOrders(t *testing.T) {
	g, reg, a, b, r := twoZones(t,
		zoneSpec{name: "Depot", owner: core.FactionBlue, storage: 50, cap: 100},
		zoneSpec{name: "Forward", owner: core.FactionBlue, cap: 100},
		10)
	g.cfg.DecayRate = 0
	tc := core.NewTickContext("s", 1)
	g.BeginTick(tc, nil)
	require.Nil(t, g.ScheduleResupply(core.RequestResupply{Route: r, Amount: 8}))

	res := g.Recompute(tc, []core.OwnershipDelta{{Zone: a, Owner: core.FactionBlue}, {Zone: b, Owner: core.FactionBlue}})

	assert.Equal(t, 42.0, reg.Zone(a).Storage)
	assert.Equal(t, 8.0, reg.Zone(b).Storage)
	assert.Equal(t, 8.0, res.Ordered)
	delivered := kinds(tc, core.EventResupplyDelivered)
	require.Len(t, delivered, 1)
	assert.Equal(t, 8.0, delivered[0].Amount)
	assert.Equal(t, b, delivered[0].Zone)
}

func TestCaptureInterdictsAndAbortsOrders(t *testing.T) {
	g, reg, a, b, r := twoZones(t,
		zoneSpec{name: "Depot", owner: core.FactionBlue, storage: 50, cap: 100},
		zoneSpec{name: "Forward", owner: core.FactionBlue, cap: 100},
		10)
	g.cfg.DecayRate = 0

	tc := core.NewTickContext("s", 1)
	g.BeginTick(tc, nil)
	require.Nil(t, g.ScheduleResupply(core.RequestResupply{Route: r, Amount: 8}))

	res := g.Recompute(tc, []core.OwnershipDelta{
		{Zone: a, Owner: core.FactionBlue},
		{Zone: b, Owner: core.FactionBlue, Capturing: true, Contesting: core.FactionRed},
	})

	assert.Equal(t, []core.RouteID{r}, res.Interdicted)
	assert.Len(t, kinds(tc, core.EventRouteInterdicted), 1)
	aborted := kinds(tc, core.EventResupplyAborted)
	require.Len(t, aborted, 1)
	assert.Equal(t, 8.0, aborted[0].Amount)
	assert.Equal(t, 0.0, reg.Route(r).Flow)
	assert.Equal(t, 50.0, reg.Zone(a).Storage)
	assert.Equal(t, 0.0, reg.Zone(b).Storage)

	// interdicted for one further tick
	tc = core.NewTickContext("s", 2)
	g.BeginTick(tc, nil)
	assert.True(t, reg.Route(r).Interdicted)
	err := g.ScheduleResupply(core.RequestResupply{Route: r, Amount: 1})
	require.NotNil(t, err)
	assert.Equal(t, core.KindResourceExhausted, err.Kind)
	g.Recompute(tc, nil)

	tc = core.NewTickContext("s", 3)
	g.BeginTick(tc, nil)
	assert.False(t, reg.Route(r).Interdicted)
	assert.Nil(t, g.ScheduleResupply(core.RequestResupply{Route: r, Amount: 1}))
}

func TestBlockedRoutesAreInterdicted(t *testing.T) {
	g, reg, _, _, r := twoZones(t,
		zoneSpec{name: "Depot", owner: core.FactionBlue, storage: 50, cap: 100},
		zoneSpec{name: "Forward", owner: core.FactionBlue, cap: 100},
		10)

	tc := core.NewTickContext("s", 1)
	g.BeginTick(tc, map[core.RouteID]bool{r: true})
	assert.True(t, reg.Route(r).Interdicted)
	assert.True(t, reg.Route(r).Blocked)
	require.Len(t, kinds(tc, core.EventRouteInterdicted), 1)
	assert.Equal(t, "blocked", kinds(tc, core.EventRouteInterdicted)[0].Reason)

	// still blocked: no second event
	tc = core.NewTickContext("s", 2)
	g.BeginTick(tc, map[core.RouteID]bool{r: true})
	assert.Empty(t, kinds(tc, core.EventRouteInterdicted))
	assert.True(t, reg.Route(r).Interdicted)
}

func TestProductionClampsToCap(t *testing.T) {
	g, reg, a, _, _ := twoZones(t,
		zoneSpec{name: "Depot", owner: core.FactionBlue, rate: 10, storage: 95, cap: 100},
		zoneSpec{name: "Forward", owner: core.FactionRed, cap: 100},
		10)
	tc := core.NewTickContext("s", 1)
	g.BeginTick(tc, nil)
	res := g.Recompute(tc, nil)

	assert.Equal(t, 100.0, reg.Zone(a).Storage)
	assert.Equal(t, 5.0, res.Produced)
}

func TestPushEqualisesFillRatio(t *testing.T) {
	g, reg, a, b, r := twoZones(t,
		zoneSpec{name: "Depot", owner: core.FactionBlue, rate: 10, storage: 80, cap: 100},
		zoneSpec{name: "Forward", owner: core.FactionBlue, cap: 50},
		100)
	tc := core.NewTickContext("s", 1)
	g.BeginTick(tc, nil)
	res := g.Recompute(tc, nil)

	assert.InDelta(t, 60.0, reg.Zone(a).Storage, 1e-9)
	assert.InDelta(t, 30.0, reg.Zone(b).Storage, 1e-9)
	assert.InDelta(t, 30.0, reg.Route(r).Flow, 1e-9)
	assert.InDelta(t, 30.0, res.Delivered, 1e-9)
	assert.Equal(t, 0.0, res.Decayed)
}

func TestPushRespectsCapacityAndReservations(t *testing.T) {
	g, reg, a, b, r := twoZones(t,
		zoneSpec{name: "Depot", owner: core.FactionBlue, rate: 1, storage: 99, cap: 100},
		zoneSpec{name: "Forward", owner: core.FactionBlue, cap: 100},
		10)
	tc := core.NewTickContext("s", 1)
	g.BeginTick(tc, nil)
	g.Recompute(tc, nil)
	assert.Equal(t, 10.0, reg.Route(r).Flow)
	assert.Equal(t, 10.0, reg.Zone(b).Storage)
	assert.Equal(t, 90.0, reg.Zone(a).Storage)

	reg.Zone(a).Reserved = 88
	tc = core.NewTickContext("s", 2)
	g.BeginTick(tc, nil)
	g.Recompute(tc, nil)
	// 91 stored after production, 3 unreserved
	assert.InDelta(t, 3.0, reg.Route(r).Flow, 1e-9)
	assert.InDelta(t, 88.0, reg.Zone(a).Storage, 1e-9)
}

func TestPushFollowsBreadthFirstLayers(t *testing.T) {
	reg := mission.NewRegistry()
	a := addZone(t, reg, 0, zoneSpec{name: "A", owner: core.FactionBlue, rate: 1, storage: 99, cap: 100})
	b := addZone(t, reg, 1, zoneSpec{name: "B", owner: core.FactionBlue, cap: 100})
	c := addZone(t, reg, 2, zoneSpec{name: "C", owner: core.FactionBlue, cap: 100})
	addRoute(t, reg, a, b, 1000)
	addRoute(t, reg, b, c, 1000)
	back := addRoute(t, reg, c, a, 1000)
	g := NewGraph(testConfig(), reg, nil)

	tc := core.NewTickContext("s", 1)
	g.BeginTick(tc, nil)
	g.Recompute(tc, nil)

	// A pushes half to B, then B pushes half of that to C; nothing flows back
	assert.InDelta(t, 50.0, reg.Zone(a).Storage, 1e-9)
	assert.InDelta(t, 25.0, reg.Zone(b).Storage, 1e-9)
	assert.InDelta(t, 25.0, reg.Zone(c).Storage, 1e-9)
	assert.Equal(t, 0.0, reg.Route(back).Flow)
}

func TestConsumptionSetsStrengthMultiplier(t *testing.T) {
	reg := mission.NewRegistry()
	z := addZone(t, reg, 0, zoneSpec{name: "Outpost", owner: core.FactionBlue, rate: -10, storage: 4, cap: 100})
	g := NewGraph(testConfig(), reg, nil)

	tc := core.NewTickContext("s", 1)
	g.BeginTick(tc, nil)
	res := g.Recompute(tc, nil)
	assert.Equal(t, 4.0, res.Consumed)
	assert.Equal(t, 6.0, res.Unmet)
	assert.InDelta(t, 0.4, reg.Zone(z).StrengthMultiplier, 1e-9)

	tc = core.NewTickContext("s", 2)
	g.BeginTick(tc, nil)
	g.Recompute(tc, nil)
	assert.Equal(t, 0.25, reg.Zone(z).StrengthMultiplier)

	reg.Zone(z).Storage = 50
	tc = core.NewTickContext("s", 3)
	g.BeginTick(tc, nil)
	g.Recompute(tc, nil)
	assert.Equal(t, 1.0, reg.Zone(z).StrengthMultiplier)
}

func TestDisconnectedZonesDecay(t *testing.T) {
	reg := mission.NewRegistry()
	cut := addZone(t, reg, 0, zoneSpec{name: "Cut", owner: core.FactionBlue, storage: 5, cap: 100})
	neutral := addZone(t, reg, 1, zoneSpec{name: "Open", storage: 0.5, cap: 100})
	reserved := addZone(t, reg, 2, zoneSpec{name: "Held", owner: core.FactionRed, storage: 5, cap: 100})
	reg.Zone(reserved).Reserved = 4.5
	g := NewGraph(testConfig(), reg, nil)

	tc := core.NewTickContext("s", 1)
	g.BeginTick(tc, nil)
	res := g.Recompute(tc, nil)

	assert.Equal(t, 4.0, reg.Zone(cut).Storage)
	assert.Equal(t, 0.0, reg.Zone(neutral).Storage)
	assert.Equal(t, 4.5, reg.Zone(reserved).Storage)
	assert.Equal(t, 2.0, res.Decayed)
}

func TestSupplyStatus(t *testing.T) {
	reg := mission.NewRegistry()
	addZone(t, reg, 0, zoneSpec{name: "A", owner: core.FactionBlue, storage: 25, cap: 50})
	addZone(t, reg, 1, zoneSpec{name: "B", owner: core.FactionBlue, storage: 25, cap: 50})
	addZone(t, reg, 2, zoneSpec{name: "C", storage: 10, cap: 10})
	g := NewGraph(testConfig(), reg, nil)

	status := g.SupplyStatus()
	assert.Equal(t, core.SupplyStatus{Zones: 2, Storage: 50, Capacity: 100, Percent: 50}, status[core.FactionBlue])
	assert.Equal(t, core.SupplyStatus{}, status[core.FactionRed])
}
