package ownership

import (
	"testing"

	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventsOf(tc *core.TickContext, kind core.EventKind) []core.Event {
	var out []core.Event
	for _, e := range tc.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestThreatRaisedAndCleared(t *testing.T) {
	e, reg, id := newEngine(t, testConfig(), core.FactionBlue)

	// armor 1500m outside the 100m circle is inside its 2000m threat ring
	armor := core.Unit{ID: 1, Faction: core.FactionRed, Role: core.RoleArmor, Strength: 1, Position: core.Position{X: 1600}}

	tc := core.NewTickContext("s", 1)
	e.Run(tc, world(1, reg, armor), nil)
	threatened := eventsOf(tc, core.EventZoneThreatened)
	require.Len(t, threatened, 1)
	assert.Equal(t, core.UnitID(1), threatened[0].Unit)
	assert.True(t, reg.Zone(id).Threatened)

	// still there, no second event
	tc = core.NewTickContext("s", 2)
	e.Run(tc, world(2, reg, armor), nil)
	assert.Empty(t, eventsOf(tc, core.EventZoneThreatened))
	assert.Equal(t, core.Tick(2), reg.Zone(id).LastThreatTick)

	for tick := core.Tick(3); tick <= 4; tick++ {
		tc = core.NewTickContext("s", tick)
		e.Run(tc, world(tick, reg), nil)
		assert.Empty(t, eventsOf(tc, core.EventZoneCleared))
		assert.True(t, reg.Zone(id).Threatened)
	}

	tc = core.NewTickContext("s", 5)
	e.Run(tc, world(5, reg), nil)
	require.Len(t, eventsOf(tc, core.EventZoneCleared), 1)
	assert.False(t, reg.Zone(id).Threatened)
}

func TestThreatIgnoresFriendlyAndDisabledRoles(t *testing.T) {
	e, reg, id := newEngine(t, testConfig(), core.FactionBlue)

	tc := core.NewTickContext("s", 1)
	e.Run(tc, world(1, reg,
		core.Unit{ID: 1, Faction: core.FactionBlue, Role: core.RoleArmor, Strength: 1, Position: core.Position{X: 200}},
		core.Unit{ID: 2, Faction: core.FactionRed, Role: core.RoleLogistics, Strength: 1, Position: core.Position{X: 150}},
		core.Unit{ID: 3, Faction: core.FactionRed, Role: core.RoleInfantry, Strength: 1, Position: core.Position{X: 700}},
		core.Unit{ID: 4, Faction: core.FactionNeutral, Role: core.RoleArmor, Strength: 1, Position: core.Position{X: 200}},
		core.Unit{ID: 5, Faction: core.FactionRed, Role: core.RoleArmor, Strength: 0, Position: core.Position{X: 200}},
	), nil)

	assert.Empty(t, eventsOf(tc, core.EventZoneThreatened))
	assert.False(t, reg.Zone(id).Threatened)
}

func TestNeutralZonesAreNeverThreatened(t *testing.T) {
	e, reg, id := newEngine(t, testConfig(), core.FactionNeutral)

	tc := core.NewTickContext("s", 1)
	e.Run(tc, world(1, reg, core.Unit{ID: 1, Faction: core.FactionRed, Role: core.RoleArmor, Strength: 1, Position: core.Position{X: 500}}), nil)
	assert.Empty(t, eventsOf(tc, core.EventZoneThreatened))
	assert.False(t, reg.Zone(id).Threatened)
}
