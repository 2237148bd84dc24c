package convert

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	s := core.Session{ID: "s-1", MissionName: "Op Anvil", Layout: "anvil.yaml", StartTime: start, Version: "1.2.0"}

	m := SessionToModel(s)
	assert.Equal(t, "s-1", m.SessionID)
	assert.False(t, m.EndTime.Valid)
	assert.Equal(t, s, SessionToCore(m))
}

func TestTickToModel(t *testing.T) {
	at := time.Now()
	r := &core.TickReport{
		Tick:  42,
		Units: 12,
		Results: []core.CommandResult{
			{Ticket: 1, Kind: core.CmdRequestCapture},
			{Ticket: 2, Kind: core.CmdAdjustFire, Err: &core.CommandError{Kind: core.KindValidation, Command: core.CmdAdjustFire, Reason: "unknown mission"}},
		},
		Ownership:  []core.OwnershipDelta{{Zone: 1, Flipped: true}, {Zone: 2}},
		Flow:       core.FlowResult{Produced: 10, Delivered: 4, Interdicted: []core.RouteID{3, 5}},
		Events:     []core.Event{{Kind: core.EventZoneCaptured}, {Kind: core.EventRouteInterdicted}},
		DurationUS: 850,
	}

	rec := TickToModel(r, at)
	assert.Equal(t, uint64(42), rec.Tick)
	assert.Equal(t, at, rec.Time)
	assert.Equal(t, 12, rec.Units)
	assert.Equal(t, 2, rec.Commands)
	assert.Equal(t, 1, rec.Rejected)
	assert.Equal(t, 1, rec.Flips)
	assert.Equal(t, 2, rec.EventCount)
	assert.Equal(t, int64(850), rec.DurationUS)
	assert.InDelta(t, 10.0, rec.Flow.Produced, 1e-9)

	var interdicted []core.RouteID
	require.NoError(t, json.Unmarshal(rec.Interdicted, &interdicted))
	assert.Equal(t, []core.RouteID{3, 5}, interdicted)
}

func TestTickToModelWithoutInterdiction(t *testing.T) {
	rec := TickToModel(&core.TickReport{Tick: 1}, time.Now())
	assert.Nil(t, rec.Interdicted)
}

func TestZoneRoundTrip(t *testing.T) {
	z := core.ZoneView{
		ID: 3, Name: "Hill 402", Owner: core.FactionRed, Progress: 64,
		Threatened: true, Storage: 30, StorageCap: 100, Reserved: 8,
		SupplyPercent: 30, StrengthMultiplier: 0.8,
		Center:   core.Position{X: 1200, Y: 3400},
		Location: &core.LatLon{Lat: 42.1, Lon: 19.2},
	}

	m := ZoneToModel(7, z)
	assert.Equal(t, uint64(7), m.Tick)
	assert.Equal(t, "red", m.Owner)
	assert.True(t, m.Latitude.Valid)
	assert.Equal(t, z, ZoneToCore(m))
}

func TestZoneWithoutLocation(t *testing.T) {
	m := ZoneToModel(1, core.ZoneView{ID: 1, Owner: core.FactionNeutral})
	assert.False(t, m.Latitude.Valid)
	assert.Nil(t, ZoneToCore(m).Location)
	assert.Equal(t, core.FactionNeutral, ZoneToCore(m).Owner)
}

func TestEventRoundTrip(t *testing.T) {
	e := core.Event{
		Tick: 9, Kind: core.EventZoneCaptured, Zone: 2,
		Faction: core.FactionBlue, Previous: core.FactionRed,
	}
	m := EventToModel(e, 3)
	assert.Equal(t, 3, m.Seq)
	assert.Equal(t, "zone_captured", m.Kind)
	assert.Equal(t, "blue", m.Faction)
	assert.Equal(t, "red", m.Previous)
	assert.Equal(t, e, EventToCore(m))

	r := core.Event{Tick: 4, Kind: core.EventResupplyAborted, Route: 6, Amount: 2.5, Reason: "route interdicted"}
	m = EventToModel(r, 0)
	assert.Empty(t, m.Faction)
	assert.Equal(t, r, EventToCore(m))
}
