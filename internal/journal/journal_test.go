package journal

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fowlengine/missioncore/internal/config"
	"github.com/fowlengine/missioncore/internal/engine"
	"github.com/fowlengine/missioncore/internal/mission"
	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/fowlengine/missioncore/pkg/hostapi"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const layout = `
name: Journal Test
zones:
  - name: Depot
    owner: blue
    circle: {x: 0, y: 0, radius: 500}
    productionRate: 5
    storage: 50
    storageCap: 200
    reinforcement: {template: squad, cost: 10, everyTicks: 3, maxAlive: 2}
  - name: Outpost
    owner: red
    circle: {x: 10000, y: 0, radius: 500}
    storage: 20
    storageCap: 100
routes:
  - from: Depot
    to: Outpost
    capacity: 10
`

func engineConfig() engine.Config {
	return engine.Config{
		Ownership: config.OwnershipConfig{Margin: 1, DecayRate: 25, MidValue: 50},
		Logistics: config.LogisticsConfig{InterdictionTicks: 1, MinStrengthMultiplier: 0.25, Reinforcements: true},
		FireSupport: config.FireSupportConfig{
			AmmoPerRound: 1, DefaultRounds: 4, MaxRounds: 12,
			FireDelayTicks: 2, TimeOfFlightTicks: 3,
			MinRange: 500, MaxRange: 20000, MaxMissionsPerZone: 4,
		},
		Victory: config.VictoryConfig{MapOwnedFraction: 1},
	}
}

func newEngine(t *testing.T, session core.Session, opts ...engine.Option) (*engine.Engine, *hostapi.Bridge) {
	t.Helper()
	l, err := mission.ParseLayout([]byte(layout))
	require.NoError(t, err)
	reg, err := l.Build()
	require.NoError(t, err)
	bridge := hostapi.NewBridge()
	e, err := engine.New(session, reg, bridge, engineConfig(), opts...)
	require.NoError(t, err)
	return e, bridge
}

// record plays a short session with captures, resupply and a fire mission
// into a journal.
func record(t *testing.T, path string) string {
	t.Helper()
	session := core.Session{ID: "journal-test", MissionName: "Journal Test", Layout: "layout.yaml"}
	w, err := Create(path, session)
	require.NoError(t, err)

	e, b := newEngine(t, session, engine.WithJournal(w))
	units := []hostapi.Unit{
		{Name: "gun", Faction: "blue", Role: "artillery", Position: core.Position{}, Strength: 1},
		{Name: "eyes", Faction: "blue", Role: "jtac", Position: core.Position{X: 5000}, Strength: 1},
		{Name: "r1", Faction: "blue", Role: "infantry", Position: core.Position{X: 10000}, Strength: 1},
		{Name: "r2", Faction: "blue", Role: "infantry", Position: core.Position{X: 10050}, Strength: 1},
	}

	var last *core.TickReport
	for tick := core.Tick(1); tick <= 12; tick++ {
		if tick == 2 {
			eyes, ok := e.Units().Lookup("eyes")
			require.True(t, ok)
			_, err := e.Submit(core.SubmitDesignation{Requester: eyes, Target: &core.Position{X: 6000}, TTL: 30})
			require.NoError(t, err)
			_, err = e.Submit(core.RequestResupply{Route: 1, Amount: 5})
			require.NoError(t, err)
			_, err = e.Submit(core.RequestCapture{Zone: 9, Faction: core.FactionBlue, Weight: 1})
			require.NoError(t, err)
		}
		b.Push(hostapi.Snapshot{Tick: tick, Units: units})
		last, err = e.Tick(context.Background())
		require.NoError(t, err)
		b.Drain()
	}
	require.NotNil(t, last)
	require.NoError(t, w.Close())
	return session.ID
}

func TestReplayReproducesDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl.zst")
	id := record(t, path)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, id, r.Session().ID)
	assert.Equal(t, "layout.yaml", r.Session().Layout)

	e, _ := newEngine(t, r.Session())
	res, err := Replay(context.Background(), r, e)
	require.NoError(t, err)
	assert.Equal(t, 12, res.Ticks)
	assert.Equal(t, 3, res.Commands)
	assert.Positive(t, res.Events)
	assert.True(t, res.Match(), "digest %s, recorded %s", res.Digest, res.Recorded)
}

func TestJournalEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.jsonl.zst")
	record(t, path)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	counts := make(map[EntryType]int)
	var last Entry
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		counts[e.Type]++
		last = e
	}
	assert.Equal(t, 3, counts[EntryCommand])
	assert.Equal(t, 12, counts[EntrySnapshot])
	assert.Equal(t, 12, counts[EntryEvents])
	assert.Equal(t, EntryDigest, last.Type)
	assert.Len(t, last.Digest, 16)
}

func TestReplayDetectsDivergence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl.zst")
	w, err := Create(path, core.Session{ID: "tampered"})
	require.NoError(t, err)
	require.NoError(t, w.RecordSnapshot(hostapi.Snapshot{Tick: 1}))
	require.NoError(t, w.RecordEvents([]core.Event{{Tick: 1, Kind: core.EventVictory, Faction: core.FactionRed}}))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	e, _ := newEngine(t, r.Session())
	_, err = Replay(context.Background(), r, e)
	assert.ErrorIs(t, err, ErrDiverged)
}

func TestReplayDetectsTicketMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl.zst")
	w, err := Create(path, core.Session{ID: "tickets"})
	require.NoError(t, err)
	require.NoError(t, w.RecordCommand(7, core.RequestResupply{Route: 1, Amount: 1}))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	e, _ := newEngine(t, r.Session())
	_, err = Replay(context.Background(), r, e)
	assert.ErrorIs(t, err, ErrDiverged)
}

func TestOpenRequiresSessionHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "headless.jsonl.zst")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = enc.Write([]byte(`{"type":"snapshot","tick":1}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = Open(filepath.Join(t.TempDir(), "missing.jsonl.zst"))
	assert.Error(t, err)
}

func TestWriterRejectsAfterClose(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "j.jsonl.zst"), core.Session{ID: "x"})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.RecordSnapshot(hostapi.Snapshot{Tick: 1}), os.ErrClosed)
}

func TestDigestIsOrderSensitive(t *testing.T) {
	a := core.Event{Tick: 1, Kind: core.EventZoneCaptured, Zone: 1}
	b := core.Event{Tick: 1, Kind: core.EventZoneCaptured, Zone: 2}

	d1 := NewDigest()
	require.NoError(t, d1.Add([]core.Event{a, b}))
	d2 := NewDigest()
	require.NoError(t, d2.Add([]core.Event{b, a}))
	d3 := NewDigest()
	require.NoError(t, d3.Add([]core.Event{a}))
	require.NoError(t, d3.Add([]core.Event{b}))

	assert.NotEqual(t, d1.String(), d2.String())
	assert.Equal(t, d1.String(), d3.String())
	assert.Equal(t, 2, d3.Count())
}
