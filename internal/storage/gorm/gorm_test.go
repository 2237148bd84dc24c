package gormstorage

import (
	"testing"
	"time"

	"github.com/fowlengine/missioncore/internal/database"
	"github.com/fowlengine/missioncore/internal/model"
	"github.com/fowlengine/missioncore/internal/storage"
	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

// newTestBackend creates a Backend with no DB (queue-only mode for unit testing).
func newTestBackend() *Backend {
	return New(Dependencies{FlushInterval: time.Hour})
}

func newSQLiteBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.OpenSQLite("")
	require.NoError(t, err)
	b := New(Dependencies{DB: db, FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func testSession() *core.Session {
	return &core.Session{ID: "gorm-1", MissionName: "Op Gorm", Layout: "gorm.yaml", StartTime: time.Now()}
}

func TestInitClose(t *testing.T) {
	b := newTestBackend()
	require.NoError(t, b.Init())
	require.NotNil(t, b.queues)
	require.NotNil(t, b.stopChan)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

func TestCloseWithoutInit(t *testing.T) {
	assert.NoError(t, newTestBackend().Close())
}

func TestRecord_QueuesToInternalQueues(t *testing.T) {
	b := newTestBackend()
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.RecordTick(&core.TickReport{Tick: 3}))
	require.NoError(t, b.RecordZoneStates(3, []core.ZoneView{{ID: 1}, {ID: 2}}))
	require.NoError(t, b.RecordEvents([]core.Event{{Tick: 3, Kind: core.EventZoneCaptured}}))

	assert.Equal(t, model.WriteQueueLengths{Ticks: 1, ZoneStates: 2, Events: 1}, b.QueueLengths())
	assert.Equal(t, uint64(0), b.Dropped())
}

func TestSessionLifecycle_NoDB_IsNoOp(t *testing.T) {
	b := newTestBackend()
	require.NoError(t, b.StartSession(testSession()))
	assert.Equal(t, uint(0), b.SessionRowID())
	assert.NoError(t, b.EndSession(10, core.FactionBlue))
}

func TestFlushWritesRows(t *testing.T) {
	b := newSQLiteBackend(t)
	require.NoError(t, b.StartSession(testSession()))
	id := b.SessionRowID()
	require.NotZero(t, id)

	require.NoError(t, b.RecordTick(&core.TickReport{Tick: 1, Units: 5, Flow: core.FlowResult{Produced: 3}}))
	require.NoError(t, b.RecordZoneStates(1, []core.ZoneView{
		{ID: 1, Name: "Depot", Owner: core.FactionBlue, Progress: 100},
		{ID: 2, Name: "Outpost", Owner: core.FactionRed, Progress: 40},
	}))
	require.NoError(t, b.RecordEvents([]core.Event{
		{Tick: 1, Kind: core.EventZoneThreatened, Zone: 2},
		{Tick: 1, Kind: core.EventZoneCaptured, Zone: 2, Faction: core.FactionBlue, Previous: core.FactionRed},
	}))
	b.Flush()

	db := b.DB()
	var tick model.TickRecord
	require.NoError(t, db.Where("session_id = ?", id).First(&tick).Error)
	assert.Equal(t, 5, tick.Units)
	assert.InDelta(t, 3.0, tick.Flow.Produced, 1e-9)

	var zones []model.ZoneState
	require.NoError(t, db.Where("session_id = ?", id).Order("zone_id").Find(&zones).Error)
	require.Len(t, zones, 2)
	assert.Equal(t, "red", zones[1].Owner)

	var events []model.Event
	require.NoError(t, db.Where("session_id = ?", id).Order("tick, seq").Find(&events).Error)
	require.Len(t, events, 2)
	assert.Equal(t, "zone_threatened", events[0].Kind)
	assert.Equal(t, 1, events[1].Seq)

	assert.Equal(t, model.WriteQueueLengths{}, b.QueueLengths())
	assert.Positive(t, b.GetLastDBWriteDuration())
}

func TestFlushWaitsForSession(t *testing.T) {
	b := newSQLiteBackend(t)
	require.NoError(t, b.RecordTick(&core.TickReport{Tick: 1}))
	b.Flush()
	assert.Equal(t, uint16(1), b.QueueLengths().Ticks)

	require.NoError(t, b.StartSession(testSession()))
	b.Flush()
	assert.Equal(t, uint16(0), b.QueueLengths().Ticks)
}

func TestEndSessionClosesRow(t *testing.T) {
	b := newSQLiteBackend(t)
	require.NoError(t, b.StartSession(testSession()))
	id := b.SessionRowID()
	require.NoError(t, b.RecordEvents([]core.Event{{Tick: 7, Kind: core.EventVictory, Faction: core.FactionRed}}))

	require.NoError(t, b.EndSession(7, core.FactionRed))
	assert.Equal(t, uint(0), b.SessionRowID())

	var s model.Session
	require.NoError(t, b.DB().First(&s, id).Error)
	assert.True(t, s.EndTime.Valid)
	assert.Equal(t, uint64(7), s.LastTick)
	assert.Equal(t, "red", s.Victor)

	var count int64
	require.NoError(t, b.DB().Model(&model.Event{}).Where("session_id = ?", id).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCloseFlushesPendingRows(t *testing.T) {
	db, err := database.OpenSQLite("")
	require.NoError(t, err)
	b := New(Dependencies{DB: db, FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.RecordTick(&core.TickReport{Tick: 1}))
	require.NoError(t, b.Close())

	var count int64
	require.NoError(t, db.Model(&model.TickRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
