// Package gormstorage implements storage.Backend on any GORM dialect with
// internal queues and a background writer goroutine. The postgres and
// sqlite backends supply the connection.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fowlengine/missioncore/internal/database"
	"github.com/fowlengine/missioncore/internal/model"
	"github.com/fowlengine/missioncore/internal/model/convert"
	"github.com/fowlengine/missioncore/internal/queue"
	"github.com/fowlengine/missioncore/pkg/core"

	"gorm.io/gorm"
)

const (
	defaultFlushInterval = time.Second
	// rows kept per queue while the database is unreachable
	queueLimit = 500_000
)

// ErrNoSession is returned when recording before StartSession.
var ErrNoSession = errors.New("no session started")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	FlushInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Ticks      *queue.Queue[model.TickRecord]
	ZoneStates *queue.Queue[model.ZoneState]
	Events     *queue.Queue[model.Event]
}

func newQueues() *queues {
	return &queues{
		Ticks:      queue.NewBounded[model.TickRecord](queueLimit),
		ZoneStates: queue.NewBounded[model.ZoneState](queueLimit),
		Events:     queue.NewBounded[model.Event](queueLimit),
	}
}

// Backend implements storage.Backend with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	queues    *queues
	sessionID atomic.Uint64
	writeMu   sync.Mutex
	lastWrite atomic.Int64 // nanoseconds
	stopChan  chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

// DB returns the connection the backend writes through.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// SetDB injects a connection opened after New.
func (b *Backend) SetDB(db *gorm.DB) {
	b.deps.DB = db
}

// Init migrates the schema and starts the DB writer goroutine. Without a
// DB the backend only queues, which is what the unit tests rely on.
func (b *Backend) Init() error {
	b.stopChan = make(chan struct{})
	b.stopped = make(chan struct{})

	if b.deps.DB != nil {
		if err := database.Migrate(b.deps.DB); err != nil {
			return fmt.Errorf("failed to setup DB: %w", err)
		}
	}

	go b.writerLoop()
	return nil
}

// Close stops the writer goroutine after a final flush.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		if b.stopChan == nil {
			return
		}
		close(b.stopChan)
		<-b.stopped
	})
	return nil
}

// StartSession inserts the session row synchronously so queued rows can
// reference it.
func (b *Backend) StartSession(session *core.Session) error {
	if b.deps.DB == nil {
		return nil
	}
	row := convert.SessionToModel(*session)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	b.sessionID.Store(uint64(row.ID))
	b.deps.Logger.Info("session row created", "session", session.ID, "id", row.ID)
	return nil
}

// EndSession flushes the queues and closes the session row.
func (b *Backend) EndSession(lastTick core.Tick, victor core.Faction) error {
	id := uint(b.sessionID.Load())
	if b.deps.DB == nil || id == 0 {
		return nil
	}
	b.Flush()

	updates := map[string]any{
		"end_time":  time.Now(),
		"last_tick": uint64(lastTick),
	}
	if victor != core.FactionNeutral {
		updates["victor"] = victor.String()
	}
	if err := b.deps.DB.Model(&model.Session{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	b.sessionID.Store(0)
	return nil
}

// RecordTick converts and queues a tick summary.
func (b *Backend) RecordTick(r *core.TickReport) error {
	b.queues.Ticks.Push(convert.TickToModel(r, time.Now()))
	return nil
}

// RecordZoneStates converts and queues one row per zone.
func (b *Backend) RecordZoneStates(tick core.Tick, zones []core.ZoneView) error {
	rows := make([]model.ZoneState, len(zones))
	for i, z := range zones {
		rows[i] = convert.ZoneToModel(tick, z)
	}
	b.queues.ZoneStates.Push(rows...)
	return nil
}

// RecordEvents converts and queues events, numbering them in emission order.
func (b *Backend) RecordEvents(events []core.Event) error {
	rows := make([]model.Event, len(events))
	for i, e := range events {
		rows[i] = convert.EventToModel(e, i)
	}
	b.queues.Events.Push(rows...)
	return nil
}

// QueueLengths reports the pending rows per queue.
func (b *Backend) QueueLengths() model.WriteQueueLengths {
	return model.WriteQueueLengths{
		Ticks:      clamp16(b.queues.Ticks.Len()),
		ZoneStates: clamp16(b.queues.ZoneStates.Len()),
		Events:     clamp16(b.queues.Events.Len()),
	}
}

// Dropped reports rows discarded because a queue overflowed.
func (b *Backend) Dropped() uint64 {
	return b.queues.Ticks.Dropped() + b.queues.ZoneStates.Dropped() + b.queues.Events.Dropped()
}

// GetLastDBWriteDuration returns how long the last write cycle took.
func (b *Backend) GetLastDBWriteDuration() time.Duration {
	return time.Duration(b.lastWrite.Load())
}

// SessionRowID returns the database ID of the running session, 0 if none.
func (b *Backend) SessionRowID() uint {
	return uint(b.sessionID.Load())
}

func clamp16(n int) uint16 {
	if n > 0xFFFF {
		return 0xFFFF
	}
	return uint16(n)
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the batch goes back to the head of the queue.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger, prepare func([]T)) {
	if q.Empty() {
		return
	}
	items := q.GetAndEmpty()
	if prepare != nil {
		prepare(items)
	}
	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log.Error("error writing rows", "table", name, "count", len(items), "error", err)
		tx.Rollback()
		q.PushFront(items...)
		return
	}
	if err := tx.Commit().Error; err != nil {
		log.Error("error committing rows", "table", name, "count", len(items), "error", err)
		q.PushFront(items...)
	}
}

// Flush drains every queue into the database once.
func (b *Backend) Flush() {
	if b.deps.DB == nil {
		return
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	sessionID := uint(b.sessionID.Load())
	if sessionID == 0 {
		return
	}
	start := time.Now()
	log := b.deps.Logger

	writeQueue(b.deps.DB, b.queues.Ticks, "ticks", log, func(items []model.TickRecord) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	})
	writeQueue(b.deps.DB, b.queues.ZoneStates, "zone_states", log, func(items []model.ZoneState) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	})
	writeQueue(b.deps.DB, b.queues.Events, "events", log, func(items []model.Event) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	})

	b.lastWrite.Store(int64(time.Since(start)))
}

// writerLoop periodically drains queues into the DB.
func (b *Backend) writerLoop() {
	defer close(b.stopped)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			b.Flush()
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}
