// Package memory keeps a session in memory and exports it as one JSON
// document when the session ends.
package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/fowlengine/missioncore/internal/config"
	"github.com/fowlengine/missioncore/pkg/core"
)

// ErrNoSession is returned when recording before StartSession.
var ErrNoSession = errors.New("no session started")

// ZoneRecord groups a zone with the samples where its state changed.
type ZoneRecord struct {
	ID      core.ZoneID
	Name    string
	Center  core.Position
	Samples []ZoneSample
}

// ZoneSample is a zone's state at the tick it last changed.
type ZoneSample struct {
	Tick       core.Tick    `json:"tick"`
	Owner      core.Faction `json:"owner"`
	Progress   float64      `json:"progress"`
	Threatened bool         `json:"threatened"`
	Storage    float64      `json:"storage"`
	Reserved   float64      `json:"reserved"`
}

func (s ZoneSample) same(o ZoneSample) bool {
	return s.Owner == o.Owner &&
		s.Progress == o.Progress &&
		s.Threatened == o.Threatened &&
		s.Storage == o.Storage &&
		s.Reserved == o.Reserved
}

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	ticks  []TickSummary
	zones  map[core.ZoneID]*ZoneRecord
	order  []core.ZoneID
	events []core.Event

	endTime  time.Time
	lastTick core.Tick
	victor   core.Faction

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:   cfg,
		zones: make(map[core.ZoneID]*ZoneRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session
func (b *Backend) StartSession(session *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := *session
	b.session = &s

	b.ticks = nil
	b.zones = make(map[core.ZoneID]*ZoneRecord)
	b.order = nil
	b.events = nil
	b.endTime = time.Time{}
	b.lastTick = 0
	b.victor = core.FactionNeutral
	b.lastExportPath = ""
	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession(lastTick core.Tick, victor core.Faction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	b.endTime = time.Now()
	b.lastTick = lastTick
	b.victor = victor
	return b.exportJSON()
}

// RecordTick keeps a summary of the pipeline pass.
func (b *Backend) RecordTick(r *core.TickReport) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	b.ticks = append(b.ticks, TickSummary{
		Tick:       r.Tick,
		Units:      r.Units,
		Commands:   len(r.Results),
		Events:     len(r.Events),
		DurationUS: r.DurationUS,
		Flow:       r.Flow,
	})
	return nil
}

// RecordZoneStates appends a sample for every zone whose state changed.
func (b *Backend) RecordZoneStates(tick core.Tick, zones []core.ZoneView) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	for _, z := range zones {
		rec, ok := b.zones[z.ID]
		if !ok {
			rec = &ZoneRecord{ID: z.ID, Name: z.Name, Center: z.Center}
			b.zones[z.ID] = rec
			b.order = append(b.order, z.ID)
		}
		sample := ZoneSample{
			Tick:       tick,
			Owner:      z.Owner,
			Progress:   z.Progress,
			Threatened: z.Threatened,
			Storage:    z.Storage,
			Reserved:   z.Reserved,
		}
		if n := len(rec.Samples); n > 0 && rec.Samples[n-1].same(sample) {
			continue
		}
		rec.Samples = append(rec.Samples, sample)
	}
	return nil
}

// RecordEvents appends events in emission order.
func (b *Backend) RecordEvents(events []core.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	b.events = append(b.events, events...)
	return nil
}

// Zone returns the recorded track of a zone.
func (b *Backend) Zone(id core.ZoneID) (*ZoneRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.zones[id]
	return rec, ok
}

// EventCount returns how many events were recorded.
func (b *Backend) EventCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// GetExportedFilePath returns the path of the last export, empty if none.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the last export for upload.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.session == nil {
		return core.UploadMetadata{}
	}
	meta := core.UploadMetadata{
		SessionID:   b.session.ID,
		MissionName: b.session.MissionName,
		Layout:      b.session.Layout,
		Ticks:       b.lastTick,
		Victor:      b.victor,
	}
	if !b.endTime.IsZero() && !b.session.StartTime.IsZero() {
		meta.SessionDuration = b.endTime.Sub(b.session.StartTime).Seconds()
	}
	return meta
}
