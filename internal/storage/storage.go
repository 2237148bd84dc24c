// Package storage defines where a running session's ticks, zone
// projections and events are written.
package storage

import "github.com/fowlengine/missioncore/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(session *core.Session) error
	EndSession(lastTick core.Tick, victor core.Faction) error

	// Per-tick recording
	RecordTick(report *core.TickReport) error
	RecordZoneStates(tick core.Tick, zones []core.ZoneView) error
	RecordEvents(events []core.Event) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to a session archive.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}
