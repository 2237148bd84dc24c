// pkg/core/ids.go
package core

// Tick is the host simulation tick counter.
type Tick uint64

// Arena identifiers. Zero means "none"; registries hand out IDs starting at 1
// and never reuse them within a session.
type (
	UnitID        uint32
	ZoneID        uint32
	RouteID       uint32
	DesignationID uint32
	MissionID     uint32
)
