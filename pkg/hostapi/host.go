// Package hostapi defines the boundary between the Mission Command Core and
// the host simulation: what the core pulls every tick and what it pushes
// back when fire missions resolve or reinforcements spawn.
package hostapi

import (
	"context"

	"github.com/fowlengine/missioncore/pkg/core"
)

// Host is the simulation the core is embedded in.
type Host interface {
	// Snapshot is called once per tick to pull the world state.
	Snapshot(ctx context.Context) (Snapshot, error)
	// IssueFireEffect hands a resolved fire mission to the host's projectile
	// system.
	IssueFireEffect(ctx context.Context, fx FireEffect) error
	// SpawnUnit creates a unit from a template and returns its host name.
	SpawnUnit(ctx context.Context, req SpawnRequest) (string, error)
	// DespawnUnit removes a unit by host name.
	DespawnUnit(ctx context.Context, name string) error
}

// Unit is a unit as reported by the host.
type Unit struct {
	Name         string        `json:"name"`
	Faction      string        `json:"faction"`
	Role         string        `json:"role"`
	Position     core.Position `json:"position"`
	Strength     float64       `json:"strength"`
	CanDesignate bool          `json:"canDesignate,omitempty"`
	Range        float64       `json:"range,omitempty"`
}

// Circle is a circular zone boundary.
type Circle struct {
	Center core.Position `json:"center"`
	Radius float64       `json:"radius"`
}

// ZoneGeometry updates the boundary of a zone known from the layout.
type ZoneGeometry struct {
	Zone    string          `json:"zone"`
	Circle  *Circle         `json:"circle,omitempty"`
	Polygon []core.Position `json:"polygon,omitempty"`
}

// Snapshot is one tick of world state.
type Snapshot struct {
	Tick          core.Tick      `json:"tick"`
	Units         []Unit         `json:"units"`
	ZoneGeometry  []ZoneGeometry `json:"zoneGeometry,omitempty"`
	BlockedRoutes []string       `json:"blockedRoutes,omitempty"`
}

// FireEffect is a resolved fire mission.
type FireEffect struct {
	Mission   core.MissionID `json:"mission"`
	Unit      string         `json:"unit"`
	Target    core.Position  `json:"target"`
	Rounds    int            `json:"rounds"`
	LaserCode int            `json:"laserCode"`
	ETA       core.Tick      `json:"eta"`
}

// SpawnRequest asks the host for a reinforcement unit.
type SpawnRequest struct {
	Template string        `json:"template"`
	Faction  string        `json:"faction"`
	Zone     string        `json:"zone"`
	Position core.Position `json:"position"`
}
