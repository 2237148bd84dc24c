// pkg/core/zone.go
package core

import "math"

// ProgressMax is the capture progress of a fully secured zone.
const ProgressMax = 100.0

// BoundaryKind selects how a zone boundary is described.
type BoundaryKind uint8

const (
	BoundaryCircle BoundaryKind = iota
	BoundaryPolygon
)

// Boundary is the geographic extent of a zone.
type Boundary struct {
	Kind   BoundaryKind `json:"kind"`
	Center Position     `json:"center"`
	Radius float64      `json:"radius,omitempty"`
	Points []Position   `json:"points,omitempty"`
}

// Reinforcement describes what a zone spawns while it has spare supply.
type Reinforcement struct {
	Template   string  `json:"template"`
	Cost       float64 `json:"cost"`
	EveryTicks Tick    `json:"everyTicks"`
	MaxAlive   int     `json:"maxAlive"`
}

// Zone is a capturable objective.
type Zone struct {
	ID       ZoneID   `json:"id"`
	Name     string   `json:"name"`
	Boundary Boundary `json:"boundary"`
	Adjacent []ZoneID `json:"adjacent,omitempty"`

	// Ownership state. Streak counts the consecutive ticks StreakFaction has
	// held the zone against its owner.
	Owner         Faction `json:"owner"`
	Progress      float64 `json:"progress"`
	Streak        int     `json:"streak,omitempty"`
	StreakFaction Faction `json:"streakFaction,omitempty"`

	// Threat state.
	Threatened     bool `json:"threatened"`
	LastThreatTick Tick `json:"lastThreatTick,omitempty"`

	// Logistics state. Reserved is ammunition held by allocated fire missions.
	ProductionRate     float64 `json:"productionRate"`
	Storage            float64 `json:"storage"`
	StorageCap         float64 `json:"storageCap"`
	Reserved           float64 `json:"reserved"`
	StrengthMultiplier float64 `json:"strengthMultiplier"`

	Reinforcement *Reinforcement `json:"reinforcement,omitempty"`
}

// Available is the stock not held by fire-mission reservations.
func (z *Zone) Available() float64 {
	return math.Max(0, z.Storage-z.Reserved)
}

// Headroom is how much more the zone can store.
func (z *Zone) Headroom() float64 {
	return math.Max(0, z.StorageCap-z.Storage)
}

// FillRatio is storage over capacity, 0 for zones without storage.
func (z *Zone) FillRatio() float64 {
	if z.StorageCap <= 0 {
		return 0
	}
	return z.Storage / z.StorageCap
}

// Producer reports whether the zone generates supply.
func (z *Zone) Producer() bool {
	return z.ProductionRate > 0
}

// Consumer reports whether the zone depletes supply every tick.
func (z *Zone) Consumer() bool {
	return z.ProductionRate < 0
}
