// pkg/core/unit.go
package core

import "math"

// Position is a point on the host's flat map grid, in meters.
type Position struct {
	X   float64 `json:"x" yaml:"x"`
	Y   float64 `json:"y" yaml:"y"`
	Alt float64 `json:"alt,omitempty" yaml:"alt,omitempty"`
}

// Distance returns the ground distance between two positions.
func (p Position) Distance(o Position) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// Valid reports whether all components are finite.
func (p Position) Valid() bool {
	for _, v := range []float64{p.X, p.Y, p.Alt} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Unit is one simulated unit as seen in the current tick.
type Unit struct {
	ID           UnitID   `json:"id"`
	Name         string   `json:"name"`
	Faction      Faction  `json:"faction"`
	Role         Role     `json:"role"`
	Position     Position `json:"position"`
	Strength     float64  `json:"strength"`
	CanDesignate bool     `json:"canDesignate,omitempty"`
	Range        float64  `json:"range,omitempty"`
}

// Alive reports whether the unit still has any strength.
func (u Unit) Alive() bool {
	return u.Strength > 0
}

// JTACCapable reports whether the unit may submit designations.
func (u Unit) JTACCapable() bool {
	return u.Role == RoleJTAC || u.CanDesignate
}
