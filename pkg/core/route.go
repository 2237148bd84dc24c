// pkg/core/route.go
package core

// SupplyRoute carries supply from one zone to an adjacent one.
type SupplyRoute struct {
	ID       RouteID `json:"id"`
	Name     string  `json:"name"`
	From     ZoneID  `json:"from"`
	To       ZoneID  `json:"to"`
	Capacity float64 `json:"capacity"`
	Flow     float64 `json:"flow"`

	Interdicted        bool `json:"interdicted"`
	InterdictTicksLeft int  `json:"interdictTicksLeft,omitempty"`
	Blocked            bool `json:"blocked,omitempty"`
}

// Residual is the capacity still free this tick.
func (r *SupplyRoute) Residual() float64 {
	if r.Flow >= r.Capacity {
		return 0
	}
	return r.Capacity - r.Flow
}

// Touches reports whether the route starts or ends at z.
func (r *SupplyRoute) Touches(z ZoneID) bool {
	return r.From == z || r.To == z
}
