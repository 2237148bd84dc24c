package mission

import (
	"fmt"
	"slices"

	"github.com/fowlengine/missioncore/internal/geo"
	"github.com/fowlengine/missioncore/pkg/core"
)

// Registry owns the zone and route records of a running mission. Records are
// arena-indexed: an ID is its position plus one, so lookups never chase
// pointers between zones and routes.
type Registry struct {
	zones  []*core.Zone
	shapes []*geo.Shape
	routes []*core.SupplyRoute

	zoneByName  map[string]core.ZoneID
	routeByName map[string]core.RouteID
	outgoing    map[core.ZoneID][]core.RouteID
	touching    map[core.ZoneID][]core.RouteID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		zoneByName:  make(map[string]core.ZoneID),
		routeByName: make(map[string]core.RouteID),
		outgoing:    make(map[core.ZoneID][]core.RouteID),
		touching:    make(map[core.ZoneID][]core.RouteID),
	}
}

// AddZone registers a zone and returns its ID. The boundary is validated and
// its center resolved.
func (r *Registry) AddZone(z core.Zone) (core.ZoneID, error) {
	if z.Name == "" {
		return 0, fmt.Errorf("%w: zone without a name", ErrInvalidLayout)
	}
	if _, dup := r.zoneByName[z.Name]; dup {
		return 0, fmt.Errorf("%w: duplicate zone %q", ErrInvalidLayout, z.Name)
	}
	shape, err := geo.NewShape(z.Boundary)
	if err != nil {
		return 0, fmt.Errorf("zone %q: %w", z.Name, err)
	}

	z.ID = core.ZoneID(len(r.zones) + 1)
	z.Boundary = shape.Boundary()
	z.Adjacent = nil
	if z.StrengthMultiplier == 0 {
		z.StrengthMultiplier = 1
	}

	r.zones = append(r.zones, &z)
	r.shapes = append(r.shapes, shape)
	r.zoneByName[z.Name] = z.ID
	return z.ID, nil
}

// AddRoute registers a directed route between two known zones and marks them
// adjacent.
func (r *Registry) AddRoute(rt core.SupplyRoute) (core.RouteID, error) {
	from, to := r.Zone(rt.From), r.Zone(rt.To)
	if from == nil || to == nil {
		return 0, fmt.Errorf("%w: route %q references an unknown zone", ErrInvalidLayout, rt.Name)
	}
	if rt.From == rt.To {
		return 0, fmt.Errorf("%w: route %q loops on zone %q", ErrInvalidLayout, rt.Name, from.Name)
	}
	if rt.Capacity <= 0 {
		return 0, fmt.Errorf("%w: route %q needs a positive capacity", ErrInvalidLayout, rt.Name)
	}
	if rt.Name == "" {
		rt.Name = from.Name + "-" + to.Name
	}
	if _, dup := r.routeByName[rt.Name]; dup {
		return 0, fmt.Errorf("%w: duplicate route %q", ErrInvalidLayout, rt.Name)
	}

	rt.ID = core.RouteID(len(r.routes) + 1)
	rt.Flow = 0
	r.routes = append(r.routes, &rt)
	r.routeByName[rt.Name] = rt.ID
	r.outgoing[rt.From] = append(r.outgoing[rt.From], rt.ID)
	r.touching[rt.From] = append(r.touching[rt.From], rt.ID)
	r.touching[rt.To] = append(r.touching[rt.To], rt.ID)

	if !slices.Contains(from.Adjacent, rt.To) {
		from.Adjacent = append(from.Adjacent, rt.To)
	}
	if !slices.Contains(to.Adjacent, rt.From) {
		to.Adjacent = append(to.Adjacent, rt.From)
	}
	return rt.ID, nil
}

// Zone returns the zone record or nil.
func (r *Registry) Zone(id core.ZoneID) *core.Zone {
	if id == 0 || int(id) > len(r.zones) {
		return nil
	}
	return r.zones[id-1]
}

// Shape returns the query shape of a zone or nil.
func (r *Registry) Shape(id core.ZoneID) *geo.Shape {
	if id == 0 || int(id) > len(r.shapes) {
		return nil
	}
	return r.shapes[id-1]
}

// SetBoundary replaces a zone boundary with one reported by the host.
func (r *Registry) SetBoundary(id core.ZoneID, b core.Boundary) error {
	z := r.Zone(id)
	if z == nil {
		return fmt.Errorf("unknown zone %d", id)
	}
	shape, err := geo.NewShape(b)
	if err != nil {
		return err
	}
	r.shapes[id-1] = shape
	z.Boundary = shape.Boundary()
	return nil
}

// Route returns the route record or nil.
func (r *Registry) Route(id core.RouteID) *core.SupplyRoute {
	if id == 0 || int(id) > len(r.routes) {
		return nil
	}
	return r.routes[id-1]
}

// Zones returns every zone in ID order.
func (r *Registry) Zones() []*core.Zone {
	return r.zones
}

// Routes returns every route in ID order.
func (r *Registry) Routes() []*core.SupplyRoute {
	return r.routes
}

// ZoneID resolves a zone name.
func (r *Registry) ZoneID(name string) (core.ZoneID, bool) {
	id, ok := r.zoneByName[name]
	return id, ok
}

// RouteID resolves a route name.
func (r *Registry) RouteID(name string) (core.RouteID, bool) {
	id, ok := r.routeByName[name]
	return id, ok
}

// Outgoing returns the routes leaving a zone, in ID order.
func (r *Registry) Outgoing(id core.ZoneID) []*core.SupplyRoute {
	return r.lookupRoutes(r.outgoing[id])
}

// Touching returns the routes starting or ending at a zone, in ID order.
func (r *Registry) Touching(id core.ZoneID) []*core.SupplyRoute {
	return r.lookupRoutes(r.touching[id])
}

func (r *Registry) lookupRoutes(ids []core.RouteID) []*core.SupplyRoute {
	out := make([]*core.SupplyRoute, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.routes[id-1])
	}
	return out
}

// ZonesAt returns the zones whose boundary contains p, in ID order.
func (r *Registry) ZonesAt(p core.Position) []core.ZoneID {
	var out []core.ZoneID
	for i, s := range r.shapes {
		if s.Contains(p) {
			out = append(out, core.ZoneID(i+1))
		}
	}
	return out
}
