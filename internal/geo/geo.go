package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fowlengine/missioncore/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Zone shapes live on the host's flat grid in meters, so geometry is built
// without an SRID and distances come out in meters. Lat/lon is only derived
// for display, through a configured projected CRS.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ErrInvalidBoundary is returned for zone boundaries that cannot be built.
var ErrInvalidBoundary = errors.New("invalid zone boundary")

// PositionFromString parses "x,y" or "x,y,alt" into a core.Position.
func PositionFromString(coords string) (core.Position, error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 {
		return core.Position{}, ErrInvalidCoordinates
	}
	var vals [3]float64
	for i := 0; i < len(parts) && i < 3; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return core.Position{}, ErrInvalidCoordinates
		}
		vals[i] = v
	}
	p := core.Position{X: vals[0], Y: vals[1], Alt: vals[2]}
	if !p.Valid() {
		return core.Position{}, ErrInvalidCoordinates
	}
	return p, nil
}

// ParseRing parses a JSON array of coordinates into polygon vertices.
// Input format: "[[x1,y1],[x2,y2],...]"
func ParseRing(input string) ([]core.Position, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse ring JSON: %w", err)
	}

	if len(coords) < 3 {
		return nil, fmt.Errorf("ring must have at least 3 points, got %d", len(coords))
	}

	ring := make([]core.Position, len(coords))
	for i, coord := range coords {
		if len(coord) < 2 {
			return nil, fmt.Errorf("coordinate %d has insufficient values", i)
		}
		ring[i] = core.Position{X: coord[0], Y: coord[1]}
	}
	return ring, nil
}

// Point converts a grid position to a 2D point.
func Point(p core.Position) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: p.X, Y: p.Y},
		Type: geom.CoordinatesType(geom.DimXY),
	})
}

// Polygon builds a validated polygon from its vertices. The ring is closed
// if the last vertex does not repeat the first.
func Polygon(points []core.Position) (geom.Polygon, error) {
	if len(points) < 3 {
		return geom.Polygon{}, fmt.Errorf("%w: polygon needs at least 3 points, got %d", ErrInvalidBoundary, len(points))
	}

	flat := make([]float64, 0, (len(points)+1)*2)
	for _, p := range points {
		if !p.Valid() {
			return geom.Polygon{}, fmt.Errorf("%w: non-finite vertex", ErrInvalidBoundary)
		}
		flat = append(flat, p.X, p.Y)
	}
	first, last := points[0], points[len(points)-1]
	if first.X != last.X || first.Y != last.Y {
		flat = append(flat, first.X, first.Y)
	}

	ring := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	poly := geom.NewPolygon([]geom.LineString{ring})
	if err := poly.Validate(); err != nil {
		return geom.Polygon{}, fmt.Errorf("%w: %v", ErrInvalidBoundary, err)
	}
	return poly, nil
}

// Shape answers containment and distance queries for one zone boundary.
type Shape struct {
	boundary core.Boundary
	polygon  geom.Geometry
}

// NewShape prepares a boundary for queries. Polygon boundaries get their
// center set to the polygon centroid when none was given.
func NewShape(b core.Boundary) (*Shape, error) {
	s := &Shape{boundary: b}
	switch b.Kind {
	case core.BoundaryCircle:
		if b.Radius <= 0 || !b.Center.Valid() {
			return nil, fmt.Errorf("%w: circle needs a positive radius", ErrInvalidBoundary)
		}
	case core.BoundaryPolygon:
		poly, err := Polygon(b.Points)
		if err != nil {
			return nil, err
		}
		s.polygon = poly.AsGeometry()
		if b.Center == (core.Position{}) {
			if c, ok := poly.Centroid().Coordinates(); ok {
				s.boundary.Center = core.Position{X: c.X, Y: c.Y}
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidBoundary, b.Kind)
	}
	return s, nil
}

// Boundary returns the boundary with its resolved center.
func (s *Shape) Boundary() core.Boundary {
	return s.boundary
}

// Center is the zone's reference point.
func (s *Shape) Center() core.Position {
	return s.boundary.Center
}

// Contains reports whether p lies inside the boundary, edges included.
func (s *Shape) Contains(p core.Position) bool {
	if s.boundary.Kind == core.BoundaryCircle {
		return s.boundary.Center.Distance(p) <= s.boundary.Radius
	}
	return geom.Intersects(s.polygon, Point(p).AsGeometry())
}

// Distance is the ground distance from p to the boundary, 0 inside it.
func (s *Shape) Distance(p core.Position) float64 {
	if s.boundary.Kind == core.BoundaryCircle {
		d := s.boundary.Center.Distance(p) - s.boundary.Radius
		if d < 0 {
			return 0
		}
		return d
	}
	d, ok := geom.Distance(s.polygon, Point(p).AsGeometry())
	if !ok {
		return 0
	}
	return d
}

// Projector converts grid positions to WGS84 through a projected CRS. The
// grid origin is shifted by the false easting/northing first.
type Projector struct {
	transform     func(a, b, c float64) (float64, float64, float64)
	falseEasting  float64
	falseNorthing float64
}

// NewProjector returns nil when epsg is 0.
func NewProjector(epsg int, falseEasting, falseNorthing float64) *Projector {
	if epsg == 0 {
		return nil
	}
	return &Projector{
		transform:     wgs84.EPSG().Transform(epsg, 4326),
		falseEasting:  falseEasting,
		falseNorthing: falseNorthing,
	}
}

// LatLon projects a grid position. A nil projector yields nil.
func (pr *Projector) LatLon(p core.Position) *core.LatLon {
	if pr == nil {
		return nil
	}
	lon, lat, _ := pr.transform(p.X+pr.falseEasting, p.Y+pr.falseNorthing, p.Alt)
	return &core.LatLon{Lat: lat, Lon: lon}
}
