package mission

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// ErrInvalidLayout is returned for layout files that cannot describe a mission.
var ErrInvalidLayout = errors.New("invalid mission layout")

const layoutSchemaJSON = `{
  "type": "object",
  "required": ["name", "zones"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "zones": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "owner": {"type": "string"},
          "progress": {"type": "number", "minimum": 0, "maximum": 100},
          "circle": {
            "type": "object",
            "required": ["x", "y", "radius"],
            "properties": {
              "x": {"type": "number"},
              "y": {"type": "number"},
              "radius": {"type": "number", "exclusiveMinimum": 0}
            }
          },
          "polygon": {
            "type": "array",
            "minItems": 3,
            "items": {"type": "array", "minItems": 2, "items": {"type": "number"}}
          },
          "productionRate": {"type": "number"},
          "storage": {"type": "number", "minimum": 0},
          "storageCap": {"type": "number", "minimum": 0},
          "reinforcement": {
            "type": "object",
            "required": ["template", "everyTicks"],
            "properties": {
              "template": {"type": "string", "minLength": 1},
              "cost": {"type": "number", "minimum": 0},
              "everyTicks": {"type": "integer", "minimum": 1},
              "maxAlive": {"type": "integer", "minimum": 1}
            }
          }
        },
        "oneOf": [
          {"required": ["circle"]},
          {"required": ["polygon"]}
        ]
      }
    },
    "routes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["from", "to", "capacity"],
        "properties": {
          "name": {"type": "string"},
          "from": {"type": "string", "minLength": 1},
          "to": {"type": "string", "minLength": 1},
          "capacity": {"type": "number", "exclusiveMinimum": 0},
          "bidirectional": {"type": "boolean"}
        }
      }
    }
  }
}`

var layoutSchema = jsonschema.MustCompileString("layout.schema.json", layoutSchemaJSON)

// Layout is the static description of a mission: its zones and the routes
// between them.
type Layout struct {
	Name   string      `yaml:"name" json:"name"`
	Zones  []ZoneSpec  `yaml:"zones" json:"zones"`
	Routes []RouteSpec `yaml:"routes" json:"routes"`
}

// ZoneSpec describes one zone. Exactly one of Circle and Polygon is set.
type ZoneSpec struct {
	Name           string             `yaml:"name" json:"name"`
	Owner          string             `yaml:"owner" json:"owner,omitempty"`
	Progress       *float64           `yaml:"progress" json:"progress,omitempty"`
	Circle         *CircleSpec        `yaml:"circle" json:"circle,omitempty"`
	Polygon        [][]float64        `yaml:"polygon" json:"polygon,omitempty"`
	ProductionRate float64            `yaml:"productionRate" json:"productionRate,omitempty"`
	Storage        float64            `yaml:"storage" json:"storage,omitempty"`
	StorageCap     float64            `yaml:"storageCap" json:"storageCap,omitempty"`
	Reinforcement  *ReinforcementSpec `yaml:"reinforcement" json:"reinforcement,omitempty"`
}

// CircleSpec is a circular zone boundary.
type CircleSpec struct {
	X      float64 `yaml:"x" json:"x"`
	Y      float64 `yaml:"y" json:"y"`
	Radius float64 `yaml:"radius" json:"radius"`
}

// ReinforcementSpec is the unit a zone spawns from spare supply.
type ReinforcementSpec struct {
	Template   string  `yaml:"template" json:"template"`
	Cost       float64 `yaml:"cost" json:"cost"`
	EveryTicks int     `yaml:"everyTicks" json:"everyTicks"`
	MaxAlive   int     `yaml:"maxAlive" json:"maxAlive"`
}

// RouteSpec is a supply route between two named zones. Bidirectional routes
// register a second route in the reverse direction.
type RouteSpec struct {
	Name          string  `yaml:"name" json:"name,omitempty"`
	From          string  `yaml:"from" json:"from"`
	To            string  `yaml:"to" json:"to"`
	Capacity      float64 `yaml:"capacity" json:"capacity"`
	Bidirectional bool    `yaml:"bidirectional" json:"bidirectional,omitempty"`
}

// LoadLayout reads and validates a YAML layout file.
func LoadLayout(path string) (*Layout, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout: %w", err)
	}
	return ParseLayout(raw)
}

// ParseLayout validates YAML layout data against the layout schema and
// decodes it.
func ParseLayout(raw []byte) (*Layout, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}

	// the schema validator wants plain JSON values
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	var generic any
	if err := json.Unmarshal(asJSON, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	if err := layoutSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}

	var l Layout
	if err := yaml.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	return &l, nil
}

// Build turns the layout into a fresh registry.
func (l *Layout) Build() (*Registry, error) {
	reg := NewRegistry()

	for _, zs := range l.Zones {
		z, err := zs.zone()
		if err != nil {
			return nil, err
		}
		if _, err := reg.AddZone(z); err != nil {
			return nil, err
		}
	}

	for _, rs := range l.Routes {
		from, ok := reg.ZoneID(rs.From)
		if !ok {
			return nil, fmt.Errorf("%w: route %q: unknown zone %q", ErrInvalidLayout, rs.Name, rs.From)
		}
		to, ok := reg.ZoneID(rs.To)
		if !ok {
			return nil, fmt.Errorf("%w: route %q: unknown zone %q", ErrInvalidLayout, rs.Name, rs.To)
		}

		name := rs.Name
		if name == "" {
			name = rs.From + "-" + rs.To
		}
		if _, err := reg.AddRoute(core.SupplyRoute{Name: name, From: from, To: to, Capacity: rs.Capacity}); err != nil {
			return nil, err
		}
		if rs.Bidirectional {
			if _, err := reg.AddRoute(core.SupplyRoute{Name: name + "-return", From: to, To: from, Capacity: rs.Capacity}); err != nil {
				return nil, err
			}
		}
	}

	return reg, nil
}

func (zs ZoneSpec) zone() (core.Zone, error) {
	owner := core.FactionNeutral
	if zs.Owner != "" {
		f, err := core.ParseFaction(zs.Owner)
		if err != nil {
			return core.Zone{}, fmt.Errorf("%w: zone %q: %v", ErrInvalidLayout, zs.Name, err)
		}
		owner = f
	}

	// owned zones start secure, neutral ones uncontrolled
	progress := 0.0
	if owner != core.FactionNeutral {
		progress = core.ProgressMax
	}
	if zs.Progress != nil {
		progress = *zs.Progress
	}

	if zs.StorageCap > 0 && zs.Storage > zs.StorageCap {
		return core.Zone{}, fmt.Errorf("%w: zone %q stores %v above its cap %v", ErrInvalidLayout, zs.Name, zs.Storage, zs.StorageCap)
	}
	if zs.StorageCap == 0 && zs.Storage > 0 {
		return core.Zone{}, fmt.Errorf("%w: zone %q has storage but no storage cap", ErrInvalidLayout, zs.Name)
	}

	z := core.Zone{
		Name:           zs.Name,
		Owner:          owner,
		Progress:       progress,
		ProductionRate: zs.ProductionRate,
		Storage:        zs.Storage,
		StorageCap:     zs.StorageCap,
	}

	switch {
	case zs.Circle != nil:
		z.Boundary = core.Boundary{
			Kind:   core.BoundaryCircle,
			Center: core.Position{X: zs.Circle.X, Y: zs.Circle.Y},
			Radius: zs.Circle.Radius,
		}
	default:
		points := make([]core.Position, 0, len(zs.Polygon))
		for _, p := range zs.Polygon {
			points = append(points, core.Position{X: p[0], Y: p[1]})
		}
		z.Boundary = core.Boundary{Kind: core.BoundaryPolygon, Points: points}
	}

	if r := zs.Reinforcement; r != nil {
		maxAlive := r.MaxAlive
		if maxAlive == 0 {
			maxAlive = 1
		}
		z.Reinforcement = &core.Reinforcement{
			Template:   r.Template,
			Cost:       r.Cost,
			EveryTicks: core.Tick(r.EveryTicks),
			MaxAlive:   maxAlive,
		}
	}
	return z, nil
}
