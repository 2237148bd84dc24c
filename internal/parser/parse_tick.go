package parser

import (
	"encoding/json"
	"fmt"

	"github.com/fowlengine/missioncore/internal/util"
	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/fowlengine/missioncore/pkg/hostapi"
)

// ParseSnapshot parses one tick of world state.
//
//	0 = tick
//	1 = units: [[name, faction, role, [x, y, alt?], strength, canDesignate?, range?], ...]
//	2 = zone geometry (optional): [[zone, "circle", [x, y], radius] | [zone, "polygon", [[x, y], ...]], ...]
//	3 = blocked routes (optional): ["route", ...]
func (p *Parser) ParseSnapshot(data []string) (hostapi.Snapshot, error) {
	var s hostapi.Snapshot
	if err := needArgs(data, 2, "snapshot"); err != nil {
		return s, err
	}
	util.FixArgs(data)

	tick, err := hostCount(data[0])
	if err != nil {
		return s, fmt.Errorf("%w: tick %q: %v", ErrInvalidArgs, data[0], err)
	}
	s.Tick = core.Tick(tick)

	var rawUnits [][]any
	if err := json.Unmarshal([]byte(data[1]), &rawUnits); err != nil {
		return s, fmt.Errorf("%w: units: %v", ErrInvalidArgs, err)
	}
	s.Units = make([]hostapi.Unit, 0, len(rawUnits))
	for i, raw := range rawUnits {
		u, err := parseUnit(raw)
		if err != nil {
			// one bad entry must not cost the whole tick
			p.logger.Warn("skipping malformed unit", "tick", tick, "index", i, "error", err)
			continue
		}
		s.Units = append(s.Units, u)
	}

	if len(data) > 2 && data[2] != "" {
		var rawZones [][]any
		if err := json.Unmarshal([]byte(data[2]), &rawZones); err != nil {
			return s, fmt.Errorf("%w: zone geometry: %v", ErrInvalidArgs, err)
		}
		for i, raw := range rawZones {
			g, err := parseGeometry(raw)
			if err != nil {
				p.logger.Warn("skipping malformed zone geometry", "tick", tick, "index", i, "error", err)
				continue
			}
			s.ZoneGeometry = append(s.ZoneGeometry, g)
		}
	}

	if len(data) > 3 && data[3] != "" {
		if err := json.Unmarshal([]byte(data[3]), &s.BlockedRoutes); err != nil {
			return s, fmt.Errorf("%w: blocked routes: %v", ErrInvalidArgs, err)
		}
	}

	return s, nil
}

func parseUnit(raw []any) (hostapi.Unit, error) {
	var u hostapi.Unit
	if len(raw) < 5 {
		return u, fmt.Errorf("unit needs 5 fields, got %d", len(raw))
	}
	var ok bool
	if u.Name, ok = raw[0].(string); !ok || u.Name == "" {
		return u, fmt.Errorf("invalid unit name %v", raw[0])
	}
	if u.Faction, ok = raw[1].(string); !ok {
		return u, fmt.Errorf("unit %s: invalid faction %v", u.Name, raw[1])
	}
	if u.Role, ok = raw[2].(string); !ok {
		return u, fmt.Errorf("unit %s: invalid role %v", u.Name, raw[2])
	}
	pos, err := parsePosition(raw[3])
	if err != nil {
		return u, fmt.Errorf("unit %s: %w", u.Name, err)
	}
	u.Position = pos
	if u.Strength, ok = raw[4].(float64); !ok {
		return u, fmt.Errorf("unit %s: invalid strength %v", u.Name, raw[4])
	}
	if len(raw) > 5 {
		if u.CanDesignate, ok = raw[5].(bool); !ok {
			return u, fmt.Errorf("unit %s: invalid designate flag %v", u.Name, raw[5])
		}
	}
	if len(raw) > 6 {
		if u.Range, ok = raw[6].(float64); !ok {
			return u, fmt.Errorf("unit %s: invalid range %v", u.Name, raw[6])
		}
	}
	return u, nil
}

func parsePosition(v any) (core.Position, error) {
	arr, ok := v.([]any)
	if !ok || len(arr) < 2 {
		return core.Position{}, fmt.Errorf("invalid position %v", v)
	}
	coords := make([]float64, len(arr))
	for i, c := range arr {
		f, ok := c.(float64)
		if !ok {
			return core.Position{}, fmt.Errorf("invalid coordinate %v", c)
		}
		coords[i] = f
	}
	p := core.Position{X: coords[0], Y: coords[1]}
	if len(coords) > 2 {
		p.Alt = coords[2]
	}
	return p, nil
}

func parseGeometry(raw []any) (hostapi.ZoneGeometry, error) {
	var g hostapi.ZoneGeometry
	if len(raw) < 3 {
		return g, fmt.Errorf("geometry needs at least 3 fields, got %d", len(raw))
	}
	var ok bool
	if g.Zone, ok = raw[0].(string); !ok || g.Zone == "" {
		return g, fmt.Errorf("invalid zone name %v", raw[0])
	}
	kind, _ := raw[1].(string)
	switch kind {
	case "circle":
		if len(raw) < 4 {
			return g, fmt.Errorf("zone %s: circle needs a center and a radius", g.Zone)
		}
		center, err := parsePosition(raw[2])
		if err != nil {
			return g, fmt.Errorf("zone %s: %w", g.Zone, err)
		}
		radius, ok := raw[3].(float64)
		if !ok {
			return g, fmt.Errorf("zone %s: invalid radius %v", g.Zone, raw[3])
		}
		g.Circle = &hostapi.Circle{Center: center, Radius: radius}
	case "polygon":
		points, ok := raw[2].([]any)
		if !ok {
			return g, fmt.Errorf("zone %s: invalid polygon %v", g.Zone, raw[2])
		}
		for _, pt := range points {
			pos, err := parsePosition(pt)
			if err != nil {
				return g, fmt.Errorf("zone %s: %w", g.Zone, err)
			}
			g.Polygon = append(g.Polygon, pos)
		}
	default:
		return g, fmt.Errorf("zone %s: unknown shape %v", g.Zone, raw[1])
	}
	return g, nil
}
