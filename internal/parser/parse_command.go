package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fowlengine/missioncore/internal/util"
	"github.com/fowlengine/missioncore/pkg/core"
)

// ErrNoSession is returned when a command arrives before a mission started.
var ErrNoSession = errors.New("no mission loaded")

// hostCommand is the JSON object a host sends with a command. Units, zones
// and routes are named; missions and designations use the IDs the core
// handed out.
type hostCommand struct {
	Zone        string      `json:"zone"`
	Faction     string      `json:"faction"`
	Weight      float64     `json:"weight"`
	Route       string      `json:"route"`
	Amount      float64     `json:"amount"`
	Requester   string      `json:"requester"`
	Target      []float64   `json:"target"`
	TargetUnit  string      `json:"targetUnit"`
	Priority    json.Number `json:"priority"`
	TTL         json.Number `json:"ttl"`
	Rounds      json.Number `json:"rounds"`
	LaserCode   json.Number `json:"laserCode"`
	Mission     json.Number `json:"mission"`
	Designation json.Number `json:"designation"`
	Along       float64     `json:"along"`
	Across      float64     `json:"across"`
}

// ParseCommand parses a host command.
//
//	0 = command kind, e.g. "submit_designation"
//	1 = JSON object with the command's arguments
//
// Names that do not resolve in the running session are reported as
// validation errors, the same way the dispatcher reports them.
func (p *Parser) ParseCommand(data []string) (core.Command, error) {
	if err := needArgs(data, 2, "command"); err != nil {
		return nil, err
	}
	util.FixArgs(data)

	n := p.names.Load()
	if n == nil {
		return nil, ErrNoSession
	}

	kind := core.CommandKind(data[0])
	var hc hostCommand
	dec := json.NewDecoder(strings.NewReader(data[1]))
	dec.UseNumber()
	if err := dec.Decode(&hc); err != nil {
		return nil, fmt.Errorf("%w: %s arguments: %v", ErrInvalidArgs, kind, err)
	}

	switch kind {
	case core.CmdRequestCapture:
		zone, err := n.zone(kind, hc.Zone)
		if err != nil {
			return nil, err
		}
		faction, err := core.ParseFaction(hc.Faction)
		if err != nil {
			return nil, core.Invalid(kind, "%v", err)
		}
		return core.RequestCapture{Zone: zone, Faction: faction, Weight: hc.Weight}, nil

	case core.CmdRequestResupply:
		route, ok := n.registry.RouteID(hc.Route)
		if !ok {
			return nil, core.Invalid(kind, "unknown route %q", hc.Route)
		}
		return core.RequestResupply{Route: route, Amount: hc.Amount}, nil

	case core.CmdSubmitDesignation:
		return n.designation(kind, hc)

	case core.CmdCancelFireMission:
		id, err := number(kind, "mission", hc.Mission)
		if err != nil {
			return nil, err
		}
		return core.CancelFireMission{Mission: core.MissionID(id)}, nil

	case core.CmdCancelDesignation:
		id, err := number(kind, "designation", hc.Designation)
		if err != nil {
			return nil, err
		}
		return core.CancelDesignation{Designation: core.DesignationID(id)}, nil

	case core.CmdAdjustFire:
		id, err := number(kind, "mission", hc.Mission)
		if err != nil {
			return nil, err
		}
		return core.AdjustFire{Mission: core.MissionID(id), Along: hc.Along, Across: hc.Across}, nil
	}
	return nil, core.Invalid(kind, "unknown command")
}

func (n *names) zone(kind core.CommandKind, name string) (core.ZoneID, error) {
	id, ok := n.registry.ZoneID(name)
	if !ok {
		return 0, core.Invalid(kind, "unknown zone %q", name)
	}
	return id, nil
}

func (n *names) unit(kind core.CommandKind, name string) (core.UnitID, error) {
	id, ok := n.units.Lookup(name)
	if !ok {
		return 0, core.Invalid(kind, "unknown unit %q", name)
	}
	return id, nil
}

func (n *names) designation(kind core.CommandKind, hc hostCommand) (core.Command, error) {
	requester, err := n.unit(kind, hc.Requester)
	if err != nil {
		return nil, err
	}
	c := core.SubmitDesignation{Requester: requester}

	if hc.TargetUnit != "" {
		if c.TargetUnit, err = n.unit(kind, hc.TargetUnit); err != nil {
			return nil, err
		}
	}
	if len(hc.Target) > 0 {
		if len(hc.Target) < 2 {
			return nil, core.Invalid(kind, "target needs x and y")
		}
		c.Target = &core.Position{X: hc.Target[0], Y: hc.Target[1]}
		if len(hc.Target) > 2 {
			c.Target.Alt = hc.Target[2]
		}
	}

	ttl, err := number(kind, "ttl", hc.TTL)
	if err != nil {
		return nil, err
	}
	c.TTL = core.Tick(ttl)

	if err := optionalInt(kind, "priority", hc.Priority, &c.Priority); err != nil {
		return nil, err
	}
	if err := optionalInt(kind, "rounds", hc.Rounds, &c.Rounds); err != nil {
		return nil, err
	}
	if err := optionalInt(kind, "laserCode", hc.LaserCode, &c.LaserCode); err != nil {
		return nil, err
	}
	return c, nil
}

// number reads a required whole number argument.
func number(kind core.CommandKind, field string, raw json.Number) (uint64, error) {
	if raw == "" {
		return 0, core.Invalid(kind, "%s is required", field)
	}
	v, err := hostCount(raw.String())
	if err != nil {
		return 0, core.Invalid(kind, "%s: %v", field, err)
	}
	return v, nil
}

func optionalInt(kind core.CommandKind, field string, raw json.Number, dst *int) error {
	if raw == "" {
		return nil
	}
	v, err := hostWhole(raw.String())
	if err != nil {
		return core.Invalid(kind, "%s: %v", field, err)
	}
	*dst = int(v)
	return nil
}
