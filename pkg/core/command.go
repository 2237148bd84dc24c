// pkg/core/command.go
package core

import (
	"encoding/json"
	"fmt"
	"math"
)

// CommandKind names an external command.
type CommandKind string

const (
	CmdRequestCapture    CommandKind = "request_capture"
	CmdRequestResupply   CommandKind = "request_resupply"
	CmdSubmitDesignation CommandKind = "submit_designation"
	CmdCancelFireMission CommandKind = "cancel_fire_mission"
	CmdCancelDesignation CommandKind = "cancel_designation"
	CmdAdjustFire        CommandKind = "adjust_fire"
)

// Command is an external request applied at the start of a tick.
// Validate performs the checks that do not depend on mission state.
type Command interface {
	Kind() CommandKind
	Validate() error
}

// RequestCapture may add presence weight for a faction in a zone for the
// tick it is applied in. Capture itself stays organic.
type RequestCapture struct {
	Zone    ZoneID  `json:"zone"`
	Faction Faction `json:"faction"`
	Weight  float64 `json:"weight"`
}

func (RequestCapture) Kind() CommandKind { return CmdRequestCapture }

func (c RequestCapture) Validate() error {
	if c.Zone == 0 {
		return Invalid(c.Kind(), "zone is required")
	}
	if c.Faction == FactionNeutral {
		return Invalid(c.Kind(), "faction must not be neutral")
	}
	if c.Weight < 0 || math.IsNaN(c.Weight) || math.IsInf(c.Weight, 0) {
		return Invalid(c.Kind(), "weight %v out of range", c.Weight)
	}
	return nil
}

// RequestResupply schedules an explicit transfer along a route this tick.
type RequestResupply struct {
	Route  RouteID `json:"route"`
	Amount float64 `json:"amount"`
}

func (RequestResupply) Kind() CommandKind { return CmdRequestResupply }

func (c RequestResupply) Validate() error {
	if c.Route == 0 {
		return Invalid(c.Kind(), "route is required")
	}
	if c.Amount <= 0 || math.IsNaN(c.Amount) || math.IsInf(c.Amount, 0) {
		return Invalid(c.Kind(), "amount must be positive, got %v", c.Amount)
	}
	return nil
}

// SubmitDesignation reports a target for fire support. Either Target or
// TargetUnit must be given; a tracked unit overrides the position.
type SubmitDesignation struct {
	Requester  UnitID    `json:"requester"`
	Target     *Position `json:"target,omitempty"`
	TargetUnit UnitID    `json:"targetUnit,omitempty"`
	Priority   int       `json:"priority"`
	TTL        Tick      `json:"ttl"`
	Rounds     int       `json:"rounds,omitempty"`
	LaserCode  int       `json:"laserCode,omitempty"`
}

func (SubmitDesignation) Kind() CommandKind { return CmdSubmitDesignation }

func (c SubmitDesignation) Validate() error {
	if c.Requester == 0 {
		return Invalid(c.Kind(), "requester is required")
	}
	if c.Target == nil && c.TargetUnit == 0 {
		return Invalid(c.Kind(), "target position or target unit is required")
	}
	if c.Target != nil && !c.Target.Valid() {
		return Invalid(c.Kind(), "target position is not finite")
	}
	if c.TTL == 0 {
		return Invalid(c.Kind(), "ttl must be at least one tick")
	}
	if c.Priority < 0 {
		return Invalid(c.Kind(), "priority must not be negative")
	}
	if c.Rounds < 0 {
		return Invalid(c.Kind(), "rounds must not be negative")
	}
	if c.LaserCode != 0 && !ValidLaserCode(c.LaserCode) {
		return Invalid(c.Kind(), "laser code %d is not valid", c.LaserCode)
	}
	return nil
}

// CancelFireMission cancels a mission at the next fire-support pass.
type CancelFireMission struct {
	Mission MissionID `json:"mission"`
}

func (CancelFireMission) Kind() CommandKind { return CmdCancelFireMission }

func (c CancelFireMission) Validate() error {
	if c.Mission == 0 {
		return Invalid(c.Kind(), "mission is required")
	}
	return nil
}

// CancelDesignation withdraws a designation and the mission raised for it.
type CancelDesignation struct {
	Designation DesignationID `json:"designation"`
}

func (CancelDesignation) Kind() CommandKind { return CmdCancelDesignation }

func (c CancelDesignation) Validate() error {
	if c.Designation == 0 {
		return Invalid(c.Kind(), "designation is required")
	}
	return nil
}

// AdjustFire shifts a mission's aim point in meters along and across the
// line from the requesting JTAC to the target. Positive Along is long,
// positive Across is right.
type AdjustFire struct {
	Mission MissionID `json:"mission"`
	Along   float64   `json:"along"`
	Across  float64   `json:"across"`
}

func (AdjustFire) Kind() CommandKind { return CmdAdjustFire }

func (c AdjustFire) Validate() error {
	if c.Mission == 0 {
		return Invalid(c.Kind(), "mission is required")
	}
	if c.Along == 0 && c.Across == 0 {
		return Invalid(c.Kind(), "adjustment is empty")
	}
	if !(Position{X: c.Along, Y: c.Across}).Valid() {
		return Invalid(c.Kind(), "adjustment is not finite")
	}
	return nil
}

// ValidLaserCode checks the four digit code range used by laser designators:
// first digit 1, second 1-7, third and fourth 1-8.
func ValidLaserCode(code int) bool {
	if code < 1111 || code > 1788 {
		return false
	}
	second := code / 100 % 10
	third := code / 10 % 10
	fourth := code % 10
	return second >= 1 && second <= 7 &&
		third >= 1 && third <= 8 &&
		fourth >= 1 && fourth <= 8
}

// Ticket identifies a submitted command within a session. Tickets are handed
// out in arrival order and commands are applied in ticket order.
type Ticket uint64

// CommandResult is the outcome of applying one command.
type CommandResult struct {
	Ticket      Ticket        `json:"ticket"`
	Kind        CommandKind   `json:"kind"`
	Err         *CommandError `json:"error,omitempty"`
	Designation DesignationID `json:"designation,omitempty"`
	Mission     MissionID     `json:"mission,omitempty"`
}

// OK reports whether the command was applied.
func (r CommandResult) OK() bool {
	return r.Err == nil
}

// DecodeCommand builds the command named by kind from its JSON form.
func DecodeCommand(kind CommandKind, raw []byte) (Command, error) {
	var (
		cmd Command
		err error
	)
	switch kind {
	case CmdRequestCapture:
		var c RequestCapture
		err = json.Unmarshal(raw, &c)
		cmd = c
	case CmdRequestResupply:
		var c RequestResupply
		err = json.Unmarshal(raw, &c)
		cmd = c
	case CmdSubmitDesignation:
		var c SubmitDesignation
		err = json.Unmarshal(raw, &c)
		cmd = c
	case CmdCancelFireMission:
		var c CancelFireMission
		err = json.Unmarshal(raw, &c)
		cmd = c
	case CmdCancelDesignation:
		var c CancelDesignation
		err = json.Unmarshal(raw, &c)
		cmd = c
	case CmdAdjustFire:
		var c AdjustFire
		err = json.Unmarshal(raw, &c)
		cmd = c
	default:
		return nil, fmt.Errorf("unknown command kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", kind, err)
	}
	return cmd, nil
}
