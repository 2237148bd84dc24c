// pkg/core/firesupport.go
package core

// MissionState is the lifecycle position of a fire mission.
type MissionState uint8

const (
	MissionQueued MissionState = iota
	MissionAllocated
	MissionInFlight
	MissionResolved
	MissionCancelled
)

func (s MissionState) String() string {
	switch s {
	case MissionQueued:
		return "queued"
	case MissionAllocated:
		return "allocated"
	case MissionInFlight:
		return "in_flight"
	case MissionResolved:
		return "resolved"
	case MissionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s MissionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is possible.
func (s MissionState) Terminal() bool {
	return s == MissionResolved || s == MissionCancelled
}

// CanTransition reports whether moving from s to next keeps the lifecycle
// monotonic.
func (s MissionState) CanTransition(next MissionState) bool {
	if s.Terminal() {
		return false
	}
	if next == MissionCancelled {
		return true
	}
	return next == s+1
}

// CancelReason explains why a mission ended without resolving.
type CancelReason string

const (
	CancelRequested  CancelReason = "requested"
	CancelExpired    CancelReason = "expired"
	CancelUnitLost   CancelReason = "firing_unit_lost"
	CancelTargetLost CancelReason = "target_lost"
	CancelHostError  CancelReason = "host_rejected"
	CancelWithdrawn  CancelReason = "designation_cancelled"
)

// DefaultLaserCode is the code assigned when a designation does not set one.
const DefaultLaserCode = 1688

// Designation is a JTAC target report.
type Designation struct {
	ID         DesignationID `json:"id"`
	Faction    Faction       `json:"faction"`
	Requester  UnitID        `json:"requester"`
	Target     Position      `json:"target"`
	TargetUnit UnitID        `json:"targetUnit,omitempty"`
	Priority   int           `json:"priority"`
	LaserCode  int           `json:"laserCode"`
	Rounds     int           `json:"rounds"`
	SubmitTick Tick          `json:"submitTick"`
	ExpiryTick Tick          `json:"expiryTick"`
	Mission    MissionID     `json:"mission"`
	Active     bool          `json:"active"`
}

// FireMission is an artillery engagement against a designation.
type FireMission struct {
	ID             MissionID     `json:"id"`
	Designation    DesignationID `json:"designation"`
	Faction        Faction       `json:"faction"`
	State          MissionState  `json:"state"`
	Target         Position      `json:"target"`
	FiringUnit     UnitID        `json:"firingUnit,omitempty"`
	FiringZone     ZoneID        `json:"firingZone,omitempty"`
	RequiredSupply float64       `json:"requiredSupply"`
	Debited        bool          `json:"debited"`

	QueuedTick    Tick `json:"queuedTick"`
	AllocatedTick Tick `json:"allocatedTick,omitempty"`
	LaunchTick    Tick `json:"launchTick,omitempty"`
	ETA           Tick `json:"eta,omitempty"`
	ClosedTick    Tick `json:"closedTick,omitempty"`

	CancelPending bool         `json:"cancelPending,omitempty"`
	CancelReason  CancelReason `json:"cancelReason,omitempty"`
}
