// pkg/core/events.go
package core

// EventKind names a state change published by the pipeline.
type EventKind string

const (
	EventZoneCaptured         EventKind = "zone_captured"
	EventZoneThreatened       EventKind = "zone_threatened"
	EventZoneCleared          EventKind = "zone_cleared"
	EventRouteInterdicted     EventKind = "route_interdicted"
	EventResupplyDelivered    EventKind = "resupply_delivered"
	EventResupplyAborted      EventKind = "resupply_aborted"
	EventDesignationCreated   EventKind = "designation_created"
	EventMissionAllocated     EventKind = "mission_allocated"
	EventMissionLaunched      EventKind = "mission_launched"
	EventMissionResolved      EventKind = "mission_resolved"
	EventMissionCancelled     EventKind = "mission_cancelled"
	EventExpired              EventKind = "expired"
	EventReinforcementSpawned EventKind = "reinforcement_spawned"
	EventReinforcementRemoved EventKind = "reinforcement_removed"
	EventVictory              EventKind = "victory"
	EventCommandRejected      EventKind = "command_rejected"
	EventInconsistentSnapshot EventKind = "inconsistent_snapshot"
)

// Event is one published state change. Only the fields relevant to Kind are
// set.
type Event struct {
	Tick        Tick          `json:"tick"`
	Kind        EventKind     `json:"kind"`
	Zone        ZoneID        `json:"zone,omitempty"`
	Route       RouteID       `json:"route,omitempty"`
	Designation DesignationID `json:"designation,omitempty"`
	Mission     MissionID     `json:"mission,omitempty"`
	Unit        UnitID        `json:"unit,omitempty"`
	Faction     Faction       `json:"faction,omitempty"`
	Previous    Faction       `json:"previous,omitempty"`
	Amount      float64       `json:"amount,omitempty"`
	Reason      string        `json:"reason,omitempty"`
}
