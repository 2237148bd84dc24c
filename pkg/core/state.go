// pkg/core/state.go
package core

import "time"

// Session identifies one run of a mission.
type Session struct {
	ID          string    `json:"id"`
	MissionName string    `json:"missionName"`
	Layout      string    `json:"layout"`
	StartTime   time.Time `json:"startTime"`
	Version     string    `json:"version"`
}

// LatLon is a WGS84 coordinate.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ZoneView is the read-only projection of a zone for UI rendering.
type ZoneView struct {
	ID                 ZoneID   `json:"id"`
	Name               string   `json:"name"`
	Owner              Faction  `json:"owner"`
	Progress           float64  `json:"progress"`
	Threatened         bool     `json:"threatened"`
	Storage            float64  `json:"storage"`
	StorageCap         float64  `json:"storageCap"`
	Reserved           float64  `json:"reserved"`
	SupplyPercent      float64  `json:"supplyPercent"`
	StrengthMultiplier float64  `json:"strengthMultiplier"`
	Center             Position `json:"center"`
	Location           *LatLon  `json:"location,omitempty"`
}

// SupplyStatus aggregates supply per faction.
type SupplyStatus struct {
	Zones    int     `json:"zones"`
	Storage  float64 `json:"storage"`
	Capacity float64 `json:"capacity"`
	Percent  float64 `json:"percent"`
}

// MissionSnapshot is the answer to a state query.
type MissionSnapshot struct {
	Session      string                   `json:"session"`
	Tick         Tick                     `json:"tick"`
	Zones        []ZoneView               `json:"zones"`
	Routes       []SupplyRoute            `json:"routes"`
	Designations []Designation            `json:"designations"`
	FireMissions []FireMission            `json:"fireMissions"`
	Supply       map[Faction]SupplyStatus `json:"supply"`
	Victor       Faction                  `json:"victor,omitempty"`
}

// UploadMetadata describes an exported session file for upload.
type UploadMetadata struct {
	SessionID       string  `json:"sessionId"`
	MissionName     string  `json:"missionName"`
	Layout          string  `json:"layout"`
	Ticks           Tick    `json:"ticks"`
	SessionDuration float64 `json:"sessionDuration"` // seconds
	Victor          Faction `json:"victor,omitempty"`
	Tag             string  `json:"tag"`
}
