package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&TickRecord{},
	&ZoneState{},
	&Event{},
	&EnginePerformance{},
}

////////////////////////
// SESSION MODELS
////////////////////////

// Session is one run of a mission layout.
type Session struct {
	gorm.Model
	SessionID   string       `json:"sessionId" gorm:"size:64;uniqueIndex"`
	MissionName string       `json:"missionName" gorm:"size:200"`
	Layout      string       `json:"layout" gorm:"size:255"`
	Version     string       `json:"version" gorm:"size:64"`
	StartTime   time.Time    `json:"startTime" gorm:"index:idx_session_start"`
	EndTime     sql.NullTime `json:"endTime"`
	Victor      string       `json:"victor" gorm:"size:16"`
	LastTick    uint64       `json:"lastTick"`
}

func (*Session) TableName() string {
	return "sessions"
}

// FlowColumns mirrors one logistics recompute.
type FlowColumns struct {
	Produced  float64 `json:"produced"`
	Delivered float64 `json:"delivered"`
	Ordered   float64 `json:"ordered"`
	Consumed  float64 `json:"consumed"`
	Unmet     float64 `json:"unmet"`
	Decayed   float64 `json:"decayed"`
}

// TickRecord is the summary of one pipeline pass.
type TickRecord struct {
	ID          uint           `json:"id" gorm:"primarykey"`
	SessionID   uint           `json:"sessionId" gorm:"index:idx_tick_session_tick,priority:1"`
	Session     Session        `json:"-" gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Tick        uint64         `json:"tick" gorm:"index:idx_tick_session_tick,priority:2"`
	Time        time.Time      `json:"time"`
	Units       int            `json:"units"`
	Skipped     int            `json:"skipped"`
	Commands    int            `json:"commands"`
	Rejected    int            `json:"rejected"`
	Flips       int            `json:"flips"`
	EventCount  int            `json:"eventCount"`
	DurationUS  int64          `json:"durationUs"`
	Flow        FlowColumns    `json:"flow" gorm:"embedded;embeddedPrefix:flow_"`
	Interdicted datatypes.JSON `json:"interdicted"`
}

func (*TickRecord) TableName() string {
	return "ticks"
}

// ZoneState is the projection of one zone at one tick.
type ZoneState struct {
	ID                 uint            `json:"id" gorm:"primarykey"`
	SessionID          uint            `json:"sessionId" gorm:"index:idx_zonestate_session_zone,priority:1"`
	Session            Session         `json:"-" gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	ZoneID             uint32          `json:"zoneId" gorm:"index:idx_zonestate_session_zone,priority:2"`
	Tick               uint64          `json:"tick" gorm:"index:idx_zonestate_tick"`
	Name               string          `json:"name" gorm:"size:127"`
	Owner              string          `json:"owner" gorm:"size:16"`
	Progress           float64         `json:"progress"`
	Threatened         bool            `json:"threatened"`
	Storage            float64         `json:"storage"`
	StorageCap         float64         `json:"storageCap"`
	Reserved           float64         `json:"reserved"`
	SupplyPercent      float64         `json:"supplyPercent"`
	StrengthMultiplier float64         `json:"strengthMultiplier"`
	CenterX            float64         `json:"centerX"`
	CenterY            float64         `json:"centerY"`
	Latitude           sql.NullFloat64 `json:"latitude"`
	Longitude          sql.NullFloat64 `json:"longitude"`
}

func (*ZoneState) TableName() string {
	return "zone_states"
}

// Event is one published state change.
type Event struct {
	ID            uint    `json:"id" gorm:"primarykey"`
	SessionID     uint    `json:"sessionId" gorm:"index:idx_event_session_tick,priority:1"`
	Session       Session `json:"-" gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Tick          uint64  `json:"tick" gorm:"index:idx_event_session_tick,priority:2"`
	Seq           int     `json:"seq"` // emission order within the tick
	Kind          string  `json:"kind" gorm:"size:32;index:idx_event_kind"`
	ZoneID        uint32  `json:"zoneId"`
	RouteID       uint32  `json:"routeId"`
	DesignationID uint32  `json:"designationId"`
	MissionID     uint32  `json:"missionId"`
	UnitID        uint32  `json:"unitId"`
	Faction       string  `json:"faction" gorm:"size:16"`
	Previous      string  `json:"previous" gorm:"size:16"`
	Amount        float64 `json:"amount"`
	Reason        string  `json:"reason" gorm:"size:255"`
}

func (*Event) TableName() string {
	return "events"
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// WriteQueueLengths is the model for the write queue lengths
type WriteQueueLengths struct {
	Ticks      uint16 `json:"ticks"`
	ZoneStates uint16 `json:"zoneStates"`
	Events     uint16 `json:"events"`
}

// EnginePerformance is the model for engine and writer performance metrics
type EnginePerformance struct {
	Time                time.Time         `json:"time" gorm:"index:idx_time"`
	SessionID           uint              `json:"sessionId" gorm:"index:idx_engineperformance_session_id"`
	Session             Session           `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	LastTick            uint64            `json:"lastTick"`
	LastTickDurationUS  int64             `json:"lastTickDurationUs"`
	WriteQueueLengths   WriteQueueLengths `json:"writeQueueLengths" gorm:"embedded;embeddedPrefix:writequeue_"`
	LastWriteDurationMs float32           `json:"lastWriteDurationMs"`
}

func (*EnginePerformance) TableName() string {
	return "engine_performances"
}
