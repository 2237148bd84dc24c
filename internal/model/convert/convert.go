// Package convert maps core engine types to their GORM models and back.
package convert

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/fowlengine/missioncore/internal/model"
	"github.com/fowlengine/missioncore/pkg/core"
	"gorm.io/datatypes"
)

// SessionToModel converts a core.Session to its GORM row.
func SessionToModel(s core.Session) model.Session {
	return model.Session{
		SessionID:   s.ID,
		MissionName: s.MissionName,
		Layout:      s.Layout,
		Version:     s.Version,
		StartTime:   s.StartTime,
	}
}

// SessionToCore converts a stored session back to a core.Session.
func SessionToCore(s model.Session) core.Session {
	return core.Session{
		ID:          s.SessionID,
		MissionName: s.MissionName,
		Layout:      s.Layout,
		Version:     s.Version,
		StartTime:   s.StartTime,
	}
}

// TickToModel summarises a tick report. SessionID is stamped by the writer.
func TickToModel(r *core.TickReport, at time.Time) model.TickRecord {
	rec := model.TickRecord{
		Tick:       uint64(r.Tick),
		Time:       at,
		Units:      r.Units,
		Skipped:    r.Skipped,
		Commands:   len(r.Results),
		EventCount: len(r.Events),
		DurationUS: r.DurationUS,
		Flow: model.FlowColumns{
			Produced:  r.Flow.Produced,
			Delivered: r.Flow.Delivered,
			Ordered:   r.Flow.Ordered,
			Consumed:  r.Flow.Consumed,
			Unmet:     r.Flow.Unmet,
			Decayed:   r.Flow.Decayed,
		},
	}
	for _, res := range r.Results {
		if !res.OK() {
			rec.Rejected++
		}
	}
	for _, d := range r.Ownership {
		if d.Flipped {
			rec.Flips++
		}
	}
	if len(r.Flow.Interdicted) > 0 {
		if raw, err := json.Marshal(r.Flow.Interdicted); err == nil {
			rec.Interdicted = datatypes.JSON(raw)
		}
	}
	return rec
}

// ZoneToModel converts a zone projection at tick.
func ZoneToModel(tick core.Tick, z core.ZoneView) model.ZoneState {
	zs := model.ZoneState{
		ZoneID:             uint32(z.ID),
		Tick:               uint64(tick),
		Name:               z.Name,
		Owner:              z.Owner.String(),
		Progress:           z.Progress,
		Threatened:         z.Threatened,
		Storage:            z.Storage,
		StorageCap:         z.StorageCap,
		Reserved:           z.Reserved,
		SupplyPercent:      z.SupplyPercent,
		StrengthMultiplier: z.StrengthMultiplier,
		CenterX:            z.Center.X,
		CenterY:            z.Center.Y,
	}
	if z.Location != nil {
		zs.Latitude = sql.NullFloat64{Float64: z.Location.Lat, Valid: true}
		zs.Longitude = sql.NullFloat64{Float64: z.Location.Lon, Valid: true}
	}
	return zs
}

// ZoneToCore converts a stored zone state back to its projection.
func ZoneToCore(zs model.ZoneState) core.ZoneView {
	owner, _ := core.ParseFaction(zs.Owner)
	z := core.ZoneView{
		ID:                 core.ZoneID(zs.ZoneID),
		Name:               zs.Name,
		Owner:              owner,
		Progress:           zs.Progress,
		Threatened:         zs.Threatened,
		Storage:            zs.Storage,
		StorageCap:         zs.StorageCap,
		Reserved:           zs.Reserved,
		SupplyPercent:      zs.SupplyPercent,
		StrengthMultiplier: zs.StrengthMultiplier,
		Center:             core.Position{X: zs.CenterX, Y: zs.CenterY},
	}
	if zs.Latitude.Valid && zs.Longitude.Valid {
		z.Location = &core.LatLon{Lat: zs.Latitude.Float64, Lon: zs.Longitude.Float64}
	}
	return z
}

// EventToModel converts an event; seq is its position in the tick's stream.
func EventToModel(e core.Event, seq int) model.Event {
	m := model.Event{
		Tick:          uint64(e.Tick),
		Seq:           seq,
		Kind:          string(e.Kind),
		ZoneID:        uint32(e.Zone),
		RouteID:       uint32(e.Route),
		DesignationID: uint32(e.Designation),
		MissionID:     uint32(e.Mission),
		UnitID:        uint32(e.Unit),
		Amount:        e.Amount,
		Reason:        e.Reason,
	}
	if e.Faction != core.FactionNeutral {
		m.Faction = e.Faction.String()
	}
	if e.Previous != core.FactionNeutral {
		m.Previous = e.Previous.String()
	}
	return m
}

// EventToCore converts a stored event back to a core.Event.
func EventToCore(m model.Event) core.Event {
	faction, _ := core.ParseFaction(m.Faction)
	previous, _ := core.ParseFaction(m.Previous)
	return core.Event{
		Tick:        core.Tick(m.Tick),
		Kind:        core.EventKind(m.Kind),
		Zone:        core.ZoneID(m.ZoneID),
		Route:       core.RouteID(m.RouteID),
		Designation: core.DesignationID(m.DesignationID),
		Mission:     core.MissionID(m.MissionID),
		Unit:        core.UnitID(m.UnitID),
		Faction:     faction,
		Previous:    previous,
		Amount:      m.Amount,
		Reason:      m.Reason,
	}
}
