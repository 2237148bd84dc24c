// Package engine runs the per-tick pipeline: snapshot translation, command
// batch, ownership, logistics and fire support.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/fowlengine/missioncore/internal/command"
	"github.com/fowlengine/missioncore/internal/config"
	"github.com/fowlengine/missioncore/internal/firesupport"
	"github.com/fowlengine/missioncore/internal/geo"
	"github.com/fowlengine/missioncore/internal/logistics"
	"github.com/fowlengine/missioncore/internal/mission"
	"github.com/fowlengine/missioncore/internal/ownership"
	"github.com/fowlengine/missioncore/internal/snapshot"
	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/fowlengine/missioncore/pkg/hostapi"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrNoHost is returned by Tick when the engine was built without a host to
// pull snapshots from.
var ErrNoHost = errors.New("engine has no host")

// Config gathers the tunables of every pipeline stage.
type Config struct {
	Ownership   config.OwnershipConfig
	Logistics   config.LogisticsConfig
	FireSupport config.FireSupportConfig
	Victory     config.VictoryConfig
}

// Journal receives everything needed to replay a session.
type Journal interface {
	RecordCommand(t core.Ticket, cmd core.Command) error
	RecordSnapshot(s hostapi.Snapshot) error
	RecordEvents(events []core.Event) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithProjector adds WGS84 locations to state queries.
func WithProjector(p *geo.Projector) Option {
	return func(e *Engine) {
		e.projector = p
	}
}

// WithJournal records submitted commands, snapshots and events.
func WithJournal(j Journal) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

// Engine owns one session's state. Submit, Tick, Step and QueryState may be
// called from several goroutines; a tick always runs to completion before
// the next call is served.
type Engine struct {
	mu sync.Mutex

	session  core.Session
	registry *mission.Registry
	host     hostapi.Host

	adapter    *snapshot.Adapter
	ownership  *ownership.Engine
	graph      *logistics.Graph
	reinforcer *logistics.Reinforcer
	fire       *firesupport.Coordinator
	commands   *command.Dispatcher

	victory   config.VictoryConfig
	victor    core.Faction
	lastTick  core.Tick
	projector *geo.Projector
	journal   Journal
	logger    *slog.Logger
	metrics   *instruments
}

// New wires a session's pipeline over reg. host may be nil when snapshots
// are fed through Step, as replay does.
func New(session core.Session, reg *mission.Registry, host hostapi.Host, cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		session:  session,
		registry: reg,
		host:     host,
		victory:  cfg.Victory,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	own, err := ownership.New(cfg.Ownership, reg, e.logger)
	if err != nil {
		return nil, fmt.Errorf("ownership engine: %w", err)
	}
	e.ownership = own

	e.adapter = snapshot.NewAdapter(reg, e.logger)
	e.graph = logistics.NewGraph(cfg.Logistics, reg, e.logger)
	if cfg.Logistics.Reinforcements && host != nil {
		e.reinforcer = logistics.NewReinforcer(reg, e.graph, host, e.adapter.Units(), e.logger)
	}
	e.fire = firesupport.New(cfg.FireSupport, reg, e.graph, host, e.logger)
	e.commands = command.New(reg, e.graph, e.fire, e.logger)

	e.metrics, err = newInstruments()
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Session returns the session record.
func (e *Engine) Session() core.Session {
	return e.session
}

// LastTick is the tick of the most recent pipeline pass.
func (e *Engine) LastTick() core.Tick {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastTick
}

// Units resolves host unit names to the IDs commands refer to.
func (e *Engine) Units() *snapshot.Units {
	return e.adapter.Units()
}

// Registry exposes zone and route lookups by name.
func (e *Engine) Registry() *mission.Registry {
	return e.registry
}

// Submit queues a command for the next tick.
func (e *Engine) Submit(cmd core.Command) (core.Ticket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.commands.Submit(cmd)
	if err != nil {
		return 0, err
	}
	if e.journal != nil {
		if jerr := e.journal.RecordCommand(t, cmd); jerr != nil {
			e.logger.Warn("failed to journal command", "ticket", uint64(t), "error", jerr)
		}
	}
	return t, nil
}

// Tick pulls a snapshot from the host and runs one pipeline pass.
func (e *Engine) Tick(ctx context.Context) (*core.TickReport, error) {
	if e.host == nil {
		return nil, ErrNoHost
	}
	s, err := e.host.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("pulling snapshot: %w", err)
	}
	return e.Step(ctx, s)
}

// Step runs one pipeline pass over s.
func (e *Engine) Step(ctx context.Context, s hostapi.Snapshot) (*core.TickReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	tc := core.NewTickContext(e.session.ID, s.Tick)

	w, err := e.adapter.Translate(tc, s)
	if err != nil {
		return nil, err
	}
	if e.journal != nil {
		if jerr := e.journal.RecordSnapshot(s); jerr != nil {
			e.logger.Warn("failed to journal snapshot", "tick", s.Tick, "error", jerr)
		}
	}

	var (
		batch  command.Batch
		deltas []core.OwnershipDelta
		flow   core.FlowResult
	)
	e.stage(tc, "supply", func() { e.graph.BeginTick(tc, w.Blocked) })
	e.stage(tc, "commands", func() { batch = e.commands.Apply(tc, w) })
	e.stage(tc, "ownership", func() { deltas = e.ownership.Run(tc, w, batch.Injected) })
	e.stage(tc, "logistics", func() { flow = e.graph.Recompute(tc, deltas) })
	if e.reinforcer != nil {
		e.stage(tc, "reinforcements", func() { e.reinforcer.Run(ctx, tc, w, deltas) })
	}
	e.stage(tc, "firesupport", func() { e.fire.Run(ctx, tc, w) })
	e.checkVictory(tc)

	e.lastTick = s.Tick

	events := tc.Events()
	if e.journal != nil {
		if jerr := e.journal.RecordEvents(events); jerr != nil {
			e.logger.Warn("failed to journal events", "tick", s.Tick, "error", jerr)
		}
	}

	elapsed := time.Since(start)
	e.record(ctx, batch, events, elapsed)

	return &core.TickReport{
		Session:    e.session.ID,
		Tick:       s.Tick,
		Units:      w.Len(),
		Skipped:    w.Skipped,
		Results:    batch.Results,
		Ownership:  deltas,
		Flow:       flow,
		Events:     events,
		DurationUS: elapsed.Microseconds(),
	}, nil
}

// stage runs one pipeline step. A panic is logged and the step becomes a
// no-op for the tick.
func (e *Engine) stage(tc *core.TickContext, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("pipeline stage panicked",
				"stage", name,
				"tick", tc.Tick,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (e *Engine) record(ctx context.Context, batch command.Batch, events []core.Event, elapsed time.Duration) {
	e.metrics.tickDuration.Record(ctx, float64(elapsed.Microseconds())/1000)
	if n := batch.Rejected(); n > 0 {
		e.metrics.rejected.Add(ctx, int64(n))
	}
	for _, ev := range events {
		switch ev.Kind {
		case core.EventZoneCaptured:
			e.metrics.captured.Add(ctx, 1, metric.WithAttributes(attribute.String("faction", ev.Faction.String())))
		case core.EventMissionResolved:
			e.metrics.missions.Add(ctx, 1, metric.WithAttributes(attribute.String("faction", ev.Faction.String())))
		}
	}
}

// checkVictory emits a single Victory event once a faction holds the
// configured share of all zones.
func (e *Engine) checkVictory(tc *core.TickContext) {
	fraction := e.victory.MapOwnedFraction
	if fraction <= 0 || e.victor != core.FactionNeutral {
		return
	}
	zones := e.registry.Zones()
	if len(zones) == 0 {
		return
	}
	owned := make(map[core.Faction]int)
	for _, z := range zones {
		if z.Owner != core.FactionNeutral {
			owned[z.Owner]++
		}
	}
	for _, f := range core.Factions {
		if float64(owned[f]) >= fraction*float64(len(zones)) {
			e.victor = f
			e.logger.Info("victory", "tick", tc.Tick, "faction", f.String(), "zones", owned[f])
			tc.Emit(core.Event{Kind: core.EventVictory, Faction: f, Amount: fraction})
			return
		}
	}
}

// QueryState returns a copy of the session state for menus and storage.
func (e *Engine) QueryState() core.MissionSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	zones := e.registry.Zones()
	out := core.MissionSnapshot{
		Session:      e.session.ID,
		Tick:         e.lastTick,
		Zones:        make([]core.ZoneView, 0, len(zones)),
		Routes:       make([]core.SupplyRoute, 0, len(e.registry.Routes())),
		Designations: e.fire.ActiveDesignations(),
		FireMissions: e.fire.OpenMissions(),
		Supply:       e.graph.SupplyStatus(),
		Victor:       e.victor,
	}
	for _, z := range zones {
		center := z.Boundary.Center
		if shape := e.registry.Shape(z.ID); shape != nil {
			center = shape.Center()
		}
		out.Zones = append(out.Zones, core.ZoneView{
			ID:                 z.ID,
			Name:               z.Name,
			Owner:              z.Owner,
			Progress:           z.Progress,
			Threatened:         z.Threatened,
			Storage:            z.Storage,
			StorageCap:         z.StorageCap,
			Reserved:           z.Reserved,
			SupplyPercent:      z.FillRatio() * 100,
			StrengthMultiplier: z.StrengthMultiplier,
			Center:             center,
			Location:           e.projector.LatLon(center),
		})
	}
	for _, r := range e.registry.Routes() {
		out.Routes = append(out.Routes, *r)
	}
	return out
}

// Close drops commands that never reached a tick.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n := e.commands.Pending(); n > 0 {
		e.logger.Info("discarding unapplied commands", "count", n)
	}
	e.commands.Discard()
}
