// Package command queues external commands between ticks and applies them
// as one batch at the start of the next tick.
package command

import (
	"log/slog"
	"runtime/debug"
	"sort"
	"sync/atomic"

	"github.com/fowlengine/missioncore/internal/firesupport"
	"github.com/fowlengine/missioncore/internal/logistics"
	"github.com/fowlengine/missioncore/internal/mission"
	"github.com/fowlengine/missioncore/internal/queue"
	"github.com/fowlengine/missioncore/internal/snapshot"
	"github.com/fowlengine/missioncore/pkg/core"
)

type pending struct {
	ticket core.Ticket
	cmd    core.Command
}

// Batch is the outcome of applying one tick's commands.
type Batch struct {
	Results []core.CommandResult
	// Injected is the extra presence weight RequestCapture added for this
	// tick, per zone and faction.
	Injected map[core.ZoneID]map[core.Faction]float64
}

// Rejected counts the failed results.
func (b Batch) Rejected() int {
	n := 0
	for _, r := range b.Results {
		if !r.OK() {
			n++
		}
	}
	return n
}

// Dispatcher validates commands on submission and routes them to the
// component that owns the state they touch.
type Dispatcher struct {
	registry *mission.Registry
	graph    *logistics.Graph
	fire     *firesupport.Coordinator
	logger   *slog.Logger

	queue *queue.Queue[pending]
	next  atomic.Uint64
}

// New creates a dispatcher over the session's components.
func New(reg *mission.Registry, graph *logistics.Graph, fire *firesupport.Coordinator, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: reg,
		graph:    graph,
		fire:     fire,
		logger:   logger,
		queue:    queue.New[pending](),
	}
}

// Submit runs the stateless checks and queues the command for the next
// tick. Malformed commands never get a ticket.
func (d *Dispatcher) Submit(cmd core.Command) (core.Ticket, error) {
	if cmd == nil {
		return 0, core.Invalid("", "no command given")
	}
	if err := cmd.Validate(); err != nil {
		return 0, err
	}
	t := core.Ticket(d.next.Add(1))
	d.queue.Push(pending{ticket: t, cmd: cmd})
	return t, nil
}

// Pending is the number of commands waiting for the next tick.
func (d *Dispatcher) Pending() int {
	return d.queue.Len()
}

// Discard drops every queued command.
func (d *Dispatcher) Discard() {
	d.queue.Clear()
}

// Apply drains the queue and applies each command in ticket order. A failed
// command leaves no trace but its result and a CommandRejected event.
func (d *Dispatcher) Apply(tc *core.TickContext, w *snapshot.World) Batch {
	items := d.queue.GetAndEmpty()
	sort.Slice(items, func(i, j int) bool { return items[i].ticket < items[j].ticket })

	batch := Batch{
		Results:  make([]core.CommandResult, 0, len(items)),
		Injected: make(map[core.ZoneID]map[core.Faction]float64),
	}
	for _, p := range items {
		res := d.apply(tc, w, p, batch.Injected)
		if res.Err != nil {
			d.logger.Info("command rejected",
				"tick", tc.Tick,
				"ticket", uint64(res.Ticket),
				"command", string(res.Kind),
				"kind", res.Err.Kind.String(),
				"reason", res.Err.Reason)
			tc.Emit(core.Event{
				Kind:        core.EventCommandRejected,
				Designation: res.Designation,
				Mission:     res.Mission,
				Reason:      res.Err.Error(),
			})
		}
		batch.Results = append(batch.Results, res)
	}
	return batch
}

func (d *Dispatcher) apply(tc *core.TickContext, w *snapshot.World, p pending, injected map[core.ZoneID]map[core.Faction]float64) (res core.CommandResult) {
	kind := p.cmd.Kind()
	res = core.CommandResult{Ticket: p.ticket, Kind: kind}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command panicked", "tick", tc.Tick, "command", string(kind), "panic", r, "stack", string(debug.Stack()))
			res.Err = &core.CommandError{Kind: core.KindInconsistent, Command: kind, Reason: "internal error"}
		}
	}()

	switch c := p.cmd.(type) {
	case core.RequestCapture:
		res.Err = d.capture(c, injected)
	case core.RequestResupply:
		res.Err = d.graph.ScheduleResupply(c)
	case core.SubmitDesignation:
		res.Designation, res.Mission, res.Err = d.fire.Designate(tc, w, c)
	case core.CancelFireMission:
		res.Mission = c.Mission
		res.Err = d.fire.RequestCancel(c)
	case core.CancelDesignation:
		res.Designation = c.Designation
		res.Err = d.fire.CancelDesignation(c)
	case core.AdjustFire:
		res.Mission = c.Mission
		res.Err = d.fire.Adjust(w, c)
	default:
		res.Err = core.Invalid(kind, "unsupported command %T", c)
	}
	return res
}

// capture is a validation hook only; ownership still follows presence.
func (d *Dispatcher) capture(c core.RequestCapture, injected map[core.ZoneID]map[core.Faction]float64) *core.CommandError {
	if d.registry.Zone(c.Zone) == nil {
		return core.Invalid(c.Kind(), "unknown zone %d", c.Zone)
	}
	if c.Weight == 0 {
		return nil
	}
	if injected[c.Zone] == nil {
		injected[c.Zone] = make(map[core.Faction]float64)
	}
	injected[c.Zone][c.Faction] += c.Weight
	return nil
}
