// pkg/core/tick.go
package core

// TickContext is threaded through every pipeline stage of one tick. It
// replaces any notion of a global current tick and collects the events the
// stages emit, in emission order.
type TickContext struct {
	Tick    Tick
	Session string

	events []Event
}

// NewTickContext starts the context for one pipeline pass.
func NewTickContext(session string, tick Tick) *TickContext {
	return &TickContext{Tick: tick, Session: session}
}

// Emit records an event stamped with the current tick.
func (c *TickContext) Emit(e Event) {
	e.Tick = c.Tick
	c.events = append(c.events, e)
}

// Events returns the events emitted so far.
func (c *TickContext) Events() []Event {
	return c.events
}

// OwnershipDelta is the outcome of evaluating one zone for one tick.
// Contested is the transient label; it never becomes an owner.
type OwnershipDelta struct {
	Zone             ZoneID  `json:"zone"`
	PreviousOwner    Faction `json:"previousOwner"`
	Owner            Faction `json:"owner"`
	PreviousProgress float64 `json:"previousProgress"`
	Progress         float64 `json:"progress"`
	Contesting       Faction `json:"contesting,omitempty"`
	Streak           int     `json:"streak,omitempty"`
	Contested        bool    `json:"contested,omitempty"`
	Capturing        bool    `json:"capturing,omitempty"`
	Frozen           bool    `json:"frozen,omitempty"`
	Flipped          bool    `json:"flipped,omitempty"`
}

// FlowResult summarises one logistics recompute.
type FlowResult struct {
	Produced    float64   `json:"produced"`
	Delivered   float64   `json:"delivered"`
	Ordered     float64   `json:"ordered"`
	Consumed    float64   `json:"consumed"`
	Unmet       float64   `json:"unmet"`
	Decayed     float64   `json:"decayed"`
	Interdicted []RouteID `json:"interdicted,omitempty"`
}

// TickReport is everything one pipeline pass produced.
type TickReport struct {
	Session    string           `json:"session"`
	Tick       Tick             `json:"tick"`
	Units      int              `json:"units"`
	Skipped    int              `json:"skipped"`
	Results    []CommandResult  `json:"results,omitempty"`
	Ownership  []OwnershipDelta `json:"ownership,omitempty"`
	Flow       FlowResult       `json:"flow"`
	Events     []Event          `json:"events,omitempty"`
	DurationUS int64            `json:"durationUs"`
}
