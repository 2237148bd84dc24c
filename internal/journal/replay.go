package journal

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fowlengine/missioncore/internal/engine"
	"github.com/fowlengine/missioncore/pkg/core"
)

// ErrDiverged is returned when a replayed session stops matching its journal.
var ErrDiverged = errors.New("replay diverged from journal")

// Result summarises a replay.
type Result struct {
	Ticks    int
	Commands int
	Events   int
	Digest   string
	// Recorded is the digest the journal closed with. Empty when the
	// journal was never closed cleanly.
	Recorded string
}

// Match reports whether the replay reproduced the recorded event stream.
func (r Result) Match() bool {
	return r.Recorded != "" && r.Recorded == r.Digest
}

// Replay feeds the journal through eng, which must be freshly built from
// the same layout and configuration. Commands must receive the tickets they
// were recorded with and the running event digest must agree after every
// tick.
func Replay(ctx context.Context, r *Reader, eng *engine.Engine) (Result, error) {
	var (
		res    Result
		digest = NewDigest()
	)
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}

		switch e.Type {
		case EntryCommand:
			cmd, err := core.DecodeCommand(e.Kind, e.Command)
			if err != nil {
				return res, fmt.Errorf("ticket %d: %w", e.Ticket, err)
			}
			t, err := eng.Submit(cmd)
			if err != nil {
				return res, fmt.Errorf("%w: ticket %d rejected: %v", ErrDiverged, e.Ticket, err)
			}
			if t != e.Ticket {
				return res, fmt.Errorf("%w: command got ticket %d, recorded %d", ErrDiverged, t, e.Ticket)
			}
			res.Commands++
		case EntrySnapshot:
			if e.Snapshot == nil {
				return res, fmt.Errorf("snapshot entry for tick %d has no snapshot", e.Tick)
			}
			report, err := eng.Step(ctx, *e.Snapshot)
			if err != nil {
				return res, fmt.Errorf("replaying tick %d: %w", e.Tick, err)
			}
			if err := digest.Add(report.Events); err != nil {
				return res, err
			}
			res.Ticks++
		case EntryEvents:
			if got := digest.String(); got != e.Digest {
				return res, fmt.Errorf("%w at tick %d: digest %s, recorded %s", ErrDiverged, e.Tick, got, e.Digest)
			}
		case EntryDigest:
			res.Recorded = e.Digest
		}
	}

	res.Events = digest.Count()
	res.Digest = digest.String()
	return res, nil
}
