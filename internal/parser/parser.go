// Package parser converts the string arguments a scripting host passes to
// extension calls into snapshots, commands and mission parameters.
package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync/atomic"

	"github.com/fowlengine/missioncore/internal/mission"
	"github.com/fowlengine/missioncore/internal/snapshot"
)

// ErrInvalidArgs is returned when a call carries the wrong number or shape
// of arguments.
var ErrInvalidArgs = errors.New("invalid arguments")

// maxExactWhole is the largest whole number a float64 holds exactly.
const maxExactWhole = 1 << 53

// hostWhole reads a whole number the host may have written in float form
// ("32" or "32.00"); scripting hosts often have no integer type.
func hostWhole(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if f != math.Trunc(f) || math.Abs(f) > maxExactWhole {
		return 0, fmt.Errorf("%q is not a whole number", s)
	}
	return int64(f), nil
}

// hostCount is hostWhole for ticks and IDs, which cannot be negative.
func hostCount(s string) (uint64, error) {
	v, err := hostWhole(s)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("%q is negative", s)
	}
	return uint64(v), nil
}

func needArgs(data []string, n int, what string) error {
	if len(data) < n {
		return fmt.Errorf("%w: %s needs %d arguments, got %d", ErrInvalidArgs, what, n, len(data))
	}
	return nil
}

// names resolves host-facing names to the IDs of the running session.
type names struct {
	units    *snapshot.Units
	registry *mission.Registry
}

// Parser provides pure []string -> domain struct conversion. Commands refer
// to units, zones and routes by name; SetSession supplies the lookups.
type Parser struct {
	logger *slog.Logger
	names  atomic.Pointer[names]

	// Static config set at creation time
	version string
}

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger, version string) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		logger:  logger,
		version: version,
	}
}

// SetSession sets the lookups used to resolve names in commands.
func (p *Parser) SetSession(units *snapshot.Units, reg *mission.Registry) {
	p.names.Store(&names{units: units, registry: reg})
}

// ClearSession drops the lookups when a mission ends.
func (p *Parser) ClearSession() {
	p.names.Store(nil)
}
