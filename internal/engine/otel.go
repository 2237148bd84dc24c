package engine

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fowlengine/missioncore/internal/engine"

type instruments struct {
	tickDuration metric.Float64Histogram
	rejected     metric.Int64Counter
	captured     metric.Int64Counter
	missions     metric.Int64Counter
}

func newInstruments() (*instruments, error) {
	m := otel.Meter(instrumentationName)
	var (
		in  instruments
		err error
	)

	in.tickDuration, err = m.Float64Histogram(
		"engine.tick.duration",
		metric.WithDescription("Wall time of one pipeline pass"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick duration histogram: %w", err)
	}

	in.rejected, err = m.Int64Counter(
		"engine.commands.rejected",
		metric.WithDescription("Commands rejected while applying a tick batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rejected counter: %w", err)
	}

	in.captured, err = m.Int64Counter(
		"engine.zones.captured",
		metric.WithDescription("Zone ownership flips"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating captured counter: %w", err)
	}

	in.missions, err = m.Int64Counter(
		"engine.missions.resolved",
		metric.WithDescription("Fire missions handed to the host"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating missions counter: %w", err)
	}

	return &in, nil
}
