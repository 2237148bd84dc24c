package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fowlengine/missioncore/internal/dispatcher"

// callMetrics counts host calls per command. All instruments come from the
// global meter and are no-ops until a meter provider is installed.
type callMetrics struct {
	queued    metric.Int64ObservableGauge
	duration  metric.Float64Histogram
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter
}

func newCallMetrics(queueLen func() map[string]int) (*callMetrics, error) {
	m := otel.Meter(instrumentationName)
	var (
		cm  callMetrics
		err error
	)

	if cm.queued, err = m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Host calls waiting in a handler queue")); err != nil {
		return nil, fmt.Errorf("queue gauge: %w", err)
	}
	if _, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for cmd, n := range queueLen() {
			o.ObserveInt64(cm.queued, int64(n), commandAttr(cmd))
		}
		return nil
	}, cm.queued); err != nil {
		return nil, fmt.Errorf("queue gauge callback: %w", err)
	}

	if cm.duration, err = m.Float64Histogram("dispatcher.call.duration",
		metric.WithDescription("Time the host waited on a synchronous call"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("duration histogram: %w", err)
	}
	if cm.processed, err = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Queued host calls handled by a worker")); err != nil {
		return nil, fmt.Errorf("processed counter: %w", err)
	}
	if cm.dropped, err = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Host calls refused because the queue was full")); err != nil {
		return nil, fmt.Errorf("dropped counter: %w", err)
	}
	if cm.failed, err = m.Int64Counter("dispatcher.events.failed",
		metric.WithDescription("Host calls whose handler returned an error")); err != nil {
		return nil, fmt.Errorf("failed counter: %w", err)
	}
	return &cm, nil
}

func commandAttr(command string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("command", command))
}

func (cm *callMetrics) call(command string, start time.Time, err error) {
	opt := commandAttr(command)
	cm.duration.Record(context.Background(), float64(time.Since(start).Microseconds())/1000, opt)
	if err != nil {
		cm.failed.Add(context.Background(), 1, opt)
	}
}
