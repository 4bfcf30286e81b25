package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds every metric instrument the stream worker emits.
type Metrics struct {
	DispatchDuration metric.Float64Histogram
	DispatchTotal    metric.Int64Counter
	DispatchErrors   metric.Int64Counter

	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	EventsAppended metric.Int64Counter
	AppendFailures metric.Int64Counter

	PermitsOutstanding metric.Int64UpDownCounter
	PermitsGranted     metric.Int64Counter
}

// NewMetrics creates every metric instrument on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.DispatchDuration, err = meter.Float64Histogram(
		"axoncmd.dispatch.duration",
		metric.WithDescription("Command dispatch duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating dispatch.duration: %w", err)
	}

	if m.DispatchTotal, err = meter.Int64Counter(
		"axoncmd.dispatch.total",
		metric.WithDescription("Total commands dispatched"),
	); err != nil {
		return nil, fmt.Errorf("creating dispatch.total: %w", err)
	}

	if m.DispatchErrors, err = meter.Int64Counter(
		"axoncmd.dispatch.errors",
		metric.WithDescription("Total command dispatch errors"),
	); err != nil {
		return nil, fmt.Errorf("creating dispatch.errors: %w", err)
	}

	if m.CacheHits, err = meter.Int64Counter(
		"axoncmd.cache.hits",
		metric.WithDescription("Projection cache hits"),
	); err != nil {
		return nil, fmt.Errorf("creating cache.hits: %w", err)
	}

	if m.CacheMisses, err = meter.Int64Counter(
		"axoncmd.cache.misses",
		metric.WithDescription("Projection cache misses requiring a replay"),
	); err != nil {
		return nil, fmt.Errorf("creating cache.misses: %w", err)
	}

	if m.EventsAppended, err = meter.Int64Counter(
		"axoncmd.events.appended",
		metric.WithDescription("Total events appended to the event store"),
	); err != nil {
		return nil, fmt.Errorf("creating events.appended: %w", err)
	}

	if m.AppendFailures, err = meter.Int64Counter(
		"axoncmd.events.append_failures",
		metric.WithDescription("Total failed append attempts, including OCC conflicts"),
	); err != nil {
		return nil, fmt.Errorf("creating events.append_failures: %w", err)
	}

	if m.PermitsOutstanding, err = meter.Int64UpDownCounter(
		"axoncmd.flowcontrol.permits_outstanding",
		metric.WithDescription("Command permits currently granted to the server but not yet consumed"),
	); err != nil {
		return nil, fmt.Errorf("creating flowcontrol.permits_outstanding: %w", err)
	}

	if m.PermitsGranted, err = meter.Int64Counter(
		"axoncmd.flowcontrol.permits_granted",
		metric.WithDescription("Total permits granted via FlowControl messages"),
	); err != nil {
		return nil, fmt.Errorf("creating flowcontrol.permits_granted: %w", err)
	}

	return m, nil
}
