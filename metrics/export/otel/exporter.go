package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/sessionkit"
	"github.com/MrEthical07/sessionkit/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// instrumentationName scopes the meter taken from the global provider.
const instrumentationName = "github.com/MrEthical07/sessionkit"

type metricsSource interface {
	MetricsSnapshot() sessionkit.MetricsSnapshot
	AuditDropped() uint64
}

// series is one attribute set on a family instrument. The option is built
// once so collection does not allocate attribute sets.
type series struct {
	id   sessionkit.MetricID
	attr metric.ObserveOption
}

type family struct {
	instrument metric.Int64ObservableCounter
	series     []series
}

// Exporter publishes an Engine's metrics as observable instruments, one per
// counter family with the member told apart by attribute. It holds one
// callback registration until Close.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	families     []family
	latency      metric.Int64ObservableGauge
	latencyCount metric.Int64ObservableCounter
	buckets      []metric.ObserveOption
	auditDropped metric.Int64ObservableCounter
}

// NewExporter registers against meter and observes engine.
func NewExporter(meter metric.Meter, engine *sessionkit.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

// NewGlobalExporter registers against the global MeterProvider.
func NewGlobalExporter(engine *sessionkit.Engine) (*Exporter, error) {
	return NewExporter(otel.GetMeterProvider().Meter(instrumentationName), engine)
}

func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:   source,
		families: make([]family, 0, len(internaldefs.Families)),
	}
	observables := make([]metric.Observable, 0, len(internaldefs.Families)+3)

	for _, def := range internaldefs.Families {
		ins, err := meter.Int64ObservableCounter(def.Name,
			metric.WithDescription(def.Help),
			metric.WithUnit(def.Unit),
		)
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		f := family{instrument: ins, series: make([]series, 0, len(def.Members))}
		for _, m := range def.Members {
			f.series = append(f.series, series{
				id:   m.ID,
				attr: metric.WithAttributes(attribute.String(def.Key, m.Value)),
			})
		}
		e.families = append(e.families, f)
		observables = append(observables, ins)
	}

	// Observable instruments have no histogram kind, so the rotate latency
	// goes out as cumulative bucket gauges keyed by "le".
	latency, err := meter.Int64ObservableGauge("sessionkit.rotate.latency.buckets",
		metric.WithDescription("Cumulative rotate latency samples at or below each bound, in seconds."),
		metric.WithUnit("{rotation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create latency buckets: %w", err)
	}
	latencyCount, err := meter.Int64ObservableCounter("sessionkit.rotate.latency.count",
		metric.WithDescription("Rotate latency samples recorded."),
		metric.WithUnit("{rotation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create latency count: %w", err)
	}
	e.latency, e.latencyCount = latency, latencyCount
	for _, le := range internaldefs.HistogramBoundLabels {
		e.buckets = append(e.buckets, metric.WithAttributes(attribute.String("le", le)))
	}

	auditDropped, err := meter.Int64ObservableCounter("sessionkit.audit.dropped",
		metric.WithDescription("Audit events dropped under dispatcher backpressure."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = auditDropped
	observables = append(observables, latency, latencyCount, auditDropped)

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *Exporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, f := range e.families {
		for _, s := range f.series {
			observer.ObserveInt64(f.instrument, int64(snapshot.Counters[s.id]), s.attr)
		}
	}

	// Latency is only present when histograms are enabled.
	if raw, ok := snapshot.Histograms[sessionkit.MetricRotateLatency]; ok {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, opt := range e.buckets {
			observer.ObserveInt64(e.latency, int64(cumulative[i]), opt)
		}
		observer.ObserveInt64(e.latencyCount, int64(cumulative[len(cumulative)-1]))
	}

	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback. The instruments stay with the meter.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
