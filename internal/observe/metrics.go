// Package observe holds the OpenTelemetry instruments recorded by the capture
// and playback engines.
//
// Tests should build a private [Metrics] with [NewMetrics] and a
// ManualReader-backed provider instead of using [DefaultMetrics]. A nil
// *Metrics is valid and records nothing, so components can run without
// observability wired in.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/petems/talkback"

// Metrics holds all instruments. The OTel types handle their own
// synchronisation.
type Metrics struct {
	// FramesCaptured counts frames fanned out by a source.
	FramesCaptured metric.Int64Counter

	// FanoutDuration tracks how long all data listeners took for one frame.
	FanoutDuration metric.Float64Histogram

	// FramesPlayed counts frames fully written to a playback device.
	FramesPlayed metric.Int64Counter

	// BytesPlayed counts PCM bytes written to a playback device.
	BytesPlayed metric.Int64Counter

	// Underruns counts write failures handed to Device.Recover.
	Underruns metric.Int64Counter

	// RecoveryFailures counts fatal recover attempts.
	RecoveryFailures metric.Int64Counter

	// QueueDepth tracks frames waiting in playback queues.
	QueueDepth metric.Int64UpDownCounter

	// ActiveStreams tracks running sources and sinks. Use with attribute:
	//   attribute.String("component", "source"|"sink")
	ActiveStreams metric.Int64UpDownCounter
}

// fanoutBuckets are in seconds; listeners should finish well inside one
// frame period.
var fanoutBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesCaptured, err = m.Int64Counter("talkback.source.frames",
		metric.WithDescription("Frames delivered to data listeners."),
	); err != nil {
		return nil, err
	}
	if met.FanoutDuration, err = m.Float64Histogram("talkback.source.fanout.duration",
		metric.WithDescription("Time spent running all data listeners for one frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(fanoutBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FramesPlayed, err = m.Int64Counter("talkback.sink.frames",
		metric.WithDescription("Frames written to the playback device."),
	); err != nil {
		return nil, err
	}
	if met.BytesPlayed, err = m.Int64Counter("talkback.sink.bytes",
		metric.WithDescription("PCM bytes written to the playback device."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.Underruns, err = m.Int64Counter("talkback.sink.underruns",
		metric.WithDescription("Playback writes that failed and triggered a recovery."),
	); err != nil {
		return nil, err
	}
	if met.RecoveryFailures, err = m.Int64Counter("talkback.sink.recovery_failures",
		metric.WithDescription("Recovery attempts that failed and ended playback."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("talkback.sink.queue_depth",
		metric.WithDescription("Frames waiting in playback queues."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("talkback.streams.active",
		metric.WithDescription("Running capture sources and playback sinks."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built on the global meter
// provider. Panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordCapture records one fanned-out frame.
func (m *Metrics) RecordCapture(ctx context.Context, source string, fanout time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("source", source))
	m.FramesCaptured.Add(ctx, 1, attrs)
	m.FanoutDuration.Record(ctx, fanout.Seconds(), attrs)
}

// RecordPlayed records one frame written to device.
func (m *Metrics) RecordPlayed(ctx context.Context, device string, bytes int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("device", device))
	m.FramesPlayed.Add(ctx, 1, attrs)
	m.BytesPlayed.Add(ctx, int64(bytes), attrs)
}

// RecordUnderrun records a failed write on device.
func (m *Metrics) RecordUnderrun(ctx context.Context, device string) {
	if m == nil {
		return
	}
	m.Underruns.Add(ctx, 1, metric.WithAttributes(attribute.String("device", device)))
}

// RecordRecoveryFailure records a fatal recovery on device.
func (m *Metrics) RecordRecoveryFailure(ctx context.Context, device string) {
	if m == nil {
		return
	}
	m.RecoveryFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("device", device)))
}

// AddQueued adjusts the queue depth gauge by n.
func (m *Metrics) AddQueued(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.QueueDepth.Add(ctx, int64(n))
}

// StreamStarted increments the active stream gauge for component.
func (m *Metrics) StreamStarted(ctx context.Context, component string) {
	if m == nil {
		return
	}
	m.ActiveStreams.Add(ctx, 1, metric.WithAttributes(attribute.String("component", component)))
}

// StreamStopped decrements the active stream gauge for component.
func (m *Metrics) StreamStopped(ctx context.Context, component string) {
	if m == nil {
		return
	}
	m.ActiveStreams.Add(ctx, -1, metric.WithAttributes(attribute.String("component", component)))
}
