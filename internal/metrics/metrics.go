// SPDX-License-Identifier: MIT

// Package metrics holds the counters of one pipeline in its own
// VictoriaMetrics set. A Registry is created with the pipeline and passed to
// whatever needs to record diagnostics, so there is no process-wide state.
package metrics

import (
	"io"
	"net/http"
	"sync/atomic"

	vm "github.com/VictoriaMetrics/metrics"
)

// Metric names.
const (
	BlocksMetricName          = "specview_audio_blocks_total"
	SamplesWrittenMetricName  = "specview_samples_written_total"
	SamplesDroppedMetricName  = "specview_samples_dropped_total"
	FramesMetricName          = "specview_frames_total"
	PaintsMetricName          = "specview_render_paints_total"
	RepaintsMetricName        = "specview_render_repaints_total"
	ResyncsMetricName         = "specview_render_resyncs_total"
	SkippedFramesMetricName   = "specview_render_skipped_frames_total"
	PaintIntervalMetricName   = "specview_render_paint_interval_seconds"
	TransportErrorsMetricName = "specview_transport_errors_total"
	RingStoredMetricName      = "specview_ring_stored_samples"
)

// Registry is the diagnostics context of one pipeline.
type Registry struct {
	set    *vm.Set
	label  string
	closed atomic.Bool

	Blocks          *vm.Counter
	SamplesWritten  *vm.Counter
	SamplesDropped  *vm.Counter
	Frames          *vm.Counter
	Paints          *vm.Counter
	Repaints        *vm.Counter
	Resyncs         *vm.Counter
	SkippedFrames   *vm.Counter
	TransportErrors *vm.Counter
	PaintInterval   *vm.Histogram
}

// New creates a Registry whose metrics carry pipeline="name".
func New(name string) *Registry {
	r := &Registry{set: vm.NewSet(), label: name}

	r.Blocks = r.set.NewCounter(r.name(BlocksMetricName))
	r.SamplesWritten = r.set.NewCounter(r.name(SamplesWrittenMetricName))
	r.SamplesDropped = r.set.NewCounter(r.name(SamplesDroppedMetricName))
	r.Frames = r.set.NewCounter(r.name(FramesMetricName))
	r.Paints = r.set.NewCounter(r.name(PaintsMetricName))
	r.Repaints = r.set.NewCounter(r.name(RepaintsMetricName))
	r.Resyncs = r.set.NewCounter(r.name(ResyncsMetricName))
	r.SkippedFrames = r.set.NewCounter(r.name(SkippedFramesMetricName))
	r.TransportErrors = r.set.NewCounter(r.name(TransportErrorsMetricName))
	r.PaintInterval = r.set.NewHistogram(r.name(PaintIntervalMetricName))
	return r
}

// name appends the pipeline label to a metric name.
func (r *Registry) name(metric string) string {
	buf := make([]byte, 0, 64)
	buf = append(buf, metric...)
	buf = append(buf, `{pipeline="`...)
	buf = append(buf, r.label...)
	buf = append(buf, `"}`...)
	return string(buf)
}

// Gauge registers a gauge whose value is read from f at scrape time. Each
// metric name may be registered once per Registry.
func (r *Registry) Gauge(metric string, f func() float64) {
	r.set.NewGauge(r.name(metric), f)
}

// Name returns the pipeline label.
func (r *Registry) Name() string {
	return r.label
}

// WritePrometheus writes the pipeline metrics in text exposition format.
// A closed registry writes nothing.
func (r *Registry) WritePrometheus(w io.Writer) {
	if r.closed.Load() {
		return
	}
	r.set.WritePrometheus(w)
}

// Close stops exposing the metrics. Counters stay usable so that late
// updates from a stopping audio callback are harmless.
func (r *Registry) Close() {
	r.closed.Store(true)
}

// Handler serves the registry and the Go process metrics.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.WritePrometheus(w)
		vm.WriteProcessMetrics(w)
	})
}
