// SPDX-License-Identifier: MIT
package render

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// intervalWindow is the number of recent service intervals kept for
// statistics.
const intervalWindow = 256

// Health grades the measured service interval against the nominal frame
// interval.
type Health int

const (
	HealthUnknown Health = iota
	HealthOK
	HealthSlow    // Mean interval above 1.5x nominal.
	HealthStalled // Mean interval above 2x nominal.
)

func (h Health) String() string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthSlow:
		return "slow"
	case HealthStalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of scheduler diagnostics.
type Stats struct {
	Nominal  time.Duration // Target frame interval.
	Paints   uint64        // Paint callbacks with a fresh frame.
	Repaints uint64        // Paint callbacks that reused the previous frame.
	Resyncs  uint64        // Services skipped because too much time had passed.
	Skipped  uint64        // Published frames never painted.
	Samples  int           // Intervals in the statistics window.

	// Service interval statistics in seconds.
	IntervalMean   float64
	IntervalStdDev float64
	IntervalMin    float64
	IntervalMax    float64
}

// FPS returns the service rate implied by the mean interval.
func (s Stats) FPS() float64 {
	if s.IntervalMean <= 0 {
		return 0
	}
	return 1 / s.IntervalMean
}

// Health grades the mean interval.
func (s Stats) Health() Health {
	if s.Samples == 0 || s.Nominal <= 0 {
		return HealthUnknown
	}
	nominal := s.Nominal.Seconds()
	switch {
	case s.IntervalMean > 2*nominal:
		return HealthStalled
	case s.IntervalMean > 1.5*nominal:
		return HealthSlow
	default:
		return HealthOK
	}
}

// intervals is a fixed window of the most recent interval measurements.
type intervals struct {
	values [intervalWindow]float64
	next   int
	count  int
}

func (iv *intervals) add(seconds float64) {
	iv.values[iv.next] = seconds
	iv.next = (iv.next + 1) % intervalWindow
	iv.count = min(iv.count+1, intervalWindow)
}

func (iv *intervals) reset() {
	iv.next = 0
	iv.count = 0
}

// summarize fills the interval fields of s.
func (iv *intervals) summarize(s *Stats) {
	s.Samples = iv.count
	if iv.count == 0 {
		return
	}
	window := iv.values[:iv.count]
	s.IntervalMean, s.IntervalStdDev = stat.MeanStdDev(window, nil)
	if iv.count == 1 {
		s.IntervalStdDev = 0
	}
	s.IntervalMin = floats.Min(window)
	s.IntervalMax = floats.Max(window)
}
