// SPDX-License-Identifier: MIT
package analysis

import "specview/internal/spectrum"

// Bass pulse defaults.
const (
	DefaultPulseLowHz     = 50.0
	DefaultPulseHighHz    = 200.0
	DefaultPulseThreshold = 0.3
)

// BassPulse tracks the peak magnitude of the bass range across channels and
// flags a pulse while it exceeds Threshold.
type BassPulse struct {
	LowHz     float64
	HighHz    float64
	Threshold float64

	level  float64
	active bool
	onsets uint64
}

// NewBassPulse returns a detector with the default range and threshold.
func NewBassPulse() *BassPulse {
	return &BassPulse{
		LowHz:     DefaultPulseLowHz,
		HighHz:    DefaultPulseHighHz,
		Threshold: DefaultPulseThreshold,
	}
}

// Update evaluates a spectrum. It returns the peak bass magnitude, whether the
// pulse is active, and whether this update is the rising edge of a pulse.
func (b *BassPulse) Update(spec *spectrum.Spectrum[float32], hzPerBin float64) (level float64, active, onset bool) {
	lo, hi := binRange(b.LowHz, b.HighHz, hzPerBin, spec.NumBins())

	var peak float32
	for ch := 0; ch < spec.Channels(); ch++ {
		if hi <= lo {
			break
		}
		for _, m := range spec.Channel(ch)[lo:hi] {
			peak = max(peak, m)
		}
	}

	b.level = float64(peak)
	wasActive := b.active
	b.active = b.level > b.Threshold
	onset = b.active && !wasActive
	if onset {
		b.onsets++
	}
	return b.level, b.active, onset
}

// Level returns the last peak magnitude.
func (b *BassPulse) Level() float64 { return b.level }

// Active reports whether the last update was above threshold.
func (b *BassPulse) Active() bool { return b.active }

// Onsets returns the number of rising edges seen.
func (b *BassPulse) Onsets() uint64 { return b.onsets }

// Reset clears the detector state.
func (b *BassPulse) Reset() {
	b.level = 0
	b.active = false
	b.onsets = 0
}
