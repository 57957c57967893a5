// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	"specview/internal/spectrum"
)

// FrequencyBand defines the name and frequency range [LowHz, HighHz) of an
// energy band.
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands splits the audible range the way the monitor and the WebSocket
// payload present it. The treble band runs up to Nyquist.
var DefaultBands = []FrequencyBand{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "lowMid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "highMid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000, HighHz: math.Inf(1)},
}

// BandEnergies computes the RMS magnitude of the bins that fall into each band,
// averaged over every channel of spec, and stores it in dst[i] for bands[i].
// dst is grown only if it is too short, so callers that reuse it do not
// allocate. Bands that contain no bins report 0.
func BandEnergies(spec *spectrum.Spectrum[float32], hzPerBin float64, bands []FrequencyBand, dst []float64) []float64 {
	if cap(dst) < len(bands) {
		dst = make([]float64, len(bands))
	}
	dst = dst[:len(bands)]

	channels := spec.Channels()
	for i, band := range bands {
		lo, hi := binRange(band.LowHz, band.HighHz, hzPerBin, spec.NumBins())
		if hi <= lo || channels == 0 {
			dst[i] = 0
			continue
		}

		var sum float64
		for ch := 0; ch < channels; ch++ {
			for _, m := range spec.Channel(ch)[lo:hi] {
				sum += float64(m) * float64(m)
			}
		}
		dst[i] = math.Sqrt(sum / float64((hi-lo)*channels))
	}
	return dst
}

// binRange returns the half-open bin interval whose center frequencies lie in
// [lowHz, highHz).
func binRange(lowHz, highHz, hzPerBin float64, bins int) (int, int) {
	if hzPerBin <= 0 {
		return 0, 0
	}
	lo := int(math.Ceil(lowHz / hzPerBin))
	hi := bins
	if !math.IsInf(highHz, 1) {
		hi = min(int(math.Ceil(highHz/hzPerBin)), bins)
	}
	return max(lo, 0), hi
}
