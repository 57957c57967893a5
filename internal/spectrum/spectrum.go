// SPDX-License-Identifier: MIT

// Package spectrum holds per-channel frequency-domain data. The same container
// carries real magnitudes (float32, float64) and raw FFT coefficients
// (complex64, complex128).
package spectrum

import (
	"math"
	"math/cmplx"
)

// Bin is the set of element types a Spectrum can hold.
type Bin interface {
	float32 | float64 | complex64 | complex128
}

// Spectrum is a channels x bins matrix. Storage is allocated once by New or
// Configure and reused for the lifetime of a configuration.
type Spectrum[T Bin] struct {
	bins int
	data [][]T
}

// New returns a zeroed spectrum with the given shape.
func New[T Bin](channels, bins int) *Spectrum[T] {
	s := &Spectrum[T]{}
	s.Configure(channels, bins)
	return s
}

// Configure reallocates storage for a new shape and zeroes it. Negative
// arguments are treated as zero.
func (s *Spectrum[T]) Configure(channels, bins int) {
	channels = max(channels, 0)
	bins = max(bins, 0)

	backing := make([]T, channels*bins)
	s.data = make([][]T, channels)
	for ch := range s.data {
		s.data[ch] = backing[ch*bins : (ch+1)*bins : (ch+1)*bins]
	}
	s.bins = bins
}

// Channels returns the number of channels.
func (s *Spectrum[T]) Channels() int {
	return len(s.data)
}

// NumBins returns the number of bins per channel.
func (s *Spectrum[T]) NumBins() int {
	return s.bins
}

// Channel returns the bins of channel ch. The slice aliases the storage.
func (s *Spectrum[T]) Channel(ch int) []T {
	return s.data[ch]
}

// Value returns a single bin.
func (s *Spectrum[T]) Value(ch, bin int) T {
	return s.data[ch][bin]
}

// SetValue stores a single bin.
func (s *Spectrum[T]) SetValue(ch, bin int, v T) {
	s.data[ch][bin] = v
}

// Clear zeroes every bin.
func (s *Spectrum[T]) Clear() {
	for ch := range s.data {
		clear(s.data[ch])
	}
}

// CopyFrom copies the overlapping region of src into s. Shapes are expected to
// match; any bins of s outside src are left untouched.
func (s *Spectrum[T]) CopyFrom(src *Spectrum[T]) {
	channels := min(len(s.data), len(src.data))
	for ch := 0; ch < channels; ch++ {
		copy(s.data[ch], src.data[ch])
	}
}

// SameShape reports whether s has the given dimensions.
func (s *Spectrum[T]) SameShape(channels, bins int) bool {
	return len(s.data) == channels && s.bins == bins
}

// Magnitude returns |v| of a single bin regardless of element type.
func (s *Spectrum[T]) Magnitude(ch, bin int) float64 {
	switch v := any(s.data[ch][bin]).(type) {
	case float32:
		return math.Abs(float64(v))
	case float64:
		return math.Abs(v)
	case complex64:
		return cmplx.Abs(complex128(v))
	case complex128:
		return cmplx.Abs(v)
	}
	return 0
}
