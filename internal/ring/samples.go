// SPDX-License-Identifier: MIT
package ring

import "fmt"

// Samples is a planar multi-channel ring of float32 audio frames addressed
// through an Index. Writes and reads both happen on the audio goroutine; the
// type is not shared across goroutines.
type Samples struct {
	index Index
	data  [][]float32
}

// Configure sizes the ring to the next power of two >= minSamples frames for
// each of channels channels and zeroes it. It returns the actual capacity.
func (s *Samples) Configure(channels, minSamples int) (int, error) {
	if channels < 1 {
		return 0, fmt.Errorf("ring: channel count must be positive, got %d", channels)
	}
	if minSamples < 1 {
		return 0, fmt.Errorf("ring: sample count must be positive, got %d", minSamples)
	}

	size := s.index.SetSize(minSamples)
	s.data = make([][]float32, channels)
	for ch := range s.data {
		s.data[ch] = make([]float32, size)
	}
	s.index.Reset(0)
	return size, nil
}

// Reset zeroes the storage and seeds the ring as holding stored frames of
// silence, which primes the first analysis frame.
func (s *Samples) Reset(stored int) {
	for ch := range s.data {
		clear(s.data[ch])
	}
	s.index.Reset(min(max(stored, 0), s.index.Size()-1))
}

// Size returns the capacity in frames.
func (s *Samples) Size() int {
	return s.index.Size()
}

// Channels returns the configured channel count.
func (s *Samples) Channels() int {
	return len(s.data)
}

// Stored returns the number of frames written but not yet released.
func (s *Samples) Stored() int {
	return s.index.Stored()
}

// Write copies every frame of src (one slice per channel, all at least
// len(src[0]) long) into the ring. Channels missing from src are written as
// silence; extra channels are ignored.
//
// The ring never blocks the producer. When the write would overrun unread
// frames the oldest ones are dropped and their count is returned.
func (s *Samples) Write(src [][]float32) (dropped int) {
	if len(src) == 0 || len(s.data) == 0 {
		return 0
	}

	frames := len(src[0])
	capacity := s.index.Size() - 1 // A full ring would mask to zero stored.
	offset := 0
	if frames > capacity {
		offset = frames - capacity
		dropped = offset
		frames = capacity
	}

	if over := s.index.Stored() + frames - capacity; over > 0 {
		s.index.AdvanceRead(over)
		dropped += over
	}

	remaining := frames
	for remaining > 0 {
		span := s.index.WriteSpan(remaining)
		for ch := range s.data {
			dst := s.data[ch][span.Position : span.Position+span.Count]
			if ch < len(src) {
				copy(dst, src[ch][offset:offset+span.Count])
			} else {
				clear(dst)
			}
		}

		remaining -= span.Count
		offset += span.Count
		s.index.AdvanceWrite(span.Count)
	}

	return dropped
}

// Read copies count frames starting at the read cursor into dst and then
// advances the read cursor by advance, which may be less than count so that
// successive reads overlap.
//
// Callers check Stored() first. Frames requested past the stored backlog are
// zero-filled rather than aliased from stale ring data, and advance is clamped
// to the backlog. count is clamped to the shortest dst channel. Read returns
// the number of frames that came from the ring.
func (s *Samples) Read(dst [][]float32, count, advance int) int {
	for ch := range dst {
		count = min(count, len(dst[ch]))
	}
	count = max(count, 0)

	stored := s.index.Stored()
	available := min(count, stored)
	channels := min(len(dst), len(s.data))

	copied := 0
	for copied < available {
		span := s.index.ReadSpan(available-copied, copied)
		for ch := 0; ch < channels; ch++ {
			copy(dst[ch][copied:copied+span.Count], s.data[ch][span.Position:span.Position+span.Count])
		}
		copied += span.Count
	}

	for ch := range dst {
		if ch >= channels {
			clear(dst[ch][:count])
			continue
		}
		clear(dst[ch][available:count])
	}

	s.index.AdvanceRead(min(max(advance, 0), stored))
	return available
}
