// SPDX-License-Identifier: MIT

/*
Package exchange hands finished spectra from the audio goroutine to the render
goroutine without locks.

An Exchange is a small power-of-two array of pre-allocated Output slots driven
by a ring.Index. The producer fills the slot at the write cursor and publishes
it; the consumer looks at the slot behind the write cursor. When the producer
outpaces the consumer it simply wraps, so the freshest frame always wins and
the producer never waits.

Thread Safety:
  - One producer calls WriteSlot and AdvanceWrite.
  - One consumer calls MostRecent, CopyMostRecent, Stored and FlushRead.
  - Each slot carries a sequence counter that is odd while the producer is
    writing it. CopyMostRecent validates its copy against that counter and
    retries, so a lagging consumer never returns a torn frame.
*/
package exchange

import (
	"errors"
	"fmt"
	"sync/atomic"

	"specview/internal/ring"
	"specview/internal/spectrum"
)

// MinDepth is the smallest slot count; with fewer the producer would always be
// writing the slot the consumer is reading.
const MinDepth = 2

// maxCopyAttempts bounds CopyMostRecent retries when the producer keeps
// overwriting the slot being copied.
const maxCopyAttempts = 4

// ErrShape is returned by Configure for invalid dimensions.
var ErrShape = errors.New("exchange: invalid shape")

// Output is one published analysis frame.
type Output struct {
	Spectrum *spectrum.Spectrum[float32] // Instantaneous magnitudes.
	Average  *spectrum.Spectrum[float32] // Moving-average magnitudes.
	Frame    uint64                      // Producer frame number, starting at 1.
}

// NewOutput allocates an Output with the given shape.
func NewOutput(channels, bins int) *Output {
	return &Output{
		Spectrum: spectrum.New[float32](channels, bins),
		Average:  spectrum.New[float32](channels, bins),
	}
}

// CopyFrom copies every field of src into o. Shapes must match.
func (o *Output) CopyFrom(src *Output) {
	o.Spectrum.CopyFrom(src.Spectrum)
	o.Average.CopyFrom(src.Average)
	o.Frame = src.Frame
}

func (o *Output) clear() {
	o.Spectrum.Clear()
	o.Average.Clear()
	o.Frame = 0
}

type slot struct {
	seq atomic.Uint64
	out Output
}

// Exchange is the single-producer single-consumer output exchange. The zero
// value must be configured before use.
type Exchange struct {
	index    ring.Index
	slots    []slot
	mask     uint64
	channels int
	bins     int
}

// New returns a configured Exchange.
func New(depth, channels, fftSize int) (*Exchange, error) {
	e := &Exchange{}
	if err := e.Configure(depth, channels, fftSize); err != nil {
		return nil, err
	}
	return e, nil
}

// Configure allocates depth slots (rounded up to a power of two, at least
// MinDepth) of channels x (fftSize/2+1) bins.
func (e *Exchange) Configure(depth, channels, fftSize int) error {
	if channels < 1 {
		return fmt.Errorf("%w: channels must be positive, got %d", ErrShape, channels)
	}
	if fftSize < 2 {
		return fmt.Errorf("%w: fft size must be at least 2, got %d", ErrShape, fftSize)
	}

	size := e.index.SetSize(max(depth, MinDepth))
	e.mask = uint64(size - 1)
	e.channels = channels
	e.bins = fftSize/2 + 1

	e.slots = make([]slot, size)
	for i := range e.slots {
		e.slots[i].out = *NewOutput(e.channels, e.bins)
	}
	e.index.Reset(0)
	return nil
}

// Reset rewinds both cursors and clears every slot. It must not race with
// either side; callers reset between configuration epochs.
func (e *Exchange) Reset() {
	e.index.Reset(0)
	for i := range e.slots {
		e.slots[i].seq.Store(0)
		e.slots[i].out.clear()
	}
}

// Depth returns the number of slots.
func (e *Exchange) Depth() int {
	return len(e.slots)
}

// Channels returns the channel count of every slot.
func (e *Exchange) Channels() int {
	return e.channels
}

// Bins returns the bin count of every slot.
func (e *Exchange) Bins() int {
	return e.bins
}

// NewOutput allocates a consumer-side Output shaped like the slots.
func (e *Exchange) NewOutput() *Output {
	return NewOutput(e.channels, e.bins)
}

// WriteSlot returns the slot at the write cursor and marks it in progress.
// Producer only; must be followed by AdvanceWrite.
func (e *Exchange) WriteSlot() *Output {
	s := &e.slots[e.index.WritePosition(0)]
	s.seq.Add(1)
	return &s.out
}

// AdvanceWrite marks the current slot complete and publishes it.
func (e *Exchange) AdvanceWrite() {
	s := &e.slots[e.index.WritePosition(0)]
	s.seq.Add(1)
	e.index.AdvanceWrite(1)
}

// Published returns the number of frames published since the last Reset.
func (e *Exchange) Published() uint64 {
	return e.index.WriteCount()
}

// MostRecent returns the most recently published slot, or false if nothing has
// been published. The reference stays valid until the producer has published
// Depth()-1 further frames; consumers that may lag use CopyMostRecent.
func (e *Exchange) MostRecent() (*Output, bool) {
	w := e.index.WriteCount()
	if w == 0 {
		return nil, false
	}
	return &e.slots[(w-1)&e.mask].out, true
}

// CopyMostRecent copies the most recently published frame into dst and reports
// whether a consistent copy was made. It returns false when nothing has been
// published or the producer overwrote the slot on every attempt.
func (e *Exchange) CopyMostRecent(dst *Output) bool {
	for range maxCopyAttempts {
		w := e.index.WriteCount()
		if w == 0 {
			return false
		}

		s := &e.slots[(w-1)&e.mask]
		before := s.seq.Load()
		if before&1 != 0 {
			continue
		}

		dst.CopyFrom(&s.out)

		if s.seq.Load() == before {
			return true
		}
	}
	return false
}

// Stored returns the number of frames published since the consumer last
// flushed. Values above Depth() mean frames were overwritten unseen.
func (e *Exchange) Stored() int {
	return int(e.index.WriteCount() - e.index.ReadCount())
}

// FlushRead marks every published frame as consumed.
func (e *Exchange) FlushRead() {
	e.index.FlushRead()
}
