// SPDX-License-Identifier: MIT

/*
Package ring implements the cursor arithmetic and multi-channel sample storage
that move audio from the capture callback into the FFT pipeline.

Index tracks two monotonically increasing counters, read and write, over a
power-of-two ring so that wraparound is a mask instead of a modulo. The counters
never wrap in practice (uint64) and their difference, masked, is the number of
stored items.

Thread Safety:
  - Index takes no locks. A single writer stores the write counter and a single
    reader stores the read counter; each side only loads the other.
  - Both counters are atomics, so a reader that loads the write counter after the
    writer stored it also observes every item written before the store.
*/
package ring

import (
	"sync/atomic"

	"specview/pkg/bitint"
)

// Span is a contiguous run of slots inside the backing array.
type Span struct {
	Position int // First physical slot.
	Count    int // Number of slots, never crossing the end of the array.
}

// Index is the ring cursor controller. The zero value has size zero and must
// be sized with SetSize before use.
type Index struct {
	read  atomic.Uint64
	write atomic.Uint64
	size  int
	mask  uint64
}

// SetSize rounds requested up to the next power of two, stores it as the ring
// size and returns it. requested must be positive; validated configuration
// never reaches here with anything else.
func (x *Index) SetSize(requested int) int {
	if requested <= 0 {
		panic("ring: size must be positive")
	}
	x.size = bitint.NextPowerOfTwo(requested)
	x.mask = bitint.Mask(x.size)
	return x.size
}

// Size returns the ring size set by SetSize.
func (x *Index) Size() int {
	return x.size
}

// Reset seeds the index as already holding stored items.
func (x *Index) Reset(stored int) {
	x.read.Store(0)
	x.write.Store(uint64(stored))
}

// Stored returns (write - read) masked to the ring, always in [0, size).
func (x *Index) Stored() int {
	return int((x.write.Load() - x.read.Load()) & x.mask)
}

// ReadPosition returns the physical slot offset items past the read cursor.
func (x *Index) ReadPosition(offset int) int {
	return int((x.read.Load() + uint64(offset)) & x.mask)
}

// WritePosition returns the physical slot offset items behind the write
// cursor. WritePosition(1) is the most recently written slot.
func (x *Index) WritePosition(offset int) int {
	return int((x.write.Load() - uint64(offset)) & x.mask)
}

// WriteSpan returns the largest contiguous span at the write cursor holding
// at most wanted items.
func (x *Index) WriteSpan(wanted int) Span {
	position := x.WritePosition(0)
	return Span{Position: position, Count: min(wanted, x.size-position)}
}

// ReadSpan returns the largest contiguous span starting consumed items past
// the read cursor holding at most wanted items.
func (x *Index) ReadSpan(wanted, consumed int) Span {
	position := x.ReadPosition(consumed)
	return Span{Position: position, Count: min(wanted, x.size-position)}
}

// AdvanceWrite publishes count items. Writer side only.
func (x *Index) AdvanceWrite(count int) {
	x.write.Store(x.write.Load() + uint64(count))
}

// AdvanceRead releases count items. Reader side only.
func (x *Index) AdvanceRead(count int) {
	x.read.Store(x.read.Load() + uint64(count))
}

// FlushRead discards every pending item by moving the read cursor to the
// write cursor. Reader side only.
func (x *Index) FlushRead() {
	x.read.Store(x.write.Load())
}

// WriteCount returns the raw write counter.
func (x *Index) WriteCount() uint64 {
	return x.write.Load()
}

// ReadCount returns the raw read counter.
func (x *Index) ReadCount() uint64 {
	return x.read.Load()
}
