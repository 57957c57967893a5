// SPDX-License-Identifier: MIT

/*
Package bitint provides the power-of-two arithmetic used to size ring buffers,
FFT frames and exchange slots. Every function is allocation-free and safe to
call from the audio callback.

Usage:

	// Round a requested ring capacity up to something maskable.
	size := bitint.NextPowerOfTwo(48000*4 + 512) // 262144
	mask := bitint.Mask(size)                   // 262143

	// Reject an FFT size that cannot be masked.
	if !bitint.IsPowerOfTwo(fftSize) { ... }

----------------------------------------------------------------------

NextPowerOfTwo subtracts one before taking the bit length. Without the
subtraction an exact power of two would be doubled:

	size = 8, size-1 = 7 (0111), bits.Len(7) = 3, 1<<3 = 8
	size = 8, bits.Len(8) = 4, 1<<4 = 16 (wrong)
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size.
// Non-positive sizes return 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// NextPowerOfTwo64 is NextPowerOfTwo for unsigned 64-bit counts.
func NextPowerOfTwo64(size uint64) uint64 {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len64(size-1)
}

// IsPowerOfTwo reports whether n is a positive power of two. Powers of two
// have exactly one bit set, so n&(n-1) clears it to zero.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Mask returns the wraparound mask for a power-of-two size. The result is
// meaningless for other sizes; callers validate with IsPowerOfTwo first.
func Mask(size int) uint64 {
	if size <= 0 {
		return 0
	}
	return uint64(size - 1)
}

// Log2 returns the exponent of a power of two (Log2(1024) == 10), or -1 when
// n is not a power of two.
func Log2(n int) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return bits.TrailingZeros(uint(n))
}
