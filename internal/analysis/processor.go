// SPDX-License-Identifier: MIT
package analysis

// BlockProcessor consumes planar audio blocks. Implementations are called
// from the real-time capture callback and must not block or allocate.
type BlockProcessor interface {
	ProcessBlock(block [][]float32)
}

// SpectrumProvider describes the frequency layout of a spectrum so that
// consumers such as band energy and bass pulse detection stay decoupled from
// the FFT implementation.
type SpectrumProvider interface {
	FrequencyForBin(binIndex int) float64 // Center frequency (Hz) of a bin.
	HertzPerBin() float64                 // Frequency resolution.
	Bins() int                            // Bins per channel.
	FFTSize() int                         // Points per transform.
	SampleRate() float64                  // Input sample rate.
}
