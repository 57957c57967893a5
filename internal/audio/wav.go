// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned for files that are not PCM WAV.
var ErrInvalidWAV = errors.New("not a valid WAV file")

// ReadWAV decodes a PCM WAV file into planar float32 channels in [-1, 1] and
// returns them with the file's sample rate.
func ReadWAV(filename string) ([][]float32, float64, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: %s", ErrInvalidWAV, filename)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decoding %s: %w", filename, err)
	}

	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	if channels < 1 || bitDepth < 8 || bitDepth > 32 {
		return nil, 0, fmt.Errorf("%w: %d channels at %d bits", ErrInvalidWAV, channels, bitDepth)
	}

	// 8-bit WAV is unsigned.
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	scale := 1 / float64(int(1)<<(bitDepth-1))

	frames := len(buf.Data) / channels
	signal := make([][]float32, channels)
	for ch := range signal {
		signal[ch] = make([]float32, frames)
		for i := range frames {
			signal[ch][i] = float32(float64(buf.Data[i*channels+ch]-offset) * scale)
		}
	}
	return signal, float64(dec.SampleRate), nil
}
