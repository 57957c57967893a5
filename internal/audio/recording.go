// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrAlreadyRecording is returned by StartRecording while a recording is open.
var ErrAlreadyRecording = errors.New("already recording")

const wavFormatPCM = 1

// Recorder writes interleaved float32 frames to a PCM WAV file.
type Recorder struct {
	file     *os.File
	encoder  *wav.Encoder
	buf      *audio.IntBuffer
	scale    float64
	maxValue int
	frames   uint64
}

// NewRecorder creates filename and prepares a WAV encoder. maxFrames sizes the
// conversion buffer; larger writes are split.
func NewRecorder(filename string, sampleRate float64, channels, bitDepth, maxFrames int) (*Recorder, error) {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	if channels < 1 || maxFrames < 1 {
		return nil, fmt.Errorf("invalid recording shape %d channels x %d frames", channels, maxFrames)
	}

	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	maxValue := 1<<(bitDepth-1) - 1
	return &Recorder{
		file:    file,
		encoder: wav.NewEncoder(file, int(sampleRate), bitDepth, channels, wavFormatPCM),
		buf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  int(sampleRate),
			},
			Data:           make([]int, maxFrames*channels),
			SourceBitDepth: bitDepth,
		},
		scale:    float64(maxValue),
		maxValue: maxValue,
	}, nil
}

// Write encodes interleaved samples, clipping to [-1, 1].
func (r *Recorder) Write(interleaved []float32) error {
	channels := r.buf.Format.NumChannels
	data := r.buf.Data[:cap(r.buf.Data)]
	for len(interleaved) > 0 {
		n := min(len(interleaved), len(data))
		n -= n % channels
		if n == 0 {
			return nil
		}
		for i, s := range interleaved[:n] {
			v := int(math.Round(float64(s) * r.scale))
			data[i] = max(-r.maxValue, min(r.maxValue, v))
		}
		r.buf.Data = data[:n]
		if err := r.encoder.Write(r.buf); err != nil {
			return err
		}
		r.frames += uint64(n / channels)
		interleaved = interleaved[n:]
	}
	return nil
}

// Frames returns the number of frames written.
func (r *Recorder) Frames() uint64 {
	return r.frames
}

// Close finalizes the WAV header and closes the file.
func (r *Recorder) Close() error {
	err := r.encoder.Close()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// StartRecording begins writing the captured stream to filename.
func (e *Engine) StartRecording(filename string, bitDepth int) error {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if e.recorder != nil {
		return ErrAlreadyRecording
	}

	rec, err := NewRecorder(filename, e.config.SampleRate, e.config.Channels, bitDepth, e.config.FramesPerBuffer)
	if err != nil {
		return err
	}
	e.recorder = rec
	e.isRecording.Store(true)
	e.logger.Infof("Recording to %s (%d-bit)", filename, bitDepth)
	return nil
}

// StopRecording finalizes the current recording, if any.
func (e *Engine) StopRecording() error {
	e.isRecording.Store(false)

	e.recMu.Lock()
	defer e.recMu.Unlock()

	if e.recorder == nil {
		return nil
	}
	rec := e.recorder
	e.recorder = nil
	if err := rec.Close(); err != nil {
		return err
	}
	e.logger.Infof("Recording stopped after %d frames", rec.Frames())
	return nil
}

// Recording reports whether a recording is open.
func (e *Engine) Recording() bool {
	return e.isRecording.Load()
}
