// SPDX-License-Identifier: MIT
/*
Package audio captures audio with PortAudio and feeds it to the spectrum
pipeline:
- Interleaved float32 capture deinterleaved into planar blocks
- WAV recording of the captured stream
- Device enumeration and WAV file decoding

Thread Safety:
- The capture callback runs on a PortAudio thread and locks its OS thread
- Buffers are allocated up front; the callback does not allocate
- Recording state is switched atomically and never blocks the callback
*/
package audio

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"specview/internal/analysis"
	"specview/internal/log"
)

// ErrNoProcessor is returned by NewEngine without a block processor.
var ErrNoProcessor = errors.New("audio: block processor is required")

// EngineConfig describes the capture stream.
type EngineConfig struct {
	DeviceID        int
	SampleRate      float64
	Channels        int
	FramesPerBuffer int
	LowLatency      bool
}

// Engine owns one PortAudio input stream.
type Engine struct {
	config    EngineConfig
	processor analysis.BlockProcessor
	logger    *log.Logger

	// Audio input handling.
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream

	// Planar scratch, one slice per channel, and the view passed on per block.
	planar [][]float32
	block  [][]float32

	callbacks atomic.Uint64
	short     atomic.Uint64 // Callbacks with a partial last frame.

	// Recording state. The callback only writes when it can take recMu
	// without waiting.
	isRecording atomic.Bool
	recMu       sync.Mutex
	recorder    *Recorder
}

// NewEngine resolves the input device and preallocates buffers. The stream is
// opened by StartInputStream.
func NewEngine(cfg EngineConfig, processor analysis.BlockProcessor, logger *log.Logger) (*Engine, error) {
	if processor == nil {
		return nil, ErrNoProcessor
	}
	if cfg.Channels < 1 || cfg.FramesPerBuffer < 1 {
		return nil, fmt.Errorf("audio: invalid stream shape %d channels x %d frames", cfg.Channels, cfg.FramesPerBuffer)
	}

	inputDevice, err := InputDevice(cfg.DeviceID)
	if err != nil {
		return nil, err
	}
	if inputDevice.MaxInputChannels < cfg.Channels {
		return nil, fmt.Errorf("audio: device %s has %d input channels, %d requested", inputDevice.Name, inputDevice.MaxInputChannels, cfg.Channels)
	}

	e := newEngine(cfg, processor, logger)
	e.inputDevice = inputDevice
	if cfg.LowLatency {
		e.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		e.inputLatency = inputDevice.DefaultHighInputLatency
	}
	return e, nil
}

// newEngine builds an engine without a device.
func newEngine(cfg EngineConfig, processor analysis.BlockProcessor, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	e := &Engine{
		config:    cfg,
		processor: processor,
		logger:    logger.With("audio"),
		planar:    make([][]float32, cfg.Channels),
		block:     make([][]float32, cfg.Channels),
	}
	for ch := range e.planar {
		e.planar[ch] = make([]float32, cfg.FramesPerBuffer)
	}
	return e
}

// Config returns the stream configuration.
func (e *Engine) Config() EngineConfig {
	return e.config
}

// DeviceName returns the name of the input device, if resolved.
func (e *Engine) DeviceName() string {
	if e.inputDevice == nil {
		return ""
	}
	return e.inputDevice.Name
}

// Callbacks returns the number of capture callbacks processed.
func (e *Engine) Callbacks() uint64 {
	return e.callbacks.Load()
}

// StartInputStream opens and starts the capture stream.
func (e *Engine) StartInputStream() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.config.Channels,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: e.config.FramesPerBuffer,
		SampleRate:      e.config.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return err
	}
	e.inputStream = stream

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		e.inputStream = nil
		return err
	}

	e.logger.Infof("Capturing %d channels at %.0f Hz from %s (%d frames per buffer, latency %s)",
		e.config.Channels, e.config.SampleRate, e.inputDevice.Name, e.config.FramesPerBuffer, e.inputLatency)
	return nil
}

// StopInputStream stops and closes the capture stream, if open.
func (e *Engine) StopInputStream() error {
	if e.inputStream != nil {
		if err := e.inputStream.Stop(); err != nil {
			return err
		}

		if err := e.inputStream.Close(); err != nil {
			return err
		}

		e.inputStream = nil
		e.logger.Infof("Capture stopped after %d callbacks", e.callbacks.Load())
	}

	return nil
}

// processInputStream is the capture callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (e *Engine) processInputStream(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e.processBuffer(in)
}

// processBuffer deinterleaves one callback buffer, hands it to the processor
// and records it if recording is on.
func (e *Engine) processBuffer(in []float32) {
	e.callbacks.Add(1)

	frames := deinterleave(in, e.planar, e.block)
	if frames*len(e.planar) != len(in) {
		e.short.Add(1)
	}
	e.processor.ProcessBlock(e.block)

	if e.isRecording.Load() && e.recMu.TryLock() {
		if e.recorder != nil {
			if err := e.recorder.Write(in[:frames*len(e.planar)]); err != nil {
				e.logger.Errorf("Error writing to WAV file: %v", err)
			}
		}
		e.recMu.Unlock()
	}
}

// deinterleave splits interleaved frames into planar, sets block to the filled
// part of each channel and returns the frame count. Trailing samples of a
// partial frame are ignored.
func deinterleave(in []float32, planar, block [][]float32) int {
	channels := len(planar)
	frames := min(len(in)/channels, len(planar[0]))
	for ch := range planar {
		dst := planar[ch][:frames]
		for i := range dst {
			dst[i] = in[i*channels+ch]
		}
		block[ch] = dst
	}
	return frames
}

// Close stops recording and the input stream.
func (e *Engine) Close() error {
	if err := e.StopRecording(); err != nil {
		return err
	}

	if err := e.StopInputStream(); err != nil {
		return err
	}

	return nil
}
