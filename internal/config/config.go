// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"specview/internal/analysis"
	"specview/internal/log"
	"specview/internal/pipeline"
	"specview/internal/render"
)

// Hardware and processing limits.
const (
	MinDeviceID     = -1     // -1 represents the system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer
)

// ErrConfig wraps every error returned by Validate.
var ErrConfig = errors.New("config")

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Forces the debug log level.
	LogLevel  string          `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	Audio     AudioConfig     `yaml:"audio"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Render    RenderConfig    `yaml:"render"`
	Recording RecordingConfig `yaml:"recording"`
	Transport TransportConfig `yaml:"transport"`
}

// AudioConfig holds settings related to audio capture.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for audio input (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per capture callback.
	LowLatency      bool    `yaml:"low_latency"`       // Request the device's low input latency.
	InputChannels   int     `yaml:"input_channels"`    // Number of input channels to capture.
}

// AnalysisConfig holds the spectrum pipeline settings.
type AnalysisConfig struct {
	FFTSize          int     `yaml:"fft_size"`          // Samples per transform, a power of two.
	OverlapPercent   float64 `yaml:"overlap_percent"`   // Share of each frame repeated in the next, [0, 100).
	AveragingSeconds float64 `yaml:"averaging_seconds"` // Time constant of the spectrum average, in seconds.
	Window           string  `yaml:"window"`            // Window function name (e.g., "blackman-harris", "hann").
	ExchangeDepth    int     `yaml:"exchange_depth"`    // Output slots between producer and render loop.
	HistorySeconds   float64 `yaml:"history_seconds"`   // Audio buffered ahead of the transform.
}

// RenderConfig holds settings for the render loop.
type RenderConfig struct {
	Mode        string  `yaml:"mode"`         // "timer" or "dedicated".
	FrameRate   float64 `yaml:"frame_rate"`   // Paints per second.
	RefreshRate float64 `yaml:"refresh_rate"` // Timer rate in timer mode.
	TUI         bool    `yaml:"tui"`          // Show the terminal monitor.
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Enable audio recording to file.
	OutputDir string `yaml:"output_dir"` // Directory to save recorded audio files.
	BitDepth  int    `yaml:"bit_depth"`  // Bit depth for recorded audio (16, 24 or 32).
}

// TransportConfig holds settings related to sending spectra over the network.
type TransportConfig struct {
	HTTPAddress      string        `yaml:"http_address"`       // Serves /spectrum and /metrics; empty disables.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending spectra over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Minimum interval between UDP packets.
	LogEvery         int           `yaml:"log_every"`          // Log every Nth frame at debug level; 0 disables.
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     MinDeviceID,
			SampleRate:      pipeline.DefaultSampleRate,
			FramesPerBuffer: 512,
			InputChannels:   pipeline.DefaultChannels,
		},
		Analysis: AnalysisConfig{
			FFTSize:          pipeline.DefaultFFTSize,
			OverlapPercent:   pipeline.DefaultOverlapPercent,
			AveragingSeconds: pipeline.DefaultAveragingSeconds,
			Window:           analysis.BlackmanHarris.String(),
			ExchangeDepth:    pipeline.DefaultExchangeDepth,
			HistorySeconds:   pipeline.DefaultHistorySeconds,
		},
		Render: RenderConfig{
			Mode:        render.ModeTimer.String(),
			FrameRate:   render.DefaultFrameRate,
			RefreshRate: render.DefaultRefreshRate,
		},
		Recording: RecordingConfig{
			OutputDir: "./recordings",
			BitDepth:  16,
		},
		Transport: TransportConfig{
			HTTPAddress:      "127.0.0.1:8080",
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  33 * time.Millisecond, // ~30Hz.
		},
	}
}

// Validate reports the first invalid setting, wrapped in ErrConfig.
func (c *Config) Validate() error {
	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("%w: unknown log_level '%s'", ErrConfig, c.LogLevel)
	}

	// Audio
	if c.Audio.InputDevice < MinDeviceID {
		return fmt.Errorf("%w: audio.input_device must be >= %d, got %d", ErrConfig, MinDeviceID, c.Audio.InputDevice)
	}
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: audio.sample_rate must be in [%d, %d], got %v", ErrConfig, MinSampleRate, MaxSampleRate, c.Audio.SampleRate)
	}
	if c.Audio.FramesPerBuffer < 1 || c.Audio.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("%w: audio.frames_per_buffer must be in [1, %d], got %d", ErrConfig, MaxBufferFrames, c.Audio.FramesPerBuffer)
	}

	// Analysis
	if _, err := c.PipelineConfig(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	// Render
	if _, err := render.ParseMode(c.Render.Mode); err != nil {
		return fmt.Errorf("%w: render.mode: %w", ErrConfig, err)
	}
	if !(c.Render.FrameRate > 0) {
		return fmt.Errorf("%w: render.frame_rate must be positive, got %v", ErrConfig, c.Render.FrameRate)
	}
	if c.Render.RefreshRate < 0 {
		return fmt.Errorf("%w: render.refresh_rate must not be negative, got %v", ErrConfig, c.Render.RefreshRate)
	}

	// Recording
	if c.Recording.Enabled {
		switch c.Recording.BitDepth {
		case 16, 24, 32:
		default:
			return fmt.Errorf("%w: recording.bit_depth must be 16, 24 or 32, got %d", ErrConfig, c.Recording.BitDepth)
		}
		if strings.TrimSpace(c.Recording.OutputDir) == "" {
			return fmt.Errorf("%w: recording.output_dir must be set when recording is enabled", ErrConfig)
		}
	}

	// Transport
	if c.Transport.HTTPAddress != "" {
		if _, _, err := net.SplitHostPort(c.Transport.HTTPAddress); err != nil {
			return fmt.Errorf("%w: transport.http_address '%s': %w", ErrConfig, c.Transport.HTTPAddress, err)
		}
	}
	if c.Transport.UDPEnabled {
		if _, _, err := net.SplitHostPort(c.Transport.UDPTargetAddress); err != nil {
			return fmt.Errorf("%w: transport.udp_target_address '%s': %w", ErrConfig, c.Transport.UDPTargetAddress, err)
		}
		if c.Transport.UDPSendInterval < 0 {
			return fmt.Errorf("%w: transport.udp_send_interval must not be negative", ErrConfig)
		}
	}
	if c.Transport.LogEvery < 0 {
		return fmt.Errorf("%w: transport.log_every must not be negative, got %d", ErrConfig, c.Transport.LogEvery)
	}
	return nil
}

// PipelineConfig converts the audio and analysis sections into a pipeline
// configuration and validates it.
func (c *Config) PipelineConfig() (pipeline.Config, error) {
	window, err := analysis.ParseWindowFunc(c.Analysis.Window)
	if err != nil {
		return pipeline.Config{}, err
	}
	pc := pipeline.Config{
		SampleRate:             c.Audio.SampleRate,
		FFTSize:                c.Analysis.FFTSize,
		Channels:               c.Audio.InputChannels,
		OverlapPercent:         c.Analysis.OverlapPercent,
		AveragingWindowSeconds: c.Analysis.AveragingSeconds,
		Window:                 window,
		ExchangeDepth:          c.Analysis.ExchangeDepth,
		HistorySeconds:         c.Analysis.HistorySeconds,
		MaxBlockFrames:         max(c.Audio.FramesPerBuffer, pipeline.DefaultMaxBlockFrames),
	}
	if err := pc.Validate(); err != nil {
		return pipeline.Config{}, err
	}
	return pc, nil
}

// Level returns the effective log level.
func (c *Config) Level() log.LogLevel {
	if c.Debug {
		return log.LevelDebug
	}
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}

// RenderMode returns the parsed render mode.
func (c *Config) RenderMode() render.Mode {
	mode, _ := render.ParseMode(c.Render.Mode)
	return mode
}
