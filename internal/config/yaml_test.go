// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"specview/internal/analysis"
	"specview/internal/log"
	"specview/internal/pipeline"
	"specview/internal/render"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.Analysis.FFTSize != pipeline.DefaultFFTSize || cfg.Render.FrameRate != render.DefaultFrameRate {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("expected unmarshal error, got %v", err)
	}
}

func TestLoadConfig_UnknownKey(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, "analysis:\n  fft_sise: 2048\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected an error for a misspelled key")
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeTempConfig(t, `
log_level: warn
audio:
  sample_rate: 44100
  input_channels: 1
analysis:
  fft_size: 2048
  overlap_percent: 50
  window: hann
render:
  mode: dedicated
  frame_rate: 30
transport:
  udp_enabled: true
  udp_send_interval: 20ms
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Level() != log.LevelWarn {
		t.Errorf("Level() = %v", cfg.Level())
	}
	if cfg.RenderMode() != render.ModeDedicated || cfg.Render.FrameRate != 30 {
		t.Errorf("render = %+v", cfg.Render)
	}
	if cfg.Transport.UDPSendInterval != 20*time.Millisecond {
		t.Errorf("udp_send_interval = %v", cfg.Transport.UDPSendInterval)
	}
	// Untouched keys keep their defaults.
	if cfg.Render.RefreshRate != render.DefaultRefreshRate || cfg.Transport.UDPTargetAddress != "127.0.0.1:9090" {
		t.Errorf("defaults lost: %+v", cfg)
	}

	pc, err := cfg.PipelineConfig()
	if err != nil {
		t.Fatal(err)
	}
	want := pipeline.Config{
		SampleRate:             44100,
		FFTSize:                2048,
		Channels:               1,
		OverlapPercent:         50,
		AveragingWindowSeconds: pipeline.DefaultAveragingSeconds,
		Window:                 analysis.Hann,
		ExchangeDepth:          pipeline.DefaultExchangeDepth,
		HistorySeconds:         pipeline.DefaultHistorySeconds,
		MaxBlockFrames:         pipeline.DefaultMaxBlockFrames,
	}
	if pc != want {
		t.Errorf("PipelineConfig() = %+v\nexpected %+v", pc, want)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENV_DEBUG", "true")
	t.Setenv("ENV_FFT_SIZE", "4096")
	t.Setenv("ENV_UDP_ENABLED", "1")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "10.0.0.2:7000")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "not-a-duration")

	path := writeTempConfig(t, "analysis:\n  fft_size: 512\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Level() != log.LevelDebug {
		t.Errorf("ENV_DEBUG ignored: %v", cfg.Level())
	}
	if cfg.Analysis.FFTSize != 4096 {
		t.Errorf("fft_size = %d, expected the env value", cfg.Analysis.FFTSize)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "10.0.0.2:7000" {
		t.Errorf("transport = %+v", cfg.Transport)
	}
	if cfg.Transport.UDPSendInterval != 33*time.Millisecond {
		t.Errorf("bad duration should be ignored, got %v", cfg.Transport.UDPSendInterval)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"device", func(c *Config) { c.Audio.InputDevice = -2 }},
		{"sample rate", func(c *Config) { c.Audio.SampleRate = 1000 }},
		{"frames per buffer", func(c *Config) { c.Audio.FramesPerBuffer = 0 }},
		{"channels", func(c *Config) { c.Audio.InputChannels = 0 }},
		{"fft size", func(c *Config) { c.Analysis.FFTSize = 1000 }},
		{"overlap", func(c *Config) { c.Analysis.OverlapPercent = 100 }},
		{"window", func(c *Config) { c.Analysis.Window = "triangle" }},
		{"mode", func(c *Config) { c.Render.Mode = "vsync" }},
		{"frame rate", func(c *Config) { c.Render.FrameRate = 0 }},
		{"bit depth", func(c *Config) { c.Recording.Enabled = true; c.Recording.BitDepth = 8 }},
		{"http address", func(c *Config) { c.Transport.HTTPAddress = "localhost" }},
		{"udp address", func(c *Config) { c.Transport.UDPEnabled = true; c.Transport.UDPTargetAddress = "nowhere" }},
		{"log every", func(c *Config) { c.Transport.LogEvery = -1 }},
	}

	base := Default()
	if err := base.Validate(); err != nil {
		t.Fatalf("Default() is invalid: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
				t.Errorf("Validate() = %v, expected ErrConfig", err)
			}
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Analysis.Window = "nuttall"

	data, err := Marshal(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "udp_send_interval: 33ms") {
		t.Errorf("durations should encode as strings:\n%s", data)
	}

	var decoded Config
	if err := Parse(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded != cfg {
		t.Errorf("decoded %+v\nexpected %+v", decoded, cfg)
	}
}
