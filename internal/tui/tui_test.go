// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"specview/internal/audio"
	"specview/internal/pipeline"
	"specview/internal/render"
)

func TestLevelAndDecibels(t *testing.T) {
	tests := []struct {
		mag   float64
		db    float64
		level float64
	}{
		{0, dbFloor, 0},
		{1e-9, dbFloor, 0},
		{0.001, -60, 0},
		{0.1, -20, 2.0 / 3},
		{1, 0, 1},
		{4, 20 * math.Log10(4), 1},
	}
	for _, tt := range tests {
		if got := Decibels(tt.mag); math.Abs(got-tt.db) > 1e-9 {
			t.Errorf("Decibels(%v) = %v, want %v", tt.mag, got, tt.db)
		}
		if got := Level(tt.mag); math.Abs(got-tt.level) > 1e-9 {
			t.Errorf("Level(%v) = %v, want %v", tt.mag, got, tt.level)
		}
	}
}

func TestSparkline(t *testing.T) {
	if Sparkline(nil, 10) != "" || Sparkline([]float32{1, 1}, 0) != "" {
		t.Error("expected empty output for degenerate input")
	}

	spectrum := make([]float32, 513)
	spectrum[512] = 1
	line := Sparkline(spectrum, 16)
	if utf8.RuneCountInString(line) != 16 {
		t.Fatalf("width = %d, want 16", utf8.RuneCountInString(line))
	}
	runes := []rune(line)
	if runes[15] != '█' {
		t.Errorf("last column = %q, want a full block", runes[15])
	}
	for i, r := range runes[:15] {
		if r != ' ' {
			t.Errorf("column %d = %q, want blank", i, r)
		}
	}

	// More columns than bins must not panic.
	if got := utf8.RuneCountInString(Sparkline(spectrum[:4], 40)); got != 40 {
		t.Errorf("narrow spectrum width = %d", got)
	}
}

func testStats() StatsMsg {
	return StatsMsg{
		Render: render.Stats{
			Nominal:      time.Second / 60,
			Paints:       120,
			Samples:      10,
			IntervalMean: 1.0 / 60,
		},
		Pipeline: pipeline.Stats{Blocks: 40, Frames: 160},
		Bands:    []Band{{"bass", 0.5}, {"treble", 0.001}},
		Spectrum: []float32{0, 0.5, 0.1, 0.01},
		Bass:     0.5,
		Pulse:    true,
		Onsets:   3,
		PeakHz:   93.75,
		PeakMag:  0.5,
		Clients:  2,
	}
}

func TestMonitorUpdateAndView(t *testing.T) {
	m := NewMonitorModel("specview", nil, nil)
	if !strings.Contains(m.View(), "Waiting for audio") {
		t.Errorf("initial view:\n%s", m.View())
	}

	model, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	for range 60 {
		model, _ = model.Update(testStats())
	}
	m = model.(MonitorModel)

	// One second of spring steps settles close to the target.
	if want := Level(0.5); math.Abs(m.pos[0]-want) > 0.05 {
		t.Errorf("bass meter = %v, want about %v", m.pos[0], want)
	}

	view := m.View()
	for _, want := range []string{"ok", "120 painted", "160 spectra", "93.8 Hz", "2 clients", "bass", "treble", "onsets 3"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestMonitorKeys(t *testing.T) {
	var quit, reset int
	m := NewMonitorModel("specview", func() { quit++ }, func() { reset++ })

	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	if reset != 1 || cmd != nil {
		t.Errorf("reset = %d, cmd = %v", reset, cmd)
	}
	_, cmd = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if quit != 1 || cmd == nil {
		t.Fatalf("quit = %d, cmd = %v", quit, cmd)
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestDeviceListSelection(t *testing.T) {
	devices := []audio.Device{
		{ID: 0, Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 44100},
		{ID: 1, Name: "Microphone", MaxInputChannels: 1, DefaultSampleRate: 48000},
		{ID: 2, Name: "Interface", MaxInputChannels: 8, MaxOutputChannels: 8, DefaultSampleRate: 96000},
	}
	m := NewDeviceListModel(func() ([]audio.Device, error) { return devices, nil })

	var model tea.Model = m
	model, _ = model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model, _ = model.Update(m.Init()())

	view := model.View()
	if strings.Contains(view, "Speakers") || !strings.Contains(view, "Interface") {
		t.Errorf("list should only show inputs:\n%s", view)
	}

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyDown})
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !strings.Contains(model.View(), "Configure Device: Interface") {
		t.Fatalf("config screen:\n%s", model.View())
	}

	// 96 kHz is preselected; move up to 88.2 kHz and confirm.
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyUp})
	model, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("confirming should quit")
	}

	sel := model.(DeviceListModel).Selection()
	want := Selection{DeviceID: 2, Name: "Interface", SampleRate: 88200, Channels: 2}
	if sel == nil || *sel != want {
		t.Errorf("Selection() = %+v, want %+v", sel, want)
	}
}

func TestDeviceListError(t *testing.T) {
	m := NewDeviceListModel(func() ([]audio.Device, error) { return nil, errors.New("no host API") })

	var model tea.Model = m
	model, _ = model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model, _ = model.Update(m.Init()())
	if !strings.Contains(model.View(), "no host API") {
		t.Errorf("view:\n%s", model.View())
	}
	if model.(DeviceListModel).Selection() != nil {
		t.Error("unexpected selection")
	}
}
