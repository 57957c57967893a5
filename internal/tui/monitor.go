// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"specview/internal/pipeline"
	"specview/internal/render"
)

// Meter animation.
const (
	springFPS       = 30
	springFrequency = 8.0
	springDamping   = 0.8
	dbFloor         = -60.0
	minBarWidth     = 10
	maxBarWidth     = 60
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB000")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F1F")).Bold(true)
	labelStyle = lipgloss.NewStyle().Width(8)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
)

var barChars = []rune(" ▁▂▃▄▅▆▇█")

// Band is one labelled energy reading.
type Band struct {
	Name   string
	Energy float64
}

// StatsMsg is the snapshot the monitor renders. Send it with
// tea.Program.Send; the slices must not be modified afterwards.
type StatsMsg struct {
	Render   render.Stats
	Pipeline pipeline.Stats
	Bands    []Band
	Spectrum []float32 // Averaged magnitudes of the first channel.
	Bass     float64
	Pulse    bool
	Onsets   uint64
	PeakHz   float64
	PeakMag  float32
	Clients  int
}

// MonitorModel is the Bubble Tea model of the live diagnostics view.
type MonitorModel struct {
	title    string
	stats    StatsMsg
	received bool
	width    int
	bar      progress.Model
	spring   harmonica.Spring
	pos      []float64
	vel      []float64
	onQuit   func()
	quitKeys key.Binding
	resetKey key.Binding
	onReset  func()
}

// NewMonitorModel returns a monitor. onQuit runs when the user quits and
// onReset when stats are reset; either may be nil.
func NewMonitorModel(title string, onQuit, onReset func()) MonitorModel {
	return MonitorModel{
		title: title,
		width: 80,
		bar: progress.New(
			progress.WithScaledGradient("#25A065", "#FF5F1F"),
			progress.WithoutPercentage(),
			progress.WithWidth(40),
		),
		spring:   harmonica.NewSpring(harmonica.FPS(springFPS), springFrequency, springDamping),
		onQuit:   onQuit,
		onReset:  onReset,
		quitKeys: key.NewBinding(key.WithKeys("q", "ctrl+c", "esc")),
		resetKey: key.NewBinding(key.WithKeys("r")),
	}
}

// Init implements tea.Model.
func (m MonitorModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(minBarWidth, min(maxBarWidth, msg.Width-labelStyle.GetWidth()-12))

	case StatsMsg:
		m.stats = msg
		m.received = true
		m.animate()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.quitKeys):
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		case key.Matches(msg, m.resetKey):
			if m.onReset != nil {
				m.onReset()
			}
		}
	}
	return m, nil
}

// animate moves every meter one spring step toward its band level.
func (m *MonitorModel) animate() {
	if len(m.pos) != len(m.stats.Bands) {
		m.pos = make([]float64, len(m.stats.Bands))
		m.vel = make([]float64, len(m.stats.Bands))
	}
	for i, b := range m.stats.Bands {
		m.pos[i], m.vel[i] = m.spring.Update(m.pos[i], m.vel[i], Level(b.Energy))
	}
}

// View implements tea.Model.
func (m MonitorModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n\n")

	if !m.received {
		sb.WriteString(infoStyle.Render("Waiting for audio..."))
		sb.WriteString("\n")
		return sb.String()
	}

	s := m.stats
	fmt.Fprintf(&sb, "Render   %s  %.1f fps (nominal %.0f)  jitter %.2fms\n",
		healthStyle(s.Render.Health()).Render(s.Render.Health().String()),
		s.Render.FPS(), 1/s.Render.Nominal.Seconds(), s.Render.IntervalStdDev*1000)
	fmt.Fprintf(&sb, "Frames   %d painted, %d repainted, %d skipped, %d resyncs\n",
		s.Render.Paints, s.Render.Repaints, s.Render.Skipped, s.Render.Resyncs)
	fmt.Fprintf(&sb, "Pipeline %d blocks, %d spectra, %d samples dropped\n",
		s.Pipeline.Blocks, s.Pipeline.Frames, s.Pipeline.SamplesDropped)
	fmt.Fprintf(&sb, "Peak     %.1f Hz at %.4f", s.PeakHz, s.PeakMag)
	if s.Clients > 0 {
		fmt.Fprintf(&sb, "  (%d clients)", s.Clients)
	}
	sb.WriteString("\n\n")

	for i, b := range s.Bands {
		level := 0.0
		if i < len(m.pos) {
			level = max(0, min(1, m.pos[i]))
		}
		fmt.Fprintf(&sb, "%s %s %6.1f dB\n", labelStyle.Render(b.Name), m.bar.ViewAs(level), Decibels(b.Energy))
	}

	pulse := dimStyle.Render("○")
	if s.Pulse {
		pulse = errStyle.Render("●")
	}
	fmt.Fprintf(&sb, "\n%s bass %.3f  onsets %d\n", pulse, s.Bass, s.Onsets)

	if line := Sparkline(s.Spectrum, max(minBarWidth, m.width-2)); line != "" {
		sb.WriteString("\n")
		sb.WriteString(highlightStyle.Render(line))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render("r: Reset stats • q: Quit"))
	return sb.String()
}

func healthStyle(h render.Health) lipgloss.Style {
	switch h {
	case render.HealthOK:
		return okStyle
	case render.HealthSlow:
		return warnStyle
	case render.HealthStalled:
		return errStyle
	default:
		return dimStyle
	}
}

// Decibels converts a magnitude to dBFS, floored at dbFloor.
func Decibels(mag float64) float64 {
	if mag <= 0 {
		return dbFloor
	}
	return max(dbFloor, 20*math.Log10(mag))
}

// Level maps a magnitude to [0, 1] on a dB scale between dbFloor and 0 dBFS.
func Level(mag float64) float64 {
	return min(1, (Decibels(mag)-dbFloor)/-dbFloor)
}

// Sparkline draws spectrum as one row of block glyphs, width columns wide.
// Bins are grouped on a logarithmic axis and each column shows its peak.
func Sparkline(spectrum []float32, width int) string {
	if len(spectrum) < 2 || width < 1 {
		return ""
	}

	// Skip DC; columns span bins [1, len) logarithmically.
	bins := float64(len(spectrum) - 1)
	out := make([]rune, width)
	lo := 1
	for col := range out {
		hi := int(math.Round(math.Pow(bins, float64(col+1)/float64(width)))) + 1
		hi = max(hi, lo+1)
		hi = min(hi, len(spectrum))

		var peak float32
		for _, v := range spectrum[min(lo, hi-1):hi] {
			peak = max(peak, v)
		}
		idx := int(math.Round(Level(float64(peak)) * float64(len(barChars)-1)))
		out[col] = barChars[idx]
		lo = hi
	}
	return string(out)
}
