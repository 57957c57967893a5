// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"time"

	"specview/internal/analysis"
	"specview/internal/exchange"
	"specview/internal/metrics"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: closed")

// Transport defines a generic interface for sending processed data or events.
// Implementations must be safe for concurrent use and must not retain data
// after Send returns: render frames alias buffers that are reused.
type Transport interface {
	Send(data any) error
	Close() error
}

// Frame is the payload published for every paint.
type Frame struct {
	Type       string             `json:"type"`
	Frame      uint64             `json:"frame"`
	Timestamp  int64              `json:"timestamp"` // Unix nanoseconds.
	Fresh      bool               `json:"fresh"`
	SampleRate float64            `json:"sampleRate"`
	FFTSize    int                `json:"fftSize"`
	Average    [][]float32        `json:"average"`
	Bands      map[string]float64 `json:"bands"`
	Bass       float64            `json:"bass"`
	Pulse      bool               `json:"pulse"`
}

// FrameBuilder turns exchange outputs into Frames, computing band energies and
// the bass pulse on the way. It reuses one Frame and is meant for the render
// goroutine.
type FrameBuilder struct {
	provider analysis.SpectrumProvider
	bands    []analysis.FrequencyBand
	energies []float64
	pulse    *analysis.BassPulse
	frame    Frame
}

// NewFrameBuilder returns a builder using the default bands and bass range.
func NewFrameBuilder(provider analysis.SpectrumProvider) *FrameBuilder {
	b := &FrameBuilder{
		provider: provider,
		bands:    analysis.DefaultBands,
		energies: make([]float64, len(analysis.DefaultBands)),
		pulse:    analysis.NewBassPulse(),
	}
	b.frame = Frame{
		Type:       "spectrum",
		SampleRate: provider.SampleRate(),
		FFTSize:    provider.FFTSize(),
		Bands:      make(map[string]float64, len(b.bands)),
	}
	return b
}

// Build fills the builder's Frame from out. The returned Frame aliases out and
// is valid until the next Build.
func (b *FrameBuilder) Build(out *exchange.Output, fresh bool, now time.Time) *Frame {
	f := &b.frame
	f.Frame = out.Frame
	f.Timestamp = now.UnixNano()
	f.Fresh = fresh

	channels := out.Average.Channels()
	if cap(f.Average) < channels {
		f.Average = make([][]float32, channels)
	}
	f.Average = f.Average[:channels]
	for ch := range f.Average {
		f.Average[ch] = out.Average.Channel(ch)
	}

	hz := b.provider.HertzPerBin()
	b.energies = analysis.BandEnergies(out.Average, hz, b.bands, b.energies)
	for i, band := range b.bands {
		f.Bands[band.Name] = b.energies[i]
	}
	if fresh {
		f.Bass, f.Pulse, _ = b.pulse.Update(out.Average, hz)
	}
	return f
}

// Energies returns the band energies of the last Build, in band order.
func (b *FrameBuilder) Energies() []float64 {
	return b.energies
}

// Bands returns the band definitions.
func (b *FrameBuilder) Bands() []analysis.FrequencyBand {
	return b.bands
}

// Onsets returns the number of bass pulse onsets seen.
func (b *FrameBuilder) Onsets() uint64 {
	return b.pulse.Onsets()
}

// Multi fans a payload out to several transports. A failing transport does not
// stop delivery to the others; errors are joined and counted.
type Multi struct {
	transports []Transport
	metrics    *metrics.Registry
}

// NewMulti returns a fan-out over transports. reg may be nil.
func NewMulti(reg *metrics.Registry, transports ...Transport) *Multi {
	return &Multi{transports: transports, metrics: reg}
}

// Send delivers data to every transport.
func (m *Multi) Send(data any) error {
	var errs []error
	for _, t := range m.transports {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
			if m.metrics != nil {
				m.metrics.TransportErrors.Inc()
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every transport.
func (m *Multi) Close() error {
	var errs []error
	for _, t := range m.transports {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}

// Len returns the number of transports.
func (m *Multi) Len() int {
	return len(m.transports)
}

var _ Transport = (*Multi)(nil)
