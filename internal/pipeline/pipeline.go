// SPDX-License-Identifier: MIT

/*
Package pipeline wires the sample ring, the frame processor and the output
exchange into the unit the capture engine feeds and the render loop reads.

Thread Safety:
  - ProcessBlock runs on the audio goroutine and owns the ring and processor.
    It never blocks, locks or allocates.
  - The exchange, the Ready channel and Stats may be used from any goroutine.
  - Reset starts a new configuration epoch and must not run concurrently with
    ProcessBlock.
*/
package pipeline

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"specview/internal/analysis"
	"specview/internal/exchange"
	"specview/internal/log"
	"specview/internal/metrics"
	"specview/internal/ring"
	"specview/internal/spectrum"
)

// ErrInvalidConfig wraps every configuration error returned by New.
var ErrInvalidConfig = errors.New("pipeline: invalid configuration")

// Defaults applied by DefaultConfig.
const (
	DefaultSampleRate       = 48000
	DefaultFFTSize          = 1024
	DefaultChannels         = 2
	DefaultOverlapPercent   = 75
	DefaultAveragingSeconds = 0.1
	DefaultExchangeDepth    = 2
	DefaultHistorySeconds   = 1
	DefaultMaxBlockFrames   = 4096
)

// Config is the full pipeline configuration. Changing any field requires a
// new Pipeline.
type Config struct {
	SampleRate             float64
	FFTSize                int
	Channels               int
	OverlapPercent         float64
	AveragingWindowSeconds float64
	Window                 analysis.WindowFunc
	ExchangeDepth          int
	HistorySeconds         float64
	MaxBlockFrames         int
}

// DefaultConfig returns a stereo 48 kHz configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:             DefaultSampleRate,
		FFTSize:                DefaultFFTSize,
		Channels:               DefaultChannels,
		OverlapPercent:         DefaultOverlapPercent,
		AveragingWindowSeconds: DefaultAveragingSeconds,
		Window:                 analysis.BlackmanHarris,
		ExchangeDepth:          DefaultExchangeDepth,
		HistorySeconds:         DefaultHistorySeconds,
		MaxBlockFrames:         DefaultMaxBlockFrames,
	}
}

// Analysis returns the frame processor part of c.
func (c Config) Analysis() analysis.Config {
	return analysis.Config{
		SampleRate:             c.SampleRate,
		FFTSize:                c.FFTSize,
		Channels:               c.Channels,
		OverlapPercent:         c.OverlapPercent,
		AveragingWindowSeconds: c.AveragingWindowSeconds,
		Window:                 c.Window,
	}
}

// Validate reports the first configuration error wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if err := c.Analysis().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.ExchangeDepth < 0 {
		return fmt.Errorf("%w: exchange depth must not be negative, got %d", ErrInvalidConfig, c.ExchangeDepth)
	}
	if c.HistorySeconds < 0 || math.IsNaN(c.HistorySeconds) {
		return fmt.Errorf("%w: history must not be negative, got %v", ErrInvalidConfig, c.HistorySeconds)
	}
	if c.MaxBlockFrames < 1 {
		return fmt.Errorf("%w: max block frames must be positive, got %d", ErrInvalidConfig, c.MaxBlockFrames)
	}
	return nil
}

// RingSamples returns the minimum sample ring capacity for c.
func (c Config) RingSamples() int {
	history := int(math.Ceil(c.HistorySeconds * c.SampleRate))
	return max(history+c.MaxBlockFrames, 2*c.FFTSize)
}

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	Blocks         uint64 // Blocks passed to ProcessBlock.
	SamplesWritten uint64 // Frames of audio accepted into the ring.
	SamplesDropped uint64 // Frames discarded by ring overrun.
	Frames         uint64 // Spectra published since the last Reset.
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The pipeline logs under the "pipeline"
// component and hands "analysis" to the frame processor.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the diagnostics registry.
func WithMetrics(r *metrics.Registry) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.metrics = r
		}
	}
}

// Pipeline is one configured analysis chain.
type Pipeline struct {
	cfg       Config
	samples   ring.Samples
	processor *analysis.FrameProcessor
	exchange  *exchange.Exchange
	ready     chan struct{}

	blocks  atomic.Uint64
	written atomic.Uint64
	dropped atomic.Uint64

	logger  *log.Logger
	metrics *metrics.Registry
}

// New validates cfg and allocates every buffer the pipeline will use.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:   cfg,
		ready: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.Nop()
	}
	if p.metrics == nil {
		p.metrics = metrics.New("default")
	}

	processor, err := analysis.NewFrameProcessor(cfg.Analysis(), p.logger.With("analysis"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	p.processor = processor

	p.exchange, err = exchange.New(cfg.ExchangeDepth, cfg.Channels, cfg.FFTSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	size, err := p.samples.Configure(cfg.Channels, cfg.RingSamples())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	p.samples.Reset(processor.OverlapSamples())

	p.metrics.Gauge(metrics.RingStoredMetricName, func() float64 {
		return float64(p.samples.Stored())
	})

	p.logger.With("pipeline").Infof("Pipeline ready (channels %d, ring %d samples, exchange depth %d)",
		cfg.Channels, size, p.exchange.Depth())
	return p, nil
}

// ProcessBlock accepts one planar block of audio from the capture callback,
// analyzes every complete frame and signals Ready when at least one spectrum
// was published.
func (p *Pipeline) ProcessBlock(block [][]float32) {
	if len(block) == 0 {
		return
	}
	frames := len(block[0])

	dropped := p.samples.Write(block)
	processed := p.processor.Process(&p.samples, p.exchange)

	p.blocks.Add(1)
	p.written.Add(uint64(frames))
	p.metrics.Blocks.Inc()
	p.metrics.SamplesWritten.Add(frames)
	if dropped > 0 {
		p.dropped.Add(uint64(dropped))
		p.metrics.SamplesDropped.Add(dropped)
	}
	if processed > 0 {
		p.metrics.Frames.Add(processed)
		p.signal()
	}
}

// signal performs a non-blocking send; a pending signal already covers the
// new data.
func (p *Pipeline) signal() {
	select {
	case p.ready <- struct{}{}:
	default:
	}
}

// Ready delivers a value after new spectra were published. Signals coalesce,
// so one receive may cover several frames.
func (p *Pipeline) Ready() <-chan struct{} {
	return p.ready
}

// MostRecentSpectrum returns the latest published output. See
// exchange.Exchange.MostRecent for the validity window.
func (p *Pipeline) MostRecentSpectrum() (*exchange.Output, bool) {
	return p.exchange.MostRecent()
}

// Exchange returns the output exchange for consumers.
func (p *Pipeline) Exchange() *exchange.Exchange {
	return p.exchange
}

// Processor returns the frame processor. Its spectra belong to the audio
// goroutine; other goroutines only use its configuration accessors.
func (p *Pipeline) Processor() *analysis.FrameProcessor {
	return p.processor
}

// Metrics returns the diagnostics registry.
func (p *Pipeline) Metrics() *metrics.Registry {
	return p.metrics
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Bins returns the number of bins per channel of every published spectrum.
func (p *Pipeline) Bins() int {
	return p.processor.Bins()
}

// Reset starts a new epoch. The ring is primed with one overlap of silence so
// the first full block completes a frame, and the moving average, the exchange
// and any pending ready signal are cleared.
func (p *Pipeline) Reset() {
	p.samples.Reset(p.processor.OverlapSamples())
	p.processor.Reset()
	p.exchange.Reset()
	select {
	case <-p.ready:
	default:
	}
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Blocks:         p.blocks.Load(),
		SamplesWritten: p.written.Load(),
		SamplesDropped: p.dropped.Load(),
		Frames:         p.exchange.Published(),
	}
}

// Close stops exposing the pipeline metrics and logs the final counters.
func (p *Pipeline) Close() error {
	s := p.Stats()
	p.logger.With("pipeline").Infof("Pipeline closed (blocks %d, samples %d, dropped %d, frames %d)",
		s.Blocks, s.SamplesWritten, s.SamplesDropped, s.Frames)
	p.metrics.Close()
	return nil
}

// Analyze runs a whole planar signal through a fresh pipeline one hop at a
// time, so that every block completes exactly one frame, and calls fn with a
// copy of each published output. It is used for offline analysis of recorded
// files.
func Analyze(cfg Config, signal [][]float32, fn func(*exchange.Output), opts ...Option) (Stats, error) {
	p, err := New(cfg, opts...)
	if err != nil {
		return Stats{}, err
	}
	defer p.Close()

	total := 0
	if len(signal) > 0 {
		total = len(signal[0])
	}

	hop := p.processor.Hop()
	out := p.exchange.NewOutput()
	block := make([][]float32, len(signal))
	for start := 0; start < total; start += hop {
		end := min(start+hop, total)
		for ch := range signal {
			block[ch] = signal[ch][start:end]
		}

		before := p.exchange.Published()
		p.ProcessBlock(block)
		if fn != nil && p.exchange.Published() != before && p.exchange.CopyMostRecent(out) {
			fn(out)
		}
	}
	return p.Stats(), nil
}

// Peak returns the bin and value of the largest magnitude of channel ch.
func Peak(s *spectrum.Spectrum[float32], ch int) (int, float32) {
	peakBin, peak := 0, float32(0)
	for bin, v := range s.Channel(ch) {
		if v > peak {
			peakBin, peak = bin, v
		}
	}
	return peakBin, peak
}
