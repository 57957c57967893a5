// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"specview/internal/exchange"
	"specview/internal/log"
	"specview/internal/ring"
	"specview/internal/spectrum"
	"specview/pkg/bitint"
)

// MinFFTSize is the smallest supported transform.
const MinFFTSize = 4

// Configuration errors returned by NewFrameProcessor.
var (
	ErrFFTSize    = errors.New("fft size must be a power of two")
	ErrSampleRate = errors.New("sample rate must be positive")
	ErrChannels   = errors.New("channel count must be positive")
	ErrOverlap    = errors.New("overlap must be in [0, 100)")
	ErrAveraging  = errors.New("averaging window must be positive")
)

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

// Enum for available window functions. BlackmanHarris is the default.
const (
	BlackmanHarris WindowFunc = iota
	BartlettHann
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
	Rectangular
)

var windowNames = [...]string{
	BlackmanHarris:  "blackmanharris",
	BartlettHann:    "bartletthann",
	Blackman:        "blackman",
	BlackmanNuttall: "blackmannuttall",
	Hann:            "hann",
	Hamming:         "hamming",
	Lanczos:         "lanczos",
	Nuttall:         "nuttall",
	Rectangular:     "rectangular",
}

func (w WindowFunc) String() string {
	if w >= 0 && int(w) < len(windowNames) {
		return windowNames[w]
	}
	return fmt.Sprintf("WindowFunc(%d)", int(w))
}

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns the default (BlackmanHarris) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "")) {
	case "", "blackmanharris":
		return BlackmanHarris, nil
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	case "rectangular", "none":
		return Rectangular, nil
	default:
		return BlackmanHarris, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// applyWindow fills coeffs with the selected window. Unknown types fall back
// to BlackmanHarris.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	// The gonum window functions multiply in place.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	case Rectangular:
		window.Rectangular(coeffs)
	default:
		window.BlackmanHarris(coeffs)
	}
}

// Config is the analysis part of a pipeline configuration.
type Config struct {
	SampleRate             float64
	FFTSize                int
	Channels               int
	OverlapPercent         float64
	AveragingWindowSeconds float64
	Window                 WindowFunc
}

// Validate reports the first configuration error, wrapping one of the
// package's sentinel errors.
func (c Config) Validate() error {
	if !bitint.IsPowerOfTwo(c.FFTSize) || c.FFTSize < MinFFTSize {
		return fmt.Errorf("%w and at least %d, got %d", ErrFFTSize, MinFFTSize, c.FFTSize)
	}
	if !(c.SampleRate > 0) || math.IsInf(c.SampleRate, 0) {
		return fmt.Errorf("%w, got %v", ErrSampleRate, c.SampleRate)
	}
	if c.Channels < 1 {
		return fmt.Errorf("%w, got %d", ErrChannels, c.Channels)
	}
	if !(c.OverlapPercent >= 0 && c.OverlapPercent < 100) {
		return fmt.Errorf("%w, got %v", ErrOverlap, c.OverlapPercent)
	}
	if !(c.AveragingWindowSeconds > 0) {
		return fmt.Errorf("%w, got %v", ErrAveraging, c.AveragingWindowSeconds)
	}
	return nil
}

// FrameProcessor turns overlapping windows of ring samples into magnitude
// spectra and a moving average of them, and publishes both to an exchange.
//
// A FrameProcessor belongs to the audio goroutine. All buffers are allocated
// by NewFrameProcessor; Process does not allocate.
type FrameProcessor struct {
	cfg     Config
	fft     *fourier.FFT
	window  []float64
	frame   [][]float32 // Ring read buffer, one slice per channel.
	input   []float64   // Windowed frame of one channel.
	bins    int
	overlap int
	hop     int
	weight  float64
	scale   float64
	frames  uint64

	coeffs    *spectrum.Spectrum[complex128]
	magnitude *spectrum.Spectrum[float32]
	average   *spectrum.Spectrum[float32]

	logger *log.Logger
}

// Compile-time checks for interface implementations.
var _ SpectrumProvider = (*FrameProcessor)(nil)

// NewFrameProcessor validates cfg and allocates every buffer the processor
// needs. A nil logger discards output.
func NewFrameProcessor(cfg Config, logger *log.Logger) (*FrameProcessor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Nop()
	}

	n := cfg.FFTSize
	overlap := min(int(math.Round(float64(n)*cfg.OverlapPercent/100)), n-1)
	hop := n - overlap

	p := &FrameProcessor{
		cfg:     cfg,
		fft:     fourier.NewFFT(n),
		window:  make([]float64, n),
		frame:   make([][]float32, cfg.Channels),
		input:   make([]float64, n),
		bins:    n/2 + 1,
		overlap: overlap,
		hop:     hop,
		weight:  averagingWeight(cfg.SampleRate, hop, cfg.AveragingWindowSeconds),
		scale:   2 / float64(n),
		logger:  logger,
	}
	applyWindow(p.window, cfg.Window)
	for ch := range p.frame {
		p.frame[ch] = make([]float32, n)
	}
	p.coeffs = spectrum.New[complex128](cfg.Channels, p.bins)
	p.magnitude = spectrum.New[float32](cfg.Channels, p.bins)
	p.average = spectrum.New[float32](cfg.Channels, p.bins)

	logger.Infof("Initializing frame processor (size %d, hop %d, overlap %d, rate %.1f Hz, window %v, weight %.4f)",
		n, hop, overlap, cfg.SampleRate, cfg.Window, p.weight)
	return p, nil
}

// averagingWeight is the exponential moving average weight that gives a time
// constant of seconds at the spectrum rate sampleRate/hop, clamped to [0, 1).
func averagingWeight(sampleRate float64, hop int, seconds float64) float64 {
	spectraPerSecond := sampleRate / float64(hop)
	weight := 1 - 1/(spectraPerSecond*seconds)
	if weight < 0 || math.IsNaN(weight) {
		return 0
	}
	if weight >= 1 {
		return math.Nextafter(1, 0)
	}
	return weight
}

// Process analyzes every complete frame available in src. Each frame reads
// FFTSize samples and advances by Hop, is windowed and transformed per
// channel, and is published to out (nil discards). It returns the number of
// frames processed.
func (p *FrameProcessor) Process(src *ring.Samples, out *exchange.Exchange) int {
	processed := 0
	for src.Stored() >= p.cfg.FFTSize {
		src.Read(p.frame, p.cfg.FFTSize, p.hop)
		p.analyze()
		if out != nil {
			p.publish(out)
		}
		processed++
	}
	return processed
}

// analyze computes the instantaneous and averaged spectra of p.frame.
func (p *FrameProcessor) analyze() {
	w := p.weight
	for ch, samples := range p.frame {
		for i, s := range samples {
			p.input[i] = float64(s) * p.window[i]
		}

		coeffs := p.fft.Coefficients(p.coeffs.Channel(ch), p.input)
		magnitude := p.magnitude.Channel(ch)
		average := p.average.Channel(ch)
		for bin, c := range coeffs {
			m := cmplx.Abs(c) * p.scale
			magnitude[bin] = float32(m)
			average[bin] = float32(w*float64(average[bin]) + (1-w)*m)
		}
	}
	p.frames++
}

func (p *FrameProcessor) publish(out *exchange.Exchange) {
	slot := out.WriteSlot()
	slot.Spectrum.CopyFrom(p.magnitude)
	slot.Average.CopyFrom(p.average)
	slot.Frame = p.frames
	out.AdvanceWrite()
}

// Reset clears the moving average and the frame counter, starting a new
// configuration epoch.
func (p *FrameProcessor) Reset() {
	p.coeffs.Clear()
	p.magnitude.Clear()
	p.average.Clear()
	p.frames = 0
}

// Magnitudes returns the instantaneous spectrum of the last processed frame.
// The result aliases processor state and is only valid on the audio goroutine.
func (p *FrameProcessor) Magnitudes() *spectrum.Spectrum[float32] {
	return p.magnitude
}

// Average returns the moving-average spectrum. Same aliasing rules as
// Magnitudes.
func (p *FrameProcessor) Average() *spectrum.Spectrum[float32] {
	return p.average
}

// Frames returns the number of frames processed since the last Reset.
func (p *FrameProcessor) Frames() uint64 { return p.frames }

// FFTSize returns the configured FFT size (number of points).
func (p *FrameProcessor) FFTSize() int { return p.cfg.FFTSize }

// SampleRate returns the configured sample rate (Hz).
func (p *FrameProcessor) SampleRate() float64 { return p.cfg.SampleRate }

// Channels returns the configured channel count.
func (p *FrameProcessor) Channels() int { return p.cfg.Channels }

// Bins returns FFTSize/2 + 1.
func (p *FrameProcessor) Bins() int { return p.bins }

// Hop returns the number of samples the read cursor advances per frame.
func (p *FrameProcessor) Hop() int { return p.hop }

// OverlapSamples returns FFTSize - Hop.
func (p *FrameProcessor) OverlapSamples() int { return p.overlap }

// Weight returns the moving average weight.
func (p *FrameProcessor) Weight() float64 { return p.weight }

// Window returns the configured window function.
func (p *FrameProcessor) Window() WindowFunc { return p.cfg.Window }

// HertzPerBin returns the frequency resolution.
func (p *FrameProcessor) HertzPerBin() float64 {
	return p.cfg.SampleRate / float64(p.cfg.FFTSize)
}

// FrequencyForBin returns the center frequency (Hz) for a given FFT bin index,
// or 0 for an index outside [0, Bins()).
func (p *FrameProcessor) FrequencyForBin(binIndex int) float64 {
	if binIndex < 0 || binIndex >= p.bins {
		return 0.0
	}
	return float64(binIndex) * p.HertzPerBin()
}
