// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"specview/internal/exchange"
	"specview/internal/ring"
	"specview/pkg/utils"
)

const (
	testFFTSize    = 1024
	testSampleRate = 48000
)

func testConfig() Config {
	return Config{
		SampleRate:             testSampleRate,
		FFTSize:                testFFTSize,
		Channels:               1,
		OverlapPercent:         50,
		AveragingWindowSeconds: 0.1,
		Window:                 BlackmanHarris,
	}
}

func newTestRing(t testing.TB, channels, size int) *ring.Samples {
	t.Helper()
	var s ring.Samples
	if _, err := s.Configure(channels, size); err != nil {
		t.Fatal(err)
	}
	return &s
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"fft not power of two", func(c *Config) { c.FFTSize = 1000 }, ErrFFTSize},
		{"fft too small", func(c *Config) { c.FFTSize = 2 }, ErrFFTSize},
		{"fft zero", func(c *Config) { c.FFTSize = 0 }, ErrFFTSize},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, ErrSampleRate},
		{"nan sample rate", func(c *Config) { c.SampleRate = math.NaN() }, ErrSampleRate},
		{"no channels", func(c *Config) { c.Channels = 0 }, ErrChannels},
		{"negative overlap", func(c *Config) { c.OverlapPercent = -1 }, ErrOverlap},
		{"full overlap", func(c *Config) { c.OverlapPercent = 100 }, ErrOverlap},
		{"zero averaging", func(c *Config) { c.AveragingWindowSeconds = 0 }, ErrAveraging},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			_, err := NewFrameProcessor(cfg, nil)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("NewFrameProcessor() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewFrameProcessor() error = %v, expected %v", err, tt.wantErr)
			}
		})
	}
}

func TestHopAndWeight(t *testing.T) {
	tests := []struct {
		fftSize     int
		overlap     float64
		averaging   float64
		wantHop     int
		wantOverlap int
		wantWeight  float64
	}{
		{1024, 50, 0.1, 512, 512, 1 - 1/(48000.0/512*0.1)},
		{1024, 75, 0.1, 256, 768, 1 - 1/(48000.0/256*0.1)},
		{1024, 0, 0.1, 1024, 0, 1 - 1/(48000.0/1024*0.1)},
		{1024, 99.99, 0.1, 1, 1023, 1 - 1/(48000.0*0.1)},
		{4096, 50, 0.01, 2048, 2048, 0}, // Fewer than one spectrum per window clamps to zero.
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%v%%/%vs", tt.fftSize, tt.overlap, tt.averaging), func(t *testing.T) {
			cfg := testConfig()
			cfg.FFTSize = tt.fftSize
			cfg.OverlapPercent = tt.overlap
			cfg.AveragingWindowSeconds = tt.averaging

			p, err := NewFrameProcessor(cfg, nil)
			if err != nil {
				t.Fatal(err)
			}
			if p.Hop() != tt.wantHop || p.OverlapSamples() != tt.wantOverlap {
				t.Errorf("hop/overlap = %d/%d, expected %d/%d", p.Hop(), p.OverlapSamples(), tt.wantHop, tt.wantOverlap)
			}
			if math.Abs(p.Weight()-tt.wantWeight) > 1e-12 {
				t.Errorf("Weight() = %v, expected %v", p.Weight(), tt.wantWeight)
			}
			if p.Weight() < 0 || p.Weight() >= 1 {
				t.Errorf("Weight() = %v outside [0, 1)", p.Weight())
			}
		})
	}
}

func TestFrequencyForBin(t *testing.T) {
	p, err := NewFrameProcessor(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		bin  int
		want float64
	}{
		{0, 0},
		{1, 46.875},
		{21, 984.375},
		{testFFTSize / 2, 24000},
		{testFFTSize/2 + 1, 0},
		{-1, 0},
	}
	for _, tt := range tests {
		if got := p.FrequencyForBin(tt.bin); got != tt.want {
			t.Errorf("FrequencyForBin(%d) = %v, expected %v", tt.bin, got, tt.want)
		}
	}
	if p.Bins() != testFFTSize/2+1 {
		t.Errorf("Bins() = %d, expected %d", p.Bins(), testFFTSize/2+1)
	}
}

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		name    string
		want    WindowFunc
		wantErr bool
	}{
		{"", BlackmanHarris, false},
		{"Blackman-Harris", BlackmanHarris, false},
		{"hanning", Hann, false},
		{"HAMMING", Hamming, false},
		{"rectangular", Rectangular, false},
		{"nuttall", Nuttall, false},
		{"kaiser", BlackmanHarris, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindowFunc(tt.name)
			if got != tt.want || (err != nil) != tt.wantErr {
				t.Errorf("ParseWindowFunc(%q) = %v, %v", tt.name, got, err)
			}
		})
	}

	for w := BlackmanHarris; w <= Rectangular; w++ {
		if parsed, err := ParseWindowFunc(w.String()); err != nil || parsed != w {
			t.Errorf("round trip of %v gave %v, %v", w, parsed, err)
		}
	}
}

func TestProcessPeakAndScaling(t *testing.T) {
	p, err := NewFrameProcessor(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	src := newTestRing(t, 1, 4*testFFTSize)

	// 984.375 Hz sits exactly on bin 21, so the peak is the window's coherent gain.
	src.Write(utils.Planar(1, utils.GenerateSineWave(testFFTSize, testSampleRate, 984.375, 1)))
	if n := p.Process(src, nil); n != 1 {
		t.Fatalf("Process() = %d frames, expected 1", n)
	}

	mags := p.Magnitudes().Channel(0)
	if peak := utils.FindPeakBin(mags, 0, len(mags)-1); peak != 21 {
		t.Errorf("peak bin = %d, expected 21", peak)
	}
	const blackmanHarrisGain = 0.35875
	if got := float64(mags[21]); math.Abs(got-blackmanHarrisGain) > 1e-3 {
		t.Errorf("peak magnitude = %v, expected %v", got, blackmanHarrisGain)
	}
	if src.Stored() != testFFTSize-p.Hop() {
		t.Errorf("Stored() after one frame = %d, expected %d", src.Stored(), testFFTSize-p.Hop())
	}
}

func TestAveragingConverges(t *testing.T) {
	p, err := NewFrameProcessor(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	src := newTestRing(t, 1, 4*testFFTSize)
	tone := utils.GenerateSineWave(200*p.Hop()+testFFTSize, testSampleRate, 984.375, 1)

	block := [][]float32{nil}
	for offset := 0; offset+p.Hop() <= len(tone); offset += p.Hop() {
		block[0] = tone[offset : offset+p.Hop()]
		src.Write(block)
		p.Process(src, nil)
	}

	inst := float64(p.Magnitudes().Value(0, 21))
	avg := float64(p.Average().Value(0, 21))
	if math.Abs(avg-inst) > 1e-3*inst {
		t.Errorf("average %v did not converge to instantaneous %v after %d frames", avg, inst, p.Frames())
	}
}

// Ten 512-sample blocks of silence with a 1 kHz sine in block 5. The ring is
// primed with one hop of silence so that every block completes one frame.
func TestToneBurstRisesAndDecays(t *testing.T) {
	cfg := testConfig()
	p, err := NewFrameProcessor(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := exchange.New(2, cfg.Channels, cfg.FFTSize)
	if err != nil {
		t.Fatal(err)
	}
	src := newTestRing(t, 1, 4*testFFTSize)
	src.Reset(p.OverlapSamples())

	bin := int(math.Round(1000 / p.HertzPerBin()))
	silence := make([]float32, 512)
	tone := utils.GenerateSineWave(512, testSampleRate, 1000, 1)

	averages := make([]float32, 0, 10)
	for block := 1; block <= 10; block++ {
		samples := silence
		if block == 5 {
			samples = tone
		}
		src.Write([][]float32{samples})
		if n := p.Process(src, out); n != 1 {
			t.Fatalf("block %d produced %d frames, expected 1", block, n)
		}

		recent, ok := out.MostRecent()
		if !ok || recent.Frame != uint64(block) {
			t.Fatalf("block %d: most recent frame = %v, %v", block, recent, ok)
		}
		averages = append(averages, recent.Average.Value(0, bin))
	}

	for frame := 1; frame <= 4; frame++ {
		if averages[frame-1] > 1e-6 {
			t.Errorf("frame %d average = %v before the burst", frame, averages[frame-1])
		}
	}
	if !(averages[4] > averages[3] && averages[5] > averages[4]) {
		t.Errorf("average did not rise over frames 5-6: %v", averages)
	}
	for frame := 7; frame <= 10; frame++ {
		if !(averages[frame-1] < averages[frame-2]) {
			t.Errorf("average did not decay at frame %d: %v", frame, averages)
		}
	}
	if averages[9] <= 0 {
		t.Errorf("average faded out completely by frame 10: %v", averages)
	}
}

func TestResetClearsAverage(t *testing.T) {
	p, err := NewFrameProcessor(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	src := newTestRing(t, 1, 4*testFFTSize)
	src.Write(utils.Planar(1, utils.GenerateSineWave(2*testFFTSize, testSampleRate, 1000, 1)))
	p.Process(src, nil)

	p.Reset()
	if p.Frames() != 0 {
		t.Errorf("Frames() = %d after Reset", p.Frames())
	}
	for _, v := range p.Average().Channel(0) {
		if v != 0 {
			t.Fatal("average not cleared by Reset")
		}
	}
}

func TestProcessStereoChannelsIndependent(t *testing.T) {
	cfg := testConfig()
	cfg.Channels = 2
	p, err := NewFrameProcessor(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	src := newTestRing(t, 2, 4*testFFTSize)
	src.Write([][]float32{
		utils.GenerateSineWave(testFFTSize, testSampleRate, 984.375, 1),
		utils.GenerateSineWave(testFFTSize, testSampleRate, 46.875*64, 1),
	})
	p.Process(src, nil)

	left, right := p.Magnitudes().Channel(0), p.Magnitudes().Channel(1)
	if peak := utils.FindPeakBin(left, 0, len(left)-1); peak != 21 {
		t.Errorf("left peak = %d, expected 21", peak)
	}
	if peak := utils.FindPeakBin(right, 0, len(right)-1); peak != 64 {
		t.Errorf("right peak = %d, expected 64", peak)
	}
}

func TestProcessZeroAllocs(t *testing.T) {
	p, err := NewFrameProcessor(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := exchange.New(2, 1, testFFTSize)
	if err != nil {
		t.Fatal(err)
	}
	src := newTestRing(t, 1, 4*testFFTSize)
	block := utils.Planar(1, utils.GenerateComplexWave(512, testSampleRate))

	// Warm-up call so the first frame is not counted.
	src.Write(block)
	src.Write(block)
	p.Process(src, out)

	allocs := testing.AllocsPerRun(100, func() {
		src.Write(block)
		p.Process(src, out)
	})

	if allocs > 0 {
		t.Errorf("Expected zero allocations in frame processor hot path, got %.1f", allocs)
	}
}

func BenchmarkProcess(b *testing.B) {
	p, err := NewFrameProcessor(testConfig(), nil)
	if err != nil {
		b.Fatal(err)
	}
	out, err := exchange.New(2, 1, testFFTSize)
	if err != nil {
		b.Fatal(err)
	}
	src := newTestRing(b, 1, 4*testFFTSize)
	block := utils.Planar(1, utils.GenerateComplexWave(512, testSampleRate))
	src.Write(block)

	b.ReportAllocs()

	for b.Loop() {
		src.Write(block)
		p.Process(src, out)
	}
}
