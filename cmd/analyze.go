// SPDX-License-Identifier: MIT
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"specview/internal/analysis"
	"specview/internal/audio"
	"specview/internal/exchange"
	"specview/internal/log"
	"specview/internal/pipeline"
	"specview/internal/transport"
)

// RunAnalyze runs a WAV file through the pipeline at the file's own sample
// rate and channel count. It writes either a summary or, with opts.JSON, one
// frame per line in the same format the WebSocket transport sends.
func RunAnalyze(w io.Writer, opts *Options, logger *log.Logger) error {
	if logger == nil {
		logger = log.Nop()
	}

	signal, sampleRate, err := audio.ReadWAV(opts.InputFile)
	if err != nil {
		return err
	}
	if len(signal) == 0 || len(signal[0]) == 0 {
		return fmt.Errorf("%s contains no audio", opts.InputFile)
	}

	pc, err := opts.Config.PipelineConfig()
	if err != nil {
		return err
	}
	pc.SampleRate = sampleRate
	pc.Channels = len(signal)

	provider, err := analysis.NewFrameProcessor(pc.Analysis(), log.Nop())
	if err != nil {
		return err
	}
	builder := transport.NewFrameBuilder(provider)
	hop := time.Duration(float64(provider.Hop()) / sampleRate * float64(time.Second))
	every := uint64(max(opts.Every, 1))

	enc := json.NewEncoder(w)
	final := exchange.NewOutput(pc.Channels, provider.Bins())
	var (
		frames  uint64
		encErr  error
		loudest float64
		atFrame uint64
	)
	stats, err := pipeline.Analyze(pc, signal, func(out *exchange.Output) {
		frames++
		// Frame n covers audio ending n hops after the start.
		f := builder.Build(out, true, time.Unix(0, 0).Add(time.Duration(out.Frame)*hop))
		if f.Bass > loudest {
			loudest, atFrame = f.Bass, out.Frame
		}
		if opts.JSON && encErr == nil && (frames-1)%every == 0 {
			encErr = enc.Encode(f)
		}
		final.CopyFrom(out)
	}, pipeline.WithLogger(logger))
	if err != nil {
		return err
	}
	if encErr != nil {
		return encErr
	}
	if opts.JSON {
		return nil
	}

	duration := time.Duration(float64(len(signal[0])) / sampleRate * float64(time.Second))
	fmt.Fprintf(w, "File:        %s\n", opts.InputFile)
	fmt.Fprintf(w, "Audio:       %d channels, %.0f Hz, %s\n", pc.Channels, sampleRate, duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Analysis:    %d-point %s window, hop %d (%.0f%% overlap), %.2f Hz per bin\n",
		pc.FFTSize, pc.Window, provider.Hop(), pc.OverlapPercent, provider.HertzPerBin())
	fmt.Fprintf(w, "Frames:      %d from %d blocks\n", stats.Frames, stats.Blocks)
	fmt.Fprintf(w, "Bass onsets: %d (loudest %.3f at %s)\n",
		builder.Onsets(), loudest, (time.Duration(atFrame) * hop).Round(time.Millisecond))

	fmt.Fprintf(w, "\nFinal averaged spectrum\n")
	for ch := range pc.Channels {
		bin, mag := pipeline.Peak(final.Average, ch)
		fmt.Fprintf(w, "  channel %d peak: %.1f Hz (bin %d) at %.4f\n", ch, provider.FrequencyForBin(bin), bin, mag)
	}
	energies := analysis.BandEnergies(final.Average, provider.HertzPerBin(), builder.Bands(), nil)
	for i, band := range builder.Bands() {
		fmt.Fprintf(w, "  %-8s %.4f\n", band.Name, energies[i])
	}
	return nil
}
