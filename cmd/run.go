// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"specview/internal/audio"
	"specview/internal/config"
	"specview/internal/exchange"
	"specview/internal/log"
	"specview/internal/metrics"
	"specview/internal/pipeline"
	"specview/internal/render"
	"specview/internal/transport"
	"specview/internal/transport/udp"
	"specview/internal/tui"
)

// monitorInterval is how often the terminal monitor is refreshed.
const monitorInterval = 100 * time.Millisecond

// RecordingFile returns the recording path for cfg: name if set, otherwise a
// timestamped file in the configured directory.
func RecordingFile(cfg *config.Config, name string, now time.Time) string {
	if name != "" {
		return name
	}
	return filepath.Join(cfg.Recording.OutputDir,
		"recording-"+now.UTC().Format("02-01-2006-150405")+".wav")
}

// Outputs is the render side of a running analyzer: the frame builder, the
// transports it feeds and the HTTP front.
type Outputs struct {
	Builder   *transport.FrameBuilder
	Multi     *transport.Multi
	WebSocket *transport.WebSocketTransport
	Server    *transport.Server
}

// NewOutputs creates the transports enabled in cfg for pipe.
func NewOutputs(cfg *config.Config, pipe *pipeline.Pipeline, logger *log.Logger) (*Outputs, error) {
	o := &Outputs{Builder: transport.NewFrameBuilder(pipe.Processor())}

	var transports []transport.Transport
	if cfg.Transport.HTTPAddress != "" {
		o.WebSocket = transport.NewWebSocketTransport(logger.With("websocket"))
		o.Server = transport.NewServer(cfg.Transport.HTTPAddress, o.WebSocket, pipe.Metrics().Handler(), logger.With("http"))
		transports = append(transports, o.WebSocket)
	}
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress, logger.With("udp"))
		if err != nil {
			transport.NewMulti(nil, transports...).Close()
			return nil, err
		}
		publisher, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender,
			pipe.Config().Channels, pipe.Bins(), logger.With("udp"))
		if err != nil {
			sender.Close()
			transport.NewMulti(nil, transports...).Close()
			return nil, err
		}
		transports = append(transports, publisher)
	}
	if cfg.Transport.LogEvery > 0 {
		transports = append(transports, transport.NewLoggingTransport(logger.With("frames"), cfg.Transport.LogEvery))
	}

	o.Multi = transport.NewMulti(pipe.Metrics(), transports...)
	return o, nil
}

// Paint returns the render callback: it builds a frame and sends it to every
// transport. Send errors are logged at most once per second.
func (o *Outputs) Paint(logger *log.Logger, observe func(*exchange.Output, *transport.Frame)) render.PaintFunc {
	var lastErr time.Time
	return func(out *exchange.Output, fresh bool) {
		now := time.Now()
		frame := o.Builder.Build(out, fresh, now)
		if err := o.Multi.Send(frame); err != nil && now.Sub(lastErr) >= time.Second {
			lastErr = now
			logger.Warnf("Transport error: %v", err)
		}
		if observe != nil {
			observe(out, frame)
		}
	}
}

// RunEngine captures audio until ctx is cancelled or the monitor is closed.
//
// Startup opens the pipeline, transports and capture stream; the concurrent
// phase runs the render scheduler, HTTP server and monitor in an errgroup; on
// shutdown capture stops first so the pipeline sees no more blocks.
func RunEngine(ctx context.Context, opts *Options, logger *log.Logger) error {
	cfg := opts.Config
	if logger == nil {
		logger = log.Nop()
	}

	// ==================== STARTUP PHASE (Cold Path) ====================

	pc, err := cfg.PipelineConfig()
	if err != nil {
		return err
	}
	pipe, err := pipeline.New(pc, pipeline.WithLogger(logger), pipeline.WithMetrics(metrics.New("capture")))
	if err != nil {
		return err
	}
	defer pipe.Close()

	outputs, err := NewOutputs(cfg, pipe, logger)
	if err != nil {
		return err
	}
	defer outputs.Multi.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		scheduler *render.Scheduler
		latest    atomic.Pointer[tui.StatsMsg]
		program   *tea.Program
	)
	var observe func(*exchange.Output, *transport.Frame)
	if cfg.Render.TUI {
		var lastUI time.Time
		observe = func(out *exchange.Output, frame *transport.Frame) {
			if time.Since(lastUI) < monitorInterval {
				return
			}
			lastUI = time.Now()
			latest.Store(snapshot(pipe, scheduler, outputs, out, frame))
		}
		program = tea.NewProgram(tui.NewMonitorModel(fmt.Sprintf("specview • %s", cfg.Render.Mode), cancel, func() {
			scheduler.ResetStats()
		}), tea.WithAltScreen())
	}

	scheduler, err = render.NewScheduler(pipe, outputs.Paint(logger.With("render"), observe), render.Config{
		Mode:        cfg.RenderMode(),
		FrameRate:   cfg.Render.FrameRate,
		RefreshRate: cfg.Render.RefreshRate,
		Logger:      logger.With("render"),
		Metrics:     pipe.Metrics(),
	})
	if err != nil {
		return err
	}

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	engine, err := audio.NewEngine(audio.EngineConfig{
		DeviceID:        cfg.Audio.InputDevice,
		SampleRate:      cfg.Audio.SampleRate,
		Channels:        cfg.Audio.InputChannels,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		LowLatency:      cfg.Audio.LowLatency,
	}, pipe, logger)
	if err != nil {
		return err
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := scheduler.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if outputs.Server != nil {
		g.Go(func() error { return outputs.Server.Run(gctx) })
	}
	if program != nil {
		g.Go(func() error {
			_, err := program.Run()
			cancel()
			return err
		})
		g.Go(func() error {
			ticker := time.NewTicker(monitorInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					program.Quit()
					return nil
				case <-ticker.C:
					if s := latest.Swap(nil); s != nil {
						program.Send(*s)
					}
				}
			}
		})
	}

	// The first call to StartInputStream triggers PortAudio to begin calling
	// the callback function, marking the start of the hot path.
	if err := engine.StartInputStream(); err != nil {
		cancel()
		g.Wait()
		return err
	}

	var recording string
	if cfg.Recording.Enabled {
		recording = RecordingFile(cfg, opts.OutputFile, time.Now())
		if err := os.MkdirAll(filepath.Dir(recording), 0o755); err != nil {
			logger.Errorf("Recording disabled: %v", err)
			recording = ""
		} else if err := engine.StartRecording(recording, cfg.Recording.BitDepth); err != nil {
			logger.Errorf("Recording disabled: %v", err)
			recording = ""
		}
	}

	// Block until termination signal, monitor exit or a failed component.
	<-gctx.Done()

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if err := engine.Close(); err != nil {
		logger.Errorf("Error closing audio engine: %v", err)
	}
	if recording != "" {
		logger.Infof("Recording saved to: %s", recording)
	}

	err = g.Wait()
	st := scheduler.Stats()
	logger.Infof("Render stats: %d paints, %d repaints, %d skipped, %d resyncs, %.1f fps (%s)",
		st.Paints, st.Repaints, st.Skipped, st.Resyncs, st.FPS(), st.Health())
	return err
}

// snapshot collects the monitor state after a paint.
func snapshot(pipe *pipeline.Pipeline, scheduler *render.Scheduler, outputs *Outputs, out *exchange.Output, frame *transport.Frame) *tui.StatsMsg {
	provider := pipe.Processor()
	bin, mag := pipeline.Peak(out.Average, 0)

	bands := make([]tui.Band, len(outputs.Builder.Bands()))
	for i, b := range outputs.Builder.Bands() {
		bands[i] = tui.Band{Name: b.Name, Energy: outputs.Builder.Energies()[i]}
	}

	msg := &tui.StatsMsg{
		Render:   scheduler.Stats(),
		Pipeline: pipe.Stats(),
		Bands:    bands,
		Spectrum: append([]float32(nil), out.Average.Channel(0)...),
		Bass:     frame.Bass,
		Pulse:    frame.Pulse,
		Onsets:   outputs.Builder.Onsets(),
		PeakHz:   provider.FrequencyForBin(bin),
		PeakMag:  mag,
	}
	if outputs.WebSocket != nil {
		msg.Clients = outputs.WebSocket.Clients()
	}
	return msg
}
