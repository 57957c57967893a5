// SPDX-License-Identifier: MIT

/*
Package render drives the spectrum consumer. A Scheduler decides when to paint,
copies the freshest frame out of the output exchange and hands it to a paint
callback; a MessageQueue lets other goroutines change scheduler settings
without touching render state directly.

The scheduler runs in one of two modes:
  - ModeTimer services on a fixed refresh ticker and paints at most once per
    frame interval.
  - ModeDedicated services whenever the pipeline signals new data, or after a
    100 ms timeout so that repaints continue through silence.
*/
package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"specview/internal/exchange"
	"specview/internal/log"
	"specview/internal/metrics"
)

// Scheduler defaults.
const (
	DefaultFrameRate   = 60.0
	DefaultRefreshRate = 240.0
	ReadyTimeout       = 100 * time.Millisecond

	// resyncFrames is the number of frame intervals after which a late
	// service restarts the paint schedule instead of catching up.
	resyncFrames = 4
)

// ErrFrameRate is returned for a non-positive frame rate.
var ErrFrameRate = errors.New("render: frame rate must be positive")

// Mode selects how the scheduler is woken.
type Mode int

const (
	ModeTimer Mode = iota
	ModeDedicated
)

func (m Mode) String() string {
	if m == ModeDedicated {
		return "dedicated"
	}
	return "timer"
}

// ParseMode converts a name (case-insensitive) to a Mode.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(name) {
	case "", "timer", "vblank":
		return ModeTimer, nil
	case "dedicated", "thread":
		return ModeDedicated, nil
	default:
		return ModeTimer, fmt.Errorf("unknown render mode: '%s'", name)
	}
}

// Source is what the scheduler consumes; *pipeline.Pipeline satisfies it.
type Source interface {
	Exchange() *exchange.Exchange
	Ready() <-chan struct{}
}

// PaintFunc receives the frame to draw. fresh is false when no new frame was
// published since the previous paint and the previous one is being repainted.
// The Output is owned by the scheduler and only valid during the call.
type PaintFunc func(out *exchange.Output, fresh bool)

// Config configures a Scheduler.
type Config struct {
	Mode        Mode
	FrameRate   float64 // Paints per second.
	RefreshRate float64 // Ticker rate in ModeTimer; at least FrameRate.
	Logger      *log.Logger
	Metrics     *metrics.Registry
}

// Scheduler is the render consumer of one pipeline.
type Scheduler struct {
	mode    Mode
	source  Source
	paint   PaintFunc
	queue   MessageQueue
	refresh time.Duration
	logger  *log.Logger
	metrics *metrics.Registry

	frameInterval atomic.Int64 // Nanoseconds.

	// Render goroutine state.
	lastService  time.Time
	nextPaint    time.Time
	snapshot     *exchange.Output
	haveSnapshot bool

	mu        sync.Mutex
	stats     Stats
	intervals intervals
}

// NewScheduler returns a scheduler that paints frames from source with paint.
func NewScheduler(source Source, paint PaintFunc, cfg Config) (*Scheduler, error) {
	if cfg.FrameRate == 0 {
		cfg.FrameRate = DefaultFrameRate
	}
	if !(cfg.FrameRate > 0) {
		return nil, fmt.Errorf("%w, got %v", ErrFrameRate, cfg.FrameRate)
	}
	if cfg.RefreshRate <= 0 {
		cfg.RefreshRate = DefaultRefreshRate
	}
	cfg.RefreshRate = max(cfg.RefreshRate, cfg.FrameRate)
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	if paint == nil {
		paint = func(*exchange.Output, bool) {}
	}

	s := &Scheduler{
		mode:     cfg.Mode,
		source:   source,
		paint:    paint,
		refresh:  rateToInterval(cfg.RefreshRate),
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		snapshot: source.Exchange().NewOutput(),
	}
	s.frameInterval.Store(int64(rateToInterval(cfg.FrameRate)))
	s.resetStats(time.Now())
	return s, nil
}

func rateToInterval(perSecond float64) time.Duration {
	return time.Duration(float64(time.Second) / perSecond)
}

// Queue returns the scheduler's message queue. Closures posted to it run on
// the render goroutine, one per service.
func (s *Scheduler) Queue() *MessageQueue {
	return &s.queue
}

// Mode returns the wake-up mode.
func (s *Scheduler) Mode() Mode {
	return s.mode
}

// FrameInterval returns the current nominal paint interval.
func (s *Scheduler) FrameInterval() time.Duration {
	return time.Duration(s.frameInterval.Load())
}

// SetFrameRate changes the paint rate. It may be called from any goroutine;
// the change and a statistics reset are applied on the render goroutine.
func (s *Scheduler) SetFrameRate(fps float64) error {
	if !(fps > 0) {
		return fmt.Errorf("%w, got %v", ErrFrameRate, fps)
	}
	s.queue.Post(func() {
		s.frameInterval.Store(int64(rateToInterval(fps)))
		s.resetStats(time.Now())
		s.logger.Infof("Frame rate set to %.1f fps", fps)
	})
	return nil
}

// ResetStats clears the statistics and restarts the paint schedule on the
// render goroutine.
func (s *Scheduler) ResetStats() {
	s.queue.Post(func() { s.resetStats(time.Now()) })
}

func (s *Scheduler) resetStats(now time.Time) {
	interval := s.FrameInterval()
	s.lastService = time.Time{}
	s.nextPaint = now.Add(interval)

	s.mu.Lock()
	s.stats = Stats{Nominal: interval}
	s.intervals.reset()
	s.mu.Unlock()
}

// Stats returns a snapshot of the scheduler diagnostics.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	s.intervals.summarize(&st)
	return st
}

// Run services the scheduler until ctx is cancelled and returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Infof("Render scheduler running (mode %v, frame interval %v)", s.mode, s.FrameInterval())
	defer s.logger.Infof("Render scheduler stopped")

	if s.mode == ModeDedicated {
		return s.runDedicated(ctx)
	}
	return s.runTimer(ctx)
}

func (s *Scheduler) runTimer(ctx context.Context) error {
	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.Service(now)
		}
	}
}

func (s *Scheduler) runDedicated(ctx context.Context) error {
	timer := time.NewTimer(ReadyTimeout)
	defer timer.Stop()

	ready := s.source.Ready()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ready:
		case <-timer.C:
		}
		s.Service(time.Now())
		timer.Reset(ReadyTimeout)
	}
}

// Service runs one scheduling step at time now: it dispatches one queued
// message, then either resynchronizes after a long gap, or records the
// interval and paints if the next paint is due. Render goroutine only.
func (s *Scheduler) Service(now time.Time) {
	s.queue.DispatchNext()

	interval := s.FrameInterval()
	since := now.Sub(s.lastService)
	first := s.lastService.IsZero()
	s.lastService = now

	if first || since > resyncFrames*interval {
		s.nextPaint = now.Add(interval)
		s.mu.Lock()
		s.stats.Resyncs++
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.Resyncs.Inc()
		}
		return
	}

	s.mu.Lock()
	s.intervals.add(since.Seconds())
	s.mu.Unlock()

	if now.Before(s.nextPaint) {
		return
	}
	s.nextPaint = s.nextPaint.Add(interval)
	if s.metrics != nil {
		s.metrics.PaintInterval.Update(since.Seconds())
	}
	s.paintNow()
}

// paintNow copies the freshest frame, if any, and calls the paint callback.
func (s *Scheduler) paintNow() {
	ex := s.source.Exchange()

	fresh := false
	var skipped uint64
	if backlog := ex.Stored(); backlog > 0 && ex.CopyMostRecent(s.snapshot) {
		fresh = true
		s.haveSnapshot = true
		skipped = uint64(backlog - 1)
		ex.FlushRead()
	}

	if !s.haveSnapshot {
		return
	}

	s.mu.Lock()
	if fresh {
		s.stats.Paints++
		s.stats.Skipped += skipped
	} else {
		s.stats.Repaints++
	}
	s.mu.Unlock()

	if s.metrics != nil {
		if fresh {
			s.metrics.Paints.Inc()
			s.metrics.SkippedFrames.Add(int(skipped))
		} else {
			s.metrics.Repaints.Inc()
		}
	}

	s.paint(s.snapshot, fresh)
}
