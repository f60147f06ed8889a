package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pthm-cable/pixelrush/framebuf"
	"github.com/pthm-cable/pixelrush/telemetry"
)

// ErrFill wraps any failure of the fill step. It stops the producer.
var ErrFill = errors.New("pipeline: fill failed")

// Filler draws one frame. Fill must overwrite every pixel of buf, must not
// keep buf after returning, and may parallelize internally.
type Filler interface {
	Fill(ctx context.Context, buf *framebuf.PixelBuffer, input InputState, view Viewport) error
}

// FillFunc adapts a function to Filler.
type FillFunc func(ctx context.Context, buf *framebuf.PixelBuffer, input InputState, view Viewport) error

// Fill implements Filler.
func (f FillFunc) Fill(ctx context.Context, buf *framebuf.PixelBuffer, input InputState, view Viewport) error {
	return f(ctx, buf, input, view)
}

// State is the producer lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// ProducerOptions configures instrumentation around the producer loop.
// Every field is optional.
type ProducerOptions struct {
	// Timing stops the loop once it is full. Nil runs until cancelled.
	Timing *telemetry.FrameTimingLog
	// Perf receives per-frame phase timings; the publish phase is added here.
	Perf     *telemetry.PerfCollector
	LogEvery int // log Perf stats every N frames, 0 = never

	Metrics *telemetry.Metrics
	Output  *telemetry.OutputManager
	RunID   string

	// OnComplete receives the summary after it has been logged.
	OnComplete func(telemetry.FrameSummary)
}

// Producer is the background loop that fills and publishes buffers.
type Producer struct {
	pool   *framebuf.Pool
	filler Filler
	input  InputSource
	view   Viewport
	opts   ProducerOptions

	produced atomic.Int64
	recorded atomic.Int64
	lastFill atomic.Int64 // nanoseconds
	state    atomic.Int32
}

// NewProducer creates a producer drawing into pool-sized frames.
// input may be nil.
func NewProducer(pool *framebuf.Pool, filler Filler, input InputSource, opts ProducerOptions) *Producer {
	if input == nil {
		input = &InputBox{}
	}
	w, h := pool.Size()
	return &Producer{
		pool:   pool,
		filler: filler,
		input:  input,
		view:   Viewport{Width: w, Height: h},
		opts:   opts,
	}
}

// Produced returns the number of frames published so far.
func (p *Producer) Produced() int64 {
	return p.produced.Load()
}

// Recorded returns the number of timing samples kept so far.
func (p *Producer) Recorded() int64 {
	return p.recorded.Load()
}

// LastFill returns the duration of the most recent fill step.
func (p *Producer) LastFill() time.Duration {
	return time.Duration(p.lastFill.Load())
}

// State returns the current lifecycle state.
func (p *Producer) State() State {
	return State(p.state.Load())
}

// Run loops until the timing log is full, ctx is cancelled, or a step
// fails. Cancellation, including while blocked waiting for an empty
// buffer, returns nil; the buffer in hand, if any, is simply never
// published.
func (p *Producer) Run(ctx context.Context) error {
	p.state.Store(int32(StateRunning))
	defer p.state.Store(int32(StateStopped))

	if p.opts.Timing != nil {
		p.opts.Timing.Arm()
	}

	for {
		buf, err := p.pool.AcquireEmpty(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		frame := p.produced.Load()
		if p.opts.Perf != nil {
			p.opts.Perf.StartFrame()
		}

		start := time.Now()
		err = p.fill(ctx, buf)
		elapsed := time.Since(start)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			p.opts.Metrics.ObserveFillError()
			return fmt.Errorf("%w: frame %d: %w", ErrFill, frame, err)
		}

		if p.opts.Perf != nil {
			p.opts.Perf.StartPhase(telemetry.PhasePublish)
		}
		if err := p.pool.PublishFull(buf); err != nil {
			return fmt.Errorf("publishing frame %d: %w", frame, err)
		}
		if p.opts.Perf != nil {
			p.opts.Perf.EndFrame()
		}

		n := p.produced.Add(1)
		p.lastFill.Store(int64(elapsed))
		p.opts.Metrics.ObserveFill(elapsed)
		census := p.pool.Census()
		p.opts.Metrics.ObserveQueues(census.EmptyLen, census.FullLen)

		if p.opts.Perf != nil && p.opts.LogEvery > 0 && n%int64(p.opts.LogEvery) == 0 {
			stats := p.opts.Perf.Stats()
			stats.LogStats(int(n))
			if err := p.opts.Output.WritePerf(stats, p.opts.RunID, int(n)); err != nil {
				slog.Warn("perf output failed", "error", err)
			}
		}

		if p.record(buf, elapsed) {
			p.complete()
			return nil
		}
	}
}

// fill runs the fill step, turning a panic into an error.
func (p *Producer) fill(ctx context.Context, buf *framebuf.PixelBuffer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.filler.Fill(ctx, buf, p.input.Input(), p.view)
}

// record stores the fill duration and reports whether the benchmark is done.
func (p *Producer) record(buf *framebuf.PixelBuffer, elapsed time.Duration) bool {
	timing := p.opts.Timing
	if timing == nil {
		return false
	}
	if timing.Record(elapsed) {
		p.recorded.Add(1)
		err := p.opts.Output.WriteFrame(telemetry.FrameSampleCSV{
			RunID:    p.opts.RunID,
			Frame:    timing.Len(),
			BufferID: buf.ID,
			FillMS:   float64(elapsed) / float64(time.Millisecond),
		})
		if err != nil {
			slog.Warn("frame output failed", "error", err)
		}
	}
	return timing.Full()
}

func (p *Producer) complete() {
	summary := p.opts.Timing.Summary()
	summary.RunID = p.opts.RunID

	slog.Info("benchmark complete",
		"run_id", p.opts.RunID,
		"frames_produced", p.produced.Load(),
		"warmup_skipped", p.opts.Timing.Skipped(),
		"summary", summary,
	)
	if err := p.opts.Output.WriteSummary(summary); err != nil {
		slog.Warn("summary output failed", "error", err)
	}
	if p.opts.OnComplete != nil {
		p.opts.OnComplete(summary)
	}
}
