// Package game wires the frame pipeline to a raylib window or a headless
// ticker.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/google/uuid"

	"github.com/pthm-cable/pixelrush/config"
	"github.com/pthm-cable/pixelrush/framebuf"
	"github.com/pthm-cable/pixelrush/pipeline"
	"github.com/pthm-cable/pixelrush/renderer"
	"github.com/pthm-cable/pixelrush/systems"
	"github.com/pthm-cable/pixelrush/telemetry"
)

// Options configures a game instance.
type Options struct {
	OutputDir   string // CSV + config snapshot, empty = disabled
	MetricsAddr string // prometheus listen address, empty = disabled
	Headless    bool
}

// Game holds the pipeline and everything around it.
type Game struct {
	cfg   *config.Config
	opts  Options
	runID string

	pool      *framebuf.Pool
	particles *systems.ParticleSystem
	pipe      *pipeline.Pipeline

	timing  *telemetry.FrameTimingLog
	perf    *telemetry.PerfCollector
	metrics *telemetry.Metrics
	output  *telemetry.OutputManager

	// Exactly one of these is set.
	textures *renderer.TextureSurface
	memory   *pipeline.MemorySurface

	input       pipeline.InputBox
	inputFrozen bool

	summary *telemetry.FrameSummary
	exited  bool

	screenW, screenH int32
}

// NewGame builds the pool, particle system and pipeline. In graphical mode
// the raylib window must already be open.
func NewGame(cfg *config.Config, opts Options) (*Game, error) {
	g := &Game{
		cfg:     cfg,
		opts:    opts,
		runID:   uuid.NewString(),
		perf:    telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		metrics: telemetry.NewMetrics(),
		screenW: int32(cfg.Screen.Width),
		screenH: int32(cfg.Screen.Height),
	}

	var err error
	g.pool, err = framebuf.New(cfg.Pool.Capacity, cfg.Screen.Width, cfg.Screen.Height)
	if err != nil {
		return nil, fmt.Errorf("creating buffer pool: %w", err)
	}

	if cfg.Benchmark.Frames > 0 {
		g.timing, err = telemetry.NewFrameTimingLog(cfg.Benchmark.Frames, cfg.Derived.Warmup, nil)
		if err != nil {
			return nil, err
		}
	}

	g.output, err = telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	if err := g.output.WriteConfig(cfg); err != nil {
		g.output.Close()
		return nil, fmt.Errorf("writing config snapshot: %w", err)
	}

	background, err := systems.NewBackground(cfg)
	if err != nil {
		g.output.Close()
		return nil, err
	}
	g.particles = systems.NewParticleSystem(cfg, background)
	g.particles.SetPhaseTimer(g.perf)

	var surface pipeline.Surface
	if opts.Headless {
		g.memory = pipeline.NewMemorySurface(cfg.Screen.Width, cfg.Screen.Height)
		surface = g.memory
	} else {
		g.textures = renderer.NewTextureSurface(g.screenW, g.screenH)
		if err := g.textures.Bind(g.pool.Buffers()); err != nil {
			g.particles.Close()
			g.output.Close()
			return nil, err
		}
		surface = g.textures
	}

	producer := pipeline.NewProducer(g.pool, g.particles, &g.input, pipeline.ProducerOptions{
		Timing:     g.timing,
		Perf:       g.perf,
		LogEvery:   cfg.Telemetry.LogEvery,
		Metrics:    g.metrics,
		Output:     g.output,
		RunID:      g.runID,
		OnComplete: g.onComplete,
	})
	consumer := pipeline.NewConsumer(g.pool, surface, g.metrics)
	g.pipe = pipeline.New(g.pool, producer, consumer, g.onExit)

	slog.Info("game created",
		"run_id", g.runID,
		"width", cfg.Screen.Width,
		"height", cfg.Screen.Height,
		"capacity", cfg.Pool.Capacity,
		"particles", g.particles.Count(),
		"frames", cfg.Benchmark.Frames,
		"warmup", cfg.Derived.Warmup,
		"headless", opts.Headless,
	)
	return g, nil
}

// Start launches the producer and, if configured, the metrics server.
func (g *Game) Start(ctx context.Context) {
	g.pipe.Start(ctx)
	if g.opts.MetricsAddr != "" {
		g.pipe.Go(func(ctx context.Context) error {
			return g.metrics.Serve(ctx, g.opts.MetricsAddr)
		})
	}
}

// onComplete runs on the producer goroutine once the timing log is full.
// The summary is only read after Close has waited for the producer.
func (g *Game) onComplete(s telemetry.FrameSummary) {
	g.summary = &s
}

// onExit runs once on the consumer's goroutine after the last frame.
func (g *Game) onExit() {
	g.exited = true
	slog.Info("pipeline drained",
		"run_id", g.runID,
		"produced", g.pipe.Producer.Produced(),
		"presented", g.pipe.Consumer.Presented(),
	)
}

// Update runs one display tick: input, then one consumer step.
func (g *Game) Update() error {
	g.handleInput()
	g.sampleInput()

	if _, err := g.pipe.Tick(); err != nil {
		return fmt.Errorf("presenting frame: %w", err)
	}
	return nil
}

// Draw renders the visible buffer and the HUD.
func (g *Game) Draw() {
	rl.BeginDrawing()
	rl.ClearBackground(rl.Black)

	g.textures.Draw()

	census := g.pool.Census()
	producer := g.pipe.Producer
	clicked := renderer.DrawHUD(renderer.HUDStats{
		FPS:           rl.GetFPS(),
		Produced:      producer.Produced(),
		Presented:     g.pipe.Consumer.Presented(),
		Recorded:      producer.Recorded(),
		Target:        g.cfg.Benchmark.Frames,
		Census:        census,
		InputFrozen:   g.inputFrozen,
		LastFillMS:    producer.LastFill().Seconds() * 1000,
		ParticleCount: g.particles.Count(),
	}, g.screenW, g.screenH)
	if clicked {
		g.inputFrozen = !g.inputFrozen
	}

	rl.EndDrawing()
}

// Done reports whether the exit hook has run.
func (g *Game) Done() bool {
	return g.exited
}

// RunID returns the identifier stamped on logs and CSV rows.
func (g *Game) RunID() string {
	return g.runID
}

// Summary returns the benchmark summary, or nil if the run did not
// complete. Only valid after Close.
func (g *Game) Summary() *telemetry.FrameSummary {
	return g.summary
}

// Close stops the producer, waits for it and releases every resource. In
// graphical mode call it before closing the window. The returned error is
// the first failure of the producer or the metrics server.
func (g *Game) Close() error {
	runErr := g.pipe.Close()
	g.particles.Close()
	if g.textures != nil {
		g.textures.Unload(g.pool.Buffers())
	}
	outErr := g.output.Close()
	if outErr != nil {
		outErr = fmt.Errorf("closing output: %w", outErr)
	}
	return errors.Join(runErr, outErr)
}
