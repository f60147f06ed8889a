package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/pixelrush/config"
	"github.com/pthm-cable/pixelrush/game"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	headless := flag.Bool("headless", false, "Run without a window, presenting into memory")
	frames := flag.Int("frames", -1, "Frames to record before shutdown (0 = run until closed, -1 = use config)")
	capacity := flag.Int("capacity", 0, "Number of rotating frame buffers (0 = use config)")
	particles := flag.Int("particles", -1, "Particle count (-1 = use config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	metricsAddr := flag.String("metrics-addr", "", "Serve prometheus metrics on this address (empty = disabled)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = use config)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// CLI overrides
	if *frames >= 0 {
		cfg.Benchmark.Frames = *frames
	}
	if *capacity != 0 {
		cfg.Pool.Capacity = *capacity
	}
	if *particles >= 0 {
		cfg.Particles.Count = *particles
	}
	if *seed != 0 {
		cfg.Particles.Seed = *seed
	}
	if err := cfg.Finalize(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	opts := game.Options{
		OutputDir:   *outputDir,
		MetricsAddr: *metricsAddr,
		Headless:    *headless,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if *headless {
		err = runHeadless(ctx, cfg, opts)
	} else {
		err = runWindow(ctx, cfg, opts)
	}
	if err != nil {
		slog.Error("run failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// runHeadless drives the pipeline from a ticker without raylib.
func runHeadless(ctx context.Context, cfg *config.Config, opts game.Options) error {
	g, err := game.NewGame(cfg, opts)
	if err != nil {
		return err
	}
	g.Start(ctx)

	runErr := g.RunHeadless(ctx)
	if closeErr := g.Close(); runErr == nil {
		runErr = closeErr
	}
	return runErr
}

// runWindow drives the pipeline from the raylib frame loop.
func runWindow(ctx context.Context, cfg *config.Config, opts game.Options) error {
	rl.SetConfigFlags(rl.FlagWindowResizable)
	rl.InitWindow(int32(cfg.Screen.Width), int32(cfg.Screen.Height), cfg.Screen.Title)
	defer rl.CloseWindow()

	rl.SetTargetFPS(int32(cfg.Screen.TargetFPS))

	g, err := game.NewGame(cfg, opts)
	if err != nil {
		return err
	}
	g.Start(ctx)

	var runErr error
	for !rl.WindowShouldClose() && !g.Done() {
		if runErr = g.Update(); runErr != nil {
			break
		}
		g.Draw()
	}

	// Close must run before the window's GL context goes away.
	if closeErr := g.Close(); runErr == nil {
		runErr = closeErr
	}
	return runErr
}
