package systems

import (
	"context"
	"errors"
	"image/color"
	"math"
	"slices"
	"testing"

	"github.com/pthm-cable/pixelrush/components"
	"github.com/pthm-cable/pixelrush/config"
	"github.com/pthm-cable/pixelrush/pipeline"
	"github.com/pthm-cable/pixelrush/telemetry"
)

var (
	testBG       = color.RGBA{R: 5, G: 5, B: 5, A: 255}
	testParticle = color.RGBA{R: 255, G: 160, B: 64, A: 255}
)

func testConfig(t *testing.T, w, h, count, workers int) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.Screen.Width = w
	cfg.Screen.Height = h
	cfg.Particles.Count = count
	cfg.Particles.Workers = workers
	cfg.Particles.Seed = 42
	cfg.Particles.SpawnMin = [2]float64{0, 0}
	cfg.Particles.SpawnMax = [2]float64{float64(w), float64(h)}
	cfg.Particles.Color = "#ffa040"
	cfg.Background.Color = "#050505"
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return cfg
}

func newTestSystem(t *testing.T, cfg *config.Config) *ParticleSystem {
	t.Helper()
	bg, err := NewBackground(cfg)
	if err != nil {
		t.Fatalf("NewBackground: %v", err)
	}
	s := NewParticleSystem(cfg, bg)
	t.Cleanup(s.Close)
	return s
}

func view(cfg *config.Config) pipeline.Viewport {
	return pipeline.Viewport{Width: cfg.Screen.Width, Height: cfg.Screen.Height}
}

func TestNewParticleSystemSpawnsInRect(t *testing.T) {
	cfg := testConfig(t, 64, 48, 500, 1)
	cfg.Particles.SpawnMin = [2]float64{10, 20}
	cfg.Particles.SpawnMax = [2]float64{30, 40}
	s := newTestSystem(t, cfg)

	if s.Count() != 500 {
		t.Fatalf("expected 500 particles, got %d", s.Count())
	}
	for i := 0; i < s.Count(); i++ {
		p := s.Position(i)
		if p.X < 10 || p.X >= 30 || p.Y < 20 || p.Y >= 40 {
			t.Fatalf("particle %d spawned at (%v,%v), outside [10,30)x[20,40)", i, p.X, p.Y)
		}
	}
}

func TestFillOverwritesEveryPixel(t *testing.T) {
	cfg := testConfig(t, 64, 48, 300, 1)
	s := newTestSystem(t, cfg)
	buf := testBuffer(t, 64, 48)

	stale := color.RGBA{R: 1, G: 2, B: 3, A: 4}
	for i := range buf.Pixels {
		buf.Pixels[i] = stale
	}

	if err := s.Fill(context.Background(), buf, pipeline.InputState{}, view(cfg)); err != nil {
		t.Fatalf("Fill: %v", err)
	}

	lit := 0
	for i, px := range buf.Pixels {
		switch px {
		case testBG:
		case testParticle:
			lit++
		default:
			t.Fatalf("pixel %d = %v, neither background nor particle", i, px)
		}
	}
	if lit == 0 {
		t.Error("expected at least one particle pixel")
	}
	if lit > s.Count() {
		t.Errorf("lit %d pixels with only %d particles", lit, s.Count())
	}
}

func TestFillPlotsParticle(t *testing.T) {
	cfg := testConfig(t, 16, 8, 0, 1)
	s := newTestSystem(t, cfg)
	s.Spawn(components.Position{X: 5.5, Y: 3.2}, components.Velocity{}, components.Acceleration{})

	buf := testBuffer(t, 16, 8)
	if err := s.Fill(context.Background(), buf, pipeline.InputState{}, view(cfg)); err != nil {
		t.Fatalf("Fill: %v", err)
	}

	if got := buf.Pixels[3*16+5]; got != testParticle {
		t.Errorf("pixel (5,3) = %v, want particle color", got)
	}
	lit := 0
	for _, px := range buf.Pixels {
		if px == testParticle {
			lit++
		}
	}
	if lit != 1 {
		t.Errorf("expected exactly 1 lit pixel, got %d", lit)
	}
}

func TestFillBouncesOffEdge(t *testing.T) {
	cfg := testConfig(t, 16, 8, 0, 1)
	cfg.Particles.Damping = 0.5
	cfg.Particles.MaxVel = 0
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	s := newTestSystem(t, cfg)
	s.Spawn(
		components.Position{X: 1, Y: 4},
		components.Velocity{X: -3},
		components.Acceleration{X: -0.5},
	)

	buf := testBuffer(t, 16, 8)
	if err := s.Fill(context.Background(), buf, pipeline.InputState{}, view(cfg)); err != nil {
		t.Fatalf("Fill: %v", err)
	}

	// -3.5 step from x=1 lands at -2.5 and reflects to 2.5.
	p := s.Position(0)
	if math.Abs(float64(p.X-2.5)) > 1e-5 {
		t.Errorf("expected x=2.5 after bounce, got %v", p.X)
	}
	if buf.Pixels[4*16+2] != testParticle {
		t.Error("expected particle plotted at (2,4)")
	}

	// Next step moves right: velocity 1.75 plus flipped acceleration 0.5.
	if err := s.Fill(context.Background(), buf, pipeline.InputState{}, view(cfg)); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	p = s.Position(0)
	if math.Abs(float64(p.X-4.75)) > 1e-5 {
		t.Errorf("expected x=4.75 after second step, got %v", p.X)
	}
}

func TestFillMousePull(t *testing.T) {
	cfg := testConfig(t, 64, 32, 0, 1)
	s := newTestSystem(t, cfg)
	s.Spawn(components.Position{X: 10, Y: 10}, components.Velocity{}, components.Acceleration{})

	buf := testBuffer(t, 64, 32)
	outside := pipeline.InputState{MouseX: 50, MouseY: 10, MouseInside: false}
	if err := s.Fill(context.Background(), buf, outside, view(cfg)); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if p := s.Position(0); p.X != 10 {
		t.Fatalf("mouse outside window should not pull, x=%v", p.X)
	}

	inside := pipeline.InputState{MouseX: 50, MouseY: 10, MouseInside: true}
	if err := s.Fill(context.Background(), buf, inside, view(cfg)); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if p := s.Position(0); p.X <= 10 {
		t.Errorf("expected particle pulled towards mouse, x=%v", p.X)
	}
}

func TestFillStaysInBounds(t *testing.T) {
	cfg := testConfig(t, 64, 48, 2*parallelThreshold, 4)
	s := newTestSystem(t, cfg)
	buf := testBuffer(t, 64, 48)
	input := pipeline.InputState{MouseX: 32, MouseY: 24, MouseInside: true}

	for frame := 0; frame < 100; frame++ {
		if err := s.Fill(context.Background(), buf, input, view(cfg)); err != nil {
			t.Fatalf("Fill frame %d: %v", frame, err)
		}
	}
	for i := 0; i < s.Count(); i++ {
		p := s.Position(i)
		if p.X < 0 || p.X >= 64 || p.Y < 0 || p.Y >= 48 {
			t.Fatalf("particle %d escaped to (%v,%v)", i, p.X, p.Y)
		}
	}
}

func TestFillParallelMatchesSerial(t *testing.T) {
	serialCfg := testConfig(t, 64, 48, 2*parallelThreshold, 1)
	parallelCfg := testConfig(t, 64, 48, 2*parallelThreshold, 4)
	serial := newTestSystem(t, serialCfg)
	parallel := newTestSystem(t, parallelCfg)

	a := testBuffer(t, 64, 48)
	b := testBuffer(t, 64, 48)
	input := pipeline.InputState{MouseX: 10, MouseY: 40, MouseInside: true}

	for frame := 0; frame < 10; frame++ {
		if err := serial.Fill(context.Background(), a, input, view(serialCfg)); err != nil {
			t.Fatalf("serial Fill: %v", err)
		}
		if err := parallel.Fill(context.Background(), b, input, view(parallelCfg)); err != nil {
			t.Fatalf("parallel Fill: %v", err)
		}
		if !slices.Equal(a.Pixels, b.Pixels) {
			t.Fatalf("frame %d: parallel output differs from serial", frame)
		}
	}
}

func TestFillCancelled(t *testing.T) {
	cfg := testConfig(t, 16, 8, 10, 1)
	s := newTestSystem(t, cfg)
	buf := testBuffer(t, 16, 8)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Fill(ctx, buf, pipeline.InputState{}, view(cfg))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

type phaseRecorder struct {
	phases []string
}

func (r *phaseRecorder) StartPhase(phase string) {
	r.phases = append(r.phases, phase)
}

func TestFillReportsPhases(t *testing.T) {
	cfg := testConfig(t, 16, 8, 10, 1)
	s := newTestSystem(t, cfg)
	rec := &phaseRecorder{}
	s.SetPhaseTimer(rec)

	if err := s.Fill(context.Background(), testBuffer(t, 16, 8), pipeline.InputState{}, view(cfg)); err != nil {
		t.Fatalf("Fill: %v", err)
	}

	want := []string{telemetry.PhaseBackground, telemetry.PhaseSnapshot, telemetry.PhaseCompute, telemetry.PhaseApply}
	if !slices.Equal(rec.phases, want) {
		t.Errorf("phases = %v, want %v", rec.phases, want)
	}
}

func TestPixelIndex(t *testing.T) {
	tests := []struct {
		name string
		x, y float32
		want int32
	}{
		{"origin", 0, 0, 0},
		{"row two", 3.9, 2.1, 2*10 + 3},
		{"column wraps", 12, 1, 10 + 2},
		{"below", 1, 5, -1},
		{"above", 1, -1, -1},
		{"left", -2, 1, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pixelIndex(tt.x, tt.y, 10, 5); got != tt.want {
				t.Errorf("pixelIndex(%v,%v) = %d, want %d", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestWorkerPanicBecomesError(t *testing.T) {
	pool := newWorkerPool(4)
	defer pool.stop()

	n := 2 * parallelThreshold
	err := pool.run(n, func(start, end int) {
		if start <= n/2 && n/2 < end {
			panic("bad particle")
		}
	})
	if err == nil {
		t.Fatal("expected error from panicking worker")
	}

	// Pool still usable afterwards.
	hits := make([]bool, n)
	if err := pool.run(n, func(start, end int) {
		for i := start; i < end; i++ {
			hits[i] = true
		}
	}); err != nil {
		t.Fatalf("run after panic: %v", err)
	}
	for i, hit := range hits {
		if !hit {
			t.Fatalf("index %d never visited", i)
		}
	}
}
