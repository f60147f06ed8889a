// Package config provides configuration loading and access for the renderer benchmark.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"image/color"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all benchmark configuration parameters.
type Config struct {
	Screen     ScreenConfig     `yaml:"screen"`
	Pool       PoolConfig       `yaml:"pool"`
	Particles  ParticlesConfig  `yaml:"particles"`
	Background BackgroundConfig `yaml:"background"`
	Benchmark  BenchmarkConfig  `yaml:"benchmark"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds display settings. The frame buffers share these dimensions.
type ScreenConfig struct {
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	TargetFPS int    `yaml:"target_fps"`
	Title     string `yaml:"title"`
}

// PoolConfig holds frame buffer pool settings.
type PoolConfig struct {
	Capacity int `yaml:"capacity"` // Number of rotating buffers, at least 2 (3 = triple buffering)
}

// ParticlesConfig holds particle spawn and motion parameters.
type ParticlesConfig struct {
	Count     int        `yaml:"count"`
	Seed      int64      `yaml:"seed"`      // 0 = time-based
	SpawnMin  [2]float64 `yaml:"spawn_min"` // Spawn rectangle top-left
	SpawnMax  [2]float64 `yaml:"spawn_max"` // Spawn rectangle bottom-right (exclusive)
	MaxSpeed  float64    `yaml:"max_speed"` // Initial velocity range is [-max_speed, max_speed)
	AccelX    float64    `yaml:"accel_x"`   // Horizontal acceleration scale
	Gravity   float64    `yaml:"gravity"`   // Upward pull scale (negative = up)
	MousePull float64    `yaml:"mouse_pull"`
	Damping   float64    `yaml:"damping"`  // Velocity kept on edge bounce
	MaxVel    float64    `yaml:"max_vel"`  // Speed clamp per frame
	Color     string     `yaml:"color"`    // Hex RGB(A)
	Workers   int        `yaml:"workers"`  // 0 = GOMAXPROCS
}

// BackgroundConfig holds the background template settings.
type BackgroundConfig struct {
	Mode       string  `yaml:"mode"` // "solid" or "noise"
	Color      string  `yaml:"color"`
	NoiseColor string  `yaml:"noise_color"`
	NoiseScale float64 `yaml:"noise_scale"`
	NoiseSeed  int64   `yaml:"noise_seed"`
}

// BenchmarkConfig holds the frame-count shutdown parameters.
type BenchmarkConfig struct {
	Frames    int     `yaml:"frames"`     // Samples to collect before shutdown (0 = run until closed)
	WarmupSec float64 `yaml:"warmup_sec"` // Delay before samples are recorded
}

// TelemetryConfig holds rolling perf logging parameters.
type TelemetryConfig struct {
	PerfWindow int `yaml:"perf_window"` // Frames averaged per perf window
	LogEvery   int `yaml:"log_every"`   // Log perf every N produced frames (0 = never)
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Warmup          time.Duration
	ParticleColor   color.RGBA
	BackgroundColor color.RGBA
	NoiseColor      color.RGBA
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the embedded defaults without derived values.
func Defaults() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	return cfg, nil
}

// Finalize validates the config and recomputes derived values. Call it
// again after changing fields (for example from CLI flags).
func (c *Config) Finalize() error {
	if err := c.Validate(); err != nil {
		return err
	}
	return c.computeDerived()
}

// Validate rejects settings the pipeline cannot run with. Nothing is clamped.
func (c *Config) Validate() error {
	var errs []error
	if c.Pool.Capacity < 2 {
		errs = append(errs, fmt.Errorf("pool.capacity must be at least 2, got %d", c.Pool.Capacity))
	}
	if c.Screen.Width <= 0 || c.Screen.Height <= 0 {
		errs = append(errs, fmt.Errorf("screen size must be positive, got %dx%d", c.Screen.Width, c.Screen.Height))
	}
	if c.Particles.Count < 0 {
		errs = append(errs, fmt.Errorf("particles.count must not be negative, got %d", c.Particles.Count))
	}
	if c.Benchmark.Frames < 0 {
		errs = append(errs, fmt.Errorf("benchmark.frames must not be negative, got %d", c.Benchmark.Frames))
	}
	if c.Benchmark.WarmupSec < 0 {
		errs = append(errs, fmt.Errorf("benchmark.warmup_sec must not be negative, got %v", c.Benchmark.WarmupSec))
	}
	switch c.Background.Mode {
	case "solid", "noise":
	default:
		errs = append(errs, fmt.Errorf("background.mode must be solid or noise, got %q", c.Background.Mode))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() error {
	var err error
	if c.Derived.ParticleColor, err = ParseColor(c.Particles.Color); err != nil {
		return fmt.Errorf("particles.color: %w", err)
	}
	if c.Derived.BackgroundColor, err = ParseColor(c.Background.Color); err != nil {
		return fmt.Errorf("background.color: %w", err)
	}
	if c.Derived.NoiseColor, err = ParseColor(c.Background.NoiseColor); err != nil {
		return fmt.Errorf("background.noise_color: %w", err)
	}
	c.Derived.Warmup = time.Duration(c.Benchmark.WarmupSec * float64(time.Second))
	return nil
}

// ParseColor parses "#rrggbb" or "#rrggbbaa". Alpha defaults to opaque.
func ParseColor(s string) (color.RGBA, error) {
	var r, g, b uint8
	a := uint8(255)
	switch len(s) {
	case 7:
		if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
			return color.RGBA{}, fmt.Errorf("parsing %q: %w", s, err)
		}
	case 9:
		if _, err := fmt.Sscanf(s, "#%02x%02x%02x%02x", &r, &g, &b, &a); err != nil {
			return color.RGBA{}, fmt.Errorf("parsing %q: %w", s, err)
		}
	default:
		return color.RGBA{}, fmt.Errorf("parsing %q: want #rrggbb or #rrggbbaa", s)
	}
	return color.RGBA{R: r, G: g, B: b, A: a}, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
