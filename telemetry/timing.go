package telemetry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrTimingCapacity is returned when a timing log would hold no samples.
var ErrTimingCapacity = errors.New("telemetry: timing log capacity must be positive")

// FrameTimingLog collects per-frame fill durations for a benchmark run.
// Samples are ignored until the warm-up delay has passed since the log was
// armed, and the log stops accepting samples once it holds capacity entries.
// It is owned by the producer goroutine and is not safe for concurrent use.
type FrameTimingLog struct {
	capacity int
	warmup   time.Duration
	now      func() time.Time
	armedAt  time.Time
	warm     bool

	samples []float64 // milliseconds
	skipped int       // samples dropped during warm-up
}

// NewFrameTimingLog creates a log for capacity samples. now may be nil, in
// which case time.Now is used. The log is armed immediately.
func NewFrameTimingLog(capacity int, warmup time.Duration, now func() time.Time) (*FrameTimingLog, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrTimingCapacity, capacity)
	}
	if now == nil {
		now = time.Now
	}
	l := &FrameTimingLog{
		capacity: capacity,
		warmup:   warmup,
		now:      now,
		samples:  make([]float64, 0, capacity),
	}
	l.Arm()
	return l, nil
}

// Arm restarts the warm-up delay from now. Already recorded samples are kept.
func (l *FrameTimingLog) Arm() {
	l.armedAt = l.now()
	l.warm = l.warmup <= 0
}

// Warm reports whether the warm-up delay has elapsed.
func (l *FrameTimingLog) Warm() bool {
	if !l.warm && l.now().Sub(l.armedAt) >= l.warmup {
		l.warm = true
	}
	return l.warm
}

// Record appends a sample if the log is warm and not yet full. It reports
// whether the sample was kept.
func (l *FrameTimingLog) Record(d time.Duration) bool {
	if l.Full() {
		return false
	}
	if !l.Warm() {
		l.skipped++
		return false
	}
	l.samples = append(l.samples, float64(d)/float64(time.Millisecond))
	return true
}

// Full reports whether capacity samples have been recorded.
func (l *FrameTimingLog) Full() bool {
	return len(l.samples) >= l.capacity
}

// Len returns the number of recorded samples.
func (l *FrameTimingLog) Len() int {
	return len(l.samples)
}

// Capacity returns the number of samples the log collects.
func (l *FrameTimingLog) Capacity() int {
	return l.capacity
}

// Skipped returns how many samples were dropped during warm-up.
func (l *FrameTimingLog) Skipped() int {
	return l.skipped
}

// Samples returns a copy of the recorded durations in milliseconds.
func (l *FrameTimingLog) Samples() []float64 {
	out := make([]float64, len(l.samples))
	copy(out, l.samples)
	return out
}

// Summary aggregates the recorded samples.
func (l *FrameTimingLog) Summary() FrameSummary {
	return Summarize(l.samples)
}

// FrameSummary holds aggregate frame timing in milliseconds.
type FrameSummary struct {
	RunID    string  `csv:"run_id"`
	Samples  int     `csv:"samples"`
	AvgMS    float64 `csv:"avg_ms"`
	MinMS    float64 `csv:"min_ms"`
	MaxMS    float64 `csv:"max_ms"`
	P50MS    float64 `csv:"p50_ms"`
	P99MS    float64 `csv:"p99_ms"`
	StdDevMS float64 `csv:"stddev_ms"`
}

// Summarize computes mean, extremes, quantiles and spread of samples.
// An empty slice yields a zero summary.
func Summarize(samples []float64) FrameSummary {
	n := len(samples)
	if n == 0 {
		return FrameSummary{}
	}

	sorted := make([]float64, n)
	copy(sorted, samples)
	sort.Float64s(sorted)

	s := FrameSummary{
		Samples: n,
		AvgMS:   stat.Mean(sorted, nil),
		MinMS:   floats.Min(sorted),
		MaxMS:   floats.Max(sorted),
		P50MS:   stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P99MS:   stat.Quantile(0.99, stat.Empirical, sorted, nil),
	}
	if n > 1 {
		s.StdDevMS = stat.StdDev(sorted, nil)
	}

	// Floating point summation can push the mean a hair outside the range
	// when every sample is identical.
	s.AvgMS = min(max(s.AvgMS, s.MinMS), s.MaxMS)
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s FrameSummary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("samples", s.Samples),
		slog.Float64("avg_ms", s.AvgMS),
		slog.Float64("min_ms", s.MinMS),
		slog.Float64("max_ms", s.MaxMS),
		slog.Float64("p50_ms", s.P50MS),
		slog.Float64("p99_ms", s.P99MS),
		slog.Float64("stddev_ms", s.StdDevMS),
	)
}

// FrameSampleCSV is one recorded frame for CSV export.
type FrameSampleCSV struct {
	RunID    string  `csv:"run_id"`
	Frame    int     `csv:"frame"`
	BufferID int     `csv:"buffer"`
	FillMS   float64 `csv:"fill_ms"`
}
