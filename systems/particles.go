package systems

import (
	"context"
	"fmt"
	"image/color"
	"math/rand"
	"time"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/pixelrush/components"
	"github.com/pthm-cable/pixelrush/config"
	"github.com/pthm-cable/pixelrush/framebuf"
	"github.com/pthm-cable/pixelrush/pipeline"
	"github.com/pthm-cable/pixelrush/telemetry"
)

// PhaseTimer receives phase boundaries during Fill.
type PhaseTimer interface {
	StartPhase(phase string)
}

// MotionParams controls per-frame particle motion.
type MotionParams struct {
	MousePull float32
	Damping   float32
	MaxVel    float32
}

// SpawnParams controls initial particle placement.
type SpawnParams struct {
	MinX, MinY float32
	MaxX, MaxY float32
	MaxSpeed   float32
	AccelX     float32
	Gravity    float32
}

// ParticleSystem owns the particle world and draws it into frame buffers.
// It is driven from the producer goroutine only.
type ParticleSystem struct {
	world  *ecs.World
	mapper *ecs.Map3[components.Position, components.Velocity, components.Acceleration]
	filter *ecs.Filter3[components.Position, components.Velocity, components.Acceleration]
	posMap *ecs.Map1[components.Position]

	background *Background
	motion     MotionParams
	spawn      SpawnParams
	color      color.RGBA
	rng        *rand.Rand

	// Snapshot arrays, reused every frame.
	entities []ecs.Entity
	pos      []components.Position
	vel      []components.Velocity
	acc      []components.Acceleration
	targets  []int32 // pixel index per particle, -1 = not drawn

	workers *workerPool
	timer   PhaseTimer
}

// NewParticleSystem spawns cfg.Particles.Count particles over background.
func NewParticleSystem(cfg *config.Config, background *Background) *ParticleSystem {
	p := cfg.Particles
	seed := p.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	world := ecs.NewWorld()
	s := &ParticleSystem{
		world:      world,
		mapper:     ecs.NewMap3[components.Position, components.Velocity, components.Acceleration](world),
		filter:     ecs.NewFilter3[components.Position, components.Velocity, components.Acceleration](world),
		posMap:     ecs.NewMap1[components.Position](world),
		background: background,
		motion: MotionParams{
			MousePull: float32(p.MousePull),
			Damping:   float32(p.Damping),
			MaxVel:    float32(p.MaxVel),
		},
		spawn: SpawnParams{
			MinX:     float32(p.SpawnMin[0]),
			MinY:     float32(p.SpawnMin[1]),
			MaxX:     float32(p.SpawnMax[0]),
			MaxY:     float32(p.SpawnMax[1]),
			MaxSpeed: float32(p.MaxSpeed),
			AccelX:   float32(p.AccelX),
			Gravity:  float32(p.Gravity),
		},
		color:   cfg.Derived.ParticleColor,
		rng:     rand.New(rand.NewSource(seed)),
		workers: newWorkerPool(p.Workers),
	}

	s.entities = make([]ecs.Entity, 0, p.Count)
	for i := 0; i < p.Count; i++ {
		s.spawnRandom()
	}
	return s
}

// SetPhaseTimer routes phase boundaries to t. Pass nil to disable.
func (s *ParticleSystem) SetPhaseTimer(t PhaseTimer) {
	s.timer = t
}

// Count returns the number of live particles.
func (s *ParticleSystem) Count() int {
	return len(s.entities)
}

// Spawn adds one particle. Not safe to call concurrently with Fill.
func (s *ParticleSystem) Spawn(pos components.Position, vel components.Velocity, acc components.Acceleration) ecs.Entity {
	e := s.mapper.NewEntity(&pos, &vel, &acc)
	s.entities = append(s.entities, e)
	return e
}

func (s *ParticleSystem) spawnRandom() {
	sp := s.spawn
	pos := components.Position{
		X: sp.MinX + s.rng.Float32()*(sp.MaxX-sp.MinX),
		Y: sp.MinY + s.rng.Float32()*(sp.MaxY-sp.MinY),
	}
	vel := components.Velocity{
		X: (s.rng.Float32()*2 - 1) * sp.MaxSpeed,
		Y: (s.rng.Float32()*2 - 1) * sp.MaxSpeed,
	}
	acc := components.Acceleration{
		X: (s.rng.Float32()*2 - 1) * sp.AccelX,
		Y: sp.Gravity * s.rng.Float32(),
	}
	s.Spawn(pos, vel, acc)
}

// Close stops the worker goroutines.
func (s *ParticleSystem) Close() {
	s.workers.stop()
}

func (s *ParticleSystem) phase(name string) {
	if s.timer != nil {
		s.timer.StartPhase(name)
	}
}

// Fill implements pipeline.Filler. It copies the background, advances every
// particle one step and plots it. Motion is computed in parallel; pixels are
// written by a single goroutine in particle order, so when two particles land
// on the same pixel the later one wins.
func (s *ParticleSystem) Fill(ctx context.Context, buf *framebuf.PixelBuffer, input pipeline.InputState, view pipeline.Viewport) error {
	s.phase(telemetry.PhaseBackground)
	if err := s.background.CopyInto(buf); err != nil {
		return err
	}

	s.phase(telemetry.PhaseSnapshot)
	s.snapshot()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.phase(telemetry.PhaseCompute)
	if err := s.compute(buf, input, view); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.phase(telemetry.PhaseApply)
	return s.apply(buf)
}

// snapshot copies component data into the flat arrays.
func (s *ParticleSystem) snapshot() {
	n := len(s.entities)
	if cap(s.pos) < n {
		s.pos = make([]components.Position, n)
		s.vel = make([]components.Velocity, n)
		s.acc = make([]components.Acceleration, n)
		s.targets = make([]int32, n)
	}
	s.pos = s.pos[:n]
	s.vel = s.vel[:n]
	s.acc = s.acc[:n]
	s.targets = s.targets[:n]

	i := 0
	query := s.filter.Query()
	for query.Next() {
		pos, vel, acc := query.Get()
		s.pos[i] = *pos
		s.vel[i] = *vel
		s.acc[i] = *acc
		i++
	}
}

// compute advances every particle in the snapshot. Each worker touches only
// its own index range.
func (s *ParticleSystem) compute(buf *framebuf.PixelBuffer, input pipeline.InputState, view pipeline.Viewport) error {
	m := s.motion
	w := float32(view.Width)
	h := float32(view.Height)
	bufW := buf.Width
	bufH := buf.Height
	mx := float32(input.MouseX)
	my := float32(input.MouseY)
	pull := input.MouseInside && m.MousePull != 0
	maxVelSq := m.MaxVel * m.MaxVel

	return s.workers.run(len(s.pos), func(start, end int) {
		for i := start; i < end; i++ {
			pos := &s.pos[i]
			vel := &s.vel[i]
			acc := &s.acc[i]

			if pull {
				dx := mx - pos.X
				dy := my - pos.Y
				if d2 := dx*dx + dy*dy; d2 > 1 {
					inv := fastInvSqrt(d2)
					vel.X += dx * inv * m.MousePull
					vel.Y += dy * inv * m.MousePull
				}
			}

			vel.X += acc.X
			vel.Y += acc.Y

			if maxVelSq > 0 {
				if speedSq := vel.X*vel.X + vel.Y*vel.Y; speedSq > maxVelSq {
					k := m.MaxVel / fastSqrt(speedSq)
					vel.X *= k
					vel.Y *= k
				}
			}

			pos.X += vel.X
			pos.Y += vel.Y

			pos.X, vel.X, acc.X = bounce(pos.X, vel.X, acc.X, w, m.Damping)
			pos.Y, vel.Y, acc.Y = bounce(pos.Y, vel.Y, acc.Y, h, m.Damping)

			s.targets[i] = pixelIndex(pos.X, pos.Y, bufW, bufH)
		}
	})
}

// bounce reflects p back into [0, limit). On contact the velocity is damped
// and the acceleration on that axis flips to point back inward.
func bounce(p, v, a, limit, damping float32) (float32, float32, float32) {
	switch {
	case p < 0:
		p = -p
		v = absf(v) * damping
		a = absf(a)
	case p >= limit:
		p = 2*limit - p
		v = -absf(v) * damping
		a = -absf(a)
	default:
		return p, v, a
	}
	// A single reflection can overshoot when |v| exceeds the extent.
	if p < 0 {
		p = 0
	} else if p >= limit {
		p = limit - 1
	}
	return p, v, a
}

// pixelIndex maps a position to a row-major pixel index. The column wraps,
// rows outside the buffer are dropped.
func pixelIndex(x, y float32, width, height int) int32 {
	xi := int(x)
	yi := int(y)
	if width <= 0 || yi < 0 || yi >= height || xi < 0 {
		return -1
	}
	return int32(xi%width + yi*width)
}

// apply writes the snapshot back into the world and plots every particle.
func (s *ParticleSystem) apply(buf *framebuf.PixelBuffer) error {
	pixels := buf.Pixels
	c := s.color

	i := 0
	query := s.filter.Query()
	for query.Next() {
		if i >= len(s.entities) || query.Entity() != s.entities[i] {
			query.Close()
			return fmt.Errorf("particle storage changed during fill at index %d", i)
		}
		pos, vel, acc := query.Get()
		*pos = s.pos[i]
		*vel = s.vel[i]
		*acc = s.acc[i]

		if t := s.targets[i]; t >= 0 && int(t) < len(pixels) {
			pixels[t] = c
		}
		i++
	}
	return nil
}

// Position returns the current position of particle i in spawn order.
func (s *ParticleSystem) Position(i int) components.Position {
	return *s.posMap.Get(s.entities[i])
}
