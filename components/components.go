// Package components defines ECS components for the particle simulation.
package components

// Position represents a particle's position in pixels.
type Position struct {
	X, Y float32
}

// Velocity represents a particle's velocity in pixels per frame.
type Velocity struct {
	X, Y float32
}

// Acceleration is added to Velocity every frame.
type Acceleration struct {
	X, Y float32
}
