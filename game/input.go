package game

import (
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/pixelrush/pipeline"
)

// handleInput processes keyboard input.
func (g *Game) handleInput() {
	g.handleResize()

	if rl.IsKeyPressed(rl.KeyF11) {
		rl.ToggleFullscreen()
	}

	// Freeze the mouse snapshot the producer sees.
	if rl.IsKeyPressed(rl.KeySpace) {
		g.inputFrozen = !g.inputFrozen
	}
}

// handleResize checks for window resize and propagates new dimensions.
// Buffers keep their size; only the on-screen scale changes.
func (g *Game) handleResize() {
	if !rl.IsWindowResized() {
		return
	}
	g.screenW = int32(rl.GetScreenWidth())
	g.screenH = int32(rl.GetScreenHeight())
	g.textures.Resize(float32(g.screenW), float32(g.screenH))
}

// sampleInput publishes the mouse position in buffer coordinates.
func (g *Game) sampleInput() {
	if g.inputFrozen {
		return
	}
	mouse := rl.GetMousePosition()
	screen := pipeline.Viewport{Width: int(g.screenW), Height: int(g.screenH)}
	view := pipeline.Viewport{Width: g.cfg.Screen.Width, Height: g.cfg.Screen.Height}
	g.input.Store(pipeline.ScaleInput(mouse.X, mouse.Y, screen, view, rl.IsCursorOnScreen()))
}
