package renderer

import (
	"fmt"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/pixelrush/framebuf"
)

// HUDStats is everything the overlay shows for one display tick.
type HUDStats struct {
	FPS           int32
	Produced      int64
	Presented     int64
	Recorded      int64
	Target        int
	Census        framebuf.Census
	InputFrozen   bool
	LastFillMS    float64
	ParticleCount int
}

const (
	hudPanelW = 300
	hudPanelH = 150
	hudBarH   = 24
)

// DrawHUD draws the stats panel and the bottom status bar. It reports
// whether the freeze-input button was clicked this tick.
func DrawHUD(s HUDStats, screenW, screenH int32) bool {
	rl.DrawRectangle(8, 8, hudPanelW, hudPanelH, rl.Color{R: 0, G: 0, B: 0, A: 180})

	y := int32(16)
	line := func(text string, c rl.Color) {
		rl.DrawText(text, 16, y, 16, c)
		y += 20
	}
	line(fmt.Sprintf("FPS: %d", s.FPS), rl.White)
	line(fmt.Sprintf("Particles: %d", s.ParticleCount), rl.White)
	line(fmt.Sprintf("Produced: %d  Shown: %d", s.Produced, s.Presented), rl.White)
	line(fmt.Sprintf("Last fill: %.2f ms", s.LastFillMS), rl.White)
	c := s.Census
	line(fmt.Sprintf("Pool E:%d P:%d F:%d C:%d", c.EmptyQueue, c.Producer, c.FullQueue, c.Consumer), rl.LightGray)
	if s.InputFrozen {
		line("INPUT FROZEN [space]", rl.Yellow)
	}

	label := "Freeze input"
	if s.InputFrozen {
		label = "Resume input"
	}
	clicked := gui.Button(rl.Rectangle{X: 16, Y: float32(8 + hudPanelH - 30), Width: 120, Height: 24}, label)

	status := "warming up"
	if s.Target > 0 && s.Recorded > 0 {
		status = fmt.Sprintf("recorded %d / %d frames", s.Recorded, s.Target)
	} else if s.Target == 0 {
		status = "running until closed"
	}
	gui.StatusBar(rl.Rectangle{X: 0, Y: float32(screenH - hudBarH), Width: float32(screenW), Height: hudBarH}, status)

	return clicked
}
