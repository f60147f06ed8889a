package game

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RunHeadless drives the consumer from the calling goroutine at the
// configured frame rate until the run completes or ctx is done. Frames go
// to an in-memory surface; no raylib call is made.
func (g *Game) RunHeadless(ctx context.Context) error {
	if g.memory == nil {
		return errors.New("game was not created in headless mode")
	}

	var interval time.Duration
	if fps := g.cfg.Screen.TargetFPS; fps > 0 {
		interval = time.Second / time.Duration(fps)
	}

	slog.Info("starting headless run", "run_id", g.runID, "tick_interval", interval)
	return g.pipe.RunTicker(ctx, interval)
}
