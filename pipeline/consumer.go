package pipeline

import (
	"context"
	"fmt"

	"github.com/pthm-cable/pixelrush/framebuf"
	"github.com/pthm-cable/pixelrush/telemetry"
)

// Consumer presents published buffers, one per tick. It must only be used
// from the goroutine that owns its Surface.
type Consumer struct {
	pool    *framebuf.Pool
	surface Surface
	region  Region
	metrics *telemetry.Metrics

	visible   *framebuf.PixelBuffer
	presented int64
}

// NewConsumer creates a consumer presenting full frames onto surface.
// metrics may be nil.
func NewConsumer(pool *framebuf.Pool, surface Surface, metrics *telemetry.Metrics) *Consumer {
	w, h := pool.Size()
	return &Consumer{
		pool:    pool,
		surface: surface,
		region:  FullRegion(w, h),
		metrics: metrics,
	}
}

// Tick shows the next published buffer, blocking until one exists. The
// buffer shown by the previous tick goes back to the empty queue. done is
// true once ctx is done and nothing is left to show.
func (c *Consumer) Tick(ctx context.Context) (done bool, err error) {
	buf, err := c.pool.AcquireFull(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return true, nil
		}
		return false, err
	}

	c.surface.Attach(buf)

	if prev := c.visible; prev != nil {
		c.surface.Detach(prev)
		if err := c.pool.ReleaseEmpty(prev); err != nil {
			return false, fmt.Errorf("releasing buffer %d: %w", prev.ID, err)
		}
	}

	c.surface.Blit(buf, c.region)
	c.visible = buf
	c.presented++
	c.metrics.ObservePresent()
	return false, nil
}

// Visible returns the buffer currently on screen, nil before the first tick.
func (c *Consumer) Visible() *framebuf.PixelBuffer {
	return c.visible
}

// Presented returns the number of frames shown.
func (c *Consumer) Presented() int64 {
	return c.presented
}
