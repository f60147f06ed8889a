package systems

import (
	"fmt"
	"image/color"

	"github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/pixelrush/config"
	"github.com/pthm-cable/pixelrush/framebuf"
)

// Background is the pixel template copied into every frame before
// particles are drawn. It is built once and never written afterwards, so
// it can be read from any goroutine.
type Background struct {
	width, height int
	pixels        []color.RGBA
}

// NewSolidBackground fills a width x height template with c.
func NewSolidBackground(width, height int, c color.RGBA) *Background {
	b := &Background{width: width, height: height, pixels: make([]color.RGBA, width*height)}
	for i := range b.pixels {
		b.pixels[i] = c
	}
	return b
}

// NewNoiseBackground blends base towards tint using 2D simplex noise.
func NewNoiseBackground(width, height int, base, tint color.RGBA, scale float64, seed int64) *Background {
	noise := opensimplex.NewNormalized(seed)
	b := &Background{width: width, height: height, pixels: make([]color.RGBA, width*height)}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			t := noise.Eval2(float64(x)*scale, float64(y)*scale)
			b.pixels[y*width+x] = lerpRGBA(base, tint, t)
		}
	}
	return b
}

// NewBackground builds the template described by cfg.
func NewBackground(cfg *config.Config) (*Background, error) {
	w, h := cfg.Screen.Width, cfg.Screen.Height
	switch cfg.Background.Mode {
	case "solid":
		return NewSolidBackground(w, h, cfg.Derived.BackgroundColor), nil
	case "noise":
		return NewNoiseBackground(w, h,
			cfg.Derived.BackgroundColor, cfg.Derived.NoiseColor,
			cfg.Background.NoiseScale, cfg.Background.NoiseSeed,
		), nil
	}
	return nil, fmt.Errorf("unknown background mode %q", cfg.Background.Mode)
}

// CopyInto overwrites every pixel of buf with the template.
func (b *Background) CopyInto(buf *framebuf.PixelBuffer) error {
	if buf.Width != b.width || buf.Height != b.height {
		return fmt.Errorf("background is %dx%d, buffer %d is %dx%d",
			b.width, b.height, buf.ID, buf.Width, buf.Height)
	}
	copy(buf.Pixels, b.pixels)
	return nil
}

// Pixel returns the template color at (x, y).
func (b *Background) Pixel(x, y int) color.RGBA {
	return b.pixels[y*b.width+x]
}

func lerpRGBA(a, b color.RGBA, t float64) color.RGBA {
	t = max(0, min(1, t))
	mix := func(u, v uint8) uint8 {
		return uint8(float64(u) + (float64(v)-float64(u))*t + 0.5)
	}
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: mix(a.A, b.A)}
}
