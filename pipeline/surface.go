package pipeline

import (
	"image/color"

	"github.com/pthm-cable/pixelrush/framebuf"
)

// Region is a pixel rectangle inside a buffer.
type Region struct {
	X, Y, Width, Height int
}

// FullRegion covers an entire width x height buffer.
func FullRegion(width, height int) Region {
	return Region{Width: width, Height: height}
}

// Surface is the presentation side. All methods are called from the
// consumer's goroutine only.
type Surface interface {
	// Attach makes buf the visible output.
	Attach(buf *framebuf.PixelBuffer)
	// Detach removes a previously attached buffer from the output.
	Detach(buf *framebuf.PixelBuffer)
	// Blit copies region of buf.Pixels into the surface's backing store.
	Blit(buf *framebuf.PixelBuffer, region Region)
}

// MemorySurface is a Surface backed by a plain pixel slice. It is used for
// headless runs.
type MemorySurface struct {
	width, height int
	store         []color.RGBA
	attached      map[*framebuf.PixelBuffer]struct{}
	visible       *framebuf.PixelBuffer

	Attaches int
	Detaches int
	Blits    int
}

// NewMemorySurface creates a surface with a width x height backing store.
func NewMemorySurface(width, height int) *MemorySurface {
	return &MemorySurface{
		width:    width,
		height:   height,
		store:    make([]color.RGBA, width*height),
		attached: make(map[*framebuf.PixelBuffer]struct{}),
	}
}

// Attach implements Surface.
func (m *MemorySurface) Attach(buf *framebuf.PixelBuffer) {
	m.attached[buf] = struct{}{}
	m.visible = buf
	m.Attaches++
}

// Detach implements Surface.
func (m *MemorySurface) Detach(buf *framebuf.PixelBuffer) {
	delete(m.attached, buf)
	if m.visible == buf {
		m.visible = nil
	}
	m.Detaches++
}

// Blit implements Surface. The region is clipped to both the buffer and
// the backing store.
func (m *MemorySurface) Blit(buf *framebuf.PixelBuffer, r Region) {
	x0, y0 := max(r.X, 0), max(r.Y, 0)
	x1 := min(r.X+r.Width, buf.Width, m.width)
	y1 := min(r.Y+r.Height, buf.Height, m.height)
	if x0 >= x1 || y0 >= y1 {
		return
	}

	if x0 == 0 && x1 == m.width && buf.Width == m.width {
		copy(m.store[y0*m.width:y1*m.width], buf.Pixels[y0*buf.Width:y1*buf.Width])
	} else {
		for y := y0; y < y1; y++ {
			copy(m.store[y*m.width+x0:y*m.width+x1], buf.Pixels[y*buf.Width+x0:y*buf.Width+x1])
		}
	}
	m.Blits++
}

// Visible returns the buffer most recently attached and still attached.
func (m *MemorySurface) Visible() *framebuf.PixelBuffer {
	return m.visible
}

// Attached returns how many buffers are currently attached.
func (m *MemorySurface) Attached() int {
	return len(m.attached)
}

// Pixel returns one pixel of the backing store.
func (m *MemorySurface) Pixel(x, y int) color.RGBA {
	return m.store[y*m.width+x]
}

// Snapshot returns a copy of the backing store.
func (m *MemorySurface) Snapshot() []color.RGBA {
	out := make([]color.RGBA, len(m.store))
	copy(out, m.store)
	return out
}
