package renderer

import (
	"fmt"
	"image/color"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/pixelrush/framebuf"
	"github.com/pthm-cable/pixelrush/pipeline"
)

// TextureSurface presents frame buffers through one GPU texture per buffer.
// The texture lives in PixelBuffer.Handle. Must be used from the thread
// that owns the raylib window.
type TextureSurface struct {
	textures map[int]rl.Texture2D
	visible  *framebuf.PixelBuffer
	scratch  []color.RGBA

	screenW, screenH float32
}

// NewTextureSurface creates a surface drawn at screenW x screenH.
func NewTextureSurface(screenW, screenH int32) *TextureSurface {
	return &TextureSurface{
		textures: make(map[int]rl.Texture2D),
		screenW:  float32(screenW),
		screenH:  float32(screenH),
	}
}

// Bind creates a texture for every buffer and stores it in the buffer's
// Handle. Call once after the window exists and before the pipeline starts.
func (s *TextureSurface) Bind(buffers []*framebuf.PixelBuffer) error {
	for _, buf := range buffers {
		if buf.Handle != nil {
			return fmt.Errorf("buffer %d already bound", buf.ID)
		}
		img := rl.GenImageColor(buf.Width, buf.Height, rl.Black)
		tex := rl.LoadTextureFromImage(img)
		rl.UnloadImage(img)
		if tex.ID == 0 {
			return fmt.Errorf("creating texture for buffer %d", buf.ID)
		}
		rl.SetTextureFilter(tex, rl.FilterPoint)

		s.textures[buf.ID] = tex
		buf.Handle = tex
	}
	return nil
}

func (s *TextureSurface) texture(buf *framebuf.PixelBuffer) (rl.Texture2D, bool) {
	tex, ok := buf.Handle.(rl.Texture2D)
	return tex, ok
}

// Attach implements pipeline.Surface.
func (s *TextureSurface) Attach(buf *framebuf.PixelBuffer) {
	s.visible = buf
}

// Detach implements pipeline.Surface.
func (s *TextureSurface) Detach(buf *framebuf.PixelBuffer) {
	if s.visible == buf {
		s.visible = nil
	}
}

// Blit implements pipeline.Surface. A full-frame region is uploaded
// straight from the buffer; partial regions go through a scratch slice.
func (s *TextureSurface) Blit(buf *framebuf.PixelBuffer, r pipeline.Region) {
	tex, ok := s.texture(buf)
	if !ok {
		return
	}

	x0, y0 := max(r.X, 0), max(r.Y, 0)
	x1 := min(r.X+r.Width, buf.Width)
	y1 := min(r.Y+r.Height, buf.Height)
	if x0 >= x1 || y0 >= y1 {
		return
	}

	if x0 == 0 && y0 == 0 && x1 == buf.Width && y1 == buf.Height {
		rl.UpdateTexture(tex, buf.Pixels)
		return
	}

	w := x1 - x0
	need := w * (y1 - y0)
	if cap(s.scratch) < need {
		s.scratch = make([]color.RGBA, need)
	}
	s.scratch = s.scratch[:need]
	for y := y0; y < y1; y++ {
		copy(s.scratch[(y-y0)*w:(y-y0+1)*w], buf.Pixels[y*buf.Width+x0:y*buf.Width+x1])
	}

	rec := rl.Rectangle{X: float32(x0), Y: float32(y0), Width: float32(w), Height: float32(y1 - y0)}
	rl.UpdateTextureRec(tex, rec, s.scratch)
}

// Resize updates the on-screen destination size.
func (s *TextureSurface) Resize(w, h float32) {
	s.screenW = w
	s.screenH = h
}

// Draw renders the visible buffer scaled to the screen.
func (s *TextureSurface) Draw() {
	if s.visible == nil {
		return
	}
	tex, ok := s.texture(s.visible)
	if !ok {
		return
	}

	srcRect := rl.Rectangle{X: 0, Y: 0, Width: float32(tex.Width), Height: float32(tex.Height)}
	dstRect := rl.Rectangle{X: 0, Y: 0, Width: s.screenW, Height: s.screenH}
	rl.DrawTexturePro(tex, srcRect, dstRect, rl.Vector2{}, 0, rl.White)
}

// Visible returns the buffer currently drawn, if any.
func (s *TextureSurface) Visible() *framebuf.PixelBuffer {
	return s.visible
}

// Unload frees every texture. Call after the pipeline has stopped.
func (s *TextureSurface) Unload(buffers []*framebuf.PixelBuffer) {
	for _, buf := range buffers {
		buf.Handle = nil
	}
	for id, tex := range s.textures {
		rl.UnloadTexture(tex)
		delete(s.textures, id)
	}
	s.visible = nil
}
