// Package framebuf provides the fixed pool of pixel buffers that rotates
// between the simulation producer and the presentation consumer.
package framebuf

import (
	"image/color"
	"sync/atomic"
)

// Owner identifies which side of the pipeline currently holds a buffer.
type Owner int32

const (
	OwnerEmptyQueue Owner = iota // waiting to be written
	OwnerProducer                // being filled
	OwnerFullQueue               // waiting to be presented
	OwnerConsumer                // currently visible
)

// String returns a short name for logs and errors.
func (o Owner) String() string {
	switch o {
	case OwnerEmptyQueue:
		return "empty_queue"
	case OwnerProducer:
		return "producer"
	case OwnerFullQueue:
		return "full_queue"
	case OwnerConsumer:
		return "consumer"
	}
	return "unknown"
}

// PixelBuffer is one frame worth of packed RGBA pixels.
// Width, Height and the Pixels backing array never change after the pool
// allocates the buffer.
type PixelBuffer struct {
	ID     int
	Width  int
	Height int
	Pixels []color.RGBA

	// Handle is the presentation-side resource bound to this buffer
	// (a texture for the raylib surface). The pool never inspects it.
	Handle any

	owner atomic.Int32
}

func newPixelBuffer(id, width, height int) *PixelBuffer {
	b := &PixelBuffer{
		ID:     id,
		Width:  width,
		Height: height,
		Pixels: make([]color.RGBA, width*height),
	}
	b.owner.Store(int32(OwnerEmptyQueue))
	return b
}

// Owner returns the current owner tag.
func (b *PixelBuffer) Owner() Owner {
	return Owner(b.owner.Load())
}

// Len returns the number of pixels.
func (b *PixelBuffer) Len() int {
	return len(b.Pixels)
}

// transfer moves ownership from one side to another. It fails when the
// buffer is not held by from.
func (b *PixelBuffer) transfer(from, to Owner) bool {
	return b.owner.CompareAndSwap(int32(from), int32(to))
}
