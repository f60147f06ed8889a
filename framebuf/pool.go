package framebuf

import (
	"context"
	"errors"
	"fmt"
)

// MinCapacity is the smallest pool that can keep one buffer visible while
// another is being written.
const MinCapacity = 2

var (
	// ErrCapacity is returned by New when the pool would hold fewer than
	// MinCapacity buffers.
	ErrCapacity = errors.New("framebuf: capacity must be at least 2")

	// ErrDimensions is returned by New for non-positive buffer sizes.
	ErrDimensions = errors.New("framebuf: width and height must be positive")

	// ErrNotOwned reports a hand-off of a buffer the caller does not hold.
	// It always indicates a pipeline bug.
	ErrNotOwned = errors.New("framebuf: buffer not owned by caller")
)

// Pool circulates a fixed set of buffers through two bounded FIFO queues.
// Buffers flow empty -> producer -> full -> consumer -> empty; the queue
// capacity equals the buffer count so hand-offs into a queue never block.
type Pool struct {
	width, height int
	buffers       []*PixelBuffer
	empty         chan *PixelBuffer
	full          chan *PixelBuffer
}

// New allocates capacity buffers of width*height pixels and queues all of
// them as empty. Nothing is allocated after this call.
func New(capacity, width, height int) (*Pool, error) {
	if capacity < MinCapacity {
		return nil, fmt.Errorf("%w: got %d", ErrCapacity, capacity)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrDimensions, width, height)
	}

	p := &Pool{
		width:   width,
		height:  height,
		buffers: make([]*PixelBuffer, capacity),
		empty:   make(chan *PixelBuffer, capacity),
		full:    make(chan *PixelBuffer, capacity),
	}
	for i := range p.buffers {
		b := newPixelBuffer(i, width, height)
		p.buffers[i] = b
		p.empty <- b
	}
	return p, nil
}

// Capacity returns the number of buffers in the pool.
func (p *Pool) Capacity() int {
	return len(p.buffers)
}

// Size returns the buffer dimensions.
func (p *Pool) Size() (width, height int) {
	return p.width, p.height
}

// Buffers returns every buffer in ID order. It is meant for binding
// surface handles before either loop starts; callers must not touch pixel
// data through it.
func (p *Pool) Buffers() []*PixelBuffer {
	out := make([]*PixelBuffer, len(p.buffers))
	copy(out, p.buffers)
	return out
}

// AcquireEmpty blocks until a writable buffer is available and hands it to
// the producer. It returns ctx.Err() if ctx is done first.
func (p *Pool) AcquireEmpty(ctx context.Context) (*PixelBuffer, error) {
	select {
	case b := <-p.empty:
		return p.take(b, OwnerEmptyQueue, OwnerProducer)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PublishFull queues a filled buffer for presentation.
func (p *Pool) PublishFull(b *PixelBuffer) error {
	if err := p.give(b, OwnerProducer, OwnerFullQueue); err != nil {
		return err
	}
	select {
	case p.full <- b:
		return nil
	default:
		// Unreachable while ownership tags hold: at most N buffers exist.
		b.owner.Store(int32(OwnerProducer))
		return fmt.Errorf("%w: full queue overflow on buffer %d", ErrNotOwned, b.ID)
	}
}

// AcquireFull blocks until a presentable buffer is available and hands it
// to the consumer. When ctx is done, a buffer that was already published is
// still returned so that no finished frame is lost; only an empty queue
// yields ctx.Err().
func (p *Pool) AcquireFull(ctx context.Context) (*PixelBuffer, error) {
	select {
	case b := <-p.full:
		return p.take(b, OwnerFullQueue, OwnerConsumer)
	case <-ctx.Done():
	}

	select {
	case b := <-p.full:
		return p.take(b, OwnerFullQueue, OwnerConsumer)
	default:
		return nil, ctx.Err()
	}
}

// ReleaseEmpty returns a presented buffer so the producer can reuse it.
func (p *Pool) ReleaseEmpty(b *PixelBuffer) error {
	if err := p.give(b, OwnerConsumer, OwnerEmptyQueue); err != nil {
		return err
	}
	select {
	case p.empty <- b:
		return nil
	default:
		b.owner.Store(int32(OwnerConsumer))
		return fmt.Errorf("%w: empty queue overflow on buffer %d", ErrNotOwned, b.ID)
	}
}

func (p *Pool) take(b *PixelBuffer, from, to Owner) (*PixelBuffer, error) {
	if !b.transfer(from, to) {
		return nil, fmt.Errorf("%w: buffer %d dequeued while held by %s", ErrNotOwned, b.ID, b.Owner())
	}
	return b, nil
}

func (p *Pool) give(b *PixelBuffer, from, to Owner) error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrNotOwned)
	}
	if b.ID < 0 || b.ID >= len(p.buffers) || p.buffers[b.ID] != b {
		return fmt.Errorf("%w: buffer %d does not belong to this pool", ErrNotOwned, b.ID)
	}
	if !b.transfer(from, to) {
		return fmt.Errorf("%w: buffer %d held by %s, want %s", ErrNotOwned, b.ID, b.Owner(), from)
	}
	return nil
}

// Census counts buffers per owner. The snapshot is not atomic across
// buffers, so counts taken while both loops run may be mid-transition;
// with the loops parked the counts always sum to Capacity.
type Census struct {
	EmptyQueue int
	Producer   int
	FullQueue  int
	Consumer   int

	EmptyLen int // buffers sitting in the empty channel
	FullLen  int // buffers sitting in the full channel
}

// Total returns the number of buffers accounted for.
func (c Census) Total() int {
	return c.EmptyQueue + c.Producer + c.FullQueue + c.Consumer
}

// Census returns the current ownership counts.
func (p *Pool) Census() Census {
	c := Census{
		EmptyLen: len(p.empty),
		FullLen:  len(p.full),
	}
	for _, b := range p.buffers {
		switch b.Owner() {
		case OwnerEmptyQueue:
			c.EmptyQueue++
		case OwnerProducer:
			c.Producer++
		case OwnerFullQueue:
			c.FullQueue++
		case OwnerConsumer:
			c.Consumer++
		}
	}
	return c
}
