package framebuf

import (
	"context"
	"errors"
	"testing"
	"time"
)

func mustPool(t *testing.T, capacity int) *Pool {
	t.Helper()
	p, err := New(capacity, 8, 4)
	if err != nil {
		t.Fatalf("New(%d): %v", capacity, err)
	}
	return p
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name          string
		capacity      int
		width, height int
		want          error
	}{
		{"capacity zero", 0, 8, 8, ErrCapacity},
		{"capacity one", 1, 8, 8, ErrCapacity},
		{"negative capacity", -3, 8, 8, ErrCapacity},
		{"zero width", 3, 0, 8, ErrDimensions},
		{"zero height", 3, 8, 0, ErrDimensions},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New(tc.capacity, tc.width, tc.height)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
			if p != nil {
				t.Error("expected nil pool on error")
			}
		})
	}
}

func TestNewAllocatesEmptyBuffers(t *testing.T) {
	p := mustPool(t, 3)

	if p.Capacity() != 3 {
		t.Errorf("expected capacity 3, got %d", p.Capacity())
	}

	c := p.Census()
	if c.EmptyQueue != 3 || c.EmptyLen != 3 || c.Total() != 3 {
		t.Errorf("expected all 3 buffers queued empty, got %+v", c)
	}

	for i, b := range p.Buffers() {
		if b.ID != i {
			t.Errorf("buffer %d has id %d", i, b.ID)
		}
		if b.Len() != 8*4 {
			t.Errorf("buffer %d: expected %d pixels, got %d", i, 8*4, b.Len())
		}
	}
}

func TestOwnershipTransitions(t *testing.T) {
	p := mustPool(t, 2)
	ctx := context.Background()

	b, err := p.AcquireEmpty(ctx)
	if err != nil {
		t.Fatalf("AcquireEmpty: %v", err)
	}
	if b.Owner() != OwnerProducer {
		t.Errorf("expected producer owner, got %s", b.Owner())
	}
	assertCensus(t, p, Census{EmptyQueue: 1, Producer: 1, EmptyLen: 1})

	if err := p.PublishFull(b); err != nil {
		t.Fatalf("PublishFull: %v", err)
	}
	assertCensus(t, p, Census{EmptyQueue: 1, FullQueue: 1, EmptyLen: 1, FullLen: 1})

	got, err := p.AcquireFull(ctx)
	if err != nil {
		t.Fatalf("AcquireFull: %v", err)
	}
	if got != b {
		t.Fatal("expected the published buffer back")
	}
	assertCensus(t, p, Census{EmptyQueue: 1, Consumer: 1, EmptyLen: 1})

	if err := p.ReleaseEmpty(b); err != nil {
		t.Fatalf("ReleaseEmpty: %v", err)
	}
	assertCensus(t, p, Census{EmptyQueue: 2, EmptyLen: 2})
}

func TestPublishRequiresProducerOwnership(t *testing.T) {
	p := mustPool(t, 2)
	b := p.Buffers()[0] // still queued empty

	if err := p.PublishFull(b); !errors.Is(err, ErrNotOwned) {
		t.Errorf("expected ErrNotOwned publishing a queued buffer, got %v", err)
	}
	if err := p.PublishFull(nil); !errors.Is(err, ErrNotOwned) {
		t.Errorf("expected ErrNotOwned for nil, got %v", err)
	}

	other := mustPool(t, 2)
	foreign, err := other.AcquireEmpty(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.PublishFull(foreign); !errors.Is(err, ErrNotOwned) {
		t.Errorf("expected ErrNotOwned for foreign buffer, got %v", err)
	}

	// Failed publishes must not disturb the pool.
	assertCensus(t, p, Census{EmptyQueue: 2, EmptyLen: 2})
}

func TestDoubleReleaseRejected(t *testing.T) {
	p := mustPool(t, 2)
	ctx := context.Background()

	b, _ := p.AcquireEmpty(ctx)
	if err := p.PublishFull(b); err != nil {
		t.Fatal(err)
	}
	if _, err := p.AcquireFull(ctx); err != nil {
		t.Fatal(err)
	}

	if err := p.ReleaseEmpty(b); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := p.ReleaseEmpty(b); !errors.Is(err, ErrNotOwned) {
		t.Errorf("expected ErrNotOwned on double release, got %v", err)
	}
	assertCensus(t, p, Census{EmptyQueue: 2, EmptyLen: 2})
}

func TestPublishTwiceRejected(t *testing.T) {
	p := mustPool(t, 3)

	b, _ := p.AcquireEmpty(context.Background())
	if err := p.PublishFull(b); err != nil {
		t.Fatal(err)
	}
	if err := p.PublishFull(b); !errors.Is(err, ErrNotOwned) {
		t.Errorf("expected ErrNotOwned on second publish, got %v", err)
	}
	if c := p.Census(); c.FullLen != 1 {
		t.Errorf("expected one queued full buffer, got %d", c.FullLen)
	}
}

func TestFIFOOrder(t *testing.T) {
	const capacity = 4
	p := mustPool(t, capacity)
	ctx := context.Background()

	var published []*PixelBuffer
	var visible *PixelBuffer

	// Several rotations so buffers come back around in a new order.
	for round := 0; round < 5; round++ {
		published = published[:0]
		for len(published) < capacity-1 {
			b, err := p.AcquireEmpty(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if err := p.PublishFull(b); err != nil {
				t.Fatal(err)
			}
			published = append(published, b)
		}

		for i, want := range published {
			got, err := p.AcquireFull(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if got != want {
				t.Fatalf("round %d: frame %d out of order: got buffer %d, want %d", round, i, got.ID, want.ID)
			}
			if visible != nil {
				if err := p.ReleaseEmpty(visible); err != nil {
					t.Fatal(err)
				}
			}
			visible = got
		}
	}
}

func TestBoundedBufferSet(t *testing.T) {
	p := mustPool(t, 3)
	ctx := context.Background()

	seen := make(map[*PixelBuffer]bool)
	for _, b := range p.Buffers() {
		seen[b] = true
	}

	var visible *PixelBuffer
	for i := 0; i < 50; i++ {
		b, err := p.AcquireEmpty(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !seen[b] {
			t.Fatalf("iteration %d: producer received a buffer outside the pool", i)
		}
		if err := p.PublishFull(b); err != nil {
			t.Fatal(err)
		}
		got, err := p.AcquireFull(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if visible != nil {
			if err := p.ReleaseEmpty(visible); err != nil {
				t.Fatal(err)
			}
		}
		visible = got

		if c := p.Census(); c.Total() != 3 {
			t.Fatalf("iteration %d: census total %d, want 3", i, c.Total())
		}
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 distinct buffers, got %d", len(seen))
	}
}

func TestAcquireEmptyBlocksUntilRelease(t *testing.T) {
	const capacity = 3
	p := mustPool(t, capacity)
	ctx := context.Background()

	for i := 0; i < capacity; i++ {
		b, err := p.AcquireEmpty(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if err := p.PublishFull(b); err != nil {
			t.Fatal(err)
		}
	}

	acquired := make(chan *PixelBuffer, 1)
	go func() {
		b, err := p.AcquireEmpty(ctx)
		if err == nil {
			acquired <- b
		}
	}()

	select {
	case <-acquired:
		t.Fatal("acquire succeeded with every buffer full")
	case <-time.After(50 * time.Millisecond):
	}

	// First consumption keeps its buffer visible; nothing is released yet.
	first, _ := p.AcquireFull(ctx)
	select {
	case <-acquired:
		t.Fatal("acquire succeeded before any buffer was released")
	case <-time.After(20 * time.Millisecond):
	}

	second, _ := p.AcquireFull(ctx)
	if err := p.ReleaseEmpty(first); err != nil {
		t.Fatal(err)
	}

	select {
	case b := <-acquired:
		if b != first {
			t.Errorf("expected released buffer %d, got %d", first.ID, b.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("acquire still blocked after release")
	}
	_ = second
}

func TestAcquireEmptyInterrupted(t *testing.T) {
	p := mustPool(t, 2)
	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < 2; i++ {
		b, _ := p.AcquireEmpty(ctx)
		_ = p.PublishFull(b)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := p.AcquireEmpty(ctx)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked acquire was not interrupted")
	}
	assertCensus(t, p, Census{FullQueue: 2, FullLen: 2})
}

func TestAcquireFullDrainsAfterCancel(t *testing.T) {
	p := mustPool(t, 3)
	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < 2; i++ {
		b, _ := p.AcquireEmpty(ctx)
		_ = p.PublishFull(b)
	}
	cancel()

	for i := 0; i < 2; i++ {
		if _, err := p.AcquireFull(ctx); err != nil {
			t.Fatalf("drain %d: expected queued buffer, got %v", i, err)
		}
	}
	if _, err := p.AcquireFull(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled once drained, got %v", err)
	}
}

func assertCensus(t *testing.T, p *Pool, want Census) {
	t.Helper()
	if got := p.Census(); got != want {
		t.Errorf("census mismatch:\n got  %+v\n want %+v", got, want)
	}
}
