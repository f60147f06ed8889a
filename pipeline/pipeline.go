package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/pixelrush/framebuf"
)

// Pipeline supervises the producer goroutine and drives the consumer.
type Pipeline struct {
	Pool     *framebuf.Pool
	Producer *Producer
	Consumer *Consumer

	onExit   func()
	exitOnce sync.Once

	group    *errgroup.Group
	groupCtx context.Context
	cancel   context.CancelFunc

	// drained is cancelled when the producer goroutine returns. The
	// consumer waits on it so that it drains instead of blocking forever.
	drained context.Context
	done    bool
}

// New wires a pipeline. onExit runs exactly once, on the consumer's
// goroutine, after the producer stopped and every published frame was
// shown.
func New(pool *framebuf.Pool, producer *Producer, consumer *Consumer, onExit func()) *Pipeline {
	return &Pipeline{
		Pool:     pool,
		Producer: producer,
		Consumer: consumer,
		onExit:   onExit,
	}
}

// Start launches the producer. Cancelling ctx stops it.
func (p *Pipeline) Start(ctx context.Context) {
	root, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.group, p.groupCtx = errgroup.WithContext(root)

	drained, markDrained := context.WithCancel(context.Background())
	p.drained = drained

	p.group.Go(func() error {
		defer markDrained()
		return p.Producer.Run(p.groupCtx)
	})
}

// Go runs fn alongside the producer; an error from fn stops the pipeline.
// Must be called after Start.
func (p *Pipeline) Go(fn func(ctx context.Context) error) {
	p.group.Go(func() error {
		return fn(p.groupCtx)
	})
}

// Tick runs one consumer step. It reports done once the producer has
// stopped and every frame has been presented; the exit hook runs on that
// call. A consumer error stops the producer and is returned.
func (p *Pipeline) Tick() (bool, error) {
	if p.done {
		return true, nil
	}

	done, err := p.Consumer.Tick(p.drained)
	if err != nil {
		p.cancel()
		p.finish()
		return true, err
	}
	if done {
		p.finish()
	}
	return done, nil
}

func (p *Pipeline) finish() {
	p.done = true
	p.exitOnce.Do(func() {
		if p.onExit != nil {
			p.onExit()
		}
	})
}

// Done reports whether the consumer has observed the end of the stream.
func (p *Pipeline) Done() bool {
	return p.done
}

// Stop asks the producer to stop. Frames already published are still
// presented by later ticks.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

// Wait blocks until the producer and any Go functions have returned and
// reports the first error.
func (p *Pipeline) Wait() error {
	return p.group.Wait()
}

// Close stops the pipeline and waits for it.
func (p *Pipeline) Close() error {
	p.Stop()
	return p.Wait()
}

// RunTicker drives the consumer from the calling goroutine at the given
// interval until the stream ends or ctx is done. interval <= 0 ticks as fast
// as frames arrive.
func (p *Pipeline) RunTicker(ctx context.Context, interval time.Duration) error {
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		done, err := p.Tick()
		if err != nil || done {
			return err
		}

		if tick == nil {
			if ctx.Err() != nil {
				p.Stop()
			}
			continue
		}
		select {
		case <-tick:
		case <-ctx.Done():
			// Keep ticking so published frames drain and the hook runs.
			p.Stop()
			tick = nil
		}
	}
}
