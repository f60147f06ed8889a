// Package pipeline runs the producer and consumer loops around a
// framebuf.Pool.
//
// The producer goroutine repeatedly takes an empty buffer, has a Filler
// overwrite it, and publishes it. The consumer is ticked once per display
// refresh from whichever goroutine owns the Surface; each tick shows the
// oldest published buffer and hands the previously shown one back to the
// producer. The two sides share nothing but the pool's queues.
//
// Shutdown flows one way: when the producer stops (benchmark complete,
// fill error, or cancellation) the consumer drains every frame that was
// already published, then reports done and the exit hook runs on the
// consumer's goroutine.
package pipeline
