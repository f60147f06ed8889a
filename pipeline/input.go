package pipeline

import "sync/atomic"

// InputState is the user input sampled on the presentation side.
type InputState struct {
	MouseX, MouseY float32
	MouseInside    bool
}

// Viewport is the size of the area the fill step draws into.
type Viewport struct {
	Width, Height int
}

// InputSource provides the latest input to the producer.
type InputSource interface {
	Input() InputState
}

// InputBox hands input from the presentation goroutine to the producer
// without sharing mutable fields.
type InputBox struct {
	v atomic.Pointer[InputState]
}

// Store publishes a new input sample.
func (b *InputBox) Store(s InputState) {
	b.v.Store(&s)
}

// Input returns the most recent sample, or the zero state.
func (b *InputBox) Input() InputState {
	if s := b.v.Load(); s != nil {
		return *s
	}
	return InputState{}
}

// ScaleInput maps a pointer position on a window of size screen onto a
// buffer of size view stretched to fill it.
func ScaleInput(x, y float32, screen, view Viewport, onScreen bool) InputState {
	if screen.Width <= 0 || screen.Height <= 0 {
		return InputState{}
	}
	bx := x * float32(view.Width) / float32(screen.Width)
	by := y * float32(view.Height) / float32(screen.Height)
	inside := onScreen && bx >= 0 && by >= 0 && bx < float32(view.Width) && by < float32(view.Height)
	return InputState{MouseX: bx, MouseY: by, MouseInside: inside}
}
