// Package host defines the narrow boundary between the emulated machine
// and whatever is presenting it to a user: a video/keyboard/mouse
// surface, or nothing at all for a batch run. System talks to this
// interface only; it never imports a concrete display backend directly.
package host

// KeyEvent is one keyboard transition delivered to the emulated PS/2
// controller.
type KeyEvent struct {
	ScanCode uint8
	Pressed  bool
}

// Interface is what a concrete host backend (Headless, sdlhost.SDL)
// implements. Frames passed to PresentFrame use a packed BGRA8888 layout
// described by width/height/stride. Nothing in internal/system calls
// PresentFrame or PollInput.
type Interface interface {
	// PollInput drains and returns any keyboard/mouse events queued by
	// the host since the last call; it never blocks.
	PollInput() []KeyEvent
	// PresentFrame displays a freshly rendered frame; a headless host may
	// simply discard it.
	PresentFrame(width, height, stride int, pixels []byte)
	// Close releases any resources (window, audio device) the backend
	// holds.
	Close() error
}

// Headless discards every frame and never produces input; it is the
// default backend for unattended/test runs (the internal/system tests
// build with it), where no display is available.
type Headless struct{}

// NewHeadless builds a Headless host backend.
func NewHeadless() *Headless { return &Headless{} }

func (h *Headless) PollInput() []KeyEvent { return nil }

func (h *Headless) PresentFrame(width, height, stride int, pixels []byte) {}

func (h *Headless) Close() error { return nil }
