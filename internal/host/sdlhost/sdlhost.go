//go:build sdl

// Package sdlhost is the optional graphical host backend, built only
// with the "sdl" build tag (cgo + libsdl2 must be available). It is kept
// out of the default build the way the teacher keeps its own optional
// heavier backends behind build tags, grounded on the SDL display/audio
// loop shape used in the pack's other retrieved emulators.
package sdlhost

import (
	"fmt"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/rcornwell/pce/internal/host"
)

// SDL presents emulated video frames in a real window and turns SDL
// keyboard events into host.KeyEvent values.
type SDL struct {
	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	events   []host.KeyEvent
}

// New opens a window of the given size and returns a ready SDL backend.
func New(title string, width, height int32) (*SDL, error) {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, fmt.Errorf("sdlhost: sdl.Init: %w", err)
	}
	win, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		width, height, sdl.WINDOW_SHOWN)
	if err != nil {
		return nil, fmt.Errorf("sdlhost: CreateWindow: %w", err)
	}
	ren, err := sdl.CreateRenderer(win, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		return nil, fmt.Errorf("sdlhost: CreateRenderer: %w", err)
	}
	tex, err := ren.CreateTexture(sdl.PIXELFORMAT_BGRA8888, sdl.TEXTUREACCESS_STREAMING, width, height)
	if err != nil {
		return nil, fmt.Errorf("sdlhost: CreateTexture: %w", err)
	}
	return &SDL{window: win, renderer: ren, texture: tex}, nil
}

// PollInput drains pending SDL events into host.KeyEvent values,
// discarding anything that isn't a keyboard transition.
func (s *SDL) PollInput() []host.KeyEvent {
	for {
		e := sdl.PollEvent()
		if e == nil {
			break
		}
		if ke, ok := e.(*sdl.KeyboardEvent); ok {
			s.events = append(s.events, host.KeyEvent{
				ScanCode: uint8(ke.Keysym.Scancode),
				Pressed:  ke.State == sdl.PRESSED,
			})
		}
	}
	out := s.events
	s.events = nil
	return out
}

// PresentFrame uploads a packed BGRA8888 frame into the streaming
// texture and blits it to the window.
func (s *SDL) PresentFrame(width, height, stride int, pixels []byte) {
	_ = s.texture.Update(nil, pixels, stride)
	_ = s.renderer.Clear()
	_ = s.renderer.Copy(s.texture, nil, nil)
	s.renderer.Present()
}

// Close tears down the texture, renderer, and window, and shuts SDL down.
func (s *SDL) Close() error {
	s.texture.Destroy()
	s.renderer.Destroy()
	s.window.Destroy()
	sdl.Quit()
	return nil
}
