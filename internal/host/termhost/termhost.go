// Package termhost is a no-video host backend for running the emulated
// machine against a raw terminal: keystrokes typed at the controlling
// terminal are turned into PC/XT scan codes, and PresentFrame is
// discarded. It puts the terminal into raw mode for the duration so
// individual keys arrive without line buffering or local echo, the same
// technique the pack's other console-fronted emulators use for their
// interactive monitors.
package termhost

import (
	"os"

	"golang.org/x/term"

	"github.com/rcornwell/pce/internal/host"
)

// Term reads raw keystrokes from stdin and maps the handful it
// recognizes to PC/XT make/break scan codes.
type Term struct {
	fd       int
	oldState *term.State
}

// New puts fd (normally int(os.Stdin.Fd())) into raw mode.
func New(fd int) (*Term, error) {
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return &Term{fd: fd, oldState: old}, nil
}

// PollInput reads whatever bytes are currently buffered on stdin without
// blocking the caller for more than one read syscall, translating ASCII
// to an approximate PC/XT scan code (lower-case letters, Enter, space and
// Esc only; this is a development convenience, not a full keyboard layout).
func (t *Term) PollInput() []host.KeyEvent {
	buf := make([]byte, 16)
	n, err := os.Stdin.Read(buf)
	if err != nil || n == 0 {
		return nil
	}
	events := make([]host.KeyEvent, 0, n*2)
	for _, b := range buf[:n] {
		sc, ok := asciiScanCode[b]
		if !ok {
			continue
		}
		events = append(events, host.KeyEvent{ScanCode: sc, Pressed: true})
		events = append(events, host.KeyEvent{ScanCode: sc | 0x80, Pressed: false})
	}
	return events
}

func (t *Term) PresentFrame(width, height, stride int, pixels []byte) {}

// Close restores the terminal's original mode.
func (t *Term) Close() error {
	return term.Restore(t.fd, t.oldState)
}

var asciiScanCode = map[byte]uint8{
	'a': 0x1E, 'b': 0x30, 'c': 0x2E, 'd': 0x20, 'e': 0x12, 'f': 0x21,
	'g': 0x22, 'h': 0x23, 'i': 0x17, 'j': 0x24, 'k': 0x25, 'l': 0x26,
	'm': 0x32, 'n': 0x31, 'o': 0x18, 'p': 0x19, 'q': 0x10, 'r': 0x13,
	's': 0x1F, 't': 0x14, 'u': 0x16, 'v': 0x2F, 'w': 0x11, 'x': 0x2D,
	'y': 0x15, 'z': 0x2C, '\r': 0x1C, ' ': 0x39, 0x1B: 0x01,
}
