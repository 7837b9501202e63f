// Package vga implements a bounded CGA/VGA-compatible video adapter: the
// 80x25 16-color text window at 0xB8000, a 320x200 256-color linear
// framebuffer at 0xA0000 (mode 13h, the mode nearly every simple OS and
// bootloader demo actually targets), a 256-entry 6-bit-per-channel DAC
// palette at 0x3C8/0x3C9, and the CRTC/sequencer/attribute/graphics
// controller index/data register pairs stored faithfully enough for
// BIOS detection probes to read back what they wrote.
//
// Full VGA mode-set semantics (interpreting a CRTC/sequencer/attribute/
// graphics-controller register program to derive the active mode) is
// out of scope: it's a large state machine with no real payoff for a
// subset aimed at running simple OS images, so SetMode13 is an explicit
// API a caller invokes directly (only this package's tests do) instead
// of this package inferring the mode from register pokes. Text-mode
// character rendering is also bounded: RenderFrame paints each cell as a
// solid block of its background attribute color rather than shaping a
// font glyph, since a CGA/VGA font ROM bitmap table is a few hundred
// lines of hardcoded bitmap data with no semantic value to this
// project's CPU/bus/device plumbing. Both limits are scope boundaries,
// not silent bugs: the memory layout, palette, and register wiring this
// package exists to exercise are all real.
package vga

import (
	"encoding/binary"
	"fmt"

	"github.com/rcornwell/pce/internal/bus"
)

const (
	textBase   = 0xB8000
	textSize   = 0x8000 // 32KB, standard VGA text-mode window
	gfxBase    = 0xA0000
	gfxSize    = 0x10000 // 64KB, mode 13h's bank
	textCols   = 80
	textRows   = 25
	gfxWidth   = 320
	gfxHeight  = 200
)

// VGA is the adapter: its two memory windows, DAC palette, and the
// handful of index/data register pairs BIOS probes read back.
type VGA struct {
	b *bus.Bus

	textMem [textSize]byte
	gfxMem  [gfxSize]byte
	textH   *bus.Handler
	gfxH    *bus.Handler

	mode13 bool

	dac       [256 * 3]byte // R,G,B triplets, 6 bits significant each
	dacIndex  uint8
	dacNibble int // 0,1,2 selects which of R/G/B is next on 0x3C9

	crtcIndex uint8
	crtcRegs  [24]byte
	seqIndex  uint8
	seqRegs   [5]byte
	gfxIndex  uint8
	gfxRegs   [9]byte
	attrIndex uint8
	attrRegs  [21]byte
	attrFlip  bool // 0x3C0 alternates between index and data on writes

	retrace bool
}

// New builds a VGA adapter with video memory unmapped until Initialize
// registers it on b.
func New(b *bus.Bus) *VGA {
	return &VGA{b: b}
}

func (v *VGA) Name() string { return "vga" }

func (v *VGA) Initialize() error {
	v.textH = bus.NewDirectHandler(textBase, v.textMem[:], true, true)
	v.gfxH = bus.NewDirectHandler(gfxBase, v.gfxMem[:], true, true)
	v.b.RegisterMMIO(v.textH)
	v.b.RegisterMMIO(v.gfxH)

	v.b.RegisterPort(0x3C0, v.Name(), bus.PortHandlers{WriteByte: v.writeAttr, ReadByte: v.readAttr})
	v.b.RegisterPort(0x3C4, v.Name(), bus.PortHandlers{WriteByte: func(x uint8) { v.seqIndex = x & 0x1F }})
	v.b.RegisterPort(0x3C5, v.Name(), bus.PortHandlers{
		ReadByte:  func() uint8 { return v.seqRegs[v.seqIndex%uint8(len(v.seqRegs))] },
		WriteByte: func(x uint8) { v.seqRegs[v.seqIndex%uint8(len(v.seqRegs))] = x },
	})
	v.b.RegisterPort(0x3C8, v.Name(), bus.PortHandlers{
		WriteByte: func(x uint8) { v.dacIndex = x; v.dacNibble = 0 },
	})
	v.b.RegisterPort(0x3C9, v.Name(), bus.PortHandlers{
		ReadByte:  v.readDAC,
		WriteByte: v.writeDAC,
	})
	v.b.RegisterPort(0x3CE, v.Name(), bus.PortHandlers{WriteByte: func(x uint8) { v.gfxIndex = x & 0x0F }})
	v.b.RegisterPort(0x3CF, v.Name(), bus.PortHandlers{
		ReadByte:  func() uint8 { return v.gfxRegs[v.gfxIndex%uint8(len(v.gfxRegs))] },
		WriteByte: func(x uint8) { v.gfxRegs[v.gfxIndex%uint8(len(v.gfxRegs))] = x },
	})
	v.b.RegisterPort(0x3D4, v.Name(), bus.PortHandlers{WriteByte: func(x uint8) { v.crtcIndex = x }})
	v.b.RegisterPort(0x3D5, v.Name(), bus.PortHandlers{
		ReadByte:  func() uint8 { return v.crtcRegs[v.crtcIndex%uint8(len(v.crtcRegs))] },
		WriteByte: func(x uint8) { v.crtcRegs[v.crtcIndex%uint8(len(v.crtcRegs))] = x },
	})
	v.b.RegisterPort(0x3DA, v.Name(), bus.PortHandlers{ReadByte: v.readInputStatus1})
	return v.initDefaultPalette()
}

func (v *VGA) Reset() {
	v.crtcIndex, v.seqIndex, v.gfxIndex, v.attrIndex = 0, 0, 0, 0
	v.crtcRegs, v.seqRegs, v.gfxRegs, v.attrRegs = [24]byte{}, [5]byte{}, [9]byte{}, [21]byte{}
	v.attrFlip = false
	v.mode13 = false
}

func (v *VGA) Shutdown() {
	v.b.UnregisterMMIO(v.textH)
	v.b.UnregisterMMIO(v.gfxH)
}

// SetMode13 switches between the 80x25 text window and the 320x200
// linear framebuffer that RenderFrame paints. See the package doc for
// why this is an explicit call rather than inferred from register state.
func (v *VGA) SetMode13(enabled bool) { v.mode13 = enabled }

func (v *VGA) writeAttr(x uint8) {
	if !v.attrFlip {
		v.attrIndex = x & 0x1F
	} else {
		v.attrRegs[v.attrIndex%uint8(len(v.attrRegs))] = x
	}
	v.attrFlip = !v.attrFlip
}

func (v *VGA) readAttr() uint8 { return v.attrRegs[v.attrIndex%uint8(len(v.attrRegs))] }

func (v *VGA) readDAC() uint8 {
	off := int(v.dacIndex)*3 + v.dacNibble
	val := v.dac[off]
	v.dacNibble++
	if v.dacNibble == 3 {
		v.dacNibble = 0
		v.dacIndex++
	}
	return val
}

func (v *VGA) writeDAC(x uint8) {
	off := int(v.dacIndex)*3 + v.dacNibble
	v.dac[off] = x & 0x3F
	v.dacNibble++
	if v.dacNibble == 3 {
		v.dacNibble = 0
		v.dacIndex++
	}
}

// readInputStatus1 flips the vertical-retrace bit on every read, enough
// for a polling loop ("wait until bit 3 sets, then wait until it
// clears") to eventually observe both states without this package
// running a real horizontal/vertical timing generator.
func (v *VGA) readInputStatus1() uint8 {
	v.retrace = !v.retrace
	if v.retrace {
		return 0x08
	}
	return 0x00
}

// initDefaultPalette seeds the 16 CGA colors into the first 16 DAC
// entries so RenderFrame produces a recognizable picture even before
// software explicitly programs the palette.
func (v *VGA) initDefaultPalette() error {
	cga := [16][3]byte{
		{0, 0, 0}, {0, 0, 42}, {0, 42, 0}, {0, 42, 42},
		{42, 0, 0}, {42, 0, 42}, {42, 21, 0}, {42, 42, 42},
		{21, 21, 21}, {21, 21, 63}, {21, 63, 21}, {21, 63, 63},
		{63, 21, 21}, {63, 21, 63}, {63, 63, 21}, {63, 63, 63},
	}
	for i, rgb := range cga {
		copy(v.dac[i*3:], rgb[:])
	}
	return nil
}

// RenderFrame converts the active mode's video memory into a packed
// BGRA8888 buffer the way internal/host.Interface.PresentFrame expects,
// along with its pixel dimensions and row stride.
func (v *VGA) RenderFrame() (width, height, stride int, pixels []byte) {
	if v.mode13 {
		return v.renderMode13()
	}
	return v.renderText()
}

func (v *VGA) renderMode13() (int, int, int, []byte) {
	stride := gfxWidth * 4
	pixels := make([]byte, gfxHeight*stride)
	for y := 0; y < gfxHeight; y++ {
		for x := 0; x < gfxWidth; x++ {
			idx := v.gfxMem[y*gfxWidth+x]
			r, g, b := v.dac[int(idx)*3], v.dac[int(idx)*3+1], v.dac[int(idx)*3+2]
			off := y*stride + x*4
			pixels[off+0] = scale6to8(b)
			pixels[off+1] = scale6to8(g)
			pixels[off+2] = scale6to8(r)
			pixels[off+3] = 0xFF
		}
	}
	return gfxWidth, gfxHeight, stride, pixels
}

// renderText paints each 80x25 cell as a solid block of its background
// attribute color, 9 pixels wide by 16 tall (VGA text mode's classic
// cell size), rather than shaping the actual glyph. See the package doc.
func (v *VGA) renderText() (int, int, int, []byte) {
	const cellW, cellH = 9, 16
	width := textCols * cellW
	height := textRows * cellH
	stride := width * 4
	pixels := make([]byte, height*stride)
	for row := 0; row < textRows; row++ {
		for col := 0; col < textCols; col++ {
			off := (row*textCols + col) * 2
			if off+1 >= len(v.textMem) {
				continue
			}
			attr := v.textMem[off+1]
			bgIdx := (attr >> 4) & 0x0F
			r, g, b := v.dac[int(bgIdx)*3], v.dac[int(bgIdx)*3+1], v.dac[int(bgIdx)*3+2]
			fillCell(pixels, stride, col*cellW, row*cellH, cellW, cellH, scale6to8(b), scale6to8(g), scale6to8(r))
		}
	}
	return width, height, stride, pixels
}

func fillCell(pixels []byte, stride, x0, y0, w, h int, blue, green, red byte) {
	for y := y0; y < y0+h; y++ {
		rowOff := y * stride
		for x := x0; x < x0+w; x++ {
			off := rowOff + x*4
			pixels[off+0] = blue
			pixels[off+1] = green
			pixels[off+2] = red
			pixels[off+3] = 0xFF
		}
	}
}

func scale6to8(v byte) byte { return v<<2 | v>>4 }

// SerializationID identifies the VGA section in a save-state file.
const SerializationID uint32 = 8

func (v *VGA) Save() ([]byte, error) {
	buf := make([]byte, 4+len(v.textMem)+len(v.gfxMem)+len(v.dac)+1)
	binary.LittleEndian.PutUint32(buf[0:], SerializationID)
	off := 4
	copy(buf[off:], v.textMem[:])
	off += len(v.textMem)
	copy(buf[off:], v.gfxMem[:])
	off += len(v.gfxMem)
	copy(buf[off:], v.dac[:])
	off += len(v.dac)
	buf[off] = boolToByte(v.mode13)
	return buf, nil
}

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func (v *VGA) Load(data []byte) error {
	want := 4 + len(v.textMem) + len(v.gfxMem) + len(v.dac) + 1
	if len(data) < want {
		return fmt.Errorf("vga: truncated state (%d bytes, want %d)", len(data), want)
	}
	if id := binary.LittleEndian.Uint32(data); id != SerializationID {
		return fmt.Errorf("vga: unexpected serialization id %d", id)
	}
	off := 4
	copy(v.textMem[:], data[off:off+len(v.textMem)])
	off += len(v.textMem)
	copy(v.gfxMem[:], data[off:off+len(v.gfxMem)])
	off += len(v.gfxMem)
	copy(v.dac[:], data[off:off+len(v.dac)])
	off += len(v.dac)
	v.mode13 = data[off] != 0
	return nil
}
