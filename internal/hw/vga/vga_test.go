package vga

import (
	"testing"

	"github.com/rcornwell/pce/internal/bus"
)

func newTestVGA(t *testing.T) (*bus.Bus, *VGA) {
	t.Helper()
	b := bus.New(20, 1<<16)
	v := New(b)
	if err := v.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return b, v
}

func TestTextMemoryWriteReadback(t *testing.T) {
	b, _ := newTestVGA(t)
	b.WriteByteUnchecked(textBase, 'A')
	b.WriteByteUnchecked(textBase+1, 0x07) // light gray on black
	if got := b.ReadByteUnchecked(textBase); got != 'A' {
		t.Fatalf("char = %#x, want 'A'", got)
	}
	if got := b.ReadByteUnchecked(textBase + 1); got != 0x07 {
		t.Fatalf("attr = %#x, want 0x07", got)
	}
}

func TestGraphicsMemoryWriteReadback(t *testing.T) {
	b, _ := newTestVGA(t)
	b.WriteByteUnchecked(gfxBase+100, 42)
	if got := b.ReadByteUnchecked(gfxBase + 100); got != 42 {
		t.Fatalf("pixel = %d, want 42", got)
	}
}

func TestDACPaletteRoundTrip(t *testing.T) {
	b, _ := newTestVGA(t)
	b.WritePortByte(0x3C8, 5)
	b.WritePortByte(0x3C9, 63)
	b.WritePortByte(0x3C9, 32)
	b.WritePortByte(0x3C9, 0)

	b.WritePortByte(0x3C8, 5)
	r := b.ReadPortByte(0x3C9)
	g := b.ReadPortByte(0x3C9)
	bl := b.ReadPortByte(0x3C9)
	if r != 63 || g != 32 || bl != 0 {
		t.Fatalf("palette[5] = %d,%d,%d, want 63,32,0", r, g, bl)
	}
}

func TestCRTCIndexDataRoundTrip(t *testing.T) {
	b, _ := newTestVGA(t)
	b.WritePortByte(0x3D4, 0x0E) // cursor location high
	b.WritePortByte(0x3D5, 0x12)
	b.WritePortByte(0x3D4, 0x0E)
	if got := b.ReadPortByte(0x3D5); got != 0x12 {
		t.Fatalf("CRTC[0x0E] = %#x, want 0x12", got)
	}
}

func TestInputStatus1RetraceToggles(t *testing.T) {
	b, _ := newTestVGA(t)
	first := b.ReadPortByte(0x3DA)
	second := b.ReadPortByte(0x3DA)
	if first == second {
		t.Fatalf("expected retrace bit to toggle across reads, got %#x then %#x", first, second)
	}
}

func TestRenderFrameDimensions(t *testing.T) {
	_, v := newTestVGA(t)

	w, h, stride, pixels := v.RenderFrame()
	if w != textCols*9 || h != textRows*16 {
		t.Fatalf("text frame = %dx%d, want %dx%d", w, h, textCols*9, textRows*16)
	}
	if stride != w*4 || len(pixels) != h*stride {
		t.Fatalf("text frame buffer size mismatch: stride=%d len=%d", stride, len(pixels))
	}

	v.SetMode13(true)
	w, h, stride, pixels = v.RenderFrame()
	if w != gfxWidth || h != gfxHeight {
		t.Fatalf("mode13 frame = %dx%d, want %dx%d", w, h, gfxWidth, gfxHeight)
	}
	if stride != w*4 || len(pixels) != h*stride {
		t.Fatalf("mode13 frame buffer size mismatch: stride=%d len=%d", stride, len(pixels))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	_, v := newTestVGA(t)
	v.textMem[0] = 'X'
	v.dac[0] = 17
	v.SetMode13(true)

	data, err := v.Save()
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, v2 := newTestVGA(t)
	if err := v2.Load(data); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v2.textMem[0] != 'X' || v2.dac[0] != 17 || !v2.mode13 {
		t.Fatalf("Load did not restore state: %v %v %v", v2.textMem[0], v2.dac[0], v2.mode13)
	}
}
