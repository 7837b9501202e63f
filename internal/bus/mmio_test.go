package bus

import "testing"

func TestS4MMIOSplitDecomposesToBytesLittleEndian(t *testing.T) {
	b := New(24, 4096)
	var calls []uint32
	mem := make([]uint8, 128*1024)
	h := NewHandler(0xA0000, 128*1024, Handlers{
		ReadByte: func(addr uint32) uint8 {
			off := addr - 0xA0000
			calls = append(calls, off)
			return mem[off]
		},
		WriteByte: func(addr uint32, v uint8) {
			mem[addr-0xA0000] = v
		},
	})
	b.RegisterMMIO(h)

	mem[0], mem[1], mem[2], mem[3] = 0x11, 0x22, 0x33, 0x44
	got := b.ReadDwordUnchecked(0xA0000)

	if len(calls) != 4 || calls[0] != 0 || calls[1] != 1 || calls[2] != 2 || calls[3] != 3 {
		t.Fatalf("expected 4 byte reads at offsets 0,1,2,3 got %v", calls)
	}
	want := uint32(0x11) | uint32(0x22)<<8 | uint32(0x33)<<16 | uint32(0x44)<<24
	if got != want {
		t.Fatalf("dword read = %#x, want %#x", got, want)
	}
}

func TestMMIOOverlapFirstRangeWins(t *testing.T) {
	b := New(20, 4096)
	var hitWide, hitNarrow bool
	wide := NewHandler(0x8000, 0x1000, Handlers{
		ReadByte: func(addr uint32) uint8 { hitWide = true; return 0xAA },
	})
	narrow := NewHandler(0x8100, 0x10, Handlers{
		ReadByte: func(addr uint32) uint8 { hitNarrow = true; return 0xBB },
	})
	b.RegisterMMIO(wide)
	b.RegisterMMIO(narrow)

	// narrow starts at a higher address, so it is sorted first (descending
	// by start) and wins for the range it covers.
	v := b.ReadByteUnchecked(0x8105)
	if !hitNarrow || hitWide {
		t.Fatalf("expected the higher-start handler to win overlap, got narrow=%v wide=%v", hitNarrow, hitWide)
	}
	if v != 0xBB {
		t.Fatalf("got %#x, want 0xBB", v)
	}
}

func TestDirectHandlerReadOnly(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	b := New(20, 4096)
	h := NewDirectHandler(0x9000, buf, true, false)
	b.RegisterMMIO(h)

	b.WriteByteUnchecked(0x9000, 0xFF) // should be dropped
	if buf[0] != 1 {
		t.Fatalf("read-only handler accepted a write: buf[0] = %d", buf[0])
	}
	if got := b.ReadByteUnchecked(0x9001); got != 2 {
		t.Fatalf("ReadByteUnchecked(0x9001) = %d, want 2", got)
	}
}

func TestHandlerRefcounting(t *testing.T) {
	h := NewHandler(0, 16, Handlers{ReadByte: func(uint32) uint8 { return 0 }})
	h.Retain()
	if h.Release() {
		t.Fatal("handler should still be referenced after one Release following Retain")
	}
	if !h.Release() {
		t.Fatal("handler should be unreferenced after matching Release")
	}
}
