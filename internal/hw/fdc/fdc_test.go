package fdc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rcornwell/pce/internal/bus"
)

func newTestImage(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "floppy.img")
	data := make([]byte, cylinders*heads*sectorsPerTrk*bytesPerSector)
	data[0], data[1] = 0x55, 0xAA
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestController(t *testing.T) (*bus.Bus, *Controller, *[]int) {
	t.Helper()
	b := bus.New(20, 1<<16)
	var fired []int
	c := New(b, func(line int) { fired = append(fired, line) })
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := c.AttachImage(newTestImage(t)); err != nil {
		t.Fatalf("AttachImage: %v", err)
	}
	return b, c, &fired
}

func sendReadCommand(b *bus.Bus, cylinder, head, sector uint8) {
	b.WritePortByte(0x3F5, cmdReadData)
	b.WritePortByte(0x3F5, head<<2)
	b.WritePortByte(0x3F5, cylinder)
	b.WritePortByte(0x3F5, head)
	b.WritePortByte(0x3F5, sector)
	b.WritePortByte(0x3F5, 2) // 512 bytes/sector
	b.WritePortByte(0x3F5, 18)
	b.WritePortByte(0x3F5, 0x1B)
	b.WritePortByte(0x3F5, 0xFF)
}

func TestReadFirstSector(t *testing.T) {
	b, _, fired := newTestController(t)
	sendReadCommand(b, 0, 0, 1)

	first := b.ReadPortByte(0x3F5)
	second := b.ReadPortByte(0x3F5)
	if first != 0x55 || second != 0xAA {
		t.Fatalf("data = %#x %#x, want 0x55 0xAA", first, second)
	}
	for i := 2; i < bytesPerSector; i++ {
		b.ReadPortByte(0x3F5)
	}
	if len(*fired) == 0 {
		t.Fatalf("expected IRQ6 after READ DATA completes")
	}
	// Result phase: 7 bytes (ST0-2, C, H, R, N).
	for i := 0; i < 7; i++ {
		b.ReadPortByte(0x3F5)
	}
	msr := b.ReadPortByte(0x3F4)
	if msr&msrRQM == 0 || msr&msrCB != 0 {
		t.Fatalf("MSR = %#x, want RQM set and CB clear once result phase drains", msr)
	}
}

func TestRecalibrateThenSenseInterrupt(t *testing.T) {
	b, _, fired := newTestController(t)
	b.WritePortByte(0x3F5, cmdRecalibrate)
	b.WritePortByte(0x3F5, 0x00)

	if len(*fired) == 0 {
		t.Fatalf("expected IRQ6 after RECALIBRATE")
	}

	b.WritePortByte(0x3F5, cmdSenseInterrupt)
	st0 := b.ReadPortByte(0x3F5)
	cyl := b.ReadPortByte(0x3F5)
	if st0&0x20 == 0 {
		t.Fatalf("ST0 = %#x, want seek-end bit set", st0)
	}
	if cyl != 0 {
		t.Fatalf("cylinder = %d, want 0 after recalibrate", cyl)
	}
}

func TestWriteSectorRoundTrip(t *testing.T) {
	b, c, _ := newTestController(t)
	b.WritePortByte(0x3F5, cmdWriteData)
	b.WritePortByte(0x3F5, 0)
	b.WritePortByte(0x3F5, 0)
	b.WritePortByte(0x3F5, 0)
	b.WritePortByte(0x3F5, 3) // sector 3
	b.WritePortByte(0x3F5, 2)
	b.WritePortByte(0x3F5, 18)
	b.WritePortByte(0x3F5, 0x1B)
	b.WritePortByte(0x3F5, 0xFF)

	for i := 0; i < bytesPerSector; i++ {
		b.WritePortByte(0x3F5, byte(i))
	}
	for i := 0; i < 7; i++ {
		b.ReadPortByte(0x3F5)
	}

	buf := make([]byte, 2)
	off := int64(2) * bytesPerSector // sector 3 -> index 2
	if _, err := c.img.ReadAt(buf, off); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if buf[0] != 0 || buf[1] != 1 {
		t.Fatalf("disk image at sector 3 = %v, want [0 1]", buf)
	}
}
