package ata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rcornwell/pce/internal/bus"
)

func newTestDisk(t *testing.T, sectors int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.img")
	data := make([]byte, sectors*sectorSize)
	for i := range data {
		data[i] = byte(i)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestController(t *testing.T, sectors int) (*bus.Bus, *Controller, *[]int) {
	t.Helper()
	b := bus.New(20, 1<<16)
	var fired []int
	c := New(b, 0x1F0, 14, func(line int) { fired = append(fired, line) })
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := c.AttachImage(newTestDisk(t, sectors)); err != nil {
		t.Fatalf("AttachImage: %v", err)
	}
	return b, c, &fired
}

func TestReadSectorZero(t *testing.T) {
	b, _, fired := newTestController(t, 4)

	b.WritePortByte(0x1F2, 1)    // sector count = 1
	b.WritePortByte(0x1F3, 0)    // LBA low = 0
	b.WritePortByte(0x1F4, 0)
	b.WritePortByte(0x1F5, 0)
	b.WritePortByte(0x1F6, 0xE0) // LBA mode, LBA27-24 = 0
	b.WritePortByte(0x1F7, cmdReadSectors)

	status := b.ReadPortByte(0x1F7)
	if status&statusDRQ == 0 {
		t.Fatalf("status = %#x, want DRQ set after READ SECTORS", status)
	}
	if len(*fired) == 0 {
		t.Fatalf("expected IRQ14 after sector load")
	}
	first := b.ReadPortWord(0x1F0)
	if first != uint16(0)|uint16(1)<<8 {
		t.Fatalf("first word = %#x, want 0x0100", first)
	}
}

func TestWriteSectorRoundTrip(t *testing.T) {
	b, c, _ := newTestController(t, 4)

	b.WritePortByte(0x1F2, 1)
	b.WritePortByte(0x1F3, 2) // LBA = 2
	b.WritePortByte(0x1F4, 0)
	b.WritePortByte(0x1F5, 0)
	b.WritePortByte(0x1F6, 0xE0)
	b.WritePortByte(0x1F7, cmdWriteSectors)

	for i := 0; i < sectorSize/2; i++ {
		b.WritePortWord(0x1F0, 0xBEEF)
	}

	status := b.ReadPortByte(0x1F7)
	if status&statusDRQ != 0 {
		t.Fatalf("status = %#x, want DRQ clear once write completes", status)
	}

	buf := make([]byte, 2)
	if _, err := c.drive.img.ReadAt(buf, 2*sectorSize); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if buf[0] != 0xEF || buf[1] != 0xBE {
		t.Fatalf("disk image at LBA2 = %v, want little-endian 0xBEEF", buf)
	}
}

func TestIdentifyDevice(t *testing.T) {
	b, _, _ := newTestController(t, 100)
	b.WritePortByte(0x1F7, cmdIdentify)

	status := b.ReadPortByte(0x1F7)
	if status&statusDRQ == 0 {
		t.Fatalf("status = %#x, want DRQ set after IDENTIFY", status)
	}
	_ = b.ReadPortWord(0x1F0) // drain at least one word without error
}

func TestNoMediaReadSetsError(t *testing.T) {
	b := bus.New(20, 1<<16)
	c := New(b, 0x1F0, 14, nil)
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	b.WritePortByte(0x1F2, 1)
	b.WritePortByte(0x1F7, cmdReadSectors)
	status := b.ReadPortByte(0x1F7)
	if status&statusErr == 0 {
		t.Fatalf("status = %#x, want Err set with no media attached", status)
	}
}
