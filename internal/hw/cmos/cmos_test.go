package cmos

import (
	"testing"

	"github.com/rcornwell/pce/internal/bus"
	"github.com/rcornwell/pce/internal/event"
)

func newTestCMOS(t *testing.T, baseUnix int64) (*bus.Bus, *CMOS) {
	t.Helper()
	b := bus.New(20, 1<<16)
	sched := event.NewScheduler()
	c := New(b, sched, baseUnix)
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return b, c
}

func TestReadSecondsBCD(t *testing.T) {
	// 2000-01-01T00:00:45Z
	b, _ := newTestCMOS(t, 946684845)
	b.WritePortByte(0x70, regSeconds)
	got := b.ReadPortByte(0x71)
	if got != 0x45 {
		t.Fatalf("seconds = %#x, want BCD 0x45", got)
	}
}

func TestReadSecondsBinaryMode(t *testing.T) {
	b, c := newTestCMOS(t, 946684845)
	b.WritePortByte(0x70, regStatusB)
	b.WritePortByte(0x71, 0x04) // DM=1 (binary), SET=0

	b.WritePortByte(0x70, regSeconds)
	got := b.ReadPortByte(0x71)
	if got != 45 {
		t.Fatalf("seconds = %d, want 45 in binary mode", got)
	}
	if c.setMode() {
		t.Fatalf("expected SET mode to be clear")
	}
}

func TestSetModeFreezesClockRegisters(t *testing.T) {
	b, _ := newTestCMOS(t, 946684845)
	b.WritePortByte(0x70, regStatusB)
	b.WritePortByte(0x71, 0x80) // SET=1

	b.WritePortByte(0x70, regSeconds)
	b.WritePortByte(0x71, 0x30) // BCD 30, frozen value

	got := b.ReadPortByte(0x71)
	if got != 0x30 {
		t.Fatalf("frozen seconds = %#x, want 0x30", got)
	}
}

func TestStatusCClearsOnRead(t *testing.T) {
	b, c := newTestCMOS(t, 0)
	c.nvram[regStatusC] = 0xF0
	b.WritePortByte(0x70, regStatusC)
	first := b.ReadPortByte(0x71)
	second := b.ReadPortByte(0x71)
	if first != 0xF0 {
		t.Fatalf("Status C first read = %#x, want 0xF0", first)
	}
	if second != 0 {
		t.Fatalf("Status C second read = %#x, want 0 (clears on read)", second)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	_, c := newTestCMOS(t, 12345)
	c.nvram[0x20] = 0xAB
	c.index = regYear

	data, err := c.Save()
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, c2 := newTestCMOS(t, 0)
	if err := c2.Load(data); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c2.nvram[0x20] != 0xAB || c2.index != regYear || c2.baseUnix != 12345 {
		t.Fatalf("round trip mismatch: %+v", c2)
	}
}
