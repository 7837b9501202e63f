package ps2

import (
	"testing"

	"github.com/rcornwell/pce/internal/bus"
)

func newTestController(t *testing.T) (*bus.Bus, *Controller, *[]int, *[]bool) {
	t.Helper()
	b := bus.New(20, 1<<16)
	var fired []int
	var a20States []bool
	c := New(b, func(line int) { fired = append(fired, line) }, func(en bool) { a20States = append(a20States, en) })
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return b, c, &fired, &a20States
}

func TestScanCodeDeliveryAndIRQ1(t *testing.T) {
	b, c, fired, _ := newTestController(t)
	b.WritePortByte(0x64, 0x60) // write command byte
	b.WritePortByte(0x60, cmdByteSystemFlag|cmdByteIRQ1Enable)

	c.PushScanCode(0x1E) // 'a' make code

	status := b.ReadPortByte(0x64)
	if status&statusOutputFull == 0 {
		t.Fatalf("status = %#x, want OutputFull set", status)
	}
	if len(*fired) == 0 || (*fired)[0] != 1 {
		t.Fatalf("fired = %v, want [1]", *fired)
	}
	if got := b.ReadPortByte(0x60); got != 0x1E {
		t.Fatalf("scan code = %#x, want 0x1E", got)
	}
}

func TestOutputPortA20Toggle(t *testing.T) {
	b, _, _, a20States := newTestController(t)
	b.WritePortByte(0x64, 0xD1) // write output port
	b.WritePortByte(0x60, 0x00) // A20 bit clear

	if len(*a20States) == 0 || (*a20States)[len(*a20States)-1] != false {
		t.Fatalf("a20States = %v, want last=false", *a20States)
	}

	b.WritePortByte(0x64, 0xD1)
	b.WritePortByte(0x60, 0x02) // A20 bit set
	if (*a20States)[len(*a20States)-1] != true {
		t.Fatalf("a20States = %v, want last=true", *a20States)
	}
}

func TestSelfTest(t *testing.T) {
	b, _, _, _ := newTestController(t)
	b.WritePortByte(0x64, 0xAA)
	if got := b.ReadPortByte(0x60); got != 0x55 {
		t.Fatalf("self-test result = %#x, want 0x55", got)
	}
}
