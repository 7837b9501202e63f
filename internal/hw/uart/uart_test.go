package uart

import (
	"testing"

	"github.com/rcornwell/pce/internal/bus"
)

func newTestUART(t *testing.T) (*bus.Bus, *UART, *[]int) {
	t.Helper()
	b := bus.New(20, 1<<16)
	var fired []int
	u := New(b, 0x3F8, 4, func(line int) { fired = append(fired, line) })
	if err := u.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return b, u, &fired
}

func TestTransmitCallback(t *testing.T) {
	b, u, _ := newTestUART(t)
	var got []byte
	u.Transmit = func(c byte) { got = append(got, c) }

	for _, c := range []byte("hi") {
		b.WritePortByte(0x3F8, c)
	}
	if string(got) != "hi" {
		t.Fatalf("transmitted %q, want %q", got, "hi")
	}
}

func TestReceiveSetsDataReadyAndDrains(t *testing.T) {
	b, u, _ := newTestUART(t)
	u.Push('A')

	lsr := b.ReadPortByte(0x3FD)
	if lsr&lsrDataReady == 0 {
		t.Fatalf("LSR = %#x, want DataReady set", lsr)
	}
	got := b.ReadPortByte(0x3F8)
	if got != 'A' {
		t.Fatalf("RBR = %q, want 'A'", got)
	}
	lsr = b.ReadPortByte(0x3FD)
	if lsr&lsrDataReady != 0 {
		t.Fatalf("LSR = %#x, want DataReady clear after drain", lsr)
	}
}

func TestRxInterruptWhenEnabled(t *testing.T) {
	b, u, fired := newTestUART(t)
	b.WritePortByte(0x3F9, ierRxDataAvailable) // enable RDA interrupt
	u.Push('Z')

	if len(*fired) == 0 {
		t.Fatalf("expected IRQ4 after a received byte with RDA enabled")
	}
	for _, l := range *fired {
		if l != 4 {
			t.Fatalf("unexpected IRQ line %d, want 4", l)
		}
	}
}

func TestDivisorLatchAccess(t *testing.T) {
	b, _, _ := newTestUART(t)
	b.WritePortByte(0x3FB, 0x80) // set DLAB
	b.WritePortByte(0x3F8, 0x01) // divisor lo
	b.WritePortByte(0x3F9, 0x00) // divisor hi
	b.WritePortByte(0x3FB, 0x03) // clear DLAB, 8N1

	lcr := b.ReadPortByte(0x3FB)
	if lcr != 0x03 {
		t.Fatalf("LCR = %#x, want 0x03", lcr)
	}
}
