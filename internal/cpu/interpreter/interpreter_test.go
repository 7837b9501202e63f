package interpreter_test

import (
	"testing"

	"github.com/rcornwell/pce/internal/bus"
	"github.com/rcornwell/pce/internal/cpu"
	"github.com/rcornwell/pce/internal/cpu/interpreter"
)

func newTestCPU(t *testing.T, program []byte) (*cpu.CPU, *interpreter.Interpreter) {
	t.Helper()
	b := bus.New(20, 1024*1024)
	c := cpu.NewCPU(b, 4_772_727, false)
	c.Regs.LoadSegmentReal(cpu.SegCS, 0)
	c.Regs.EIP = 0x100
	for i, by := range program {
		b.WriteByteUnchecked(0x100+uint32(i), by)
	}
	return c, interpreter.New(c)
}

func TestMovAddHlt(t *testing.T) {
	// MOV AX, 0x1234 ; ADD AX, 1 ; HLT
	c, in := newTestCPU(t, []byte{
		0xB8, 0x34, 0x12,
		0x05, 0x01, 0x00,
		0xF4,
	})
	in.Run(1000)
	if got := c.Regs.GPR16(0); got != 0x1235 {
		t.Fatalf("AX = %#x, want 0x1235", got)
	}
	if !c.Halted {
		t.Fatal("expected CPU to be halted after HLT")
	}
}

func TestJccTaken(t *testing.T) {
	// MOV AX,0 ; CMP AX,0 ; JE +3 (skip next MOV) ; MOV AX,0xFFFF ; HLT
	c, in := newTestCPU(t, []byte{
		0xB8, 0x00, 0x00,
		0x3D, 0x00, 0x00,
		0x74, 0x03,
		0xB8, 0xFF, 0xFF,
		0xF4,
	})
	in.Run(1000)
	if got := c.Regs.GPR16(0); got != 0 {
		t.Fatalf("AX = %#x, want 0 (jump should have skipped the second MOV)", got)
	}
}

func TestLoopDecrementsCXAndBranches(t *testing.T) {
	// MOV CX,3 ; loop: INC AX ; LOOP loop ; HLT
	c, in := newTestCPU(t, []byte{
		0xB9, 0x03, 0x00,
		0x40,
		0xE2, 0xFD,
		0xF4,
	})
	in.Run(10000)
	if got := c.Regs.GPR16(0); got != 3 {
		t.Fatalf("AX = %d, want 3 (one INC per loop iteration)", got)
	}
	if got := c.Regs.GPR16(1); got != 0 {
		t.Fatalf("CX = %d, want 0", got)
	}
}

func TestStackPushPopRoundTrip(t *testing.T) {
	// MOV SP,0x1000 ; MOV AX,0xBEEF ; PUSH AX ; MOV AX,0 ; POP AX ; HLT
	c, in := newTestCPU(t, []byte{
		0xBC, 0x00, 0x10,
		0xB8, 0xEF, 0xBE,
		0x50,
		0xB8, 0x00, 0x00,
		0x58,
		0xF4,
	})
	in.Run(10000)
	if got := c.Regs.GPR16(0); got != 0xBEEF {
		t.Fatalf("AX = %#x, want 0xBEEF after push/pop round trip", got)
	}
}

func TestDivideByZeroFaultsThroughIVT(t *testing.T) {
	// DIV BL with BL=0 at CS=0, IP=0x100; vector 0 points at offset
	// 0x200 (segment 0) so a successful fault leaves CS:IP there.
	c, in := newTestCPU(t, []byte{0xF6, 0xF3, 0xF4}) // DIV BL ; HLT
	c.Bus.WriteWordUnchecked(0, 0x200) // vector 0 offset
	c.Bus.WriteWordUnchecked(2, 0)     // vector 0 segment
	in.Run(1)                          // only the faulting DIV should execute
	if c.Regs.EIP != 0x200 {
		t.Fatalf("EIP = %#x, want 0x200 after divide-error vectoring", c.Regs.EIP)
	}
}
