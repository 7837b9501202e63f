package interpreter_test

import (
	"testing"

	"github.com/rcornwell/pce/internal/cpu"
)

// TestDoubleFaultEscalatesToHalt exercises raise's fault-during-vectoring
// escalation: if the stack pushes that deliver an exception themselves
// fault (here because paging is on and CR3 points at an all-zero, and
// therefore all-not-present, page directory), the original fault is
// promoted to #DF, and a #DF that faults the same way halts the CPU
// rather than looping forever.
func TestDoubleFaultEscalatesToHalt(t *testing.T) {
	c, in := newTestCPU(t, nil)
	c.Regs.CR0 |= cpu.CR0PG
	c.Regs.CR3 = 0x9000 // an unwritten page: every PDE reads as not-present

	in.Raise(cpu.InvalidOpcodeFault())

	if !c.Halted {
		t.Fatal("expected CPU to halt after a fault that can't be vectored twice in a row")
	}
}

// TestFaultVectorsNormallyWithPagingOffStack confirms the escalation path
// above is specific to the unmapped stack, not a regression in ordinary
// fault vectoring: with paging disabled the same Raise call reaches the
// IVT handler and leaves the CPU running.
func TestFaultVectorsNormallyWithPagingOffStack(t *testing.T) {
	c, in := newTestCPU(t, nil)
	c.Bus.WriteWordUnchecked(6*4, 0x300)   // vector 6 (#UD) offset
	c.Bus.WriteWordUnchecked(6*4+2, 0)     // vector 6 segment

	in.Raise(cpu.InvalidOpcodeFault())

	if c.Halted {
		t.Fatal("CPU should not halt when the fault vectors successfully")
	}
	if c.Regs.EIP != 0x300 {
		t.Fatalf("EIP = %#x, want 0x300 after vectoring to the #UD handler", c.Regs.EIP)
	}
}
