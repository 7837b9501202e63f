package recompiler_test

import (
	"testing"

	"github.com/rcornwell/pce/internal/bus"
	"github.com/rcornwell/pce/internal/cpu"
	"github.com/rcornwell/pce/internal/cpu/interpreter"
	"github.com/rcornwell/pce/internal/cpu/recompiler"
)

func loadProgram(b *bus.Bus, program []byte) {
	for i, by := range program {
		b.WriteByteUnchecked(0x100+uint32(i), by)
	}
}

func newCPU() *cpu.CPU {
	b := bus.New(20, 1024*1024)
	c := cpu.NewCPU(b, 4_772_727, false)
	c.Regs.LoadSegmentReal(cpu.SegCS, 0)
	c.Regs.EIP = 0x100
	return c
}

// fastPathProgram exercises instructions the recompiler's fast path
// (register ALU, INC/DEC, CLC/STC) covers: apart from the leading MOV and
// the trailing HLT, which compile to generic steps, every step in the
// compiled block is a batched fastStep.
var fastPathProgram = []byte{
	0xB8, 0x05, 0x00, // MOV AX,5 (not fast: establishes a known start value)
	0x40,             // INC AX  -> 6
	0x05, 0x0A, 0x00, // ADD AX,10 -> 16
	0x48,       // DEC AX -> 15
	0xF9,       // STC
	0xF8,       // CLC
	0xF4,       // HLT
}

func TestFastPathMatchesInterpreter(t *testing.T) {
	refCPU := newCPU()
	loadProgram(refCPU.Bus, fastPathProgram)
	interpreter.New(refCPU).Run(10000)

	recCPU := newCPU()
	loadProgram(recCPU.Bus, fastPathProgram)
	recompiler.New(recCPU).Run(10000)

	if refCPU.Regs.GPR16(0) != recCPU.Regs.GPR16(0) {
		t.Fatalf("AX mismatch: interpreter=%#x recompiler=%#x",
			refCPU.Regs.GPR16(0), recCPU.Regs.GPR16(0))
	}
	if recCPU.Regs.GPR16(0) != 15 {
		t.Fatalf("AX = %d, want 15 after INC/ADD/DEC", recCPU.Regs.GPR16(0))
	}
	if refCPU.Regs.Flag(cpu.FlagCF) != recCPU.Regs.Flag(cpu.FlagCF) {
		t.Fatal("CF mismatch between interpreter and recompiler")
	}
	if recCPU.Regs.Flag(cpu.FlagCF) {
		t.Fatal("CF should be clear: CLC ran after STC")
	}
	if !refCPU.Halted || !recCPU.Halted {
		t.Fatal("both backends should have halted on HLT")
	}
}

// TestFastStepCommitsBeforeFaultingStep runs a fast INC immediately
// followed by a faulting DIV in the same compiled block, and checks the
// INC's register effect survives: runOneBlock's pendingEIP/pendingCycles
// batch is committed before the generic (possibly faulting) step runs, so
// only the DIV's own attempted effect is rolled back, not the INC's.
func TestFastStepCommitsBeforeFaultingStep(t *testing.T) {
	c := newCPU()
	loadProgram(c.Bus, []byte{
		0x40,       // INC AX (fast path): AX 0 -> 1
		0xF6, 0xF3, // DIV BL, BL = 0 -> #DE
		0xF4, // HLT, never reached this block
	})
	c.Bus.WriteWordUnchecked(0, 0x200) // vector 0 (#DE) offset
	c.Bus.WriteWordUnchecked(2, 0)     // vector 0 segment

	// Four cycles: the INC's batched 3 plus the faulting DIV's 1, so the
	// run stops right after #DE vectors instead of executing the handler.
	recompiler.New(c).Run(4)

	if got := c.Regs.GPR16(0); got != 1 {
		t.Fatalf("AX = %d, want 1 (INC's effect should survive the later fault)", got)
	}
	if c.Regs.EIP != 0x200 {
		t.Fatalf("EIP = %#x, want 0x200 after the #DE vectors", c.Regs.EIP)
	}
}
