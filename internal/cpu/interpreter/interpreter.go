// Package interpreter is the classical fetch-decode-execute backend: one
// instruction decoded and executed at a time, no caching of either step.
// It is also the reference semantics the cached and recompiler backends
// are checked against, since all three call down into the same operand
// read/write and ALU helpers here.
package interpreter

import (
	"github.com/rcornwell/pce/internal/cpu"
	"github.com/rcornwell/pce/internal/cpu/decode"
)

// Interpreter drives a *cpu.CPU one instruction at a time.
type Interpreter struct {
	c *cpu.CPU

	// memFault is set by readMem/writeMem when CPU.Translate rejects an
	// access; execute() itself has no way to see a fault raised several
	// calls down (through read/write into the paging walk), so
	// ExecuteDecoded checks this sticky flag after execute returns
	// instead of threading a *cpu.Fault through every operand helper.
	memFault *cpu.Fault
}

// New builds an Interpreter over the given CPU.
func New(c *cpu.CPU) *Interpreter { return &Interpreter{c: c} }

// CPU returns the underlying register/bus state.
func (in *Interpreter) CPU() *cpu.CPU { return in.c }

// FlushCodeCache is a no-op: the interpreter never caches decoded
// instructions, so there is nothing to invalidate.
func (in *Interpreter) FlushCodeCache(pageBase uint32) {}

// Run executes instructions until the cycle slice is exhausted or the CPU
// halts with no pending interrupt to wake it, returning cycles consumed.
func (in *Interpreter) Run(cycles int64) int64 {
	c := in.c
	c.BeginSlice(cycles)
	for c.Remaining() > 0 {
		if vec, ok := c.PendingInterrupt(); ok {
			in.serviceInterrupt(vec)
			c.AckInterrupt(vec)
		}
		if c.Halted {
			// Nothing to do until an interrupt arrives; burn the rest of
			// the slice so the scheduler still advances.
			c.ChargeCycles(c.Remaining())
			break
		}
		cost := in.step()
		if c.ChargeCycles(cost) {
			break
		}
	}
	return cycles - c.Remaining()
}

// FetchAddr returns the linear (CS-relative) address of the next
// instruction to fetch, the BlockKey the cached/recompiler backends key
// their caches on.
func (in *Interpreter) FetchAddr() uint32 {
	c := in.c
	return c.Regs.LinearAddress(cpu.SegCS, c.Regs.EIP)
}

// DecodeAt decodes one instruction from linear address addr without
// side-effecting register state, for backends that decode ahead of
// execution (cached, recompiler).
func (in *Interpreter) DecodeAt(addr uint32) (*decode.Instruction, error) {
	c := in.c
	window := decode.FetchWindow(c.Bus.ReadByteUnchecked, addr)
	if c.Is386Plus {
		return decode.Decode32(window, c.Regs.Seg[cpu.SegCS].Big)
	}
	return decode.Decode16(window)
}

// ExecuteDecoded runs an already-decoded instruction against the current
// register state (EIP must already equal the instruction's fetch
// address), returning its cycle cost, or a fault if it trapped. On a
// fault, EIP and ESP are restored to their pre-instruction values before
// returning, per spec.md's fault-recovery contract; other register state
// an already-partly-executed instruction touched before the faulting
// access is not rolled back (see DESIGN.md).
func (in *Interpreter) ExecuteDecoded(ins *decode.Instruction) (int64, *cpu.Fault) {
	c := in.c
	c.Regs.AddressSize32 = ins.AddrSize == 4
	savedEIP := c.Regs.EIP
	savedESP := c.Regs.GPR32(regESP)
	nextEIP := c.Regs.EIP + uint32(ins.Len)

	in.memFault = nil
	f := in.execute(ins, nextEIP)
	if f == nil {
		f = in.memFault
	}
	in.memFault = nil

	if f != nil {
		c.Regs.EIP = savedEIP
		c.Regs.SetGPR32(regESP, savedESP)
		return 1, f
	}
	return instructionCost(ins), nil
}

// Raise vectors a fault the way the interpreter's own step loop does,
// exported for backends that decode/execute outside of Run.
func (in *Interpreter) Raise(f *cpu.Fault) { in.raise(f) }

// EndsBlock reports whether ins is a control-flow instruction that a
// basic-block cache should stop decoding after.
func EndsBlock(ins *decode.Instruction) bool {
	switch ins.Kind {
	case decode.KindJmp, decode.KindJmpFar, decode.KindJcc, decode.KindLoop,
		decode.KindCall, decode.KindCallFar, decode.KindRet, decode.KindRetFar,
		decode.KindInt, decode.KindInto, decode.KindIRet, decode.KindHlt:
		return true
	}
	return false
}

func (in *Interpreter) step() int64 {
	addr := in.FetchAddr()
	ins, err := in.DecodeAt(addr)
	if err != nil {
		in.raise(cpu.InvalidOpcodeFault())
		return 1
	}
	cycles, fault := in.ExecuteDecoded(ins)
	if fault != nil {
		in.raise(fault)
	}
	return cycles
}

// raise vectors a fault through the real-mode IVT (a 256-entry table of
// far pointers at linear address 0) or the protected-mode IDT, per
// whether CR0's protection-enable bit is set. Protected-mode IDT
// vectoring through gate descriptors is out of scope for this subset
// (see DESIGN.md); both modes fall back to the real-mode IVT form, which
// is at least a well-defined, testable transfer of control.
//
// raise also implements spec.md's fault-during-vectoring escalation: if
// pushing the exception frame itself faults (a paged-out stack, say),
// the original fault is promoted to #DF; if vectoring the #DF faults
// too, that is a triple fault and halts the CPU rather than looping.
func (in *Interpreter) raise(f *cpu.Fault) { in.doRaise(f, 0) }

func (in *Interpreter) doRaise(f *cpu.Fault, depth int) {
	c := in.c
	if depth >= 2 {
		c.Halted = true
		return
	}
	in.memFault = nil
	in.realModeInterrupt(int(f.Vector))
	if in.memFault != nil {
		in.memFault = nil
		if depth == 0 {
			in.doRaise(cpu.DoubleFault(), depth+1)
		} else {
			in.doRaise(f, depth+1)
		}
	}
}

func (in *Interpreter) realModeInterrupt(vector int) {
	c := in.c
	entry := uint32(vector) * 4
	offset := c.Bus.ReadWordUnchecked(entry)
	segment := c.Bus.ReadWordUnchecked(entry + 2)

	in.pushStack(uint64(c.Regs.EFLAGS), 2)
	in.pushStack(uint64(c.Regs.Seg[cpu.SegCS].Selector), 2)
	in.pushStack(uint64(c.Regs.EIP), 2)

	c.Regs.SetFlag(cpu.FlagIF, false)
	c.Regs.SetFlag(cpu.FlagTF, false)
	c.Regs.LoadSegmentReal(cpu.SegCS, segment)
	c.Regs.EIP = uint32(offset)
}

func (in *Interpreter) serviceInterrupt(v cpu.Vector) {
	in.doRaise(&cpu.Fault{Vector: v}, 0)
}
