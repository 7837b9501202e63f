package interpreter

import (
	"github.com/rcornwell/pce/internal/cpu"
	"github.com/rcornwell/pce/internal/cpu/decode"
)

// effectiveAddress computes the linear address a decoded MemOperand
// refers to, honoring the segment already resolved by the decoder
// (default or overridden) plus base+index*scale+disp.
func (in *Interpreter) effectiveAddress(m decode.MemOperand, addrSize32 bool) uint32 {
	c := in.c
	var offset uint32
	if m.HasBase {
		if addrSize32 {
			offset += c.Regs.GPR32(m.BaseReg)
		} else {
			offset += uint32(c.Regs.GPR16(m.BaseReg))
		}
	}
	if m.HasIndex {
		if addrSize32 {
			offset += c.Regs.GPR32(m.IndexReg) * uint32(m.Scale)
		} else {
			offset += uint32(c.Regs.GPR16(m.IndexReg))
		}
	}
	offset += m.Disp
	if !addrSize32 {
		offset &= 0xFFFF
	}
	return c.Regs.LinearAddress(m.Seg, offset)
}

// readMem and writeMem are the only place a data access turns a linear
// address into a physical one. A translation fault is stashed on the
// Interpreter (see memFault) rather than returned, so every read/write
// call site above this one keeps its current signature; ExecuteDecoded
// picks the fault back up once execute returns.
func (in *Interpreter) readMem(addr uint32, size int) uint64 {
	c := in.c
	phys, fault := c.Translate(addr, false)
	if fault != nil {
		in.raiseMemFault(fault)
		return 0
	}
	switch size {
	case 1:
		return uint64(c.Bus.ReadByteUnchecked(phys))
	case 2:
		return uint64(c.Bus.ReadWordUnchecked(phys))
	default:
		return uint64(c.Bus.ReadDwordUnchecked(phys))
	}
}

func (in *Interpreter) writeMem(addr uint32, size int, v uint64) {
	c := in.c
	phys, fault := c.Translate(addr, true)
	if fault != nil {
		in.raiseMemFault(fault)
		return
	}
	switch size {
	case 1:
		c.Bus.WriteByteUnchecked(phys, uint8(v))
	case 2:
		c.Bus.WriteWordUnchecked(phys, uint16(v))
	default:
		c.Bus.WriteDwordUnchecked(phys, uint32(v))
	}
}

func (in *Interpreter) raiseMemFault(f *cpu.Fault) {
	if in.memFault == nil {
		in.memFault = f
	}
}

// read returns the value of a decoded Operand (register, segment,
// memory, immediate, or signed relative displacement).
func (in *Interpreter) read(op decode.Operand) uint64 {
	c := in.c
	switch op.Kind {
	case decode.OperReg:
		switch op.Size {
		case 1:
			return uint64(c.Regs.GPR8(op.Reg))
		case 2:
			return uint64(c.Regs.GPR16(op.Reg))
		default:
			return uint64(c.Regs.GPR32(op.Reg))
		}
	case decode.OperSeg:
		return uint64(c.Regs.Seg[segFromIndex(op.Reg)].Selector)
	case decode.OperMem:
		return in.readMem(in.effectiveAddress(op.Mem, c.Regs.AddressSize32), op.Size)
	case decode.OperImm, decode.OperRel:
		return op.Imm
	}
	return 0
}

// write stores v into a decoded destination Operand, returning a fault
// if the write was a segment-register load that the GDT/LDT rejected.
// Every other operand kind always returns nil; callers that statically
// know their Dst can never be OperSeg (ALU/shift destinations, which the
// decoder never produces as a segment register) are free to ignore it.
func (in *Interpreter) write(op decode.Operand, v uint64) *cpu.Fault {
	c := in.c
	switch op.Kind {
	case decode.OperReg:
		switch op.Size {
		case 1:
			c.Regs.SetGPR8(op.Reg, uint8(v))
		case 2:
			c.Regs.SetGPR16(op.Reg, uint16(v))
		default:
			c.Regs.SetGPR32(op.Reg, uint32(v))
		}
	case decode.OperSeg:
		return in.loadSegment(segFromIndex(op.Reg), uint16(v))
	case decode.OperMem:
		in.writeMem(in.effectiveAddress(op.Mem, c.Regs.AddressSize32), op.Size, v)
	}
	return nil
}

// loadSegment is the checked segment-register load every MOV Sreg,
// POP Sreg, and far control transfer goes through: real mode synthesizes
// the shadow directly from the selector, protected mode walks the
// GDT/LDT and can fault (see CPU.LoadSegment).
func (in *Interpreter) loadSegment(seg cpu.Segment, selector uint16) *cpu.Fault {
	return in.c.LoadSegment(seg, selector)
}

// segFromIndex maps a ModRM-style 3-bit segment register field (the
// order MOV Sreg and PUSH/POP segment opcodes use: ES,CS,SS,DS,FS,GS) to
// the Segment constants above, which are declared in the same order.
func segFromIndex(i int) cpu.Segment { return cpu.Segment(i) }

func stackSize(c *cpu.CPU) int {
	if c.Regs.Seg[cpu.SegSS].Big {
		return 4
	}
	return 2
}

func (in *Interpreter) pushStack(v uint64, size int) {
	c := in.c
	sp := c.Regs.GPR32(regESP)
	sp -= uint32(size)
	if stackSize(c) == 2 {
		sp &= 0xFFFF
		c.Regs.SetGPR16(regESP, uint16(sp))
	} else {
		c.Regs.SetGPR32(regESP, sp)
	}
	addr := c.Regs.LinearAddress(cpu.SegSS, sp)
	in.writeMem(addr, size, v)
}

func (in *Interpreter) popStack(size int) uint64 {
	c := in.c
	sp := c.Regs.GPR32(regESP)
	addr := c.Regs.LinearAddress(cpu.SegSS, sp)
	v := in.readMem(addr, size)
	sp += uint32(size)
	if stackSize(c) == 2 {
		sp &= 0xFFFF
		c.Regs.SetGPR16(regESP, uint16(sp))
	} else {
		c.Regs.SetGPR32(regESP, sp)
	}
	return v
}

const (
	regEAX = 0
	regECX = 1
	regEDX = 2
	regEBX = 3
	regESP = 4
	regEBP = 5
	regESI = 6
	regEDI = 7
)
