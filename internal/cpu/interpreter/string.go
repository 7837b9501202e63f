package interpreter

import (
	"github.com/rcornwell/pce/internal/cpu"
	"github.com/rcornwell/pce/internal/cpu/decode"
)

// stringStep returns the signed per-iteration index delta for SI/DI/memory
// pointers, per EFLAGS.DF.
func (in *Interpreter) stringStep(size int) int32 {
	if in.c.Regs.Flag(cpu.FlagDF) {
		return -int32(size)
	}
	return int32(size)
}

func (in *Interpreter) advanceIndex(reg int, delta int32) {
	c := &in.c.Regs
	if c.AddressSize32 {
		c.SetGPR32(reg, uint32(int64(c.GPR32(reg))+int64(delta)))
	} else {
		c.SetGPR16(reg, uint16(int32(c.GPR16(reg))+delta))
	}
}

func (in *Interpreter) indexValue(reg int) uint32 {
	if in.c.Regs.AddressSize32 {
		return in.c.Regs.GPR32(reg)
	}
	return uint32(in.c.Regs.GPR16(reg))
}

// srcSeg returns the segment override in effect for string source
// operands (DS:SI), defaulting to DS.
func (in *Interpreter) srcSeg(ins *decode.Instruction) cpu.Segment {
	if ins.HasSegOverride {
		return ins.Seg
	}
	return cpu.SegDS
}

// repeat runs body while the REP/REPE/REPNE prefix's condition holds
// (or exactly once with no prefix), decrementing (E)CX each iteration.
func (in *Interpreter) repeat(ins *decode.Instruction, checkZF bool, body func()) {
	c := &in.c.Regs
	if ins.Rep == 0 {
		body()
		return
	}
	for {
		count := in.indexValue(regECX)
		if count == 0 {
			break
		}
		in.advanceIndex(regECX, -1)
		body()
		if checkZF {
			wantZF := ins.Rep == 0xF3 // REPE/REPZ continues while ZF=1
			if c.Flag(cpu.FlagZF) != wantZF {
				break
			}
		}
		if in.indexValue(regECX) == 0 {
			break
		}
	}
}

func (in *Interpreter) execMovs(ins *decode.Instruction) {
	delta := in.stringStep(ins.Size)
	in.repeat(ins, false, func() {
		srcAddr := in.c.Regs.LinearAddress(in.srcSeg(ins), in.indexValue(regESI))
		dstAddr := in.c.Regs.LinearAddress(cpu.SegES, in.indexValue(regEDI))
		in.writeMem(dstAddr, ins.Size, in.readMem(srcAddr, ins.Size))
		in.advanceIndex(regESI, delta)
		in.advanceIndex(regEDI, delta)
	})
}

func (in *Interpreter) execCmps(ins *decode.Instruction) {
	delta := in.stringStep(ins.Size)
	in.repeat(ins, true, func() {
		srcAddr := in.c.Regs.LinearAddress(in.srcSeg(ins), in.indexValue(regESI))
		dstAddr := in.c.Regs.LinearAddress(cpu.SegES, in.indexValue(regEDI))
		a := in.readMem(srcAddr, ins.Size)
		b := in.readMem(dstAddr, ins.Size)
		in.c.Regs.UpdateArithFlags(a, b, a-b, ins.Size, true)
		in.advanceIndex(regESI, delta)
		in.advanceIndex(regEDI, delta)
	})
}

func (in *Interpreter) execStos(ins *decode.Instruction) {
	delta := in.stringStep(ins.Size)
	in.repeat(ins, false, func() {
		dstAddr := in.c.Regs.LinearAddress(cpu.SegES, in.indexValue(regEDI))
		in.writeMem(dstAddr, ins.Size, in.loadAccForSize(ins.Size))
		in.advanceIndex(regEDI, delta)
	})
}

func (in *Interpreter) execLods(ins *decode.Instruction) {
	delta := in.stringStep(ins.Size)
	in.repeat(ins, false, func() {
		srcAddr := in.c.Regs.LinearAddress(in.srcSeg(ins), in.indexValue(regESI))
		in.storeAccForSize(ins.Size, in.readMem(srcAddr, ins.Size))
		in.advanceIndex(regESI, delta)
	})
}

func (in *Interpreter) execScas(ins *decode.Instruction) {
	delta := in.stringStep(ins.Size)
	in.repeat(ins, true, func() {
		dstAddr := in.c.Regs.LinearAddress(cpu.SegES, in.indexValue(regEDI))
		a := in.loadAccForSize(ins.Size)
		b := in.readMem(dstAddr, ins.Size)
		in.c.Regs.UpdateArithFlags(a, b, a-b, ins.Size, true)
		in.advanceIndex(regEDI, delta)
	})
}

func (in *Interpreter) loadAccForSize(size int) uint64 {
	c := &in.c.Regs
	switch size {
	case 1:
		return uint64(c.GPR8(0))
	case 2:
		return uint64(c.GPR16(regEAX))
	default:
		return uint64(c.GPR32(regEAX))
	}
}

func (in *Interpreter) storeAccForSize(size int, v uint64) {
	c := &in.c.Regs
	switch size {
	case 1:
		c.SetGPR8(0, uint8(v))
	case 2:
		c.SetGPR16(regEAX, uint16(v))
	default:
		c.SetGPR32(regEAX, uint32(v))
	}
}

// execBCD implements the four 8086 decimal-adjust opcodes.
func (in *Interpreter) execBCD(ins *decode.Instruction) {
	c := &in.c.Regs
	al := c.GPR8(0)

	switch ins.Kind {
	case decode.KindDaa:
		af, cf := c.Flag(cpu.FlagAF), c.Flag(cpu.FlagCF)
		oldAL := al
		if al&0xF > 9 || af {
			al += 6
			c.SetFlag(cpu.FlagAF, true)
		}
		if oldAL > 0x99 || cf {
			al += 0x60
			c.SetFlag(cpu.FlagCF, true)
		}
		c.SetGPR8(0, al)
		c.UpdateLogicFlags(uint64(al), 1)
	case decode.KindDas:
		af, cf := c.Flag(cpu.FlagAF), c.Flag(cpu.FlagCF)
		oldAL := al
		if al&0xF > 9 || af {
			al -= 6
			c.SetFlag(cpu.FlagAF, true)
		}
		if oldAL > 0x99 || cf {
			al -= 0x60
			c.SetFlag(cpu.FlagCF, true)
		}
		c.SetGPR8(0, al)
		c.UpdateLogicFlags(uint64(al), 1)
	case decode.KindAaa:
		ah := c.GPR8(4)
		if al&0xF > 9 || c.Flag(cpu.FlagAF) {
			al += 6
			ah++
			c.SetFlag(cpu.FlagAF, true)
			c.SetFlag(cpu.FlagCF, true)
		} else {
			c.SetFlag(cpu.FlagAF, false)
			c.SetFlag(cpu.FlagCF, false)
		}
		c.SetGPR8(0, al&0xF)
		c.SetGPR8(4, ah)
	case decode.KindAas:
		ah := c.GPR8(4)
		if al&0xF > 9 || c.Flag(cpu.FlagAF) {
			al -= 6
			ah--
			c.SetFlag(cpu.FlagAF, true)
			c.SetFlag(cpu.FlagCF, true)
		} else {
			c.SetFlag(cpu.FlagAF, false)
			c.SetFlag(cpu.FlagCF, false)
		}
		c.SetGPR8(0, al&0xF)
		c.SetGPR8(4, ah)
	}
}
