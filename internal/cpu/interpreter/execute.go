package interpreter

import (
	"github.com/rcornwell/pce/internal/cpu"
	"github.com/rcornwell/pce/internal/cpu/decode"
)

// execute carries out one decoded instruction, advancing EIP to nextEIP
// unless the instruction itself redirects control flow. It returns a
// non-nil *cpu.Fault if execution must be aborted and vectored instead.
func (in *Interpreter) execute(ins *decode.Instruction, nextEIP uint32) *cpu.Fault {
	c := &in.c.Regs
	c.EIP = nextEIP

	switch ins.Kind {
	case decode.KindALU:
		in.execALU(ins)
	case decode.KindTest:
		a := in.read(ins.Dst)
		b := in.read(ins.Src)
		c.UpdateLogicFlags(a&b, ins.Size)
	case decode.KindMov, decode.KindMovSeg:
		if f := in.write(ins.Dst, in.read(ins.Src)); f != nil {
			return f
		}
	case decode.KindLea:
		addr := in.effectiveAddress(ins.Src.Mem, in.c.Regs.AddressSize32)
		in.write(ins.Dst, uint64(addr))
	case decode.KindXchg:
		a, b := in.read(ins.Dst), in.read(ins.Src)
		in.write(ins.Dst, b)
		in.write(ins.Src, a)
	case decode.KindPush:
		size := ins.Size
		if size == 0 {
			size = 2
		}
		in.pushStack(in.read(ins.Src), size)
	case decode.KindPop:
		size := ins.Size
		if size == 0 {
			size = 2
		}
		if f := in.write(ins.Dst, in.popStack(size)); f != nil {
			return f
		}
	case decode.KindPushA:
		in.execPushA(ins)
	case decode.KindPopA:
		in.execPopA(ins)
	case decode.KindPushF:
		in.pushStack(uint64(c.EFLAGS), ins.Size)
	case decode.KindPopF:
		c.EFLAGS = uint32(in.popStack(ins.Size))
	case decode.KindInc:
		v := in.read(ins.Dst)
		res := v + 1
		c.UpdateArithFlags(v, 1, res, ins.Size, false)
		in.write(ins.Dst, res)
	case decode.KindDec:
		v := in.read(ins.Dst)
		res := v - 1
		c.UpdateArithFlags(v, 1, res, ins.Size, true)
		in.write(ins.Dst, res)
	case decode.KindNot:
		in.write(ins.Dst, ^in.read(ins.Dst))
	case decode.KindNeg:
		v := in.read(ins.Dst)
		res := -int64(v)
		c.UpdateArithFlags(0, v, uint64(res), ins.Size, true)
		c.SetFlag(cpu.FlagCF, v != 0)
		in.write(ins.Dst, uint64(res))
	case decode.KindShiftRotate:
		in.execShift(ins)
	case decode.KindMul, decode.KindImul, decode.KindDiv, decode.KindIdiv:
		return in.execMulDiv(ins)
	case decode.KindJmp:
		in.execJmp(ins)
	case decode.KindJcc:
		if evalCond(c, ins.Cond) {
			c.EIP = branchTarget(nextEIP, ins)
		}
	case decode.KindLoop:
		in.execLoop(ins, nextEIP)
	case decode.KindCall:
		in.pushStack(uint64(nextEIP), ins.Size)
		in.execJmp(ins)
	case decode.KindRet:
		target := in.popStack(ins.Size)
		if ins.Src.Kind == decode.OperImm {
			sp := in.c.Regs.GPR32(regESP) + uint32(ins.Src.Imm)
			in.c.Regs.SetGPR32(regESP, sp)
		}
		c.EIP = uint32(target)
	case decode.KindInt:
		return in.softInterrupt(int(ins.Src.Imm))
	case decode.KindInto:
		if c.Flag(cpu.FlagOF) {
			return in.softInterrupt(int(cpu.VectorOF))
		}
	case decode.KindIRet:
		newEIP := uint32(in.popStack(ins.Size))
		sel := in.popStack(ins.Size)
		if f := in.loadSegment(cpu.SegCS, uint16(sel)); f != nil {
			return f
		}
		c.EIP = newEIP
		c.EFLAGS = uint32(in.popStack(ins.Size))
	case decode.KindIn:
		in.execIn(ins)
	case decode.KindOut:
		in.execOut(ins)
	case decode.KindHlt:
		in.c.Halted = true
	case decode.KindCli:
		c.SetFlag(cpu.FlagIF, false)
	case decode.KindSti:
		c.SetFlag(cpu.FlagIF, true)
	case decode.KindClc:
		c.SetFlag(cpu.FlagCF, false)
	case decode.KindStc:
		c.SetFlag(cpu.FlagCF, true)
	case decode.KindCmc:
		c.SetFlag(cpu.FlagCF, !c.Flag(cpu.FlagCF))
	case decode.KindCld:
		c.SetFlag(cpu.FlagDF, false)
	case decode.KindStd:
		c.SetFlag(cpu.FlagDF, true)
	case decode.KindNop:
	case decode.KindCbw:
		if ins.Size == 4 {
			c.SetGPR32(regEAX, uint32(int32(int16(c.GPR16(regEAX)))))
		} else {
			c.SetGPR16(regEAX, uint16(int16(int8(c.GPR8(regEAX)))))
		}
	case decode.KindCwd:
		if ins.Size == 4 {
			if int32(c.GPR32(regEAX)) < 0 {
				c.SetGPR32(regEDX, 0xFFFFFFFF)
			} else {
				c.SetGPR32(regEDX, 0)
			}
		} else {
			if int16(c.GPR16(regEAX)) < 0 {
				c.SetGPR16(regEDX, 0xFFFF)
			} else {
				c.SetGPR16(regEDX, 0)
			}
		}
	case decode.KindSahf:
		ah := uint32(c.GPR8(4)) // AH is 8-bit register index 4
		c.EFLAGS = c.EFLAGS&^0xFF | ah
	case decode.KindLahf:
		c.SetGPR8(4, uint8(c.EFLAGS))
	case decode.KindMovs:
		in.execMovs(ins)
	case decode.KindCmps:
		in.execCmps(ins)
	case decode.KindStos:
		in.execStos(ins)
	case decode.KindLods:
		in.execLods(ins)
	case decode.KindScas:
		in.execScas(ins)
	case decode.KindEnter:
		in.execEnter(ins)
	case decode.KindLeave:
		sp := c.GPR32(regEBP)
		c.SetGPR32(regESP, sp)
		c.SetGPR32(regEBP, uint32(in.popStack(ins.Size)))
	case decode.KindDaa, decode.KindDas, decode.KindAaa, decode.KindAas:
		in.execBCD(ins)
	case decode.KindCallFar, decode.KindJmpFar, decode.KindRetFar, decode.KindLoadPtr:
		// Far control transfer / LDS/LES: requires a full segment
		// descriptor reload (protected-mode access checks included),
		// which this interpreter does not perform, so it raises #UD
		// rather than silently mis-executing. Of these kinds the decoder
		// only produces KindCallFar and KindJmpFar (Grp5 FF /3, FF /5).
		return cpu.InvalidOpcodeFault()
	default:
		return cpu.InvalidOpcodeFault()
	}
	return nil
}

func branchTarget(nextEIP uint32, ins *decode.Instruction) uint32 {
	return uint32(int64(nextEIP) + int64(int32(ins.Src.Imm)))
}

func (in *Interpreter) execJmp(ins *decode.Instruction) {
	target := in.read(ins.Src)
	if ins.Src.Kind == decode.OperRel {
		in.c.Regs.EIP = branchTarget(in.c.Regs.EIP, ins)
		return
	}
	in.c.Regs.EIP = uint32(target)
}

func evalCond(c *cpu.RegisterFile, cond int) bool {
	switch cond {
	case 0:
		return c.Flag(cpu.FlagOF)
	case 1:
		return !c.Flag(cpu.FlagOF)
	case 2:
		return c.Flag(cpu.FlagCF)
	case 3:
		return !c.Flag(cpu.FlagCF)
	case 4:
		return c.Flag(cpu.FlagZF)
	case 5:
		return !c.Flag(cpu.FlagZF)
	case 6:
		return c.Flag(cpu.FlagCF) || c.Flag(cpu.FlagZF)
	case 7:
		return !c.Flag(cpu.FlagCF) && !c.Flag(cpu.FlagZF)
	case 8:
		return c.Flag(cpu.FlagSF)
	case 9:
		return !c.Flag(cpu.FlagSF)
	case 10:
		return c.Flag(cpu.FlagPF)
	case 11:
		return !c.Flag(cpu.FlagPF)
	case 12:
		return c.Flag(cpu.FlagSF) != c.Flag(cpu.FlagOF)
	case 13:
		return c.Flag(cpu.FlagSF) == c.Flag(cpu.FlagOF)
	case 14:
		return c.Flag(cpu.FlagZF) || (c.Flag(cpu.FlagSF) != c.Flag(cpu.FlagOF))
	case 15:
		return !c.Flag(cpu.FlagZF) && (c.Flag(cpu.FlagSF) == c.Flag(cpu.FlagOF))
	}
	return false
}

func (in *Interpreter) execLoop(ins *decode.Instruction, nextEIP uint32) {
	c := &in.c.Regs
	count := c.GPR32(regECX) - 1
	if !c.AddressSize32 {
		count &= 0xFFFF
		c.SetGPR16(regECX, uint16(count))
	} else {
		c.SetGPR32(regECX, count)
	}

	take := false
	switch ins.Cond {
	case 0: // LOOPNZ
		take = count != 0 && !c.Flag(cpu.FlagZF)
	case 1: // LOOPZ
		take = count != 0 && c.Flag(cpu.FlagZF)
	case 2: // LOOP
		take = count != 0
	case 3: // JCXZ
		take = count == 0
	}
	if take {
		c.EIP = branchTarget(nextEIP, ins)
	}
}

func (in *Interpreter) softInterrupt(vector int) *cpu.Fault {
	in.realModeInterrupt(vector)
	return nil
}

func (in *Interpreter) execIn(ins *decode.Instruction) {
	port := uint16(in.read(ins.Src))
	var v uint64
	switch ins.Size {
	case 1:
		v = uint64(in.c.Bus.ReadPortByte(port))
	case 2:
		v = uint64(in.c.Bus.ReadPortWord(port))
	default:
		v = uint64(in.c.Bus.ReadPortDword(port))
	}
	in.c.Regs.SetGPR32(regEAX, in.c.Regs.GPR32(regEAX)&^uint32(mask(ins.Size))|uint32(v))
}

func (in *Interpreter) execOut(ins *decode.Instruction) {
	port := uint16(in.read(ins.Dst))
	v := in.c.Regs.GPR32(regEAX)
	switch ins.Size {
	case 1:
		in.c.Bus.WritePortByte(port, uint8(v))
	case 2:
		in.c.Bus.WritePortWord(port, uint16(v))
	default:
		in.c.Bus.WritePortDword(port, v)
	}
}

func mask(size int) uint64 {
	if size >= 4 {
		return 0xFFFFFFFF
	}
	return uint64(1)<<(8*uint(size)) - 1
}

func (in *Interpreter) execPushA(ins *decode.Instruction) {
	c := &in.c.Regs
	size := 2
	if c.OperandSize32 {
		size = 4
	}
	sp := c.GPR32(regESP)
	order := []int{regEAX, regECX, regEDX, regEBX, regESP, regEBP, regESI, regEDI}
	for _, r := range order {
		v := c.GPR32(r)
		if r == regESP {
			v = sp
		}
		in.pushStack(uint64(v), size)
	}
}

func (in *Interpreter) execPopA(ins *decode.Instruction) {
	c := &in.c.Regs
	size := 2
	if c.OperandSize32 {
		size = 4
	}
	order := []int{regEDI, regESI, regEBP, regESP, regEBX, regEDX, regECX, regEAX}
	for _, r := range order {
		v := in.popStack(size)
		if r == regESP {
			continue // discarded, matches real POPA semantics
		}
		if size == 2 {
			c.SetGPR16(r, uint16(v))
		} else {
			c.SetGPR32(r, uint32(v))
		}
	}
}

func (in *Interpreter) execEnter(ins *decode.Instruction) {
	c := &in.c.Regs
	size := ins.Size
	if size == 0 {
		size = 2
	}
	level := ins.Count.Imm & 0x1F
	frameSize := ins.Src.Imm

	in.pushStack(uint64(c.GPR32(regEBP)), size)
	frameTemp := c.GPR32(regESP)

	for i := uint64(1); i <= level; i++ {
		bp := c.GPR32(regEBP) - uint32(i)*uint32(size)
		in.pushStack(uint64(in.readMem(in.c.Regs.LinearAddress(cpu.SegSS, bp), size)), size)
	}
	if level > 0 {
		in.pushStack(uint64(frameTemp), size)
	}
	c.SetGPR32(regEBP, frameTemp)
	c.SetGPR32(regESP, frameTemp-uint32(frameSize))
}
