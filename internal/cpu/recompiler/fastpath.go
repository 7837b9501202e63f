package recompiler

import (
	"github.com/rcornwell/pce/internal/cpu"
	"github.com/rcornwell/pce/internal/cpu/decode"
	"github.com/rcornwell/pce/internal/cpu/interpreter"
)

// fastStep is a specialized emitter for an instruction proven at compile
// time to never fault: pure register ALU, INC/DEC on a register, LEA,
// and the flag set/clear group. It touches only the register file
// (never the bus), so its cost and instruction-pointer advance are safe
// to batch into the block's delayed commit rather than settled one
// instruction at a time the way compiledStep's generic path must be.
// This is the "second, distinct" execution path the closure-wrapped
// generic fallback in recompiler.go doesn't give you on its own.
type fastStep struct {
	run      func(r *cpu.RegisterFile)
	eipDelta uint32
	cycles   int64
}

// buildFastStep reports whether ins qualifies for the fast path and, if
// so, the emitter for it. Anything with a memory or segment operand,
// any control transfer, string op, or I/O instruction falls through to
// the generic compiledStep instead.
func buildFastStep(ins *decode.Instruction) (fastStep, bool) {
	cost := interpreter.InstructionCost(ins)
	delta := uint32(ins.Len)

	switch ins.Kind {
	case decode.KindALU:
		if ins.Dst.Kind != decode.OperReg || !isRegOrImm(ins.Src) {
			break
		}
		return fastStep{run: func(r *cpu.RegisterFile) { fastALU(r, ins) }, eipDelta: delta, cycles: cost}, true
	case decode.KindInc:
		if ins.Dst.Kind != decode.OperReg {
			break
		}
		return fastStep{run: func(r *cpu.RegisterFile) { fastIncDec(r, ins, false) }, eipDelta: delta, cycles: cost}, true
	case decode.KindDec:
		if ins.Dst.Kind != decode.OperReg {
			break
		}
		return fastStep{run: func(r *cpu.RegisterFile) { fastIncDec(r, ins, true) }, eipDelta: delta, cycles: cost}, true
	case decode.KindLea:
		if ins.Dst.Kind != decode.OperReg || ins.Src.Kind != decode.OperMem {
			break
		}
		return fastStep{run: func(r *cpu.RegisterFile) { fastLea(r, ins) }, eipDelta: delta, cycles: cost}, true
	case decode.KindNop:
		return fastStep{run: func(*cpu.RegisterFile) {}, eipDelta: delta, cycles: cost}, true
	case decode.KindClc:
		return fastStep{run: func(r *cpu.RegisterFile) { r.SetFlag(cpu.FlagCF, false) }, eipDelta: delta, cycles: cost}, true
	case decode.KindStc:
		return fastStep{run: func(r *cpu.RegisterFile) { r.SetFlag(cpu.FlagCF, true) }, eipDelta: delta, cycles: cost}, true
	case decode.KindCmc:
		return fastStep{run: func(r *cpu.RegisterFile) { r.SetFlag(cpu.FlagCF, !r.Flag(cpu.FlagCF)) }, eipDelta: delta, cycles: cost}, true
	case decode.KindCld:
		return fastStep{run: func(r *cpu.RegisterFile) { r.SetFlag(cpu.FlagDF, false) }, eipDelta: delta, cycles: cost}, true
	case decode.KindStd:
		return fastStep{run: func(r *cpu.RegisterFile) { r.SetFlag(cpu.FlagDF, true) }, eipDelta: delta, cycles: cost}, true
	case decode.KindCli:
		return fastStep{run: func(r *cpu.RegisterFile) { r.SetFlag(cpu.FlagIF, false) }, eipDelta: delta, cycles: cost}, true
	case decode.KindSti:
		return fastStep{run: func(r *cpu.RegisterFile) { r.SetFlag(cpu.FlagIF, true) }, eipDelta: delta, cycles: cost}, true
	}
	return fastStep{}, false
}

func isRegOrImm(op decode.Operand) bool {
	return op.Kind == decode.OperReg || op.Kind == decode.OperImm
}

func readFastOperand(r *cpu.RegisterFile, op decode.Operand) uint64 {
	switch op.Kind {
	case decode.OperImm, decode.OperRel:
		return op.Imm
	default:
		switch op.Size {
		case 1:
			return uint64(r.GPR8(op.Reg))
		case 2:
			return uint64(r.GPR16(op.Reg))
		default:
			return uint64(r.GPR32(op.Reg))
		}
	}
}

func writeFastOperand(r *cpu.RegisterFile, op decode.Operand, v uint64) {
	switch op.Size {
	case 1:
		r.SetGPR8(op.Reg, uint8(v))
	case 2:
		r.SetGPR16(op.Reg, uint16(v))
	default:
		r.SetGPR32(op.Reg, uint32(v))
	}
}

// fastALU mirrors the interpreter's execALU exactly, just against a bare
// *cpu.RegisterFile instead of through an Interpreter's read/write
// operand helpers, since both operands are already known to be a
// register or an immediate.
func fastALU(r *cpu.RegisterFile, ins *decode.Instruction) {
	a := readFastOperand(r, ins.Dst)
	b := readFastOperand(r, ins.Src)

	var res uint64
	isSub := false
	switch ins.ALU {
	case decode.ALUAdd:
		res = a + b
	case decode.ALUOr:
		res = a | b
		r.UpdateLogicFlags(res, ins.Size)
		writeFastOperand(r, ins.Dst, res)
		return
	case decode.ALUAdc:
		if r.Flag(cpu.FlagCF) {
			b++
		}
		res = a + b
	case decode.ALUSbb:
		isSub = true
		if r.Flag(cpu.FlagCF) {
			b++
		}
		res = a - b
	case decode.ALUAnd:
		res = a & b
		r.UpdateLogicFlags(res, ins.Size)
		writeFastOperand(r, ins.Dst, res)
		return
	case decode.ALUSub:
		isSub = true
		res = a - b
	case decode.ALUXor:
		res = a ^ b
		r.UpdateLogicFlags(res, ins.Size)
		writeFastOperand(r, ins.Dst, res)
		return
	case decode.ALUCmp:
		isSub = true
		res = a - b
		r.UpdateArithFlags(a, b, res, ins.Size, isSub)
		return
	}
	r.UpdateArithFlags(a, b, res, ins.Size, isSub)
	writeFastOperand(r, ins.Dst, res)
}

func fastIncDec(r *cpu.RegisterFile, ins *decode.Instruction, isDec bool) {
	v := readFastOperand(r, ins.Dst)
	res := v + 1
	if isDec {
		res = v - 1
	}
	r.UpdateArithFlags(v, 1, res, ins.Size, isDec)
	writeFastOperand(r, ins.Dst, res)
}

// fastLea mirrors the interpreter's effectiveAddress computation for the
// register/immediate-only parts (base, index*scale, displacement); it
// never dereferences the result, so it stays on the fast path even
// though its source operand is nominally OperMem.
func fastLea(r *cpu.RegisterFile, ins *decode.Instruction) {
	m := ins.Src.Mem
	addrSize32 := ins.AddrSize == 4

	var offset uint32
	if m.HasBase {
		if addrSize32 {
			offset += r.GPR32(m.BaseReg)
		} else {
			offset += uint32(r.GPR16(m.BaseReg))
		}
	}
	if m.HasIndex {
		if addrSize32 {
			offset += r.GPR32(m.IndexReg) * uint32(m.Scale)
		} else {
			offset += uint32(r.GPR16(m.IndexReg))
		}
	}
	offset += m.Disp
	if !addrSize32 {
		offset &= 0xFFFF
	}
	writeFastOperand(r, ins.Dst, uint64(r.LinearAddress(m.Seg, offset)))
}
