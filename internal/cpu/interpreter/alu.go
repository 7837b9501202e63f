package interpreter

import (
	"github.com/rcornwell/pce/internal/cpu"
	"github.com/rcornwell/pce/internal/cpu/decode"
)

func (in *Interpreter) execALU(ins *decode.Instruction) {
	c := &in.c.Regs
	a := in.read(ins.Dst)
	b := in.read(ins.Src)

	var res uint64
	isSub := false
	switch ins.ALU {
	case decode.ALUAdd:
		res = a + b
	case decode.ALUOr:
		res = a | b
		c.UpdateLogicFlags(res, ins.Size)
		in.write(ins.Dst, res)
		return
	case decode.ALUAdc:
		if c.Flag(cpu.FlagCF) {
			b++
		}
		res = a + b
	case decode.ALUSbb:
		isSub = true
		if c.Flag(cpu.FlagCF) {
			b++
		}
		res = a - b
	case decode.ALUAnd:
		res = a & b
		c.UpdateLogicFlags(res, ins.Size)
		in.write(ins.Dst, res)
		return
	case decode.ALUSub:
		isSub = true
		res = a - b
	case decode.ALUXor:
		res = a ^ b
		c.UpdateLogicFlags(res, ins.Size)
		in.write(ins.Dst, res)
		return
	case decode.ALUCmp:
		isSub = true
		res = a - b
		c.UpdateArithFlags(a, b, res, ins.Size, isSub)
		return
	}

	c.UpdateArithFlags(a, b, res, ins.Size, isSub)
	in.write(ins.Dst, res)
}

func (in *Interpreter) execShift(ins *decode.Instruction) {
	c := &in.c.Regs
	bits := uint(ins.Size * 8)
	count := in.read(ins.Count) % uint64(bits)
	if ins.Shift == decode.ShiftRol || ins.Shift == decode.ShiftRor ||
		ins.Shift == decode.ShiftRcl || ins.Shift == decode.ShiftRcr {
		count = in.read(ins.Count)
	}
	v := in.read(ins.Dst)
	signBit := uint64(1) << (bits - 1)
	mask := uint64(1)<<bits - 1

	switch ins.Shift {
	case decode.ShiftShl, decode.ShiftSal:
		for i := uint64(0); i < count; i++ {
			c.SetFlag(cpu.FlagCF, v&signBit != 0)
			v = (v << 1) & mask
		}
	case decode.ShiftShr:
		for i := uint64(0); i < count; i++ {
			c.SetFlag(cpu.FlagCF, v&1 != 0)
			v >>= 1
		}
	case decode.ShiftSar:
		for i := uint64(0); i < count; i++ {
			c.SetFlag(cpu.FlagCF, v&1 != 0)
			sign := v & signBit
			v = (v >> 1) | sign
		}
	case decode.ShiftRol:
		n := count % uint64(bits)
		v = ((v << n) | (v >> (uint64(bits) - n))) & mask
		c.SetFlag(cpu.FlagCF, v&1 != 0)
	case decode.ShiftRor:
		n := count % uint64(bits)
		v = ((v >> n) | (v << (uint64(bits) - n))) & mask
		c.SetFlag(cpu.FlagCF, v&signBit != 0)
	case decode.ShiftRcl:
		for i := uint64(0); i < count; i++ {
			carryIn := uint64(0)
			if c.Flag(cpu.FlagCF) {
				carryIn = 1
			}
			newCarry := v&signBit != 0
			v = ((v << 1) | carryIn) & mask
			c.SetFlag(cpu.FlagCF, newCarry)
		}
	case decode.ShiftRcr:
		for i := uint64(0); i < count; i++ {
			carryIn := uint64(0)
			if c.Flag(cpu.FlagCF) {
				carryIn = 1
			}
			newCarry := v&1 != 0
			v = (v >> 1) | (carryIn << (bits - 1))
			c.SetFlag(cpu.FlagCF, newCarry)
		}
	}

	if count != 0 {
		c.UpdateLogicFlags(v, ins.Size)
	}
	in.write(ins.Dst, v)
}

func (in *Interpreter) execMulDiv(ins *decode.Instruction) *cpu.Fault {
	c := &in.c.Regs
	src := in.read(ins.Src)
	bits := uint(ins.Size * 8)

	switch ins.Kind {
	case decode.KindMul:
		a := in.read(decode.Operand{Kind: decode.OperReg, Reg: regEAX, Size: ins.Size})
		result := a * src
		in.storeWide(ins.Size, result)
		overflow := result>>bits != 0
		c.SetFlag(cpu.FlagCF, overflow)
		c.SetFlag(cpu.FlagOF, overflow)
	case decode.KindImul:
		a := int64(signExtend(in.read(decode.Operand{Kind: decode.OperReg, Reg: regEAX, Size: ins.Size}), ins.Size))
		s := int64(signExtend(src, ins.Size))
		result := a * s
		in.storeWide(ins.Size, uint64(result))
		top := result >> bits
		overflow := top != 0 && top != -1
		c.SetFlag(cpu.FlagCF, overflow)
		c.SetFlag(cpu.FlagOF, overflow)
	case decode.KindDiv:
		if src == 0 {
			return cpu.DivideErrorFault()
		}
		dividend := in.loadWide(ins.Size)
		q := dividend / src
		if q>>bits != 0 {
			return cpu.DivideErrorFault()
		}
		r := dividend % src
		in.storeQuotientRemainder(ins.Size, q, r)
	case decode.KindIdiv:
		if src == 0 {
			return cpu.DivideErrorFault()
		}
		dividend := int64(in.loadWide(ins.Size))
		divisor := int64(signExtend(src, ins.Size))
		q := dividend / divisor
		r := dividend % divisor
		in.storeQuotientRemainder(ins.Size, uint64(q), uint64(r))
	}
	return nil
}

func signExtend(v uint64, size int) uint64 {
	bits := uint(size * 8)
	signBit := uint64(1) << (bits - 1)
	if v&signBit != 0 {
		return v | ^(uint64(1)<<bits - 1)
	}
	return v
}

// storeWide stores a double-width multiply result into AX:DX-shaped
// register pairs at the given operand width (AH:AL for byte operands,
// DX:AX for word, EDX:EAX for dword).
func (in *Interpreter) storeWide(size int, result uint64) {
	c := &in.c.Regs
	switch size {
	case 1:
		c.SetGPR16(regEAX, uint16(result))
	case 2:
		c.SetGPR16(regEAX, uint16(result))
		c.SetGPR16(regEDX, uint16(result>>16))
	default:
		c.SetGPR32(regEAX, uint32(result))
		c.SetGPR32(regEDX, uint32(result>>32))
	}
}

func (in *Interpreter) loadWide(size int) uint64 {
	c := &in.c.Regs
	switch size {
	case 1:
		return uint64(c.GPR16(regEAX))
	case 2:
		return uint64(c.GPR16(regEAX)) | uint64(c.GPR16(regEDX))<<16
	default:
		return uint64(c.GPR32(regEAX)) | uint64(c.GPR32(regEDX))<<32
	}
}

func (in *Interpreter) storeQuotientRemainder(size int, q, r uint64) {
	c := &in.c.Regs
	switch size {
	case 1:
		c.SetGPR8(0, uint8(q))
		c.SetGPR8(4, uint8(r))
	case 2:
		c.SetGPR16(regEAX, uint16(q))
		c.SetGPR16(regEDX, uint16(r))
	default:
		c.SetGPR32(regEAX, uint32(q))
		c.SetGPR32(regEDX, uint32(r))
	}
}
