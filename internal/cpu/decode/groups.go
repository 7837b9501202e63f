package decode

import "fmt"

// opcodeLow handles 0x00-0x3F: the eight ALU groups in their classic
// six-form layout (Eb,Gb / Ev,Gv / Gb,Eb / Gv,Ev / AL,Ib / eAX,Iz),
// interleaved with segment PUSH/POP (0x06/0x07/0x0E/0x16/0x17/0x1E/0x1F)
// and the BCD adjust opcodes (0x27/0x2F/0x37/0x3F).
func (d *decoder) opcodeLow(b uint8) (*Instruction, error) {
	switch b {
	case 0x06:
		in := d.inst(KindPush)
		in.Src = Operand{Kind: OperSeg, Reg: 0}
		return in, nil
	case 0x07:
		in := d.inst(KindPop)
		in.Dst = Operand{Kind: OperSeg, Reg: 0}
		return in, nil
	case 0x0E:
		in := d.inst(KindPush)
		in.Src = Operand{Kind: OperSeg, Reg: 1}
		return in, nil
	case 0x16:
		in := d.inst(KindPush)
		in.Src = Operand{Kind: OperSeg, Reg: 2}
		return in, nil
	case 0x17:
		in := d.inst(KindPop)
		in.Dst = Operand{Kind: OperSeg, Reg: 2}
		return in, nil
	case 0x1E:
		in := d.inst(KindPush)
		in.Src = Operand{Kind: OperSeg, Reg: 3}
		return in, nil
	case 0x1F:
		in := d.inst(KindPop)
		in.Dst = Operand{Kind: OperSeg, Reg: 3}
		return in, nil
	case 0x27:
		return d.inst(KindDaa), nil
	case 0x2F:
		return d.inst(KindDas), nil
	case 0x37:
		return d.inst(KindAaa), nil
	case 0x3F:
		return d.inst(KindAas), nil
	}

	group := ALUOp(b >> 3)
	form := b & 7
	size := 1
	if form == 1 || form == 3 || form == 5 {
		size = d.opSize()
	}

	switch form {
	case 0, 1: // Eb,Gb / Ev,Gv
		reg, rm, ok := d.modrm(size)
		if !ok {
			return d.fail()
		}
		in := d.inst(KindALU)
		in.ALU = group
		in.Size = size
		in.Dst = rm
		in.Src = Operand{Kind: OperReg, Reg: reg, Size: size}
		return in, nil
	case 2, 3: // Gb,Eb / Gv,Ev
		reg, rm, ok := d.modrm(size)
		if !ok {
			return d.fail()
		}
		in := d.inst(KindALU)
		in.ALU = group
		in.Size = size
		in.Dst = Operand{Kind: OperReg, Reg: reg, Size: size}
		in.Src = rm
		return in, nil
	case 4: // AL,Ib
		imm, ok := d.u8()
		if !ok {
			return d.fail()
		}
		in := d.inst(KindALU)
		in.ALU = group
		in.Size = 1
		in.Dst = Operand{Kind: OperReg, Reg: 0, Size: 1}
		in.Src = Operand{Kind: OperImm, Imm: uint64(imm), Size: 1}
		return in, nil
	case 5: // eAX,Iz
		imm, ok := d.immSized(size, false)
		if !ok {
			return d.fail()
		}
		in := d.inst(KindALU)
		in.ALU = group
		in.Size = size
		in.Dst = Operand{Kind: OperReg, Reg: 0, Size: size}
		in.Src = Operand{Kind: OperImm, Imm: imm, Size: size}
		return in, nil
	}

	return nil, fmt.Errorf("decode: unreachable ALU form for opcode %#x", b)
}

// group1 decodes opcodes 0x80/0x81/0x83 (Grp1: ALU op selected by the
// ModRM reg field rather than the opcode byte).
func (d *decoder) group1(b uint8) (*Instruction, error) {
	size := 1
	if b != 0x80 {
		size = d.opSize()
	}
	reg, rm, ok := d.modrm(size)
	if !ok {
		return d.fail()
	}
	immSize := size
	signExtend := false
	if b == 0x83 {
		immSize, signExtend = 1, true
	}
	imm, ok := d.immSized(immSize, signExtend)
	if !ok {
		return d.fail()
	}
	in := d.inst(KindALU)
	in.ALU = ALUOp(reg & 7)
	in.Size = size
	in.Dst = rm
	in.Src = Operand{Kind: OperImm, Imm: imm, Size: size}
	return in, nil
}

// group2 decodes the shift/rotate group: 0xC0/0xC1 (by imm8, 80186+),
// 0xD0/0xD1 (by 1), 0xD2/0xD3 (by CL).
func (d *decoder) group2(b uint8) (*Instruction, error) {
	size := 1
	if b == 0xC1 || b == 0xD1 || b == 0xD3 {
		size = d.opSize()
	}
	reg, rm, ok := d.modrm(size)
	if !ok {
		return d.fail()
	}
	in := d.inst(KindShiftRotate)
	in.Shift = ShiftOp(reg & 7)
	in.Size = size
	in.Dst = rm

	switch b {
	case 0xC0, 0xC1:
		imm, ok := d.u8()
		if !ok {
			return d.fail()
		}
		in.Count = Operand{Kind: OperImm, Imm: uint64(imm)}
	case 0xD0, 0xD1:
		in.Count = Operand{Kind: OperImm, Imm: 1}
	case 0xD2, 0xD3:
		in.Count = Operand{Kind: OperReg, Reg: regECX, Size: 1}
	}
	return in, nil
}

// group3 decodes 0xF6/0xF7 (Grp3: TEST/NOT/NEG/MUL/IMUL/DIV/IDIV, selected
// by the ModRM reg field). TEST additionally reads an immediate.
func (d *decoder) group3(b uint8) (*Instruction, error) {
	size := 1
	if b == 0xF7 {
		size = d.opSize()
	}
	reg, rm, ok := d.modrm(size)
	if !ok {
		return d.fail()
	}
	switch reg {
	case 0, 1: // TEST
		imm, ok := d.immSized(size, false)
		if !ok {
			return d.fail()
		}
		in := d.inst(KindTest)
		in.Size = size
		in.Dst = rm
		in.Src = Operand{Kind: OperImm, Imm: imm, Size: size}
		return in, nil
	case 2:
		in := d.inst(KindNot)
		in.Size = size
		in.Dst = rm
		return in, nil
	case 3:
		in := d.inst(KindNeg)
		in.Size = size
		in.Dst = rm
		return in, nil
	case 4:
		in := d.inst(KindMul)
		in.Size = size
		in.Src = rm
		return in, nil
	case 5:
		in := d.inst(KindImul)
		in.Size = size
		in.Src = rm
		return in, nil
	case 6:
		in := d.inst(KindDiv)
		in.Size = size
		in.Src = rm
		return in, nil
	case 7:
		in := d.inst(KindIdiv)
		in.Size = size
		in.Src = rm
		return in, nil
	}
	return nil, fmt.Errorf("decode: unreachable Grp3 reg field")
}

// group5 decodes 0xFF (Grp5: INC/DEC/CALL/CALLF/JMP/JMPF/PUSH selected by
// the ModRM reg field).
func (d *decoder) group5() (*Instruction, error) {
	size := d.opSize()
	reg, rm, ok := d.modrm(size)
	if !ok {
		return d.fail()
	}
	switch reg {
	case 0:
		in := d.inst(KindInc)
		in.Size = size
		in.Dst = rm
		return in, nil
	case 1:
		in := d.inst(KindDec)
		in.Size = size
		in.Dst = rm
		return in, nil
	case 2:
		in := d.inst(KindCall)
		in.Src = rm
		return in, nil
	case 3:
		in := d.inst(KindCallFar)
		in.Src = rm
		in.Far = true
		return in, nil
	case 4:
		in := d.inst(KindJmp)
		in.Src = rm
		return in, nil
	case 5:
		in := d.inst(KindJmpFar)
		in.Src = rm
		in.Far = true
		return in, nil
	case 6:
		in := d.inst(KindPush)
		in.Src = rm
		return in, nil
	}
	return nil, fmt.Errorf("decode: reserved Grp5 reg field 7")
}
