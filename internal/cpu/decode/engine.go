package decode

import (
	"fmt"

	"github.com/rcornwell/pce/internal/cpu"
)

var condNames = [16]string{
	"O", "NO", "B", "AE", "E", "NE", "BE", "A",
	"S", "NS", "P", "NP", "L", "GE", "LE", "G",
}

func decode(code []byte, mode Mode) (*Instruction, error) {
	d := &decoder{
		code:       code,
		addrSize32: mode.AddressSize32,
		operSize32: mode.OperandSize32,
		allow32:    mode.Allow32,
	}

	for {
		b, ok := d.u8()
		if !ok {
			return nil, fmt.Errorf("decode: truncated instruction (prefix)")
		}
		switch b {
		case 0x26:
			d.seg, d.hasSeg = cpu.SegES, true
			continue
		case 0x2E:
			d.seg, d.hasSeg = cpu.SegCS, true
			continue
		case 0x36:
			d.seg, d.hasSeg = cpu.SegSS, true
			continue
		case 0x3E:
			d.seg, d.hasSeg = cpu.SegDS, true
			continue
		case 0x64:
			if d.allow32 {
				d.seg, d.hasSeg = cpu.SegFS, true
				continue
			}
		case 0x65:
			if d.allow32 {
				d.seg, d.hasSeg = cpu.SegGS, true
				continue
			}
		case 0x66:
			if d.allow32 {
				d.operSize32 = !mode.OperandSize32
				continue
			}
		case 0x67:
			if d.allow32 {
				d.addrSize32 = !mode.AddressSize32
				continue
			}
		case 0xF0:
			continue // LOCK, no effect on decode shape
		case 0xF2:
			d.rep = 0xF2
			continue
		case 0xF3:
			d.rep = 0xF3
			continue
		}
		return d.opcode(b)
	}
}

func (d *decoder) opSize() int {
	if d.operSize32 {
		return 4
	}
	return 2
}

func (d *decoder) inst(k Kind) *Instruction {
	addrSize := 2
	if d.addrSize32 {
		addrSize = 4
	}
	return &Instruction{Kind: k, Len: d.pos, Size: d.opSize(), AddrSize: addrSize, Seg: d.seg, HasSegOverride: d.hasSeg, Rep: d.rep}
}

func (d *decoder) fail() (*Instruction, error) {
	return nil, fmt.Errorf("decode: truncated instruction")
}

// opcode dispatches on the primary opcode byte, following the real x86
// map for the subset this core implements (see DESIGN.md for the exact
// list and the rationale for stopping short of the full 0x0F two-byte map
// and x87 escapes).
func (d *decoder) opcode(b uint8) (*Instruction, error) {
	// 0x00-0x3F: the eight ALU groups in their classic 6-form layout,
	// interleaved with segment PUSH/POP and the BCD adjust opcodes.
	if b < 0x40 {
		return d.opcodeLow(b)
	}

	switch {
	case b >= 0x40 && b <= 0x47:
		in := d.inst(KindInc)
		in.Dst = Operand{Kind: OperReg, Reg: int(b - 0x40), Size: d.opSize()}
		return in, nil
	case b >= 0x48 && b <= 0x4F:
		in := d.inst(KindDec)
		in.Dst = Operand{Kind: OperReg, Reg: int(b - 0x48), Size: d.opSize()}
		return in, nil
	case b >= 0x50 && b <= 0x57:
		in := d.inst(KindPush)
		in.Src = Operand{Kind: OperReg, Reg: int(b - 0x50), Size: d.opSize()}
		return in, nil
	case b >= 0x58 && b <= 0x5F:
		in := d.inst(KindPop)
		in.Dst = Operand{Kind: OperReg, Reg: int(b - 0x58), Size: d.opSize()}
		return in, nil
	case b >= 0x70 && b <= 0x7F:
		rel, ok := d.immSized(1, true)
		if !ok {
			return d.fail()
		}
		in := d.inst(KindJcc)
		in.Cond = int(b - 0x70)
		in.Src = Operand{Kind: OperRel, Imm: rel}
		return in, nil
	case b >= 0x91 && b <= 0x97:
		in := d.inst(KindXchg)
		in.Dst = Operand{Kind: OperReg, Reg: 0, Size: d.opSize()}
		in.Src = Operand{Kind: OperReg, Reg: int(b - 0x90), Size: d.opSize()}
		return in, nil
	case b >= 0xB0 && b <= 0xB7:
		imm, ok := d.u8()
		if !ok {
			return d.fail()
		}
		in := d.inst(KindMov)
		in.Size = 1
		in.Dst = Operand{Kind: OperReg, Reg: int(b - 0xB0), Size: 1}
		in.Src = Operand{Kind: OperImm, Imm: uint64(imm), Size: 1}
		return in, nil
	case b >= 0xB8 && b <= 0xBF:
		imm, ok := d.immSized(d.opSize(), false)
		if !ok {
			return d.fail()
		}
		in := d.inst(KindMov)
		in.Dst = Operand{Kind: OperReg, Reg: int(b - 0xB8), Size: d.opSize()}
		in.Src = Operand{Kind: OperImm, Imm: imm, Size: d.opSize()}
		return in, nil
	case b >= 0xE0 && b <= 0xE3:
		rel, ok := d.immSized(1, true)
		if !ok {
			return d.fail()
		}
		in := d.inst(KindLoop)
		in.Cond = int(b - 0xE0) // 0 LOOPNZ, 1 LOOPZ, 2 LOOP, 3 JCXZ
		in.Src = Operand{Kind: OperRel, Imm: rel}
		return in, nil
	}

	switch b {
	case 0x60:
		return d.inst(KindPushA), nil
	case 0x61:
		return d.inst(KindPopA), nil
	case 0x68:
		imm, ok := d.immSized(d.opSize(), false)
		if !ok {
			return d.fail()
		}
		in := d.inst(KindPush)
		in.Src = Operand{Kind: OperImm, Imm: imm, Size: d.opSize()}
		return in, nil
	case 0x6A:
		imm, ok := d.immSized(1, true)
		if !ok {
			return d.fail()
		}
		in := d.inst(KindPush)
		in.Src = Operand{Kind: OperImm, Imm: imm, Size: d.opSize()}
		return in, nil
	case 0x80, 0x81, 0x83:
		return d.group1(b)
	case 0x84, 0x85:
		size := 1
		if b == 0x85 {
			size = d.opSize()
		}
		reg, rm, ok := d.modrm(size)
		if !ok {
			return d.fail()
		}
		in := d.inst(KindTest)
		in.Size = size
		in.Dst = rm
		in.Src = Operand{Kind: OperReg, Reg: reg, Size: size}
		return in, nil
	case 0x86, 0x87:
		size := 1
		if b == 0x87 {
			size = d.opSize()
		}
		reg, rm, ok := d.modrm(size)
		if !ok {
			return d.fail()
		}
		in := d.inst(KindXchg)
		in.Size = size
		in.Dst = rm
		in.Src = Operand{Kind: OperReg, Reg: reg, Size: size}
		return in, nil
	case 0x88, 0x89, 0x8A, 0x8B:
		size := 1
		if b == 0x89 || b == 0x8B {
			size = d.opSize()
		}
		reg, rm, ok := d.modrm(size)
		if !ok {
			return d.fail()
		}
		in := d.inst(KindMov)
		in.Size = size
		regOp := Operand{Kind: OperReg, Reg: reg, Size: size}
		if b == 0x88 || b == 0x89 {
			in.Dst, in.Src = rm, regOp
		} else {
			in.Dst, in.Src = regOp, rm
		}
		return in, nil
	case 0x8C, 0x8E:
		reg, rm, ok := d.modrm(2)
		if !ok {
			return d.fail()
		}
		in := d.inst(KindMovSeg)
		in.Size = 2
		segOp := Operand{Kind: OperSeg, Reg: reg & 7, Size: 2}
		if b == 0x8C {
			in.Dst, in.Src = rm, segOp
		} else {
			in.Dst, in.Src = segOp, rm
		}
		return in, nil
	case 0x8D:
		reg, rm, ok := d.modrm(d.opSize())
		if !ok || rm.Kind != OperMem {
			return d.fail()
		}
		in := d.inst(KindLea)
		in.Dst = Operand{Kind: OperReg, Reg: reg, Size: d.opSize()}
		in.Src = rm
		return in, nil
	case 0x8F:
		_, rm, ok := d.modrm(d.opSize())
		if !ok {
			return d.fail()
		}
		in := d.inst(KindPop)
		in.Dst = rm
		return in, nil
	case 0x90:
		return d.inst(KindNop), nil
	case 0x98:
		return d.inst(KindCbw), nil
	case 0x99:
		return d.inst(KindCwd), nil
	case 0x9C:
		return d.inst(KindPushF), nil
	case 0x9D:
		return d.inst(KindPopF), nil
	case 0x9E:
		return d.inst(KindSahf), nil
	case 0x9F:
		return d.inst(KindLahf), nil
	case 0xA0, 0xA1, 0xA2, 0xA3:
		size := 1
		if b == 0xA1 || b == 0xA3 {
			size = d.opSize()
		}
		addrSize := 2
		if d.addrSize32 {
			addrSize = 4
		}
		disp, ok := d.immSized(addrSize, false)
		if !ok {
			return d.fail()
		}
		seg := cpu.SegDS
		if d.hasSeg {
			seg = d.seg
		}
		mem := Operand{Kind: OperMem, Size: size, Mem: MemOperand{Seg: seg, Disp: uint32(disp)}}
		acc := Operand{Kind: OperReg, Reg: 0, Size: size}
		in := d.inst(KindMov)
		in.Size = size
		if b == 0xA0 || b == 0xA1 {
			in.Dst, in.Src = acc, mem
		} else {
			in.Dst, in.Src = mem, acc
		}
		return in, nil
	case 0xA4, 0xA5:
		in := d.inst(KindMovs)
		in.Size = 1
		if b == 0xA5 {
			in.Size = d.opSize()
		}
		return in, nil
	case 0xA6, 0xA7:
		in := d.inst(KindCmps)
		in.Size = 1
		if b == 0xA7 {
			in.Size = d.opSize()
		}
		return in, nil
	case 0xA8, 0xA9:
		size := 1
		if b == 0xA9 {
			size = d.opSize()
		}
		imm, ok := d.immSized(size, false)
		if !ok {
			return d.fail()
		}
		in := d.inst(KindTest)
		in.Size = size
		in.Dst = Operand{Kind: OperReg, Reg: 0, Size: size}
		in.Src = Operand{Kind: OperImm, Imm: imm, Size: size}
		return in, nil
	case 0xAA, 0xAB:
		in := d.inst(KindStos)
		in.Size = 1
		if b == 0xAB {
			in.Size = d.opSize()
		}
		return in, nil
	case 0xAC, 0xAD:
		in := d.inst(KindLods)
		in.Size = 1
		if b == 0xAD {
			in.Size = d.opSize()
		}
		return in, nil
	case 0xAE, 0xAF:
		in := d.inst(KindScas)
		in.Size = 1
		if b == 0xAF {
			in.Size = d.opSize()
		}
		return in, nil
	case 0xC0, 0xC1, 0xD0, 0xD1, 0xD2, 0xD3:
		return d.group2(b)
	case 0xC2:
		imm, ok := d.u16()
		if !ok {
			return d.fail()
		}
		in := d.inst(KindRet)
		in.Src = Operand{Kind: OperImm, Imm: uint64(imm), Size: 2}
		return in, nil
	case 0xC3:
		return d.inst(KindRet), nil
	case 0xC6, 0xC7:
		size := 1
		if b == 0xC7 {
			size = d.opSize()
		}
		_, rm, ok := d.modrm(size)
		if !ok {
			return d.fail()
		}
		imm, ok := d.immSized(size, false)
		if !ok {
			return d.fail()
		}
		in := d.inst(KindMov)
		in.Size = size
		in.Dst = rm
		in.Src = Operand{Kind: OperImm, Imm: imm, Size: size}
		return in, nil
	case 0xC8:
		sz, ok := d.u16()
		if !ok {
			return d.fail()
		}
		lvl, ok := d.u8()
		if !ok {
			return d.fail()
		}
		in := d.inst(KindEnter)
		in.Src = Operand{Kind: OperImm, Imm: uint64(sz)}
		in.Count = Operand{Kind: OperImm, Imm: uint64(lvl)}
		return in, nil
	case 0xC9:
		return d.inst(KindLeave), nil
	case 0xCC:
		in := d.inst(KindInt)
		in.Src = Operand{Kind: OperImm, Imm: 3}
		return in, nil
	case 0xCD:
		vec, ok := d.u8()
		if !ok {
			return d.fail()
		}
		in := d.inst(KindInt)
		in.Src = Operand{Kind: OperImm, Imm: uint64(vec)}
		return in, nil
	case 0xCE:
		return d.inst(KindInto), nil
	case 0xCF:
		return d.inst(KindIRet), nil
	case 0xE4, 0xE5:
		port, ok := d.u8()
		if !ok {
			return d.fail()
		}
		size := 1
		if b == 0xE5 {
			size = d.opSize()
		}
		in := d.inst(KindIn)
		in.Size = size
		in.Src = Operand{Kind: OperImm, Imm: uint64(port), Size: 2}
		return in, nil
	case 0xE6, 0xE7:
		port, ok := d.u8()
		if !ok {
			return d.fail()
		}
		size := 1
		if b == 0xE7 {
			size = d.opSize()
		}
		in := d.inst(KindOut)
		in.Size = size
		in.Dst = Operand{Kind: OperImm, Imm: uint64(port), Size: 2}
		return in, nil
	case 0xE8:
		rel, ok := d.immSized(d.opSize(), true)
		if !ok {
			return d.fail()
		}
		in := d.inst(KindCall)
		in.Src = Operand{Kind: OperRel, Imm: rel}
		return in, nil
	case 0xE9:
		rel, ok := d.immSized(d.opSize(), true)
		if !ok {
			return d.fail()
		}
		in := d.inst(KindJmp)
		in.Src = Operand{Kind: OperRel, Imm: rel}
		return in, nil
	case 0xEB:
		rel, ok := d.immSized(1, true)
		if !ok {
			return d.fail()
		}
		in := d.inst(KindJmp)
		in.Src = Operand{Kind: OperRel, Imm: rel}
		return in, nil
	case 0xEC, 0xED:
		size := 1
		if b == 0xED {
			size = d.opSize()
		}
		in := d.inst(KindIn)
		in.Size = size
		in.Src = Operand{Kind: OperReg, Reg: regEDX, Size: 2}
		return in, nil
	case 0xEE, 0xEF:
		size := 1
		if b == 0xEF {
			size = d.opSize()
		}
		in := d.inst(KindOut)
		in.Size = size
		in.Dst = Operand{Kind: OperReg, Reg: regEDX, Size: 2}
		return in, nil
	case 0xF4:
		return d.inst(KindHlt), nil
	case 0xF5:
		return d.inst(KindCmc), nil
	case 0xF6, 0xF7:
		return d.group3(b)
	case 0xF8:
		return d.inst(KindClc), nil
	case 0xF9:
		return d.inst(KindStc), nil
	case 0xFA:
		return d.inst(KindCli), nil
	case 0xFB:
		return d.inst(KindSti), nil
	case 0xFC:
		return d.inst(KindCld), nil
	case 0xFD:
		return d.inst(KindStd), nil
	case 0xFE:
		reg, rm, ok := d.modrm(1)
		if !ok {
			return d.fail()
		}
		in := d.inst(KindInc)
		if reg == 1 {
			in.Kind = KindDec
		}
		in.Size = 1
		in.Dst = rm
		return in, nil
	case 0xFF:
		return d.group5()
	}

	return nil, fmt.Errorf("decode: unsupported opcode %#x", b)
}
