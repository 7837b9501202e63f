package decode

import "github.com/rcornwell/pce/internal/cpu"

// decoder carries the running state of one Decode call: the code buffer,
// the read cursor, and the effective sizes/overrides accumulated from
// prefixes seen so far.
type decoder struct {
	code []byte
	pos  int

	addrSize32 bool
	operSize32 bool
	allow32    bool

	seg      cpu.Segment
	hasSeg   bool
	rep      byte
}

func (d *decoder) u8() (uint8, bool) {
	if d.pos >= len(d.code) {
		return 0, false
	}
	v := d.code[d.pos]
	d.pos++
	return v, true
}

func (d *decoder) u16() (uint16, bool) {
	if d.pos+2 > len(d.code) {
		return 0, false
	}
	v := uint16(d.code[d.pos]) | uint16(d.code[d.pos+1])<<8
	d.pos += 2
	return v, true
}

func (d *decoder) u32() (uint32, bool) {
	if d.pos+4 > len(d.code) {
		return 0, false
	}
	v := uint32(d.code[d.pos]) | uint32(d.code[d.pos+1])<<8 | uint32(d.code[d.pos+2])<<16 | uint32(d.code[d.pos+3])<<24
	d.pos += 4
	return v, true
}

// immSized reads an immediate of the given width (1, 2 or 4 bytes),
// sign-extended to uint64 if signExtend is set.
func (d *decoder) immSized(size int, signExtend bool) (uint64, bool) {
	switch size {
	case 1:
		v, ok := d.u8()
		if signExtend {
			return uint64(int64(int8(v))), ok
		}
		return uint64(v), ok
	case 2:
		v, ok := d.u16()
		if signExtend {
			return uint64(int64(int16(v))), ok
		}
		return uint64(v), ok
	default:
		v, ok := d.u32()
		if signExtend {
			return uint64(int64(int32(v))), ok
		}
		return uint64(v), ok
	}
}

// rm16Base and rm16Index give the base/index register pair (as GPR indices) for each
// of the eight classic 8086 r/m encodings; index -1 means "none".
var rm16Base = [8]int{regEBX, regEBX, regEBP, regEBP, regESI, regEDI, regEBP, regEBX}
var rm16Index = [8]int{regESI, regEDI, regESI, regEDI, -1, -1, -1, -1}

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

// modrm reads a ModRM byte (and SIB/displacement if present) and returns
// the register-field index and the decoded r/m Operand. size is the
// operand size to attach to a register-form r/m or a memory Operand.
func (d *decoder) modrm(size int) (regField int, rm Operand, ok bool) {
	b, ok := d.u8()
	if !ok {
		return 0, Operand{}, false
	}
	mod := int(b >> 6)
	regField = int(b>>3) & 7
	rmField := int(b) & 7

	if mod == 3 {
		return regField, Operand{Kind: OperReg, Reg: rmField, Size: size}, true
	}

	seg := d.effectiveSeg(rmField, mod)

	if d.addrSize32 {
		rm, ok = d.modrm32(mod, rmField, size, seg)
		return regField, rm, ok
	}
	rm, ok = d.modrm16(mod, rmField, size, seg)
	return regField, rm, ok
}

// effectiveSeg returns the default segment for a memory r/m encoding
// (SS for any form based on BP, DS otherwise), overridden by a segment
// prefix if one was seen.
func (d *decoder) effectiveSeg(rmField int, mod int) cpu.Segment {
	if d.hasSeg {
		return d.seg
	}
	if !d.addrSize32 {
		if rmField == 2 || rmField == 3 || (rmField == 6 && mod != 0) {
			return cpu.SegSS
		}
		if rmField == 6 && mod == 0 {
			return cpu.SegDS // disp16-only form, no base
		}
	} else if rmField == regEBP && mod != 0 { // SIB base=EBP is handled in modrm32
		return cpu.SegSS
	}
	return cpu.SegDS
}

func (d *decoder) modrm16(mod, rmField, size int, seg cpu.Segment) (Operand, bool) {
	m := MemOperand{Seg: seg}
	if mod == 0 && rmField == 6 {
		disp, ok := d.u16()
		if !ok {
			return Operand{}, false
		}
		m.Disp = uint32(disp)
		return Operand{Kind: OperMem, Mem: m, Size: size}, true
	}
	m.BaseReg = rm16Base[rmField]
	m.HasBase = true
	if idx := rm16Index[rmField]; idx >= 0 {
		m.IndexReg = idx
		m.HasIndex = true
		m.Scale = 1
	}
	switch mod {
	case 1:
		disp, ok := d.u8()
		if !ok {
			return Operand{}, false
		}
		m.Disp = uint32(int32(int8(disp)))
	case 2:
		disp, ok := d.u16()
		if !ok {
			return Operand{}, false
		}
		m.Disp = uint32(int32(int16(disp)))
	}
	return Operand{Kind: OperMem, Mem: m, Size: size}, true
}

var scaleTable = [4]int{1, 2, 4, 8}

func (d *decoder) modrm32(mod, rmField, size int, seg cpu.Segment) (Operand, bool) {
	m := MemOperand{Seg: seg}

	if rmField == regESP { // SIB follows
		sib, ok := d.u8()
		if !ok {
			return Operand{}, false
		}
		scale := sib >> 6
		index := int(sib>>3) & 7
		base := int(sib) & 7

		if index != regESP { // ESP as index means "no index"
			m.IndexReg = index
			m.HasIndex = true
			m.Scale = scaleTable[scale]
		}
		if base == regEBP && mod == 0 {
			disp, ok := d.u32()
			if !ok {
				return Operand{}, false
			}
			m.Disp = disp
		} else {
			m.BaseReg = base
			m.HasBase = true
			if base == regEBP && !d.hasSeg {
				m.Seg = cpu.SegSS
			}
		}
	} else if rmField == regEBP && mod == 0 {
		disp, ok := d.u32()
		if !ok {
			return Operand{}, false
		}
		m.Disp = disp
	} else {
		m.BaseReg = rmField
		m.HasBase = true
		if rmField == regEBP && !d.hasSeg {
			m.Seg = cpu.SegSS
		}
	}

	switch mod {
	case 1:
		disp, ok := d.u8()
		if !ok {
			return Operand{}, false
		}
		m.Disp += uint32(int32(int8(disp)))
	case 2:
		disp, ok := d.u32()
		if !ok {
			return Operand{}, false
		}
		m.Disp += disp
	}
	return Operand{Kind: OperMem, Mem: m, Size: size}, true
}
