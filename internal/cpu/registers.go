package cpu

// Segment identifies one of the six segment registers.
type Segment int

const (
	SegES Segment = iota
	SegCS
	SegSS
	SegDS
	SegFS
	SegGS
	segCount
)

// SegmentDescriptor is the shadow copy of a loaded segment: the base,
// limit, and access-rights bits a real CPU caches alongside the visible
// 16-bit selector so that every memory reference doesn't need a GDT/LDT
// walk. Real mode loads synthesize one of these from the selector value
// directly (base = selector<<4, limit = 0xFFFF).
type SegmentDescriptor struct {
	Selector uint16
	Base     uint32
	Limit    uint32
	Access   uint16
	Big      bool // D/B bit: 32-bit default operand/address size
	Present  bool
}

// DescriptorTableRegister backs GDTR/IDTR: a linear base and a byte limit.
type DescriptorTableRegister struct {
	Base  uint32
	Limit uint16
}

// CR0 bits this core reads. The rest of CR0 (MP/EM/TS/ET/NE/WP/AM/NW/CD)
// is stored but never consulted by any backend.
const (
	CR0PE uint32 = 1 << 0  // protection enable: gates segment/descriptor checks
	CR0PG uint32 = 1 << 31 // paging enable: gates linear-to-physical translation
)

// RegisterFile holds every piece of architectural state a backend needs
// to execute instructions: general registers, instruction pointer, flags,
// segment shadow cache, control/debug registers, and the descriptor table
// registers. All backends (interpreter, cached, recompiler) share one of
// these; only how they walk from one instruction to the next differs.
type RegisterFile struct {
	// General-purpose registers, addressable as 32/16/8-bit views via the
	// accessor methods below. Index order matches the ModRM reg/rm
	// encoding: AX, CX, DX, BX, SP, BP, SI, DI.
	GPR [8]uint32

	EIP    uint32
	EFLAGS uint32

	Seg [segCount]SegmentDescriptor

	GDTR DescriptorTableRegister
	IDTR DescriptorTableRegister
	LDTR SegmentDescriptor
	TR   SegmentDescriptor

	CR0, CR2, CR3, CR4 uint32
	DR                 [8]uint32

	// OperandSize32/AddressSize32 reflect the *current* instruction's
	// effective sizes after prefix decoding, not just the segment's
	// default (CS.Big); decoders fill these in per instruction.
	OperandSize32 bool
	AddressSize32 bool
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

// GPR32 returns the full 32-bit value of general register i.
func (r *RegisterFile) GPR32(i int) uint32 { return r.GPR[i] }

// SetGPR32 sets the full 32-bit value of general register i.
func (r *RegisterFile) SetGPR32(i int, v uint32) { r.GPR[i] = v }

// GPR16 returns the low 16 bits of general register i.
func (r *RegisterFile) GPR16(i int) uint16 { return uint16(r.GPR[i]) }

// SetGPR16 sets the low 16 bits of general register i, leaving the upper
// 16 bits of the underlying 32-bit register untouched (real 386+
// behavior; 8086 mode never has upper bits to preserve).
func (r *RegisterFile) SetGPR16(i int, v uint16) {
	r.GPR[i] = r.GPR[i]&0xFFFF0000 | uint32(v)
}

// GPR8 returns one of the eight 8-bit register views available without a
// REX prefix: AL,CL,DL,BL,AH,CH,DH,BH.
func (r *RegisterFile) GPR8(i int) uint8 {
	if i < 4 {
		return uint8(r.GPR[i])
	}
	return uint8(r.GPR[i-4] >> 8)
}

// SetGPR8 sets one of the eight 8-bit register views.
func (r *RegisterFile) SetGPR8(i int, v uint8) {
	if i < 4 {
		r.GPR[i] = r.GPR[i]&0xFFFFFF00 | uint32(v)
		return
	}
	r.GPR[i-4] = r.GPR[i-4]&0xFFFF00FF | uint32(v)<<8
}

// LoadSegmentReal loads seg with the real-mode (or unpaged flat) shadow
// derived directly from a 16-bit selector: base = selector<<4, a full
// 64KiB limit, present and accessible.
func (r *RegisterFile) LoadSegmentReal(seg Segment, selector uint16) {
	r.Seg[seg] = SegmentDescriptor{
		Selector: selector,
		Base:     uint32(selector) << 4,
		Limit:    0xFFFF,
		Present:  true,
	}
}

// LinearAddress computes the linear address of offset within seg,
// wrapping at 2^32 the way real hardware's segment adder does.
func (r *RegisterFile) LinearAddress(seg Segment, offset uint32) uint32 {
	return r.Seg[seg].Base + offset
}

// Reset restores power-on architectural state: CS = 0xF000 based at
// 0xFFFF0000 on 386+ (0xF0000 in pure real mode; this core uses the
// 386+ convention and lets BIOS ROM mapping decide what's actually
// there), EIP = 0xFFF0, EFLAGS with the reserved bit 1 set, CRs clear
// except the reserved bits in CR0.
func (r *RegisterFile) Reset() {
	*r = RegisterFile{}
	r.EFLAGS = flagsReserved1
	r.EIP = 0xFFF0
	r.LoadSegmentReal(SegCS, 0xF000)
	r.Seg[SegCS].Base = 0xFFFF0000
	for _, s := range []Segment{SegDS, SegES, SegSS, SegFS, SegGS} {
		r.LoadSegmentReal(s, 0)
	}
	r.CR0 = 0x60000010
}
