package cpu

// EFLAGS bit positions, common to every mode this core supports.
const (
	FlagCF = 1 << 0
	FlagPF = 1 << 2
	FlagAF = 1 << 4
	FlagZF = 1 << 6
	FlagSF = 1 << 7
	FlagTF = 1 << 8
	FlagIF = 1 << 9
	FlagDF = 1 << 10
	FlagOF = 1 << 11
	FlagIOPL = 3 << 12
	FlagNT = 1 << 14
	FlagRF = 1 << 16
	FlagVM = 1 << 17
	FlagAC = 1 << 18
	FlagVIF = 1 << 19
	FlagVIP = 1 << 20
	FlagID = 1 << 21

	// flagsReserved1 is always set on 8086 and later; bit 1 of EFLAGS.
	flagsReserved1 = 1 << 1
)

var parityTable [256]bool

func init() {
	for i := range parityTable {
		bits := 0
		for v := i; v != 0; v >>= 1 {
			bits += v & 1
		}
		parityTable[i] = bits%2 == 0
	}
}

// setFlag sets or clears a single EFLAGS bit depending on cond.
func (r *RegisterFile) setFlag(bit uint32, cond bool) {
	if cond {
		r.EFLAGS |= bit
	} else {
		r.EFLAGS &^= bit
	}
}

func (r *RegisterFile) flag(bit uint32) bool { return r.EFLAGS&bit != 0 }

// SetFlag is the exported form of setFlag, for backends outside this
// package (every backend lives under internal/cpu/<name>, not here).
func (r *RegisterFile) SetFlag(bit uint32, cond bool) { r.setFlag(bit, cond) }

// Flag is the exported form of flag.
func (r *RegisterFile) Flag(bit uint32) bool { return r.flag(bit) }

// UpdateArithFlags is the exported form of updateArithFlags.
func (r *RegisterFile) UpdateArithFlags(a, b, result uint64, size int, isSub bool) {
	r.updateArithFlags(a, b, result, size, isSub)
}

// UpdateLogicFlags is the exported form of updateLogicFlags.
func (r *RegisterFile) UpdateLogicFlags(result uint64, size int) {
	r.updateLogicFlags(result, size)
}

// updateArithFlags computes SF/ZF/PF/CF/OF/AF for result, at the given
// operand width in bytes (1, 2, or 4), from the two source operands and
// whether the operation was a subtraction (needed for CF/OF polarity).
func (r *RegisterFile) updateArithFlags(a, b, result uint64, size int, isSub bool) {
	bits := uint(size * 8)
	mask := uint64(1)<<bits - 1
	res := result & mask
	signBit := uint64(1) << (bits - 1)

	r.setFlag(FlagZF, res == 0)
	r.setFlag(FlagSF, res&signBit != 0)
	r.setFlag(FlagPF, parityTable[res&0xFF])

	aSign := a&signBit != 0
	bSign := b&signBit != 0
	rSign := res&signBit != 0

	if isSub {
		r.setFlag(FlagCF, a < b)
		r.setFlag(FlagOF, aSign != bSign && rSign != aSign)
		r.setFlag(FlagAF, (a&0xF) < (b&0xF))
	} else {
		r.setFlag(FlagCF, res < (a&mask) || result > mask)
		r.setFlag(FlagOF, aSign == bSign && rSign != aSign)
		r.setFlag(FlagAF, (a&0xF)+(b&0xF) > 0xF)
	}
}

// updateLogicFlags sets the flags AND/OR/XOR/TEST leave behind: CF and OF
// cleared, SF/ZF/PF from the result, AF undefined (left untouched here,
// matching the "don't care" behavior real software never depends on).
func (r *RegisterFile) updateLogicFlags(result uint64, size int) {
	bits := uint(size * 8)
	mask := uint64(1)<<bits - 1
	res := result & mask
	signBit := uint64(1) << (bits - 1)

	r.setFlag(FlagCF, false)
	r.setFlag(FlagOF, false)
	r.setFlag(FlagZF, res == 0)
	r.setFlag(FlagSF, res&signBit != 0)
	r.setFlag(FlagPF, parityTable[res&0xFF])
}
