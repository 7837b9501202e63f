// Package decode turns a stream of instruction bytes into a decoded
// Instruction, for consumption by any of the three execution backends.
// Decode16 and Decode32 are the two entry points named in SPEC_FULL.md
// §4.3 (an 8086/80186 decoder and a 386+ decoder); both route through the
// same modrm/operand machinery here; they differ only in which prefixes
// and addressing forms are legal and what the default sizes are, which is
// exactly how real silicon differs between the two CPU families too, so
// one parametrized engine is a closer match to reality than two
// independently duplicated ones.
package decode

import (
	"github.com/rcornwell/pce/internal/cpu"
)

// Kind identifies the decoded operation. It is deliberately coarse: one
// Kind per distinct semantic action, with the addressed operands carried
// alongside rather than folded into hundreds of per-encoding constants.
type Kind int

const (
	KindInvalid Kind = iota
	KindALU          // ADD/OR/ADC/SBB/AND/SUB/XOR/CMP, ALUOp selects which
	KindMov
	KindMovSeg
	KindLea
	KindPush
	KindPop
	KindPushA
	KindPopA
	KindPushF
	KindPopF
	KindXchg
	KindInc
	KindDec
	KindNot
	KindNeg
	KindMul
	KindImul
	KindDiv
	KindIdiv
	KindTest
	KindShiftRotate // ShiftOp selects which of ROL/ROR/RCL/RCR/SHL/SHR/SAL/SAR
	KindJmp
	KindJmpFar
	KindJcc
	KindLoop
	KindCall
	KindCallFar
	KindRet
	KindRetFar
	KindIRet
	KindInt
	KindInto
	KindIn
	KindOut
	KindHlt
	KindCli
	KindSti
	KindClc
	KindStc
	KindCmc
	KindCld
	KindStd
	KindNop
	KindCbw
	KindCwd
	KindSahf
	KindLahf
	KindMovs
	KindCmps
	KindStos
	KindLods
	KindScas
	KindDaa
	KindDas
	KindAaa
	KindAas
	KindEnter
	KindLeave
	KindLoadPtr // LDS/LES
)

// ALUOp selects the ALU operation for KindALU/Grp1 and KindTest.
type ALUOp int

const (
	ALUAdd ALUOp = iota
	ALUOr
	ALUAdc
	ALUSbb
	ALUAnd
	ALUSub
	ALUXor
	ALUCmp
)

// ShiftOp selects the rotate/shift operation for KindShiftRotate.
type ShiftOp int

const (
	ShiftRol ShiftOp = iota
	ShiftRor
	ShiftRcl
	ShiftRcr
	ShiftShl
	ShiftShr
	ShiftSal
	ShiftSar
)

// OperandKind distinguishes how an Operand's value is produced.
type OperandKind int

const (
	OperNone OperandKind = iota
	OperReg
	OperSeg
	OperMem
	OperImm
	OperRel
)

// MemOperand describes an effective-address computation: seg:[base+index*scale+disp].
type MemOperand struct {
	Seg      cpu.Segment
	BaseReg  int
	HasBase  bool
	IndexReg int
	HasIndex bool
	Scale    int
	Disp     uint32
}

// Operand is one decoded source/destination. Size is in bytes (1, 2, or 4).
type Operand struct {
	Kind OperandKind
	Reg  int
	Mem  MemOperand
	Imm  uint64
	Size int
}

// Instruction is the fully decoded result of one Decode call.
type Instruction struct {
	Kind    Kind
	ALU     ALUOp
	Shift   ShiftOp
	Dst     Operand
	Src     Operand
	Count   Operand // third operand for shift-by-CL/imm8 and ENTER's second immediate
	Len     int
	Size    int // effective operand size in bytes for this instruction
	AddrSize int
	Cond    int  // condition code index for KindJcc/KindLoop variants (0=LOOPNZ,1=LOOPZ,2=LOOP,3=JCXZ)
	Seg     cpu.Segment
	HasSegOverride bool
	Rep     byte // 0, 0xF2 (REPNE), or 0xF3 (REP/REPE)
	Far     bool
}

// Mode parametrizes the shared decode engine.
type Mode struct {
	OperandSize32 bool // default (no prefix) operand size is 32 bits
	AddressSize32 bool // default (no prefix) address size is 32 bits
	Allow32       bool // 0x66/0x67 prefixes and 32-bit ModRM/SIB forms are legal (386+)
}

// Decode16 decodes one instruction for the 8086/80186 backend: 16-bit
// operands and addresses always, no 0x66/0x67 size-override prefixes (the
// silicon predates them), no SIB byte.
func Decode16(code []byte) (*Instruction, error) {
	return decode(code, Mode{OperandSize32: false, AddressSize32: false, Allow32: false})
}

// Decode32 decodes one instruction for the 386+ backend, honoring
// operand/address size override prefixes against the segment's default
// (big) size.
func Decode32(code []byte, segmentBig bool) (*Instruction, error) {
	return decode(code, Mode{OperandSize32: segmentBig, AddressSize32: segmentBig, Allow32: true})
}
