package interpreter

import "github.com/rcornwell/pce/internal/cpu/decode"

// InstructionCost is the exported form of instructionCost, for backends
// (the recompiler's fast-path emitters) that need a cost estimate for an
// instruction they execute themselves instead of through ExecuteDecoded.
func InstructionCost(ins *decode.Instruction) int64 { return instructionCost(ins) }

// instructionCost gives an approximate cycle cost per decoded Kind. Real
// 8086/386 timings depend on addressing mode, alignment, and even which
// specific model; this table captures the coarse shape (memory operands
// cost more than register ones, string/loop forms cost more per element)
// without attempting cycle-exact accuracy, which no two real chips in
// this family agree on anyway.
func instructionCost(ins *decode.Instruction) int64 {
	base := int64(2)
	switch ins.Kind {
	case decode.KindMov, decode.KindNop, decode.KindClc, decode.KindStc,
		decode.KindCli, decode.KindSti, decode.KindCld, decode.KindStd, decode.KindCmc:
		base = 2
	case decode.KindALU, decode.KindTest, decode.KindInc, decode.KindDec, decode.KindXchg:
		base = 3
	case decode.KindJmp, decode.KindJcc, decode.KindLoop:
		base = 4
	case decode.KindCall, decode.KindRet, decode.KindIRet, decode.KindInt:
		base = 8
	case decode.KindPush, decode.KindPop:
		base = 3
	case decode.KindMul, decode.KindImul:
		base = 13
	case decode.KindDiv, decode.KindIdiv:
		base = 22
	case decode.KindIn, decode.KindOut:
		base = 6
	case decode.KindMovs, decode.KindCmps, decode.KindStos, decode.KindLods, decode.KindScas:
		base = 5
	case decode.KindHlt:
		base = 2
	}
	if ins.Dst.Kind == decode.OperMem || ins.Src.Kind == decode.OperMem {
		base += 3
	}
	return base
}
