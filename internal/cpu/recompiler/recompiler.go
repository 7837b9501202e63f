// Package recompiler implements the third execution strategy named in
// SPEC_FULL.md: a "compiled" block cache built from two kinds of
// compiled step. Rather than emitting native machine code (no
// assembler/codegen library appears anywhere in the reference corpus
// this repo was grounded on, and hand-emitting one cannot be verified
// without running the toolchain), most instructions compile to a
// closure that threads straight into the interpreter's decode-once
// semantics (compiledStep, below). A proven-non-faulting subset
// (register ALU, INC/DEC, LEA, flag set/clear; see fastpath.go) compiles
// instead to a fastStep: its cost and EIP advance are folded into the
// block's pendingCycles/pendingEIP accumulator and only committed when a
// step that might fault is about to run, or the block ends. That
// deferred commit is this backend's version of a native recompiler's
// delayed-flags/delayed-EIP optimization, and the reason it is a
// distinct strategy from the cached backend's per-instruction replay
// rather than a relabeling of it.
package recompiler

import (
	"github.com/rcornwell/pce/internal/cpu"
	"github.com/rcornwell/pce/internal/cpu/decode"
	"github.com/rcornwell/pce/internal/cpu/interpreter"
)

// compiledStep is one closure-threaded instruction on the generic path:
// executing it runs the instruction against the live CPU state and
// reports its cost, or a fault that must abort the rest of the block.
type compiledStep func() (int64, *cpu.Fault)

// blockStep is one compiled instruction, either a fastStep (batched,
// non-faulting) or a generic compiledStep (settled immediately).
type blockStep struct {
	fast   fastStep
	isFast bool
	step   compiledStep
}

type compiledBlock struct {
	steps     []blockStep
	lastInstr *decode.Instruction // retained so EndsBlock checks don't need re-decoding
	byteSize  int
}

// arenaBudget caps the total number of decoded instructions held live
// across all compiled blocks before the whole cache is flushed and
// rebuilt from scratch; this stands in for the bump-allocated executable
// memory arena a native-code recompiler would need to reclaim, without
// actually allocating executable pages (Go gives no safe way to do that
// without cgo or unsafe machine-code writes, neither of which appears in
// the reference corpus either).
const arenaBudget = 1 << 16

const maxBlockLength = 64

// Recompiler is the closure-threaded block-cache backend.
type Recompiler struct {
	interp    *interpreter.Interpreter
	blocks    map[uint32]*compiledBlock
	arenaUsed int
}

// New builds a Recompiler backend over the given CPU.
func New(c *cpu.CPU) *Recompiler {
	return &Recompiler{interp: interpreter.New(c), blocks: make(map[uint32]*compiledBlock)}
}

// CPU returns the underlying register/bus state.
func (r *Recompiler) CPU() *cpu.CPU { return r.interp.CPU() }

// FlushCodeCache discards every compiled block whose start address falls
// in the invalidated page.
func (r *Recompiler) FlushCodeCache(pageBase uint32) {
	for addr, b := range r.blocks {
		if addr >= pageBase && addr < pageBase+4096 {
			r.arenaUsed -= len(b.steps)
			delete(r.blocks, addr)
		}
	}
}

func (r *Recompiler) flushAll() {
	r.blocks = make(map[uint32]*compiledBlock)
	r.arenaUsed = 0
}

// Run executes compiled blocks until the cycle slice is exhausted.
func (r *Recompiler) Run(cycles int64) int64 {
	c := r.CPU()
	c.BeginSlice(cycles)
	for c.Remaining() > 0 {
		if vec, ok := c.PendingInterrupt(); ok {
			r.interp.Raise(&cpu.Fault{Vector: vec})
			c.AckInterrupt(vec)
		}
		if c.Halted {
			c.ChargeCycles(c.Remaining())
			break
		}
		if r.runOneBlock() {
			break
		}
	}
	return cycles - c.Remaining()
}

// runOneBlock executes (compiling if necessary) the block at the current
// fetch address. Fast steps accumulate into pendingCycles/pendingEIP
// without touching CPU state; that batch is committed (register EIP
// advanced, cycles charged) right before a generic step runs and at the
// block's end, since a generic step is the only kind that can fault or
// observe EIP.
func (r *Recompiler) runOneBlock() bool {
	c := r.CPU()
	startAddr := r.interp.FetchAddr()
	b, ok := r.blocks[startAddr]
	if !ok {
		b = r.compileBlock(startAddr)
		r.blocks[startAddr] = b
		r.arenaUsed += len(b.steps)
		c.Bus.MarkPageAsCode(startAddr &^ 0xFFF)
		if r.arenaUsed > arenaBudget {
			r.flushAll()
			r.blocks[startAddr] = b
			r.arenaUsed = len(b.steps)
		}
	}
	if len(b.steps) == 0 {
		// The first instruction failed to decode: raise #UD the way the
		// interpreter's own step does.
		r.interp.Raise(cpu.InvalidOpcodeFault())
		return c.ChargeCycles(1)
	}

	var pendingCycles int64
	var pendingEIP uint32
	commit := func() bool {
		if pendingCycles == 0 && pendingEIP == 0 {
			return false
		}
		c.Regs.EIP += pendingEIP
		pendingEIP = 0
		used := pendingCycles
		pendingCycles = 0
		return c.ChargeCycles(used)
	}

	for i, bs := range b.steps {
		if c.Halted {
			return false
		}

		if bs.isFast {
			bs.fast.run(&c.Regs)
			pendingEIP += bs.fast.eipDelta
			pendingCycles += bs.fast.cycles
			if i == len(b.steps)-1 {
				return commit()
			}
			continue
		}

		if commit() {
			return true
		}
		cyclesUsed, fault := bs.step()
		if fault != nil {
			r.interp.Raise(fault)
			return c.ChargeCycles(cyclesUsed)
		}
		if c.ChargeCycles(cyclesUsed) {
			return true
		}
		if i == len(b.steps)-1 && interpreter.EndsBlock(b.lastInstr) {
			return false
		}
	}
	return false
}

func (r *Recompiler) compileBlock(startAddr uint32) *compiledBlock {
	b := &compiledBlock{}
	addr := startAddr
	for len(b.steps) < maxBlockLength {
		ins, err := r.interp.DecodeAt(addr)
		if err != nil {
			break
		}
		captured := ins
		if fs, ok := buildFastStep(captured); ok {
			b.steps = append(b.steps, blockStep{fast: fs, isFast: true})
		} else {
			b.steps = append(b.steps, blockStep{step: func() (int64, *cpu.Fault) {
				return r.interp.ExecuteDecoded(captured)
			}})
		}
		b.lastInstr = ins
		b.byteSize += ins.Len
		if interpreter.EndsBlock(ins) {
			break
		}
		addr += uint32(ins.Len)
	}
	return b
}
