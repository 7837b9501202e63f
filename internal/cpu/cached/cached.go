// Package cached implements the block-cached interpreter backend: basic
// blocks of decoded instructions are kept in a map keyed by their
// starting physical (CS-relative linear) address, so a hot loop is
// decoded once and merely replayed on every later pass instead of being
// re-fetched and re-decoded from raw bytes each time. Execution of each
// decoded instruction still goes through the same semantics as the plain
// interpreter; only the decode step is memoized.
package cached

import (
	"github.com/rcornwell/pce/internal/cpu"
	"github.com/rcornwell/pce/internal/cpu/decode"
	"github.com/rcornwell/pce/internal/cpu/interpreter"
)

// block is a run of instructions decoded from consecutive addresses,
// ending at the first control-flow instruction (or the scan length
// limit, whichever comes first).
type block struct {
	instrs []*decode.Instruction
}

// maxBlockLength bounds how many instructions one cache entry holds, so a
// pathological straight-line run (no branch for thousands of bytes)
// doesn't grow a single block without limit.
const maxBlockLength = 64

// Cached is the block-cached backend.
type Cached struct {
	interp *interpreter.Interpreter
	blocks map[uint32]*block
}

// New builds a Cached backend over the given CPU.
func New(c *cpu.CPU) *Cached {
	return &Cached{interp: interpreter.New(c), blocks: make(map[uint32]*block)}
}

// CPU returns the underlying register/bus state.
func (ca *Cached) CPU() *cpu.CPU { return ca.interp.CPU() }

// FlushCodeCache discards every cached block whose start address falls
// within the 4KiB page starting at pageBase. Bus wires this in via
// SetCodeInvalidateCallback whenever a write lands on a page a backend
// marked as containing code.
func (ca *Cached) FlushCodeCache(pageBase uint32) {
	for addr := range ca.blocks {
		if addr >= pageBase && addr < pageBase+4096 {
			delete(ca.blocks, addr)
		}
	}
}

// Run executes instructions, decoding a fresh block on a cache miss and
// replaying cached blocks on a hit, until the cycle slice is exhausted.
func (ca *Cached) Run(cycles int64) int64 {
	c := ca.CPU()
	c.BeginSlice(cycles)
	for c.Remaining() > 0 {
		if vec, ok := c.PendingInterrupt(); ok {
			ca.interp.Raise(&cpu.Fault{Vector: vec})
			c.AckInterrupt(vec)
		}
		if c.Halted {
			c.ChargeCycles(c.Remaining())
			break
		}
		if ca.runOneBlock() {
			break
		}
	}
	return cycles - c.Remaining()
}

// runOneBlock executes (building if necessary) the block starting at the
// current fetch address, stopping as soon as the slice is exhausted or a
// branch redirects control flow, and reports whether the slice ran out.
func (ca *Cached) runOneBlock() bool {
	c := ca.CPU()
	startAddr := ca.interp.FetchAddr()
	b, ok := ca.blocks[startAddr]
	if !ok {
		b = ca.decodeBlock(startAddr)
		ca.blocks[startAddr] = b
		c.Bus.MarkPageAsCode(startAddr &^ 0xFFF)
	}
	if len(b.instrs) == 0 {
		// The first instruction failed to decode: raise #UD the way the
		// interpreter's own step does.
		ca.interp.Raise(cpu.InvalidOpcodeFault())
		return c.ChargeCycles(1)
	}

	for _, ins := range b.instrs {
		if c.Halted {
			return false
		}
		cyclesUsed, fault := ca.interp.ExecuteDecoded(ins)
		if fault != nil {
			ca.interp.Raise(fault)
			return c.ChargeCycles(cyclesUsed)
		}
		if c.ChargeCycles(cyclesUsed) {
			return true
		}
		if EndsBlockControlFlow(ins) {
			// EIP has already been redirected (or fallen through) by
			// execution; the next iteration of Run looks up a block at
			// the new address.
			return false
		}
	}
	return false
}

func (ca *Cached) decodeBlock(startAddr uint32) *block {
	b := &block{}
	addr := startAddr
	for len(b.instrs) < maxBlockLength {
		ins, err := ca.interp.DecodeAt(addr)
		if err != nil {
			break
		}
		b.instrs = append(b.instrs, ins)
		if interpreter.EndsBlock(ins) {
			break
		}
		addr += uint32(ins.Len)
	}
	return b
}

// EndsBlockControlFlow reexports interpreter.EndsBlock under this
// package's naming for readability at call sites here.
func EndsBlockControlFlow(ins *decode.Instruction) bool { return interpreter.EndsBlock(ins) }
