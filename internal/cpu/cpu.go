// Package cpu holds the architectural state and execution contract shared
// by every backend (interpreter, cached interpreter, recompiler). A
// backend owns none of the register file itself; it is handed a *CPU and
// drives it forward one slice of cycles at a time.
package cpu

import "github.com/rcornwell/pce/internal/bus"

// MemReader is the narrow view of Bus a decoder needs to fetch
// instruction bytes: unchecked byte reads through the code segment.
type MemReader interface {
	ReadByteUnchecked(addr uint32) uint8
}

// Backend is the shared contract all three execution strategies satisfy.
// System drives whichever backend the active system class selects through
// this interface alone, so switching backends never requires touching
// the orchestrator.
type Backend interface {
	// Run executes instructions until at least cycles have elapsed or a
	// fault/halt condition stops it early, and returns the number of
	// cycles actually consumed.
	Run(cycles int64) int64
	// FlushCodeCache discards any decoded/compiled blocks keyed off of
	// physical pages; called by Bus's code-invalidation callback.
	FlushCodeCache(pageBase uint32)
	CPU() *CPU
}

// CPU is the register file plus the bookkeeping every backend needs:
// the bus it executes against, pending hardware interrupt state, and
// cycle accounting for the current slice.
type CPU struct {
	Regs RegisterFile
	Bus  *bus.Bus

	// Halted is true after HLT, cleared by any unmasked interrupt.
	Halted bool

	// irqPending and irqVector model a single pending external interrupt
	// line, raised by SetIRQState and consumed at instruction boundaries
	// when EFLAGS.IF is set.
	irqPending bool
	irqVector  Vector
	nmiPending bool

	// downcount is the number of cycles remaining in the current Run
	// slice; backends decrement it per instruction and return when it
	// reaches zero or goes negative (an instruction's cost overran the
	// slice, the same "ran a little over" allowance the scheduler models
	// with TimingEvent.InvokeEarly on the read side).
	downcount int64

	// cyclesFor frequency conversion; cycle costs are themselves returned
	// by each backend's instruction cost table.
	FrequencyHz float64

	// Is386Plus selects which of the two decoders (decode.Decode16 vs
	// decode.Decode32) backends use to fetch instructions. It reflects
	// the simulated CPU model, not anything toggled by running code.
	Is386Plus bool
}

// NewCPU builds a CPU wired to the given Bus, in the power-on state.
// is386Plus selects the 80386+ decoder (operand/address size prefixes,
// 32-bit addressing) over the 8086/80186 one.
func NewCPU(b *bus.Bus, frequencyHz float64, is386Plus bool) *CPU {
	c := &CPU{Bus: b, FrequencyHz: frequencyHz, Is386Plus: is386Plus}
	c.Regs.Reset()
	return c
}

// Reset restores power-on architectural state and clears halt/interrupt
// latches.
func (c *CPU) Reset() {
	c.Regs.Reset()
	c.Halted = false
	c.irqPending = false
	c.nmiPending = false
}

// SetIRQState raises or lowers the single external interrupt request
// line modeled here; vector is latched only while asserted.
func (c *CPU) SetIRQState(asserted bool, vector Vector) {
	c.irqPending = asserted
	c.irqVector = vector
	if asserted {
		c.Halted = false
	}
}

// SignalNMI latches a non-maskable interrupt, serviced regardless of
// EFLAGS.IF at the next instruction boundary.
func (c *CPU) SignalNMI() {
	c.nmiPending = true
	c.Halted = false
}

// PendingInterrupt reports whether an interrupt should be serviced before
// the next instruction, and which vector, NMI taking priority over the
// maskable line.
func (c *CPU) PendingInterrupt() (Vector, bool) {
	if c.nmiPending {
		return VectorNMI, true
	}
	if c.irqPending && c.Regs.flag(FlagIF) {
		return c.irqVector, true
	}
	return 0, false
}

// AckInterrupt clears the latch for the vector just serviced.
func (c *CPU) AckInterrupt(v Vector) {
	if v == VectorNMI {
		c.nmiPending = false
		return
	}
	c.irqPending = false
}

// BeginSlice arms the downcount for a new Run call.
func (c *CPU) BeginSlice(cycles int64) { c.downcount = cycles }

// ChargeCycles deducts an instruction's cost from the slice and reports
// whether the slice is exhausted.
func (c *CPU) ChargeCycles(n int64) bool {
	c.downcount -= n
	return c.downcount <= 0
}

// Remaining returns how many cycles are left in the current slice
// (negative once a costly instruction has overrun it).
func (c *CPU) Remaining() int64 { return c.downcount }
