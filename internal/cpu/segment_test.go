package cpu_test

import (
	"testing"

	"github.com/rcornwell/pce/internal/bus"
	"github.com/rcornwell/pce/internal/cpu"
)

func newProtectedCPU(t *testing.T) *cpu.CPU {
	t.Helper()
	b := bus.New(20, 1024*1024)
	c := cpu.NewCPU(b, 4_772_727, true)
	c.Regs.CR0 |= cpu.CR0PE
	c.Regs.GDTR = cpu.DescriptorTableRegister{Base: 0x1000, Limit: 0xFF}
	return c
}

// writeDescriptor packs an 8-byte GDT/LDT entry at base+index*8.
func writeDescriptor(b *bus.Bus, base uint32, index uint32, limit, addr uint32, access, flags uint8) {
	lo := (limit & 0xFFFF) | (addr&0xFFFF)<<16
	hi := ((addr >> 16) & 0xFF) | uint32(access)<<8 | (uint32(limit>>16)&0xF)<<16 | uint32(flags)<<20 | (addr>>24)<<24
	off := base + index*8
	b.WriteDwordUnchecked(off, lo)
	b.WriteDwordUnchecked(off+4, hi)
}

func TestLoadSegmentRealModeBypassesDescriptorTable(t *testing.T) {
	b := bus.New(20, 1024*1024)
	c := cpu.NewCPU(b, 4_772_727, false)
	if f := c.LoadSegment(cpu.SegDS, 0x1234); f != nil {
		t.Fatalf("unexpected fault in real mode: %v", f)
	}
	if got := c.Regs.Seg[cpu.SegDS].Base; got != 0x12340 {
		t.Fatalf("DS base = %#x, want 0x12340", got)
	}
}

func TestLoadSegmentNullSelectorIntoCSFaults(t *testing.T) {
	c := newProtectedCPU(t)
	f := c.LoadSegment(cpu.SegCS, 0)
	if f == nil || f.Vector != cpu.VectorGP {
		t.Fatalf("LoadSegment(CS, 0) = %v, want #GP", f)
	}
}

func TestLoadSegmentNullSelectorIntoDSIsUnusableNotFault(t *testing.T) {
	c := newProtectedCPU(t)
	f := c.LoadSegment(cpu.SegDS, 0)
	if f != nil {
		t.Fatalf("LoadSegment(DS, 0) = %v, want no fault", f)
	}
	if c.Regs.Seg[cpu.SegDS].Present {
		t.Fatal("null DS selector should leave the segment marked not present")
	}
}

func TestLoadSegmentBeyondGDTLimitFaults(t *testing.T) {
	c := newProtectedCPU(t)
	// Selector index 0x40 -> byte offset 0x200, past the 0xFF limit.
	f := c.LoadSegment(cpu.SegDS, 0x40<<3)
	if f == nil || f.Vector != cpu.VectorGP {
		t.Fatalf("LoadSegment beyond GDT limit = %v, want #GP", f)
	}
}

func TestLoadSegmentNotPresentIntoSSFaultsSS(t *testing.T) {
	c := newProtectedCPU(t)
	writeDescriptor(c.Bus, c.Regs.GDTR.Base, 1, 0xFFFF, 0x2000, 0x92&^0x80, 0xC)
	f := c.LoadSegment(cpu.SegSS, 1<<3)
	if f == nil || f.Vector != cpu.VectorSS {
		t.Fatalf("LoadSegment(SS, not-present) = %v, want #SS", f)
	}
}

func TestLoadSegmentNotPresentIntoDSFaultsNP(t *testing.T) {
	c := newProtectedCPU(t)
	writeDescriptor(c.Bus, c.Regs.GDTR.Base, 1, 0xFFFF, 0x2000, 0x92&^0x80, 0xC)
	f := c.LoadSegment(cpu.SegDS, 1<<3)
	if f == nil || f.Vector != cpu.VectorNP {
		t.Fatalf("LoadSegment(DS, not-present) = %v, want #NP", f)
	}
}

func TestLoadSegmentPresentDescriptorPopulatesShadow(t *testing.T) {
	c := newProtectedCPU(t)
	// Present, 32-bit data segment, byte-granular limit 0x3000, base 0x12340000.
	writeDescriptor(c.Bus, c.Regs.GDTR.Base, 2, 0x3000, 0x12340000, 0x92, 0x4)
	f := c.LoadSegment(cpu.SegDS, 2<<3)
	if f != nil {
		t.Fatalf("unexpected fault: %v", f)
	}
	desc := c.Regs.Seg[cpu.SegDS]
	if !desc.Present {
		t.Fatal("descriptor should be present")
	}
	if desc.Base != 0x12340000 {
		t.Fatalf("base = %#x, want 0x12340000", desc.Base)
	}
	if desc.Limit != 0x3000 {
		t.Fatalf("limit = %#x, want 0x3000", desc.Limit)
	}
	if !desc.Big {
		t.Fatal("D/B bit should mark this a 32-bit segment")
	}
}

func TestLoadSegmentGranularDescriptorExpandsLimit(t *testing.T) {
	c := newProtectedCPU(t)
	// Granularity bit set: a page-granular limit of 0xF should expand to 0xFFFF.
	writeDescriptor(c.Bus, c.Regs.GDTR.Base, 3, 0xF, 0, 0x92, 0x8)
	f := c.LoadSegment(cpu.SegDS, 3<<3)
	if f != nil {
		t.Fatalf("unexpected fault: %v", f)
	}
	if got := c.Regs.Seg[cpu.SegDS].Limit; got != 0xFFFF {
		t.Fatalf("granular limit = %#x, want 0xFFFF", got)
	}
}

func TestTranslateIdentityWhenPagingDisabled(t *testing.T) {
	b := bus.New(20, 1024*1024)
	c := cpu.NewCPU(b, 4_772_727, true)
	phys, f := c.Translate(0xABCD1234, false)
	if f != nil {
		t.Fatalf("unexpected fault with paging disabled: %v", f)
	}
	if phys != 0xABCD1234 {
		t.Fatalf("phys = %#x, want identity mapping", phys)
	}
}

func TestTranslateNotPresentPDEFaults(t *testing.T) {
	b := bus.New(20, 1024*1024)
	c := cpu.NewCPU(b, 4_772_727, true)
	c.Regs.CR0 |= cpu.CR0PG
	c.Regs.CR3 = 0x3000
	// PDE entry 0 left zero (not present).
	_, f := c.Translate(0x1000, false)
	if f == nil || f.Vector != cpu.VectorPF {
		t.Fatalf("Translate with absent PDE = %v, want #PF", f)
	}
	if f.FaultAddress != 0x1000 {
		t.Fatalf("CR2 = %#x, want 0x1000", f.FaultAddress)
	}
	if f.ErrorCode&1 != 0 {
		t.Fatal("present bit should be clear in the error code: the PDE itself was not present")
	}
}

func TestTranslateWriteToReadOnlyPageFaults(t *testing.T) {
	b := bus.New(20, 1024*1024)
	c := cpu.NewCPU(b, 4_772_727, true)
	c.Regs.CR0 |= cpu.CR0PG
	c.Regs.CR3 = 0x3000
	b.WriteDwordUnchecked(0x3000, 0x4000|1)    // PDE 0: present, points at PT 0x4000
	b.WriteDwordUnchecked(0x4000, 0x5000|1)    // PTE 0: present, read-only (no bit 1)

	_, f := c.Translate(0, true)
	if f == nil || f.Vector != cpu.VectorPF {
		t.Fatalf("write to read-only page = %v, want #PF", f)
	}
	if f.ErrorCode&0x1 == 0 {
		t.Fatal("present bit should be set: both PDE and PTE were present")
	}
	if f.ErrorCode&0x2 == 0 {
		t.Fatal("write bit should be set in the error code")
	}
}

func TestTranslateSuccessfulWalk(t *testing.T) {
	b := bus.New(20, 1024*1024)
	c := cpu.NewCPU(b, 4_772_727, true)
	c.Regs.CR0 |= cpu.CR0PG
	c.Regs.CR3 = 0x3000
	b.WriteDwordUnchecked(0x3000, 0x4000|1) // PDE 0
	b.WriteDwordUnchecked(0x4000, 0x5000|3) // PTE 0: present + writable

	phys, f := c.Translate(0x123, true)
	if f != nil {
		t.Fatalf("unexpected fault: %v", f)
	}
	if phys != 0x5123 {
		t.Fatalf("phys = %#x, want 0x5123", phys)
	}
}
