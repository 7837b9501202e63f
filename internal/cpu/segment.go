package cpu

// LoadSegment loads seg with selector, synthesizing a real-mode shadow
// when CR0.PE is clear and walking the GDT/LDT for a real descriptor
// otherwise. Callers that already know they're in real mode (power-on
// reset, the real-mode IVT dispatch path) use RegisterFile.LoadSegmentReal
// directly instead; this is the checked path every MOV Sreg/POP Sreg/far
// control transfer and IRET must go through once protected mode is live.
func (c *CPU) LoadSegment(seg Segment, selector uint16) *Fault {
	if c.Regs.CR0&CR0PE == 0 {
		c.Regs.LoadSegmentReal(seg, selector)
		return nil
	}
	return c.loadSegmentProtected(seg, selector)
}

func (c *CPU) loadSegmentProtected(seg Segment, selector uint16) *Fault {
	index := uint32(selector >> 3)
	fromLDT := selector&4 != 0
	errCode := uint32(selector) &^ 3

	if index == 0 && !fromLDT {
		if seg == SegCS || seg == SegSS {
			return GeneralProtectionFault(errCode)
		}
		// A null selector may be loaded into DS/ES/FS/GS; the segment
		// becomes unusable (Present false) but the load itself doesn't fault.
		c.Regs.Seg[seg] = SegmentDescriptor{Selector: selector}
		return nil
	}

	var tableBase, tableLimit uint32
	if fromLDT {
		tableBase, tableLimit = c.Regs.LDTR.Base, c.Regs.LDTR.Limit
	} else {
		tableBase, tableLimit = c.Regs.GDTR.Base, uint32(c.Regs.GDTR.Limit)
	}

	entryOffset := index * 8
	if entryOffset+7 > tableLimit {
		return GeneralProtectionFault(errCode)
	}

	lo := c.Bus.ReadDwordUnchecked(tableBase + entryOffset)
	hi := c.Bus.ReadDwordUnchecked(tableBase + entryOffset + 4)
	desc := decodeDescriptor(selector, lo, hi)

	if !desc.Present {
		if seg == SegSS {
			return StackFault(errCode)
		}
		return SegmentNotPresentFault(errCode)
	}

	c.Regs.Seg[seg] = desc
	return nil
}

// decodeDescriptor unpacks an 8-byte GDT/LDT entry (lo, hi as the two
// little-endian dwords already read off the bus) into the shadow form
// every memory reference uses. Layout: limit[0:16), base[16:40),
// access[40:48), limit[48:52)+AVL+0+D/B+G[52:56), base[56:64).
func decodeDescriptor(selector uint16, lo, hi uint32) SegmentDescriptor {
	limit := (lo & 0xFFFF) | (((hi >> 16) & 0xF) << 16)
	base := (lo >> 16) | ((hi & 0xFF) << 16) | ((hi >> 24) << 24)
	access := uint16((hi >> 8) & 0xFF)
	flags := uint8((hi >> 20) & 0xF)

	granularity := flags&0x8 != 0
	big := flags&0x4 != 0
	if granularity {
		limit = limit<<12 | 0xFFF
	}

	return SegmentDescriptor{
		Selector: selector,
		Base:     base,
		Limit:    limit,
		Access:   access,
		Big:      big,
		Present:  access&0x80 != 0,
	}
}

// Page-fault error-code bits, spec.md's {P, W/R, U/S}.
const (
	pfPresent uint32 = 1 << 0
	pfWrite   uint32 = 1 << 1
	pfUser    uint32 = 1 << 2
)

// pageDirShift/pageTblShift with pageIndexMask select the two 10-bit indices a 386-style
// two-level, 4KiB-page, non-PAE walk uses; the low 12 bits are the
// in-page offset.
const (
	pageDirShift  = 22
	pageTblShift  = 12
	pageIndexMask = 0x3FF
	pageEntryMask = 0xFFFFF000
)

// Translate resolves a linear address to a physical one, walking the
// CR3-rooted page directory and page table when CR0.PG is set. With
// paging off, linear and physical addresses coincide. There is no TLB;
// every translated access re-walks both levels, which is a correctness
// simplification this core accepts (see DESIGN.md) rather than a
// performance one.
//
// Translate covers only the access itself: it does not special-case an
// access that straddles a page boundary (the two bytes either side of
// the boundary can be mapped to non-adjacent physical pages on real
// hardware; this core translates the base address once and reads the
// whole access through that one mapping).
func (c *CPU) Translate(linear uint32, write bool) (uint32, *Fault) {
	if c.Regs.CR0&CR0PG == 0 {
		return linear, nil
	}

	dirIndex := (linear >> pageDirShift) & pageIndexMask
	tblIndex := (linear >> pageTblShift) & pageIndexMask
	offset := linear & 0xFFF

	pdeAddr := (c.Regs.CR3 & pageEntryMask) + dirIndex*4
	pde := c.Bus.ReadDwordUnchecked(pdeAddr)
	if pde&1 == 0 {
		return 0, PageFault(linear, pfErrorCode(false, write))
	}

	pteAddr := (pde & pageEntryMask) + tblIndex*4
	pte := c.Bus.ReadDwordUnchecked(pteAddr)
	if pte&1 == 0 {
		return 0, PageFault(linear, pfErrorCode(false, write))
	}
	if write && pte&2 == 0 {
		return 0, PageFault(linear, pfErrorCode(true, write))
	}

	return (pte & pageEntryMask) | offset, nil
}

// pfErrorCode builds the #PF error code. U/S is always reported as
// supervisor (0): this core never tracks a current privilege level, so
// there is no ring-3-vs-ring-0 distinction to report yet.
func pfErrorCode(present, write bool) uint32 {
	var code uint32
	if present {
		code |= pfPresent
	}
	if write {
		code |= pfWrite
	}
	return code
}
