/*
   PCE - Physical address bus: paged RAM/MMIO dispatch and port routing.

   Copyright (c) 2026, Richard Cornwell

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   RICHARD CORNWELL BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/

// Package bus implements the 20/24/32-bit physical address space: a
// page-indexed RAM/MMIO/ROM map, I/O-port routing, code-cache invalidation
// notifications, and the A20-gate mask, per spec.md §3 and §4.1-4.2.
package bus

import "sort"

// PageSize is the granularity of lookup, locking, and code invalidation.
const PageSize = 4096

const pageShift = 12

// LockFlags mark a page as needing slow-path handling even though it may
// otherwise look like pure RAM.
type LockFlags uint8

const (
	LockRead LockFlags = 1 << iota
	LockWrite
	LockCodeCached
	LockMirror
)

type page struct {
	ram          []byte // view into the RAM arena for this page's RAM subrange, or nil
	ramStart     uint32 // offset within the page where RAM responds
	ramEnd       uint32 // exclusive
	mmio         []*Handler
	mmioStart    uint32 // cached envelope: lowest offset any handler in mmio covers
	mmioEnd      uint32 // cached envelope: highest offset + 1 any handler covers
	lock         LockFlags
	fast         []byte // non-nil only per the fast-path invariant in spec.md §3
}

// Bus is the physical address space: paged dispatch, RAM arena, and 2^16
// I/O ports. Accessed only from the single simulation thread (spec.md §5).
type Bus struct {
	widthMask uint32 // mask derived from the CPU's address-bus width
	a20Mask   uint32 // additional mask modeling the A20 gate

	ram     []byte
	pages   []page
	pageLog []bool // pages currently marked CodeCached, for fast invalidation scans

	ports [65536][]ioConnection

	onCodeInvalidate func(pageBase uint32)
	onLockedAccess   func(addr uint32, isWrite bool)

	unmappedIOWarned map[uint32]bool
}

// ioConnection is one IOPortConnection record from spec.md §3.
type ioConnection struct {
	owner      string
	readByte   func() uint8
	readWord   func() uint16
	readDword  func() uint32
	writeByte  func(uint8)
	writeWord  func(uint16)
	writeDword func(uint32)
}

// New creates a Bus with a physical address space of addrBits wide (20 for
// 8086, 24 for 286, 32 for 386+) and ramSize bytes of RAM mapped starting
// at physical address 0.
func New(addrBits int, ramSize uint32) *Bus {
	widthMask := uint32(1)<<uint(addrBits) - 1
	b := &Bus{
		widthMask:        widthMask,
		a20Mask:          ^uint32(0),
		ram:              make([]byte, ramSize),
		unmappedIOWarned: map[uint32]bool{},
	}
	numPages := int(widthMask>>pageShift) + 1
	b.pages = make([]page, numPages)
	b.pageLog = make([]bool, numPages)
	b.mapRAM(0, ramSize)
	return b
}

// addressMask is the conjunction of the bus width mask and the A20 gate
// mask, applied on every access (spec.md's "Address-mask invariant").
func (b *Bus) addressMask() uint32 { return b.widthMask & b.a20Mask }

// SetA20 enables or disables the A20 gate. Disabling it clears bit 20 of
// every address, reproducing 8086-style wraparound.
func (b *Bus) SetA20(enabled bool) {
	if enabled {
		b.a20Mask = ^uint32(0)
	} else {
		b.a20Mask = ^uint32(1 << 20)
	}
}

// SetCodeInvalidateCallback installs the CPU's on_code_invalidate hook,
// called with a page-aligned address whenever a write lands on a page
// previously marked as code.
func (b *Bus) SetCodeInvalidateCallback(cb func(pageBase uint32)) {
	b.onCodeInvalidate = cb
}

// SetLockedAccessCallback installs CPU::on_locked_memory_access, invoked
// before a locked page's lock bit is cleared for the access that hit it.
func (b *Bus) SetLockedAccessCallback(cb func(addr uint32, isWrite bool)) {
	b.onLockedAccess = cb
}

func (b *Bus) pageIndex(addr uint32) uint32 { return (addr & b.addressMask()) >> pageShift }

func (b *Bus) mapRAM(start, size uint32) {
	end := start + size
	for addr := start &^ (PageSize - 1); addr < end; addr += PageSize {
		idx := addr >> pageShift
		if int(idx) >= len(b.pages) {
			break
		}
		p := &b.pages[idx]
		rs := uint32(0)
		re := uint32(PageSize)
		if addr < start {
			rs = start - addr
		}
		if addr+PageSize > end {
			re = end - addr
		}
		p.ramStart = rs
		p.ramEnd = re
		p.ram = b.ram[addr+rs-start : addr+re-start]
		b.rebuildFastPath(idx)
	}
}

// rebuildFastPath recomputes the fast-path pointer for a page, which is
// non-null iff the page is pure RAM spanning the whole page with no MMIO
// and no lock bits (spec.md §3 invariant).
func (b *Bus) rebuildFastPath(idx uint32) {
	p := &b.pages[idx]
	if p.ram != nil && p.ramStart == 0 && p.ramEnd == PageSize &&
		len(p.mmio) == 0 && p.lock == 0 {
		p.fast = p.ram
	} else {
		p.fast = nil
	}
}

// RegisterMMIO adds h to every page its range overlaps, keeping each
// page's handler list sorted descending by start address (spec.md §4.1:
// "first covering range wins").
func (b *Bus) RegisterMMIO(h *Handler) {
	startPage := h.Start >> pageShift
	endPage := h.End >> pageShift
	for idx := startPage; idx <= endPage && int(idx) < len(b.pages); idx++ {
		p := &b.pages[idx]
		p.mmio = append(p.mmio, h)
		sort.SliceStable(p.mmio, func(i, j int) bool { return p.mmio[i].Start > p.mmio[j].Start })

		pageBase := idx << pageShift
		s := uint32(0)
		if h.Start > pageBase {
			s = h.Start - pageBase
		}
		e := uint32(PageSize)
		if h.End < pageBase+PageSize-1 {
			e = h.End - pageBase + 1
		}
		if len(p.mmio) == 1 || s < p.mmioStart {
			p.mmioStart = s
		}
		if len(p.mmio) == 1 || e > p.mmioEnd {
			p.mmioEnd = e
		}
		b.rebuildFastPath(idx)
	}
}

// UnregisterMMIO removes h from every page it was registered on. Callers
// are expected to have Release()d the handler themselves; this only
// detaches it from the page table.
func (b *Bus) UnregisterMMIO(h *Handler) {
	startPage := h.Start >> pageShift
	endPage := h.End >> pageShift
	for idx := startPage; idx <= endPage && int(idx) < len(b.pages); idx++ {
		p := &b.pages[idx]
		for i, cur := range p.mmio {
			if cur == h {
				p.mmio = append(p.mmio[:i], p.mmio[i+1:]...)
				break
			}
		}
		p.mmioStart, p.mmioEnd = 0, 0
		for i, cur := range p.mmio {
			pageBase := idx << pageShift
			s := uint32(0)
			if cur.Start > pageBase {
				s = cur.Start - pageBase
			}
			e := uint32(PageSize)
			if cur.End < pageBase+PageSize-1 {
				e = cur.End - pageBase + 1
			}
			if i == 0 || s < p.mmioStart {
				p.mmioStart = s
			}
			if i == 0 || e > p.mmioEnd {
				p.mmioEnd = e
			}
		}
		b.rebuildFastPath(idx)
	}
}

// SetLock sets lock bits on every page addr's range covers, forcing the
// slow path until the matching access clears them. Used by the cached
// interpreter/recompiler to arm write-detection on a decoded block's pages.
func (b *Bus) SetLock(addr, size uint32, flags LockFlags) {
	end := addr + size
	for a := addr &^ (PageSize - 1); a < end; a += PageSize {
		idx := a >> pageShift
		if int(idx) >= len(b.pages) {
			break
		}
		b.pages[idx].lock |= flags
		b.rebuildFastPath(idx)
	}
}

// MarkPageAsCode sets CodeCached on addr's page, forcing it off the fast
// path so subsequent writes are observed and trigger invalidation.
func (b *Bus) MarkPageAsCode(addr uint32) {
	idx := b.pageIndex(addr)
	if int(idx) >= len(b.pages) {
		return
	}
	b.pages[idx].lock |= LockCodeCached
	b.pageLog[idx] = true
	b.rebuildFastPath(idx)
}

// clearCodeCache clears CodeCached on a page after a write and notifies
// the CPU so it can evict cached/compiled blocks from that page.
func (b *Bus) clearCodeCache(idx uint32) {
	if !b.pageLog[idx] {
		return
	}
	b.pageLog[idx] = false
	b.pages[idx].lock &^= LockCodeCached
	b.rebuildFastPath(idx)
	if b.onCodeInvalidate != nil {
		b.onCodeInvalidate(idx << pageShift)
	}
}
