package bus

// access implements the read/write algorithm of spec.md §4.1: A20 masking,
// fast path, page-boundary decomposition, lock handling, MMIO envelope
// dispatch, and RAM subrange fallback. size is 1, 2, 4 or 8 bytes. ok
// reports whether the access was actually satisfied by RAM or an MMIO
// handler; unmapped reads report ok=false and return all-ones, unmapped
// writes report ok=false and are dropped.
func (b *Bus) access(addr uint32, size int, write bool, wval uint64) (uint64, bool) {
	addr &= b.addressMask()
	idx := addr >> pageShift
	if int(idx) >= len(b.pages) {
		if write {
			return 0, false
		}
		return mask64(size), false
	}
	offset := addr & (PageSize - 1)
	p := &b.pages[idx]

	// Fast path: pure RAM, no locks, no MMIO, access fits in the page.
	if offset+uint32(size) <= PageSize && p.fast != nil {
		if write {
			putLE(p.fast[offset:], size, wval)
			return 0, true
		}
		return getLE(p.fast[offset:], size), true
	}

	if offset+uint32(size) > PageSize {
		return b.accessCrossPage(addr, size, write, wval)
	}

	if write && p.lock&LockWrite != 0 {
		if b.onLockedAccess != nil {
			b.onLockedAccess(addr, true)
		}
		p.lock &^= LockWrite
		b.rebuildFastPath(idx)
	} else if !write && p.lock&LockRead != 0 {
		if b.onLockedAccess != nil {
			b.onLockedAccess(addr, false)
		}
		p.lock &^= LockRead
		b.rebuildFastPath(idx)
	}

	if len(p.mmio) > 0 && offset >= p.mmioStart && offset < p.mmioEnd {
		if v, ok := b.dispatchMMIO(p, addr, size, write, wval); ok {
			return v, true
		}
	}

	if p.ram != nil && offset >= p.ramStart && offset+uint32(size) <= p.ramEnd {
		ro := offset - p.ramStart
		if write {
			putLE(p.ram[ro:], size, wval)
			if p.lock&LockCodeCached != 0 {
				b.clearCodeCache(idx)
			}
			return 0, true
		}
		return getLE(p.ram[ro:], size), true
	}

	if write {
		return 0, false
	}
	return mask64(size), false
}

func (b *Bus) dispatchMMIO(p *page, addr uint32, size int, write bool, wval uint64) (uint64, bool) {
	for _, h := range p.mmio {
		if addr < h.Start || addr+uint32(size)-1 > h.End {
			continue
		}
		if write {
			switch size {
			case 1:
				h.fns.WriteByte(addr, uint8(wval))
			case 2:
				h.fns.WriteWord(addr, uint16(wval))
			case 4:
				h.fns.WriteDword(addr, uint32(wval))
			case 8:
				h.fns.WriteQword(addr, wval)
			}
			return 0, true
		}
		switch size {
		case 1:
			return uint64(h.fns.ReadByte(addr)), true
		case 2:
			return uint64(h.fns.ReadWord(addr)), true
		case 4:
			return uint64(h.fns.ReadDword(addr)), true
		case 8:
			return h.fns.ReadQword(addr), true
		}
	}
	return 0, false
}

// accessCrossPage splits an access that straddles a page boundary into
// byte-narrow accesses and recombines them little-endian.
func (b *Bus) accessCrossPage(addr uint32, size int, write bool, wval uint64) (uint64, bool) {
	ok := true
	var result uint64
	for i := 0; i < size; i++ {
		a := (addr + uint32(i)) & b.addressMask()
		if write {
			_, byteOK := b.access(a, 1, true, (wval>>(8*uint(i)))&0xff)
			ok = ok && byteOK
			continue
		}
		v, byteOK := b.access(a, 1, false, 0)
		ok = ok && byteOK
		result |= v << (8 * uint(i))
	}
	return result, ok
}

func getLE(buf []byte, size int) uint64 {
	var v uint64
	for i := 0; i < size; i++ {
		v |= uint64(buf[i]) << (8 * uint(i))
	}
	return v
}

func putLE(buf []byte, size int, v uint64) {
	for i := 0; i < size; i++ {
		buf[i] = uint8(v >> (8 * uint(i)))
	}
}

func mask64(size int) uint64 {
	if size >= 8 {
		return ^uint64(0)
	}
	return uint64(1)<<(8*uint(size)) - 1
}

// Unchecked accessors: faults silently return all-ones / swallow the write.

func (b *Bus) ReadByteUnchecked(addr uint32) uint8 {
	v, _ := b.access(addr, 1, false, 0)
	return uint8(v)
}

func (b *Bus) ReadWordUnchecked(addr uint32) uint16 {
	v, _ := b.access(addr, 2, false, 0)
	return uint16(v)
}

func (b *Bus) ReadDwordUnchecked(addr uint32) uint32 {
	v, _ := b.access(addr, 4, false, 0)
	return uint32(v)
}

func (b *Bus) ReadQwordUnchecked(addr uint32) uint64 {
	v, _ := b.access(addr, 8, false, 0)
	return v
}

func (b *Bus) WriteByteUnchecked(addr uint32, v uint8) { b.access(addr, 1, true, uint64(v)) }
func (b *Bus) WriteWordUnchecked(addr uint32, v uint16) { b.access(addr, 2, true, uint64(v)) }
func (b *Bus) WriteDwordUnchecked(addr uint32, v uint32) { b.access(addr, 4, true, uint64(v)) }
func (b *Bus) WriteQwordUnchecked(addr uint32, v uint64) { b.access(addr, 8, true, v) }

// Checked accessors: ok is false for an access that crossed into unmapped
// memory or otherwise wasn't satisfied by RAM or an MMIO handler.

func (b *Bus) ReadByteChecked(addr uint32) (uint8, bool) {
	v, ok := b.access(addr, 1, false, 0)
	return uint8(v), ok
}

func (b *Bus) ReadWordChecked(addr uint32) (uint16, bool) {
	v, ok := b.access(addr, 2, false, 0)
	return uint16(v), ok
}

func (b *Bus) ReadDwordChecked(addr uint32) (uint32, bool) {
	v, ok := b.access(addr, 4, false, 0)
	return uint32(v), ok
}

func (b *Bus) ReadQwordChecked(addr uint32) (uint64, bool) {
	return b.access(addr, 8, false, 0)
}

func (b *Bus) WriteByteChecked(addr uint32, v uint8) bool {
	_, ok := b.access(addr, 1, true, uint64(v))
	return ok
}

func (b *Bus) WriteWordChecked(addr uint32, v uint16) bool {
	_, ok := b.access(addr, 2, true, uint64(v))
	return ok
}

func (b *Bus) WriteDwordChecked(addr uint32, v uint32) bool {
	_, ok := b.access(addr, 4, true, uint64(v))
	return ok
}

func (b *Bus) WriteQwordChecked(addr uint32, v uint64) bool {
	_, ok := b.access(addr, 8, true, v)
	return ok
}
