package bus

import "testing"

func TestS3BusRoundTrip(t *testing.T) {
	b := New(22, 4*1024*1024) // 4 MiB RAM, 22-bit bus is plenty
	b.WriteDwordUnchecked(0x1000, 0xDEADBEEF)

	want := []byte{0xEF, 0xBE, 0xAD, 0xDE}
	for i, w := range want {
		got := b.ReadByteUnchecked(0x1000 + uint32(i))
		if got != w {
			t.Fatalf("byte %d = %#x, want %#x", i, got, w)
		}
	}
}

func TestAddressMaskInvariant(t *testing.T) {
	b := New(20, 64*1024) // 8086-class: 20-bit bus
	b.SetA20(false)       // clears bit 20, models wraparound

	b.WriteByteUnchecked(0x00, 0x42)
	// 0x100000 has bit 20 set; with A20 disabled it should alias to 0x0.
	got := b.ReadByteUnchecked(0x100000)
	if got != 0x42 {
		t.Fatalf("with A20 disabled, 0x100000 should alias 0x0: got %#x", got)
	}

	b.SetA20(true)
	got2 := b.ReadByteUnchecked(0x100000 & b.addressMask())
	if got2 != 0x42 {
		t.Fatalf("access through masked address should equal access through raw address")
	}
}

func TestPageFastPathEquivalence(t *testing.T) {
	b := New(24, 1024*1024)
	b.WriteByteUnchecked(0x2000, 0x11)
	b.WriteWordUnchecked(0x2002, 0x2233)
	b.WriteDwordUnchecked(0x2004, 0x44556677)

	idx := b.pageIndex(0x2000)
	p := &b.pages[idx]
	if p.fast == nil {
		t.Fatal("expected page to be on the fast path")
	}

	// Force the slow path by setting a read-lock bit so fast becomes nil
	// (the first read below clears it again), then compare reads.
	p.lock |= LockRead
	b.rebuildFastPath(idx)
	if p.fast != nil {
		t.Fatal("expected fast path to be disabled while locked")
	}

	gotByte := b.ReadByteUnchecked(0x2000)
	gotWord := b.ReadWordUnchecked(0x2002)
	gotDword := b.ReadDwordUnchecked(0x2004)

	if gotByte != 0x11 || gotWord != 0x2233 || gotDword != 0x44556677 {
		t.Fatalf("slow-path reads disagree with values written on fast path: %#x %#x %#x", gotByte, gotWord, gotDword)
	}
}

func TestUnmappedReadReturnsAllOnes(t *testing.T) {
	b := New(20, 4096) // only the first page is RAM
	v, ok := b.ReadDwordChecked(0x10000)
	if ok {
		t.Fatal("expected unmapped read to report !ok")
	}
	if v != 0xFFFFFFFF {
		t.Fatalf("unmapped dword read = %#x, want all-ones", v)
	}
}

func TestCodeCacheInvalidationOnWrite(t *testing.T) {
	b := New(20, 1024*1024)
	var invalidated []uint32
	b.SetCodeInvalidateCallback(func(pageBase uint32) { invalidated = append(invalidated, pageBase) })

	b.MarkPageAsCode(0x3000)
	b.WriteByteUnchecked(0x3010, 0x90)

	if len(invalidated) != 1 || invalidated[0] != 0x3000 {
		t.Fatalf("expected invalidation callback for page 0x3000, got %v", invalidated)
	}

	// A second write after invalidation should not re-fire (page no longer
	// marked as code).
	b.WriteByteUnchecked(0x3011, 0x90)
	if len(invalidated) != 1 {
		t.Fatalf("expected no further invalidation callbacks, got %v", invalidated)
	}
}

func TestCrossPageAccessRecombines(t *testing.T) {
	b := New(20, 2*PageSize)
	// Straddle the boundary between page 0 and page 1.
	addr := uint32(PageSize - 2)
	b.WriteDwordUnchecked(addr, 0xAABBCCDD)
	got := b.ReadDwordUnchecked(addr)
	if got != 0xAABBCCDD {
		t.Fatalf("cross-page dword round trip = %#x, want 0xAABBCCDD", got)
	}
}
