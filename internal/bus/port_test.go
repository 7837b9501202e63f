package bus

import "testing"

func TestIOPortDecompositionProperty3(t *testing.T) {
	b := New(20, 4096)
	mem := map[uint16]uint8{}
	for _, p := range []uint16{0x60, 0x61} {
		port := p
		b.RegisterPort(port, "test", PortHandlers{
			ReadByte:  func() uint8 { return mem[port] },
			WriteByte: func(v uint8) { mem[port] = v },
		})
	}

	b.WritePortWord(0x60, 0xABCD)
	if mem[0x60] != 0xCD || mem[0x61] != 0xAB {
		t.Fatalf("WritePortWord did not decompose low-byte-first: %#x %#x", mem[0x60], mem[0x61])
	}

	mem[0x60], mem[0x61] = 0x34, 0x12
	got := b.ReadPortWord(0x60)
	if got != 0x1234 {
		t.Fatalf("ReadPortWord = %#x, want 0x1234", got)
	}
}

func TestIOPortSumReadBroadcastWrite(t *testing.T) {
	b := New(20, 4096)
	var aVal, bVal uint8
	var writesSeen int
	b.RegisterPort(0x20, "a", PortHandlers{
		ReadByte:  func() uint8 { return aVal },
		WriteByte: func(v uint8) { aVal = v; writesSeen++ },
	})
	b.RegisterPort(0x20, "b", PortHandlers{
		ReadByte:  func() uint8 { return bVal },
		WriteByte: func(v uint8) { bVal = v; writesSeen++ },
	})

	aVal, bVal = 0x01, 0x02
	if got := b.ReadPortByte(0x20); got != 0x03 {
		t.Fatalf("sum-read = %#x, want 0x03", got)
	}

	b.WritePortByte(0x20, 0x55)
	if aVal != 0x55 || bVal != 0x55 || writesSeen != 2 {
		t.Fatalf("broadcast write did not reach both owners: a=%#x b=%#x n=%d", aVal, bVal, writesSeen)
	}
}

func TestUnmappedPortReadsAllOnes(t *testing.T) {
	b := New(20, 4096)
	if got := b.ReadPortByte(0x1FF); got != 0xff {
		t.Fatalf("unmapped port read = %#x, want 0xff", got)
	}
}
