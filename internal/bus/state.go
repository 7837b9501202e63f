package bus

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// SerializationID identifies the Bus section format in a save-state file
// (spec.md §6: "Bus: serialization id, page count, address mask, RAM size,
// full RAM bytes").
const SerializationID uint32 = 1

// Save writes the Bus section: serialization id, page count, the combined
// address mask, RAM size, and the full RAM arena.
func (b *Bus) Save() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, SerializationID)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(b.pages)))
	_ = binary.Write(&buf, binary.LittleEndian, b.addressMask())
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(b.ram)))
	buf.Write(b.ram)
	return buf.Bytes()
}

// Load restores the RAM arena from a section written by Save. Per the open
// question in spec.md §9 about the original Bus::LoadState not storing the
// re-read address mask back, this implementation takes the safer of the
// two readings and does store it back, so a save made with A20 disabled
// restores with A20 disabled (see DESIGN.md).
func (b *Bus) Load(data []byte) error {
	r := bytes.NewReader(data)
	var id, pageCount, mask, ramSize uint32
	if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
		return fmt.Errorf("bus: reading serialization id: %w", err)
	}
	if id != SerializationID {
		return fmt.Errorf("bus: unexpected serialization id %d, want %d", id, SerializationID)
	}
	if err := binary.Read(r, binary.LittleEndian, &pageCount); err != nil {
		return fmt.Errorf("bus: reading page count: %w", err)
	}
	if int(pageCount) != len(b.pages) {
		return fmt.Errorf("bus: saved page count %d does not match current %d", pageCount, len(b.pages))
	}
	if err := binary.Read(r, binary.LittleEndian, &mask); err != nil {
		return fmt.Errorf("bus: reading address mask: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &ramSize); err != nil {
		return fmt.Errorf("bus: reading RAM size: %w", err)
	}
	if int(ramSize) != len(b.ram) {
		return fmt.Errorf("bus: saved RAM size %d does not match current %d", ramSize, len(b.ram))
	}
	if _, err := r.Read(b.ram); err != nil {
		return fmt.Errorf("bus: reading RAM: %w", err)
	}
	// mask combines widthMask (fixed by CPU model, already validated via
	// pageCount) and the A20 gate bit; restore only the gate.
	if mask&(1<<20) == 0 {
		b.SetA20(false)
	} else {
		b.SetA20(true)
	}
	b.mapRAM(0, uint32(len(b.ram)))
	return nil
}

// RAMSize returns the size of the RAM arena in bytes.
func (b *Bus) RAMSize() uint32 { return uint32(len(b.ram)) }

// WidthMask returns the address-bus width mask (ignoring A20).
func (b *Bus) WidthMask() uint32 { return b.widthMask }
