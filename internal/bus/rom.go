/*
   PCE - ROM region loading.

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

package bus

import (
	"fmt"
	"os"
)

// ROM is a file-backed buffer mapped read-only at a physical base address.
// Additional MMIO views over the same buffer (Mirror) are registered
// separately and share ROM's backing array.
type ROM struct {
	Base    uint32
	Data    []byte
	handler *Handler
}

// LoadROM reads size bytes starting at fileOffset from path and maps them
// read-only at base. expectedSize, if nonzero, is validated against the
// number of bytes actually available in the file past fileOffset.
func LoadROM(path string, base uint32, fileOffset int64, size int, expectedSize int) (*ROM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bus: loading ROM %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("bus: stat ROM %s: %w", path, err)
	}
	available := info.Size() - fileOffset
	if expectedSize != 0 && available < int64(expectedSize) {
		return nil, fmt.Errorf("bus: ROM %s truncated: want %d bytes at offset %d, have %d", path, expectedSize, fileOffset, available)
	}
	if size == 0 {
		size = int(available)
	}

	data := make([]byte, size)
	if _, err := f.ReadAt(data, fileOffset); err != nil {
		return nil, fmt.Errorf("bus: reading ROM %s: %w", path, err)
	}

	return &ROM{Base: base, Data: data}, nil
}

// Map registers the ROM's backing buffer as a read-only direct MMIO
// handler at its base address.
func (r *ROM) Map(b *Bus) {
	r.handler = NewDirectHandler(r.Base, r.Data, true, false)
	b.RegisterMMIO(r.handler)
}

// Mirror registers an additional read-only view of the same backing buffer
// at a different base address, sharing storage via a retained reference.
// It builds its own offset-translating handler rather than reusing the
// original's, since that one's closures translate addresses against the
// original base, not this mirror's.
func (r *ROM) Mirror(b *Bus, base uint32) {
	r.handler.Retain()
	m := NewDirectHandler(base, r.Data, true, false)
	b.RegisterMMIO(m)
}
