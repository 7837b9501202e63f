/*
   PCE - I/O port routing.

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

import "log/slog"

// PortHandlers is the set of typed callbacks a device registers for an I/O
// port; a width the device doesn't implement is left nil and accesses at
// that width decompose into narrower ones per spec.md §3.
type PortHandlers struct {
	ReadByte   func() uint8
	ReadWord   func() uint16
	ReadDword  func() uint32
	WriteByte  func(uint8)
	WriteWord  func(uint16)
	WriteDword func(uint32)
}

// RegisterPort attaches owner's handlers to port. Multiple owners may share
// a port: reads are summed (zero-initialized, OR-ing every handler's
// contribution at that width) and writes are broadcast to every handler
// that implements that width.
func (b *Bus) RegisterPort(port uint16, owner string, h PortHandlers) {
	b.ports[port] = append(b.ports[port], ioConnection{
		owner:      owner,
		readByte:   h.ReadByte,
		readWord:   h.ReadWord,
		readDword:  h.ReadDword,
		writeByte:  h.WriteByte,
		writeWord:  h.WriteWord,
		writeDword: h.WriteDword,
	})
}

// UnregisterPort removes every connection owner registered on port.
func (b *Bus) UnregisterPort(port uint16, owner string) {
	conns := b.ports[port]
	out := conns[:0]
	for _, c := range conns {
		if c.owner != owner {
			out = append(out, c)
		}
	}
	b.ports[port] = out
}

// ReadPortByte sum-reads an 8-bit port: every connection implementing
// ReadByte contributes, OR'd together. No handler yields all-ones, logged
// once per port.
func (b *Bus) ReadPortByte(port uint16) uint8 {
	conns := b.ports[port]
	if len(conns) == 0 {
		b.warnUnmappedIO(uint32(port))
		return 0xff
	}
	var v uint8
	any := false
	for _, c := range conns {
		if c.readByte != nil {
			v |= c.readByte()
			any = true
		}
	}
	if !any {
		b.warnUnmappedIO(uint32(port))
		return 0xff
	}
	return v
}

// ReadPortWord reads 16 bits at port. If no connection implements
// ReadWord, it decomposes low-byte first into two 8-bit reads at port and
// port+1 (spec.md Testable Property 3).
func (b *Bus) ReadPortWord(port uint16) uint16 {
	conns := b.ports[port]
	any := false
	var v uint16
	for _, c := range conns {
		if c.readWord != nil {
			v |= c.readWord()
			any = true
		}
	}
	if any {
		return v
	}
	lo := b.ReadPortByte(port)
	hi := b.ReadPortByte(port + 1)
	return uint16(lo) | uint16(hi)<<8
}

// ReadPortDword reads 32 bits at port, decomposing into two 16-bit reads
// (port, port+2) if no connection implements ReadDword.
func (b *Bus) ReadPortDword(port uint16) uint32 {
	conns := b.ports[port]
	any := false
	var v uint32
	for _, c := range conns {
		if c.readDword != nil {
			v |= c.readDword()
			any = true
		}
	}
	if any {
		return v
	}
	lo := b.ReadPortWord(port)
	hi := b.ReadPortWord(port + 2)
	return uint32(lo) | uint32(hi)<<16
}

// WritePortByte broadcasts an 8-bit write to every connection on port that
// implements WriteByte.
func (b *Bus) WritePortByte(port uint16, v uint8) {
	conns := b.ports[port]
	if len(conns) == 0 {
		b.warnUnmappedIO(uint32(port))
		return
	}
	any := false
	for _, c := range conns {
		if c.writeByte != nil {
			c.writeByte(v)
			any = true
		}
	}
	if !any {
		b.warnUnmappedIO(uint32(port))
	}
}

// WritePortWord broadcasts a 16-bit write, decomposing low-byte first into
// WriteByte(port, lo) then WriteByte(port+1, hi) if no connection
// implements WriteWord.
func (b *Bus) WritePortWord(port uint16, v uint16) {
	conns := b.ports[port]
	any := false
	for _, c := range conns {
		if c.writeWord != nil {
			c.writeWord(v)
			any = true
		}
	}
	if any {
		return
	}
	b.WritePortByte(port, uint8(v))
	b.WritePortByte(port+1, uint8(v>>8))
}

// WritePortDword broadcasts a 32-bit write, decomposing into two 16-bit
// writes (port, port+2) if no connection implements WriteDword.
func (b *Bus) WritePortDword(port uint16, v uint32) {
	conns := b.ports[port]
	any := false
	for _, c := range conns {
		if c.writeDword != nil {
			c.writeDword(v)
			any = true
		}
	}
	if any {
		return
	}
	b.WritePortWord(port, uint16(v))
	b.WritePortWord(port+2, uint16(v>>16))
}

func (b *Bus) warnUnmappedIO(port uint32) {
	if b.unmappedIOWarned[port] {
		return
	}
	b.unmappedIOWarned[port] = true
	slog.Warn("bus: I/O access to unmapped port", "port", port)
}
