package decode

// MaxInstructionLength is a generous upper bound on encoded length for the
// subset of the instruction set this core decodes; long enough for any
// opcode+prefixes+ModRM+SIB+disp32+imm32 combination it produces.
const MaxInstructionLength = 16

// FetchWindow pulls up to MaxInstructionLength bytes starting at addr via
// read, for handing to Decode16/Decode32. read is expected to be a
// Bus.ReadByteUnchecked-shaped function; reads past the end of mapped
// memory come back as 0xFF, same as any other unmapped access, which
// reliably decodes to an invalid/trapping opcode rather than silently
// wrapping into whatever bytes happen to follow.
func FetchWindow(read func(addr uint32) uint8, addr uint32) []byte {
	buf := make([]byte, MaxInstructionLength)
	for i := range buf {
		buf[i] = read(addr + uint32(i))
	}
	return buf
}
