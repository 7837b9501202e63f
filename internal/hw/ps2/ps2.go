// Package ps2 implements an 8042-compatible keyboard controller: ports
// 0x60 (data) and 0x64 (status/command), a command byte controlling
// whether IRQ1 fires on key data, and the output-port A20-gate bit PC/AT
// BIOSes toggle through it rather than a dedicated port. Scan codes enter
// the controller's output buffer through PushScanCode; internal/system
// does not call it, so a built System forwards no host keystrokes to the
// controller. This package does not itself know about any concrete host
// backend.
package ps2

import (
	"encoding/binary"
	"fmt"

	"github.com/rcornwell/pce/internal/bus"
)

// Status Register bits (port 0x64 read).
const (
	statusOutputFull = 1 << 0
	statusInputFull  = 1 << 1
	statusSystemFlag = 1 << 2
	statusCommand    = 1 << 3 // last byte written to 0x64 was a command
)

// Command byte bits (controller RAM byte 0, commands 0x60/0x20).
const (
	cmdByteIRQ1Enable = 1 << 0
	cmdByteSystemFlag = 1 << 2
	cmdByteDisableKbd = 1 << 4
	cmdByteTranslate  = 1 << 6
)

// IRQRaiser notifies the interrupt controller; wired to pic.PIC.RaiseIRQ
// for IRQ1.
type IRQRaiser func(line int)

// A20Setter applies the output port's A20-gate bit to the bus.
type A20Setter func(enabled bool)

// Controller is the 8042 keyboard controller.
type Controller struct {
	b        *bus.Bus
	raise    IRQRaiser
	setA20   A20Setter
	outBuf   []byte // scan codes waiting to be read from port 0x60
	cmdByte  uint8
	awaiting uint8 // pending controller command expecting a data write, 0 if none
	a20      bool
}

// New builds a PS/2 controller. setA20 may be nil if the bus's A20 gate
// is driven some other way.
func New(b *bus.Bus, raise IRQRaiser, setA20 A20Setter) *Controller {
	return &Controller{b: b, raise: raise, setA20: setA20, cmdByte: cmdByteSystemFlag, a20: true}
}

func (c *Controller) Name() string { return "ps2" }

func (c *Controller) Initialize() error {
	c.b.RegisterPort(0x60, "ps2", bus.PortHandlers{
		ReadByte:  c.readData,
		WriteByte: c.writeData,
	})
	c.b.RegisterPort(0x64, "ps2", bus.PortHandlers{
		ReadByte:  c.readStatus,
		WriteByte: c.writeCommand,
	})
	return nil
}

func (c *Controller) Reset() {
	c.outBuf = c.outBuf[:0]
	c.cmdByte = cmdByteSystemFlag
	c.awaiting = 0
	c.a20 = true
	if c.setA20 != nil {
		c.setA20(true)
	}
}

func (c *Controller) Shutdown() {}

// PushScanCode enqueues a byte produced by a host key transition, firing
// IRQ1 if the command byte has it enabled.
func (c *Controller) PushScanCode(b byte) {
	if c.cmdByte&cmdByteDisableKbd != 0 {
		return
	}
	c.outBuf = append(c.outBuf, b)
	c.notify()
}

func (c *Controller) readStatus() uint8 {
	v := uint8(statusSystemFlag)
	if len(c.outBuf) > 0 {
		v |= statusOutputFull
	}
	return v
}

func (c *Controller) readData() uint8 {
	if len(c.outBuf) == 0 {
		return 0
	}
	b := c.outBuf[0]
	c.outBuf = c.outBuf[1:]
	return b
}

// writeCommand handles a byte written to port 0x64: most 8042 commands
// (0xAA self-test, 0xAD/0xAE disable/enable keyboard, 0xD0/0xD1 read/
// write output port) are either acknowledged immediately or arm
// `awaiting` for the data byte that follows on port 0x60.
func (c *Controller) writeCommand(cmd uint8) {
	switch cmd {
	case 0x20: // read command byte
		c.outBuf = append(c.outBuf, c.cmdByte)
	case 0x60: // write command byte (data follows on 0x60)
		c.awaiting = cmd
	case 0xAA: // self-test
		c.outBuf = append(c.outBuf, 0x55)
	case 0xAB: // test keyboard interface
		c.outBuf = append(c.outBuf, 0x00)
	case 0xAD:
		c.cmdByte |= cmdByteDisableKbd
	case 0xAE:
		c.cmdByte &^= cmdByteDisableKbd
	case 0xD0: // read output port
		c.outBuf = append(c.outBuf, c.outputPort())
	case 0xD1: // write output port (data follows on 0x60)
		c.awaiting = cmd
	default:
		// Unsupported command; this subset covers what a PC/AT BIOS and
		// DOS-era keyboard driver actually issue.
	}
}

func (c *Controller) writeData(v uint8) {
	switch c.awaiting {
	case 0x60:
		c.cmdByte = v
		c.awaiting = 0
	case 0xD1:
		c.setOutputPort(v)
		c.awaiting = 0
	default:
		// A byte sent straight to the keyboard device itself (LED state,
		// 0xF4 enable scanning, ...); acknowledged but not modeled.
		c.outBuf = append(c.outBuf, 0xFA)
	}
}

func (c *Controller) outputPort() uint8 {
	v := uint8(0x01) // system reset line held high (not asserted)
	if c.a20 {
		v |= 0x02
	}
	return v
}

func (c *Controller) setOutputPort(v uint8) {
	c.a20 = v&0x02 != 0
	if c.setA20 != nil {
		c.setA20(c.a20)
	}
}

func (c *Controller) notify() {
	if c.raise == nil {
		return
	}
	if c.cmdByte&cmdByteIRQ1Enable != 0 && len(c.outBuf) > 0 {
		c.raise(1)
	}
}

// SerializationID identifies the PS/2 controller section in a save-state file.
const SerializationID uint32 = 5

func (c *Controller) Save() ([]byte, error) {
	n := len(c.outBuf)
	buf := make([]byte, 4+2+3+n)
	binary.LittleEndian.PutUint32(buf[0:], SerializationID)
	binary.LittleEndian.PutUint16(buf[4:], uint16(n))
	buf[6] = c.cmdByte
	buf[7] = c.awaiting
	buf[8] = boolToByte(c.a20)
	copy(buf[9:], c.outBuf)
	return buf, nil
}

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func (c *Controller) Load(data []byte) error {
	if len(data) < 9 {
		return fmt.Errorf("ps2: truncated state (%d bytes)", len(data))
	}
	if id := binary.LittleEndian.Uint32(data); id != SerializationID {
		return fmt.Errorf("ps2: unexpected serialization id %d", id)
	}
	n := int(binary.LittleEndian.Uint16(data[4:]))
	c.cmdByte = data[6]
	c.awaiting = data[7]
	c.a20 = data[8] != 0
	if len(data) < 9+n {
		return fmt.Errorf("ps2: truncated output buffer (%d bytes, want %d)", len(data)-9, n)
	}
	c.outBuf = append(c.outBuf[:0], data[9:9+n]...)
	return nil
}
