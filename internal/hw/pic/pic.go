// Package pic implements a pair of cascaded 8259A-compatible interrupt
// controllers: the standard PC/AT master+slave arrangement, slave wired
// into the master's IRQ2 line, giving 15 usable interrupt lines.
package pic

import (
	"encoding/binary"
	"fmt"

	"github.com/rcornwell/pce/internal/bus"
)

// RaiseLine is the callback PIC uses to tell the CPU an interrupt is
// pending, supplied by whatever owns the CPU (System).
type RaiseLine func(asserted bool, vector int)

// controller is one 8259A: 8 IRQ lines, a mask register, an in-service
// register, and the handful of ICW/OCW bits this subset implements
// (fixed priority with line 0 highest, non-specific EOI, no level-triggered
// or polled modes). The in-service register is kept for EOI and OCW3
// reads only: a line in service does not hold back further requests.
type controller struct {
	irr, imr, isr uint8
	vectorBase    uint8
	icwStep       int
	needICW4      bool
	autoEOI       bool
	slaveID       uint8
	readISR       bool // OCW3: next status read returns ISR instead of IRR
}

func (c *controller) reset() {
	*c = controller{imr: 0xFF}
}

// PIC is the master+slave pair, plus the callback used to notify the CPU.
type PIC struct {
	master, slave controller
	notify        RaiseLine
	b             *bus.Bus
}

// New builds a PIC wired to notify via fn whenever the highest-priority
// pending, unmasked interrupt changes.
func New(b *bus.Bus, fn RaiseLine) *PIC {
	return &PIC{b: b, notify: fn}
}

func (p *PIC) Name() string { return "pic" }

func (p *PIC) Initialize() error {
	p.b.RegisterPort(0x20, "pic-master", bus.PortHandlers{
		ReadByte:  func() uint8 { return p.readCommand(&p.master) },
		WriteByte: func(v uint8) { p.writeCommand(&p.master, v) },
	})
	p.b.RegisterPort(0x21, "pic-master", bus.PortHandlers{
		ReadByte:  func() uint8 { return p.readData(&p.master) },
		WriteByte: func(v uint8) { p.writeData(&p.master, v) },
	})
	p.b.RegisterPort(0xA0, "pic-slave", bus.PortHandlers{
		ReadByte:  func() uint8 { return p.readCommand(&p.slave) },
		WriteByte: func(v uint8) { p.writeCommand(&p.slave, v) },
	})
	p.b.RegisterPort(0xA1, "pic-slave", bus.PortHandlers{
		ReadByte:  func() uint8 { return p.readData(&p.slave) },
		WriteByte: func(v uint8) { p.writeData(&p.slave, v) },
	})
	return nil
}

func (p *PIC) Reset() {
	p.master.reset()
	p.slave.reset()
}

func (p *PIC) Shutdown() {}

// RaiseIRQ asserts IRQ line n (0-15; 8-15 route through the slave,
// cascaded on the master's IRQ2).
func (p *PIC) RaiseIRQ(n int) {
	if n < 8 {
		p.master.irr |= 1 << uint(n)
	} else {
		p.slave.irr |= 1 << uint(n-8)
		p.master.irr |= 1 << 2
	}
	p.reevaluate()
}

// LowerIRQ deasserts IRQ line n (edge-triggered lines normally self-clear
// once serviced, but level-triggered devices like some NICs need this).
func (p *PIC) LowerIRQ(n int) {
	if n < 8 {
		p.master.irr &^= 1 << uint(n)
	} else {
		p.slave.irr &^= 1 << uint(n-8)
	}
	p.reevaluate()
}

func pending(c *controller) (int, bool) {
	active := c.irr &^ c.imr
	for i := 0; i < 8; i++ {
		if active&(1<<uint(i)) != 0 {
			return i, true
		}
	}
	return 0, false
}

func (p *PIC) reevaluate() {
	if line, ok := pending(&p.master); ok {
		p.notify(true, int(p.master.vectorBase)+line)
		return
	}
	p.notify(false, 0)
}

// Acknowledge is called by the CPU when it actually vectors the
// interrupt: it sets the in-service bit and (for edge-triggered lines,
// which this subset assumes exclusively) clears the request bit.
func (p *PIC) Acknowledge() int {
	line, ok := pending(&p.master)
	if !ok {
		return -1
	}
	if line == 2 {
		slaveLine, ok := pending(&p.slave)
		if ok {
			p.slave.isr |= 1 << uint(slaveLine)
			p.slave.irr &^= 1 << uint(slaveLine)
			vec := int(p.slave.vectorBase) + slaveLine
			p.reevaluate()
			return vec
		}
	}
	p.master.isr |= 1 << uint(line)
	p.master.irr &^= 1 << uint(line)
	vec := int(p.master.vectorBase) + line
	p.reevaluate()
	return vec
}

func (p *PIC) writeCommand(c *controller, v uint8) {
	switch {
	case v&0x10 != 0: // ICW1
		c.reset()
		c.icwStep = 1
		c.needICW4 = v&0x01 != 0
	case v&0x08 != 0: // OCW3
		if v&0x02 != 0 {
			c.readISR = v&0x01 != 0
		}
	default: // OCW2
		if v&0x20 != 0 { // non-specific EOI
			for i := 7; i >= 0; i-- {
				if c.isr&(1<<uint(i)) != 0 {
					c.isr &^= 1 << uint(i)
					break
				}
			}
			p.reevaluate()
		}
	}
}

func (p *PIC) readCommand(c *controller) uint8 {
	if c.readISR {
		return c.isr
	}
	return c.irr
}

func (p *PIC) writeData(c *controller, v uint8) {
	switch c.icwStep {
	case 1:
		c.vectorBase = v &^ 0x07
		c.icwStep = 2
	case 2:
		c.slaveID = v
		if c.needICW4 {
			c.icwStep = 3
		} else {
			c.icwStep = 0
		}
	case 3:
		c.autoEOI = v&0x02 != 0
		c.icwStep = 0
	default:
		c.imr = v
		p.reevaluate()
	}
}

func (p *PIC) readData(c *controller) uint8 { return c.imr }

// SerializationID identifies the PIC section in a save-state file.
const SerializationID uint32 = 1

func (p *PIC) Save() ([]byte, error) {
	buf := make([]byte, 4+6*2)
	binary.LittleEndian.PutUint32(buf[0:], SerializationID)
	saveController(buf[4:], &p.master)
	saveController(buf[10:], &p.slave)
	return buf, nil
}

func saveController(dst []byte, c *controller) {
	dst[0], dst[1], dst[2] = c.irr, c.imr, c.isr
	dst[3] = c.vectorBase
	dst[4] = boolToByte(c.autoEOI)
	dst[5] = boolToByte(c.readISR)
}

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func (p *PIC) Load(data []byte) error {
	if len(data) < 16 {
		return fmt.Errorf("pic: truncated state (%d bytes)", len(data))
	}
	if id := binary.LittleEndian.Uint32(data); id != SerializationID {
		return fmt.Errorf("pic: unexpected serialization id %d", id)
	}
	loadController(data[4:], &p.master)
	loadController(data[10:], &p.slave)
	return nil
}

func loadController(src []byte, c *controller) {
	c.irr, c.imr, c.isr = src[0], src[1], src[2]
	c.vectorBase = src[3]
	c.autoEOI = src[4] != 0
	c.readISR = src[5] != 0
}
