// Package fdc implements an NEC765/8272A-compatible floppy disk
// controller: the digital output register and main status register at
// 0x3F2/0x3F4, the shared command/data/result FIFO at 0x3F5, and the
// command subset a PC BIOS floppy boot path and a simple OS driver
// actually issue (SPECIFY, RECALIBRATE, SEEK, SENSE INTERRUPT STATUS,
// READ DATA, WRITE DATA). A drive is backed by a flat sector image the
// same way internal/hw/ata's drive is, generalized here to 3.5" 1.44MB
// CHS geometry (80 cylinders, 2 heads, 18 sectors/track) instead of
// ATA's flat LBA addressing.
package fdc

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/rcornwell/pce/internal/bus"
)

const (
	cylinders      = 80
	heads          = 2
	sectorsPerTrk  = 18
	bytesPerSector = 512
)

// Main Status Register bits (port 0x3F4, read-only).
const (
	msrRQM = 1 << 7 // ready for a command/data byte
	msrDIO = 1 << 6 // 1 = FDC->CPU (read), 0 = CPU->FDC (write)
	msrCB  = 1 << 4 // command busy
)

// phase tracks where the controller is in a command's command/
// execution/result life cycle.
type phase int

const (
	phaseIdle phase = iota
	phaseCommand
	phaseExecRead
	phaseExecWrite
	phaseResult
)

// Command opcodes (low 5 bits of the first command byte; the upper
// three bits are MT/MFM/SK modifiers this subset ignores).
const (
	cmdSpecify         = 0x03
	cmdSenseDriveStat  = 0x04
	cmdWriteData       = 0x05
	cmdReadData        = 0x06
	cmdRecalibrate     = 0x07
	cmdSenseInterrupt  = 0x08
	cmdSeek            = 0x0F
)

var commandLength = map[uint8]int{
	cmdSpecify:        3,
	cmdSenseDriveStat: 2,
	cmdWriteData:      9,
	cmdReadData:       9,
	cmdRecalibrate:    2,
	cmdSenseInterrupt: 1,
	cmdSeek:           3,
}

// IRQRaiser notifies the interrupt controller; wired to pic.PIC.RaiseIRQ
// for IRQ6.
type IRQRaiser func(line int)

// Controller is a single floppy drive and its NEC765 front end.
type Controller struct {
	b     *bus.Bus
	raise IRQRaiser

	img *os.File

	dor    uint8
	msr    uint8
	ph     phase
	cmd    []byte
	cmdLen int
	result []byte
	resPos int

	data    [bytesPerSector]byte
	dataPos int

	cylinder, head, sector uint8
	st0, st1, st2          uint8
	seekDone               bool
}

// New builds a floppy controller with no media attached.
func New(b *bus.Bus, raise IRQRaiser) *Controller {
	return &Controller{b: b, raise: raise, msr: msrRQM}
}

func (c *Controller) Initialize() error {
	c.b.RegisterPort(0x3F2, c.Name(), bus.PortHandlers{
		WriteByte: c.writeDOR,
	})
	c.b.RegisterPort(0x3F4, c.Name(), bus.PortHandlers{
		ReadByte: c.readMSR,
	})
	c.b.RegisterPort(0x3F5, c.Name(), bus.PortHandlers{
		ReadByte:  c.readData,
		WriteByte: c.writeData,
	})
	return nil
}

// AttachImage opens path as the drive's backing 1.44MB image.
func (c *Controller) AttachImage(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("fdc: open %s: %w", path, err)
	}
	c.img = f
	return nil
}

func (c *Controller) Name() string { return "fdc" }

// Detach closes the drive's backing image, if any, and marks it absent.
func (c *Controller) Detach() error {
	if c.img == nil {
		return nil
	}
	err := c.img.Close()
	c.img = nil
	return err
}

func (c *Controller) Reset() {
	c.dor = 0
	c.msr = msrRQM
	c.ph = phaseIdle
	c.cmd = nil
	c.result = nil
	c.resPos = 0
	c.dataPos = 0
	c.cylinder, c.head, c.sector = 0, 0, 1
	c.st0, c.st1, c.st2 = 0, 0, 0
	c.seekDone = false
}

func (c *Controller) Shutdown() {
	if c.img != nil {
		c.img.Close()
	}
}

func (c *Controller) readMSR() uint8 { return c.msr }

func (c *Controller) writeDOR(v uint8) { c.dor = v }

func (c *Controller) readData() uint8 {
	switch c.ph {
	case phaseResult:
		if c.resPos >= len(c.result) {
			return 0
		}
		v := c.result[c.resPos]
		c.resPos++
		if c.resPos >= len(c.result) {
			c.ph = phaseIdle
			c.msr = msrRQM
		}
		return v
	case phaseExecRead:
		if c.dataPos >= bytesPerSector {
			return 0
		}
		v := c.data[c.dataPos]
		c.dataPos++
		if c.dataPos >= bytesPerSector {
			c.finishTransfer(nil)
		}
		return v
	default:
		return 0
	}
}

func (c *Controller) writeData(v uint8) {
	switch c.ph {
	case phaseIdle, phaseCommand:
		c.cmd = append(c.cmd, v)
		if len(c.cmd) == 1 {
			op := v & 0x1F
			n, ok := commandLength[op]
			if !ok {
				c.cmdLen = 1
			} else {
				c.cmdLen = n
			}
			c.ph = phaseCommand
			c.msr = msrCB
		}
		if len(c.cmd) >= c.cmdLen {
			c.execute()
		}
	case phaseExecWrite:
		if c.dataPos < bytesPerSector {
			c.data[c.dataPos] = v
			c.dataPos++
		}
		if c.dataPos >= bytesPerSector {
			c.finishTransfer(c.commitWrite)
		}
	}
}

func (c *Controller) execute() {
	op := c.cmd[0] & 0x1F
	switch op {
	case cmdSpecify:
		c.enterIdleReady()
	case cmdSenseDriveStat:
		c.result = []uint8{c.st3()}
		c.resPos = 0
		c.ph = phaseResult
		c.msr = msrRQM | msrDIO | msrCB
	case cmdRecalibrate:
		c.cylinder = 0
		c.seekDone = true
		c.st0 = 0x20
		c.notify()
		c.enterIdleReady()
	case cmdSeek:
		c.head = (c.cmd[1] >> 2) & 1
		c.cylinder = c.cmd[2]
		c.seekDone = true
		c.st0 = 0x20
		c.notify()
		c.enterIdleReady()
	case cmdSenseInterrupt:
		c.result = []uint8{c.st0, c.cylinder}
		c.resPos = 0
		c.ph = phaseResult
		c.msr = msrRQM | msrDIO | msrCB
	case cmdReadData:
		c.beginTransfer(phaseExecRead)
	case cmdWriteData:
		c.beginTransfer(phaseExecWrite)
	default:
		c.st0 = 0x80 // invalid command
		c.result = []uint8{c.st0}
		c.resPos = 0
		c.ph = phaseResult
		c.msr = msrRQM | msrDIO | msrCB
	}
	c.cmd = nil
}

func (c *Controller) st3() uint8 {
	v := uint8(0x20) // track 0 line, drive ready bit conventionally reported here too
	if c.cylinder == 0 {
		v |= 0x10
	}
	return v
}

func (c *Controller) enterIdleReady() {
	c.ph = phaseIdle
	c.msr = msrRQM
}

// beginTransfer decodes a READ/WRITE DATA command's parameter bytes
// (cmd[1]=head/drive, cmd[2]=cylinder, cmd[3]=head, cmd[4]=sector,
// cmd[5]=size code, cmd[6]=EOT) and loads (for a read) or arms (for a
// write) the single-sector data buffer. Multi-sector chaining within one
// command is out of scope: a BIOS boot path and a simple driver both
// issue one READ/WRITE DATA per sector.
func (c *Controller) beginTransfer(ph phase) {
	c.head = (c.cmd[1] >> 2) & 1
	c.cylinder = c.cmd[2]
	c.sector = c.cmd[4]
	c.dataPos = 0
	c.st0, c.st1, c.st2 = 0, 0, 0
	c.ph = ph
	if ph == phaseExecRead {
		c.loadSector()
		c.msr = msrRQM | msrDIO | msrCB
	} else {
		c.msr = msrRQM | msrCB
	}
}

func (c *Controller) lba() int64 {
	return int64(c.cylinder)*heads*sectorsPerTrk + int64(c.head)*sectorsPerTrk + int64(c.sector-1)
}

func (c *Controller) loadSector() {
	if c.img == nil {
		c.st0 = 0x40 // abnormal termination
		c.st1 = 0x01 // no data
		for i := range c.data {
			c.data[i] = 0
		}
		return
	}
	off := c.lba() * bytesPerSector
	n, err := c.img.ReadAt(c.data[:], off)
	if err != nil && n == 0 {
		c.st0 = 0x40
		c.st1 = 0x01
	}
}

func (c *Controller) commitWrite() {
	if c.img == nil {
		c.st0 = 0x40
		c.st1 = 0x02 // not writable
		return
	}
	off := c.lba() * bytesPerSector
	if _, err := c.img.WriteAt(c.data[:], off); err != nil {
		c.st0 = 0x40
		c.st1 = 0x02
	}
}

// finishTransfer runs commit (nil for a read) then assembles the seven
// standard result-phase bytes (ST0-2, cylinder, head, sector, size code)
// and raises IRQ6, the same end-of-command signal a real NEC765 issues
// for every READ/WRITE DATA.
func (c *Controller) finishTransfer(commit func()) {
	if commit != nil {
		commit()
	}
	c.result = []uint8{c.st0, c.st1, c.st2, c.cylinder, c.head, c.sector, 2}
	c.resPos = 0
	c.ph = phaseResult
	c.msr = msrRQM | msrDIO | msrCB
	c.notify()
}

func (c *Controller) notify() {
	if c.raise != nil {
		c.raise(6)
	}
}

// SerializationID identifies the FDC section in a save-state file.
const SerializationID uint32 = 7

func (c *Controller) Save() ([]byte, error) {
	buf := make([]byte, 4+8+bytesPerSector)
	binary.LittleEndian.PutUint32(buf[0:], SerializationID)
	buf[4] = c.dor
	buf[5] = c.cylinder
	buf[6] = c.head
	buf[7] = c.sector
	buf[8] = c.st0
	buf[9] = c.st1
	buf[10] = c.st2
	buf[11] = boolToByte(c.seekDone)
	copy(buf[12:], c.data[:])
	return buf, nil
}

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func (c *Controller) Load(data []byte) error {
	want := 4 + 8 + bytesPerSector
	if len(data) < want {
		return fmt.Errorf("fdc: truncated state (%d bytes, want %d)", len(data), want)
	}
	if id := binary.LittleEndian.Uint32(data); id != SerializationID {
		return fmt.Errorf("fdc: unexpected serialization id %d", id)
	}
	c.dor = data[4]
	c.cylinder = data[5]
	c.head = data[6]
	c.sector = data[7]
	c.st0 = data[8]
	c.st1 = data[9]
	c.st2 = data[10]
	c.seekDone = data[11] != 0
	copy(c.data[:], data[12:12+bytesPerSector])
	c.ph = phaseIdle
	c.msr = msrRQM
	return nil
}
