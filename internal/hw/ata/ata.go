// Package ata implements a single-channel ATA/IDE controller in PIO
// mode: the classic primary-channel port layout (0x1F0-0x1F7 plus the
// 0x3F6 device control/alternate status register), LBA28 addressing,
// and the READ SECTORS/WRITE SECTORS/IDENTIFY DEVICE command subset
// every PC BIOS and DOS-era driver actually issues. A drive is backed
// by a flat sector image opened with os.File, the same file-backed
// media approach the teacher's util/tape and util/card packages use
// for their own removable media, generalized from tape/card block
// structure to fixed 512-byte LBA sectors.
package ata

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/rcornwell/pce/internal/bus"
)

const sectorSize = 512

// Status register bits.
const (
	statusErr  = 1 << 0
	statusDRQ  = 1 << 3
	statusDSC  = 1 << 4
	statusDRDY = 1 << 6
	statusBSY  = 1 << 7
)

// Commands.
const (
	cmdReadSectors   = 0x20
	cmdWriteSectors  = 0x30
	cmdIdentify      = 0xEC
	cmdSetFeatures   = 0xEF
	cmdInitializeDev = 0x91
)

// IRQRaiser notifies the interrupt controller; wired to pic.PIC.RaiseIRQ
// for IRQ14 (primary channel) or IRQ15 (secondary).
type IRQRaiser func(line int)

// Drive is one IDE device: a flat LBA sector image plus its registers.
type Drive struct {
	img         *os.File
	sectorCount uint32 // capacity in sectors, 0 if no media attached

	features   uint8
	sectCount  uint8
	lbaLow     uint8
	lbaMid     uint8
	lbaHigh    uint8
	driveHead  uint8 // bit6 set = LBA mode, bits0-3 = LBA27-24
	status     uint8
	errorReg   uint8
	buf        [sectorSize]byte
	bufPos     int
	remaining  uint32 // sectors left in the current multi-sector transfer
	writing    bool
	identifyOp bool
}

// Controller is the primary IDE channel, master drive only in this
// subset (no slave select logic, the combination a single fixed disk
// image needs).
type Controller struct {
	b     *bus.Bus
	base  uint16 // 0x1F0 primary, 0x170 secondary
	irq   int
	raise IRQRaiser
	drive Drive
}

// New builds a controller with no media attached; call AttachImage to
// back its drive with a file.
func New(b *bus.Bus, base uint16, irq int, raise IRQRaiser) *Controller {
	c := &Controller{b: b, base: base, irq: irq, raise: raise}
	c.drive.status = statusDRDY | statusDSC
	return c
}

// AttachImage opens path as the drive's backing sector image.
func (c *Controller) AttachImage(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("ata: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	c.drive.img = f
	c.drive.sectorCount = uint32(info.Size() / sectorSize)
	return nil
}

func (c *Controller) Name() string { return fmt.Sprintf("ata@%#x", c.base) }

// Detach closes the drive's backing image, if any, and marks it absent.
func (c *Controller) Detach() error {
	if c.drive.img == nil {
		return nil
	}
	err := c.drive.img.Close()
	c.drive.img = nil
	c.drive.sectorCount = 0
	return err
}

func (c *Controller) Shutdown() {
	if c.drive.img != nil {
		c.drive.img.Close()
	}
}

func (c *Controller) Reset() {
	d := &c.drive
	d.features, d.sectCount, d.lbaLow, d.lbaMid, d.lbaHigh, d.driveHead = 0, 0, 0, 0, 0, 0
	d.status = statusDRDY | statusDSC
	d.errorReg = 0
	d.bufPos = 0
	d.remaining = 0
	d.writing = false
	d.identifyOp = false
}

func (c *Controller) lba() uint32 {
	d := &c.drive
	return uint32(d.lbaLow) | uint32(d.lbaMid)<<8 | uint32(d.lbaHigh)<<16 | uint32(d.driveHead&0x0F)<<24
}

func (c *Controller) setLBA(lba uint32) {
	d := &c.drive
	d.lbaLow = uint8(lba)
	d.lbaMid = uint8(lba >> 8)
	d.lbaHigh = uint8(lba >> 16)
	d.driveHead = (d.driveHead &^ 0x0F) | uint8((lba>>24)&0x0F)
}

func (c *Controller) readData() uint16 {
	d := &c.drive
	if d.bufPos+2 > sectorSize {
		return 0
	}
	v := uint16(d.buf[d.bufPos]) | uint16(d.buf[d.bufPos+1])<<8
	d.bufPos += 2
	if d.bufPos >= sectorSize {
		c.finishBuffer()
	}
	return v
}

func (c *Controller) writeData(v uint16) {
	d := &c.drive
	if !d.writing || d.bufPos+2 > sectorSize {
		return
	}
	d.buf[d.bufPos] = uint8(v)
	d.buf[d.bufPos+1] = uint8(v >> 8)
	d.bufPos += 2
	if d.bufPos >= sectorSize {
		c.commitSector()
	}
}

// finishBuffer is called once a READ SECTORS or IDENTIFY buffer has been
// fully drained by the host; it either loads the next sector or ends the
// transfer.
func (c *Controller) finishBuffer() {
	d := &c.drive
	d.bufPos = 0
	if d.identifyOp {
		d.identifyOp = false
		d.status = statusDRDY | statusDSC
		return
	}
	d.remaining--
	if d.remaining == 0 {
		d.status = statusDRDY | statusDSC
		return
	}
	c.setLBA(c.lba() + 1)
	c.loadSector()
	c.notify()
}

func (c *Controller) commitSector() {
	d := &c.drive
	if d.img != nil {
		off := int64(c.lba()) * sectorSize
		if _, err := d.img.WriteAt(d.buf[:], off); err != nil {
			d.status = statusErr | statusDRDY
			d.errorReg = 0x04 // ABRT
			c.notify()
			return
		}
	}
	d.bufPos = 0
	d.remaining--
	if d.remaining == 0 {
		d.writing = false
		d.status = statusDRDY | statusDSC
	} else {
		c.setLBA(c.lba() + 1)
	}
	c.notify()
}

func (c *Controller) loadSector() {
	d := &c.drive
	if d.img == nil {
		d.status = statusErr | statusDRDY
		d.errorReg = 0x10 // IDNF, no media
		return
	}
	off := int64(c.lba()) * sectorSize
	n, err := d.img.ReadAt(d.buf[:], off)
	if err != nil && err != io.EOF {
		d.status = statusErr | statusDRDY
		d.errorReg = 0x04
		return
	}
	for i := n; i < sectorSize; i++ {
		d.buf[i] = 0
	}
	d.status = statusDRDY | statusDRQ | statusDSC
}

func (c *Controller) writeCommand(cmd uint8) {
	d := &c.drive
	switch cmd {
	case cmdReadSectors:
		d.remaining = uint32(d.sectCount)
		if d.remaining == 0 {
			d.remaining = 256
		}
		d.writing = false
		d.bufPos = 0
		c.loadSector()
		c.notify()
	case cmdWriteSectors:
		d.remaining = uint32(d.sectCount)
		if d.remaining == 0 {
			d.remaining = 256
		}
		d.writing = true
		d.bufPos = 0
		d.status = statusDRDY | statusDRQ
	case cmdIdentify:
		c.fillIdentify()
		d.identifyOp = true
		d.bufPos = 0
		d.status = statusDRDY | statusDRQ
		c.notify()
	case cmdSetFeatures, cmdInitializeDev:
		d.status = statusDRDY | statusDSC
		c.notify()
	default:
		d.status = statusErr | statusDRDY
		d.errorReg = 0x04 // command aborted, unsupported
		c.notify()
	}
}

func (c *Controller) fillIdentify() {
	d := &c.drive
	for i := range d.buf {
		d.buf[i] = 0
	}
	cylinders := d.sectorCount / (16 * 63)
	binary.LittleEndian.PutUint16(d.buf[1*2:], uint16(cylinders))
	binary.LittleEndian.PutUint16(d.buf[3*2:], 16)
	binary.LittleEndian.PutUint16(d.buf[6*2:], 63)
	binary.LittleEndian.PutUint16(d.buf[49*2:], 1<<9) // LBA supported
	binary.LittleEndian.PutUint16(d.buf[60*2:], uint16(d.sectorCount))
	binary.LittleEndian.PutUint16(d.buf[61*2:], uint16(d.sectorCount>>16))
}

func (c *Controller) notify() {
	if c.raise != nil {
		c.raise(c.irq)
	}
}

// Initialize registers the channel's nine I/O ports: the eight
// task-file registers at base+0..base+7 and the device control/
// alternate status register at base+0x206 (0x3F6 for the primary
// channel at base 0x1F0).
func (c *Controller) Initialize() error {
	c.b.RegisterPort(c.base+0, c.Name(), bus.PortHandlers{
		ReadWord:  c.readData,
		WriteWord: c.writeData,
	})
	c.b.RegisterPort(c.base+1, c.Name(), bus.PortHandlers{
		ReadByte:  func() uint8 { return c.drive.errorReg },
		WriteByte: func(v uint8) { c.drive.features = v },
	})
	c.b.RegisterPort(c.base+2, c.Name(), bus.PortHandlers{
		ReadByte:  func() uint8 { return c.drive.sectCount },
		WriteByte: func(v uint8) { c.drive.sectCount = v },
	})
	c.b.RegisterPort(c.base+3, c.Name(), bus.PortHandlers{
		ReadByte:  func() uint8 { return c.drive.lbaLow },
		WriteByte: func(v uint8) { c.drive.lbaLow = v },
	})
	c.b.RegisterPort(c.base+4, c.Name(), bus.PortHandlers{
		ReadByte:  func() uint8 { return c.drive.lbaMid },
		WriteByte: func(v uint8) { c.drive.lbaMid = v },
	})
	c.b.RegisterPort(c.base+5, c.Name(), bus.PortHandlers{
		ReadByte:  func() uint8 { return c.drive.lbaHigh },
		WriteByte: func(v uint8) { c.drive.lbaHigh = v },
	})
	c.b.RegisterPort(c.base+6, c.Name(), bus.PortHandlers{
		ReadByte:  func() uint8 { return c.drive.driveHead },
		WriteByte: func(v uint8) { c.drive.driveHead = v },
	})
	c.b.RegisterPort(c.base+7, c.Name(), bus.PortHandlers{
		ReadByte:  func() uint8 { return c.drive.status },
		WriteByte: c.writeCommand,
	})
	c.b.RegisterPort(c.base+0x206, c.Name(), bus.PortHandlers{
		ReadByte: func() uint8 { return c.drive.status },
	})
	return nil
}

// SerializationID identifies an ATA channel's section in a save-state file.
const SerializationID uint32 = 6

func (c *Controller) Save() ([]byte, error) {
	d := &c.drive
	buf := make([]byte, 4+16+sectorSize)
	binary.LittleEndian.PutUint32(buf[0:], SerializationID)
	buf[4] = d.features
	buf[5] = d.sectCount
	buf[6] = d.lbaLow
	buf[7] = d.lbaMid
	buf[8] = d.lbaHigh
	buf[9] = d.driveHead
	buf[10] = d.status
	buf[11] = d.errorReg
	binary.LittleEndian.PutUint16(buf[12:], uint16(d.bufPos))
	binary.LittleEndian.PutUint32(buf[14:], d.remaining)
	buf[18] = boolToByte(d.writing)
	buf[19] = boolToByte(d.identifyOp)
	copy(buf[20:], d.buf[:])
	return buf, nil
}

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func (c *Controller) Load(data []byte) error {
	want := 4 + 16 + sectorSize
	if len(data) < want {
		return fmt.Errorf("ata: truncated state (%d bytes, want %d)", len(data), want)
	}
	if id := binary.LittleEndian.Uint32(data); id != SerializationID {
		return fmt.Errorf("ata: unexpected serialization id %d", id)
	}
	d := &c.drive
	d.features = data[4]
	d.sectCount = data[5]
	d.lbaLow = data[6]
	d.lbaMid = data[7]
	d.lbaHigh = data[8]
	d.driveHead = data[9]
	d.status = data[10]
	d.errorReg = data[11]
	d.bufPos = int(binary.LittleEndian.Uint16(data[12:]))
	d.remaining = binary.LittleEndian.Uint32(data[14:])
	d.writing = data[18] != 0
	d.identifyOp = data[19] != 0
	copy(d.buf[:], data[20:20+sectorSize])
	return nil
}
