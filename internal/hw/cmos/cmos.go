// Package cmos implements an MC146818-compatible real-time clock and
// battery-backed NVRAM, the PC/AT's ports 0x70/0x71 pair: one index
// register selecting a byte of a 128-byte bank, one data register
// reading or writing the selected byte. The first fourteen bytes are the
// clock/alarm/status registers; the rest is general-purpose NVRAM the
// BIOS traditionally uses to remember equipment and memory-size bytes.
package cmos

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/rcornwell/pce/internal/bus"
	"github.com/rcornwell/pce/internal/event"
)

// Register offsets within the 128-byte bank.
const (
	regSeconds      = 0x00
	regSecondsAlarm = 0x01
	regMinutes      = 0x02
	regMinutesAlarm = 0x03
	regHours        = 0x04
	regHoursAlarm   = 0x05
	regDayOfWeek    = 0x06
	regDateOfMonth  = 0x07
	regMonth        = 0x08
	regYear         = 0x09
	regStatusA      = 0x0A
	regStatusB      = 0x0B
	regStatusC      = 0x0C
	regStatusD      = 0x0D
)

const nvramSize = 128

// CMOS is the clock/NVRAM chip, addressed through its index (0x70) and
// data (0x71) ports.
type CMOS struct {
	b        *bus.Bus
	sched    *event.Scheduler
	nvram    [nvramSize]byte
	index    uint8
	baseUnix int64 // simulated RTC's Unix time at sched.Now() == 0
}

// New builds a CMOS chip whose clock reads baseUnix plus however much
// simulated time has passed. Genuinely live-settable time (writing the
// clock registers while Status Register B's SET bit is clear) is out of
// scope for this subset: writes to the time/date registers are stored at
// any time but are only read back while SET is held, matching real
// hardware's "freeze while programming" behavior without modeling a
// persistent user-applied offset once SET is released.
func New(b *bus.Bus, sched *event.Scheduler, baseUnix int64) *CMOS {
	c := &CMOS{b: b, sched: sched, baseUnix: baseUnix}
	c.nvram[regStatusD] = 0x80 // battery good
	return c
}

func (c *CMOS) Name() string { return "cmos" }

func (c *CMOS) Initialize() error {
	c.b.RegisterPort(0x70, "cmos", bus.PortHandlers{
		WriteByte: func(v uint8) { c.index = v & 0x7F },
	})
	c.b.RegisterPort(0x71, "cmos", bus.PortHandlers{
		ReadByte:  func() uint8 { return c.readReg(c.index) },
		WriteByte: func(v uint8) { c.writeReg(c.index, v) },
	})
	return nil
}

// Reset clears the volatile index register only; NVRAM is battery-backed
// and survives a machine reset on real hardware.
func (c *CMOS) Reset() {
	c.index = 0
}

func (c *CMOS) Shutdown() {}

func (c *CMOS) setMode() bool    { return c.nvram[regStatusB]&0x80 != 0 }
func (c *CMOS) binaryMode() bool { return c.nvram[regStatusB]&0x04 != 0 }
func (c *CMOS) hour24Mode() bool { return c.nvram[regStatusB]&0x02 != 0 }

func (c *CMOS) readReg(idx uint8) uint8 {
	switch {
	case idx < 10 && !c.setMode():
		return c.liveTimeField(idx)
	case idx == regStatusA:
		return c.nvram[regStatusA] &^ 0x80 // UIP always reports idle
	case idx == regStatusC:
		v := c.nvram[regStatusC]
		c.nvram[regStatusC] = 0 // reading Status C clears pending flags
		return v
	case idx == regStatusD:
		return c.nvram[regStatusD] | 0x80
	case int(idx) >= nvramSize:
		return 0xFF
	default:
		return c.nvram[idx]
	}
}

func (c *CMOS) writeReg(idx, v uint8) {
	switch {
	case idx == regStatusC, idx == regStatusD:
		// Read-only.
	case int(idx) < nvramSize:
		c.nvram[idx] = v
	}
}

func (c *CMOS) liveTimeField(idx uint8) uint8 {
	elapsedSec := int64(c.sched.Now()) / 1_000_000_000
	t := time.Unix(c.baseUnix+elapsedSec, 0).UTC()
	binaryMode := c.binaryMode()

	switch idx {
	case regSeconds:
		return encode(t.Second(), binaryMode)
	case regSecondsAlarm:
		return c.nvram[regSecondsAlarm]
	case regMinutes:
		return encode(t.Minute(), binaryMode)
	case regMinutesAlarm:
		return c.nvram[regMinutesAlarm]
	case regHours:
		return c.encodeHours(t.Hour(), binaryMode)
	case regHoursAlarm:
		return c.nvram[regHoursAlarm]
	case regDayOfWeek:
		return encode(int(t.Weekday())+1, binaryMode)
	case regDateOfMonth:
		return encode(t.Day(), binaryMode)
	case regMonth:
		return encode(int(t.Month()), binaryMode)
	case regYear:
		return encode(t.Year()%100, binaryMode)
	default:
		return 0
	}
}

func (c *CMOS) encodeHours(hour24 int, binaryMode bool) uint8 {
	if c.hour24Mode() {
		return encode(hour24, binaryMode)
	}
	h12 := hour24 % 12
	if h12 == 0 {
		h12 = 12
	}
	v := encode(h12, binaryMode)
	if hour24 >= 12 {
		v |= 0x80
	}
	return v
}

func encode(v int, binaryMode bool) uint8 {
	if binaryMode {
		return uint8(v)
	}
	return uint8(((v / 10) << 4) | (v % 10))
}

// SerializationID identifies the CMOS section in a save-state file.
const SerializationID uint32 = 3

func (c *CMOS) Save() ([]byte, error) {
	buf := make([]byte, 4+1+nvramSize+8)
	binary.LittleEndian.PutUint32(buf[0:], SerializationID)
	buf[4] = c.index
	copy(buf[5:], c.nvram[:])
	binary.LittleEndian.PutUint64(buf[5+nvramSize:], uint64(c.baseUnix))
	return buf, nil
}

func (c *CMOS) Load(data []byte) error {
	want := 4 + 1 + nvramSize + 8
	if len(data) < want {
		return fmt.Errorf("cmos: truncated state (%d bytes, want %d)", len(data), want)
	}
	if id := binary.LittleEndian.Uint32(data); id != SerializationID {
		return fmt.Errorf("cmos: unexpected serialization id %d", id)
	}
	c.index = data[4]
	copy(c.nvram[:], data[5:5+nvramSize])
	c.baseUnix = int64(binary.LittleEndian.Uint64(data[5+nvramSize:]))
	return nil
}
