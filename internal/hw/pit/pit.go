// Package pit implements an 8253/8254-compatible programmable interval
// timer: three independent counting channels sharing the PC's 1.193182MHz
// reference clock, the same chip that generates the system tick on IRQ0
// (channel 0), drives the PC speaker tone (channel 2), and historically
// refreshed DRAM (channel 1, unused by this subset beyond being
// programmable). Each channel is modeled as its own internal/event
// TimingEvent so the scheduler, not an ad hoc cycle counter, owns its
// timing the same way internal/hw/pic owns line state rather than polling.
package pit

import (
	"encoding/binary"
	"fmt"

	"github.com/rcornwell/pce/internal/bus"
	"github.com/rcornwell/pce/internal/event"
	"github.com/rcornwell/pce/internal/simtime"
)

// baseFrequency is the PIT's reference clock: the PC/AT crystal divided
// down to 1.193182MHz, the rate every channel's counter decrements at.
const baseFrequency = 1_193_182.0

// IRQRaiser is how channel 0 tells the interrupt controller its counter
// has reached zero. Supplied by whatever owns both the PIT and the PIC
// (System), mirroring pic.RaiseLine's shape without importing package pic.
type IRQRaiser func(line int)

// accessMode mirrors the RW field of an 8253 control word.
const (
	accessLatch accessModeT = iota
	accessLow
	accessHigh
	accessLowHigh
)

type accessModeT int

type channel struct {
	mode       int
	bcd        bool
	accessMode accessModeT
	reload     uint16 // programmed count, 0 means 0x10000
	writeState int    // 0/1, which half of a lobyte/hibyte write is next
	readState  int    // 0/1, which half of a lobyte/hibyte read is next
	latched    uint16
	hasLatch   bool
	output     bool
	ev         *event.EventHandle
}

// PIT is the three-channel counter/timer pair wired to ports 0x40-0x43.
type PIT struct {
	channels [3]channel
	b        *bus.Bus
	sched    *event.Scheduler
	raiseIRQ IRQRaiser
}

// New builds a PIT whose channel 0 terminal count calls raiseIRQ(0) once
// per period, the way a real PC's channel 0 output feeds IRQ0 directly.
func New(b *bus.Bus, sched *event.Scheduler, raiseIRQ IRQRaiser) *PIT {
	return &PIT{b: b, sched: sched, raiseIRQ: raiseIRQ}
}

func (p *PIT) Name() string { return "pit" }

func (p *PIT) Initialize() error {
	for i := 0; i < 3; i++ {
		idx := i
		p.b.RegisterPort(0x40+uint16(idx), "pit", bus.PortHandlers{
			ReadByte:  func() uint8 { return p.readData(idx) },
			WriteByte: func(v uint8) { p.writeData(idx, v) },
		})
	}
	p.b.RegisterPort(0x43, "pit", bus.PortHandlers{
		WriteByte: func(v uint8) { p.writeControl(v) },
	})
	return nil
}

// Reset clears every channel's programming. A real 8253's counters are
// left running after reset with whatever they were last told to do;
// nothing fires until BIOS or the OS issues a fresh control word, so no
// channel is rearmed here.
func (p *PIT) Reset() {
	for i := range p.channels {
		if p.channels[i].ev != nil {
			p.channels[i].ev.Deactivate()
		}
		p.channels[i] = channel{}
	}
}

func (p *PIT) Shutdown() {}

func (p *PIT) writeControl(v uint8) {
	sel := int((v >> 6) & 0x3)
	if sel == 3 {
		// Readback command (8254-only); not implemented by this subset.
		return
	}
	rw := accessModeT((v >> 4) & 0x3)
	if rw == accessLatch {
		p.latchCount(sel)
		return
	}
	mode := int((v >> 1) & 0x7)
	if mode == 6 {
		mode = 2
	} else if mode == 7 {
		mode = 3
	}
	ch := &p.channels[sel]
	ch.accessMode = rw
	ch.mode = mode
	ch.bcd = v&0x01 != 0
	ch.writeState = 0
	ch.readState = 0
	ch.hasLatch = false
}

func (p *PIT) latchCount(idx int) {
	ch := &p.channels[idx]
	if ch.hasLatch {
		return
	}
	ch.latched = p.currentCount(idx)
	ch.hasLatch = true
	ch.readState = 0
}

func (p *PIT) writeData(idx int, v uint8) {
	ch := &p.channels[idx]
	switch ch.accessMode {
	case accessLow:
		ch.reload = uint16(v)
		p.arm(idx, ch.reload)
	case accessHigh:
		ch.reload = uint16(v) << 8
		p.arm(idx, ch.reload)
	case accessLowHigh:
		if ch.writeState == 0 {
			ch.reload = (ch.reload &^ 0x00FF) | uint16(v)
			ch.writeState = 1
		} else {
			ch.reload = (ch.reload & 0x00FF) | (uint16(v) << 8)
			ch.writeState = 0
			p.arm(idx, ch.reload)
		}
	case accessLatch:
		// No data register selected yet; ignore stray writes.
	}
}

func (p *PIT) readData(idx int) uint8 {
	ch := &p.channels[idx]
	count := ch.latched
	if !ch.hasLatch {
		count = p.currentCount(idx)
	}
	switch ch.accessMode {
	case accessHigh:
		ch.hasLatch = false
		return uint8(count >> 8)
	case accessLowHigh:
		if ch.readState == 0 {
			ch.readState = 1
			return uint8(count)
		}
		ch.readState = 0
		ch.hasLatch = false
		return uint8(count >> 8)
	default: // accessLow, accessLatch
		ch.hasLatch = false
		return uint8(count)
	}
}

// arm (re)programs channel idx's TimingEvent for a fresh count, replacing
// any event already driving it. count==0 means the full 0x10000 range, the
// same convention the 8253 itself uses.
func (p *PIT) arm(idx int, count uint16) {
	ch := &p.channels[idx]
	if ch.ev != nil {
		ch.ev.Deactivate()
	}
	ticks := int64(count)
	if ticks == 0 {
		ticks = 0x10000
	}
	ch.ev = p.sched.CreateEvent(channelName(idx), baseFrequency, ticks, p.terminalCount(idx), true)
}

func channelName(idx int) string {
	return fmt.Sprintf("pit.channel%d", idx)
}

// terminalCount returns the callback fired when channel idx's count
// reaches zero: mode 0 is a one-shot (output goes high and the channel
// stops), modes 2 and 3 are periodic (the event's own fixed interval
// re-arms it automatically), and the remaining modes are treated as
// one-shot approximations since this subset does not model gate timing.
func (p *PIT) terminalCount(idx int) event.Callback {
	return func(cycles int64, late int64) {
		ch := &p.channels[idx]
		ch.output = true
		if idx == 0 && p.raiseIRQ != nil {
			p.raiseIRQ(0)
		}
		switch ch.mode {
		case 2, 3:
			// Periodic: leave active, the scheduler re-arms it at the
			// same interval.
		default:
			ch.ev.Deactivate()
		}
	}
}

// currentCount reads the live remaining count off the scheduler without
// disturbing the channel's event, converting simulated nanoseconds back
// into PIT ticks at the reference clock rate.
func (p *PIT) currentCount(idx int) uint16 {
	ch := &p.channels[idx]
	if ch.ev == nil {
		return ch.reload
	}
	period := simtime.CyclePeriod(baseFrequency)
	if period == 0 {
		return 0
	}
	remaining := ch.ev.Event().Downcount(p.sched.Now())
	return uint16(int64(remaining / period))
}

// SerializationID identifies the PIT section in a save-state file.
const SerializationID uint32 = 2

func (p *PIT) Save() ([]byte, error) {
	buf := make([]byte, 4+3*6)
	binary.LittleEndian.PutUint32(buf[0:], SerializationID)
	for i := range p.channels {
		saveChannel(buf[4+i*6:], &p.channels[i], p.currentCount(i))
	}
	return buf, nil
}

func saveChannel(dst []byte, c *channel, live uint16) {
	dst[0] = uint8(c.mode)
	dst[1] = boolToByte(c.bcd)
	dst[2] = uint8(c.accessMode)
	binary.LittleEndian.PutUint16(dst[3:], c.reload)
	dst[5] = boolToByte(c.output)
	_ = live // current live count is not restored; channel rearms fresh
}

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func (p *PIT) Load(data []byte) error {
	if len(data) < 4+3*6 {
		return fmt.Errorf("pit: truncated state (%d bytes)", len(data))
	}
	if id := binary.LittleEndian.Uint32(data); id != SerializationID {
		return fmt.Errorf("pit: unexpected serialization id %d", id)
	}
	for i := range p.channels {
		src := data[4+i*6:]
		ch := &p.channels[i]
		ch.mode = int(src[0])
		ch.bcd = src[1] != 0
		ch.accessMode = accessModeT(src[2])
		ch.reload = binary.LittleEndian.Uint16(src[3:])
		ch.output = src[5] != 0
		// A channel never given a control word has no event in the saved
		// set, so it is left unarmed, as Reset leaves it.
		if ch.accessMode != accessLatch {
			p.arm(i, ch.reload)
		}
	}
	return nil
}
