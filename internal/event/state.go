package event

import (
	"bytes"
	"container/heap"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rcornwell/pce/internal/simtime"
)

// ErrEventMismatch is returned by LoadState when the saved event set does
// not name-for-name match the events currently registered with the
// scheduler; per spec.md §4.7 the System refuses such a load rather than
// guess at a mapping.
var ErrEventMismatch = errors.New("event: saved event set does not match registered events")

// SaveState serializes every known event as
// {name, downcount(i64 ns), time_since_last_run(i64 ns), interval(i64
// cycles), frequency(f64 Hz), active(u8)}, preceded by a u32 count.
func (s *Scheduler) SaveState() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(s.all)))
	for _, ev := range s.all {
		writeString(&buf, ev.name)
		_ = binary.Write(&buf, binary.LittleEndian, int64(ev.Downcount(s.now)))
		_ = binary.Write(&buf, binary.LittleEndian, int64(ev.timeSinceLastRun))
		_ = binary.Write(&buf, binary.LittleEndian, ev.interval)
		_ = binary.Write(&buf, binary.LittleEndian, ev.frequency)
		active := uint8(0)
		if ev.active {
			active = 1
		}
		_ = buf.WriteByte(active)
	}
	return buf.Bytes()
}

// LoadState restores downcount/time_since_last_run/active for every event
// named in data, matching by name against already-registered events. It
// refuses (returning ErrEventMismatch) if the counts or names differ,
// leaving the scheduler's existing events untouched.
func (s *Scheduler) LoadState(data []byte) error {
	r := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("event: reading count: %w", err)
	}
	if int(count) != len(s.all) {
		return ErrEventMismatch
	}

	type restored struct {
		name             string
		downcount        int64
		timeSinceLastRun int64
		interval         int64
		frequency        float64
		active           bool
	}
	entries := make([]restored, count)
	byName := make(map[string]int, len(s.all))
	for i, ev := range s.all {
		byName[ev.name] = i
	}
	for i := range entries {
		name, err := readString(r)
		if err != nil {
			return fmt.Errorf("event: reading name: %w", err)
		}
		if _, ok := byName[name]; !ok {
			return ErrEventMismatch
		}
		var e restored
		e.name = name
		if err := binary.Read(r, binary.LittleEndian, &e.downcount); err != nil {
			return fmt.Errorf("event: reading downcount: %w", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &e.timeSinceLastRun); err != nil {
			return fmt.Errorf("event: reading time_since_last_run: %w", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &e.interval); err != nil {
			return fmt.Errorf("event: reading interval: %w", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &e.frequency); err != nil {
			return fmt.Errorf("event: reading frequency: %w", err)
		}
		active, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("event: reading active: %w", err)
		}
		e.active = active != 0
		entries[i] = e
	}

	// All entries validated; apply.
	for _, e := range entries {
		ev := s.all[byName[e.name]]
		if ev.index >= 0 {
			removeFromHeap(s, ev)
		}
		ev.interval = e.interval
		ev.frequency = e.frequency
		ev.cyclePeriod = simtime.CyclePeriod(e.frequency)
		ev.timeSinceLastRun = simtime.Time(e.timeSinceLastRun)
		ev.active = e.active
		ev.deadline = s.now + simtime.Time(e.downcount)
		if ev.active {
			pushToHeap(s, ev)
		}
	}
	return nil
}

func removeFromHeap(s *Scheduler, ev *TimingEvent) {
	heap.Remove(&s.heap, ev.index)
}

func pushToHeap(s *Scheduler, ev *TimingEvent) {
	heap.Push(&s.heap, ev)
}

func writeString(buf *bytes.Buffer, v string) {
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(v)))
	buf.WriteString(v)
}

func readString(r *bytes.Reader) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", err
	}
	b := make([]byte, length)
	if _, err := r.Read(b); err != nil {
		return "", err
	}
	return string(b), nil
}
