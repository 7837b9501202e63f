package system

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/rcornwell/pce/internal/simtime"
)

// fileSignature and fileVersion are the save-state file's fixed header,
// spec.md §6: "Signature 0xSSSSSSSS followed by a monotonically
// incremented version."
const (
	fileSignature uint32 = 0x50434531 // "PCE1"
	fileVersion   uint32 = 1

	// headerSerializationID identifies the System header section itself,
	// distinct from any component's own serialization id.
	headerSerializationID uint32 = 0
)

// writeSection appends a u32 byte-length followed by payload, the framing
// spec.md §6 uses for every section of the file.
func writeSection(buf *bytes.Buffer, payload []byte) {
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(payload)
}

// readSection reads a length-prefixed section and returns its payload.
func readSection(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("reading section length: %w", err)
	}
	payload := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(payload); err != nil {
			return nil, fmt.Errorf("reading section payload: %w", err)
		}
	}
	return payload, nil
}

// Save serializes the entire System: header, Bus, every Component in
// registration order, and every scheduler event, per spec.md §6.
func (s *System) Save() ([]byte, error) {
	var out bytes.Buffer
	_ = binary.Write(&out, binary.LittleEndian, fileSignature)
	_ = binary.Write(&out, binary.LittleEndian, fileVersion)

	var header bytes.Buffer
	_ = binary.Write(&header, binary.LittleEndian, headerSerializationID)
	writeSection(&out, header.Bytes())

	writeSection(&out, s.Bus.Save())

	var comps bytes.Buffer
	_ = binary.Write(&comps, binary.LittleEndian, uint32(len(s.components)))
	for _, c := range s.components {
		payload, err := c.Save()
		if err != nil {
			return nil, fmt.Errorf("system: saving %s: %w", c.Name(), err)
		}
		writeSection(&comps, payload)
	}
	writeSection(&out, comps.Bytes())

	events := s.Sched.Events()
	var evs bytes.Buffer
	_ = binary.Write(&evs, binary.LittleEndian, uint32(len(events)))
	for _, e := range events {
		name := e.Name()
		_ = binary.Write(&evs, binary.LittleEndian, uint32(len(name)))
		evs.WriteString(name)
		_ = binary.Write(&evs, binary.LittleEndian, int64(e.Downcount(s.Sched.Now())))
		_ = binary.Write(&evs, binary.LittleEndian, int64(e.TimeSinceLastRun()))
		_ = binary.Write(&evs, binary.LittleEndian, e.Interval())
		_ = binary.Write(&evs, binary.LittleEndian, e.Frequency())
		_ = binary.Write(&evs, binary.LittleEndian, boolToByte(e.Active()))
	}
	writeSection(&out, evs.Bytes())

	return out.Bytes(), nil
}

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Load restores a System from data produced by Save. Per spec.md §7's
// StateLoadError: a mismatched signature, version, component count, or
// event name/count abandons the load and leaves the running System
// untouched; the caller decides whether that is fatal.
func (s *System) Load(data []byte) error {
	r := bytes.NewReader(data)

	var sig, ver uint32
	if err := binary.Read(r, binary.LittleEndian, &sig); err != nil {
		return fmt.Errorf("system: reading signature: %w", err)
	}
	if sig != fileSignature {
		return fmt.Errorf("system: unexpected signature %#x, want %#x", sig, fileSignature)
	}
	if err := binary.Read(r, binary.LittleEndian, &ver); err != nil {
		return fmt.Errorf("system: reading version: %w", err)
	}
	if ver != fileVersion {
		return fmt.Errorf("system: unsupported save-state version %d", ver)
	}

	headerPayload, err := readSection(r)
	if err != nil {
		return fmt.Errorf("system: header section: %w", err)
	}
	if len(headerPayload) < 4 || binary.LittleEndian.Uint32(headerPayload) != headerSerializationID {
		return fmt.Errorf("system: bad header section")
	}

	busPayload, err := readSection(r)
	if err != nil {
		return fmt.Errorf("system: bus section: %w", err)
	}
	if err := s.Bus.Load(busPayload); err != nil {
		return fmt.Errorf("system: restoring bus: %w", err)
	}

	compsPayload, err := readSection(r)
	if err != nil {
		return fmt.Errorf("system: components section: %w", err)
	}
	if err := s.loadComponents(compsPayload); err != nil {
		return err
	}

	evsPayload, err := readSection(r)
	if err != nil {
		return fmt.Errorf("system: events section: %w", err)
	}
	return s.loadEvents(evsPayload)
}

func (s *System) loadComponents(payload []byte) error {
	r := bytes.NewReader(payload)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("system: reading component count: %w", err)
	}
	if int(count) != len(s.components) {
		return fmt.Errorf("system: saved component count %d does not match current %d", count, len(s.components))
	}
	for _, c := range s.components {
		compData, err := readSection(r)
		if err != nil {
			return fmt.Errorf("system: reading %s section: %w", c.Name(), err)
		}
		if err := c.Load(compData); err != nil {
			return fmt.Errorf("system: restoring %s: %w", c.Name(), err)
		}
	}
	return nil
}

func (s *System) loadEvents(payload []byte) error {
	r := bytes.NewReader(payload)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("system: reading event count: %w", err)
	}
	if int(count) != len(s.Sched.Events()) {
		return fmt.Errorf("system: saved event count %d does not match current %d", count, len(s.Sched.Events()))
	}
	for i := uint32(0); i < count; i++ {
		var nameLen uint32
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return fmt.Errorf("system: reading event name length: %w", err)
		}
		nameBytes := make([]byte, nameLen)
		if _, err := r.Read(nameBytes); err != nil {
			return fmt.Errorf("system: reading event name: %w", err)
		}
		name := string(nameBytes)

		var downcount, timeSinceLastRun, interval int64
		var frequency float64
		var activeByte uint8
		if err := binary.Read(r, binary.LittleEndian, &downcount); err != nil {
			return fmt.Errorf("system: reading event %s downcount: %w", name, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &timeSinceLastRun); err != nil {
			return fmt.Errorf("system: reading event %s time_since_last_run: %w", name, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &interval); err != nil {
			return fmt.Errorf("system: reading event %s interval: %w", name, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &frequency); err != nil {
			return fmt.Errorf("system: reading event %s frequency: %w", name, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &activeByte); err != nil {
			return fmt.Errorf("system: reading event %s active flag: %w", name, err)
		}

		h, ok := s.Sched.Lookup(name)
		if !ok {
			return fmt.Errorf("system: saved event %q has no live counterpart", name)
		}
		ev := h.Event()
		if ev.Interval() != interval || ev.Frequency() != frequency {
			return fmt.Errorf("system: saved event %q identity mismatch (interval/frequency)", name)
		}
		h.RestoreTiming(simtime.Time(downcount), simtime.Time(timeSinceLastRun), activeByte != 0)
	}
	return nil
}
