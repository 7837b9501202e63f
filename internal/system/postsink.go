package system

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/rcornwell/pce/internal/bus"
)

// PostSink is the byte-sink "POST code" device spec.md's S2 scenario
// describes: port 0x0190 records a raw byte per write (the BIOS POST code
// of the moment), and port 0x0080 accumulates bytes into a line buffer,
// completing a line on '\n' the way test386's harness streams its textual
// progress report one character at a time.
type PostSink struct {
	b *bus.Bus

	codes []byte

	lineBuf bytes.Buffer
	lines   []string
}

func NewPostSink(b *bus.Bus) *PostSink {
	return &PostSink{b: b}
}

func (p *PostSink) Name() string { return "postsink" }

func (p *PostSink) Initialize() error {
	p.b.RegisterPort(0x190, p.Name(), bus.PortHandlers{WriteByte: p.writePostCode})
	p.b.RegisterPort(0x80, p.Name(), bus.PortHandlers{WriteByte: p.writeLineByte})
	return nil
}

func (p *PostSink) Reset() {
	p.codes = nil
	p.lineBuf.Reset()
	p.lines = nil
}

func (p *PostSink) Shutdown() {}

// Codes returns every byte written to the POST-code port, in write order.
func (p *PostSink) Codes() []byte { return p.codes }

// Lines returns every '\n'-terminated line accumulated on the line-buffer
// port so far, not including a trailing partial line.
func (p *PostSink) Lines() []string { return p.lines }

func (p *PostSink) writePostCode(v uint8) {
	p.codes = append(p.codes, v)
}

func (p *PostSink) writeLineByte(v uint8) {
	if v == '\n' {
		p.lines = append(p.lines, p.lineBuf.String())
		p.lineBuf.Reset()
		return
	}
	p.lineBuf.WriteByte(v)
}

// SerializationID identifies the PostSink section in a save-state file.
const PostSinkSerializationID uint32 = 9

func (p *PostSink) Save() ([]byte, error) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, PostSinkSerializationID)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(p.codes)))
	buf.Write(p.codes)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(p.lines)))
	for _, l := range p.lines {
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(l)))
		buf.WriteString(l)
	}
	partial := p.lineBuf.String()
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(partial)))
	buf.WriteString(partial)
	return buf.Bytes(), nil
}

func (p *PostSink) Load(data []byte) error {
	r := bytes.NewReader(data)
	var id uint32
	if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
		return fmt.Errorf("postsink: reading serialization id: %w", err)
	}
	if id != PostSinkSerializationID {
		return fmt.Errorf("postsink: unexpected serialization id %d", id)
	}

	codes, err := readByteSlice(r)
	if err != nil {
		return fmt.Errorf("postsink: reading codes: %w", err)
	}

	var lineCount uint32
	if err := binary.Read(r, binary.LittleEndian, &lineCount); err != nil {
		return fmt.Errorf("postsink: reading line count: %w", err)
	}
	lines := make([]string, 0, lineCount)
	for i := uint32(0); i < lineCount; i++ {
		l, err := readByteSlice(r)
		if err != nil {
			return fmt.Errorf("postsink: reading line %d: %w", i, err)
		}
		lines = append(lines, string(l))
	}

	partial, err := readByteSlice(r)
	if err != nil {
		return fmt.Errorf("postsink: reading partial line: %w", err)
	}

	p.codes = codes
	p.lines = lines
	p.lineBuf.Reset()
	p.lineBuf.Write(partial)
	return nil
}

func readByteSlice(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}
