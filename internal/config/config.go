/*
   PCE - Configuration file parser.

   Copyright (c) 2026, Richard Cornwell

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   RICHARD CORNWELL BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/

// Package config is a small hand-rolled INI-style parser for PCE's system
// configuration files: one device or directive per line, base I/O address
// in hex, optional IRQ and comma-separated options. It is not a general
// INI library; it is grounded directly on the teacher's own
// config/configparser package and kept in the same hand-rolled style
// rather than adopting a third-party INI/viper-style library, since the
// teacher never does either.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// Option is one comma-separated or name=value option following a
// directive's device address.
type Option struct {
	Name  string
	Value string
}

// Directive is one fully parsed configuration line: a device model name,
// its base I/O address (if any), an optional IRQ, and trailing options.
type Directive struct {
	Model   string
	Base    uint32
	HasBase bool
	IRQ     int
	HasIRQ  bool
	Options []Option
	Line    int
}

// Factory builds a component from a parsed Directive. Registered once per
// model name via Register, called by Load for every matching line.
type Factory func(d Directive) error

var factories = map[string]Factory{}

// Register associates a device model name (case-insensitive) with the
// factory that builds it from a configuration line.
func Register(model string, fn Factory) {
	factories[strings.ToUpper(model)] = fn
}

// Load reads and applies every directive in a configuration file, in
// order, stopping at the first error (with the offending line number).
func Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	lineNo := 0
	for {
		text, readErr := r.ReadString('\n')
		lineNo++
		if len(text) == 0 && readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return fmt.Errorf("config: reading %s: %w", path, readErr)
		}
		if err := parseLine(text, lineNo); err != nil {
			return fmt.Errorf("config: %s:%d: %w", path, lineNo, err)
		}
		if readErr != nil {
			return nil // EOF reached right after the last (unterminated) line
		}
	}
}

type cursor struct {
	line string
	pos  int
}

func (c *cursor) eol() bool {
	return c.pos >= len(c.line) || c.line[c.pos] == '#'
}

func (c *cursor) skipSpace() {
	for !c.eol() && unicode.IsSpace(rune(c.line[c.pos])) {
		c.pos++
	}
}

func (c *cursor) word() string {
	start := c.pos
	for !c.eol() && !unicode.IsSpace(rune(c.line[c.pos])) && c.line[c.pos] != ',' {
		c.pos++
	}
	return c.line[start:c.pos]
}

func parseLine(text string, lineNo int) error {
	c := &cursor{line: strings.TrimRight(text, "\r\n")}
	c.skipSpace()
	if c.eol() {
		return nil
	}

	model := c.word()
	fn, ok := factories[strings.ToUpper(model)]
	if !ok {
		return fmt.Errorf("unknown device or directive %q", model)
	}

	d := Directive{Model: strings.ToUpper(model), Line: lineNo}
	c.skipSpace()
	if !c.eol() {
		tok := c.word()
		if base, err := strconv.ParseUint(tok, 16, 32); err == nil {
			d.Base = uint32(base)
			d.HasBase = true
		} else {
			return fmt.Errorf("expected hex base address, got %q", tok)
		}
	}

	for {
		c.skipSpace()
		if c.eol() {
			break
		}
		tok := c.word()
		if tok == "" {
			break
		}
		if err := parseOptionToken(&d, tok); err != nil {
			return err
		}
		c.skipSpace()
		if !c.eol() && c.line[c.pos] == ',' {
			c.pos++
		}
	}

	return fn(d)
}

func parseOptionToken(d *Directive, tok string) error {
	if strings.HasPrefix(strings.ToLower(tok), "irq=") {
		n, err := strconv.Atoi(tok[4:])
		if err != nil {
			return fmt.Errorf("invalid irq= value %q", tok)
		}
		d.IRQ, d.HasIRQ = n, true
		return nil
	}
	if eq := strings.IndexByte(tok, '='); eq >= 0 {
		d.Options = append(d.Options, Option{Name: tok[:eq], Value: tok[eq+1:]})
		return nil
	}
	d.Options = append(d.Options, Option{Name: tok})
	return nil
}
