/*
   PCE - Monitor command-line tokenizer.

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

package monitor

import (
	"fmt"
	"strconv"
	"strings"
)

// cmdLine walks a single command line left to right, the way the teacher's
// command/parser package scans one word or hex value at a time.
type cmdLine struct {
	line string
	pos  int
}

func (c *cmdLine) isEOL() bool {
	return c.pos >= len(c.line)
}

func (c *cmdLine) skipSpace() {
	for !c.isEOL() && c.line[c.pos] == ' ' {
		c.pos++
	}
}

// getWord returns the next space-delimited token, advancing past it and any
// trailing space. Returns "" at end of line.
func (c *cmdLine) getWord() string {
	c.skipSpace()
	start := c.pos
	for !c.isEOL() && c.line[c.pos] != ' ' {
		c.pos++
	}
	word := c.line[start:c.pos]
	c.skipSpace()
	return word
}

// getHex returns the next token parsed as hexadecimal, with or without a
// leading "0x".
func (c *cmdLine) getHex() (uint32, error) {
	word := c.getWord()
	if word == "" {
		return 0, fmt.Errorf("expected a hex value")
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(word), "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid hex value %q: %w", word, err)
	}
	return uint32(v), nil
}

// rest returns everything remaining on the line, unparsed, for commands
// like "attach"/"save"/"load" whose final argument is a file path that may
// itself contain no further tokenization.
func (c *cmdLine) rest() string {
	s := c.line[c.pos:]
	c.pos = len(c.line)
	return s
}
