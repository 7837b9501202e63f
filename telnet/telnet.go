/*
 * PCE - telnet server, per-connection protocol handling.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package telnet bridges a net.Conn to a Sink (an internal/hw/uart.UART, in
// practice): bytes typed by the remote party are pushed into the sink, and
// bytes the sink transmits are written back out the connection, with the
// telnet IAC option negotiation stripped out of the data stream the way the
// teacher's telnet package keeps protocol bytes away from its device layer.
package telnet

import (
	"fmt"
	"log/slog"
	"net"
)

// Telnet protocol constants - negatives are for init'ing signed char data.
const (
	tnIAC  byte = 255 // protocol delim
	tnDONT byte = 254 // dont
	tnDO   byte = 253 // do
	tnWONT byte = 252 // wont
	tnWILL byte = 251 // will
	tnSB   byte = 250 // sub negotiations begin
	tnSE   byte = 240 // sub negotiations end

	// Line states.
	tnStateData int = 1 + iota // normal
	tnStateIAC                 // IAC seen
	tnStateWILL                // WILL seen
	tnStateDO                  // DO seen
	tnStateWONT                // WONT seen
	tnStateDONT                // DONT seen
	tnStateSB                  // inside a sub-negotiation, waiting for SE

	// Options we negotiate: binary, suppress-go-ahead, no local echo
	// (the remote client must not echo, since the emulated COM port
	// drives whatever echo its connected software wants).
	tnOptionBinary byte = 0
	tnOptionEcho   byte = 1
	tnOptionSGA    byte = 3
)

// Sink is the byte-stream endpoint a connection is bridged to. UART
// implements this by assigning Transmit and exposing Push.
type Sink interface {
	Push(b byte)
}

var initString = []byte{
	tnIAC, tnWILL, tnOptionEcho,
	tnIAC, tnWILL, tnOptionSGA,
	tnIAC, tnWILL, tnOptionBinary,
	tnIAC, tnDO, tnOptionBinary,
}

type session struct {
	conn  net.Conn
	sink  Sink
	state int
}

// serve reads from conn until it closes or errs, stripping telnet protocol
// bytes and pushing everything else to sink. It returns once the connection
// is done; the caller is responsible for closing conn.
func serve(conn net.Conn, sink Sink) {
	s := session{conn: conn, sink: sink, state: tnStateData}

	if _, err := conn.Write(initString); err != nil {
		slog.Warn("telnet: sending option negotiation", "error", err)
		return
	}

	buffer := make([]byte, 1024)
	for {
		n, err := conn.Read(buffer)
		if err != nil {
			return
		}
		for i := range n {
			s.handle(buffer[i])
		}
	}
}

func (s *session) handle(input byte) {
	switch s.state {
	case tnStateData:
		if input == tnIAC {
			s.state = tnStateIAC
			return
		}
		s.sink.Push(input)

	case tnStateIAC:
		switch input {
		case tnIAC:
			s.sink.Push(tnIAC)
			s.state = tnStateData
		case tnWILL:
			s.state = tnStateWILL
		case tnWONT:
			s.state = tnStateWONT
		case tnDO:
			s.state = tnStateDO
		case tnDONT:
			s.state = tnStateDONT
		case tnSB:
			s.state = tnStateSB
		default:
			s.state = tnStateData
		}

	case tnStateWILL, tnStateWONT, tnStateDO, tnStateDONT:
		// We already declared our final option states up front in
		// initString; nothing else to negotiate mid-stream.
		s.state = tnStateData

	case tnStateSB:
		if input == tnSE {
			s.state = tnStateData
		}
	}
}

func optName(opt byte) string {
	switch opt {
	case tnOptionBinary:
		return "binary"
	case tnOptionEcho:
		return "echo"
	case tnOptionSGA:
		return "sga"
	default:
		return fmt.Sprintf("opt(%d)", opt)
	}
}
