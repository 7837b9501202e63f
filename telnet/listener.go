/*
 * PCE - telnet server, listener.
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

package telnet

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Bridge listens on a TCP port and bridges each accepted connection to sink
// (a serial device such as a uart.UART) one at a time: a second connection
// is refused while the first is still attached, the way a real COM port can
// only have one cable plugged in.
type Bridge struct {
	wg       sync.WaitGroup
	listener net.Listener
	shutdown chan struct{}
	sink     Sink

	mu       sync.Mutex
	attached net.Conn
}

// Listen opens a Bridge on addr (e.g. "127.0.0.1:2300" or ":2300") that
// ferries bytes to and from sink.
func Listen(addr string, sink Sink) (*Bridge, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("telnet: listening on %s: %w", addr, err)
	}
	b := &Bridge{
		listener: listener,
		shutdown: make(chan struct{}),
		sink:     sink,
	}
	b.wg.Add(1)
	go b.acceptLoop()
	return b, nil
}

// Addr returns the bridge's listening address, useful when addr was passed
// as ":0" to pick an ephemeral port.
func (b *Bridge) Addr() net.Addr { return b.listener.Addr() }

// Transmit routes bytes from sink back out to whichever connection is
// currently attached, dropping them if nothing is connected. Assign this
// to the sink's Transmit field (uart.UART.Transmit = bridge.Transmit).
func (b *Bridge) Transmit(c byte) {
	b.mu.Lock()
	conn := b.attached
	b.mu.Unlock()
	if conn == nil {
		return
	}
	_, _ = conn.Write([]byte{c})
}

// Close stops accepting new connections, closes any attached connection,
// and waits for the accept loop to exit.
func (b *Bridge) Close() {
	close(b.shutdown)
	_ = b.listener.Close()

	b.mu.Lock()
	if b.attached != nil {
		_ = b.attached.Close()
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("telnet: timed out waiting for bridge shutdown", "addr", b.listener.Addr())
	}
}

func (b *Bridge) acceptLoop() {
	defer b.wg.Done()

	for {
		conn, err := b.listener.Accept()
		if err != nil {
			select {
			case <-b.shutdown:
				return
			default:
				slog.Warn("telnet: accept error", "error", err)
				return
			}
		}

		b.mu.Lock()
		busy := b.attached != nil
		if !busy {
			b.attached = conn
		}
		b.mu.Unlock()

		if busy {
			fmt.Fprintf(conn, "line in use\r\n")
			_ = conn.Close()
			continue
		}

		slog.Info("telnet: connection attached", "remote", conn.RemoteAddr())
		go b.handle(conn)
	}
}

func (b *Bridge) handle(conn net.Conn) {
	defer func() {
		_ = conn.Close()
		b.mu.Lock()
		b.attached = nil
		b.mu.Unlock()
		slog.Info("telnet: connection detached", "remote", conn.RemoteAddr())
	}()
	serve(conn, b.sink)
}
