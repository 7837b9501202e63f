/*
   PCE - Interactive monitor console.

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

// Package monitor drives a system.System from an interactive console: one
// goroutine owns the System and alternates running it with draining a
// command channel, so every command a human types is serialized against
// emulation the same way a single-threaded core would see it. The console
// reader itself runs on a second goroutine and only ever sends commands
// over the channel; it never touches CPU or Bus state directly.
package monitor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rcornwell/pce/internal/simtime"
	"github.com/rcornwell/pce/internal/system"
)

// quantum bounds how long a single ExecuteSlice call runs before Monitor
// checks for a pending command, so "stop" and friends feel responsive even
// while the machine is running flat out.
const quantum = simtime.Time(10 * time.Millisecond)

type request struct {
	fn    func(*Monitor) (string, error)
	reply chan response
}

type response struct {
	out string
	err error
}

// Monitor owns a System and the single goroutine allowed to touch it while
// a console is attached.
type Monitor struct {
	sys *system.System

	control chan request
	done    chan struct{}
	wg      sync.WaitGroup

	running     bool
	breakpoints map[uint32]struct{}
}

// New wraps sys for interactive control. Call Run in its own goroutine, then
// drive it with Dispatch (normally from a ConsoleReader).
func New(sys *system.System) *Monitor {
	return &Monitor{
		sys:         sys,
		control:     make(chan request),
		done:        make(chan struct{}),
		breakpoints: make(map[uint32]struct{}),
	}
}

// Run is the Monitor's single goroutine: it advances the System in quantum-
// sized slices while running, and always services pending commands between
// slices (or immediately, while idle). Call Close to stop it.
func (m *Monitor) Run() {
	m.wg.Add(1)
	defer m.wg.Done()

	for {
		if m.running && !m.sys.Stopped {
			m.sys.ExecuteSlice(m.runQuantum())
			if m.atBreakpoint() {
				m.running = false
				slog.Info("monitor: breakpoint hit", "eip", m.sys.CPU.Regs.EIP)
			}
			select {
			case <-m.done:
				m.sys.Shutdown()
				return
			case req := <-m.control:
				m.serve(req)
			default:
			}
			continue
		}

		select {
		case <-m.done:
			m.sys.Shutdown()
			return
		case req := <-m.control:
			m.serve(req)
		}
	}
}

func (m *Monitor) serve(req request) {
	out, err := req.fn(m)
	req.reply <- response{out: out, err: err}
}

// Dispatch runs fn against the Monitor from inside the Run goroutine and
// waits for it to finish, so callers never race ExecuteSlice.
func (m *Monitor) Dispatch(fn func(*Monitor) (string, error)) (string, error) {
	reply := make(chan response, 1)
	select {
	case m.control <- request{fn: fn, reply: reply}:
	case <-m.done:
		return "", nil
	}
	r := <-reply
	return r.out, r.err
}

// Close stops Run and waits for it to return.
func (m *Monitor) Close() {
	close(m.done)
	m.wg.Wait()
}

func (m *Monitor) setRunning(running bool) {
	m.running = running
}

func (m *Monitor) atBreakpoint() bool {
	if len(m.breakpoints) == 0 {
		return false
	}
	_, hit := m.breakpoints[m.sys.CPU.Regs.EIP]
	return hit
}

// breakQuantum is how finely Run polls EIP against the breakpoint set when
// any are armed; far smaller than quantum so a breakpoint inside a tight
// loop is still caught close to its first hit instead of averaged away
// over a 10ms slice.
const breakQuantum = simtime.Time(time.Microsecond)

func (m *Monitor) runQuantum() simtime.Time {
	if len(m.breakpoints) > 0 {
		return breakQuantum
	}
	return quantum
}
