/*
   PCE - System orchestrator: owns the CPU, Bus, scheduler and every
   device, and runs the outer execute_slice loop.

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

// Package system ties the core substrate (Bus, CPU, Scheduler) together
// with the device set a machine class selects, and drives it forward one
// slice of simulated time at a time. Every other internal/hw device is an
// external collaborator from the core's point of view; System is where
// they are actually wired to each other and to the host.
package system

import (
	"fmt"
	"log/slog"

	"github.com/rcornwell/pce/internal/bus"
	"github.com/rcornwell/pce/internal/component"
	"github.com/rcornwell/pce/internal/cpu"
	"github.com/rcornwell/pce/internal/event"
	"github.com/rcornwell/pce/internal/host"
	"github.com/rcornwell/pce/internal/simtime"
)

// System is the orchestrator: it owns the Bus, the CPU register file, the
// selected execution Backend, the Scheduler, and every Component in the
// order they must be Initialize/Reset/Shutdown. It does not know what
// devices exist; a Class builds those and hands the finished System back.
type System struct {
	Bus     *bus.Bus
	CPU     *cpu.CPU
	Backend cpu.Backend
	Sched   *event.Scheduler
	Host    host.Interface
	Log     *slog.Logger

	components []component.Component

	// Stopped mirrors spec.md §5's Stopped state: once set, ExecuteSlice
	// returns immediately without consuming any simulated time. Set by
	// Stop (a fatal error or host-requested halt) and cleared by Reset.
	Stopped bool
}

// New builds a System over an already-constructed Bus/CPU/Backend/
// Scheduler. h may be host.NewHeadless() for unattended runs. Devices are
// attached afterward with AddComponent.
func New(b *bus.Bus, c *cpu.CPU, backend cpu.Backend, sched *event.Scheduler, h host.Interface) *System {
	if h == nil {
		h = host.NewHeadless()
	}
	return &System{
		Bus:     b,
		CPU:     c,
		Backend: backend,
		Sched:   sched,
		Host:    h,
		Log:     slog.Default(),
	}
}

// AddComponent attaches a device, to be Initialize/Reset/Shutdown in the
// order components were added. Must be called before Initialize.
func (s *System) AddComponent(c component.Component) {
	s.components = append(s.components, c)
}

// Components returns the attached devices in registration order, for
// state save/restore.
func (s *System) Components() []component.Component {
	return s.components
}

// Initialize wires the code-invalidation callback from Bus to the active
// Backend and brings every component up in registration order, stopping
// at the first error (an IOError per spec.md §7: a missing or truncated
// ROM/image file is fatal to the affected device).
func (s *System) Initialize() error {
	s.Bus.SetCodeInvalidateCallback(s.Backend.FlushCodeCache)
	for _, c := range s.components {
		if err := c.Initialize(); err != nil {
			return fmt.Errorf("system: initializing %s: %w", c.Name(), err)
		}
	}
	return nil
}

// Reset returns the CPU and every component to power-on state, in
// registration order, and clears Stopped.
func (s *System) Reset() {
	s.CPU.Reset()
	for _, c := range s.components {
		c.Reset()
	}
	s.Stopped = false
}

// Shutdown releases every component's resources in reverse registration
// order, mirroring construction/teardown symmetry.
func (s *System) Shutdown() {
	for i := len(s.components) - 1; i >= 0; i-- {
		s.components[i].Shutdown()
	}
}

// Stop halts the outer run loop; the current slice finishes its in-flight
// instruction (spec.md §5's interrupt_run_loop: the CPU completes the
// instruction under way and returns) but ExecuteSlice will not be called
// again by a well-behaved caller.
func (s *System) Stop() {
	s.Stopped = true
}

// ExecuteSlice implements spec.md §4.7's execute_slice algorithm: convert
// ns to cycles, run the CPU no further than the next scheduler deadline,
// advance the master clock by however many cycles were actually consumed
// (firing any events that deadline crossed), and repeat until the
// requested slice is exhausted or the System has been Stopped. It returns
// the simulated time actually consumed, which can exceed ns slightly (an
// instruction that straddles the deadline is allowed to finish) or fall
// short only because Stop was called mid-slice.
func (s *System) ExecuteSlice(ns simtime.Time) simtime.Time {
	freq := s.CPU.FrequencyHz
	requested := simtime.CyclesForTime(ns, freq)
	var consumed int64

	for consumed < requested && !s.Stopped {
		sliceCycles := requested - consumed
		if deadline, ok := s.Sched.NextDeadline(); ok {
			untilDeadline := deadline - s.Sched.Now()
			if untilDeadline < 0 {
				untilDeadline = 0
			}
			eventCycles := simtime.CyclesForTime(untilDeadline, freq)
			if eventCycles == 0 {
				eventCycles = 1 // the event is exactly due; still make forward progress
			}
			if eventCycles < sliceCycles {
				sliceCycles = eventCycles
			}
		}

		ran := s.Backend.Run(sliceCycles)
		consumed += ran

		if advanceNs := simtime.TimeForCycles(ran, freq); advanceNs > 0 {
			s.Sched.Advance(advanceNs)
		}
	}

	return simtime.TimeForCycles(consumed, freq)
}
