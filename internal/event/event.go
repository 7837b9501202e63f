/*
   PCE - Timing event scheduler.

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

// Package event implements the ordered queue of recurring/oneshot timing
// events that drive every component in simulated time. The scheduler is a
// min-heap keyed by absolute firing deadline; downcount-driven dispatch is
// layered on top by internal/system, which alone knows how to translate
// nanoseconds into CPU cycles.
package event

import (
	"container/heap"

	"github.com/rcornwell/pce/internal/simtime"
)

// Callback is invoked when a TimingEvent fires. cycles is the number of
// ticks the event was scheduled for; late is how many cycles past the
// deadline the scheduler noticed it (always >= 0).
type Callback func(cycles int64, late int64)

// TimingEvent is a scheduled callback recurring every interval CPU cycles
// at a given frequency, per spec.md's GLOSSARY.
type TimingEvent struct {
	name             string
	frequency        float64      // Hz
	cyclePeriod      simtime.Time // ns per tick
	interval         int64        // ticks between firings
	deadline         simtime.Time // absolute sim time of next firing
	timeSinceLastRun simtime.Time
	active           bool
	callback         Callback
	seq              uint64 // insertion order, breaks deadline ties
	index            int    // position in the scheduler heap, -1 if absent
}

func (e *TimingEvent) Name() string                   { return e.name }
func (e *TimingEvent) Active() bool                   { return e.active }
func (e *TimingEvent) Frequency() float64             { return e.frequency }
func (e *TimingEvent) Interval() int64                { return e.interval }
func (e *TimingEvent) TimeSinceLastRun() simtime.Time { return e.timeSinceLastRun }

// Downcount reports how much simulated time remains until the event fires,
// given the scheduler's current clock.
func (e *TimingEvent) Downcount(now simtime.Time) simtime.Time {
	if d := e.deadline - now; d > 0 {
		return d
	}
	return 0
}

// eventHeap implements container/heap.Interface over *TimingEvent, ordered
// by ascending deadline and, for ties, by insertion order.
type eventHeap []*TimingEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	ev := x.(*TimingEvent)
	ev.index = len(*h)
	*h = append(*h, ev)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*h = old[:n-1]
	return ev
}

// Scheduler owns the heap of active TimingEvents and the master simulation
// clock that Advance moves forward.
type Scheduler struct {
	now     simtime.Time
	heap    eventHeap
	all     []*TimingEvent // every event ever created, for Save/Load enumeration
	nextSeq uint64
}

// NewScheduler returns an empty scheduler with its clock at zero.
func NewScheduler() *Scheduler {
	return &Scheduler{heap: eventHeap{}}
}

// Now returns the current simulation time.
func (s *Scheduler) Now() simtime.Time { return s.now }

// NextDeadline returns the absolute deadline of the earliest active event,
// and false if no event is active.
func (s *Scheduler) NextDeadline() (simtime.Time, bool) {
	if len(s.heap) == 0 {
		return 0, false
	}
	return s.heap[0].deadline, true
}

// Events returns every event the scheduler knows about (active or not), in
// no particular order, for save-state serialization.
func (s *Scheduler) Events() []*TimingEvent {
	return s.all
}

// Lookup returns the handle for a previously created event by name, for
// state restore, which must match saved events back to live ones by name
// rather than by position.
func (s *Scheduler) Lookup(name string) (*EventHandle, bool) {
	for _, ev := range s.all {
		if ev.name == name {
			return &EventHandle{ev: ev, s: s}, true
		}
	}
	return nil, false
}

// EventHandle is the caller-facing handle returned by CreateEvent.
type EventHandle struct {
	ev *TimingEvent
	s  *Scheduler
}

// Event exposes the underlying TimingEvent for read-only inspection (name,
// frequency, downcount, ...).
func (h *EventHandle) Event() *TimingEvent { return h.ev }

// CreateEvent registers a new TimingEvent. If active, it is immediately
// placed in the heap with its first deadline at now + interval*cyclePeriod.
func (s *Scheduler) CreateEvent(name string, frequency float64, interval int64, cb Callback, active bool) *EventHandle {
	ev := &TimingEvent{
		name:        name,
		frequency:   frequency,
		cyclePeriod: simtime.CyclePeriod(frequency),
		interval:    interval,
		callback:    cb,
		index:       -1,
		seq:         s.nextSeq,
	}
	s.nextSeq++
	s.all = append(s.all, ev)
	h := &EventHandle{ev: ev, s: s}
	if active {
		ev.active = true
		ev.deadline = s.now + simtime.Time(ev.interval)*ev.cyclePeriod
		heap.Push(&s.heap, ev)
	}
	return h
}

// Activate arms a deactivated event, scheduling its next firing one
// interval from now. A no-op if already active.
func (h *EventHandle) Activate() {
	ev := h.ev
	if ev.active {
		return
	}
	ev.active = true
	ev.deadline = h.s.now + simtime.Time(ev.interval)*ev.cyclePeriod
	heap.Push(&h.s.heap, ev)
}

// Deactivate removes an event from the heap. Safe to call from within the
// event's own callback (self-deactivation), in which case it is already out
// of the heap and only the active flag is cleared.
func (h *EventHandle) Deactivate() {
	ev := h.ev
	if !ev.active {
		return
	}
	ev.active = false
	if ev.index >= 0 {
		heap.Remove(&h.s.heap, ev.index)
	}
}

// Queue schedules the event to fire `cycles` ticks from now, overriding
// whatever deadline it previously had, and marks it active.
func (h *EventHandle) Queue(cycles int64) {
	ev := h.ev
	if ev.index >= 0 {
		heap.Remove(&h.s.heap, ev.index)
	}
	ev.active = true
	ev.deadline = h.s.now + simtime.Time(cycles)*ev.cyclePeriod
	heap.Push(&h.s.heap, ev)
}

// Reschedule re-arms the event `cycles` ticks from now, the form a callback
// uses to requeue itself with a cycle count different from its nominal
// interval (e.g. a PIT channel reprogrammed mid-count).
func (h *EventHandle) Reschedule(cycles int64) {
	h.Queue(cycles)
}

// Reset re-queues the event at now + interval*cyclePeriod, discarding any
// accumulated pending time (time_since_last_run).
func (h *EventHandle) Reset() {
	ev := h.ev
	if ev.index >= 0 {
		heap.Remove(&h.s.heap, ev.index)
	}
	ev.timeSinceLastRun = 0
	ev.active = true
	ev.deadline = h.s.now + simtime.Time(ev.interval)*ev.cyclePeriod
	heap.Push(&h.s.heap, ev)
}

// InvokeEarly temporarily advances this one event to "now", invokes its
// callback with however many cycles have actually elapsed since it was last
// queued, and (unless deactivated by the callback) re-inserts it at a full
// interval from now. Other events are not disturbed. Used by devices such
// as the PIT when a port read needs the live counter value.
func (h *EventHandle) InvokeEarly(force bool) {
	ev := h.ev
	if !ev.active && !force {
		return
	}
	now := h.s.now
	var elapsedCycles int64
	if ev.cyclePeriod > 0 {
		total := simtime.Time(ev.interval) * ev.cyclePeriod
		remaining := ev.deadline - now
		if remaining < 0 {
			remaining = 0
		}
		elapsed := total - remaining
		elapsedCycles = int64(elapsed / ev.cyclePeriod)
	}
	wasActive := ev.active
	if ev.index >= 0 {
		heap.Remove(&h.s.heap, ev.index)
	}
	ev.callback(elapsedCycles, 0)
	if wasActive {
		ev.active = true
		ev.deadline = now + simtime.Time(ev.interval)*ev.cyclePeriod
		heap.Push(&h.s.heap, ev)
	}
}

// RestoreTiming re-arms the event from saved-state values: downcount is the
// simulated time until it should next fire and timeSinceLastRun is restored
// verbatim. Used only while loading a save, after the caller has already
// checked the event's name, interval and frequency against the saved
// section (identity fields this does not touch).
func (h *EventHandle) RestoreTiming(downcount, timeSinceLastRun simtime.Time, active bool) {
	ev := h.ev
	if ev.index >= 0 {
		heap.Remove(&h.s.heap, ev.index)
	}
	ev.timeSinceLastRun = timeSinceLastRun
	ev.active = active
	ev.deadline = h.s.now + downcount
	if active {
		heap.Push(&h.s.heap, ev)
	}
}

// Advance moves the master clock forward by ns and fires every event whose
// deadline has passed, in deadline order (ties broken by registration
// order). Firing events not deactivated by their own callback are
// re-queued at now + interval*cyclePeriod minus the whole cycles of
// lateness (one interval after the missed deadline, to within a cycle), so
// a persistently late consumer does not drift the event's long-run average
// period.
func (s *Scheduler) Advance(ns simtime.Time) {
	s.now += ns
	for len(s.heap) > 0 {
		head := s.heap[0]
		if head.deadline > s.now {
			break
		}
		heap.Pop(&s.heap)

		late := s.now - head.deadline
		var cyclesLate int64
		if head.cyclePeriod > 0 {
			cyclesLate = int64(late / head.cyclePeriod)
		}
		head.timeSinceLastRun = simtime.Time(head.interval)*head.cyclePeriod + late

		head.callback(head.interval, cyclesLate)

		if head.active {
			head.deadline = s.now + simtime.Time(head.interval)*head.cyclePeriod - simtime.Time(cyclesLate)*head.cyclePeriod
			heap.Push(&s.heap, head)
		}
	}
}
