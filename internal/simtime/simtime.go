/*
   PCE - Simulation time and cycle/frequency conversions.

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

// Package simtime holds the single global monotone clock of the emulator,
// expressed in nanoseconds, and the conversions between it and CPU cycles.
package simtime

// Time is simulation time, a signed count of nanoseconds since the System
// was reset.
type Time int64

const nanosPerSecond = 1_000_000_000

// CyclesForTime converts a duration in nanoseconds to the number of cycles
// a CPU running at freqHz completes in that time, rounding up so a caller
// never waits for less time than it asked for.
func CyclesForTime(ns Time, freqHz float64) int64 {
	if freqHz <= 0 || ns <= 0 {
		return 0
	}
	cycles := (float64(ns) * freqHz) / nanosPerSecond
	whole := int64(cycles)
	if float64(whole) < cycles {
		whole++
	}
	return whole
}

// TimeForCycles converts a cycle count to nanoseconds at freqHz, truncating.
func TimeForCycles(cycles int64, freqHz float64) Time {
	if freqHz <= 0 || cycles <= 0 {
		return 0
	}
	return Time((float64(cycles) * nanosPerSecond) / freqHz)
}

// CyclePeriod returns the nanoseconds-per-cycle period for freqHz, the
// granularity used when rescheduling a periodic TimingEvent.
func CyclePeriod(freqHz float64) Time {
	if freqHz <= 0 {
		return 0
	}
	return Time(nanosPerSecond / freqHz)
}
