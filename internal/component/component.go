/*
   PCE - Uniform peripheral lifecycle.

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

// Package component defines the lifecycle every System-owned peripheral
// implements, and the byte-oriented state blob format components save
// themselves into.
package component

// Component is implemented by every peripheral the System owns: CPU, Bus,
// and every device in internal/hw.
type Component interface {
	// Name identifies the component in save-state sections and logs.
	Name() string

	// Initialize registers the component's MMIO/port ranges and TimingEvents.
	// Called once, in registration order, before the first Reset.
	Initialize() error

	// Reset returns the component to its power-on state. Called on System
	// reset and after Initialize.
	Reset()

	// Save appends the component's state to a byte-length-prefixed section
	// as described in spec.md §6.
	Save() ([]byte, error)

	// Load restores state previously produced by Save. Implementations must
	// leave the component unmodified and return an error if data is
	// malformed, rather than partially applying it.
	Load(data []byte) error

	// Shutdown releases any resources (open files, registered handlers)
	// acquired since Initialize.
	Shutdown()
}

// ID is the stable numeric identifier a component's save-state section is
// tagged with, matched against a registration table on load rather than
// against the component's position, so sections can be reordered across
// versions without breaking old saves.
type ID uint32
