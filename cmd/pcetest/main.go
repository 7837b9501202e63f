/*
   PCE - Batch test harness, grounded on spec.md's S1/S2 scenarios:
   boot a ROM on a bare testpc class and compare its POST-code/line
   output (or RAM contents) against a reference file.

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

package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rcornwell/pce/internal/host"
	"github.com/rcornwell/pce/internal/simtime"
	"github.com/rcornwell/pce/internal/system"
)

func main() {
	optROM := getopt.StringLong("rom", 'r', "", "ROM image to map at -rombase")
	optROMBase := getopt.Uint32Long("rombase", 0, 0xF0000, "Physical base address for -rom")
	optRAM := getopt.Uint32Long("ram", 0, 1<<20, "RAM size in bytes")
	optFreq := getopt.Float64Long("freq", 0, 1_000_000, "CPU frequency in Hz")
	optIs386 := getopt.BoolLong("386", 0, "Run in 386+ mode with a 32-bit address bus")
	optBackend := getopt.StringLong("backend", 'b', "interpreter", "CPU backend: interpreter, cached, recompiler")
	optTimeout := getopt.Float64Long("timeout", 0, 10, "Simulated run limit, in seconds")
	optRAMRef := getopt.StringLong("ram-ref", 0, "", "Reference file to compare against RAM[0:len(ref)] (S1-style)")
	optLineRef := getopt.StringLong("line-ref", 0, "", "Reference file to compare line-for-line against port 0x80 output (S2-style)")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}
	if *optROM == "" {
		fmt.Fprintln(os.Stderr, "pcetest: -rom is required")
		os.Exit(2)
	}

	class, ok := system.LookupClass("testpc")
	if !ok {
		fmt.Fprintln(os.Stderr, "pcetest: testpc class not registered")
		os.Exit(1)
	}

	sys, err := class.Build(system.BuildOptions{
		ROMPath:     *optROM,
		ROMBase:     *optROMBase,
		RAMSize:     *optRAM,
		FrequencyHz: *optFreq,
		Is386Plus:   *optIs386,
		Backend:     *optBackend,
		Host:        host.NewHeadless(),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "pcetest: building system:", err)
		os.Exit(1)
	}
	if err := sys.Initialize(); err != nil {
		fmt.Fprintln(os.Stderr, "pcetest: initializing system:", err)
		os.Exit(1)
	}
	sys.Reset()

	deadline := simtime.Time(*optTimeout * float64(time.Second))
	const quantum = simtime.Time(10 * time.Millisecond)
	var elapsed simtime.Time
	for elapsed < deadline && !sys.Stopped && !sys.CPU.Halted {
		step := quantum
		if remaining := deadline - elapsed; remaining < step {
			step = remaining
		}
		elapsed += sys.ExecuteSlice(step)
	}

	if !sys.CPU.Halted {
		fmt.Printf("FAIL: CPU did not halt within %v simulated\n", time.Duration(deadline))
		os.Exit(1)
	}

	var sink *system.PostSink
	for _, c := range sys.Components() {
		if ps, psOK := c.(*system.PostSink); psOK {
			sink = ps
		}
	}

	ok = true
	if *optRAMRef != "" {
		ok = checkRAMRef(sys, *optRAMRef) && ok
	}
	if *optLineRef != "" {
		ok = checkLineRef(sink, *optLineRef) && ok
	}

	if ok {
		fmt.Println("PASS")
		return
	}
	os.Exit(1)
}

func checkRAMRef(sys *system.System, path string) bool {
	want, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pcetest: reading ram-ref:", err)
		return false
	}
	got := make([]byte, len(want))
	for i := range got {
		got[i] = sys.Bus.ReadByteUnchecked(uint32(i))
	}
	if !bytes.Equal(got, want) {
		fmt.Println("FAIL: RAM contents differ from reference")
		return false
	}
	return true
}

func checkLineRef(sink *system.PostSink, path string) bool {
	if sink == nil {
		fmt.Println("FAIL: no postsink component to compare lines against")
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pcetest: reading line-ref:", err)
		return false
	}
	want := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	got := sink.Lines()
	if len(got) != len(want) {
		fmt.Printf("FAIL: got %d lines, want %d\n", len(got), len(want))
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			fmt.Printf("FAIL: line %d: got %q, want %q\n", i, got[i], want[i])
			return false
		}
	}
	return true
}
