package system

import (
	"os"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-test/deep"

	"github.com/rcornwell/pce/internal/host"
	"github.com/rcornwell/pce/internal/simtime"
)

// writeTestROM builds a 64KiB ROM image with a tiny program at the 8086
// reset vector (linear 0xFFFF0, offset 0xFFF0 within a ROM based at
// 0xF0000): "MOV AX,0x1234; HLT", the same two opcodes
// (internal/cpu/decode's 0xB8-0xBF and 0xF4) spec.md's own test186/add.bin
// scenario exercises. The real test186/test386 binaries spec.md's S1/S2
// reference are not available in this environment (see DESIGN.md); this
// stands in for them to exercise ExecuteSlice end to end.
func writeTestROM(t *testing.T) string {
	t.Helper()
	rom := make([]byte, 0x10000)
	prog := []byte{0xB8, 0x34, 0x12, 0xF4} // MOV AX,0x1234 ; HLT
	copy(rom[0xFFF0:], prog)

	f, err := os.CreateTemp(t.TempDir(), "testrom-*.bin")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()
	if _, err := f.Write(rom); err != nil {
		t.Fatalf("writing ROM: %v", err)
	}
	return f.Name()
}

func newTestSystem(t *testing.T) *System {
	t.Helper()
	romPath := writeTestROM(t)
	sys, err := buildTestPC(BuildOptions{
		ROMPath:     romPath,
		ROMBase:     0xF0000,
		RAMSize:     1 << 20,
		FrequencyHz: 1_000_000, // 1MHz, spec.md S1
		Host:        host.NewHeadless(),
	})
	if err != nil {
		t.Fatalf("buildTestPC: %v", err)
	}
	if err := sys.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	sys.Reset()
	return sys
}

// TestExecuteSliceRunsUntilHalt is an S1-shaped scenario: boot a synthetic
// ROM at the reset vector and run until the CPU halts or 10 simulated
// seconds elapse, then check the halted register state instead of
// comparing against an external res_add.bin (unavailable here).
func TestExecuteSliceRunsUntilHalt(t *testing.T) {
	sys := newTestSystem(t)

	const tenSeconds = simtime.Time(10_000_000_000)
	sys.ExecuteSlice(tenSeconds)

	if !sys.CPU.Halted {
		t.Fatalf("CPU not halted after slice")
	}
	if got := sys.CPU.Regs.GPR16(0); got != 0x1234 {
		t.Fatalf("AX = %#x, want 0x1234", got)
	}
}

// TestExecuteSliceCycleAccounting is spec.md §8 Testable Property 5:
// for any slice of requested nanoseconds N, |consumed - N| <= cycle_period.
func TestExecuteSliceCycleAccounting(t *testing.T) {
	sys := newTestSystem(t)

	const requested = simtime.Time(1_000_000) // 1ms
	consumed := sys.ExecuteSlice(requested)

	cyclePeriod := simtime.CyclePeriod(sys.CPU.FrequencyHz)
	diff := consumed - requested
	if diff < 0 {
		diff = -diff
	}
	if diff > cyclePeriod {
		t.Fatalf("consumed %d deviates from requested %d by more than one cycle period %d", consumed, requested, cyclePeriod)
	}
}

func TestExecuteSliceStopsWhenSystemStopped(t *testing.T) {
	sys := newTestSystem(t)
	sys.Stop()

	consumed := sys.ExecuteSlice(simtime.Time(1_000_000))
	if consumed != 0 {
		t.Fatalf("consumed = %d, want 0 once Stopped", consumed)
	}
}

func TestResetClearsStopped(t *testing.T) {
	sys := newTestSystem(t)
	sys.Stop()
	sys.Reset()
	if sys.Stopped {
		t.Fatalf("Reset did not clear Stopped")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	sys := newTestSystem(t)
	sys.ExecuteSlice(simtime.Time(1_000_000))

	data, err := sys.Save()
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	sys2 := newTestSystem(t)
	if err := sys2.Load(data); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if diff := deep.Equal(sys.CPU.Regs, sys2.CPU.Regs); diff != nil {
		t.Fatalf("register file mismatch after round trip: %v\nwant: %s\ngot:  %s", diff, spew.Sdump(sys.CPU.Regs), spew.Sdump(sys2.CPU.Regs))
	}

	data2, err := sys2.Save()
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if diff := deep.Equal(data, data2); diff != nil {
		t.Fatalf("re-saved bytes differ from original: %v", diff)
	}
}

func TestPostSinkCollectsCodesAndLines(t *testing.T) {
	sys := newTestSystem(t)
	sys.Bus.WritePortByte(0x190, 0xAA)
	sys.Bus.WritePortByte(0x190, 0xBB)
	sys.Bus.WritePortByte(0x80, 'o')
	sys.Bus.WritePortByte(0x80, 'k')
	sys.Bus.WritePortByte(0x80, '\n')

	var sink *PostSink
	for _, c := range sys.Components() {
		if ps, ok := c.(*PostSink); ok {
			sink = ps
		}
	}
	if sink == nil {
		t.Fatalf("PostSink not found among components")
	}
	if got := sink.Codes(); len(got) != 2 || got[0] != 0xAA || got[1] != 0xBB {
		t.Fatalf("Codes() = %v, want [0xAA 0xBB]", got)
	}
	if got := sink.Lines(); len(got) != 1 || got[0] != "ok" {
		t.Fatalf("Lines() = %v, want [\"ok\"]", got)
	}
}

func TestSchedulerDrivesEventsDuringSlice(t *testing.T) {
	sys := newTestSystem(t)

	var fired int
	sys.Sched.CreateEvent("test-periodic", 1000, 1, func(cycles, late int64) {
		fired++
	}, true)

	sys.ExecuteSlice(simtime.Time(5_000_000)) // 5ms at a 1ms period (1kHz, interval 1) => ~5 firings
	if fired == 0 {
		t.Fatalf("periodic event never fired during slice")
	}
}
