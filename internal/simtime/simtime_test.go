package simtime

import "testing"

func TestCyclesForTimeRoundsUp(t *testing.T) {
	// 1MHz -> 1000ns/cycle. 1500ns should need 2 cycles, not 1.
	if got := CyclesForTime(1500, 1_000_000); got != 2 {
		t.Fatalf("CyclesForTime(1500, 1MHz) = %d, want 2", got)
	}
	if got := CyclesForTime(1000, 1_000_000); got != 1 {
		t.Fatalf("CyclesForTime(1000, 1MHz) = %d, want 1", got)
	}
}

func TestTimeForCyclesTruncates(t *testing.T) {
	// 3MHz -> 333.33ns/cycle; 1 cycle truncates to 333ns.
	got := TimeForCycles(1, 3_000_000)
	if got != 333 {
		t.Fatalf("TimeForCycles(1, 3MHz) = %d, want 333", got)
	}
}

func TestCyclePeriod(t *testing.T) {
	if got := CyclePeriod(1_000_000); got != 1000 {
		t.Fatalf("CyclePeriod(1MHz) = %d, want 1000", got)
	}
	if got := CyclePeriod(0); got != 0 {
		t.Fatalf("CyclePeriod(0) = %d, want 0", got)
	}
}
