package event

import "testing"

func TestSchedulerMonotonicity(t *testing.T) {
	s := NewScheduler()
	fired := map[string]int{}
	a := s.CreateEvent("a", 1_000_000, 1000, func(cycles, late int64) { fired["a"]++ }, true)
	b := s.CreateEvent("b", 1_000_000, 500, func(cycles, late int64) { fired["b"]++ }, true)

	d, ok := s.NextDeadline()
	if !ok {
		t.Fatal("expected an active event")
	}
	if d != s.heap[0].deadline {
		t.Fatalf("NextDeadline() = %d, want heap head %d", d, s.heap[0].deadline)
	}

	b.Deactivate()
	d2, ok := s.NextDeadline()
	if !ok || d2 != a.ev.deadline {
		t.Fatalf("after deactivating b, head should be a's deadline")
	}

	b.Activate()
	// b now reschedules relative to "now" (0), firing sooner than a again.
	if s.heap[0] != b.ev {
		t.Fatalf("heap head should be b again after reactivation")
	}
}

func TestSchedulerS5TwoPeriodicEvents(t *testing.T) {
	s := NewScheduler()
	var e1Count, e2Count int
	var order []string
	var at []int64 // deadline (ns) of each firing in order: now minus lateness

	// E1 every 1ms, E2 every 3ms, both at 1MHz so interval is in cycles
	// equal to microseconds here for readability: 1MHz => 1000 cycles = 1ms.
	s.CreateEvent("E1", 1_000_000, 1000, func(cycles, late int64) {
		e1Count++
		order = append(order, "E1")
		at = append(at, int64(s.Now())-late*1000)
	}, true)
	s.CreateEvent("E2", 1_000_000, 3000, func(cycles, late int64) {
		e2Count++
		order = append(order, "E2")
		at = append(at, int64(s.Now())-late*1000)
	}, true)

	s.Advance(10_000_000) // 10ms

	if e1Count != 10 {
		t.Fatalf("E1 fired %d times, want 10", e1Count)
	}
	if e2Count != 3 {
		t.Fatalf("E2 fired %d times, want 3", e2Count)
	}

	// At every simultaneous deadline (3ms, 6ms, 9ms) E1 was registered
	// first, so it must appear first in `order` among that pair.
	simultaneous := 0
	for i := 0; i+1 < len(order); i++ {
		shared := at[i] == at[i+1]
		if order[i] == "E2" && order[i+1] == "E1" && shared {
			// E2 at 3ms followed by E1 at 4ms is normal; only E2 ahead of
			// E1 at the same deadline violates the insertion-order
			// tie-break.
			t.Fatalf("E2 fired before E1 at a shared deadline (index %d)", i)
		}
		if order[i] == "E1" && order[i+1] == "E2" && shared {
			simultaneous++
		}
	}
	if simultaneous != 3 {
		t.Fatalf("expected 3 simultaneous E1-then-E2 firings, got %d", simultaneous)
	}
}

func TestInvokeEarlyDoesNotDisturbOtherEvents(t *testing.T) {
	s := NewScheduler()
	var pitReads []int64
	pit := s.CreateEvent("pit", 1_000_000, 1000, func(cycles, late int64) {}, true)
	other := s.CreateEvent("other", 1_000_000, 5000, func(cycles, late int64) {}, true)

	otherDeadlineBefore := other.ev.deadline

	s.Advance(400_000) // 400us, nothing fires yet
	pit.InvokeEarly(false)
	pitReads = append(pitReads, 1)
	_ = pitReads

	if other.ev.deadline != otherDeadlineBefore {
		t.Fatalf("InvokeEarly on pit must not reschedule other event")
	}
	// pit should be rearmed a full interval from "now" (400us + 1ms).
	if pit.ev.deadline != 400_000+1_000_000 {
		t.Fatalf("pit deadline after InvokeEarly = %d, want %d", pit.ev.deadline, int64(400_000+1_000_000))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := NewScheduler()
	s.CreateEvent("a", 1_000_000, 1000, func(cycles, late int64) {}, true)
	s.CreateEvent("b", 2_000_000, 2000, func(cycles, late int64) {}, false)

	s.Advance(300_000)
	saved := s.SaveState()

	s2 := NewScheduler()
	s2.CreateEvent("a", 1_000_000, 1000, func(cycles, late int64) {}, true)
	s2.CreateEvent("b", 2_000_000, 2000, func(cycles, late int64) {}, false)
	s2.now = s.now

	if err := s2.LoadState(saved); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	saved2 := s2.SaveState()
	if string(saved) != string(saved2) {
		t.Fatalf("save -> load -> save was not byte-identical")
	}
}

func TestLoadStateRejectsMismatchedEventSet(t *testing.T) {
	s := NewScheduler()
	s.CreateEvent("a", 1_000_000, 1000, func(cycles, late int64) {}, true)
	saved := s.SaveState()

	s2 := NewScheduler()
	s2.CreateEvent("a", 1_000_000, 1000, func(cycles, late int64) {}, true)
	s2.CreateEvent("b", 1_000_000, 1000, func(cycles, late int64) {}, true)

	if err := s2.LoadState(saved); err != ErrEventMismatch {
		t.Fatalf("LoadState with mismatched set = %v, want ErrEventMismatch", err)
	}
}
