package filter

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func expectValue(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("debounced value = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func expectNothing(t *testing.T, ch <-chan string) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("unexpected debounced value %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDebounceCoalescesRapidInput(t *testing.T) {
	clock := clockwork.NewFakeClock()
	got := make(chan string, 4)
	d := NewDebouncer(clock, 300*time.Millisecond, func(s string) { got <- s })

	d.Trigger("dns")
	clock.Advance(100 * time.Millisecond)
	d.Trigger("dns2")

	clock.Advance(299 * time.Millisecond)
	expectNothing(t, got)

	clock.Advance(time.Millisecond)
	expectValue(t, got, "dns2")

	clock.Advance(time.Second)
	expectNothing(t, got)
	if d.Pending() {
		t.Fatal("debouncer still pending after firing")
	}
}

func TestDebounceFlush(t *testing.T) {
	clock := clockwork.NewFakeClock()
	got := make(chan string, 4)
	d := NewDebouncer(clock, 300*time.Millisecond, func(s string) { got <- s })

	if d.Flush() {
		t.Fatal("Flush with nothing pending reported true")
	}
	d.Trigger("tcp")
	if !d.Flush() {
		t.Fatal("Flush did not apply pending value")
	}
	expectValue(t, got, "tcp")

	clock.Advance(time.Second)
	expectNothing(t, got)
}

func TestDebounceStop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	got := make(chan string, 4)
	d := NewDebouncer(clock, 300*time.Millisecond, func(s string) { got <- s })

	d.Trigger("http")
	d.Stop()
	clock.Advance(time.Second)
	expectNothing(t, got)

	d.Trigger("late")
	clock.Advance(time.Second)
	expectNothing(t, got)
}
