package notify

import "testing"

func TestHubDelivers(t *testing.T) {
	h := NewHub[int]()
	a := h.Subscribe(4)
	b := h.Subscribe(4)

	h.Publish(1)
	h.Publish(2)

	for _, s := range []*Subscription[int]{a, b} {
		if got := <-s.C(); got != 1 {
			t.Fatalf("first event = %d, want 1", got)
		}
		if got := <-s.C(); got != 2 {
			t.Fatalf("second event = %d, want 2", got)
		}
	}
}

func TestHubDropsWhenFull(t *testing.T) {
	h := NewHub[int]()
	s := h.Subscribe(1)
	h.Publish(1)
	h.Publish(2)

	if got := <-s.C(); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
	select {
	case v := <-s.C():
		t.Fatalf("unexpected event %d", v)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub[string]()
	s := h.Subscribe(1)
	s.Unsubscribe()
	s.Unsubscribe()

	if _, ok := <-s.C(); ok {
		t.Fatal("channel still open after Unsubscribe")
	}
	if n := h.Len(); n != 0 {
		t.Fatalf("Len = %d, want 0", n)
	}
	h.Publish("ignored")
}

func TestCloseEndsSubscriptions(t *testing.T) {
	h := NewHub[int]()
	s := h.Subscribe(1)
	h.Close()

	if _, ok := <-s.C(); ok {
		t.Fatal("channel still open after Close")
	}
	s.Unsubscribe()

	late := h.Subscribe(1)
	if _, ok := <-late.C(); ok {
		t.Fatal("subscription on closed hub should be closed")
	}
}
