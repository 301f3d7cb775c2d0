package session

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"netshield/internal/capture"
	"netshield/internal/dataset"
	"netshield/internal/models"
)

const tick = time.Second

type advancer interface{ Advance(time.Duration) }

func newSession(t *testing.T, src dataset.Source) (*Session, advancer) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	s := New(src, Options{Clock: clock, Interval: tick, DebounceDelay: 300 * time.Millisecond})
	t.Cleanup(s.Close)
	return s, clock
}

// capture runs n ticks and waits until each has been applied.
func runTicks(t *testing.T, s *Session, clock advancer, n int) {
	t.Helper()
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 1; i <= n; i++ {
		clock.Advance(tick)
		deadline := time.Now().Add(2 * time.Second)
		for {
			if c, _ := s.Progress(); c >= i {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("tick %d never applied", i)
			}
			time.Sleep(time.Millisecond)
		}
	}
}

func conversationSource() dataset.Source {
	rec := func(id, src, dst, proto string) models.Record {
		return models.Record{ID: id, Source: src, Destination: dst, Protocol: proto, Length: 64, Info: proto + " " + id}
	}
	return dataset.NewStatic([]models.Record{
		rec("a", "192.168.1.1", "10.0.0.1", "TCP"),
		rec("b", "10.0.0.1", "192.168.1.1", "TCP"),
		rec("c", "192.168.1.1", "10.0.0.9", "DNS"),
		rec("d", "10.0.0.1", "192.168.1.1", "DNS"),
		rec("e", "10.0.0.5", "10.0.0.1", "UDP"),
	})
}

func ids(records []models.Record) string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return strings.Join(out, ",")
}

func TestFollowConversation(t *testing.T) {
	s, clock := newSession(t, conversationSource())
	runTicks(t, s, clock, 5)

	if err := s.Follow(); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("Follow without selection = %v", err)
	}
	if err := s.Select("a"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := s.Follow(); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if got := ids(s.Visible()); got != "a,b,d" {
		t.Fatalf("visible while following = %s, want a,b,d", got)
	}
	if s.Selected() == nil || s.Selected().ID != "a" {
		t.Fatal("Follow changed the selection")
	}

	s.CommitFilter("dns")
	if got := ids(s.Visible()); got != "d" {
		t.Fatalf("text and conversation = %s, want d", got)
	}

	s.ClearFollow()
	if got := ids(s.Visible()); got != "c,d" {
		t.Fatalf("after clearing conversation = %s, want c,d", got)
	}
	s.CommitFilter("")
	if got := ids(s.Visible()); got != "a,b,c,d,e" {
		t.Fatalf("unfiltered = %s", got)
	}
}

func TestFilterDebounceRecomputesOnce(t *testing.T) {
	s, clock := newSession(t, dataset.Builtin())
	runTicks(t, s, clock, 10)
	sub := s.Subscribe(16)
	defer sub.Unsubscribe()

	s.SetFilter("dns")
	clock.Advance(100 * time.Millisecond)
	s.SetFilter("dns2")
	clock.Advance(299 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if n := s.Recomputes(); n != 0 {
		t.Fatalf("recomputed %d times inside the quiet period", n)
	}
	if s.PendingFilter() != "dns2" || s.FilterText() != "" {
		t.Fatalf("pending=%q committed=%q", s.PendingFilter(), s.FilterText())
	}

	clock.Advance(time.Millisecond)
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case ch := <-sub.C():
			done = ch.Kind == ChangeFilter
		case <-timeout:
			t.Fatal("filter never committed")
		}
	}
	if n := s.Recomputes(); n != 1 {
		t.Fatalf("Recomputes = %d, want 1", n)
	}
	if s.FilterText() != "dns2" {
		t.Fatalf("committed filter = %q, want dns2", s.FilterText())
	}
	if len(s.Visible()) != 0 {
		t.Fatalf("dns2 matched %d records", len(s.Visible()))
	}
}

func TestSelectionIsWeak(t *testing.T) {
	s, clock := newSession(t, dataset.Builtin())
	runTicks(t, s, clock, 3)

	if err := s.Select("pkt9"); !errors.Is(err, ErrUnknownRecord) {
		t.Fatalf("Select of uncaptured record = %v", err)
	}
	if err := s.SelectIndex(3); err != nil {
		t.Fatalf("SelectIndex: %v", err)
	}
	if d := s.Detail(); d.Empty || d.Title != "Packet Details (ID: pkt3)" {
		t.Fatalf("detail = %+v", d)
	}
	rows := s.Rows()
	if !rows[2].Selected || rows[0].Selected {
		t.Fatal("selection not marked on row 3 only")
	}

	s.CommitFilter("dns")
	if s.Selected() == nil {
		t.Fatal("selection lost when the record was filtered out")
	}

	s.Reload()
	if s.Selected() != nil || s.Conversation() != nil {
		t.Fatal("reload kept selection state")
	}
	if d := s.Diagram(); !d.Empty {
		t.Fatal("diagram not empty after reload")
	}
}

func TestToggleResetsOnNewSelection(t *testing.T) {
	s, clock := newSession(t, dataset.Builtin())
	runTicks(t, s, clock, 4)

	if err := s.Select("pkt3"); err != nil {
		t.Fatal(err)
	}
	if !s.Toggle("tcp") {
		t.Fatal("Toggle did not expand")
	}
	expanded := false
	for _, l := range s.Detail().Tree {
		if l.Path == "tcp" && l.Expanded {
			expanded = true
		}
	}
	if !expanded {
		t.Fatal("tcp node not expanded in detail tree")
	}

	if err := s.Select("pkt4"); err != nil {
		t.Fatal(err)
	}
	for _, l := range s.Detail().Tree {
		if l.Expanded {
			t.Fatalf("%s expanded after selecting another record", l.Path)
		}
	}
}

func TestReloadIdempotent(t *testing.T) {
	s, clock := newSession(t, dataset.Builtin())
	runTicks(t, s, clock, 2)

	s.Reload()
	s.Reload()
	if s.State() != capture.Idle {
		t.Fatalf("state = %s", s.State())
	}
	if c, total := s.Progress(); c != 0 || total != 10 {
		t.Fatalf("progress = %d/%d", c, total)
	}
	if len(s.Captured()) != 0 {
		t.Fatal("captured list not cleared")
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start after reload: %v", err)
	}
}

func TestSnapshotAndExport(t *testing.T) {
	s, clock := newSession(t, dataset.NewStatic([]models.Record{
		{ID: "x1", Protocol: "TCP", Length: 100},
		{ID: "x2", Protocol: "TCP", Length: 100},
		{ID: "x3", Protocol: "DNS", Length: 100},
	}))
	runTicks(t, s, clock, 3)

	snap := s.Snapshot()
	if snap.ID != s.ID.String() || snap.Cursor != 3 || snap.SourceLen != 3 {
		t.Fatalf("snapshot header = %+v", snap)
	}
	if snap.State != "idle" {
		t.Fatalf("state after exhaustion = %s", snap.State)
	}
	if snap.Summary.Total != 3 || snap.Summary.Protocols[0].PercentText() != "66.7%" {
		t.Fatalf("summary = %+v", snap.Summary)
	}
	if !snap.Detail.Empty || !snap.Diagram.Empty {
		t.Fatal("snapshot shows a selection")
	}

	var buf bytes.Buffer
	if err := s.Export(&buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 3 {
		t.Fatalf("export has %d lines", n)
	}
}

func TestClosedSessionRejectsCommands(t *testing.T) {
	s, _ := newSession(t, dataset.Builtin())
	sub := s.Subscribe(1)
	s.Close()

	if err := s.Start(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start on closed session = %v", err)
	}
	select {
	case _, ok := <-sub.C():
		if ok {
			for range sub.C() {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription still open after Close")
	}
}
