package engine

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"netshield/internal/dataset"
	"netshield/internal/models"
	"netshield/internal/session"
)

func newEngine() *Engine {
	return New(dataset.Builtin(), session.Options{Clock: clockwork.NewFakeClock()})
}

func TestSessionRegistry(t *testing.T) {
	eng := newEngine()
	defer eng.Close()

	a, err := eng.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	b, err := eng.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID {
		t.Fatal("sessions share an id")
	}
	if got, ok := eng.Session(a.ID); !ok || got != a {
		t.Fatal("Session did not return the registered session")
	}
	if eng.Sessions() != 2 {
		t.Fatalf("Sessions = %d, want 2", eng.Sessions())
	}

	eng.CloseSession(a.ID)
	eng.CloseSession(a.ID)
	eng.CloseSession(uuid.New())
	if _, ok := eng.Session(a.ID); ok {
		t.Fatal("closed session still registered")
	}
	if err := a.Start(); !errors.Is(err, session.ErrClosed) {
		t.Fatalf("Start on closed session = %v", err)
	}
	if eng.Sessions() != 1 {
		t.Fatalf("Sessions = %d, want 1", eng.Sessions())
	}
}

func TestSetSourceReloadsSessions(t *testing.T) {
	eng := newEngine()
	defer eng.Close()
	s, _ := eng.NewSession()

	eng.SetSource(dataset.NewStatic([]models.Record{{ID: "only"}}))
	if _, total := s.Progress(); total != 1 {
		t.Fatalf("live session source length = %d, want 1", total)
	}
	fresh, _ := eng.NewSession()
	if _, total := fresh.Progress(); total != 1 {
		t.Fatalf("new session source length = %d, want 1", total)
	}
}

func TestLoadPcapRejectsGarbage(t *testing.T) {
	eng := newEngine()
	defer eng.Close()

	if _, err := eng.LoadPcap(strings.NewReader("not a pcap")); err == nil {
		t.Fatal("expected error")
	}
	if eng.Source().Len() != 10 {
		t.Fatal("failed load replaced the dataset")
	}
	if _, err := eng.LoadPcap(&bytes.Buffer{}); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestCloseRejectsNewSessions(t *testing.T) {
	eng := newEngine()
	s, _ := eng.NewSession()
	eng.Close()

	if _, err := eng.NewSession(); !errors.Is(err, session.ErrClosed) {
		t.Fatalf("NewSession after Close = %v", err)
	}
	if err := s.Stop(); !errors.Is(err, session.ErrClosed) {
		t.Fatalf("session survived engine Close: %v", err)
	}
}
