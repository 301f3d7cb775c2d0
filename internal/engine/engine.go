package engine

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"

	"netshield/internal/dataset"
	"netshield/internal/session"
)

// Engine owns the current dataset and every live session.
type Engine struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*session.Session
	source   dataset.Source
	opts     session.Options
	closed   bool
}

// New creates an Engine that hands source to new sessions.
func New(source dataset.Source, opts session.Options) *Engine {
	return &Engine{
		sessions: make(map[uuid.UUID]*session.Session),
		source:   source,
		opts:     opts,
	}
}

// NewSession creates and registers a session over the current dataset.
// The caller must CloseSession it when its view goes away.
func (e *Engine) NewSession() (*session.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, session.ErrClosed
	}
	s := session.New(e.source, e.opts)
	e.sessions[s.ID] = s
	log.Printf("Session %s opened (%d active)", s.ID, len(e.sessions))
	return s, nil
}

// Session looks up a live session.
func (e *Engine) Session(id uuid.UUID) (*session.Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	return s, ok
}

// Sessions returns the number of live sessions.
func (e *Engine) Sessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// CloseSession tears a session down and forgets it. Unknown ids are ignored.
func (e *Engine) CloseSession(id uuid.UUID) {
	e.mu.Lock()
	s, ok := e.sessions[id]
	delete(e.sessions, id)
	n := len(e.sessions)
	e.mu.Unlock()

	if ok {
		s.Close()
		log.Printf("Session %s closed (%d active)", id, n)
	}
}

// Source returns the dataset new sessions start from.
func (e *Engine) Source() dataset.Source {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source
}

// SetSource replaces the dataset. Live sessions are reloaded onto it.
func (e *Engine) SetSource(source dataset.Source) {
	e.mu.Lock()
	e.source = source
	live := make([]*session.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		live = append(live, s)
	}
	e.mu.Unlock()

	for _, s := range live {
		s.Replace(source)
	}
}

// LoadPcap decodes a capture file and makes it the dataset.
func (e *Engine) LoadPcap(r io.Reader) (*dataset.Static, error) {
	src, err := dataset.LoadPcap(r)
	if err != nil {
		return nil, fmt.Errorf("load pcap: %w", err)
	}
	e.SetSource(src)
	log.Printf("Loaded %d records from pcap (truncated: %t)", src.Len(), src.Truncated())
	return src, nil
}

// Close tears down every session. Later NewSession calls fail.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	live := e.sessions
	e.sessions = make(map[uuid.UUID]*session.Session)
	e.mu.Unlock()

	for _, s := range live {
		s.Close()
	}
}
