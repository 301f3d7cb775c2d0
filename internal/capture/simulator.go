package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"netshield/internal/dataset"
	"netshield/internal/models"
	"netshield/internal/notify"
)

// DefaultInterval is the pause between two simulated packets.
const DefaultInterval = 1500 * time.Millisecond

// Notices returned by the control methods. None of them change state.
var (
	ErrExhausted        = errors.New("no more records: reload to start over")
	ErrAlreadyCapturing = errors.New("capture already running")
	ErrNotCapturing     = errors.New("capture is not running")
)

// State of the simulator.
type State int

const (
	Idle State = iota
	Capturing
)

func (s State) String() string {
	if s == Capturing {
		return "capturing"
	}
	return "idle"
}

// EventType identifies what changed.
type EventType string

const (
	EventStarted   EventType = "started"
	EventRecord    EventType = "record"
	EventStopped   EventType = "stopped"
	EventExhausted EventType = "exhausted"
	EventReloaded  EventType = "reloaded"
	EventFault     EventType = "fault"
)

// Event is published to subscribers after every state change.
type Event struct {
	Type    EventType
	Record  models.Record
	Cursor  int
	Count   int
	Message string
}

// Simulator replays a dataset.Source into a growing captured list, one
// record per tick.
type Simulator struct {
	clock    clockwork.Clock
	interval time.Duration
	hub      *notify.Hub[Event]

	mu       sync.Mutex
	source   dataset.Source
	captured []models.Record
	cursor   int
	state    State
	stopCh   chan struct{}
	done     chan struct{}
	closed   bool
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(s *Simulator) { s.clock = c }
}

// WithInterval sets the tick interval. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(s *Simulator) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewSimulator creates an idle simulator over source.
func NewSimulator(source dataset.Source, opts ...Option) *Simulator {
	s := &Simulator{
		clock:    clockwork.NewRealClock(),
		interval: DefaultInterval,
		hub:      notify.NewHub[Event](),
		source:   source,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe returns a handle receiving every subsequent event. Callers must
// Unsubscribe when done.
func (s *Simulator) Subscribe(buf int) *notify.Subscription[Event] {
	return s.hub.Subscribe(buf)
}

func (s *Simulator) Interval() time.Duration { return s.interval }

// Start moves Idle -> Capturing and arms the ticker.
func (s *Simulator) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNotCapturing
	}
	if s.state == Capturing {
		s.mu.Unlock()
		return ErrAlreadyCapturing
	}
	if s.cursor >= s.source.Len() {
		s.mu.Unlock()
		return ErrExhausted
	}
	s.state = Capturing
	stopCh := make(chan struct{})
	done := make(chan struct{})
	s.stopCh, s.done = stopCh, done
	ticker := s.clock.NewTicker(s.interval)
	ev := Event{Type: EventStarted, Cursor: s.cursor, Count: len(s.captured)}
	s.mu.Unlock()

	go s.run(ticker, stopCh, done)
	s.hub.Publish(ev)
	return nil
}

// Stop moves Capturing -> Idle. It returns only after the tick goroutine
// has exited, so no tick is applied afterwards.
func (s *Simulator) Stop() error {
	s.mu.Lock()
	if s.state != Capturing {
		s.mu.Unlock()
		return ErrNotCapturing
	}
	done := s.halt()
	ev := Event{Type: EventStopped, Cursor: s.cursor, Count: len(s.captured)}
	s.mu.Unlock()

	<-done
	s.hub.Publish(ev)
	return nil
}

// halt leaves Capturing. Caller holds s.mu.
func (s *Simulator) halt() chan struct{} {
	s.state = Idle
	close(s.stopCh)
	done := s.done
	s.stopCh, s.done = nil, nil
	return done
}

// Reload clears the captured list and rewinds the cursor. Valid in any state.
func (s *Simulator) Reload() {
	s.mu.Lock()
	var done chan struct{}
	if s.state == Capturing {
		done = s.halt()
	}
	s.captured = nil
	s.cursor = 0
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	s.hub.Publish(Event{Type: EventReloaded})
}

// Replace swaps in a new source and reloads.
func (s *Simulator) Replace(source dataset.Source) {
	s.mu.Lock()
	var done chan struct{}
	if s.state == Capturing {
		done = s.halt()
	}
	s.source = source
	s.captured = nil
	s.cursor = 0
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	s.hub.Publish(Event{Type: EventReloaded})
}

// Close stops any running capture and ends all subscriptions. It is the
// teardown path and may be called more than once.
func (s *Simulator) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var done chan struct{}
	if s.state == Capturing {
		done = s.halt()
	}
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	s.hub.Close()
}

func (s *Simulator) run(ticker clockwork.Ticker, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.Chan():
			if !s.tick(stopCh) {
				return
			}
		}
	}
}

// tick appends the record under the cursor. It reports false once the run
// identified by stopCh is over.
func (s *Simulator) tick(stopCh <-chan struct{}) bool {
	s.mu.Lock()
	if s.stopCh == nil || s.stopCh != stopCh {
		s.mu.Unlock()
		return false
	}

	var events []Event
	if s.cursor < s.source.Len() {
		rec, err := s.source.RecordAt(s.cursor)
		if err != nil {
			s.halt()
			ev := Event{Type: EventFault, Cursor: s.cursor, Count: len(s.captured),
				Message: fmt.Sprintf("read record %d: %v", s.cursor, err)}
			s.mu.Unlock()
			s.hub.Publish(ev)
			return false
		}
		s.captured = append(s.captured, rec)
		s.cursor++
		events = append(events, Event{Type: EventRecord, Record: rec, Cursor: s.cursor, Count: len(s.captured)})
	}

	more := s.cursor < s.source.Len()
	if !more {
		s.halt()
		events = append(events, Event{Type: EventExhausted, Cursor: s.cursor, Count: len(s.captured),
			Message: "all records have been captured"})
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.hub.Publish(ev)
	}
	return more
}

func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Simulator) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// SourceLen returns the current length of the underlying source.
func (s *Simulator) SourceLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source.Len()
}

func (s *Simulator) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.captured)
}

// Records returns a copy of the captured list in capture order.
func (s *Simulator) Records() []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Record, len(s.captured))
	copy(out, s.captured)
	return out
}
