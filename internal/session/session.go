package session

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"netshield/internal/capture"
	"netshield/internal/dataset"
	"netshield/internal/filter"
	"netshield/internal/flow"
	"netshield/internal/models"
	"netshield/internal/notify"
	"netshield/internal/view"
	"netshield/internal/voip"
)

var (
	ErrNoSelection   = errors.New("no packet selected")
	ErrUnknownRecord = errors.New("record is not in the captured list")
	ErrClosed        = errors.New("session closed")
)

// ChangeKind says which part of the session changed.
type ChangeKind string

const (
	ChangeCapture ChangeKind = "capture"
	ChangeFilter  ChangeKind = "filter"
	ChangeSelect  ChangeKind = "select"
	ChangeNotice  ChangeKind = "notice"
)

// Change is published to session subscribers.
type Change struct {
	Kind    ChangeKind
	Message string
}

// Options configure a Session.
type Options struct {
	Clock         clockwork.Clock
	Interval      time.Duration
	DebounceDelay time.Duration
}

// Session owns the state of one mounted view: the simulator, filter text,
// followed conversation, selection and detail-tree expansion.
type Session struct {
	ID uuid.UUID

	sim       *capture.Simulator
	simSub    *notify.Subscription[capture.Event]
	debouncer *filter.Debouncer[string]
	hub       *notify.Hub[Change]
	created   time.Time
	wg        sync.WaitGroup

	mu         sync.Mutex
	filterText string
	pending    string
	conv       *flow.Pair
	selected   string
	expansion  view.Expansion
	recomputes int
	closed     bool
}

// New creates an idle session over source.
func New(source dataset.Source, opts Options) *Session {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Session{
		ID:        uuid.New(),
		sim:       capture.NewSimulator(source, capture.WithClock(clock), capture.WithInterval(opts.Interval)),
		hub:       notify.NewHub[Change](),
		created:   clock.Now(),
		expansion: view.Expansion{},
	}
	s.debouncer = filter.NewDebouncer(clock, opts.DebounceDelay, s.commitFilter)
	s.simSub = s.sim.Subscribe(64)
	s.wg.Add(1)
	go s.forward()
	return s
}

// forward turns simulator events into session changes.
func (s *Session) forward() {
	defer s.wg.Done()
	for ev := range s.simSub.C() {
		switch ev.Type {
		case capture.EventExhausted, capture.EventFault:
			s.hub.Publish(Change{Kind: ChangeCapture})
			s.hub.Publish(Change{Kind: ChangeNotice, Message: ev.Message})
		default:
			s.hub.Publish(Change{Kind: ChangeCapture})
		}
	}
}

// Subscribe returns a handle that receives every change. Callers must
// Unsubscribe on every exit path.
func (s *Session) Subscribe(buf int) *notify.Subscription[Change] {
	return s.hub.Subscribe(buf)
}

func (s *Session) Created() time.Time { return s.created }

func (s *Session) Interval() time.Duration { return s.sim.Interval() }

// Start begins capturing. Notices such as capture.ErrExhausted are returned
// unchanged so callers can show them.
func (s *Session) Start() error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.sim.Start()
}

func (s *Session) Stop() error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.sim.Stop()
}

// Reload clears the captured list and every piece of view state derived
// from it: selection, followed conversation and tree expansion.
func (s *Session) Reload() {
	if s.isClosed() {
		return
	}
	s.mu.Lock()
	s.selected = ""
	s.conv = nil
	s.expansion = view.Expansion{}
	s.mu.Unlock()
	s.sim.Reload()
}

// Replace swaps the dataset and reloads.
func (s *Session) Replace(source dataset.Source) {
	if s.isClosed() {
		return
	}
	s.mu.Lock()
	s.selected = ""
	s.conv = nil
	s.expansion = view.Expansion{}
	s.mu.Unlock()
	s.sim.Replace(source)
}

// SetFilter records raw filter input. The visible list changes only after
// the input has been stable for the debounce delay.
func (s *Session) SetFilter(text string) {
	s.mu.Lock()
	s.pending = text
	s.mu.Unlock()
	s.debouncer.Trigger(text)
}

// CommitFilter applies text immediately, dropping any pending input.
func (s *Session) CommitFilter(text string) {
	s.debouncer.Cancel()
	s.mu.Lock()
	s.pending = text
	s.mu.Unlock()
	s.commitFilter(text)
}

func (s *Session) commitFilter(text string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.filterText = text
	s.recomputes++
	s.mu.Unlock()
	s.hub.Publish(Change{Kind: ChangeFilter})
}

// FilterText returns the committed filter.
func (s *Session) FilterText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterText
}

// PendingFilter returns the latest raw input, committed or not.
func (s *Session) PendingFilter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Recomputes counts how many times the committed filter changed.
func (s *Session) Recomputes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recomputes
}

// Select marks the captured record with the given id.
func (s *Session) Select(id string) error {
	if _, ok := s.lookup(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}
	s.mu.Lock()
	if s.selected != id {
		s.expansion = view.Expansion{}
	}
	s.selected = id
	s.mu.Unlock()
	s.hub.Publish(Change{Kind: ChangeSelect})
	return nil
}

// SelectIndex selects by 1-based position in the visible table.
func (s *Session) SelectIndex(index int) error {
	visible := s.Visible()
	if index < 1 || index > len(visible) {
		return fmt.Errorf("%w: row %d of %d", ErrUnknownRecord, index, len(visible))
	}
	return s.Select(visible[index-1].ID)
}

// ClearSelection drops the selection.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	s.selected = ""
	s.mu.Unlock()
	s.hub.Publish(Change{Kind: ChangeSelect})
}

// Selected resolves the selection against the captured list. The session
// only stores the id, so a record that is gone reads as no selection.
func (s *Session) Selected() *models.Record {
	s.mu.Lock()
	id := s.selected
	s.mu.Unlock()
	if id == "" {
		return nil
	}
	r, ok := s.lookup(id)
	if !ok {
		return nil
	}
	return &r
}

func (s *Session) lookup(id string) (models.Record, bool) {
	for _, r := range s.sim.Records() {
		if r.ID == id {
			return r, true
		}
	}
	return models.Record{}, false
}

// Follow restricts the visible list to the selected record's conversation.
// The selection is left as it is.
func (s *Session) Follow() error {
	r := s.Selected()
	if r == nil {
		return ErrNoSelection
	}
	p := flow.PairOf(*r)
	s.mu.Lock()
	s.conv = &p
	s.mu.Unlock()
	s.hub.Publish(Change{Kind: ChangeFilter})
	return nil
}

func (s *Session) ClearFollow() {
	s.mu.Lock()
	s.conv = nil
	s.mu.Unlock()
	s.hub.Publish(Change{Kind: ChangeFilter})
}

// Conversation returns the followed pair, or nil.
func (s *Session) Conversation() *flow.Pair {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv == nil {
		return nil
	}
	p := *s.conv
	return &p
}

// Toggle expands or collapses one node of the detail tree.
func (s *Session) Toggle(path string) bool {
	s.mu.Lock()
	expanded := s.expansion.Toggle(path)
	s.mu.Unlock()
	s.hub.Publish(Change{Kind: ChangeSelect})
	return expanded
}

// State returns the simulator state.
func (s *Session) State() capture.State { return s.sim.State() }

// Progress returns the cursor and the dataset length.
func (s *Session) Progress() (cursor, total int) {
	return s.sim.Cursor(), s.sim.SourceLen()
}

// Captured returns the full captured list.
func (s *Session) Captured() []models.Record { return s.sim.Records() }

// Visible applies the committed filter and followed conversation.
func (s *Session) Visible() []models.Record {
	s.mu.Lock()
	text, conv := s.filterText, s.conv
	s.mu.Unlock()
	return filter.Visible(s.sim.Records(), text, conv)
}

func (s *Session) Rows() []view.Row {
	s.mu.Lock()
	selected := s.selected
	s.mu.Unlock()
	return view.Table(s.Visible(), selected)
}

func (s *Session) Detail() view.Detail {
	s.mu.Lock()
	exp := s.expansion.Clone()
	s.mu.Unlock()
	return view.DetailOf(s.Selected(), exp)
}

func (s *Session) Diagram() view.Diagram { return view.DiagramOf(s.Selected()) }

func (s *Session) Summary() view.Summary { return view.Summarize(s.sim.Records()) }

func (s *Session) Conversations() []flow.Conversation { return flow.Conversations(s.sim.Records()) }

func (s *Session) Endpoints() []flow.Endpoint { return flow.Endpoints(s.sim.Records()) }

func (s *Session) Hierarchy() []view.HierarchyNode { return view.Hierarchy(s.sim.Records()) }

// VoIP derives SIP calls and RTP streams from the captured list.
func (s *Session) VoIP() voip.Report { return voip.Analyze(s.sim.Records()) }

func (s *Session) Wireless() view.WirelessStats { return view.Wireless(s.sim.Records()) }

// Export writes the captured list as text, one record per line.
func (s *Session) Export(w io.Writer) error {
	return view.WriteText(w, s.sim.Records())
}

// Snapshot is everything a client needs to redraw the dashboard.
type Snapshot struct {
	ID           string       `json:"id"`
	State        string       `json:"state"`
	Cursor       int          `json:"cursor"`
	SourceLen    int          `json:"sourceLen"`
	Filter       string       `json:"filter"`
	Conversation *flow.Pair   `json:"conversation,omitempty"`
	Rows         []view.Row   `json:"rows"`
	Detail       view.Detail  `json:"detail"`
	Diagram      view.Diagram `json:"diagram"`
	Summary      view.Summary `json:"summary"`
}

func (s *Session) Snapshot() Snapshot {
	cursor, total := s.Progress()
	return Snapshot{
		ID:           s.ID.String(),
		State:        s.State().String(),
		Cursor:       cursor,
		SourceLen:    total,
		Filter:       s.FilterText(),
		Conversation: s.Conversation(),
		Rows:         s.Rows(),
		Detail:       s.Detail(),
		Diagram:      s.Diagram(),
		Summary:      s.Summary(),
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears the session down: the capture timer and the debounce timer
// are cancelled and every subscription ends.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.debouncer.Stop()
	s.sim.Close()
	s.wg.Wait()
	s.hub.Close()
}
