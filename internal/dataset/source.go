package dataset

import (
	"errors"
	"fmt"
	"sync"

	"netshield/internal/models"
)

// ErrOutOfRange is returned by RecordAt for an index outside [0, Len()).
var ErrOutOfRange = errors.New("record index out of range")

// Source supplies an ordered sequence of records for the capture simulator.
type Source interface {
	Len() int
	RecordAt(i int) (models.Record, error)
}

// Static is a fixed, immutable source.
type Static struct {
	records   []models.Record
	truncated bool
}

// NewStatic copies records into a new source.
func NewStatic(records []models.Record) *Static {
	cp := make([]models.Record, len(records))
	copy(cp, records)
	return &Static{records: cp}
}

func (s *Static) Len() int { return len(s.records) }

// Truncated reports whether the source was cut short at a record limit.
func (s *Static) Truncated() bool { return s.truncated }

func (s *Static) RecordAt(i int) (models.Record, error) {
	if i < 0 || i >= len(s.records) {
		return models.Record{}, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(s.records))
	}
	return s.records[i], nil
}

// Live is an append-only source fed from a remote subscription. Len grows
// as records arrive; earlier indices never change.
type Live struct {
	mu      sync.RWMutex
	records []models.Record
	ids     map[string]struct{}
}

func NewLive() *Live {
	return &Live{ids: make(map[string]struct{})}
}

// Append adds a record. Records whose id was already seen are ignored and
// reported as false.
func (l *Live) Append(r models.Record) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.ids[r.ID]; dup {
		return false
	}
	l.ids[r.ID] = struct{}{}
	l.records = append(l.records, r)
	return true
}

func (l *Live) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

func (l *Live) RecordAt(i int) (models.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.records) {
		return models.Record{}, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(l.records))
	}
	return l.records[i], nil
}
