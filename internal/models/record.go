package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the display form of a record timestamp. Fractional
// seconds are printed only when present.
const TimestampLayout = "2006-01-02 15:04:05.999999"

var timestampLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"15:04:05.999999",
}

// Status tags a record for row coloring only.
type Status string

const (
	StatusNone    Status = ""
	StatusGood    Status = "good"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Record is one observed (or simulated) packet.
type Record struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"-"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Protocol    string    `json:"protocol"`
	Length      int       `json:"length"`
	Info        string    `json:"info"`
	Details     Detail    `json:"details"`
	Status      Status    `json:"status,omitempty"`
}

// TimestampText returns the timestamp in display form.
func (r Record) TimestampText() string {
	if r.Timestamp.IsZero() {
		return ""
	}
	return r.Timestamp.Format(TimestampLayout)
}

type recordJSON struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Protocol    string `json:"protocol"`
	Length      int    `json:"length"`
	Info        string `json:"info"`
	Details     Detail `json:"details"`
	Status      Status `json:"status,omitempty"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		ID:          r.ID,
		Timestamp:   r.TimestampText(),
		Source:      r.Source,
		Destination: r.Destination,
		Protocol:    r.Protocol,
		Length:      r.Length,
		Info:        r.Info,
		Details:     r.Details,
		Status:      r.Status,
	})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return err
	}
	if raw.Length < 0 {
		return fmt.Errorf("record %q: negative length %d", raw.ID, raw.Length)
	}
	*r = Record{
		ID:          raw.ID,
		Timestamp:   ts,
		Source:      raw.Source,
		Destination: raw.Destination,
		Protocol:    raw.Protocol,
		Length:      raw.Length,
		Info:        raw.Info,
		Details:     raw.Details,
		Status:      raw.Status,
	}
	return nil
}

// ParseTimestamp accepts the display layout, RFC 3339 and a bare clock time.
// An empty string yields the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: unrecognized layout", s)
}
