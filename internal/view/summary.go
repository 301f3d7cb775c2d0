package view

import (
	"sort"
	"strconv"

	"netshield/internal/models"
)

// ProtocolShare is one line of the protocol breakdown.
type ProtocolShare struct {
	Protocol string  `json:"protocol"`
	Count    int     `json:"count"`
	Bytes    int64   `json:"bytes"`
	Percent  float64 `json:"percent"`
}

// PercentText formats Percent with one decimal, e.g. "66.7%".
func (p ProtocolShare) PercentText() string {
	return strconv.FormatFloat(p.Percent, 'f', 1, 64) + "%"
}

// Summary aggregates the whole captured list. Elapsed time is measured in
// seconds between the first and last record timestamps; throughput is in
// megabits (10^6 bits) per second over that span.
type Summary struct {
	Total          int             `json:"total"`
	TotalBytes     int64           `json:"totalBytes"`
	AverageLength  float64         `json:"averageLength"`
	Protocols      []ProtocolShare `json:"protocols"`
	ElapsedSeconds float64         `json:"elapsedSeconds"`
	ThroughputMbps float64         `json:"throughputMbps"`
}

// Summarize computes totals and the per-protocol breakdown. Protocols are
// ordered by count, descending; equal counts keep first-seen order.
func Summarize(captured []models.Record) Summary {
	s := Summary{Protocols: []ProtocolShare{}}
	index := make(map[string]int)
	for _, r := range captured {
		s.Total++
		s.TotalBytes += int64(r.Length)
		i, ok := index[r.Protocol]
		if !ok {
			i = len(s.Protocols)
			index[r.Protocol] = i
			s.Protocols = append(s.Protocols, ProtocolShare{Protocol: r.Protocol})
		}
		s.Protocols[i].Count++
		s.Protocols[i].Bytes += int64(r.Length)
	}
	if s.Total == 0 {
		return s
	}

	for i := range s.Protocols {
		s.Protocols[i].Percent = float64(s.Protocols[i].Count) * 100 / float64(s.Total)
	}
	sort.SliceStable(s.Protocols, func(i, j int) bool {
		return s.Protocols[i].Count > s.Protocols[j].Count
	})
	s.AverageLength = float64(s.TotalBytes) / float64(s.Total)

	first, last := captured[0].Timestamp, captured[len(captured)-1].Timestamp
	if !first.IsZero() && !last.IsZero() && last.After(first) {
		s.ElapsedSeconds = last.Sub(first).Seconds()
		s.ThroughputMbps = float64(s.TotalBytes*8) / s.ElapsedSeconds / 1e6
	}
	return s
}
