package view

import (
	"fmt"

	"netshield/internal/models"
)

// Diagram is the two-node flow picture for the selected record.
type Diagram struct {
	Empty       bool   `json:"empty"`
	Placeholder string `json:"placeholder,omitempty"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
	Protocol    string `json:"protocol,omitempty"`
	Length      int    `json:"length,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

func DiagramOf(r *models.Record) Diagram {
	if r == nil {
		return Diagram{Empty: true, Placeholder: NoDiagramText}
	}
	return Diagram{
		Source:      r.Source,
		Destination: r.Destination,
		Protocol:    r.Protocol,
		Length:      r.Length,
		Timestamp:   r.TimestampText(),
	}
}

func (d Diagram) String() string {
	if d.Empty {
		return d.Placeholder
	}
	return fmt.Sprintf("[ %s ] ──► [ %s ]\nProtocol: %s | Length: %d | Timestamp: %s",
		d.Source, d.Destination, d.Protocol, d.Length, d.Timestamp)
}
