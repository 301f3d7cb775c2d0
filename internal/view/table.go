package view

import "netshield/internal/models"

// Row is one line of the packet table.
type Row struct {
	Index       int           `json:"index"`
	ID          string        `json:"id"`
	Timestamp   string        `json:"timestamp"`
	Source      string        `json:"source"`
	Destination string        `json:"destination"`
	Protocol    string        `json:"protocol"`
	Length      int           `json:"length"`
	Info        string        `json:"info"`
	Status      models.Status `json:"status,omitempty"`
	Selected    bool          `json:"selected,omitempty"`
}

// Table numbers the visible records from 1 in their given order and marks
// the row whose id equals selectedID.
func Table(visible []models.Record, selectedID string) []Row {
	rows := make([]Row, len(visible))
	for i, r := range visible {
		rows[i] = Row{
			Index:       i + 1,
			ID:          r.ID,
			Timestamp:   r.TimestampText(),
			Source:      r.Source,
			Destination: r.Destination,
			Protocol:    r.Protocol,
			Length:      r.Length,
			Info:        r.Info,
			Status:      r.Status,
			Selected:    selectedID != "" && r.ID == selectedID,
		}
	}
	return rows
}
