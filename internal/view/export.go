package view

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"netshield/internal/models"
)

var flatten = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// WriteText writes one human-readable line per record, in capture order.
func WriteText(w io.Writer, records []models.Record) error {
	bw := bufio.NewWriter(w)
	for i, r := range records {
		_, err := fmt.Fprintf(bw, "#%d %s %s -> %s %s len=%d id=%s %s\n",
			i+1,
			r.TimestampText(),
			flatten.Replace(r.Source),
			flatten.Replace(r.Destination),
			flatten.Replace(r.Protocol),
			r.Length,
			flatten.Replace(r.ID),
			flatten.Replace(r.Info),
		)
		if err != nil {
			return fmt.Errorf("write record %s: %w", r.ID, err)
		}
	}
	return bw.Flush()
}
