package filter

import (
	"strings"

	"netshield/internal/flow"
	"netshield/internal/models"
)

// MatchText reports whether text occurs, ignoring case, in the record's
// source, destination, protocol, info or timestamp. Empty text matches all.
func MatchText(r models.Record, text string) bool {
	if text == "" {
		return true
	}
	needle := strings.ToLower(text)
	for _, hay := range [...]string{r.Source, r.Destination, r.Protocol, r.Info, r.TimestampText()} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}

// MatchConversation reports whether r belongs to conv. A nil conv matches
// everything.
func MatchConversation(r models.Record, conv *flow.Pair) bool {
	return conv == nil || conv.Matches(r.Source, r.Destination)
}

// Visible returns the records that pass both the text and the conversation
// filter, in their original order. The input is not modified.
func Visible(records []models.Record, text string, conv *flow.Pair) []models.Record {
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if MatchText(r, text) && MatchConversation(r, conv) {
			out = append(out, r)
		}
	}
	return out
}
