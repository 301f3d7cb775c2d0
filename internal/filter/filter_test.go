package filter

import (
	"strings"
	"testing"
	"time"

	"netshield/internal/dataset"
	"netshield/internal/flow"
	"netshield/internal/models"
)

func records(t *testing.T) []models.Record {
	t.Helper()
	src := dataset.Builtin()
	out := make([]models.Record, 0, src.Len())
	for i := 0; i < src.Len(); i++ {
		r, err := src.RecordAt(i)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, r)
	}
	return out
}

// isSubsequence reports whether sub appears in list in the same order.
func isSubsequence(sub, list []models.Record) bool {
	j := 0
	for i := 0; i < len(list) && j < len(sub); i++ {
		if list[i].ID == sub[j].ID {
			j++
		}
	}
	return j == len(sub)
}

func TestVisibleText(t *testing.T) {
	list := records(t)
	tests := []struct {
		name  string
		text  string
		wantN int
	}{
		{"empty matches all", "", 10},
		{"protocol lower case", "dns", 2},
		{"protocol mixed case", "IcMp", 2},
		{"source address", "10.0.0.15", 2},
		{"info text", "echo (ping) reply", 1},
		{"timestamp", "10:00:03", 2},
		{"date matches all", "2025-05-26", 10},
		{"no match", "quic", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Visible(list, tt.text, nil)
			if len(got) != tt.wantN {
				t.Fatalf("Visible(%q) returned %d records, want %d", tt.text, len(got), tt.wantN)
			}
			if !isSubsequence(got, list) {
				t.Fatalf("Visible(%q) is not an ordered subsequence", tt.text)
			}
			needle := strings.ToLower(tt.text)
			for _, r := range got {
				hay := strings.ToLower(strings.Join([]string{r.Source, r.Destination, r.Protocol, r.Info, r.TimestampText()}, "\x00"))
				if !strings.Contains(hay, needle) {
					t.Errorf("%s does not contain %q", r.ID, tt.text)
				}
			}
		})
	}
}

func TestVisibleConversationSymmetric(t *testing.T) {
	list := records(t)
	forward := flow.MakePair("192.168.1.100", "192.168.1.1")
	reverse := flow.MakePair("192.168.1.1", "192.168.1.100")

	a := Visible(list, "", &forward)
	b := Visible(list, "", &reverse)
	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("got %d and %d records, want 2 each", len(a), len(b))
	}
	if a[0].ID != "pkt1" || a[1].ID != "pkt2" {
		t.Fatalf("got %s,%s want pkt1,pkt2", a[0].ID, a[1].ID)
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatal("conversation filter depends on direction")
		}
	}
}

func TestVisibleComposesWithAnd(t *testing.T) {
	list := records(t)
	conv := flow.MakePair("192.168.1.1", "192.168.1.100")

	got := Visible(list, "response", &conv)
	if len(got) != 1 || got[0].ID != "pkt2" {
		t.Fatalf("got %v, want only pkt2", got)
	}
	if n := len(Visible(list, "icmp", &conv)); n != 0 {
		t.Fatalf("text outside conversation matched %d records", n)
	}
}

func TestVisibleDoesNotModifyInput(t *testing.T) {
	list := records(t)
	before := list[0].ID
	_ = Visible(list, "arp", nil)
	if list[0].ID != before || len(list) != 10 {
		t.Fatal("input slice was modified")
	}
}

func TestMatchTextToleratesEmptyFields(t *testing.T) {
	r := models.Record{ID: "x"}
	if MatchText(r, "a") {
		t.Fatal("empty record matched non-empty text")
	}
	if !MatchText(r, "") {
		t.Fatal("empty text must match")
	}
	r.Timestamp = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if !MatchText(r, "03:04") {
		t.Fatal("timestamp text not matched")
	}
}
