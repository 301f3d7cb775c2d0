// Package voip derives call, SIP ladder and RTP stream views from captured
// records. It reads only record details, so records from pcaps and from the
// remote feed are treated alike.
package voip

import (
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"netshield/internal/models"
)

// Call statuses.
const (
	StatusCalling    = "Calling"
	StatusRinging    = "Ringing"
	StatusInProgress = "In-Progress"
	StatusCompleted  = "Completed"
	StatusCancelled  = "Cancelled"
)

// Message is one rung of a call's SIP ladder.
type Message struct {
	RecordID    string  `json:"recordId"`
	Offset      float64 `json:"offsetSeconds"`
	Source      string  `json:"source"`
	Destination string  `json:"destination"`
	Method      string  `json:"method"`
	CSeq        string  `json:"cseq"`
	Info        string  `json:"info,omitempty"`
}

// Quality summarizes the worst linked RTP stream of a call.
type Quality struct {
	LossPercent float64 `json:"lossPercent"`
	JitterMs    float64 `json:"jitterMs"`
	MOS         float64 `json:"mos"`
}

// Call is a SIP dialog identified by its Call-ID.
type Call struct {
	CallID   string    `json:"callId"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	SourceIP string    `json:"sourceIp"`
	DestIP   string    `json:"destIp"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration float64   `json:"durationSeconds"`
	Status   string    `json:"status"`
	Protocol string    `json:"protocol"`
	Messages []Message `json:"messages"`
	Streams  []string  `json:"rtpStreams,omitempty"`
	Quality  *Quality  `json:"quality,omitempty"`

	media map[string]bool // SDP ip:port endpoints
}

// Report is the VoIP view of a capture.
type Report struct {
	Calls   []Call   `json:"calls"`
	Streams []Stream `json:"streams"`
}

// Analyze builds calls and RTP streams from records in capture order. RTP
// streams are linked to a call when either end matches an SDP media
// endpoint offered in that call.
func Analyze(records []models.Record) Report {
	calls := append([]Call{}, sipCalls(records)...)
	streams := append([]Stream{}, rtpStreams(records)...)

	for ci := range calls {
		c := &calls[ci]
		for si := range streams {
			s := &streams[si]
			if s.CallID != "" || !(c.media[s.source()] || c.media[s.dest()]) {
				continue
			}
			s.CallID = c.CallID
			c.Streams = append(c.Streams, s.ID)
			if c.Quality == nil || s.MOS < c.Quality.MOS {
				c.Quality = &Quality{LossPercent: s.LossPercent, JitterMs: s.MeanJitterMs, MOS: s.MOS}
			}
		}
		if len(c.Streams) > 0 {
			c.Protocol = "SIP/RTP"
		}
	}
	return Report{Calls: calls, Streams: streams}
}

// Filter keeps calls and streams with a field containing text,
// case-insensitively. Empty text keeps everything.
func (r Report) Filter(text string) Report {
	q := strings.ToLower(strings.TrimSpace(text))
	if q == "" {
		return r
	}
	match := func(fields ...string) bool {
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), q) {
				return true
			}
		}
		return false
	}
	out := Report{Calls: []Call{}, Streams: []Stream{}}
	for _, c := range r.Calls {
		if match(c.CallID, c.From, c.To, c.Status, c.SourceIP, c.DestIP, c.Protocol) {
			out.Calls = append(out.Calls, c)
		}
	}
	for _, s := range r.Streams {
		if match(s.ID, s.SourceIP, strconv.Itoa(s.SourcePort), s.DestIP, strconv.Itoa(s.DestPort), s.Codec, s.SSRC, s.CallID) {
			out.Streams = append(out.Streams, s)
		}
	}
	return out
}

// callState tracks dialog progress while the ladder is read.
type callState struct {
	ringing, established, bye, cancelled bool
	failure                              string
}

func (st callState) status() string {
	switch {
	case st.failure != "":
		return "Failed (" + st.failure + ")"
	case st.bye:
		return StatusCompleted
	case st.cancelled:
		return StatusCancelled
	case st.established:
		return StatusInProgress
	case st.ringing:
		return StatusRinging
	}
	return StatusCalling
}

// stripTag drops the ";tag=" parameter from a From/To header.
func stripTag(v string) string {
	if i := strings.Index(v, ";tag="); i >= 0 {
		return strings.TrimSpace(v[:i])
	}
	return v
}

func sipCalls(records []models.Record) []Call {
	index := make(map[string]int)
	var (
		out    []Call
		states []callState
	)
	for _, r := range records {
		sip, ok := r.Details.Get("sip")
		if !ok {
			continue
		}
		callID := sip.LookupText("call-id")
		if callID == "" {
			continue
		}
		i, seen := index[callID]
		if !seen {
			i = len(out)
			index[callID] = i
			out = append(out, Call{
				CallID:   callID,
				From:     stripTag(sip.LookupText("from")),
				To:       stripTag(sip.LookupText("to")),
				SourceIP: r.Source,
				DestIP:   r.Destination,
				Start:    r.Timestamp,
				Protocol: "SIP",
				Messages: []Message{},
				media:    map[string]bool{},
			})
			states = append(states, callState{})
		}
		c, st := &out[i], &states[i]
		c.End = r.Timestamp

		method := sip.LookupText("method")
		cseq := sip.LookupText("cseq")
		code, _ := strconv.Atoi(sip.LookupText("status_code"))
		label := method
		if code != 0 {
			label = strconv.Itoa(code) + " " + sip.LookupText("reason")
		}
		c.Messages = append(c.Messages, Message{
			RecordID:    r.ID,
			Offset:      r.Timestamp.Sub(c.Start).Seconds(),
			Source:      r.Source,
			Destination: r.Destination,
			Method:      label,
			CSeq:        cseq,
			Info:        sdpInfo(sip),
		})

		cseqMethod := ""
		if f := strings.Fields(cseq); len(f) == 2 {
			cseqMethod = f[1]
		}
		switch {
		case method == "BYE":
			st.bye = true
		case method == "CANCEL":
			st.cancelled = true
		case code >= 180 && code < 200 && cseqMethod == "INVITE":
			st.ringing = true
		case code >= 200 && code < 300 && cseqMethod == "INVITE":
			st.established = true
		case code >= 300 && cseqMethod == "INVITE" && !st.established:
			st.failure = strconv.Itoa(code) + " " + sip.LookupText("reason")
		}
		addMedia(c.media, sip)
	}

	for i := range out {
		c := &out[i]
		c.Status = states[i].status()
		c.Duration = c.End.Sub(c.Start).Seconds()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func sdpInfo(sip models.Detail) string {
	if _, ok := sip.Get("sdp"); ok {
		return "SDP"
	}
	return ""
}

func addMedia(media map[string]bool, sip models.Detail) {
	conn := sip.LookupText("sdp", "connection")
	list, ok := sip.Lookup("sdp", "media")
	if conn == "" || !ok {
		return
	}
	for _, item := range list.Items() {
		if port := item.LookupText("port"); port != "" && port != "0" {
			media[net.JoinHostPort(conn, port)] = true
		}
	}
}
