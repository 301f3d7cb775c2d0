package voip

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	m "netshield/internal/models"
)

var base = time.Date(2025, 5, 27, 9, 0, 0, 0, time.UTC)

func sipRecord(n int, at time.Duration, src, dst, callID, startLine, cseq string, sdpPort string) m.Record {
	method, code, reason := strings.Fields(startLine)[0], "", ""
	fields := []m.Field{m.F("start_line", m.String(startLine))}
	if method == "SIP/2.0" {
		code, reason = startLine[8:11], startLine[12:]
	}
	fields = append(fields, m.F("method", m.String(method)))
	if code != "" {
		fields = append(fields, m.F("status_code", m.String(code)), m.F("reason", m.String(reason)))
	}
	fields = append(fields,
		m.F("call-id", m.String(callID)),
		m.F("from", m.String("Pranav <sip:pranav@corporate.com>;tag=a1")),
		m.F("to", m.String("Divya <sip:divya@corporate.com>")),
		m.F("cseq", m.String(cseq)),
	)
	if sdpPort != "" {
		fields = append(fields, m.F("sdp", m.Node(
			m.F("connection", m.String(src)),
			m.F("media", m.List(m.Node(
				m.F("type", m.String("audio")),
				m.F("port", m.String(sdpPort)),
			))),
		)))
	}
	return m.Record{
		ID:          fmt.Sprintf("pkt%d", n),
		Timestamp:   base.Add(at),
		Source:      src,
		Destination: dst,
		Protocol:    "SIP",
		Details:     m.Node(m.F("sip", m.Node(fields...))),
	}
}

func rtpRecord(n int, at time.Duration, src string, sport int, dst string, dport int, seq, ts uint32) m.Record {
	return m.Record{
		ID:          fmt.Sprintf("rtp%d", n),
		Timestamp:   base.Add(at),
		Source:      src,
		Destination: dst,
		Protocol:    "RTP",
		Details: m.Node(
			m.F("udp", m.Node(
				m.F("src_port", m.Uint(uint64(sport))),
				m.F("dst_port", m.Uint(uint64(dport))),
			)),
			m.F("rtp", m.Node(
				m.F("payload_type", m.Uint(0)),
				m.F("payload_name", m.String("ITU-T G.711 PCMU")),
				m.F("seq", m.Uint(uint64(seq))),
				m.F("timestamp", m.Uint(uint64(ts))),
				m.F("ssrc", m.String("0x12345678")),
			)),
		),
	}
}

const (
	caller = "10.0.0.100"
	pbx    = "10.0.0.1"
)

// completedCall is an INVITE/200/ACK/BYE dialog with 50 RTP packets at
// 20 ms spacing, one of which (seq 10) is missing.
func completedCall() []m.Record {
	recs := []m.Record{
		sipRecord(1, 0, caller, pbx, "ax7yt8z@pbx", "INVITE sip:divya@corporate.com SIP/2.0", "1 INVITE", "4000"),
		sipRecord(2, 45*time.Millisecond, pbx, caller, "ax7yt8z@pbx", "SIP/2.0 100 Trying", "1 INVITE", ""),
		sipRecord(3, 1200*time.Millisecond, pbx, caller, "ax7yt8z@pbx", "SIP/2.0 180 Ringing", "1 INVITE", ""),
		sipRecord(4, 4500*time.Millisecond, pbx, caller, "ax7yt8z@pbx", "SIP/2.0 200 OK", "1 INVITE", ""),
		sipRecord(5, 4580*time.Millisecond, caller, pbx, "ax7yt8z@pbx", "ACK sip:divya@corporate.com SIP/2.0", "1 ACK", ""),
	}
	for i := 0; i < 50; i++ {
		if i == 10 {
			continue
		}
		at := 5*time.Second + time.Duration(i)*20*time.Millisecond
		recs = append(recs, rtpRecord(i, at, caller, 4000, pbx, 5000, uint32(100+i), uint32(160*i)))
	}
	recs = append(recs,
		sipRecord(6, 94*time.Second, caller, pbx, "ax7yt8z@pbx", "BYE sip:divya@corporate.com SIP/2.0", "2 BYE", ""),
		sipRecord(7, 94030*time.Millisecond, pbx, caller, "ax7yt8z@pbx", "SIP/2.0 200 OK", "2 BYE", ""),
	)
	return recs
}

func TestAnalyzeCompletedCall(t *testing.T) {
	r := Analyze(completedCall())
	if len(r.Calls) != 1 || len(r.Streams) != 1 {
		t.Fatalf("got %d calls, %d streams", len(r.Calls), len(r.Streams))
	}
	c, s := r.Calls[0], r.Streams[0]

	if c.Status != StatusCompleted || c.Protocol != "SIP/RTP" {
		t.Fatalf("call status=%q protocol=%q", c.Status, c.Protocol)
	}
	if c.From != "Pranav <sip:pranav@corporate.com>" {
		t.Fatalf("from = %q", c.From)
	}
	if c.Duration < 94.029 || c.Duration > 94.031 {
		t.Fatalf("duration = %v", c.Duration)
	}
	wantLadder := []string{"INVITE", "100 Trying", "180 Ringing", "200 OK", "ACK", "BYE", "200 OK"}
	if len(c.Messages) != len(wantLadder) {
		t.Fatalf("ladder has %d messages", len(c.Messages))
	}
	for i, want := range wantLadder {
		if c.Messages[i].Method != want {
			t.Errorf("message %d = %q, want %q", i, c.Messages[i].Method, want)
		}
	}
	if c.Messages[0].Info != "SDP" || c.Messages[1].Offset != 0.045 {
		t.Fatalf("first messages = %+v", c.Messages[:2])
	}

	if s.ID != "rtp-stream-1" || s.CallID != c.CallID || s.Codec != "ITU-T G.711 PCMU" {
		t.Fatalf("stream = %+v", s)
	}
	if s.Packets != 49 || s.Lost != 1 || s.LossPercent != 2 {
		t.Fatalf("packets=%d lost=%d loss=%v", s.Packets, s.Lost, s.LossPercent)
	}
	if s.MeanJitterMs > 0.001 {
		t.Fatalf("jitter = %v for perfectly paced stream", s.MeanJitterMs)
	}
	if s.MaxDeltaMs < 39.9 || s.MaxDeltaMs > 40.1 {
		t.Fatalf("max delta = %v, want 40", s.MaxDeltaMs)
	}
	if c.Quality == nil || c.Quality.MOS != s.MOS || s.MOS >= MOS(0, 0, 0) {
		t.Fatalf("quality = %+v, stream MOS %v", c.Quality, s.MOS)
	}
}

func TestCallStatus(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{"calling", []string{"INVITE sip:b SIP/2.0"}, StatusCalling},
		{"ringing", []string{"INVITE sip:b SIP/2.0", "SIP/2.0 180 Ringing"}, StatusRinging},
		{"in progress", []string{"INVITE sip:b SIP/2.0", "SIP/2.0 200 OK", "ACK sip:b SIP/2.0"}, StatusInProgress},
		{"failed", []string{"INVITE sip:b SIP/2.0", "SIP/2.0 480 Temporarily Unavailable", "ACK sip:b SIP/2.0"}, "Failed (480 Temporarily Unavailable)"},
		{"cancelled", []string{"INVITE sip:b SIP/2.0", "CANCEL sip:b SIP/2.0"}, StatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var recs []m.Record
			for i, line := range tt.lines {
				cseq := "1 INVITE"
				if strings.HasPrefix(line, "ACK") {
					cseq = "1 ACK"
				}
				recs = append(recs, sipRecord(i+1, time.Duration(i)*time.Second, caller, pbx, "call-"+tt.name, line, cseq, ""))
			}
			calls := Analyze(recs).Calls
			if len(calls) != 1 || calls[0].Status != tt.want {
				t.Fatalf("calls = %+v, want status %q", calls, tt.want)
			}
			if calls[0].Protocol != "SIP" || calls[0].Quality != nil {
				t.Fatalf("unlinked call = %+v", calls[0])
			}
		})
	}
}

func TestSequenceWraparound(t *testing.T) {
	var recs []m.Record
	for i := 0; i < 6; i++ {
		seq := uint32((65533 + i) % 65536)
		recs = append(recs, rtpRecord(i, time.Duration(i)*20*time.Millisecond, caller, 4000, pbx, 5000, seq, uint32(160*i)))
	}
	s := Analyze(recs).Streams
	if len(s) != 1 || s[0].Packets != 6 || s[0].Lost != 0 {
		t.Fatalf("streams = %+v", s)
	}
}

func TestStreamsSplitBySSRCAndDirection(t *testing.T) {
	recs := []m.Record{
		rtpRecord(1, 0, caller, 4000, pbx, 5000, 1, 0),
		rtpRecord(2, 0, pbx, 5000, caller, 4000, 1, 0),
		rtpRecord(3, 20*time.Millisecond, caller, 4000, pbx, 5000, 2, 160),
	}
	other := rtpRecord(4, 40*time.Millisecond, caller, 4000, pbx, 5000, 3, 320)
	other.Details = m.Node(
		m.F("udp", m.Node(m.F("src_port", m.Uint(4000)), m.F("dst_port", m.Uint(5000)))),
		m.F("rtp", m.Node(
			m.F("payload_type", m.Uint(8)),
			m.F("seq", m.Uint(3)),
			m.F("timestamp", m.Uint(320)),
			m.F("ssrc", m.String("0x0badf00d")),
		)),
	)
	recs = append(recs, other)

	streams := Analyze(recs).Streams
	if len(streams) != 3 {
		t.Fatalf("got %d streams, want 3", len(streams))
	}
	want := []int{2, 1, 1}
	for i, s := range streams {
		if s.ID != "rtp-stream-"+strconv.Itoa(i+1) || s.Packets != want[i] {
			t.Errorf("stream %d = %s with %d packets", i, s.ID, s.Packets)
		}
	}
}

func TestReportFilter(t *testing.T) {
	r := Analyze(completedCall())
	tests := []struct {
		text           string
		calls, streams int
	}{
		{"", 1, 1},
		{"DIVYA", 1, 0},
		{"pcmu", 0, 1},
		{"ax7yt8z", 1, 1},
		{"nothing-matches", 0, 0},
	}
	for _, tt := range tests {
		got := r.Filter(tt.text)
		if len(got.Calls) != tt.calls || len(got.Streams) != tt.streams {
			t.Errorf("Filter(%q) = %d calls, %d streams; want %d, %d",
				tt.text, len(got.Calls), len(got.Streams), tt.calls, tt.streams)
		}
	}
}

func TestMOSRange(t *testing.T) {
	good := MOS(0, 0, 0)
	if good < 4.3 || good > 4.5 {
		t.Fatalf("MOS of a clean stream = %v", good)
	}
	if bad := MOS(30, 80, 300); bad >= 2 || bad < 1 {
		t.Fatalf("MOS of a broken stream = %v", bad)
	}
	if MOS(5, 0, 0) >= good {
		t.Fatal("loss should lower MOS")
	}
}
