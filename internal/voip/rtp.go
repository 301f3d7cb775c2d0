package voip

import (
	"fmt"
	"math"
	"net"
	"strconv"
	"time"

	"netshield/internal/models"
)

// Stream is one RTP stream, keyed by its 5-tuple and SSRC.
type Stream struct {
	ID           string    `json:"id"`
	SourceIP     string    `json:"sourceIp"`
	SourcePort   int       `json:"sourcePort"`
	DestIP       string    `json:"destIp"`
	DestPort     int       `json:"destPort"`
	SSRC         string    `json:"ssrc"`
	PayloadType  int       `json:"payloadType"`
	Codec        string    `json:"codec"`
	Packets      int       `json:"packets"`
	Lost         int       `json:"lost"`
	LossPercent  float64   `json:"lossPercent"`
	MeanJitterMs float64   `json:"meanJitterMs"`
	MaxJitterMs  float64   `json:"maxJitterMs"`
	MaxDeltaMs   float64   `json:"maxDeltaMs"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Duration     float64   `json:"durationSeconds"`
	MOS          float64   `json:"mos"`
	CallID       string    `json:"callId,omitempty"`
}

func (s Stream) source() string {
	return net.JoinHostPort(s.SourceIP, strconv.Itoa(s.SourcePort))
}

func (s Stream) dest() string {
	return net.JoinHostPort(s.DestIP, strconv.Itoa(s.DestPort))
}

type streamKey struct {
	src, dst string
	ssrc     string
}

// streamState carries the running RFC 3550 counters of one stream.
type streamState struct {
	clock     float64
	baseSeq   uint32
	maxSeq    uint32 // extended
	lastTS    uint32
	lastAt    time.Time
	jitter    float64
	jitterSum float64
}

// clockRate returns the RTP timestamp rate for a payload type. Dynamic types
// carry no rate in the packet and are assumed to be narrowband audio.
func clockRate(pt int) float64 {
	switch pt {
	case 26, 31, 34:
		return 90000
	}
	return 8000
}

func detailUint(d models.Detail, path ...string) (uint64, bool) {
	n, err := strconv.ParseUint(d.LookupText(path...), 10, 64)
	return n, err == nil
}

// rtpStreams groups RTP records into streams in first-seen order and
// computes loss, interarrival jitter and the largest arrival gap.
func rtpStreams(records []models.Record) []Stream {
	index := make(map[streamKey]int)
	var (
		out    []Stream
		states []*streamState
	)
	for _, r := range records {
		if _, ok := r.Details.Get("rtp"); !ok {
			continue
		}
		sport, ok1 := detailUint(r.Details, "udp", "src_port")
		dport, ok2 := detailUint(r.Details, "udp", "dst_port")
		seq16, ok3 := detailUint(r.Details, "rtp", "seq")
		ts, ok4 := detailUint(r.Details, "rtp", "timestamp")
		pt, ok5 := detailUint(r.Details, "rtp", "payload_type")
		if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
			continue
		}
		ssrc := r.Details.LookupText("rtp", "ssrc")
		key := streamKey{
			src:  net.JoinHostPort(r.Source, strconv.FormatUint(sport, 10)),
			dst:  net.JoinHostPort(r.Destination, strconv.FormatUint(dport, 10)),
			ssrc: ssrc,
		}

		i, seen := index[key]
		if !seen {
			i = len(out)
			index[key] = i
			out = append(out, Stream{
				ID:          fmt.Sprintf("rtp-stream-%d", i+1),
				SourceIP:    r.Source,
				SourcePort:  int(sport),
				DestIP:      r.Destination,
				DestPort:    int(dport),
				SSRC:        ssrc,
				PayloadType: int(pt),
				Codec:       r.Details.LookupText("rtp", "payload_name"),
				Start:       r.Timestamp,
			})
			states = append(states, &streamState{
				clock:   clockRate(int(pt)),
				baseSeq: uint32(seq16),
				maxSeq:  uint32(seq16),
				lastTS:  uint32(ts),
				lastAt:  r.Timestamp,
			})
			out[i].Packets = 1
			out[i].End = r.Timestamp
			continue
		}

		s, st := &out[i], states[i]
		s.Packets++
		s.End = r.Timestamp
		st.extend(uint16(seq16))

		gap := r.Timestamp.Sub(st.lastAt).Seconds()
		if ms := gap * 1000; ms > s.MaxDeltaMs {
			s.MaxDeltaMs = ms
		}
		d := gap*st.clock - float64(int32(uint32(ts)-st.lastTS))
		st.jitter += (math.Abs(d) - st.jitter) / 16
		st.jitterSum += st.jitter
		if ms := st.jitter / st.clock * 1000; ms > s.MaxJitterMs {
			s.MaxJitterMs = ms
		}
		st.lastTS, st.lastAt = uint32(ts), r.Timestamp
	}

	for i := range out {
		s, st := &out[i], states[i]
		expected := int(st.maxSeq-st.baseSeq) + 1
		if lost := expected - s.Packets; lost > 0 {
			s.Lost = lost
			s.LossPercent = float64(lost) * 100 / float64(expected)
		}
		if s.Packets > 1 {
			s.MeanJitterMs = st.jitterSum / float64(s.Packets-1) / st.clock * 1000
		}
		s.Duration = s.End.Sub(s.Start).Seconds()
		s.MOS = MOS(s.LossPercent, s.MeanJitterMs, 0)
	}
	return out
}

// extend folds a 16-bit sequence number into the extended maximum,
// counting wraparounds. Late and duplicate packets leave it unchanged.
func (st *streamState) extend(seq uint16) {
	cycles := st.maxSeq &^ 0xffff
	cur := uint16(st.maxSeq)
	delta := seq - cur
	switch {
	case delta == 0 || delta >= 0x8000:
		return
	case seq < cur:
		cycles += 1 << 16
	}
	st.maxSeq = cycles | uint32(seq)
}

// MOS estimates a mean opinion score from loss, jitter and one-way delay
// with the simplified ITU-T G.107 E-model.
func MOS(lossPercent, jitterMs, delayMs float64) float64 {
	eff := delayMs + 2*jitterMs + 10
	r := 93.2
	if eff < 160 {
		r -= eff / 40
	} else {
		r -= (eff - 120) / 10
	}
	r -= 2.5 * lossPercent
	if r < 0 {
		r = 0
	}
	if r > 100 {
		r = 100
	}
	mos := 1 + 0.035*r + 7e-6*r*(r-60)*(100-r)
	return math.Round(mos*100) / 100
}
