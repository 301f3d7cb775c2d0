package flow

import (
	"fmt"
	"sort"

	"netshield/internal/models"
)

// Pair is an unordered pair of endpoints. Both directions of a
// conversation map to the same Pair.
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// MakePair normalizes the order so that MakePair(x, y) == MakePair(y, x).
func MakePair(src, dst string) Pair {
	if src <= dst {
		return Pair{A: src, B: dst}
	}
	return Pair{A: dst, B: src}
}

// PairOf returns the conversation a record belongs to.
func PairOf(r models.Record) Pair {
	return MakePair(r.Source, r.Destination)
}

// Matches reports whether a packet from src to dst belongs to p.
func (p Pair) Matches(src, dst string) bool {
	return MakePair(src, dst) == p
}

func (p Pair) String() string {
	return fmt.Sprintf("%s <-> %s", p.A, p.B)
}

// Key identifies a conversation per protocol.
type Key struct {
	Pair     Pair
	Protocol string
}

// Conversation holds statistics for traffic between two endpoints over one
// protocol.
type Conversation struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Protocol    string `json:"protocol"`
	PacketCount int    `json:"packetCount"`
	ByteCount   int64  `json:"byteCount"`
	FwdPackets  int    `json:"fwdPackets"`
	FwdBytes    int64  `json:"fwdBytes"`
	RevPackets  int    `json:"revPackets"`
	RevBytes    int64  `json:"revBytes"`
}

// Conversations groups records by endpoint pair and protocol. The direction
// of the first packet seen is "forward". Results are ordered by packet count,
// ties keeping first-seen order.
func Conversations(records []models.Record) []Conversation {
	index := make(map[Key]int)
	var out []Conversation
	for _, r := range records {
		key := Key{Pair: PairOf(r), Protocol: r.Protocol}
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, Conversation{
				Source:      r.Source,
				Destination: r.Destination,
				Protocol:    r.Protocol,
			})
		}
		c := &out[i]
		c.PacketCount++
		c.ByteCount += int64(r.Length)
		if r.Source == c.Source && r.Destination == c.Destination {
			c.FwdPackets++
			c.FwdBytes += int64(r.Length)
		} else {
			c.RevPackets++
			c.RevBytes += int64(r.Length)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PacketCount > out[j].PacketCount
	})
	return out
}

// Role describes how an endpoint took part in the capture.
type Role string

const (
	RoleSource      Role = "source"
	RoleDestination Role = "destination"
	RoleBoth        Role = "both"
)

// Endpoint holds per-address statistics.
type Endpoint struct {
	Address   string   `json:"address"`
	Role      Role     `json:"role"`
	Packets   int      `json:"packets"`
	Bytes     int64    `json:"bytes"`
	Protocols []string `json:"protocols"`

	isSource bool
	isDest   bool
	protos   map[string]struct{}
}

// Endpoints tallies every address seen as source or destination. A packet
// sent to itself counts once. Results are ordered by packet count.
func Endpoints(records []models.Record) []Endpoint {
	index := make(map[string]int)
	var out []Endpoint
	add := func(addr string, isSource bool, r models.Record) {
		if addr == "" {
			return
		}
		i, ok := index[addr]
		if !ok {
			i = len(out)
			index[addr] = i
			out = append(out, Endpoint{Address: addr, protos: make(map[string]struct{})})
		}
		e := &out[i]
		e.Packets++
		e.Bytes += int64(r.Length)
		e.protos[r.Protocol] = struct{}{}
		if isSource {
			e.isSource = true
		} else {
			e.isDest = true
		}
	}
	for _, r := range records {
		add(r.Source, true, r)
		if r.Destination != r.Source {
			add(r.Destination, false, r)
		}
	}
	for i := range out {
		e := &out[i]
		switch {
		case e.isSource && e.isDest:
			e.Role = RoleBoth
		case e.isSource:
			e.Role = RoleSource
		default:
			e.Role = RoleDestination
		}
		for p := range e.protos {
			e.Protocols = append(e.Protocols, p)
		}
		sort.Strings(e.Protocols)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Packets > out[j].Packets
	})
	return out
}
